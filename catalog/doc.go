// Package catalog answers reads over cached BGG things. Each read first
// refreshes whatever the freshness rule considers stale, then serves what
// storage holds. Refresh failures never fail a read; they only mark the
// result as partial.
package catalog
