// Package repositorycache puts a read-through cache in front of the record
// store's read operations.
//
// CachedFinder wraps any Finder. Find results are keyed by the normalized
// id set and the canonical form of the query spec; Get results by id:
//
//	svc, _ := cache.NewCacheService(cache.DefaultConfig())
//	reads := repositorycache.New(store, svc, cache.NewDefaultKeySerializer())
//	things, err := reads.Find(ctx, ids, query.Parse(filters, "rating", "desc"))
//
// Every key handed out is tracked in a registry so writes can drop the
// affected reads without scanning the backend. InvalidateIDs drops the
// single-record reads of the written ids and every cached Find; Invalidate
// drops everything.
package repositorycache
