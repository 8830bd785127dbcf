// Package refresh pulls stale records from the upstream gateway in
// sequential, rate-limited batches and writes them through the store.
//
// Batches are processed one at a time with a pause between consecutive
// calls. A failed batch is reported and skipped so later batches still run;
// its records stay stale and are picked up on the next cycle.
package refresh
