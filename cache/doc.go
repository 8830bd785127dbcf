// Package cache defines the read cache used in front of the record store.
//
// CacheService is a read-through cache keyed by strings; GetOrFetch adds
// type safety on top of it. KeySerializer turns a read method and its
// arguments into a stable key:
//
//	serializer := cache.NewDefaultKeySerializer()
//	key := serializer.SerializeKey("Find", ids, spec)
//	things, err := cache.GetOrFetch(ctx, svc, key, func(ctx context.Context) ([]*thing.Thing, error) {
//		return store.Find(ctx, ids, spec)
//	})
//
// Arguments that implement Keyer control their own key segment. Keys share
// the method name as prefix so a whole family of reads can be dropped with
// DeleteByPrefix.
//
// The default implementation is backed by sturdyc (see NewCacheService).
package cache
