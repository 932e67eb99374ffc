// Package cache provides the page cache used by the scraper.
//
// Every fetched page body is stored verbatim under the collector it belongs to
// (the partition) and the hash of the exact request URL:
//
//	<root>/<collector_id>/<sha256(url)>
//
// The existence of an entry is the only cache-hit signal. An entry, once
// written, is treated as authoritative for that URL until the whole partition
// is invalidated; there is no expiry.
//
// # Basic Usage
//
//	store, err := cache.NewFileStore("./cache")
//	if err != nil {
//		return err
//	}
//
//	key := cache.CacheKey{
//		Partition: "ABC123",
//		URL:       "/v3/collectors/ABC123/responses/bulk",
//	}
//
//	data, err := store.Get(ctx, key)
//	if errors.Is(err, cache.ErrCacheMiss) {
//		// fetch live, then store.Set(ctx, key, body)
//	}
//
// # Backends
//
// FileStore is the default. RedisStore keeps the same layout as Redis keys
// (monscrape:<partition>:<hash>) for setups where several machines share one
// cache.
//
// # Locking
//
// Store.Lock takes an advisory per-partition lock (flock(2) for files, SET NX
// for Redis). Two walks of the same partition must not interleave, because
// the first-page probe rewrites cached keys.
//
// # Metrics
//
//   - monscrape_cache_hits_total{layer} - Cache hits
//   - monscrape_cache_misses_total{layer} - Cache misses
//   - monscrape_cache_writes_total{layer} - Entries written
//   - monscrape_cache_written_bytes_total{layer} - Bytes written
//   - monscrape_cache_invalidations_total{layer} - Partition invalidations
//   - monscrape_cache_errors_total{layer,operation} - Cache operation errors
package cache
