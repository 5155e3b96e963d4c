// Package cache persists the two tiers of harvested pages: the raw HTML
// snapshot and the parsed artifact.
//
// Both tiers are append-only. A snapshot or artifact, once written, is
// trusted by this run and every later run until someone deletes it by hand;
// nothing here expires or invalidates entries.
//
// # Backends
//
// FSStore keeps one file per page index:
//
//	<dataDir>/html/<event>/<index>.html   raw snapshot, exact fetched bytes
//	<dataDir>/json/<event>/<index>.json   parsed artifact, compact JSON
//
// RedisStore keeps the same data under deterministic keys (see Key) without
// any TTL:
//
//	<prefix>:raw:<event>:<index>
//	<prefix>:parsed:<event>:<index>
//
// # Basic Usage
//
//	store := cache.NewFSStore("data")
//	if err := store.Prepare(ctx, "eastville"); err != nil {
//		return err
//	}
//
//	page, err := store.ReadParsed(ctx, "eastville", 2)
//	switch {
//	case errors.Is(err, cache.ErrCacheMiss):
//		// fetch and extract
//	case errors.Is(err, results.ErrCorruptArtifact):
//		// stop: the artifact needs manual attention
//	}
//
// # Metrics
//
//   - harvest_cache_hits_total{tier} - reads answered from a tier
//   - harvest_cache_misses_total{tier} - reads that found nothing
//   - harvest_cache_writes_total{tier} - new entries written
//   - harvest_cache_size_bytes{tier} - bytes written this process
//   - harvest_cache_errors_total{operation} - failed cache operations
package cache
