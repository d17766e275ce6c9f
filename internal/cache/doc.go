// Package cache provides caching of downloaded gateway certificates.
//
// When the gateway rotates its signing certificate, the first response
// signed with the new certificate triggers a download. Caching the
// downloaded PEM by serial number lets restarted processes, and peers
// sharing a Redis instance, skip that round trip.
//
// Two backends are available:
//
//   - memory: in-process, backed by bigcache, per-entry expiry
//   - redis: shared, with key prefix and optional TTL jitter
//
// # Example Usage
//
//	c, err := cache.New(&config.CertCacheConfig{
//	    Enabled: true,
//	    Type:    config.CacheTypeRedis,
//	    TTL:     config.Duration(24 * time.Hour),
//	    Redis:   &config.RedisCacheConfig{URL: "redis://localhost:6379/0"},
//	}, logger)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer c.Close()
package cache
