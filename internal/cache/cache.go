// Package cache provides caching of downloaded gateway certificates.
package cache

import (
	"context"
	"errors"
	"time"

	"github.com/vyrodovalexey/alipaykernel/internal/config"
	"github.com/vyrodovalexey/alipaykernel/internal/observability"
)

// Common cache errors.
var (
	// ErrCacheMiss indicates that the key was not found in the cache.
	ErrCacheMiss = errors.New("cache miss")

	// ErrCacheDisabled indicates that caching is disabled.
	ErrCacheDisabled = errors.New("cache disabled")

	// ErrInvalidConfig indicates that the cache configuration is invalid.
	ErrInvalidConfig = errors.New("invalid cache configuration")

	// ErrConnectionFailed indicates that the cache connection failed.
	ErrConnectionFailed = errors.New("cache connection failed")
)

// DefaultTTL applies when neither the entry nor the configuration sets one.
const DefaultTTL = 24 * time.Hour

// cacheTracerName is the OpenTelemetry tracer name for cache operations.
const cacheTracerName = "alipaykernel/cache"

// Cache stores downloaded certificate PEMs keyed by serial number.
type Cache interface {
	// Get retrieves a value from the cache.
	// Returns ErrCacheMiss if the key is not found.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value in the cache with the given TTL.
	// A TTL of 0 uses the configured default.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a value from the cache.
	Delete(ctx context.Context, key string) error

	// Close closes the cache connection.
	Close() error
}

// New creates a new cache based on the configuration. A nil or disabled
// configuration yields a cache that always misses.
func New(cfg *config.CertCacheConfig, logger observability.Logger) (Cache, error) {
	if cfg == nil || !cfg.Enabled {
		return newDisabledCache(), nil
	}

	if logger == nil {
		logger = observability.NopLogger()
	}

	switch cfg.Type {
	case config.CacheTypeMemory, "":
		return newMemoryCache(cfg, logger)
	case config.CacheTypeRedis:
		return newRedisCache(cfg, logger)
	default:
		return nil, errors.New("unknown cache type: " + cfg.Type)
	}
}

// disabledCache is a cache that always returns ErrCacheDisabled.
type disabledCache struct{}

func newDisabledCache() Cache {
	return &disabledCache{}
}

func (c *disabledCache) Get(_ context.Context, _ string) ([]byte, error) {
	return nil, ErrCacheDisabled
}

func (c *disabledCache) Set(_ context.Context, _ string, _ []byte, _ time.Duration) error {
	return ErrCacheDisabled
}

func (c *disabledCache) Delete(_ context.Context, _ string) error {
	return ErrCacheDisabled
}

func (c *disabledCache) Close() error {
	return nil
}

// IsDisabled reports whether c is the disabled cache.
func IsDisabled(c Cache) bool {
	if c == nil {
		return true
	}
	_, ok := c.(*disabledCache)
	return ok
}

// resolveTTL picks the entry TTL, the configured default, or DefaultTTL.
func resolveTTL(ttl, configured time.Duration) time.Duration {
	if ttl > 0 {
		return ttl
	}
	if configured > 0 {
		return configured
	}
	return DefaultTTL
}
