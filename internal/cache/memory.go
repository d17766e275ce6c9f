package cache

import (
	"context"
	"encoding/binary"
	"errors"
	"time"

	"github.com/allegro/bigcache/v3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/vyrodovalexey/alipaykernel/internal/config"
	"github.com/vyrodovalexey/alipaykernel/internal/observability"
)

const (
	// expiryHeaderSize is the length of the expiry prefix stored with every entry.
	expiryHeaderSize = 8

	// Certificates are a few KiB; size the shards for that.
	defaultMaxEntries   = 1024
	defaultMaxEntrySize = 4096
)

// memoryCache is an in-process cache backed by bigcache. bigcache expires
// entries after a single life window, so each value carries its own
// expiry as an 8-byte unix-nano prefix.
type memoryCache struct {
	logger     observability.Logger
	cache      *bigcache.BigCache
	defaultTTL time.Duration
	now        func() time.Time
}

// newMemoryCache creates a new in-memory cache.
func newMemoryCache(cfg *config.CertCacheConfig, logger observability.Logger) (*memoryCache, error) {
	defaultTTL := resolveTTL(0, cfg.TTL.Duration())

	bcfg := bigcache.DefaultConfig(defaultTTL)
	bcfg.Shards = 16
	bcfg.CleanWindow = time.Minute
	bcfg.MaxEntriesInWindow = defaultMaxEntries
	bcfg.MaxEntrySize = defaultMaxEntrySize
	bcfg.Verbose = false
	if cfg.MaxEntries > 0 {
		bcfg.MaxEntriesInWindow = cfg.MaxEntries
	}

	bc, err := bigcache.New(context.Background(), bcfg)
	if err != nil {
		return nil, errors.Join(ErrInvalidConfig, err)
	}

	logger.Info("memory cache initialized",
		observability.Int("maxEntries", bcfg.MaxEntriesInWindow),
		observability.Duration("defaultTTL", defaultTTL))

	return &memoryCache{
		logger:     logger,
		cache:      bc,
		defaultTTL: defaultTTL,
		now:        time.Now,
	}, nil
}

// Get retrieves a value from the cache.
func (c *memoryCache) Get(ctx context.Context, key string) ([]byte, error) {
	_, span := otel.Tracer(cacheTracerName).Start(ctx, "cache.Get",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("cache.backend", "memory"),
			attribute.String("cache.key", key),
		),
	)
	defer span.End()

	value, ok := c.lookup(key)
	if !ok {
		span.SetAttributes(attribute.Bool("cache.hit", false))
		return nil, ErrCacheMiss
	}

	span.SetAttributes(attribute.Bool("cache.hit", true))
	c.logger.Debug("cache hit", observability.String("key", key))
	return value, nil
}

// lookup returns the live value for key, dropping expired entries.
func (c *memoryCache) lookup(key string) ([]byte, bool) {
	raw, err := c.cache.Get(key)
	if err != nil || len(raw) < expiryHeaderSize {
		return nil, false
	}

	expiresAt := int64(binary.BigEndian.Uint64(raw[:expiryHeaderSize])) //nolint:gosec // written by encodeEntry
	if c.now().UnixNano() >= expiresAt {
		_ = c.cache.Delete(key)
		return nil, false
	}

	value := make([]byte, len(raw)-expiryHeaderSize)
	copy(value, raw[expiryHeaderSize:])
	return value, true
}

// Set stores a value in the cache.
func (c *memoryCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	_, span := otel.Tracer(cacheTracerName).Start(ctx, "cache.Set",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("cache.backend", "memory"),
			attribute.String("cache.key", key),
			attribute.Int("cache.value_size", len(value)),
		),
	)
	defer span.End()

	ttl = resolveTTL(ttl, c.defaultTTL)
	// bigcache evicts after its life window regardless of the header
	if ttl > c.defaultTTL {
		ttl = c.defaultTTL
	}

	if err := c.cache.Set(key, c.encodeEntry(value, ttl)); err != nil {
		span.RecordError(err)
		return err
	}

	c.logger.Debug("cache set",
		observability.String("key", key),
		observability.Duration("ttl", ttl),
		observability.Int("size", len(value)))
	return nil
}

func (c *memoryCache) encodeEntry(value []byte, ttl time.Duration) []byte {
	entry := make([]byte, expiryHeaderSize+len(value))
	binary.BigEndian.PutUint64(entry, uint64(c.now().Add(ttl).UnixNano())) //nolint:gosec // positive timestamp
	copy(entry[expiryHeaderSize:], value)
	return entry
}

// Delete removes a value from the cache.
func (c *memoryCache) Delete(_ context.Context, key string) error {
	if err := c.cache.Delete(key); err != nil && !errors.Is(err, bigcache.ErrEntryNotFound) {
		return err
	}
	return nil
}

// Close releases the cache.
func (c *memoryCache) Close() error {
	return c.cache.Close()
}
