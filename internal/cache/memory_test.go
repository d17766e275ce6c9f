package cache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/alipaykernel/internal/config"
	"github.com/vyrodovalexey/alipaykernel/internal/observability"
)

func newTestMemoryCache(t *testing.T, ttl time.Duration) *memoryCache {
	t.Helper()

	cfg := &config.CertCacheConfig{
		Enabled: true,
		Type:    config.CacheTypeMemory,
		TTL:     config.Duration(ttl),
	}

	c, err := newMemoryCache(cfg, observability.NopLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestMemoryCache_SetAndGet(t *testing.T) {
	c := newTestMemoryCache(t, time.Hour)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "cert:abc", []byte("-----BEGIN CERTIFICATE-----"), time.Minute))

	value, err := c.Get(ctx, "cert:abc")
	require.NoError(t, err)
	assert.Equal(t, []byte("-----BEGIN CERTIFICATE-----"), value)
}

func TestMemoryCache_Get_Miss(t *testing.T) {
	c := newTestMemoryCache(t, time.Hour)

	_, err := c.Get(context.Background(), "nonexistent")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestMemoryCache_Get_Expired(t *testing.T) {
	c := newTestMemoryCache(t, time.Hour)
	ctx := context.Background()

	now := time.Now()
	c.now = func() time.Time { return now }
	require.NoError(t, c.Set(ctx, "k", []byte("v"), time.Minute))

	c.now = func() time.Time { return now.Add(59 * time.Second) }
	_, err := c.Get(ctx, "k")
	require.NoError(t, err)

	c.now = func() time.Time { return now.Add(time.Minute) }
	_, err = c.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestMemoryCache_Set_TTLCappedByLifeWindow(t *testing.T) {
	c := newTestMemoryCache(t, time.Minute)
	ctx := context.Background()

	now := time.Now()
	c.now = func() time.Time { return now }
	require.NoError(t, c.Set(ctx, "k", []byte("v"), time.Hour))

	c.now = func() time.Time { return now.Add(2 * time.Minute) }
	_, err := c.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestMemoryCache_Get_ReturnsCopy(t *testing.T) {
	c := newTestMemoryCache(t, time.Hour)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", []byte("value"), 0))

	first, err := c.Get(ctx, "k")
	require.NoError(t, err)
	first[0] = 'X'

	second, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("value"), second)
}

func TestMemoryCache_Delete(t *testing.T) {
	c := newTestMemoryCache(t, time.Hour)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", []byte("v"), 0))
	require.NoError(t, c.Delete(ctx, "k"))
	require.NoError(t, c.Delete(ctx, "k"), "deleting a missing key is not an error")

	_, err := c.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestMemoryCache_Concurrent(t *testing.T) {
	c := newTestMemoryCache(t, time.Hour)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := string(rune('a' + i))
			assert.NoError(t, c.Set(ctx, key, []byte(key), 0))
			v, err := c.Get(ctx, key)
			assert.NoError(t, err)
			assert.Equal(t, []byte(key), v)
		}(i)
	}
	wg.Wait()
}
