package cache

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xhad/crossrag/internal/models"
)

func TestMemoryCache(t *testing.T) {
	ctx := context.Background()
	c := NewMemory(2)

	require.NoError(t, c.Set(ctx, "a", []byte("1"), 0))
	require.NoError(t, c.Set(ctx, "b", []byte("2"), 0))

	v, ok, err := c.Get(ctx, "a")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("1"), v)

	// "b" is now least recently used.
	require.NoError(t, c.Set(ctx, "c", []byte("3"), 0))
	_, ok, _ = c.Get(ctx, "b")
	assert.False(t, ok)
	_, ok, _ = c.Get(ctx, "a")
	assert.True(t, ok)
	assert.Equal(t, 2, c.Len())

	require.NoError(t, c.Clear(ctx))
	assert.Zero(t, c.Len())
	_, ok, _ = c.Get(ctx, "a")
	assert.False(t, ok)
}

func TestMemoryCacheTTL(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	c := NewMemory(10)
	c.now = func() time.Time { return now }

	require.NoError(t, c.Set(ctx, "k", []byte("v"), time.Hour))

	now = now.Add(59 * time.Minute)
	_, ok, _ := c.Get(ctx, "k")
	assert.True(t, ok)

	now = now.Add(2 * time.Minute)
	_, ok, _ = c.Get(ctx, "k")
	assert.False(t, ok)
	assert.Zero(t, c.Len())
}

func TestMemoryCacheOverwrite(t *testing.T) {
	ctx := context.Background()
	c := NewMemory(1)

	require.NoError(t, c.Set(ctx, "k", []byte("old"), 0))
	require.NoError(t, c.Set(ctx, "k", []byte("new"), 0))

	v, ok, _ := c.Get(ctx, "k")
	assert.True(t, ok)
	assert.Equal(t, []byte("new"), v)
	assert.Equal(t, 1, c.Len())
}

func TestKey(t *testing.T) {
	a := Key("documents", "custody", 20, 0.3)
	assert.Equal(t, a, Key("documents", "custody", 20, 0.3))
	assert.NotEqual(t, a, Key("documents", "custody", 21, 0.3))
	assert.NotEqual(t, a, Key("graph", "custody", 20, 0.3))
	assert.Regexp(t, `^documents:[0-9a-f]{64}$`, a)
}

func TestFetch(t *testing.T) {
	ctx := context.Background()
	c := NewMemory(10)
	calls := 0
	load := func() *models.DocumentResult {
		calls++
		return &models.DocumentResult{Status: models.StatusSuccess, ChunksFound: 3}
	}
	keep := func(r *models.DocumentResult) bool { return r.OK() }

	v, hit := Fetch(ctx, c, "k", time.Hour, load, keep)
	assert.False(t, hit)
	assert.Equal(t, 3, v.ChunksFound)

	v, hit = Fetch(ctx, c, "k", time.Hour, load, keep)
	assert.True(t, hit)
	assert.Equal(t, 3, v.ChunksFound)
	assert.Equal(t, 1, calls)
}

func TestFetchSkipsRejectedValues(t *testing.T) {
	ctx := context.Background()
	c := NewMemory(10)
	calls := 0
	load := func() *models.DocumentResult {
		calls++
		return &models.DocumentResult{Status: models.StatusError, Error: "timeout"}
	}
	keep := func(r *models.DocumentResult) bool { return r.OK() }

	Fetch(ctx, c, "k", time.Hour, load, keep)
	_, hit := Fetch(ctx, c, "k", time.Hour, load, keep)
	assert.False(t, hit)
	assert.Equal(t, 2, calls)
	assert.Zero(t, c.Len())
}

func TestFetchWithoutCache(t *testing.T) {
	calls := 0
	load := func() int { calls++; return 7 }

	v, hit := Fetch(context.Background(), nil, "k", time.Hour, load, nil)
	assert.Equal(t, 7, v)
	assert.False(t, hit)
	Fetch(context.Background(), nil, "k", time.Hour, load, nil)
	assert.Equal(t, 2, calls)
}

type brokenCache struct{}

func (brokenCache) Get(context.Context, string) ([]byte, bool, error) {
	return nil, false, errors.New("connection refused")
}

func (brokenCache) Set(context.Context, string, []byte, time.Duration) error {
	return errors.New("connection refused")
}

func (brokenCache) Clear(context.Context) error { return nil }

func TestFetchFallsThroughOnCacheErrors(t *testing.T) {
	v, hit := Fetch(context.Background(), brokenCache{}, "k", time.Hour, func() string { return "fresh" }, nil)
	assert.Equal(t, "fresh", v)
	assert.False(t, hit)
}

func TestRedisCache(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}

	ctx := context.Background()
	c, err := NewRedis(ctx, RedisConfig{Address: addr, Prefix: "crossrag-test:"})
	require.NoError(t, err)
	defer c.Close()

	other := NewRedisFromClient(redis.NewClient(&redis.Options{Addr: addr}), "other-test:")
	defer other.Close()
	require.NoError(t, other.Set(ctx, "keep", []byte("x"), time.Minute))

	require.NoError(t, c.Set(ctx, "k", []byte("v"), time.Minute))
	v, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("v"), v)

	require.NoError(t, c.Clear(ctx))
	_, ok, err = c.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = other.Get(ctx, "keep")
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, other.Clear(ctx))
}
