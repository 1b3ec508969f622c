// Package cache memoises source results. Values are stored as JSON so the
// same entries work in memory and in Redis.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/xhad/crossrag/internal/types"
	"github.com/xhad/crossrag/pkg/logger"
)

var (
	_ types.Cache = (*MemoryCache)(nil)
	_ types.Cache = (*RedisCache)(nil)
)

// Key derives a cache key from a namespace and the inputs that determine the
// cached value.
func Key(namespace string, parts ...interface{}) string {
	data, err := json.Marshal(parts)
	if err != nil {
		data = []byte(fmt.Sprint(parts...))
	}
	sum := sha256.Sum256(data)
	return namespace + ":" + hex.EncodeToString(sum[:])
}

// Fetch returns the cached value for key or computes it with load. Only values
// accepted by keep are stored. Cache failures are logged and fall through to
// load. A nil cache disables caching.
func Fetch[T any](ctx context.Context, c types.Cache, key string, ttl time.Duration, load func() T, keep func(T) bool) (T, bool) {
	if c == nil {
		return load(), false
	}
	log := logger.New("cache").WithField("key", key)

	if data, ok, err := c.Get(ctx, key); err != nil {
		log.WithError(err).Warn("cache read failed")
	} else if ok {
		var v T
		if err := json.Unmarshal(data, &v); err == nil {
			log.Debug("cache hit")
			return v, true
		}
		log.Warn("discarding undecodable cache entry")
	}

	v := load()
	if keep != nil && !keep(v) {
		return v, false
	}

	data, err := json.Marshal(v)
	if err != nil {
		log.WithError(err).Warn("cache encode failed")
		return v, false
	}
	if err := c.Set(ctx, key, data, ttl); err != nil {
		log.WithError(err).Warn("cache write failed")
	}
	return v, false
}
