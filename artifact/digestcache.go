package artifact

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/go-redis/redis/v7"

	"github.com/synapsenet/miner/internal/minerlog"
)

// DigestCache maps sha256(locator) -> local path in Redis, letting a
// second task that references an already-downloaded artifact skip the
// network entirely (spec §4.3 added). Absence of a reachable Redis is
// non-fatal; every method degrades to a cache miss rather than an error.
type DigestCache struct {
	client *redis.Client
	log    minerlog.Logger
}

// NewDigestCache connects to addr; connectivity is not verified here, so
// a misconfigured/unreachable Redis only shows up as cache misses, never
// as a startup failure (the cache is best-effort per spec).
func NewDigestCache(addr string) *DigestCache {
	if addr == "" {
		return nil
	}
	return &DigestCache{
		client: redis.NewClient(&redis.Options{Addr: addr, DialTimeout: 2 * time.Second}),
		log:    minerlog.Module("artifact.digestcache"),
	}
}

func cacheKey(locator string) string {
	sum := sha256.Sum256([]byte(locator))
	return "artifact:digest:" + hex.EncodeToString(sum[:])
}

// Lookup returns the cached local path for locator, if any.
func (c *DigestCache) Lookup(locator string) (string, bool) {
	if c == nil {
		return "", false
	}
	val, err := c.client.WithContext(context.Background()).Get(cacheKey(locator)).Result()
	if err == redis.Nil {
		return "", false
	}
	if err != nil {
		c.log.Warn("redis lookup failed, treating as miss", "err", err)
		return "", false
	}
	return val, true
}

// Store records that locator's content now lives at path.
func (c *DigestCache) Store(locator, path string) {
	if c == nil {
		return
	}
	if err := c.client.WithContext(context.Background()).Set(cacheKey(locator), path, 30*24*time.Hour).Err(); err != nil {
		c.log.Warn("redis store failed, continuing without cache entry", "err", err)
	}
}
