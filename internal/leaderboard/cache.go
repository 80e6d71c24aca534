package leaderboard

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// cacheSize is how many entries are cached per scope; top-N requests up
// to this size are served from cache.
const cacheSize = 50

const cacheKeyFmt = "leaderboard:top:%s"

// Cache is a cache-aside layer over the rank projection. Read paths
// tolerate stale data; the cache is invalidated on every increment.
type Cache struct {
	rdb *goredis.Client
	ttl time.Duration
	log *zap.Logger
}

// NewCache returns a leaderboard cache. redisURL empty disables caching
// (a nil Cache is safe to use).
func NewCache(redisURL string, ttl time.Duration, log *zap.Logger) (*Cache, error) {
	if redisURL == "" {
		return nil, nil
	}
	opts, err := goredis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return &Cache{rdb: goredis.NewClient(opts), ttl: ttl, log: log}, nil
}

// GetTop returns the cached entries for a scope, or (nil, false) on miss.
func (c *Cache) GetTop(ctx context.Context, scope string) ([]Entry, bool) {
	if c == nil {
		return nil, false
	}
	raw, err := c.rdb.Get(ctx, fmt.Sprintf(cacheKeyFmt, scope)).Result()
	if err != nil {
		if err != goredis.Nil {
			c.log.Warn("leaderboard cache read failed", zap.String("scope", scope), zap.Error(err))
		}
		return nil, false
	}
	var entries []Entry
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		c.log.Warn("leaderboard cache corrupted", zap.String("scope", scope), zap.Error(err))
		return nil, false
	}
	return entries, true
}

// SetTop stores the entries for a scope with the configured TTL.
func (c *Cache) SetTop(ctx context.Context, scope string, entries []Entry) {
	if c == nil {
		return
	}
	raw, err := json.Marshal(entries)
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, fmt.Sprintf(cacheKeyFmt, scope), raw, c.ttl).Err(); err != nil {
		c.log.Warn("leaderboard cache write failed", zap.String("scope", scope), zap.Error(err))
	}
}

// Invalidate drops the cached entries for a scope.
func (c *Cache) Invalidate(ctx context.Context, scope string) {
	if c == nil {
		return
	}
	if err := c.rdb.Del(ctx, fmt.Sprintf(cacheKeyFmt, scope)).Err(); err != nil {
		c.log.Warn("leaderboard cache invalidation failed", zap.String("scope", scope), zap.Error(err))
	}
}
