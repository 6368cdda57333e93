// Package cache provides a Redis read-through cache for skill definitions.
// Redis failures are logged and degrade to the backing store; they never
// fail a lookup on their own.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/halgrim/skilldex/internal/skill"
)

const keyPrefix = "skilldex:def:"

// DefinitionCache caches skill definitions in Redis with a TTL.
type DefinitionCache struct {
	rdb    *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// New connects to Redis and returns a definition cache.
func New(redisURL string, ttl time.Duration, logger *zap.Logger) (*DefinitionCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &DefinitionCache{rdb: rdb, ttl: ttl, logger: logger}, nil
}

// Get returns the cached definition for id, or (nil, false) on a miss or
// Redis error.
func (c *DefinitionCache) Get(ctx context.Context, id string) (*skill.Definition, bool) {
	data, err := c.rdb.Get(ctx, keyPrefix+id).Bytes()
	if err == redis.Nil {
		return nil, false
	}
	if err != nil {
		c.logger.Warn("cache get failed", zap.String("skill_id", id), zap.Error(err))
		return nil, false
	}

	var def skill.Definition
	if err := json.Unmarshal(data, &def); err != nil {
		c.logger.Warn("cache entry corrupt, evicting", zap.String("skill_id", id), zap.Error(err))
		c.rdb.Del(ctx, keyPrefix+id)
		return nil, false
	}
	return &def, true
}

// Put stores the definition under its id. Errors are logged, not returned.
func (c *DefinitionCache) Put(ctx context.Context, def *skill.Definition) {
	data, err := json.Marshal(def)
	if err != nil {
		c.logger.Warn("cache marshal failed", zap.String("skill_id", def.ID), zap.Error(err))
		return
	}
	if err := c.rdb.Set(ctx, keyPrefix+def.ID, data, c.ttl).Err(); err != nil {
		c.logger.Warn("cache put failed", zap.String("skill_id", def.ID), zap.Error(err))
	}
}

// Invalidate drops the cached entry for id.
func (c *DefinitionCache) Invalidate(ctx context.Context, id string) {
	if err := c.rdb.Del(ctx, keyPrefix+id).Err(); err != nil {
		c.logger.Warn("cache invalidate failed", zap.String("skill_id", id), zap.Error(err))
	}
}

// Flush drops every cached definition.
func (c *DefinitionCache) Flush(ctx context.Context) error {
	var cursor uint64
	for {
		keys, next, err := c.rdb.Scan(ctx, cursor, keyPrefix+"*", 100).Result()
		if err != nil {
			return fmt.Errorf("cache flush scan: %w", err)
		}
		if len(keys) > 0 {
			if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("cache flush del: %w", err)
			}
		}
		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}

// Close releases the Redis connection.
func (c *DefinitionCache) Close() error {
	return c.rdb.Close()
}
