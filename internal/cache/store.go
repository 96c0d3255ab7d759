// Package cache holds short-lived search results. The in-process store is
// the default; Redis is used when a URL is configured so several bot
// replicas share one cache.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type Store interface {
	Get(ctx context.Context, key string) (value []byte, found bool, err error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// Config selects the cache backend.
type Config struct {
	RedisURL   string        `mapstructure:"redis_url"`
	TTL        time.Duration `mapstructure:"ttl"`
	MaxEntries int           `mapstructure:"max_entries"`
	KeyPrefix  string        `mapstructure:"key_prefix"`
}

// New builds a Redis store when cfg.RedisURL is set and reachable, and a
// memory store otherwise.
func New(ctx context.Context, cfg Config) (Store, error) {
	if cfg.RedisURL == "" {
		return NewMemoryStore(cfg.MaxEntries), nil
	}

	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	store := NewRedisStore(opt, cfg.KeyPrefix)
	if err := store.Ping(ctx); err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to reach redis: %w", err)
	}
	return store, nil
}
