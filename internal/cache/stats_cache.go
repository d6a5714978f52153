package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix       = "wte:stats"
	DefaultStatsTTL = 5 * time.Minute
)

// StatsCache caches computed statistics per user. Entries of a user are
// invalidated together by bumping a per-user generation number.
type StatsCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewStatsCache creates a cache whose entries expire after ttl
func NewStatsCache(client *redis.Client, ttl time.Duration) *StatsCache {
	if ttl <= 0 {
		ttl = DefaultStatsTTL
	}
	return &StatsCache{client: client, ttl: ttl}
}

// Get loads the cached value into dst. Returns false on a cache miss.
func (c *StatsCache) Get(ctx context.Context, userID uuid.UUID, name string, dst any) (bool, error) {
	key, err := c.entryKey(ctx, userID, name)
	if err != nil {
		return false, err
	}

	raw, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read stats cache: %w", err)
	}

	if err := json.Unmarshal(raw, dst); err != nil {
		return false, fmt.Errorf("failed to decode cached stats: %w", err)
	}
	return true, nil
}

// Set stores value under name for the user
func (c *StatsCache) Set(ctx context.Context, userID uuid.UUID, name string, value any) error {
	key, err := c.entryKey(ctx, userID, name)
	if err != nil {
		return err
	}

	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode stats for cache: %w", err)
	}

	if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to write stats cache: %w", err)
	}
	return nil
}

// Invalidate drops every cached entry of the user
func (c *StatsCache) Invalidate(ctx context.Context, userID uuid.UUID) error {
	if err := c.client.Incr(ctx, generationKey(userID)).Err(); err != nil {
		return fmt.Errorf("failed to invalidate stats cache: %w", err)
	}
	return nil
}

func (c *StatsCache) entryKey(ctx context.Context, userID uuid.UUID, name string) (string, error) {
	gen, err := c.client.Get(ctx, generationKey(userID)).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return "", fmt.Errorf("failed to read stats cache generation: %w", err)
	}
	return fmt.Sprintf("%s:%s:%d:%s", keyPrefix, userID, gen, name), nil
}

func generationKey(userID uuid.UUID) string {
	return fmt.Sprintf("%s:gen:%s", keyPrefix, userID)
}
