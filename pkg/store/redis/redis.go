// Package redis caches ensemble summaries and holds experiment leases in Redis.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rmax-ai/sirsim/pkg/aggregate"
)

const summariesSet = "sirsim:summaries"

// SummaryCache stores aggregate.Summary values keyed by config fingerprint.
// A zero TTL keeps entries until Clear.
type SummaryCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewSummaryCache(client *redis.Client, ttl time.Duration) *SummaryCache {
	return &SummaryCache{client: client, ttl: ttl}
}

func (c *SummaryCache) makeKey(fingerprint string) string {
	return fmt.Sprintf("sirsim:summary:%s", fingerprint)
}

// Entry is a cached summary together with the run that produced it.
type Entry struct {
	RunID    string             `json:"run_id"`
	CachedAt time.Time          `json:"cached_at"`
	Summary  *aggregate.Summary `json:"summary"`
}

func (c *SummaryCache) Set(ctx context.Context, fingerprint string, entry Entry) error {
	key := c.makeKey(fingerprint)
	if entry.CachedAt.IsZero() {
		entry.CachedAt = time.Now().UTC()
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal summary: %w", err)
	}
	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to SET key %s: %w", key, err)
	}
	if err := c.client.SAdd(ctx, summariesSet, key).Err(); err != nil {
		return fmt.Errorf("failed to SADD key %s to set: %w", key, err)
	}
	return nil
}

// Get returns the cached entry; ok is false on a miss.
func (c *SummaryCache) Get(ctx context.Context, fingerprint string) (entry Entry, ok bool, err error) {
	key := c.makeKey(fingerprint)
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Entry{}, false, nil
		}
		return Entry{}, false, fmt.Errorf("failed to GET key %s: %w", key, err)
	}
	if err := json.Unmarshal(data, &entry); err != nil {
		return Entry{}, false, fmt.Errorf("failed to unmarshal summary from key %s: %w", key, err)
	}
	return entry, true, nil
}

func (c *SummaryCache) Delete(ctx context.Context, fingerprint string) error {
	key := c.makeKey(fingerprint)
	if err := c.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("failed to DEL key %s: %w", key, err)
	}
	return c.client.SRem(ctx, summariesSet, key).Err()
}

// Clear drops every cached summary.
func (c *SummaryCache) Clear(ctx context.Context) error {
	keys, err := c.client.SMembers(ctx, summariesSet).Result()
	if err != nil {
		return fmt.Errorf("failed to SMEMBERS %s: %w", summariesSet, err)
	}
	if len(keys) > 0 {
		if err := c.client.Del(ctx, keys...).Err(); err != nil {
			return fmt.Errorf("failed to DEL keys: %w", err)
		}
	}
	if err := c.client.Del(ctx, summariesSet).Err(); err != nil {
		return fmt.Errorf("failed to DEL set %s: %w", summariesSet, err)
	}
	return nil
}
