package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rmax-ai/sirsim/pkg/store"
)

type RedisLeaseStore struct {
	client *redis.Client
}

func NewRedisLeaseStore(client *redis.Client) *RedisLeaseStore {
	return &RedisLeaseStore{client: client}
}

func (s *RedisLeaseStore) makeKey(name string) string {
	return fmt.Sprintf("sirsim:lease:%s", name)
}

const extendScript = `
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("PEXPIRE", KEYS[1], ARGV[2])
	else
		return 0
	end
`

const releaseScript = `
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("DEL", KEYS[1])
	else
		return 0
	end
`

func (s *RedisLeaseStore) Acquire(ctx context.Context, name, holderID string, ttl time.Duration) (bool, error) {
	key := s.makeKey(name)

	ok, err := s.client.SetNX(ctx, key, holderID, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire lease: %w", err)
	}
	if ok {
		return true, nil
	}

	// Held already: extend only if the holder matches.
	res, err := s.client.Eval(ctx, extendScript, []string{key}, holderID, ttl.Milliseconds()).Result()
	if err != nil {
		return false, fmt.Errorf("failed to execute extend script: %w", err)
	}
	n, ok := res.(int64)
	if !ok {
		return false, fmt.Errorf("unexpected return type from extend script")
	}
	return n == 1, nil
}

func (s *RedisLeaseStore) Release(ctx context.Context, name, holderID string) error {
	if _, err := s.client.Eval(ctx, releaseScript, []string{s.makeKey(name)}, holderID).Result(); err != nil {
		return fmt.Errorf("failed to execute release script: %w", err)
	}
	return nil
}

func (s *RedisLeaseStore) Get(ctx context.Context, name string) (*store.Lease, error) {
	key := s.makeKey(name)

	val, err := s.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get lease: %w", err)
	}

	ttl, err := s.client.PTTL(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get lease ttl: %w", err)
	}

	return &store.Lease{
		Name:      name,
		HolderID:  val,
		ExpiresAt: time.Now().Add(ttl),
	}, nil
}
