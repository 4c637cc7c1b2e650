package autochecks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisStore is a Redis implementation of Store. Each host's autochecks are
// stored as one JSON array under prefix + host name.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// RedisOption configures a RedisStore.
type RedisOption func(*RedisStore)

// WithKeyPrefix sets a prefix for all autocheck keys in Redis.
func WithKeyPrefix(prefix string) RedisOption {
	return func(s *RedisStore) {
		s.prefix = prefix
	}
}

// NewRedisStore creates a new Redis-backed autochecks store.
func NewRedisStore(client *redis.Client, opts ...RedisOption) *RedisStore {
	s := &RedisStore{
		client: client,
		prefix: "autochecks:",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Key returns the Redis key holding a host's autochecks.
func (s *RedisStore) Key(hostName string) string {
	return s.prefix + hostName
}

// Autochecks implements Store.
func (s *RedisStore) Autochecks(ctx context.Context, hostName string) ([]Entry, error) {
	data, err := s.client.Get(ctx, s.Key(hostName)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read autochecks of %s: %w", hostName, err)
	}

	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("decode autochecks of %s: %w", hostName, err)
	}
	return entries, nil
}

// Ping checks if the Redis connection is healthy.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
