package state

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore implements Store using Redis. The state:<id> keyspace is
// stored under an optional deployment prefix; values are JSON entries.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// RedisOptions configuration for the Redis connection.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	Prefix   string        // key prefix, default "spectyra:"
	TTL      time.Duration // default DefaultTTL
}

// NewRedisStore creates a new Redis-backed conversation state store.
func NewRedisStore(opts RedisOptions) *RedisStore {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	prefix := opts.Prefix
	if prefix == "" {
		prefix = "spectyra:"
	}
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	return &RedisStore{client: client, prefix: prefix, ttl: ttl}
}

func (s *RedisStore) key(conversationID string) string {
	return s.prefix + Key(conversationID)
}

// Get loads and decodes the state entry for a conversation.
func (s *RedisStore) Get(ctx context.Context, conversationID string) (Entry, bool, error) {
	data, err := s.client.Get(ctx, s.key(conversationID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return Entry{}, false, nil
		}
		return Entry{}, false, fmt.Errorf("failed to read conversation state: %w", err)
	}

	var e Entry
	if err := json.Unmarshal(data, &e); err != nil {
		return Entry{}, false, fmt.Errorf("failed to unmarshal conversation state: %w", err)
	}
	return e, true, nil
}

// Set encodes and stores the state entry with ttl (store default when <= 0).
func (s *RedisStore) Set(ctx context.Context, conversationID string, e Entry, ttl time.Duration) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal conversation state: %w", err)
	}
	if ttl <= 0 {
		ttl = s.ttl
	}
	if err := s.client.Set(ctx, s.key(conversationID), data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to write conversation state: %w", err)
	}
	return nil
}

// Close closes the underlying Redis client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
