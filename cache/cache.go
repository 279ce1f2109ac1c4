package cache

import (
	"context"
	"time"
)

// DefaultTTL is the default lifetime of a cached response.
const DefaultTTL = 24 * time.Hour

// Store is the semantic cache backend. Get returns (value, found, error);
// a miss is not an error. Implementations are safe for concurrent use and
// last-writer-wins on the same key.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Close() error
}
