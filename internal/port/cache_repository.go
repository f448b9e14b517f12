package port

import (
	"context"
	"time"
)

type CacheRepository interface {
	// Reserve sets key if absent, returns false if it already exists
	Reserve(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// Release deletes key so it can be reserved again
	Release(ctx context.Context, key string) error
}
