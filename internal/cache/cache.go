// Package cache provides JSON value caching with a shared Redis backend and
// an in-process fallback.
package cache

import (
	"context"
	"time"
)

// Store is a JSON value cache. Get decodes into out and reports whether the
// key was present.
type Store interface {
	Get(ctx context.Context, key string, out interface{}) (bool, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	Ping(ctx context.Context) error
	Close() error
}
