package cache

import (
	"context"
	"time"
)

// Cache is a small key/value store. A ttl of zero means no expiry.
type Cache interface {
	GetString(ctx context.Context, key string) (val string, hit bool, err error)
	SetString(ctx context.Context, key, val string, ttl time.Duration) error
	GetJSON(ctx context.Context, key string, dst any) (hit bool, err error)
	SetJSON(ctx context.Context, key string, val any, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
}
