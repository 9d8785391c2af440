package cachestore

import (
	"context"
)

// Namespaced string cache. A miss is reported with ok=false and no error; errors are reserved for backend failures.
type CacheStore interface {
	Get(ctx context.Context, name, key string) (val string, ok bool, err error)
	Set(ctx context.Context, name, key string, val string) error
	Purge(ctx context.Context, name, key string) error
}
