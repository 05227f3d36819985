// Package cachemanager caches answers in memory so repeating a question does
// not rerun the research pipeline.
package cachemanager

import (
	"context"
	"time"
)

// CacheManager stores values under string-like keys with a per-entry TTL.
type CacheManager[K ~string, V any] interface {
	Get(ctx context.Context, key K) (V, bool)
	GetWithRefresh(ctx context.Context, key K, ttl time.Duration) (V, bool)
	Set(ctx context.Context, key K, value V, ttl time.Duration)
	Delete(ctx context.Context, keys ...K)
	Flush(ctx context.Context)
}
