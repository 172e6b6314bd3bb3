package cache

import (
	"context"
	"errors"
)

// based on github.com/kittpat1413/go-common/framework/cache/cache.go

// ErrCacheMiss is returned when a key is absent and no loader can fill it.
var ErrCacheMiss = errors.New("cache miss")

// Cache is a read-through cache. Implementations decide how entries get
// populated and when they expire.
type Cache[K comparable, V any] interface {
	Get(ctx context.Context, key K) (*V, error)
	Invalidate(ctx context.Context, key K)
}
