// Package cache memoizes fetch results in memory or in Redis.
//
// The in-memory LRU automatically evicts the least recently accessed
// entries. The Redis cache is shared between replicas and expires entries
// after a TTL.
package cache

import (
	"context"
	"encoding/json"
	"fmt"

	lru "github.com/hashicorp/golang-lru"
)

// Cache stores values of one type by string key.
type Cache[V any] interface {
	// Get returns the cached value and whether it was present.
	Get(ctx context.Context, key string) (V, bool, error)
	Add(ctx context.Context, key string, value V) error
	// Purge drops every entry.
	Purge(ctx context.Context) error
}

// Key builds a cache key from a namespace and any JSON-encodable value.
func Key(namespace string, v interface{}) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to encode cache key: %w", err)
	}
	return fmt.Sprintf("%s:%s", namespace, b), nil
}

// LRU is a bounded in-process cache.
type LRU[V any] struct {
	cache *lru.Cache
}

// NewLRU sets up an in-memory LRU cache holding at most size entries.
func NewLRU[V any](size int) (*LRU[V], error) {
	c, err := lru.New(size)
	if err != nil {
		return nil, err
	}
	return &LRU[V]{cache: c}, nil
}

func (l *LRU[V]) Get(_ context.Context, key string) (V, bool, error) {
	var zero V
	v, ok := l.cache.Get(key)
	if !ok {
		return zero, false, nil
	}
	typed, ok := v.(V)
	if !ok {
		return zero, false, fmt.Errorf("cache entry %q has type %T", key, v)
	}
	return typed, true, nil
}

func (l *LRU[V]) Add(_ context.Context, key string, value V) error {
	l.cache.Add(key, value)
	return nil
}

func (l *LRU[V]) Purge(_ context.Context) error {
	l.cache.Purge()
	return nil
}

// Len reports the number of cached entries.
func (l *LRU[V]) Len() int {
	return l.cache.Len()
}

var _ Cache[string] = (*LRU[string])(nil)
