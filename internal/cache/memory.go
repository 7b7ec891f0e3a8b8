package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// MemoryStore is an in-process Store backed by an expirable LRU. It is used
// when no Redis URL is configured and as the fast layer in front of Redis
// for hot keys. Values are stored as JSON so Get semantics match RedisStore.
type MemoryStore struct {
	lru *expirable.LRU[string, []byte]
}

// NewMemoryStore creates an in-process cache holding up to size entries with
// the given default TTL.
func NewMemoryStore(size int, ttl time.Duration) *MemoryStore {
	if size <= 0 {
		size = 1024
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &MemoryStore{lru: expirable.NewLRU[string, []byte](size, nil, ttl)}
}

// Get implements Store.
func (s *MemoryStore) Get(_ context.Context, key string, out interface{}) (bool, error) {
	data, ok := s.lru.Get(key)
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		s.lru.Remove(key)
		return false, nil
	}
	return true, nil
}

// Set implements Store. The per-entry ttl is ignored; expirable.LRU applies
// a single TTL to every entry.
func (s *MemoryStore) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	s.lru.Add(key, data)
	return nil
}

// Delete implements Store.
func (s *MemoryStore) Delete(_ context.Context, keys ...string) error {
	for _, k := range keys {
		s.lru.Remove(k)
	}
	return nil
}

// Ping implements Store.
func (s *MemoryStore) Ping(context.Context) error { return nil }

// Close implements Store.
func (s *MemoryStore) Close() error { return nil }
