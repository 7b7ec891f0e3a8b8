// Package queue schedules the recurring polling jobs that pull orders and
// results from the Lab, one job per integration per queue.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/antech-v6-engine/internal/domain"
)

// Store persists scheduled jobs. A job is one integration's MessageData
// keyed by integration id within a queue.
type Store interface {
	// Add registers a job, reporting false when the integration is already
	// scheduled.
	Add(ctx context.Context, queue, integrationID string, data *domain.MessageData) (bool, error)
	Remove(ctx context.Context, queue, integrationID string) error
	List(ctx context.Context, queue string) (map[string]domain.MessageData, error)
	Count(ctx context.Context, queue string) (int, error)
}

// RedisStore keeps jobs in a Redis hash per queue, so scheduling survives
// restarts and is shared between engine instances.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore creates a job store on an existing Redis connection.
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "engine"
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) key(queue string) string {
	return s.prefix + ":jobs:" + queue
}

// Add implements Store using HSetNX, so re-registering an integration is a
// no-op.
func (s *RedisStore) Add(ctx context.Context, queue, integrationID string, data *domain.MessageData) (bool, error) {
	encoded, err := json.Marshal(data)
	if err != nil {
		return false, fmt.Errorf("failed to encode job for %s: %w", integrationID, err)
	}
	added, err := s.client.HSetNX(ctx, s.key(queue), integrationID, encoded).Result()
	if err != nil {
		return false, fmt.Errorf("failed to add job for %s to %s: %w", integrationID, queue, err)
	}
	return added, nil
}

// Remove implements Store.
func (s *RedisStore) Remove(ctx context.Context, queue, integrationID string) error {
	if err := s.client.HDel(ctx, s.key(queue), integrationID).Err(); err != nil {
		return fmt.Errorf("failed to remove job for %s from %s: %w", integrationID, queue, err)
	}
	return nil
}

// List implements Store. Undecodable entries are skipped.
func (s *RedisStore) List(ctx context.Context, queue string) (map[string]domain.MessageData, error) {
	entries, err := s.client.HGetAll(ctx, s.key(queue)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs in %s: %w", queue, err)
	}
	jobs := make(map[string]domain.MessageData, len(entries))
	for id, raw := range entries {
		var data domain.MessageData
		if err := json.Unmarshal([]byte(raw), &data); err != nil {
			continue
		}
		jobs[id] = data
	}
	return jobs, nil
}

// Count implements Store.
func (s *RedisStore) Count(ctx context.Context, queue string) (int, error) {
	n, err := s.client.HLen(ctx, s.key(queue)).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to count jobs in %s: %w", queue, err)
	}
	return int(n), nil
}

// MemoryStore is an in-process Store for tests and single-instance runs.
type MemoryStore struct {
	mu   sync.RWMutex
	jobs map[string]map[string]domain.MessageData
}

// NewMemoryStore creates an empty in-process job store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{jobs: make(map[string]map[string]domain.MessageData)}
}

// Add implements Store.
func (s *MemoryStore) Add(_ context.Context, queue, integrationID string, data *domain.MessageData) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.jobs[queue] == nil {
		s.jobs[queue] = make(map[string]domain.MessageData)
	}
	if _, exists := s.jobs[queue][integrationID]; exists {
		return false, nil
	}
	s.jobs[queue][integrationID] = *data
	return true, nil
}

// Remove implements Store.
func (s *MemoryStore) Remove(_ context.Context, queue, integrationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.jobs[queue], integrationID)
	return nil
}

// List implements Store.
func (s *MemoryStore) List(_ context.Context, queue string) (map[string]domain.MessageData, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	jobs := make(map[string]domain.MessageData, len(s.jobs[queue]))
	for id, data := range s.jobs[queue] {
		jobs[id] = data
	}
	return jobs, nil
}

// Count implements Store.
func (s *MemoryStore) Count(_ context.Context, queue string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.jobs[queue]), nil
}
