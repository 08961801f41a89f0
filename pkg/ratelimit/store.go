// Package ratelimit implements per-user, per-trigger fixed-window rate limiting.
package ratelimit

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// CounterStore atomically increments the counter of one window.
// Implementations must never lose an increment under concurrency.
type CounterStore interface {
	// Increment adds one to key and returns the new count. The counter expires at expiresAt.
	Increment(ctx context.Context, key string, expiresAt time.Time) (int64, error)
}

type memoryCounter struct {
	count     int64
	expiresAt time.Time
}

// MemoryStore keeps counters in process memory. Suitable for single-instance deployments and tests.
type MemoryStore struct {
	mu       sync.Mutex
	counters map[string]*memoryCounter
	Now      func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		counters: make(map[string]*memoryCounter),
		Now:      time.Now,
	}
}

func (m *MemoryStore) Increment(_ context.Context, key string, expiresAt time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	counter, ok := m.counters[key]
	if !ok || !m.Now().Before(counter.expiresAt) {
		counter = &memoryCounter{expiresAt: expiresAt}
		m.counters[key] = counter
	}

	counter.count++

	return counter.count, nil
}

// Prune drops expired counters and reports how many were removed.
func (m *MemoryStore) Prune() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.Now()
	removed := 0

	for key, counter := range m.counters {
		if !now.Before(counter.expiresAt) {
			delete(m.counters, key)

			removed++
		}
	}

	return removed
}

// Len returns the number of live counters.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.counters)
}

// RedisStore shares counters across instances. INCR and PEXPIREAT run in one MULTI/EXEC.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "ratelimit"
	}

	return &RedisStore{client: client, prefix: strings.TrimSuffix(prefix, ":")}
}

// NewRedisStoreFromURL parses a redis:// URL and checks connectivity.
func NewRedisStoreFromURL(ctx context.Context, redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	client := redis.NewClient(opts)

	err = client.Ping(ctx).Err()
	if err != nil {
		_ = client.Close()

		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return NewRedisStore(client, ""), nil
}

func (r *RedisStore) Increment(ctx context.Context, key string, expiresAt time.Time) (int64, error) {
	fullKey := r.prefix + ":" + key

	var incr *redis.IntCmd

	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, fullKey)
		pipe.PExpireAt(ctx, fullKey, expiresAt)

		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to increment %s: %w", fullKey, err)
	}

	return incr.Val(), nil
}

func (r *RedisStore) HealthCheck(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}
