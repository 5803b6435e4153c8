package auth

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

// Revocations records logged-out token ids until the tokens would have
// expired anyway.
type Revocations interface {
	Revoke(ctx context.Context, tokenID string, expiresAt time.Time) error
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
	// Purge drops entries whose tokens have expired and reports how many.
	Purge(ctx context.Context, now time.Time) (int, error)
}

// MemoryRevocations keeps revocations in process memory.
type MemoryRevocations struct {
	mu      sync.RWMutex
	entries map[string]time.Time
}

var _ Revocations = (*MemoryRevocations)(nil)

// NewMemoryRevocations returns an empty list.
func NewMemoryRevocations() *MemoryRevocations {
	return &MemoryRevocations{entries: make(map[string]time.Time)}
}

func (m *MemoryRevocations) Revoke(_ context.Context, tokenID string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[tokenID] = expiresAt
	return nil
}

func (m *MemoryRevocations) IsRevoked(_ context.Context, tokenID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.entries[tokenID]
	return ok, nil
}

func (m *MemoryRevocations) Purge(_ context.Context, now time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, exp := range m.entries {
		if !exp.After(now) {
			delete(m.entries, id)
			n++
		}
	}
	return n, nil
}

// Len reports the number of tracked revocations.
func (m *MemoryRevocations) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// RedisRevocations shares revocations across instances. Keys expire with the
// token so Purge has nothing to do.
type RedisRevocations struct {
	client *redis.Client
	prefix string
}

var _ Revocations = (*RedisRevocations)(nil)

// NewRedisRevocations wraps a redis client.
func NewRedisRevocations(client *redis.Client) *RedisRevocations {
	return &RedisRevocations{client: client, prefix: "groupfit:revoked:"}
}

func (r *RedisRevocations) Revoke(ctx context.Context, tokenID string, expiresAt time.Time) error {
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		return nil
	}
	return r.client.Set(ctx, r.prefix+tokenID, 1, ttl).Err()
}

func (r *RedisRevocations) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	err := r.client.Get(ctx, r.prefix+tokenID).Err()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (r *RedisRevocations) Purge(context.Context, time.Time) (int, error) {
	return 0, nil
}

// Ping checks the redis connection.
func (r *RedisRevocations) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
