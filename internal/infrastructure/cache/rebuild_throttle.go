package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/strata/backend/internal/application/reconcile"
)

// RedisRebuildThrottle rate-limits balance rebuilds per unit across
// instances. A SETNX key per (tenant, unit) holds the lock for the
// configured window; Acquire returns false while the key exists.
type RedisRebuildThrottle struct {
	client    *redis.Client
	keyPrefix string
	window    time.Duration
}

// NewRedisRebuildThrottle creates a throttle backed by an existing Redis client.
func NewRedisRebuildThrottle(client *redis.Client, window time.Duration) *RedisRebuildThrottle {
	if window <= 0 {
		window = 5 * time.Minute
	}
	return &RedisRebuildThrottle{
		client:    client,
		keyPrefix: "reconcile:rebuild:",
		window:    window,
	}
}

func (t *RedisRebuildThrottle) Acquire(ctx context.Context, tenantID, unitID uuid.UUID) (bool, error) {
	key := fmt.Sprintf("%s%s:%s", t.keyPrefix, tenantID, unitID)
	ok, err := t.client.SetNX(ctx, key, "1", t.window).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire rebuild throttle: %w", err)
	}
	return ok, nil
}

var _ reconcile.RebuildThrottle = (*RedisRebuildThrottle)(nil)

// InMemoryRebuildThrottle is a process-local throttle for single-instance
// deployments and tests. State is not shared across processes.
type InMemoryRebuildThrottle struct {
	mu     sync.Mutex
	last   map[string]time.Time
	window time.Duration
}

// NewInMemoryRebuildThrottle creates an in-memory rebuild throttle.
func NewInMemoryRebuildThrottle(window time.Duration) *InMemoryRebuildThrottle {
	if window <= 0 {
		window = 5 * time.Minute
	}
	return &InMemoryRebuildThrottle{
		last:   make(map[string]time.Time),
		window: window,
	}
}

func (t *InMemoryRebuildThrottle) Acquire(ctx context.Context, tenantID, unitID uuid.UUID) (bool, error) {
	key := tenantID.String() + ":" + unitID.String()

	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now()
	if at, ok := t.last[key]; ok && now.Sub(at) < t.window {
		return false, nil
	}
	t.last[key] = now
	return true, nil
}

var _ reconcile.RebuildThrottle = (*InMemoryRebuildThrottle)(nil)
