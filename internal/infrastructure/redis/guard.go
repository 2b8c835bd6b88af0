package redis

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// LockManager hands out per-key distributed locks behind the TryLock/Unlock
// interface the application layer expects. It backs both the settlement
// driver guard and the per-service rotation lock.
type LockManager struct {
	client *redis.Client

	mu    sync.Mutex
	locks map[string]*lease
}

// NewLockManager creates a LockManager.
func NewLockManager(client *redis.Client) *LockManager {
	return &LockManager{
		client: client,
		locks:  make(map[string]*lease),
	}
}

// TryLock attempts a single non-blocking acquisition of the lock for key.
func (m *LockManager) TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	l := newLease(m.client, key, ttl)
	acquired, err := l.acquire(ctx)
	if err != nil || !acquired {
		return false, err
	}

	m.mu.Lock()
	m.locks[key] = l
	m.mu.Unlock()
	return true, nil
}

// Unlock releases the lock for key if this manager holds it. Only the
// owning token can release, so an expired lock taken over by another process
// is left alone.
func (m *LockManager) Unlock(ctx context.Context, key string) error {
	m.mu.Lock()
	l, ok := m.locks[key]
	delete(m.locks, key)
	m.mu.Unlock()

	if !ok {
		return nil
	}
	if err := l.release(ctx); err != nil && !errors.Is(err, ErrNotHeld) {
		return err
	}
	return nil
}
