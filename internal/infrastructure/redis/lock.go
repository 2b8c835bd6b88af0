package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrNotHeld is returned when a release or extension is attempted on a
// lease this process no longer owns (expired and possibly taken over).
var ErrNotHeld = errors.New("redis: lease not held")

// Release must check the holder token server-side. A plain DEL after expiry
// would drop a lock some other driver now owns.
var releaseLeaseScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	else
		return 0
	end
`)

// lease is a single-holder distributed lock. Each lease carries a random
// holder token so only the process that acquired it can release it.
type lease struct {
	client *redis.Client
	key    string
	token  string
	ttl    time.Duration
}

func newLease(client *redis.Client, key string, ttl time.Duration) *lease {
	return &lease{
		client: client,
		key:    fmt.Sprintf("lock:%s", key),
		token:  uuid.New().String(),
		ttl:    ttl,
	}
}

// acquire makes a single non-blocking attempt. The caller decides whether
// contention means "skip" (settlement driver) or "conflict" (rotation).
func (l *lease) acquire(ctx context.Context) (bool, error) {
	ok, err := l.client.SetNX(ctx, l.key, l.token, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire lease %s: %w", l.key, err)
	}
	return ok, nil
}

// release drops the lease if this holder still owns it.
func (l *lease) release(ctx context.Context) error {
	res, err := releaseLeaseScript.Run(ctx, l.client, []string{l.key}, l.token).Result()
	if err != nil {
		return fmt.Errorf("failed to release lease %s: %w", l.key, err)
	}
	if n, ok := res.(int64); !ok || n == 0 {
		return ErrNotHeld
	}
	return nil
}
