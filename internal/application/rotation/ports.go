package rotation

import (
	"context"
	"time"
)

// Locker serializes rotation per service so two schedulers cannot rotate the
// same credential concurrently. Implemented with a Redis lock in production.
type Locker interface {
	// TryLock acquires the lock for the key, returning false on contention.
	TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error)
	// Unlock releases a previously acquired lock.
	Unlock(ctx context.Context, key string) error
}

// Issuer obtains a fresh credential from an upstream service's key API.
type Issuer interface {
	Issue(ctx context.Context, service string) (string, error)
}

// Revoker invalidates a superseded credential at the upstream service.
type Revoker interface {
	Revoke(ctx context.Context, service, cred string) error
}
