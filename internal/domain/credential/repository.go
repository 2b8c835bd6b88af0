package credential

import "context"

// Store defines persistence for credential sets. Reads and writes must be
// strongly consistent per record: the resolution rule depends on seeing the
// latest candidate markers.
type Store interface {
	// Get retrieves the credential set for a service
	Get(ctx context.Context, service string) (*Set, error)

	// Put upserts a credential set
	Put(ctx context.Context, set *Set) error

	// List retrieves all credential sets
	List(ctx context.Context) ([]*Set, error)
}

// ScheduleRepository defines persistence for rotation schedules.
type ScheduleRepository interface {
	// Get retrieves the schedule for a service
	Get(ctx context.Context, service string) (*Schedule, error)

	// Put upserts a schedule
	Put(ctx context.Context, schedule *Schedule) error

	// List retrieves all schedules
	List(ctx context.Context) ([]*Schedule, error)
}

// Resolver is the read-only view consumed by downstream clients that
// authenticate against an upstream service. It applies the grace-period
// resolution rule, so a credential swapped mid-operation is picked up on the
// next call without the client knowing a rotation happened.
type Resolver interface {
	ResolveCredential(ctx context.Context, service string) (string, error)
}
