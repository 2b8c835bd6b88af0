package rotation

import (
	"context"

	"github.com/skybridge/bookingd/internal/clock"
	"github.com/skybridge/bookingd/internal/domain/credential"
)

// StoreResolver resolves credentials straight from the store, applying the
// grace-period rule on every call. Consumers re-resolve before each upstream
// request instead of caching, so a mid-rotation swap is picked up on the
// next call.
type StoreResolver struct {
	store credential.Store
	clk   clock.Clock
}

// NewStoreResolver creates a StoreResolver.
func NewStoreResolver(store credential.Store, clk clock.Clock) *StoreResolver {
	return &StoreResolver{store: store, clk: clk}
}

func (r *StoreResolver) ResolveCredential(ctx context.Context, service string) (string, error) {
	set, err := r.store.Get(ctx, service)
	if err != nil {
		return "", err
	}
	return set.Resolve(r.clk.Now()), nil
}
