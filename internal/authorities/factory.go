package authorities

import (
	"time"

	"github.com/sony/gobreaker/v2"
	domainErrors "github.com/skybridge/bookingd/internal/domain/errors"
)

// Factory pairs each external authority with its own circuit breaker so a
// failing payment provider cannot trip calls to the inventory provider.
type Factory struct {
	payment   PaymentAuthority
	inventory InventoryAuthority
	breakers  map[string]*gobreaker.CircuitBreaker[string]
}

// NewFactory wires the configured authorities. Passing nil for either falls
// back to a mock, which keeps local development working without live
// provider credentials.
func NewFactory(payment PaymentAuthority, inventory InventoryAuthority) *Factory {
	if payment == nil {
		payment = NewMockPaymentAuthority("stripe", WithPaymentLatency(200*time.Millisecond))
	}
	if inventory == nil {
		inventory = NewMockInventoryAuthority("duffel", WithInventoryLatency(300*time.Millisecond))
	}

	f := &Factory{
		payment:   payment,
		inventory: inventory,
		breakers:  make(map[string]*gobreaker.CircuitBreaker[string]),
	}
	f.breakers[payment.Name()] = newBreaker(payment.Name())
	f.breakers[inventory.Name()] = newBreaker(inventory.Name())
	return f
}

func newBreaker(name string) *gobreaker.CircuitBreaker[string] {
	return gobreaker.NewCircuitBreaker[string](gobreaker.Settings{
		Name:        name,
		MaxRequests: 10,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 10 && failureRatio >= 0.6
		},
		IsSuccessful: func(err error) bool {
			// Business declines are valid provider responses; only infra
			// failures count toward tripping the breaker.
			return err == nil || !domainErrors.Transient(err)
		},
	})
}

// Payment returns the payment authority and its breaker.
func (f *Factory) Payment() (PaymentAuthority, *gobreaker.CircuitBreaker[string]) {
	return f.payment, f.breakers[f.payment.Name()]
}

// Inventory returns the inventory authority and its breaker.
func (f *Factory) Inventory() (InventoryAuthority, *gobreaker.CircuitBreaker[string]) {
	return f.inventory, f.breakers[f.inventory.Name()]
}
