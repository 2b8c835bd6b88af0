package authorities

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/skybridge/bookingd/internal/domain/credential"
	domainErrors "github.com/skybridge/bookingd/internal/domain/errors"
)

// MockPaymentAuthority simulates a payment provider. Operations are
// idempotent per key, and per-operation failure scripts let tests drive
// declines, transient failures, and eventual success.
type MockPaymentAuthority struct {
	mu       sync.Mutex
	name     string
	resolver credential.Resolver
	latency  time.Duration

	holds    map[string]string // idempotency key -> hold id
	captures map[string]int    // hold id -> capture count
	released map[string]bool   // hold id -> released

	authorizeScript []error
	captureScript   []error
	releaseScript   []error

	AuthorizeCalls int
	CaptureCalls   int
	ReleaseCalls   int
}

type MockPaymentOption func(*MockPaymentAuthority)

// WithPaymentLatency simulates provider latency.
func WithPaymentLatency(d time.Duration) MockPaymentOption {
	return func(m *MockPaymentAuthority) { m.latency = d }
}

// WithPaymentResolver makes the mock resolve its credential before each
// call, the way a real client authenticates per request.
func WithPaymentResolver(r credential.Resolver) MockPaymentOption {
	return func(m *MockPaymentAuthority) { m.resolver = r }
}

// WithAuthorizeScript sets per-call outcomes for Authorize: entry i is the
// error returned by call i (nil meaning success). Calls beyond the script succeed.
func WithAuthorizeScript(errs ...error) MockPaymentOption {
	return func(m *MockPaymentAuthority) { m.authorizeScript = errs }
}

// WithCaptureScript sets per-call outcomes for Capture.
func WithCaptureScript(errs ...error) MockPaymentOption {
	return func(m *MockPaymentAuthority) { m.captureScript = errs }
}

// WithReleaseScript sets per-call outcomes for Release.
func WithReleaseScript(errs ...error) MockPaymentOption {
	return func(m *MockPaymentAuthority) { m.releaseScript = errs }
}

func NewMockPaymentAuthority(name string, opts ...MockPaymentOption) *MockPaymentAuthority {
	m := &MockPaymentAuthority{
		name:     name,
		holds:    make(map[string]string),
		captures: make(map[string]int),
		released: make(map[string]bool),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

func (m *MockPaymentAuthority) Name() string { return m.name }

func (m *MockPaymentAuthority) Authorize(ctx context.Context, req AuthorizeRequest) (string, error) {
	if err := m.simulate(ctx); err != nil {
		return "", err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.AuthorizeCalls++

	if err := m.nextScripted(&m.authorizeScript); err != nil {
		return "", err
	}

	// Idempotent: the same key always maps to the same hold.
	if holdID, ok := m.holds[req.IdempotencyKey]; ok {
		return holdID, nil
	}
	holdID := fmt.Sprintf("%s_hold_%s", m.name, uuid.New().String()[:8])
	m.holds[req.IdempotencyKey] = holdID
	return holdID, nil
}

func (m *MockPaymentAuthority) Capture(ctx context.Context, holdID, idempotencyKey string) error {
	if err := m.simulate(ctx); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.CaptureCalls++

	if err := m.nextScripted(&m.captureScript); err != nil {
		return err
	}
	if m.released[holdID] {
		return domainErrors.NewDomainError("hold_released", "cannot capture a released hold", nil)
	}
	// Idempotent: repeated captures of the same hold count once.
	if m.captures[holdID] == 0 {
		m.captures[holdID] = 1
	}
	return nil
}

func (m *MockPaymentAuthority) Release(ctx context.Context, holdID string) error {
	if err := m.simulate(ctx); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.ReleaseCalls++

	if err := m.nextScripted(&m.releaseScript); err != nil {
		return err
	}
	m.released[holdID] = true
	return nil
}

// HoldCount returns how many distinct holds exist.
func (m *MockPaymentAuthority) HoldCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.holds)
}

// CaptureCount returns how many times the hold was captured.
func (m *MockPaymentAuthority) CaptureCount(holdID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.captures[holdID]
}

// Released reports whether the hold was released.
func (m *MockPaymentAuthority) Released(holdID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.released[holdID]
}

func (m *MockPaymentAuthority) simulate(ctx context.Context) error {
	if m.resolver != nil {
		if _, err := m.resolver.ResolveCredential(ctx, m.name); err != nil {
			return err
		}
	}
	if m.latency > 0 {
		select {
		case <-time.After(m.latency):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// nextScripted pops the next scripted outcome. Must be called with mu held.
func (m *MockPaymentAuthority) nextScripted(script *[]error) error {
	if len(*script) == 0 {
		return nil
	}
	err := (*script)[0]
	*script = (*script)[1:]
	return err
}

// MockInventoryAuthority simulates a travel-inventory provider with the same
// scripting and idempotency behavior as the payment mock.
type MockInventoryAuthority struct {
	mu       sync.Mutex
	name     string
	resolver credential.Resolver
	latency  time.Duration

	reservations map[string]string // idempotency key -> reservation id
	cancelled    map[string]bool

	commitScript []error
	cancelScript []error

	CommitCalls int
	CancelCalls int
}

type MockInventoryOption func(*MockInventoryAuthority)

func WithInventoryLatency(d time.Duration) MockInventoryOption {
	return func(m *MockInventoryAuthority) { m.latency = d }
}

func WithInventoryResolver(r credential.Resolver) MockInventoryOption {
	return func(m *MockInventoryAuthority) { m.resolver = r }
}

// WithCommitScript sets per-call outcomes for Commit.
func WithCommitScript(errs ...error) MockInventoryOption {
	return func(m *MockInventoryAuthority) { m.commitScript = errs }
}

// WithCancelScript sets per-call outcomes for Cancel.
func WithCancelScript(errs ...error) MockInventoryOption {
	return func(m *MockInventoryAuthority) { m.cancelScript = errs }
}

func NewMockInventoryAuthority(name string, opts ...MockInventoryOption) *MockInventoryAuthority {
	m := &MockInventoryAuthority{
		name:         name,
		reservations: make(map[string]string),
		cancelled:    make(map[string]bool),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

func (m *MockInventoryAuthority) Name() string { return m.name }

func (m *MockInventoryAuthority) Commit(ctx context.Context, req CommitRequest) (string, error) {
	if err := m.simulate(ctx); err != nil {
		return "", err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.CommitCalls++

	if len(m.commitScript) > 0 {
		err := m.commitScript[0]
		m.commitScript = m.commitScript[1:]
		if err != nil {
			return "", err
		}
	}

	if resID, ok := m.reservations[req.IdempotencyKey]; ok {
		return resID, nil
	}
	resID := fmt.Sprintf("%s_res_%s", m.name, uuid.New().String()[:8])
	m.reservations[req.IdempotencyKey] = resID
	return resID, nil
}

func (m *MockInventoryAuthority) Cancel(ctx context.Context, reservationID string) error {
	if err := m.simulate(ctx); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.CancelCalls++

	if len(m.cancelScript) > 0 {
		err := m.cancelScript[0]
		m.cancelScript = m.cancelScript[1:]
		if err != nil {
			return err
		}
	}
	m.cancelled[reservationID] = true
	return nil
}

// ReservationCount returns how many distinct reservations exist.
func (m *MockInventoryAuthority) ReservationCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.reservations)
}

// Cancelled reports whether the reservation was cancelled.
func (m *MockInventoryAuthority) Cancelled(reservationID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cancelled[reservationID]
}

func (m *MockInventoryAuthority) simulate(ctx context.Context) error {
	if m.resolver != nil {
		if _, err := m.resolver.ResolveCredential(ctx, m.name); err != nil {
			return err
		}
	}
	if m.latency > 0 {
		select {
		case <-time.After(m.latency):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}
