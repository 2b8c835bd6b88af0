package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/skybridge/bookingd/internal/alerting"
	"github.com/skybridge/bookingd/internal/domain/credential"
	domainErrors "github.com/skybridge/bookingd/internal/domain/errors"
	"github.com/skybridge/bookingd/internal/domain/outbox"
	"github.com/skybridge/bookingd/internal/domain/settlement"
)

// --- Settlement Repository Mock ---

// MockSettlementRepository is a mock implementation of settlement.Repository.
type MockSettlementRepository struct {
	mu          sync.Mutex
	settlements map[uuid.UUID]*settlement.Settlement
	events      map[uuid.UUID][]*settlement.Event

	CreateFunc    func(ctx context.Context, s *settlement.Settlement) error
	GetByIDFunc   func(ctx context.Context, id uuid.UUID) (*settlement.Settlement, error)
	UpdateFunc    func(ctx context.Context, s *settlement.Settlement) error
	ListFunc      func(ctx context.Context, filter settlement.ListFilter) ([]*settlement.Settlement, error)
	AddEventFunc  func(ctx context.Context, event *settlement.Event) error
	GetEventsFunc func(ctx context.Context, settlementID uuid.UUID) ([]*settlement.Event, error)
}

func NewMockSettlementRepository() *MockSettlementRepository {
	return &MockSettlementRepository{
		settlements: make(map[uuid.UUID]*settlement.Settlement),
		events:      make(map[uuid.UUID][]*settlement.Event),
	}
}

func (m *MockSettlementRepository) Create(ctx context.Context, s *settlement.Settlement) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, s)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settlements[s.ID] = s
	return nil
}

func (m *MockSettlementRepository) GetByID(ctx context.Context, id uuid.UUID) (*settlement.Settlement, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.settlements[id]
	if !ok {
		return nil, domainErrors.ErrSettlementNotFound
	}
	return s, nil
}

func (m *MockSettlementRepository) Update(ctx context.Context, s *settlement.Settlement) error {
	if m.UpdateFunc != nil {
		return m.UpdateFunc(ctx, s)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settlements[s.ID] = s
	return nil
}

func (m *MockSettlementRepository) List(ctx context.Context, filter settlement.ListFilter) ([]*settlement.Settlement, error) {
	if m.ListFunc != nil {
		return m.ListFunc(ctx, filter)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]*settlement.Settlement, 0, len(m.settlements))
	for _, s := range m.settlements {
		if filter.State != nil && s.State != *filter.State {
			continue
		}
		if filter.NeedsReconciliation != nil && s.NeedsReconciliation != *filter.NeedsReconciliation {
			continue
		}
		result = append(result, s)
	}
	return result, nil
}

func (m *MockSettlementRepository) AddEvent(ctx context.Context, event *settlement.Event) error {
	if m.AddEventFunc != nil {
		return m.AddEventFunc(ctx, event)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events[event.SettlementID] = append(m.events[event.SettlementID], event)
	return nil
}

func (m *MockSettlementRepository) GetEvents(ctx context.Context, settlementID uuid.UUID) ([]*settlement.Event, error) {
	if m.GetEventsFunc != nil {
		return m.GetEventsFunc(ctx, settlementID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.events[settlementID], nil
}

// EventTypes returns the recorded event types for a settlement in order
// (test helper, no context needed).
func (m *MockSettlementRepository) EventTypes(settlementID uuid.UUID) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	types := make([]string, 0, len(m.events[settlementID]))
	for _, e := range m.events[settlementID] {
		types = append(types, e.EventType)
	}
	return types
}

// --- Credential Store Mock ---

// MockCredentialStore is a mock implementation of credential.Store.
type MockCredentialStore struct {
	mu   sync.Mutex
	sets map[string]*credential.Set

	GetFunc  func(ctx context.Context, service string) (*credential.Set, error)
	PutFunc  func(ctx context.Context, set *credential.Set) error
	ListFunc func(ctx context.Context) ([]*credential.Set, error)
}

func NewMockCredentialStore() *MockCredentialStore {
	return &MockCredentialStore{sets: make(map[string]*credential.Set)}
}

// AddSet pre-populates the store with a credential set.
func (m *MockCredentialStore) AddSet(set *credential.Set) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sets[set.Service] = set
}

func (m *MockCredentialStore) Get(ctx context.Context, service string) (*credential.Set, error) {
	if m.GetFunc != nil {
		return m.GetFunc(ctx, service)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	set, ok := m.sets[service]
	if !ok {
		return nil, domainErrors.ErrCredentialNotFound
	}
	return set, nil
}

func (m *MockCredentialStore) Put(ctx context.Context, set *credential.Set) error {
	if m.PutFunc != nil {
		return m.PutFunc(ctx, set)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sets[set.Service] = set
	return nil
}

func (m *MockCredentialStore) List(ctx context.Context) ([]*credential.Set, error) {
	if m.ListFunc != nil {
		return m.ListFunc(ctx)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]*credential.Set, 0, len(m.sets))
	for _, set := range m.sets {
		result = append(result, set)
	}
	return result, nil
}

// --- Schedule Repository Mock ---

// MockScheduleRepository is a mock implementation of credential.ScheduleRepository.
type MockScheduleRepository struct {
	mu        sync.Mutex
	schedules map[string]*credential.Schedule

	GetFunc  func(ctx context.Context, service string) (*credential.Schedule, error)
	PutFunc  func(ctx context.Context, schedule *credential.Schedule) error
	ListFunc func(ctx context.Context) ([]*credential.Schedule, error)
}

func NewMockScheduleRepository() *MockScheduleRepository {
	return &MockScheduleRepository{schedules: make(map[string]*credential.Schedule)}
}

// AddSchedule pre-populates the repository with a schedule.
func (m *MockScheduleRepository) AddSchedule(s *credential.Schedule) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.schedules[s.Service] = s
}

func (m *MockScheduleRepository) Get(ctx context.Context, service string) (*credential.Schedule, error) {
	if m.GetFunc != nil {
		return m.GetFunc(ctx, service)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.schedules[service]
	if !ok {
		return nil, domainErrors.ErrScheduleNotFound
	}
	return s, nil
}

func (m *MockScheduleRepository) Put(ctx context.Context, schedule *credential.Schedule) error {
	if m.PutFunc != nil {
		return m.PutFunc(ctx, schedule)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.schedules[schedule.Service] = schedule
	return nil
}

func (m *MockScheduleRepository) List(ctx context.Context) ([]*credential.Schedule, error) {
	if m.ListFunc != nil {
		return m.ListFunc(ctx)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]*credential.Schedule, 0, len(m.schedules))
	for _, s := range m.schedules {
		result = append(result, s)
	}
	return result, nil
}

// --- Transaction Manager Mock ---

// MockTransactionManager is a mock implementation of TransactionManager.
type MockTransactionManager struct {
	WithTransactionFunc func(ctx context.Context, fn func(ctx context.Context) error) error
}

func NewMockTransactionManager() *MockTransactionManager {
	return &MockTransactionManager{}
}

func (m *MockTransactionManager) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if m.WithTransactionFunc != nil {
		return m.WithTransactionFunc(ctx, fn)
	}
	return fn(ctx)
}

// --- Driver Guard Mock ---

// MockDriverGuard is an in-memory lock for tests.
type MockDriverGuard struct {
	mu    sync.Mutex
	locks map[string]bool

	TryLockFunc func(ctx context.Context, key string, ttl time.Duration) (bool, error)
	UnlockFunc  func(ctx context.Context, key string) error
}

func NewMockDriverGuard() *MockDriverGuard {
	return &MockDriverGuard{locks: make(map[string]bool)}
}

func (m *MockDriverGuard) TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if m.TryLockFunc != nil {
		return m.TryLockFunc(ctx, key, ttl)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.locks[key] {
		return false, nil
	}
	m.locks[key] = true
	return true, nil
}

func (m *MockDriverGuard) Unlock(ctx context.Context, key string) error {
	if m.UnlockFunc != nil {
		return m.UnlockFunc(ctx, key)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.locks, key)
	return nil
}

// Held reports whether the lock for key is currently held.
func (m *MockDriverGuard) Held(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.locks[key]
}

// --- Alerter Mock ---

// MockAlerter records alerts for assertions.
type MockAlerter struct {
	mu     sync.Mutex
	alerts []alerting.Alert

	AlertFunc func(ctx context.Context, alert alerting.Alert) error
}

func NewMockAlerter() *MockAlerter {
	return &MockAlerter{}
}

func (m *MockAlerter) Alert(ctx context.Context, alert alerting.Alert) error {
	if m.AlertFunc != nil {
		return m.AlertFunc(ctx, alert)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.alerts = append(m.alerts, alert)
	return nil
}

// Alerts returns a copy of the recorded alerts.
func (m *MockAlerter) Alerts() []alerting.Alert {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]alerting.Alert, len(m.alerts))
	copy(out, m.alerts)
	return out
}

// AlertsOfKind returns the recorded alerts matching the kind.
func (m *MockAlerter) AlertsOfKind(kind string) []alerting.Alert {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []alerting.Alert
	for _, a := range m.alerts {
		if a.Kind == kind {
			out = append(out, a)
		}
	}
	return out
}

// --- Outbox Repository Mock ---

// MockOutboxRepository is a mock implementation of outbox.Repository.
type MockOutboxRepository struct {
	mu      sync.Mutex
	entries []*outbox.Entry

	InsertFunc        func(ctx context.Context, entry *outbox.Entry) error
	GetPendingFunc    func(ctx context.Context, limit int) ([]*outbox.Entry, error)
	MarkPublishedFunc func(ctx context.Context, id uuid.UUID) error
	MarkFailedFunc    func(ctx context.Context, id uuid.UUID) error
}

func NewMockOutboxRepository() *MockOutboxRepository {
	return &MockOutboxRepository{}
}

func (m *MockOutboxRepository) Insert(ctx context.Context, entry *outbox.Entry) error {
	if m.InsertFunc != nil {
		return m.InsertFunc(ctx, entry)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, entry)
	return nil
}

func (m *MockOutboxRepository) GetPending(ctx context.Context, limit int) ([]*outbox.Entry, error) {
	if m.GetPendingFunc != nil {
		return m.GetPendingFunc(ctx, limit)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var pending []*outbox.Entry
	for _, e := range m.entries {
		if e.Status == outbox.StatusPending {
			pending = append(pending, e)
		}
		if limit > 0 && len(pending) == limit {
			break
		}
	}
	return pending, nil
}

func (m *MockOutboxRepository) MarkPublished(ctx context.Context, id uuid.UUID) error {
	if m.MarkPublishedFunc != nil {
		return m.MarkPublishedFunc(ctx, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.entries {
		if e.ID == id {
			e.Status = outbox.StatusPublished
			now := time.Now()
			e.PublishedAt = &now
		}
	}
	return nil
}

func (m *MockOutboxRepository) MarkFailed(ctx context.Context, id uuid.UUID) error {
	if m.MarkFailedFunc != nil {
		return m.MarkFailedFunc(ctx, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.entries {
		if e.ID == id {
			e.RetryCount++
			if e.RetryCount >= e.MaxRetries {
				e.Status = outbox.StatusFailed
			}
		}
	}
	return nil
}
