package testutil

import (
	"time"

	"github.com/google/uuid"

	"github.com/skybridge/bookingd/internal/domain/credential"
	"github.com/skybridge/bookingd/internal/domain/settlement"
)

func NewTestSettlement(amountCents int64, currency string) *settlement.Settlement {
	s, err := settlement.New(
		settlement.Amount{ValueCents: amountCents, Currency: currency},
		map[string]any{"offer_id": "off_" + uuid.New().String()[:8]},
	)
	if err != nil {
		panic(err)
	}
	return s
}

func NewSettledSettlement(amountCents int64, currency string) *settlement.Settlement {
	s := NewTestSettlement(amountCents, currency)
	hold := "hold_test"
	reservation := "res_test"
	if err := s.MarkAuthorized(hold); err != nil {
		panic(err)
	}
	if err := s.MarkInventoryCommitted(reservation); err != nil {
		panic(err)
	}
	if err := s.MarkCaptured(); err != nil {
		panic(err)
	}
	if err := s.MarkSettled(); err != nil {
		panic(err)
	}
	return s
}

func NewTestCredentialSet(service, active string, gracePeriod time.Duration) *credential.Set {
	return &credential.Set{
		Service:     service,
		Active:      active,
		GracePeriod: gracePeriod,
		UpdatedAt:   time.Now(),
	}
}

func NewTestSchedule(service string, policy credential.Policy, now time.Time) *credential.Schedule {
	return credential.NewSchedule(service, policy, now)
}

func StringPtr(s string) *string {
	return &s
}

func UUIDPtr(id uuid.UUID) *uuid.UUID {
	return &id
}
