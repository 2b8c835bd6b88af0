package settlement_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skybridge/bookingd/internal/domain/errors"
	"github.com/skybridge/bookingd/internal/domain/settlement"
)

func newSettlement(t *testing.T) *settlement.Settlement {
	t.Helper()
	s, err := settlement.New(
		settlement.Amount{ValueCents: 48750, Currency: "USD"},
		map[string]any{"offer_id": "off_123"},
	)
	require.NoError(t, err)
	return s
}

func TestNew_Valid(t *testing.T) {
	s := newSettlement(t)
	assert.Equal(t, settlement.StateCreated, s.State)
	assert.Equal(t, int64(48750), s.Amount.ValueCents)
	assert.Equal(t, "USD", s.Amount.Currency)
	assert.Nil(t, s.PaymentHoldID)
	assert.Nil(t, s.ReservationID)
	assert.Equal(t, 0, s.Attempts)
	assert.False(t, s.NeedsReconciliation)
}

func TestNew_InvalidAmount(t *testing.T) {
	_, err := settlement.New(settlement.Amount{ValueCents: -100, Currency: "USD"}, nil)
	assert.Error(t, err)

	_, err = settlement.New(settlement.Amount{ValueCents: 0, Currency: "USD"}, nil)
	assert.Error(t, err)

	_, err = settlement.New(settlement.Amount{ValueCents: 1000, Currency: ""}, nil)
	assert.Error(t, err)

	_, err = settlement.New(settlement.Amount{ValueCents: 1000, Currency: "US"}, nil)
	assert.Error(t, err)
}

func TestOperationKey_Deterministic(t *testing.T) {
	s := newSettlement(t)
	k1 := s.OperationKey(settlement.OpAuthorize)
	k2 := s.OperationKey(settlement.OpAuthorize)
	assert.Equal(t, k1, k2)
	assert.NotEqual(t, k1, s.OperationKey(settlement.OpCapture))
	assert.Contains(t, k1, s.ID.String())
}

func TestHappyPathTransitions(t *testing.T) {
	s := newSettlement(t)

	require.NoError(t, s.MarkAuthorized("hold_1"))
	assert.Equal(t, settlement.StateAuthorized, s.State)
	require.NotNil(t, s.PaymentHoldID)
	assert.Equal(t, "hold_1", *s.PaymentHoldID)

	require.NoError(t, s.MarkInventoryCommitted("res_1"))
	assert.Equal(t, settlement.StateInventoryCommitted, s.State)
	require.NotNil(t, s.ReservationID)
	assert.Equal(t, "res_1", *s.ReservationID)

	require.NoError(t, s.MarkCaptured())
	require.NoError(t, s.MarkSettled())
	assert.Equal(t, settlement.StateSettled, s.State)
	assert.True(t, s.IsTerminal())
	assert.NotNil(t, s.CompletedAt)
}

func TestCompensationPaths(t *testing.T) {
	t.Run("commit failure releases hold", func(t *testing.T) {
		s := newSettlement(t)
		require.NoError(t, s.MarkAuthorized("hold_1"))
		require.NoError(t, s.BeginCompensation(settlement.StateCompensatingPayment))
		require.NoError(t, s.MarkFailed("inventory rejected", false))
		assert.True(t, s.IsTerminal())
		require.NotNil(t, s.Reason)
		assert.Equal(t, "inventory rejected", *s.Reason)
		assert.False(t, s.NeedsReconciliation)
	})

	t.Run("capture failure cancels reservation", func(t *testing.T) {
		s := newSettlement(t)
		require.NoError(t, s.MarkAuthorized("hold_1"))
		require.NoError(t, s.MarkInventoryCommitted("res_1"))
		require.NoError(t, s.BeginCompensation(settlement.StateCompensatingInventory))
		require.NoError(t, s.MarkFailed("capture failed", true))
		assert.True(t, s.NeedsReconciliation)
	})

	t.Run("non-compensation state rejected", func(t *testing.T) {
		s := newSettlement(t)
		require.NoError(t, s.MarkAuthorized("hold_1"))
		err := s.BeginCompensation(settlement.StateSettled)
		assert.ErrorIs(t, err, errors.ErrInvalidStateTransition)
	})
}

func TestInvalidTransitions(t *testing.T) {
	s := newSettlement(t)

	// Cannot commit or capture before authorizing.
	assert.ErrorIs(t, s.MarkInventoryCommitted("res_1"), errors.ErrInvalidStateTransition)
	assert.ErrorIs(t, s.MarkCaptured(), errors.ErrInvalidStateTransition)
	assert.ErrorIs(t, s.MarkSettled(), errors.ErrInvalidStateTransition)

	// Cannot skip capture.
	require.NoError(t, s.MarkAuthorized("hold_1"))
	require.NoError(t, s.MarkInventoryCommitted("res_1"))
	assert.ErrorIs(t, s.MarkSettled(), errors.ErrInvalidStateTransition)
}

func TestTerminalStatesImmutable(t *testing.T) {
	s := newSettlement(t)
	require.NoError(t, s.MarkFailed("card declined", false))

	assert.ErrorIs(t, s.MarkAuthorized("hold_2"), errors.ErrInvalidStateTransition)
	assert.ErrorIs(t, s.MarkSettled(), errors.ErrInvalidStateTransition)
	assert.ErrorIs(t, s.MarkFailed("again", false), errors.ErrInvalidStateTransition)
}

func TestAmountString(t *testing.T) {
	assert.Equal(t, "487.50 USD", settlement.Amount{ValueCents: 48750, Currency: "USD"}.String())
	assert.Equal(t, "-3.05 EUR", settlement.Amount{ValueCents: -305, Currency: "EUR"}.String())
}
