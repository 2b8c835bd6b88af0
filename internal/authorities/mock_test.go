package authorities

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainErrors "github.com/skybridge/bookingd/internal/domain/errors"
)

func TestMockPayment_AuthorizeIdempotent(t *testing.T) {
	ctx := context.Background()
	m := NewMockPaymentAuthority("stripe")

	req := AuthorizeRequest{AmountCents: 10000, Currency: "USD", IdempotencyKey: "set-1:authorize"}
	h1, err := m.Authorize(ctx, req)
	require.NoError(t, err)
	h2, err := m.Authorize(ctx, req)
	require.NoError(t, err)

	assert.Equal(t, h1, h2, "same idempotency key must return the same hold")
	assert.Equal(t, 1, m.HoldCount())
	assert.Equal(t, 2, m.AuthorizeCalls)
}

func TestMockPayment_CaptureIdempotent(t *testing.T) {
	ctx := context.Background()
	m := NewMockPaymentAuthority("stripe")

	holdID, err := m.Authorize(ctx, AuthorizeRequest{AmountCents: 10000, Currency: "USD", IdempotencyKey: "k"})
	require.NoError(t, err)

	require.NoError(t, m.Capture(ctx, holdID, "k:capture"))
	require.NoError(t, m.Capture(ctx, holdID, "k:capture"))
	assert.Equal(t, 1, m.CaptureCount(holdID), "double capture must count once")
}

func TestMockPayment_Script(t *testing.T) {
	ctx := context.Background()
	m := NewMockPaymentAuthority("stripe",
		WithAuthorizeScript(domainErrors.ErrPaymentDeclined),
	)

	_, err := m.Authorize(ctx, AuthorizeRequest{AmountCents: 100, Currency: "USD", IdempotencyKey: "k"})
	assert.ErrorIs(t, err, domainErrors.ErrPaymentDeclined)

	// Script exhausted: next call succeeds.
	_, err = m.Authorize(ctx, AuthorizeRequest{AmountCents: 100, Currency: "USD", IdempotencyKey: "k"})
	assert.NoError(t, err)
}

func TestMockPayment_CaptureReleasedHold(t *testing.T) {
	ctx := context.Background()
	m := NewMockPaymentAuthority("stripe")

	holdID, err := m.Authorize(ctx, AuthorizeRequest{AmountCents: 100, Currency: "USD", IdempotencyKey: "k"})
	require.NoError(t, err)
	require.NoError(t, m.Release(ctx, holdID))
	assert.True(t, m.Released(holdID))

	assert.Error(t, m.Capture(ctx, holdID, "k:capture"))
}

func TestMockInventory_CommitIdempotent(t *testing.T) {
	ctx := context.Background()
	m := NewMockInventoryAuthority("duffel")

	req := CommitRequest{Spec: map[string]any{"offer_id": "off_1"}, IdempotencyKey: "set-1:commit"}
	r1, err := m.Commit(ctx, req)
	require.NoError(t, err)
	r2, err := m.Commit(ctx, req)
	require.NoError(t, err)

	assert.Equal(t, r1, r2)
	assert.Equal(t, 1, m.ReservationCount())
}

func TestMockInventory_TransientThenSuccess(t *testing.T) {
	ctx := context.Background()
	m := NewMockInventoryAuthority("duffel",
		WithCommitScript(domainErrors.ErrAuthorityTimeout, nil),
	)

	_, err := m.Commit(ctx, CommitRequest{IdempotencyKey: "k"})
	assert.ErrorIs(t, err, domainErrors.ErrAuthorityTimeout)

	resID, err := m.Commit(ctx, CommitRequest{IdempotencyKey: "k"})
	require.NoError(t, err)
	assert.NotEmpty(t, resID)
}

func TestFactory_SeparateBreakers(t *testing.T) {
	f := NewFactory(nil, nil)

	p, pb := f.Payment()
	i, ib := f.Inventory()

	assert.Equal(t, "stripe", p.Name())
	assert.Equal(t, "duffel", i.Name())
	require.NotNil(t, pb)
	require.NotNil(t, ib)
	assert.NotSame(t, pb, ib)
}
