package order

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	contractx "github.com/tanpawarit/Chative-Restaurant-Ordering/agent/contract"
	storex "github.com/tanpawarit/Chative-Restaurant-Ordering/tenant/store"
)

var created = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

func pending() *storex.Order {
	return &storex.Order{Status: storex.OrderPending, PaymentStatus: storex.PaymentUnpaid, CreatedAt: created, UpdatedAt: created}
}

func TestCancelWithinWindow(t *testing.T) {
	t.Parallel()

	o := pending()
	require.NoError(t, Cancel(o, 15*time.Minute, created.Add(14*time.Minute)))
	assert.Equal(t, storex.OrderCancelled, o.Status)
}

func TestCancelAtDeadlineIsAllowed(t *testing.T) {
	t.Parallel()

	o := pending()
	require.NoError(t, Cancel(o, 15*time.Minute, created.Add(15*time.Minute)))
}

func TestCancelAfterWindow(t *testing.T) {
	t.Parallel()

	o := pending()
	err := Cancel(o, 15*time.Minute, created.Add(16*time.Minute))
	require.ErrorIs(t, err, ErrWindowExpired)
	assert.ErrorIs(t, err, contractx.ErrInvalidState)
	assert.Equal(t, storex.OrderPending, o.Status)
}

func TestCancelWithZeroWindowIsDisabled(t *testing.T) {
	t.Parallel()

	o := pending()
	err := Cancel(o, 0, created)
	require.ErrorIs(t, err, ErrCancelDisabled)
	assert.ErrorIs(t, err, contractx.ErrInvalidState)
	assert.Equal(t, storex.OrderPending, o.Status)
}

func TestCancelWrongStatusReportsStage(t *testing.T) {
	t.Parallel()

	for _, status := range []storex.OrderStatus{storex.OrderInProcess, storex.OrderReady, storex.OrderDelivered, storex.OrderCancelled} {
		o := pending()
		o.Status = status
		err := Cancel(o, 15*time.Minute, created.Add(time.Hour))
		require.ErrorIs(t, err, ErrNotCancellable, status)
		assert.False(t, errors.Is(err, ErrWindowExpired), status)
	}
}

func TestConfirmedOrderCanBeCancelledInWindow(t *testing.T) {
	t.Parallel()

	o := pending()
	o.Status = storex.OrderConfirmed
	require.NoError(t, Cancel(o, 15*time.Minute, created.Add(time.Minute)))
}

func TestAttachPaymentProof(t *testing.T) {
	t.Parallel()

	o := pending()
	require.NoError(t, AttachPaymentProof(o, "TXN-123", "", created.Add(time.Minute)))
	assert.Equal(t, "TXN-123", o.PaymentProofText)
	assert.Equal(t, storex.PaymentUnpaid, o.PaymentStatus)

	require.ErrorIs(t, AttachPaymentProof(o, " ", "", created), ErrProofEmpty)

	o.Status = storex.OrderConfirmed
	require.ErrorIs(t, AttachPaymentProof(o, "again", "", created), ErrProofNotAllowed)
}

func TestAdminTransitions(t *testing.T) {
	t.Parallel()

	o := pending()
	now := created.Add(time.Minute)
	for _, next := range []storex.OrderStatus{storex.OrderConfirmed, storex.OrderInProcess, storex.OrderReady, storex.OrderInDelivery, storex.OrderDelivered} {
		require.NoError(t, Transition(o, ActorAdmin, next, now), next)
	}
	assert.True(t, IsTerminal(o.Status))
	require.ErrorIs(t, Transition(o, ActorAdmin, storex.OrderCancelled, now), ErrTransitionNotAllowed)
}

func TestCustomerCannotConfirmOrPay(t *testing.T) {
	t.Parallel()

	o := pending()
	require.ErrorIs(t, Transition(o, ActorCustomer, storex.OrderConfirmed, created), ErrTransitionNotAllowed)
	require.ErrorIs(t, Transition(o, ActorCustomer, storex.OrderCancelled, created), ErrTransitionNotAllowed)
	require.ErrorIs(t, MarkPaid(o, ActorCustomer, created), ErrTransitionNotAllowed)

	require.NoError(t, MarkPaid(o, ActorAdmin, created))
	assert.Equal(t, storex.PaymentPaid, o.PaymentStatus)
}

func TestTerminalStates(t *testing.T) {
	t.Parallel()

	assert.True(t, IsTerminal(storex.OrderCancelled))
	assert.True(t, IsTerminal(storex.OrderDelivered))
	assert.False(t, IsTerminal(storex.OrderPending))
	assert.Equal(t, 15, WindowMinutes(15*time.Minute))
}
