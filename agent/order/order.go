// Package order holds the lifecycle rules of an order: which status changes
// each actor may make and when a customer may still cancel or attach proof.
package order

import (
	"fmt"
	"strings"
	"time"

	contractx "github.com/tanpawarit/Chative-Restaurant-Ordering/agent/contract"
	storex "github.com/tanpawarit/Chative-Restaurant-Ordering/tenant/store"
)

type Actor string

const (
	ActorCustomer Actor = "customer"
	ActorAdmin    Actor = "admin"
)

var (
	ErrTransitionNotAllowed = fmt.Errorf("%w: transition not allowed", contractx.ErrInvalidState)
	ErrNotCancellable       = fmt.Errorf("%w: order cannot be cancelled at this stage", contractx.ErrInvalidState)
	ErrWindowExpired        = fmt.Errorf("%w: cancellation window has passed", contractx.ErrInvalidState)
	ErrCancelDisabled       = fmt.Errorf("%w: customer cancellation is disabled", contractx.ErrInvalidState)
	ErrProofNotAllowed      = fmt.Errorf("%w: payment proof can only be submitted for pending orders", contractx.ErrInvalidState)
	ErrProofEmpty           = fmt.Errorf("%w: payment proof needs a reference or an image", contractx.ErrValidation)
)

var transitions = map[Actor]map[storex.OrderStatus][]storex.OrderStatus{
	ActorCustomer: {
		storex.OrderPending:   {storex.OrderCancelled},
		storex.OrderConfirmed: {storex.OrderCancelled},
	},
	ActorAdmin: {
		storex.OrderPending:    {storex.OrderConfirmed, storex.OrderCancelled},
		storex.OrderConfirmed:  {storex.OrderInProcess, storex.OrderCancelled},
		storex.OrderInProcess:  {storex.OrderReady},
		storex.OrderReady:      {storex.OrderInDelivery},
		storex.OrderInDelivery: {storex.OrderDelivered},
	},
}

func CanTransition(actor Actor, from, to storex.OrderStatus) bool {
	for _, next := range transitions[actor][from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no actor can move the order further.
func IsTerminal(status storex.OrderStatus) bool {
	for _, byStatus := range transitions {
		if len(byStatus[status]) > 0 {
			return false
		}
	}
	return true
}

// Transition moves o to status `to` on behalf of actor. Customer
// cancellations must go through Cancel so the window is enforced.
func Transition(o *storex.Order, actor Actor, to storex.OrderStatus, now time.Time) error {
	if actor == ActorCustomer && to == storex.OrderCancelled {
		return fmt.Errorf("%w: use Cancel for customer cancellations", ErrTransitionNotAllowed)
	}
	if !CanTransition(actor, o.Status, to) {
		return fmt.Errorf("%w: %s cannot move order from %s to %s", ErrTransitionNotAllowed, actor, o.Status, to)
	}
	o.Status = to
	o.UpdatedAt = now.UTC()
	return nil
}

// CancelDeadline is the last instant a customer may cancel o.
func CancelDeadline(o *storex.Order, window time.Duration) time.Time {
	return o.CreatedAt.Add(window)
}

// Cancel applies a customer cancellation. The status is checked before the
// window so a shipped order reports the stage, not the clock.
func Cancel(o *storex.Order, window time.Duration, now time.Time) error {
	if !CanTransition(ActorCustomer, o.Status, storex.OrderCancelled) {
		return fmt.Errorf("%w: status %s", ErrNotCancellable, o.Status)
	}
	if window <= 0 {
		return ErrCancelDisabled
	}
	if now.After(CancelDeadline(o, window)) {
		return fmt.Errorf("%w: window %s", ErrWindowExpired, window)
	}
	o.Status = storex.OrderCancelled
	o.UpdatedAt = now.UTC()
	return nil
}

// AttachPaymentProof records the customer's proof of payment. The payment
// status itself stays unpaid until staff verify it.
func AttachPaymentProof(o *storex.Order, text, imageURL string, now time.Time) error {
	text = strings.TrimSpace(text)
	imageURL = strings.TrimSpace(imageURL)
	if text == "" && imageURL == "" {
		return ErrProofEmpty
	}
	if o.Status != storex.OrderPending {
		return fmt.Errorf("%w: status %s", ErrProofNotAllowed, o.Status)
	}
	if text != "" {
		o.PaymentProofText = text
	}
	if imageURL != "" {
		o.PaymentProofURL = imageURL
	}
	o.UpdatedAt = now.UTC()
	return nil
}

// MarkPaid is the staff-only payment confirmation.
func MarkPaid(o *storex.Order, actor Actor, now time.Time) error {
	if actor != ActorAdmin {
		return fmt.Errorf("%w: only staff can confirm payment", ErrTransitionNotAllowed)
	}
	if o.PaymentStatus == storex.PaymentPaid {
		return nil
	}
	if o.Status == storex.OrderCancelled {
		return fmt.Errorf("%w: order is cancelled", ErrTransitionNotAllowed)
	}
	o.PaymentStatus = storex.PaymentPaid
	o.UpdatedAt = now.UTC()
	return nil
}

// WindowMinutes renders a window for customer-facing text.
func WindowMinutes(window time.Duration) int {
	return int(window / time.Minute)
}
