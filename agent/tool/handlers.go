package tool

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	contractx "github.com/tanpawarit/Chative-Restaurant-Ordering/agent/contract"
	orderx "github.com/tanpawarit/Chative-Restaurant-Ordering/agent/order"
	storex "github.com/tanpawarit/Chative-Restaurant-Ordering/tenant/store"
)

const (
	msgOrderNotFound   = "Order not found"
	msgSessionNotFound = "Session not found"
)

func (t *Toolset) listMenu(ctx context.Context, args listMenuArgs) (string, error) {
	items, err := t.store.ListMenuItems(ctx, args.Search)
	if err != nil {
		return "", err
	}
	return formatMenu(items), nil
}

func (t *Toolset) placeOrder(ctx context.Context, args placeOrderArgs) (string, error) {
	now := t.now().UTC()

	ids := make([]uuid.UUID, 0, len(args.Items))
	for _, line := range args.Items {
		id, err := uuid.Parse(line.MenuItemID)
		if err != nil {
			return "", reject(contractx.ErrValidation, "Menu item %s not found or unavailable", line.MenuItemID)
		}
		ids = append(ids, id)
	}

	var (
		placed   *storex.Order
		settings storex.Settings
	)
	err := t.store.RunInTx(ctx, func(ctx context.Context, tx storex.Queries) error {
		sess, err := tx.GetSession(ctx, t.session)
		if errors.Is(err, contractx.ErrNotFound) {
			return reject(contractx.ErrNotFound, msgSessionNotFound)
		}
		if err != nil {
			return err
		}

		menu, err := tx.GetMenuItems(ctx, ids)
		if err != nil {
			return err
		}

		o := &storex.Order{
			ID:            uuid.New(),
			SessionID:     sess.ID,
			Status:        storex.OrderPending,
			PaymentStatus: storex.PaymentUnpaid,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		for i, line := range args.Items {
			item, ok := menu[ids[i]]
			if !ok || !item.Available {
				return reject(contractx.ErrNotFound, "Menu item %s not found or unavailable", line.MenuItemID)
			}
			o.Items = append(o.Items, &storex.OrderItem{
				ID:         uuid.New(),
				OrderID:    o.ID,
				MenuItemID: item.ID,
				Name:       item.Name,
				Quantity:   line.Quantity,
				UnitPrice:  item.Price,
			})
			o.TotalPrice += item.Price.Mul(line.Quantity)
		}

		if args.Customer != nil && sess.Apply(*args.Customer) {
			if err := tx.UpdateSession(ctx, sess); err != nil {
				return err
			}
		}
		o.CustomerName = sess.CustomerName
		o.Phone = sess.Phone
		o.DeliveryAddress = sess.DeliveryAddress

		if settings, err = tx.GetSettings(ctx); err != nil {
			return err
		}
		if err := tx.InsertOrder(ctx, o); err != nil {
			return err
		}
		placed = o
		return nil
	})
	if err != nil {
		return "", err
	}

	log.Ctx(ctx).Info().
		Str("order_id", placed.ID.String()).
		Str("session_id", t.session.String()).
		Str("total", placed.TotalPrice.String()).
		Int("lines", len(placed.Items)).
		Msg("order placed")

	return formatPlacedOrder(placed, settings), nil
}

func (t *Toolset) submitPaymentProof(ctx context.Context, args paymentProofArgs) (string, error) {
	if strings.TrimSpace(args.Text) == "" && strings.TrimSpace(args.ImageURL) == "" {
		return "", reject(contractx.ErrValidation, "Provide a payment reference or a payment screenshot")
	}
	orderID := uuid.MustParse(args.OrderID)

	err := t.store.RunInTx(ctx, func(ctx context.Context, tx storex.Queries) error {
		o, err := t.ownedOrder(ctx, tx.LockOrder, orderID)
		if err != nil {
			return err
		}
		if err := orderx.AttachPaymentProof(o, args.Text, args.ImageURL, t.now()); err != nil {
			if errors.Is(err, orderx.ErrProofNotAllowed) {
				return reject(contractx.ErrInvalidState, "Payment proof can only be submitted for pending orders")
			}
			return reject(contractx.ErrValidation, "Provide a payment reference or a payment screenshot")
		}
		return tx.UpdateOrder(ctx, o, "payment_proof_text", "payment_proof_url", "updated_at")
	})
	if err != nil {
		return "", err
	}
	return "Payment proof submitted successfully. Our team will review and confirm your order shortly.", nil
}

func (t *Toolset) cancelOrder(ctx context.Context, args orderRefArgs) (string, error) {
	orderID := uuid.MustParse(args.OrderID)

	err := t.store.RunInTx(ctx, func(ctx context.Context, tx storex.Queries) error {
		o, err := t.ownedOrder(ctx, tx.LockOrder, orderID)
		if err != nil {
			return err
		}
		settings, err := tx.GetSettings(ctx)
		if err != nil {
			return err
		}

		window := settings.CancellationWindow()
		switch err := orderx.Cancel(o, window, t.now()); {
		case errors.Is(err, orderx.ErrCancelDisabled):
			return reject(contractx.ErrInvalidState, "This restaurant does not accept order cancellations")
		case errors.Is(err, orderx.ErrWindowExpired):
			return reject(contractx.ErrInvalidState, "Cancellation window of %d minutes has passed", orderx.WindowMinutes(window))
		case errors.Is(err, orderx.ErrNotCancellable):
			return reject(contractx.ErrInvalidState, "Order cannot be cancelled at this stage")
		case err != nil:
			return err
		}
		return tx.UpdateOrder(ctx, o, "status", "updated_at")
	})
	if err != nil {
		return "", err
	}
	return "Order cancelled successfully", nil
}

func (t *Toolset) getOrderStatus(ctx context.Context, args orderRefArgs) (string, error) {
	o, err := t.ownedOrder(ctx, t.store.GetOrder, uuid.MustParse(args.OrderID))
	if err != nil {
		return "", err
	}
	settings, err := t.store.GetSettings(ctx)
	if err != nil {
		return "", err
	}
	return formatOrderStatus(o, settings.Location()), nil
}

func (t *Toolset) amendSessionDetails(ctx context.Context, details storex.CustomerDetails) (string, error) {
	if details.IsEmpty() {
		return "", reject(contractx.ErrValidation, "No details provided to update")
	}

	err := t.store.RunInTx(ctx, func(ctx context.Context, tx storex.Queries) error {
		sess, err := tx.GetSession(ctx, t.session)
		if errors.Is(err, contractx.ErrNotFound) {
			return reject(contractx.ErrNotFound, msgSessionNotFound)
		}
		if err != nil {
			return err
		}
		if !sess.Apply(details) {
			return nil
		}
		return tx.UpdateSession(ctx, sess)
	})
	if err != nil {
		return "", err
	}
	return "Customer details updated successfully", nil
}

// ownedOrder loads an order and hides orders of other sessions behind the
// same not-found rejection as missing ones.
func (t *Toolset) ownedOrder(
	ctx context.Context,
	load func(context.Context, uuid.UUID) (*storex.Order, error),
	id uuid.UUID,
) (*storex.Order, error) {
	o, err := load(ctx, id)
	if errors.Is(err, contractx.ErrNotFound) {
		return nil, reject(contractx.ErrNotFound, msgOrderNotFound)
	}
	if err != nil {
		return nil, err
	}
	if o.SessionID != t.session {
		return nil, reject(contractx.ErrNotFound, msgOrderNotFound)
	}
	return o, nil
}

