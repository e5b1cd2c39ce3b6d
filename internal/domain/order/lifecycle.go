package order

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/xenking/kart-checkout/internal/notify"
)

// UpdateStatus moves an order to status and stamps shipped/delivered times.
// Moving to cancelled goes through Cancel so stock is returned.
func (s *Service) UpdateStatus(ctx context.Context, orderID int64, status Status) (*Order, error) {
	if !status.Valid() {
		return nil, ErrInvalidStatus
	}
	if status == StatusCancelled {
		return s.Cancel(ctx, orderID)
	}

	var o *Order
	if err := s.Tx.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		if o, err = s.Orders.GetForUpdate(ctx, orderID); err != nil {
			return errors.Wrapf(err, "get order %d", orderID)
		}
		if o.Status == StatusCancelled {
			return ErrInvalidTransition
		}
		o.Status = status
		now := s.Now()
		switch status {
		case StatusShipped:
			o.ShippedAt = &now
		case StatusDelivered:
			o.DeliveredAt = &now
		}
		return s.Orders.Update(ctx, o)
	}); err != nil {
		return nil, err
	}

	s.notify(ctx, notify.OrderStatusUpdated, o, "")
	return o, nil
}

// Cancel cancels a non-terminal order and returns its stock. The payment
// status is left as is.
func (s *Service) Cancel(ctx context.Context, orderID int64) (*Order, error) {
	o, err := s.cancel(ctx, orderID, "cancel", func(o *Order) error {
		if o.Status.Terminal() {
			return ErrInvalidTransition
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.notify(ctx, notify.OrderCancelled, o, "")
	return o, nil
}

// ConfirmPayment marks a manually paid order as paid and starts processing.
func (s *Service) ConfirmPayment(ctx context.Context, orderID int64) (*Order, error) {
	var o *Order
	if err := s.Tx.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		if o, err = s.Orders.GetForUpdate(ctx, orderID); err != nil {
			return errors.Wrapf(err, "get order %d", orderID)
		}
		if !s.isManual(o.PaymentMethod) {
			return ErrNotManualPayment
		}
		if o.Status == StatusCancelled || o.PaymentStatus == PaymentRejected {
			return ErrInvalidTransition
		}
		o.PaymentStatus = PaymentPaid
		if o.Status == StatusPending {
			o.Status = StatusProcessing
		}
		return s.Orders.Update(ctx, o)
	}); err != nil {
		return nil, err
	}

	zctx.From(ctx).Info("Payment confirmed", zap.String("order_reference", o.Reference))
	s.notify(ctx, notify.OrderPaymentConfirmed, o, "")
	return o, nil
}

// RejectPayment rejects a manual payment, cancelling the order and returning
// its stock.
func (s *Service) RejectPayment(ctx context.Context, orderID int64, reason string) (*Order, error) {
	o, err := s.cancel(ctx, orderID, "payment_rejected", func(o *Order) error {
		if !s.isManual(o.PaymentMethod) {
			return ErrNotManualPayment
		}
		if o.Status.Terminal() || o.PaymentStatus == PaymentPaid {
			return ErrInvalidTransition
		}
		o.PaymentStatus = PaymentRejected
		return nil
	})
	if err != nil {
		return nil, err
	}

	zctx.From(ctx).Info("Payment rejected",
		zap.String("order_reference", o.Reference),
		zap.String("reason", reason),
	)
	s.notify(ctx, notify.OrderPaymentRejected, o, reason)
	return o, nil
}

// Delete removes an order. Stock held by pending or processing orders is
// returned first.
func (s *Service) Delete(ctx context.Context, orderID int64) error {
	return s.delete(ctx, orderID, func(*Order) error { return nil })
}

// DeleteOwn removes one of the user's own orders. Only pending and cancelled
// orders can be deleted this way.
func (s *Service) DeleteOwn(ctx context.Context, userID, orderID int64) error {
	return s.delete(ctx, orderID, func(o *Order) error {
		if o.UserID != userID {
			return ErrForbidden
		}
		if o.Status != StatusPending && o.Status != StatusCancelled {
			return ErrInvalidTransition
		}
		return nil
	})
}

func (s *Service) delete(ctx context.Context, orderID int64, check func(*Order) error) error {
	return s.Tx.RunInTx(ctx, func(ctx context.Context) error {
		o, err := s.Orders.GetForUpdate(ctx, orderID)
		if err != nil {
			return errors.Wrapf(err, "get order %d", orderID)
		}
		if err := check(o); err != nil {
			return err
		}
		if o.Status.holdsStock() {
			if err := s.restoreStock(ctx, o); err != nil {
				return err
			}
		}
		if err := s.Orders.Delete(ctx, orderID); err != nil {
			return errors.Wrapf(err, "delete order %d", orderID)
		}
		return nil
	})
}

// cancel locks the order, lets check veto or adjust it, then marks it
// cancelled and returns its stock in one transaction.
func (s *Service) cancel(ctx context.Context, orderID int64, source string, check func(*Order) error) (_ *Order, rerr error) {
	ctx, span := tracer.Start(ctx, "order.Cancel", trace.WithAttributes(
		attribute.Int64("order_id", orderID),
		attribute.String("source", source),
	))
	defer func() {
		if rerr != nil {
			span.RecordError(rerr)
			span.SetStatus(codes.Error, rerr.Error())
		}
		span.End()
	}()

	var o *Order
	if err := s.Tx.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		if o, err = s.Orders.GetForUpdate(ctx, orderID); err != nil {
			return errors.Wrapf(err, "get order %d", orderID)
		}
		if err := check(o); err != nil {
			return err
		}
		o.Status = StatusCancelled
		if err := s.Orders.Update(ctx, o); err != nil {
			return errors.Wrap(err, "update order")
		}
		return s.restoreStock(ctx, o)
	}); err != nil {
		return nil, err
	}

	s.Metrics.cancelled(ctx, source)
	return o, nil
}

func (s *Service) restoreStock(ctx context.Context, o *Order) error {
	for _, it := range byProductID(o.Items) {
		if err := s.Stock.Restore(ctx, it.ProductID, it.Quantity); err != nil {
			return errors.Wrapf(err, "restore stock for product %d", it.ProductID)
		}
	}
	return nil
}
