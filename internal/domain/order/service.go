package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/kart-checkout/internal/domain/address"
	"github.com/xenking/kart-checkout/internal/domain/cart"
	"github.com/xenking/kart-checkout/internal/domain/coupon"
	"github.com/xenking/kart-checkout/internal/domain/payment"
	"github.com/xenking/kart-checkout/internal/domain/product"
	"github.com/xenking/kart-checkout/internal/domain/stock"
	"github.com/xenking/kart-checkout/internal/notify"
)

// Notifier delivers order events without blocking the caller.
type Notifier interface {
	Dispatch(ctx context.Context, ev notify.Event)
}

// Deps lists the collaborators of Service. Notifier, CartCache, Metrics,
// Now and NewReference are optional.
type Deps struct {
	Carts     CartStore
	CartCache CartInvalidator
	Products  product.Repository
	Stock     stock.Ledger
	Coupons   coupon.Repository
	Orders    Repository
	Addresses address.Repository
	Payments  payment.Repository
	Tx        TxRunner
	Notifier  Notifier
	Metrics   *Metrics

	TaxRate         decimal.Decimal
	ManualProviders []string

	Now          func() time.Time
	NewReference func() string
}

// Service implements checkout and the order lifecycle.
type Service struct {
	Deps
}

// NewService creates an order Service, filling defaults for optional deps.
func NewService(d Deps) *Service {
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.NewReference == nil {
		d.NewReference = NewReference
	}
	if d.TaxRate.IsZero() {
		d.TaxRate = cart.DefaultTaxRate
	}
	if d.ManualProviders == nil {
		d.ManualProviders = payment.DefaultManualProviders
	}
	return &Service{Deps: d}
}

// Get returns an order with its items.
func (s *Service) Get(ctx context.Context, orderID int64) (*Order, error) {
	o, err := s.Orders.Get(ctx, orderID)
	if err != nil {
		return nil, errors.Wrapf(err, "get order %d", orderID)
	}
	return o, nil
}

// ListByUser returns the user's orders, newest first.
func (s *Service) ListByUser(ctx context.Context, userID int64) ([]Order, error) {
	orders, err := s.Orders.ListByUser(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "list user orders")
	}
	return orders, nil
}

// List returns every order, newest first.
func (s *Service) List(ctx context.Context) ([]Order, error) {
	orders, err := s.Orders.List(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "list orders")
	}
	return orders, nil
}

func (s *Service) isManual(provider string) bool {
	return payment.Method{Provider: provider}.IsManual(s.ManualProviders)
}

// notify builds an event for o and hands it to the notifier. Address lookup
// failures only drop the address from the event.
func (s *Service) notify(ctx context.Context, typ notify.Type, o *Order, reason string) {
	if s.Notifier == nil {
		return
	}
	ev := notify.Event{
		Type:          typ,
		OrderID:       o.ID,
		Reference:     o.Reference,
		UserID:        o.UserID,
		Status:        string(o.Status),
		PaymentStatus: string(o.PaymentStatus),
		Total:         o.Total,
		Reason:        reason,
		OccurredAt:    s.Now(),
	}
	for _, it := range o.Items {
		ev.Items = append(ev.Items, notify.Item{Name: it.ProductName, Quantity: it.Quantity, Price: it.Price})
	}
	if s.Addresses != nil {
		a, err := s.Addresses.GetByID(ctx, o.AddressID)
		if err != nil {
			zctx.From(ctx).Warn("Event address lookup failed", zap.Int64("order_id", o.ID), zap.Error(err))
		} else {
			ev.Address = &notify.Address{City: a.City, State: a.State, Country: a.Country, PostalCode: a.PostalCode}
		}
	}
	s.Notifier.Dispatch(ctx, ev)
}
