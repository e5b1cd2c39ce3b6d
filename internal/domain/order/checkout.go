package order

import (
	"context"
	"slices"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/xenking/kart-checkout/internal/domain/address"
	"github.com/xenking/kart-checkout/internal/domain/cart"
	"github.com/xenking/kart-checkout/internal/domain/coupon"
	"github.com/xenking/kart-checkout/internal/domain/payment"
	"github.com/xenking/kart-checkout/internal/domain/product"
	"github.com/xenking/kart-checkout/internal/domain/stock"
	"github.com/xenking/kart-checkout/internal/notify"
)

// CheckoutRequest holds the input for turning a user's cart into an order.
type CheckoutRequest struct {
	UserID          int64
	AddressID       int64
	PaymentMethodID int64
	// CouponIDs are applied in the given order. Duplicates are ignored.
	CouponIDs []int64
}

// Checkout converts the user's cart into an order. The cart is locked, stock
// is validated and then deducted within the transaction that creates the
// order, so a failure at any step leaves stock, cart and orders untouched.
func (s *Service) Checkout(ctx context.Context, req CheckoutRequest) (_ *Order, rerr error) {
	ctx, span := tracer.Start(ctx, "order.Checkout", trace.WithAttributes(
		attribute.Int64("user_id", req.UserID),
	))
	defer func() {
		if rerr != nil {
			span.RecordError(rerr)
			span.SetStatus(codes.Error, rerr.Error())
			s.Metrics.checkoutFailed(ctx, failureReason(rerr))
		}
		span.End()
	}()

	var o *Order
	if err := s.Tx.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		o, err = s.placeOrder(ctx, req)
		return err
	}); err != nil {
		return nil, err
	}

	span.SetAttributes(attribute.String("order_reference", o.Reference))
	zctx.From(ctx).Info("Order placed",
		zap.Int64("order_id", o.ID),
		zap.String("order_reference", o.Reference),
		zap.String("total", o.Total.StringFixed(2)),
	)

	if s.CartCache != nil {
		s.CartCache.Invalidate(ctx, req.UserID)
	}
	s.Metrics.checkout(ctx, o.PaymentStatus)
	s.notify(ctx, notify.OrderCreated, o, "")

	return o, nil
}

// placeOrder runs inside the checkout transaction. The cart is read under a
// row lock, so a second checkout of the same cart waits here and then finds
// it empty.
func (s *Service) placeOrder(ctx context.Context, req CheckoutRequest) (*Order, error) {
	c, err := s.Carts.GetByUserForUpdate(ctx, req.UserID)
	if err != nil {
		if errors.Is(err, cart.ErrNotFound) {
			return nil, ErrEmptyCart
		}
		return nil, errors.Wrap(err, "get cart")
	}
	if c.Empty() {
		return nil, ErrEmptyCart
	}

	method, err := s.Payments.GetActiveByID(ctx, req.PaymentMethodID)
	if err != nil {
		if errors.Is(err, payment.ErrNotFound) {
			return nil, ErrPaymentMethodNotFound
		}
		return nil, errors.Wrap(err, "get payment method")
	}
	addr, err := s.Addresses.GetByID(ctx, req.AddressID)
	if err != nil {
		if errors.Is(err, address.ErrNotFound) {
			return nil, ErrAddressNotFound
		}
		return nil, errors.Wrap(err, "get address")
	}
	if addr.UserID != req.UserID {
		return nil, ErrAddressNotFound
	}

	products, err := s.loadProducts(ctx, c.Items)
	if err != nil {
		return nil, err
	}
	for _, it := range c.Items {
		p := products[it.ProductID]
		if err := stock.Check(p.ID, p.Name, p.Stock, it.Quantity); err != nil {
			return nil, err
		}
	}

	summary := cart.RenderSummary(c, s.TaxRate)
	coupons, err := s.loadCoupons(ctx, req.CouponIDs)
	if err != nil {
		return nil, err
	}
	priced := coupon.Evaluate(coupons, summary.Total, s.Now())

	paymentStatus := PaymentPending
	if s.isManual(method.Provider) {
		paymentStatus = PaymentAwaitingConfirmation
	}

	o := &Order{
		Reference:       s.NewReference(),
		UserID:          req.UserID,
		AddressID:       addr.ID,
		PaymentMethodID: method.ID,
		PaymentMethod:   method.Provider,
		Status:          StatusPending,
		PaymentStatus:   paymentStatus,
		Subtotal:        summary.Subtotal,
		Tax:             summary.Tax,
		Discount:        priced.Discount,
		Total:           priced.Total,
	}
	for _, cp := range priced.Applied {
		o.CouponIDs = append(o.CouponIDs, cp.ID)
	}
	for _, it := range c.Items {
		o.Items = append(o.Items, Item{
			ProductID:   it.ProductID,
			ProductName: products[it.ProductID].Name,
			Quantity:    it.Quantity,
			Price:       it.PriceAtAddition,
		})
	}

	if err := s.persistCheckout(ctx, o, c.ID); err != nil {
		return nil, err
	}
	return o, nil
}

func (s *Service) persistCheckout(ctx context.Context, o *Order, cartID int64) error {
	if err := s.Orders.Create(ctx, o); err != nil {
		return errors.Wrap(err, "create order")
	}
	for i := range o.Items {
		o.Items[i].OrderID = o.ID
	}
	if err := s.Orders.AddItems(ctx, o.ID, o.Items); err != nil {
		return errors.Wrap(err, "add order items")
	}
	for _, it := range byProductID(o.Items) {
		if err := s.Stock.Deduct(ctx, it.ProductID, it.Quantity); err != nil {
			return errors.Wrapf(err, "deduct stock for product %d", it.ProductID)
		}
	}
	if len(o.CouponIDs) > 0 {
		if err := s.Orders.AttachCoupons(ctx, o.ID, o.CouponIDs); err != nil {
			return errors.Wrap(err, "attach coupons")
		}
	}
	if err := s.Carts.Clear(ctx, cartID); err != nil {
		return errors.Wrap(err, "clear cart")
	}
	return nil
}

func (s *Service) loadProducts(ctx context.Context, items []cart.Item) (map[int64]product.Product, error) {
	ids := make([]int64, 0, len(items))
	for _, it := range items {
		ids = append(ids, it.ProductID)
	}
	fetched, err := s.Products.GetByIDs(ctx, ids)
	if err != nil {
		return nil, errors.Wrap(err, "get products")
	}
	byID := make(map[int64]product.Product, len(fetched))
	for _, p := range fetched {
		byID[p.ID] = p
	}
	for _, it := range items {
		if _, ok := byID[it.ProductID]; !ok {
			return nil, &ProductNotFoundError{ProductID: it.ProductID}
		}
	}
	return byID, nil
}

func (s *Service) loadCoupons(ctx context.Context, ids []int64) ([]coupon.Coupon, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	uniq := make([]int64, 0, len(ids))
	for _, id := range ids {
		if !slices.Contains(uniq, id) {
			uniq = append(uniq, id)
		}
	}
	coupons, err := s.Coupons.FindActiveByIDs(ctx, uniq)
	if err != nil {
		return nil, errors.Wrap(err, "find coupons")
	}
	return coupons, nil
}

// byProductID returns items sorted by product id so concurrent transactions
// lock product rows in the same order.
func byProductID(items []Item) []Item {
	sorted := slices.Clone(items)
	slices.SortFunc(sorted, func(a, b Item) int {
		switch {
		case a.ProductID < b.ProductID:
			return -1
		case a.ProductID > b.ProductID:
			return 1
		}
		return 0
	})
	return sorted
}

func failureReason(err error) string {
	var (
		stockErr   *stock.InsufficientStockError
		productErr *ProductNotFoundError
	)
	switch {
	case errors.As(err, &stockErr):
		return "insufficient_stock"
	case errors.As(err, &productErr):
		return "product_not_found"
	case errors.Is(err, ErrEmptyCart):
		return "empty_cart"
	case errors.Is(err, ErrAddressNotFound):
		return "address_not_found"
	case errors.Is(err, ErrPaymentMethodNotFound):
		return "payment_method_not_found"
	}
	return "internal"
}
