package order

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/kart-checkout/internal/domain/address"
	"github.com/xenking/kart-checkout/internal/domain/cart"
	"github.com/xenking/kart-checkout/internal/domain/coupon"
	"github.com/xenking/kart-checkout/internal/domain/payment"
	"github.com/xenking/kart-checkout/internal/domain/product"
	"github.com/xenking/kart-checkout/internal/domain/stock"
	"github.com/xenking/kart-checkout/internal/notify"
)

const (
	userID      = int64(1)
	otherUserID = int64(2)

	productA = int64(10)
	productB = int64(20)

	homeAddress  = int64(100)
	otherAddress = int64(101)

	cardPayment     = int64(1)
	transferPayment = int64(2)
	disabledPayment = int64(3)
)

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	store    *memStore
	svc      *Service
	notifier *fakeNotifier
	cache    *fakeInvalidator
}

// newFixture seeds product A ($10, stock 5), product B ($20, stock 3) and a
// cart holding 2×A and 1×B for userID.
func newFixture(t *testing.T) *fixture {
	t.Helper()

	store := newMemStore()
	store.products[productA] = product.Product{ID: productA, Name: "A", Price: dec("10.00"), Stock: 5}
	store.products[productB] = product.Product{ID: productB, Name: "B", Price: dec("20.00"), Stock: 3}
	store.addresses[homeAddress] = address.Address{ID: homeAddress, UserID: userID, City: "Lagos", Country: "NG"}
	store.addresses[otherAddress] = address.Address{ID: otherAddress, UserID: otherUserID}
	store.payments[cardPayment] = payment.Method{ID: cardPayment, Name: "Card", Provider: "stripe", Active: true}
	store.payments[transferPayment] = payment.Method{ID: transferPayment, Name: "GTBank", Provider: "GTBank", Active: true}
	store.payments[disabledPayment] = payment.Method{ID: disabledPayment, Provider: "stripe"}
	store.coupons[1] = coupon.Coupon{ID: 1, Code: "TEN", DiscountPercent: dec("10"), ValidFrom: testNow.Add(-time.Hour), ValidTo: testNow.Add(time.Hour), Active: true}
	store.coupons[2] = coupon.Coupon{ID: 2, Code: "OFF", DiscountPercent: dec("50"), Active: false}
	store.coupons[3] = coupon.Coupon{ID: 3, Code: "OLD", DiscountPercent: dec("50"), ValidFrom: testNow.Add(-48 * time.Hour), ValidTo: testNow.Add(-24 * time.Hour), Active: true}
	store.setCart(userID,
		cart.Item{ProductID: productA, Quantity: 2, PriceAtAddition: dec("10.00")},
		cart.Item{ProductID: productB, Quantity: 1, PriceAtAddition: dec("20.00")},
	)

	notifier := &fakeNotifier{}
	cache := &fakeInvalidator{}
	svc := NewService(Deps{
		Carts:        fakeCarts{store},
		CartCache:    cache,
		Products:     fakeProducts{store},
		Stock:        fakeProducts{store},
		Coupons:      fakeCoupons{store},
		Orders:       fakeOrders{store},
		Addresses:    fakeAddresses{store},
		Payments:     fakePayments{store},
		Tx:           store,
		Notifier:     notifier,
		Now:          func() time.Time { return testNow },
		NewReference: func() string { return "ORD-TEST" },
	})
	return &fixture{store: store, svc: svc, notifier: notifier, cache: cache}
}

func (f *fixture) checkout(t *testing.T, req CheckoutRequest) *Order {
	t.Helper()
	o, err := f.svc.Checkout(context.Background(), req)
	require.NoError(t, err)
	return o
}

func defaultRequest() CheckoutRequest {
	return CheckoutRequest{UserID: userID, AddressID: homeAddress, PaymentMethodID: cardPayment}
}

func TestCheckout(t *testing.T) {
	tests := []struct {
		name          string
		couponIDs     []int64
		payment       int64
		wantTotal     string
		wantDiscount  string
		wantCoupons   []int64
		wantPayStatus PaymentStatus
	}{
		{
			name:          "no coupons",
			payment:       cardPayment,
			wantTotal:     "42.00",
			wantDiscount:  "0",
			wantPayStatus: PaymentPending,
		},
		{
			name:          "ten percent coupon",
			couponIDs:     []int64{1},
			payment:       cardPayment,
			wantTotal:     "37.80",
			wantDiscount:  "4.20",
			wantCoupons:   []int64{1},
			wantPayStatus: PaymentPending,
		},
		{
			name:          "duplicate, inactive and expired coupons ignored",
			couponIDs:     []int64{1, 2, 1, 3, 999},
			payment:       cardPayment,
			wantTotal:     "37.80",
			wantDiscount:  "4.20",
			wantCoupons:   []int64{1},
			wantPayStatus: PaymentPending,
		},
		{
			name:          "manual provider awaits confirmation",
			payment:       transferPayment,
			wantTotal:     "42.00",
			wantDiscount:  "0",
			wantPayStatus: PaymentAwaitingConfirmation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			req := defaultRequest()
			req.PaymentMethodID = tt.payment
			req.CouponIDs = tt.couponIDs

			o := f.checkout(t, req)

			assert.Equal(t, "ORD-TEST", o.Reference)
			assert.Equal(t, StatusPending, o.Status)
			assert.Equal(t, tt.wantPayStatus, o.PaymentStatus)
			assert.True(t, dec("40.00").Equal(o.Subtotal), "subtotal %s", o.Subtotal)
			assert.True(t, dec("2.00").Equal(o.Tax), "tax %s", o.Tax)
			assert.True(t, dec(tt.wantTotal).Equal(o.Total), "total %s", o.Total)
			assert.True(t, dec(tt.wantDiscount).Equal(o.Discount), "discount %s", o.Discount)
			assert.True(t, o.Subtotal.Add(o.Tax).Equal(o.Total.Add(o.Discount)))

			stored, err := f.svc.Get(context.Background(), o.ID)
			require.NoError(t, err)
			require.Len(t, stored.Items, 2)
			assert.Equal(t, "A", stored.Items[0].ProductName)
			assert.Equal(t, 2, stored.Items[0].Quantity)
			assert.True(t, dec("10.00").Equal(stored.Items[0].Price))
			assert.Equal(t, tt.wantCoupons, stored.CouponIDs)

			assert.Equal(t, 3, f.store.stockOf(productA))
			assert.Equal(t, 2, f.store.stockOf(productB))
			assert.Empty(t, f.store.carts[userID].Items)
			assert.Equal(t, []int64{userID}, f.cache.users)

			require.Equal(t, []notify.Type{notify.OrderCreated}, f.notifier.types())
			ev := f.notifier.events[0]
			assert.Equal(t, "ORD-TEST", ev.Reference)
			require.NotNil(t, ev.Address)
			assert.Equal(t, "Lagos", ev.Address.City)
			assert.Len(t, ev.Items, 2)
		})
	}
}

func TestCheckout_UsesSnapshotPrice(t *testing.T) {
	f := newFixture(t)
	p := f.store.products[productA]
	p.Price = dec("99.00")
	f.store.products[productA] = p

	o := f.checkout(t, defaultRequest())
	assert.True(t, dec("42.00").Equal(o.Total), "total %s", o.Total)
}

func TestCheckout_Failures(t *testing.T) {
	tests := []struct {
		name    string
		prepare func(f *fixture)
		req     func() CheckoutRequest
		check   func(t *testing.T, err error)
	}{
		{
			name: "insufficient stock",
			prepare: func(f *fixture) {
				p := f.store.products[productB]
				p.Stock = 0
				f.store.products[productB] = p
			},
			check: func(t *testing.T, err error) {
				var stockErr *stock.InsufficientStockError
				require.ErrorAs(t, err, &stockErr)
				assert.Equal(t, productB, stockErr.ProductID)
				assert.Equal(t, 0, stockErr.Available)
				assert.Equal(t, 1, stockErr.Requested)
				assert.Contains(t, err.Error(), "not enough stock for B")
			},
		},
		{
			name: "stock taken between validation and deduction",
			prepare: func(f *fixture) {
				f.store.beforeDeduct = func(m *memStore) {
					p := m.products[productB]
					p.Stock = 0
					m.products[productB] = p
				}
			},
			check: func(t *testing.T, err error) {
				var stockErr *stock.InsufficientStockError
				require.ErrorAs(t, err, &stockErr)
				assert.Equal(t, productB, stockErr.ProductID)
			},
		},
		{
			name: "missing product",
			prepare: func(f *fixture) {
				delete(f.store.products, productB)
			},
			check: func(t *testing.T, err error) {
				var notFound *ProductNotFoundError
				require.ErrorAs(t, err, &notFound)
				assert.Equal(t, productB, notFound.ProductID)
			},
		},
		{
			name: "empty cart",
			prepare: func(f *fixture) {
				f.store.setCart(userID)
			},
			check: func(t *testing.T, err error) {
				require.ErrorIs(t, err, ErrEmptyCart)
			},
		},
		{
			name: "no cart",
			prepare: func(f *fixture) {
				delete(f.store.carts, userID)
			},
			check: func(t *testing.T, err error) {
				require.ErrorIs(t, err, ErrEmptyCart)
			},
		},
		{
			name: "empty cart reported before a bad address",
			prepare: func(f *fixture) {
				f.store.setCart(userID)
			},
			req: func() CheckoutRequest {
				r := defaultRequest()
				r.AddressID = 404
				r.PaymentMethodID = disabledPayment
				return r
			},
			check: func(t *testing.T, err error) {
				require.ErrorIs(t, err, ErrEmptyCart)
			},
		},
		{
			name: "address of another user",
			req: func() CheckoutRequest {
				r := defaultRequest()
				r.AddressID = otherAddress
				return r
			},
			check: func(t *testing.T, err error) {
				require.ErrorIs(t, err, ErrAddressNotFound)
			},
		},
		{
			name: "unknown address",
			req: func() CheckoutRequest {
				r := defaultRequest()
				r.AddressID = 404
				return r
			},
			check: func(t *testing.T, err error) {
				require.ErrorIs(t, err, ErrAddressNotFound)
			},
		},
		{
			name: "inactive payment method",
			req: func() CheckoutRequest {
				r := defaultRequest()
				r.PaymentMethodID = disabledPayment
				return r
			},
			check: func(t *testing.T, err error) {
				require.ErrorIs(t, err, ErrPaymentMethodNotFound)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			if tt.prepare != nil {
				tt.prepare(f)
			}
			req := defaultRequest()
			if tt.req != nil {
				req = tt.req()
			}
			stockA := f.store.stockOf(productA)
			cartBefore := f.store.cartSize(userID)

			o, err := f.svc.Checkout(context.Background(), req)
			require.Error(t, err)
			assert.Nil(t, o)
			tt.check(t, err)

			assert.Equal(t, stockA, f.store.stockOf(productA), "stock of A must be untouched")
			assert.Empty(t, f.store.orders)
			assert.Equal(t, cartBefore, f.store.cartSize(userID))
			assert.Empty(t, f.notifier.types())
			assert.Empty(t, f.cache.users)
		})
	}
}

// lockedHook calls onLocked once, right after the first checkout has read and
// locked the cart.
type lockedHook struct {
	CartStore
	once     sync.Once
	onLocked func()
}

func (h *lockedHook) GetByUserForUpdate(ctx context.Context, userID int64) (*cart.Cart, error) {
	c, err := h.CartStore.GetByUserForUpdate(ctx, userID)
	h.once.Do(h.onLocked)
	return c, err
}

func TestCheckout_SameCartConcurrently(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	second := make(chan error, 1)
	f.svc.Carts = &lockedHook{
		CartStore: f.svc.Carts,
		onLocked: func() {
			go func() {
				_, err := f.svc.Checkout(ctx, defaultRequest())
				second <- err
			}()
		},
	}

	first := f.checkout(t, defaultRequest())
	require.ErrorIs(t, <-second, ErrEmptyCart)

	orders, err := f.svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, first.ID, orders[0].ID)
	assert.Equal(t, 3, f.store.stockOf(productA), "stock deducted once")
	assert.Equal(t, 2, f.store.stockOf(productB), "stock deducted once")
	assert.Equal(t, []notify.Type{notify.OrderCreated}, f.notifier.types())
}

func TestCheckout_CartLockedInsideTransaction(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Carts.GetByUserForUpdate(context.Background(), userID)
	require.ErrorIs(t, err, errNoTx)

	f.checkout(t, defaultRequest())
}

func TestCancel(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	o := f.checkout(t, defaultRequest())
	require.Equal(t, 3, f.store.stockOf(productA))

	cancelled, err := f.svc.Cancel(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, cancelled.Status)
	assert.Equal(t, PaymentPending, cancelled.PaymentStatus)
	assert.Equal(t, 5, f.store.stockOf(productA))
	assert.Equal(t, 3, f.store.stockOf(productB))

	_, err = f.svc.Cancel(ctx, o.ID)
	require.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, 5, f.store.stockOf(productA), "second cancel must not restore again")

	_, err = f.svc.Cancel(ctx, 999)
	require.ErrorIs(t, err, ErrNotFound)

	assert.Equal(t, []notify.Type{notify.OrderCreated, notify.OrderCancelled}, f.notifier.types())
}

func TestCancel_Processing(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	req := defaultRequest()
	req.PaymentMethodID = transferPayment
	o := f.checkout(t, req)

	confirmed, err := f.svc.ConfirmPayment(ctx, o.ID)
	require.NoError(t, err)
	require.Equal(t, StatusProcessing, confirmed.Status)
	require.Equal(t, 3, f.store.stockOf(productA))
	require.Equal(t, 2, f.store.stockOf(productB))

	cancelled, err := f.svc.Cancel(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, cancelled.Status)
	assert.Equal(t, PaymentPaid, cancelled.PaymentStatus)
	assert.Equal(t, 5, f.store.stockOf(productA))
	assert.Equal(t, 3, f.store.stockOf(productB))

	_, err = f.svc.Cancel(ctx, o.ID)
	require.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, 5, f.store.stockOf(productA))
	assert.Equal(t, 3, f.store.stockOf(productB))
}

func TestCancel_Delivered(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	o := f.checkout(t, defaultRequest())

	_, err := f.svc.UpdateStatus(ctx, o.ID, StatusDelivered)
	require.NoError(t, err)

	_, err = f.svc.Cancel(ctx, o.ID)
	require.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, 3, f.store.stockOf(productA))
}

func TestUpdateStatus(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	o := f.checkout(t, defaultRequest())

	_, err := f.svc.UpdateStatus(ctx, o.ID, Status("lost"))
	require.ErrorIs(t, err, ErrInvalidStatus)

	shipped, err := f.svc.UpdateStatus(ctx, o.ID, StatusShipped)
	require.NoError(t, err)
	assert.Equal(t, StatusShipped, shipped.Status)
	require.NotNil(t, shipped.ShippedAt)
	assert.Equal(t, testNow, *shipped.ShippedAt)
	assert.Nil(t, shipped.DeliveredAt)

	delivered, err := f.svc.UpdateStatus(ctx, o.ID, StatusDelivered)
	require.NoError(t, err)
	require.NotNil(t, delivered.DeliveredAt)
	require.NotNil(t, delivered.ShippedAt)

	_, err = f.svc.UpdateStatus(ctx, 999, StatusShipped)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateStatus_CancelRestoresStock(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	o := f.checkout(t, defaultRequest())

	got, err := f.svc.UpdateStatus(ctx, o.ID, StatusCancelled)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, got.Status)
	assert.Equal(t, 5, f.store.stockOf(productA))

	_, err = f.svc.UpdateStatus(ctx, o.ID, StatusProcessing)
	require.ErrorIs(t, err, ErrInvalidTransition)
}

func TestConfirmPayment(t *testing.T) {
	ctx := context.Background()

	t.Run("manual order", func(t *testing.T) {
		f := newFixture(t)
		req := defaultRequest()
		req.PaymentMethodID = transferPayment
		o := f.checkout(t, req)

		got, err := f.svc.ConfirmPayment(ctx, o.ID)
		require.NoError(t, err)
		assert.Equal(t, PaymentPaid, got.PaymentStatus)
		assert.Equal(t, StatusProcessing, got.Status)
		assert.Equal(t, []notify.Type{notify.OrderCreated, notify.OrderPaymentConfirmed}, f.notifier.types())
	})

	t.Run("non-manual order", func(t *testing.T) {
		f := newFixture(t)
		o := f.checkout(t, defaultRequest())

		_, err := f.svc.ConfirmPayment(ctx, o.ID)
		require.ErrorIs(t, err, ErrNotManualPayment)
	})

	t.Run("cancelled order", func(t *testing.T) {
		f := newFixture(t)
		req := defaultRequest()
		req.PaymentMethodID = transferPayment
		o := f.checkout(t, req)
		_, err := f.svc.Cancel(ctx, o.ID)
		require.NoError(t, err)

		_, err = f.svc.ConfirmPayment(ctx, o.ID)
		require.ErrorIs(t, err, ErrInvalidTransition)
	})
}

func TestRejectPayment(t *testing.T) {
	ctx := context.Background()

	t.Run("manual order", func(t *testing.T) {
		f := newFixture(t)
		req := defaultRequest()
		req.PaymentMethodID = transferPayment
		o := f.checkout(t, req)

		got, err := f.svc.RejectPayment(ctx, o.ID, "no transfer received")
		require.NoError(t, err)
		assert.Equal(t, PaymentRejected, got.PaymentStatus)
		assert.Equal(t, StatusCancelled, got.Status)
		assert.Equal(t, 5, f.store.stockOf(productA))
		assert.Equal(t, 3, f.store.stockOf(productB))

		types := f.notifier.types()
		require.Equal(t, []notify.Type{notify.OrderCreated, notify.OrderPaymentRejected}, types)
		assert.Equal(t, "no transfer received", f.notifier.events[1].Reason)

		_, err = f.svc.RejectPayment(ctx, o.ID, "again")
		require.ErrorIs(t, err, ErrInvalidTransition)
		assert.Equal(t, 5, f.store.stockOf(productA))
	})

	t.Run("non-manual order", func(t *testing.T) {
		f := newFixture(t)
		o := f.checkout(t, defaultRequest())

		_, err := f.svc.RejectPayment(ctx, o.ID, "")
		require.ErrorIs(t, err, ErrNotManualPayment)
		assert.Equal(t, 3, f.store.stockOf(productA))
	})
}

func TestDeleteOwn(t *testing.T) {
	ctx := context.Background()

	t.Run("pending order returns stock", func(t *testing.T) {
		f := newFixture(t)
		o := f.checkout(t, defaultRequest())

		require.NoError(t, f.svc.DeleteOwn(ctx, userID, o.ID))
		assert.Empty(t, f.store.orders)
		assert.Equal(t, 5, f.store.stockOf(productA))
	})

	t.Run("cancelled order keeps restored stock", func(t *testing.T) {
		f := newFixture(t)
		o := f.checkout(t, defaultRequest())
		_, err := f.svc.Cancel(ctx, o.ID)
		require.NoError(t, err)

		require.NoError(t, f.svc.DeleteOwn(ctx, userID, o.ID))
		assert.Equal(t, 5, f.store.stockOf(productA))
	})

	t.Run("another user's order", func(t *testing.T) {
		f := newFixture(t)
		o := f.checkout(t, defaultRequest())

		require.ErrorIs(t, f.svc.DeleteOwn(ctx, otherUserID, o.ID), ErrForbidden)
		assert.Len(t, f.store.orders, 1)
	})

	t.Run("shipped order", func(t *testing.T) {
		f := newFixture(t)
		o := f.checkout(t, defaultRequest())
		_, err := f.svc.UpdateStatus(ctx, o.ID, StatusShipped)
		require.NoError(t, err)

		require.ErrorIs(t, f.svc.DeleteOwn(ctx, userID, o.ID), ErrInvalidTransition)
		assert.Equal(t, 3, f.store.stockOf(productA))
	})
}

func TestDelete(t *testing.T) {
	ctx := context.Background()

	t.Run("processing order returns stock", func(t *testing.T) {
		f := newFixture(t)
		o := f.checkout(t, defaultRequest())
		_, err := f.svc.UpdateStatus(ctx, o.ID, StatusProcessing)
		require.NoError(t, err)

		require.NoError(t, f.svc.Delete(ctx, o.ID))
		assert.Equal(t, 5, f.store.stockOf(productA))
	})

	t.Run("shipped order keeps stock deducted", func(t *testing.T) {
		f := newFixture(t)
		o := f.checkout(t, defaultRequest())
		_, err := f.svc.UpdateStatus(ctx, o.ID, StatusShipped)
		require.NoError(t, err)

		require.NoError(t, f.svc.Delete(ctx, o.ID))
		assert.Equal(t, 3, f.store.stockOf(productA))
	})

	t.Run("unknown order", func(t *testing.T) {
		f := newFixture(t)
		require.ErrorIs(t, f.svc.Delete(ctx, 42), ErrNotFound)
	})
}

func TestListByUser(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	first := f.checkout(t, defaultRequest())

	f.store.setCart(userID, cart.Item{ProductID: productA, Quantity: 1, PriceAtAddition: dec("10.00")})
	second := f.checkout(t, defaultRequest())

	orders, err := f.svc.ListByUser(ctx, userID)
	require.NoError(t, err)
	require.Len(t, orders, 2)
	assert.Equal(t, second.ID, orders[0].ID)
	assert.Equal(t, first.ID, orders[1].ID)

	orders, err = f.svc.ListByUser(ctx, otherUserID)
	require.NoError(t, err)
	assert.Empty(t, orders)

	all, err := f.svc.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}
