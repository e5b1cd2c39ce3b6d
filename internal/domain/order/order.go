package order

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/kart-checkout/internal/domain/cart"
)

// Status is the fulfilment state of an order.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusShipped    Status = "shipped"
	StatusDelivered  Status = "delivered"
	StatusCancelled  Status = "cancelled"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusShipped, StatusDelivered, StatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether no further transition is allowed from s.
func (s Status) Terminal() bool {
	return s == StatusDelivered || s == StatusCancelled
}

// holdsStock reports whether an order in status s still owns deducted stock
// that has not shipped.
func (s Status) holdsStock() bool {
	return s == StatusPending || s == StatusProcessing
}

// PaymentStatus tracks settlement independently of fulfilment.
type PaymentStatus string

const (
	PaymentPending              PaymentStatus = "pending"
	PaymentAwaitingConfirmation PaymentStatus = "awaiting_confirmation"
	PaymentPaid                 PaymentStatus = "paid"
	PaymentRejected             PaymentStatus = "rejected"
	PaymentFailed               PaymentStatus = "failed"
)

// Valid reports whether p is a known payment status.
func (p PaymentStatus) Valid() bool {
	switch p {
	case PaymentPending, PaymentAwaitingConfirmation, PaymentPaid, PaymentRejected, PaymentFailed:
		return true
	}
	return false
}

// Order is an immutable record of a checkout. Only the status fields and
// their timestamps change after creation.
type Order struct {
	ID              int64
	Reference       string
	UserID          int64
	AddressID       int64
	PaymentMethodID int64
	// PaymentMethod is the provider of the chosen payment method.
	PaymentMethod string
	Status        Status
	PaymentStatus PaymentStatus
	Subtotal      decimal.Decimal
	Tax           decimal.Decimal
	Discount      decimal.Decimal
	Total         decimal.Decimal
	CouponIDs     []int64
	Items         []Item
	CreatedAt     time.Time
	ShippedAt     *time.Time
	DeliveredAt   *time.Time
}

// Item is an order line with the price and name captured at checkout.
type Item struct {
	ID          int64
	OrderID     int64
	ProductID   int64
	ProductName string
	Quantity    int
	Price       decimal.Decimal
}

// Repository defines persistence operations for orders.
type Repository interface {
	// Create inserts the order row and fills ID and CreatedAt.
	Create(ctx context.Context, o *Order) error
	AddItems(ctx context.Context, orderID int64, items []Item) error
	AttachCoupons(ctx context.Context, orderID int64, couponIDs []int64) error
	Get(ctx context.Context, id int64) (*Order, error)
	// GetForUpdate is Get with the order row locked until the surrounding
	// transaction ends.
	GetForUpdate(ctx context.Context, id int64) (*Order, error)
	ListByUser(ctx context.Context, userID int64) ([]Order, error)
	List(ctx context.Context) ([]Order, error)
	// Update persists the status fields of o.
	Update(ctx context.Context, o *Order) error
	Delete(ctx context.Context, id int64) error
}

// TxRunner runs fn in a single database transaction. Repositories called
// with the context passed to fn take part in that transaction.
type TxRunner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// CartStore is the part of the cart store checkout needs.
type CartStore interface {
	// GetByUserForUpdate reads the cart and locks it for the rest of the
	// transaction.
	GetByUserForUpdate(ctx context.Context, userID int64) (*cart.Cart, error)
	Clear(ctx context.Context, cartID int64) error
}

// CartInvalidator drops cached cart views.
type CartInvalidator interface {
	Invalidate(ctx context.Context, userID int64)
}
