// Package cart holds per-user shopping carts. Each cart line keeps the price
// the product had when it was first added.
package cart

import (
	"context"
	"math"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

var (
	ErrNotFound        = errors.New("cart not found")
	ErrItemNotFound    = errors.New("cart item not found")
	ErrInvalidQuantity = errors.New("quantity must be between 1 and 2147483647")
	// ErrCacheMiss is returned by Cache.Get when no entry is stored.
	ErrCacheMiss = errors.New("cart cache miss")
)

// MaxQuantity is the largest quantity a cart line can hold, including the
// sum of repeated adds.
const MaxQuantity = math.MaxInt32

func validQuantity(q int) bool {
	return q > 0 && q <= MaxQuantity
}

// Cart is a user's single shopping cart.
type Cart struct {
	ID        int64
	UserID    int64
	CreatedAt time.Time
	Items     []Item
}

// Empty reports whether the cart has no lines.
func (c *Cart) Empty() bool {
	return c == nil || len(c.Items) == 0
}

// Item is a cart line. PriceAtAddition is fixed by the first add and never
// follows later catalog price changes.
type Item struct {
	ID              int64
	CartID          int64
	UserID          int64
	ProductID       int64
	Quantity        int
	PriceAtAddition decimal.Decimal
}

// LineItem is a product/quantity pair used for bulk adds.
type LineItem struct {
	ProductID int64
	Quantity  int
}

// Repository persists carts and their lines.
type Repository interface {
	// GetOrCreate returns the user's cart, creating it when missing.
	GetOrCreate(ctx context.Context, userID int64) (*Cart, error)
	GetByID(ctx context.Context, cartID int64) (*Cart, error)
	GetByUser(ctx context.Context, userID int64) (*Cart, error)
	GetItem(ctx context.Context, itemID int64) (*Item, error)
	// UpsertItem inserts a line or, when the product is already in the cart,
	// increments its quantity leaving the stored price untouched. A resulting
	// quantity above MaxQuantity fails with ErrInvalidQuantity.
	UpsertItem(ctx context.Context, cartID, productID int64, quantity int, price decimal.Decimal) (*Item, error)
	SetItemQuantity(ctx context.Context, itemID int64, quantity int) (*Item, error)
	DeleteItem(ctx context.Context, itemID int64) (*Item, error)
	// Clear removes every line of the cart.
	Clear(ctx context.Context, cartID int64) error
}

// Cache stores rendered carts keyed by user.
type Cache interface {
	Get(ctx context.Context, userID int64) (*Cart, error)
	Set(ctx context.Context, c *Cart) error
	Invalidate(ctx context.Context, userID int64) error
}
