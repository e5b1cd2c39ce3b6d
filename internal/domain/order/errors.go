package order

import (
	"fmt"

	"github.com/go-faster/errors"
)

var (
	ErrNotFound              = errors.New("order not found")
	ErrAddressNotFound       = errors.New("address not found")
	ErrPaymentMethodNotFound = errors.New("payment method not found")
	ErrEmptyCart             = errors.New("cart is empty")
	ErrInvalidTransition     = errors.New("invalid order status transition")
	ErrInvalidStatus         = errors.New("unknown order status")
	ErrNotManualPayment      = errors.New("payment method is not manual")
	ErrForbidden             = errors.New("order belongs to another user")
)

// ProductNotFoundError indicates a cart line references a product that no
// longer exists.
type ProductNotFoundError struct {
	ProductID int64
}

func (e *ProductNotFoundError) Error() string {
	return fmt.Sprintf("product %d not found", e.ProductID)
}
