// Package stock defines the ledger that owns per-product available quantity.
//
// There is no reservation state: stock is validated before checkout writes
// anything and decremented on commit. Implementations must make Deduct a
// single conditional decrement so concurrent checkouts cannot oversell.
package stock

import (
	"context"
	"fmt"
)

// Ledger is the only mutator of product stock.
type Ledger interface {
	// CheckAvailability returns *InsufficientStockError when quantity exceeds
	// the product's current stock.
	CheckAvailability(ctx context.Context, productID int64, quantity int) error
	// Deduct atomically subtracts quantity, failing with *InsufficientStockError
	// instead of letting stock go negative.
	Deduct(ctx context.Context, productID int64, quantity int) error
	// Restore adds quantity back, the inverse of Deduct.
	Restore(ctx context.Context, productID int64, quantity int) error
}

// InsufficientStockError names the product whose stock cannot cover a request.
type InsufficientStockError struct {
	ProductID int64
	Name      string
	Available int
	Requested int
}

func (e *InsufficientStockError) Error() string {
	name := e.Name
	if name == "" {
		name = fmt.Sprintf("product %d", e.ProductID)
	}
	return fmt.Sprintf("not enough stock for %s (available: %d, requested: %d)", name, e.Available, e.Requested)
}

// Check compares a known stock level with a requested quantity.
func Check(productID int64, name string, available, requested int) error {
	if requested > available {
		return &InsufficientStockError{
			ProductID: productID,
			Name:      name,
			Available: available,
			Requested: requested,
		}
	}
	return nil
}
