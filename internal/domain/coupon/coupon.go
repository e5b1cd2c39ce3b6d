package coupon

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Coupon is a percentage discount with a validity window.
type Coupon struct {
	ID              int64
	Code            string
	DiscountPercent decimal.Decimal
	ValidFrom       time.Time
	ValidTo         time.Time
	Active          bool
}

// ValidAt reports whether the coupon is active and now falls inside its
// window. Both bounds are inclusive.
func (c Coupon) ValidAt(now time.Time) bool {
	if !c.Active {
		return false
	}
	if !c.ValidFrom.IsZero() && now.Before(c.ValidFrom) {
		return false
	}
	if !c.ValidTo.IsZero() && now.After(c.ValidTo) {
		return false
	}
	return true
}

// Repository provides read-only access to the coupon store.
type Repository interface {
	// FindActiveByIDs returns the active coupons among ids, in the order the
	// ids were given. Unknown or inactive ids are omitted.
	FindActiveByIDs(ctx context.Context, ids []int64) ([]Coupon, error)
}
