package coupon

import (
	"time"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Result is the outcome of applying coupons to an order total.
type Result struct {
	// Total is the amount left after all discounts, rounded to cents.
	Total decimal.Decimal
	// Discount is the sum of all discounts, rounded to cents.
	// Gross == Total + Discount always holds.
	Discount decimal.Decimal
	// Applied lists the coupons that contributed, in application order.
	Applied []Coupon
}

// Evaluate applies coupons sequentially to total. Each applicable coupon takes
// its percentage off the running total left by the previous ones, so two 10%
// coupons yield 19% off, not 20%. Coupons that are inactive or outside their
// window at now are skipped.
func Evaluate(coupons []Coupon, total decimal.Decimal, now time.Time) Result {
	running := total
	discount := decimal.Zero
	var applied []Coupon

	for _, c := range coupons {
		if !c.ValidAt(now) {
			continue
		}
		amount := running.Mul(clampPercent(c.DiscountPercent)).Div(hundred)
		running = running.Sub(amount)
		discount = discount.Add(amount)
		applied = append(applied, c)
	}

	discount = discount.Round(2)
	return Result{
		Total:    total.Sub(discount),
		Discount: discount,
		Applied:  applied,
	}
}

func clampPercent(p decimal.Decimal) decimal.Decimal {
	if p.IsNegative() {
		return decimal.Zero
	}
	if p.GreaterThan(hundred) {
		return hundred
	}
	return p
}
