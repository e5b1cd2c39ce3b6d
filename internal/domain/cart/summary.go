package cart

import "github.com/shopspring/decimal"

// DefaultTaxRate is the flat tax applied to cart subtotals.
var DefaultTaxRate = decimal.RequireFromString("0.05")

// Summary is the priced view of a cart.
type Summary struct {
	Items    []Item
	Subtotal decimal.Decimal
	Tax      decimal.Decimal
	Total    decimal.Decimal
}

// RenderSummary prices a cart from the snapshot prices on its lines.
func RenderSummary(c *Cart, taxRate decimal.Decimal) Summary {
	var items []Item
	if c != nil {
		items = c.Items
	}
	subtotal := decimal.Zero
	for _, it := range items {
		subtotal = subtotal.Add(it.PriceAtAddition.Mul(decimal.NewFromInt(int64(it.Quantity))))
	}
	subtotal = subtotal.Round(2)
	tax := subtotal.Mul(taxRate).Round(2)
	return Summary{
		Items:    items,
		Subtotal: subtotal,
		Tax:      tax,
		Total:    subtotal.Add(tax),
	}
}
