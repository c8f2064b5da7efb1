// Package pricing computes order totals. All functions are pure: inputs are
// line items resolved from a transactional product read (never the prices a
// client sent) plus an optional coupon snapshot.
package pricing

import (
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront-api/internal/domain/coupon"
)

// Pricing policy constants. Tax is a flat rate; shipping is a flat fee
// waived above the free-shipping threshold or by a free-shipping coupon.
var (
	TaxRate               = decimal.RequireFromString("0.10")
	FreeShippingThreshold = decimal.NewFromInt(50)
	FlatShippingFee       = decimal.RequireFromString("5.99")
)

// LineItem is one order line carrying the unit price read inside the active
// transaction.
type LineItem struct {
	ProductID string
	VariantID string
	Name      string
	UnitPrice decimal.Decimal
	Quantity  int
}

// Subtotal returns unit price times quantity for this line.
func (li LineItem) Subtotal() decimal.Decimal {
	return li.UnitPrice.Mul(decimal.NewFromInt(int64(li.Quantity)))
}

// Quote is the derived pricing breakdown for an order. All amounts are
// rounded half-up to 2 decimal places.
type Quote struct {
	Subtotal decimal.Decimal
	Discount decimal.Decimal
	Tax      decimal.Decimal
	Shipping decimal.Decimal
	Total    decimal.Decimal
}

// Calculate derives the full pricing breakdown for the given lines and
// optional coupon. The discount can never exceed the subtotal, so the total
// is never negative.
func Calculate(items []LineItem, c *coupon.Coupon) Quote {
	subtotal := decimal.Zero
	for _, li := range items {
		subtotal = subtotal.Add(li.Subtotal())
	}
	subtotal = subtotal.Round(2)

	discount := decimal.Zero
	freeShipping := false
	if c != nil {
		discount = c.DiscountFor(subtotal)
		freeShipping = c.Type == coupon.DiscountFreeShipping
	}

	tax := subtotal.Mul(TaxRate).Round(2)

	shipping := FlatShippingFee
	if freeShipping || subtotal.GreaterThan(FreeShippingThreshold) {
		shipping = decimal.Zero
	}

	total := subtotal.Sub(discount).Add(tax).Add(shipping).Round(2)

	return Quote{
		Subtotal: subtotal,
		Discount: discount,
		Tax:      tax,
		Shipping: shipping,
		Total:    total,
	}
}
