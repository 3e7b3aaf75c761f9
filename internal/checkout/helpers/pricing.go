package helpers

import (
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/marketcore-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/marketcore-backend/pkg/errors"
)

var hundred = decimal.NewFromInt(100)

// Totals captures the priced order header.
type Totals struct {
	Subtotal decimal.Decimal
	Tax      decimal.Decimal
	Shipping decimal.Decimal
	Discount decimal.Decimal
	Total    decimal.Decimal
}

// ComputeTotals prices an order: tax on the subtotal, shipping waived at the free-shipping
// threshold, and the discount taken off last.
func ComputeTotals(subtotal, shippingCost, discount decimal.Decimal, cfg config.CheckoutConfig) (Totals, error) {
	if subtotal.IsNegative() {
		return Totals{}, pkgerrors.New(pkgerrors.CodeValidation, "subtotal must not be negative")
	}
	if discount.IsNegative() {
		return Totals{}, pkgerrors.New(pkgerrors.CodeValidation, "discount must not be negative")
	}

	totals := Totals{
		Subtotal: subtotal.Round(2),
		Tax:      subtotal.Mul(cfg.TaxRatePercent).Div(hundred).Round(2),
		Shipping: shippingCost.Round(2),
		Discount: discount.Round(2),
	}
	if subtotal.GreaterThanOrEqual(cfg.FreeShippingThreshold) {
		totals.Shipping = decimal.Zero
	}
	totals.Total = totals.Subtotal.Add(totals.Tax).Add(totals.Shipping).Sub(totals.Discount)
	if totals.Total.IsNegative() {
		return Totals{}, pkgerrors.New(pkgerrors.CodeValidation, "discount exceeds order total")
	}
	return totals, nil
}
