// Package commission computes the platform's cut of an order item.
package commission

import (
	"github.com/shopspring/decimal"

	pkgerrors "github.com/angelmondragon/marketcore-backend/pkg/errors"
)

var hundred = decimal.NewFromInt(100)

// Calculate returns subtotal * ratePercent / 100 rounded half-up to cents.
func Calculate(subtotal, ratePercent decimal.Decimal) (decimal.Decimal, error) {
	if subtotal.IsNegative() {
		return decimal.Zero, pkgerrors.New(pkgerrors.CodeValidation, "subtotal must not be negative")
	}
	if ratePercent.IsNegative() || ratePercent.GreaterThan(hundred) {
		return decimal.Zero, pkgerrors.New(pkgerrors.CodeValidation, "commission rate must be between 0 and 100")
	}
	// decimal.Round rounds half away from zero, which is half-up for non-negative input.
	return subtotal.Mul(ratePercent).Div(hundred).Round(2), nil
}

// VendorNet is what the vendor keeps after commission.
func VendorNet(subtotal, commissionAmount decimal.Decimal) decimal.Decimal {
	return subtotal.Sub(commissionAmount)
}
