// Package pricing computes the price of a block of raffle entries and
// enforces the allowed quantity range.
package pricing

import (
	"errors"
	"fmt"
)

const (
	MinQuantity      = 100
	MaxQuantity      = 10000
	PromoThreshold   = 1000
	RegularUnitPrice = 10 // minor units per entry below the threshold
	PromoUnitPrice   = 5  // minor units per entry at or above the threshold
)

// ErrInvalidQuantity is returned for quantities outside [MinQuantity, MaxQuantity].
var ErrInvalidQuantity = errors.New("invalid quantity")

// Validate rejects quantities outside the allowed range.  It never clamps.
func Validate(quantity int) error {
	if quantity < MinQuantity || quantity > MaxQuantity {
		return fmt.Errorf("%w: must be between %d and %d entries", ErrInvalidQuantity, MinQuantity, MaxQuantity)
	}
	return nil
}

// UnitPrice returns the per-entry price tier for quantity.
func UnitPrice(quantity int) int64 {
	if quantity >= PromoThreshold {
		return PromoUnitPrice
	}
	return RegularUnitPrice
}

// IsPromotional reports whether quantity falls in the discounted tier.
func IsPromotional(quantity int) bool { return quantity >= PromoThreshold }

// ComputePrice validates quantity and returns the total amount in minor units.
func ComputePrice(quantity int) (int64, error) {
	if err := Validate(quantity); err != nil {
		return 0, err
	}
	return int64(quantity) * UnitPrice(quantity), nil
}

// LineItemUnitAmount is the per-unit amount sent to payment providers that
// take a unit price and a multiplier: amount/quantity rounded half away from
// zero.  The stored amount stays authoritative.
func LineItemUnitAmount(amount int64, quantity int) int64 {
	if quantity <= 0 {
		return 0
	}
	q := int64(quantity)
	return (2*amount + q) / (2 * q)
}

// Clamp pulls quantity into the allowed range.  Only the interactive quote
// endpoint uses it; purchase intake must call Validate.
func Clamp(quantity int) int {
	if quantity < MinQuantity {
		return MinQuantity
	}
	if quantity > MaxQuantity {
		return MaxQuantity
	}
	return quantity
}
