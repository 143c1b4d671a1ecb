// Package money provides minor-unit amount helpers for the single engine
// currency. Amounts are signed int64 values in the smallest currency unit.
package money

import (
	"fmt"
	"math"
)

// DefaultCurrency is the engine-wide currency code. It is carried on
// persisted rows for audit but the engine never branches on it.
const DefaultCurrency = "VND"

// Amount is a monetary amount in minor units.
type Amount int64

var errNonPositive = fmt.Errorf("amount must be positive")

// ValidatePositive returns an error unless a > 0.
func ValidatePositive(a Amount) error {
	if a <= 0 {
		return errNonPositive
	}
	return nil
}

// IsZero returns true if the amount is zero.
func (a Amount) IsZero() bool { return a == 0 }

// IsPositive returns true if the amount is strictly positive.
func (a Amount) IsPositive() bool { return a > 0 }

// IsNegative returns true if the amount is strictly negative.
func (a Amount) IsNegative() bool { return a < 0 }

// Abs returns the absolute value.
func (a Amount) Abs() Amount {
	if a < 0 {
		return -a
	}
	return a
}

// Int64 returns the raw minor-unit value.
func (a Amount) Int64() int64 { return int64(a) }

// Percentage calculates a share of the amount in basis points (1/10000).
func (a Amount) Percentage(basisPoints int64) Amount {
	return Amount(int64(math.Round(float64(a) * float64(basisPoints) / 10000)))
}

// String renders the amount with the engine currency code.
func (a Amount) String() string {
	return fmt.Sprintf("%d %s", int64(a), DefaultCurrency)
}

// Sum adds up amounts.
func Sum(amounts ...Amount) Amount {
	var total Amount
	for _, a := range amounts {
		total += a
	}
	return total
}

// Allocate splits an amount into n parts, remainder spread from the first
// allocation. Used for fee splits.
func (a Amount) Allocate(parts int) []Amount {
	if parts <= 0 {
		return nil
	}

	base := int64(a) / int64(parts)
	remainder := int64(a) % int64(parts)

	result := make([]Amount, parts)
	for i := range result {
		result[i] = Amount(base)
	}
	for i := int64(0); i < remainder; i++ {
		result[i]++
	}
	return result
}
