// Package helpers provides common utility functions used across the codebase.
package helpers

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// ErrInvalidAmount is returned when a display amount cannot be parsed.
var ErrInvalidAmount = errors.New("invalid amount")

// ToDecimal scales an amount in minimal units to display units.
// For example, ToDecimal(1500000, 6) is 1.5.
func ToDecimal(amount *big.Int, decimals uint8) decimal.Decimal {
	if amount == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(amount, -int32(decimals))
}

// FormatAmount formats an amount in minimal units as a decimal string.
// For example, FormatAmount(100000000, 8) returns "1".
func FormatAmount(amount *big.Int, decimals uint8) string {
	return ToDecimal(amount, decimals).String()
}

// ParseAmount parses a display amount into minimal units. Digits beyond the
// currency precision are truncated.
func ParseAmount(s string, decimals uint8) (*big.Int, error) {
	if s == "" {
		return nil, fmt.Errorf("%w: empty string", ErrInvalidAmount)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidAmount, s)
	}
	return d.Shift(int32(decimals)).BigInt(), nil
}

// MulCeil returns ceil(amount * factor) as an integer. Used for fee = gas x price.
func MulCeil(amount *big.Int, factor decimal.Decimal) *big.Int {
	if amount == nil {
		return new(big.Int)
	}
	return decimal.NewFromBigInt(amount, 0).Mul(factor).Ceil().BigInt()
}

// MinInt returns the smaller of a and b.
func MinInt(a, b *big.Int) *big.Int {
	if a.Cmp(b) <= 0 {
		return a
	}
	return b
}
