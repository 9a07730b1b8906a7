package fund

import (
	"fmt"
	"strings"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

// ParseD18 parses a non-negative decimal string such as "1.25" into its D18
// representation. Values finer than 18 fractional digits are rejected.
func ParseD18(value string) (*uint256.Int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, fmt.Errorf("fund engine: empty decimal")
	}
	d, err := decimal.NewFromString(trimmed)
	if err != nil {
		return nil, fmt.Errorf("fund engine: invalid decimal %q: %w", value, err)
	}
	if d.IsNegative() {
		return nil, fmt.Errorf("fund engine: negative decimal %q", value)
	}
	scaled := d.Shift(18)
	if !scaled.IsInteger() {
		return nil, fmt.Errorf("fund engine: decimal %q exceeds 18 fractional digits", value)
	}
	out, overflow := uint256.FromBig(scaled.BigInt())
	if overflow {
		return nil, fmt.Errorf("fund engine: decimal %q overflows 256 bits", value)
	}
	return out, nil
}

// FormatD18 renders a D18 value as a decimal string without trailing zeros.
func FormatD18(v *uint256.Int) string {
	if isZero(v) {
		return "0"
	}
	return decimal.NewFromBigInt(v.ToBig(), -18).String()
}
