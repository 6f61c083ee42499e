package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Amounts are stored as BIGINT cents to avoid floating point errors;
// shopspring/decimal is used at the edges (gateway payloads, plan minimums).

var centsFactor = decimal.NewFromInt(100)

// CentsToDecimal converts stored cents to a decimal value.
func CentsToDecimal(cents int64) decimal.Decimal {
	return decimal.NewFromInt(cents).Div(centsFactor)
}

// DecimalToCents converts a decimal amount to cents, truncating beyond two
// fractional digits.
func DecimalToCents(d decimal.Decimal) int64 {
	return d.Mul(centsFactor).IntPart()
}

// ParseAmountCents parses a gateway-formatted amount ("150.00") into cents.
func ParseAmountCents(s string) (int64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("parse amount %q: %w", s, err)
	}
	return DecimalToCents(d), nil
}

// FormatAmount renders cents the way both gateways expect ("150.00").
func FormatAmount(cents int64) string {
	return CentsToDecimal(cents).StringFixed(2)
}
