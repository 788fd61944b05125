package utils

import (
	"strings"

	"github.com/shopspring/decimal"
)

// MaxMinorUnits is the largest amount the gateway accepts for one charge (999,999.99).
const MaxMinorUnits int64 = 99999999

var hundred = decimal.NewFromInt(100)

func init() {
	// Money fields go over the wire as JSON numbers, matching the numeric columns clients read.
	decimal.MarshalJSONWithoutQuotes = true
}

// ToMinorUnits converts a major-unit amount (e.g. 425.00 EUR) into the gateway's integer
// minor units (42500), rounding half away from zero.
func ToMinorUnits(amount decimal.Decimal) int64 {
	return amount.Mul(hundred).Round(0).IntPart()
}

// WithinChargeLimit reports whether amount fits in a single gateway charge.
func WithinChargeLimit(amount decimal.Decimal) bool {
	return amount.Mul(hundred).Round(0).LessThanOrEqual(decimal.NewFromInt(MaxMinorUnits))
}

// FromMinorUnits converts gateway minor units back into a major-unit amount.
func FromMinorUnits(cents int64) decimal.Decimal {
	return decimal.NewFromInt(cents).Div(hundred)
}

// NormalizeCurrency trims and lower-cases an ISO-4217 code as the gateway expects it.
func NormalizeCurrency(currency string) string {
	return strings.ToLower(strings.TrimSpace(currency))
}

// IsCurrencyCode reports whether s looks like a three-letter ISO-4217 code.
func IsCurrencyCode(s string) bool {
	s = strings.TrimSpace(s)
	if len(s) != 3 {
		return false
	}
	for _, r := range s {
		if (r < 'a' || r > 'z') && (r < 'A' || r > 'Z') {
			return false
		}
	}
	return true
}
