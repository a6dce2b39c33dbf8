// Package money converts between major currency units and the int64 minor
// units stored in the ledger.
package money

import "github.com/shopspring/decimal"

const minorExponent = 2

var hundred = decimal.NewFromInt(100)

// ToMinor converts a major unit amount (e.g. rupees) to minor units (paise),
// rounding half away from zero.
func ToMinor(major decimal.Decimal) int64 {
	return major.Shift(minorExponent).Round(0).IntPart()
}

func FromMinor(minor int64) decimal.Decimal {
	return decimal.New(minor, -minorExponent)
}

// Commission applies rate (a fraction, 0.10 = 10%) to amountMinor.
func Commission(amountMinor int64, rate decimal.Decimal) int64 {
	if amountMinor <= 0 || !rate.IsPositive() {
		return 0
	}
	return decimal.NewFromInt(amountMinor).Mul(rate).Round(0).IntPart()
}

// RateFromPercent converts 10 to 0.10.
func RateFromPercent(percent decimal.Decimal) decimal.Decimal {
	return percent.Div(hundred)
}
