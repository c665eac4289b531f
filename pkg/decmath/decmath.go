// Package decmath holds the fixed-precision helpers shared by the loan
// calculators: rounding to a currency minor unit, integer compounding and
// percent conversions on top of shopspring/decimal.
package decmath

import (
	"github.com/shopspring/decimal"
)

// InternalPlaces is the number of fractional digits kept for intermediate
// results (compounding factors, per-period rates).
const InternalPlaces int32 = 18

var (
	One     = decimal.NewFromInt(1)
	Hundred = decimal.NewFromInt(100)
)

// RoundMoney rounds half-to-even at the given minor-unit scale.
func RoundMoney(d decimal.Decimal, scale int32) decimal.Decimal {
	return d.RoundBank(scale)
}

// PercentToRate converts 1.99 (percent per period) into 0.0199.
func PercentToRate(p decimal.Decimal) decimal.Decimal {
	return p.DivRound(Hundred, InternalPlaces)
}

// RateToPercent is the inverse of PercentToRate.
func RateToPercent(r decimal.Decimal) decimal.Decimal {
	return r.Mul(Hundred)
}

// PowInt raises base to a non-negative integer power by repeated squaring,
// trimming every product to InternalPlaces so long terms don't blow up the
// mantissa.
func PowInt(base decimal.Decimal, n int) decimal.Decimal {
	if n < 0 {
		panic("decmath: negative exponent")
	}
	result := One
	b := base
	for n > 0 {
		if n&1 == 1 {
			result = result.Mul(b).Round(InternalPlaces)
		}
		n >>= 1
		if n > 0 {
			b = b.Mul(b).Round(InternalPlaces)
		}
	}
	return result
}

// CompoundFactor returns (1+r)^n.
func CompoundFactor(r decimal.Decimal, n int) decimal.Decimal {
	return PowInt(One.Add(r), n)
}

// Sum adds all values.
func Sum(values ...decimal.Decimal) decimal.Decimal {
	out := decimal.Zero
	for _, v := range values {
		out = out.Add(v)
	}
	return out
}

// Within reports |a-b| <= eps.
func Within(a, b, eps decimal.Decimal) bool {
	return a.Sub(b).Abs().LessThanOrEqual(eps)
}

// Max returns the larger of a and b.
func Max(a, b decimal.Decimal) decimal.Decimal {
	if a.GreaterThan(b) {
		return a
	}
	return b
}
