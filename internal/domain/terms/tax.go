package terms

import (
	"github.com/shopspring/decimal"

	"consigned-credit/internal/domain/loan"
	"consigned-credit/pkg/decmath"
)

// daysPerPeriod is the commercial month used for the daily IOF accrual.
const daysPerPeriod = 30

// TaxCalculator computes IOF as a daily accrual over the term plus a flat
// additional rate:
//
//	tax = P * daily * min(n*30, maxDays) + P * additional
type TaxCalculator struct {
	daily      decimal.Decimal
	additional decimal.Decimal
	maxDays    int
	scale      int32
}

func NewTaxCalculator(daily, additional decimal.Decimal, maxDays int, scale int32) *TaxCalculator {
	return &TaxCalculator{daily: daily, additional: additional, maxDays: maxDays, scale: scale}
}

func (c *TaxCalculator) ComputeTax(principal decimal.Decimal, periods int) (decimal.Decimal, error) {
	if periods <= 0 {
		return decimal.Zero, loan.Violation("periods must be positive, got %d", periods)
	}
	if principal.IsNegative() {
		return decimal.Zero, loan.Violation("principal must not be negative, got %s", principal)
	}
	days := periods * daysPerPeriod
	if c.maxDays > 0 && days > c.maxDays {
		days = c.maxDays
	}
	accrual := principal.Mul(c.daily).Mul(decimal.NewFromInt(int64(days)))
	flat := principal.Mul(c.additional)
	return decmath.RoundMoney(accrual.Add(flat), c.scale), nil
}
