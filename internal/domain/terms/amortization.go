package terms

import (
	"time"

	"github.com/shopspring/decimal"

	"consigned-credit/internal/domain/loan"
	"consigned-credit/pkg/decmath"
)

// AmortizationCalculator implements the Price (French) fixed-installment
// system.
type AmortizationCalculator struct{ scale int32 }

func NewAmortizationCalculator(scale int32) *AmortizationCalculator {
	return &AmortizationCalculator{scale: scale}
}

// ComputeInstallment returns the unrounded installment for a periodic rate
// given as a fraction:
//
//	r > 0:  P * r * (1+r)^n / ((1+r)^n - 1)
//	r == 0: P / n
func (c *AmortizationCalculator) ComputeInstallment(principal decimal.Decimal, periods int, rate decimal.Decimal) (decimal.Decimal, error) {
	if periods <= 0 {
		return decimal.Zero, loan.Violation("periods must be positive, got %d", periods)
	}
	if rate.IsNegative() {
		return decimal.Zero, loan.Violation("rate must not be negative, got %s", rate)
	}
	if principal.IsNegative() {
		return decimal.Zero, loan.Violation("principal must not be negative, got %s", principal)
	}
	if rate.IsZero() {
		return principal.DivRound(decimal.NewFromInt(int64(periods)), decmath.InternalPlaces), nil
	}
	factor := decmath.CompoundFactor(rate, periods)
	num := principal.Mul(rate).Mul(factor)
	return num.DivRound(factor.Sub(decmath.One), decmath.InternalPlaces), nil
}

// BuildSchedule walks periods 1..n on the unrounded installment and balance;
// only the values written to each row are rounded to the currency scale.
//
// Each row's reported balance is the walked balance rounded, and its
// amortization is the step between consecutive reported balances, so the
// amortizations add up to the principal and the last balance is zero.
// Value is the rounded installment and Interest = Value - Amortization,
// which keeps Value == Amortization + Interest exact. The final row pays off
// the remaining reported balance; its Value stays within a couple of minor
// units of the others because the walk itself never drifts.
//
// Due dates are start + i calendar months; a day that does not exist in the
// target month is clamped to that month's last day (Jan 31 -> Feb 28/29).
func (c *AmortizationCalculator) BuildSchedule(principal decimal.Decimal, periods int, rate, installment decimal.Decimal, start time.Time) ([]loan.Installment, error) {
	if periods <= 0 {
		return nil, loan.Violation("periods must be positive, got %d", periods)
	}
	if rate.IsNegative() {
		return nil, loan.Violation("rate must not be negative, got %s", rate)
	}
	if principal.IsNegative() {
		return nil, loan.Violation("principal must not be negative, got %s", principal)
	}

	value := decmath.RoundMoney(installment, c.scale)
	walked := principal
	reported := principal
	out := make([]loan.Installment, 0, periods)

	for i := 1; i <= periods; i++ {
		interest := walked.Mul(rate).Round(decmath.InternalPlaces)
		walked = walked.Sub(installment.Sub(interest))

		var row loan.Installment
		if i == periods {
			row.Amortization = reported
			row.Interest = decmath.RoundMoney(interest, c.scale)
			row.Value = row.Amortization.Add(row.Interest)
		} else {
			row.Amortization = reported.Sub(decmath.RoundMoney(walked, c.scale))
			row.Interest = value.Sub(row.Amortization)
			// rounding can push a near-zero interest below zero
			if row.Interest.IsNegative() {
				row.Interest = decimal.Zero
				row.Amortization = value
			}
			row.Value = value
		}
		reported = reported.Sub(row.Amortization)

		row.Period = i
		row.DueDate = AddMonths(start, i)
		row.Balance = reported
		out = append(out, row)
	}
	return out, nil
}

// ScheduleTotal is the sum of every row's Value.
func ScheduleTotal(rows []loan.Installment) decimal.Decimal {
	values := make([]decimal.Decimal, len(rows))
	for i, r := range rows {
		values[i] = r.Value
	}
	return decmath.Sum(values...)
}

// PresentValue discounts n equal installments at a periodic rate (fraction).
func PresentValue(installment decimal.Decimal, periods int, rate decimal.Decimal) decimal.Decimal {
	if periods <= 0 {
		return decimal.Zero
	}
	if rate.IsZero() {
		return installment.Mul(decimal.NewFromInt(int64(periods)))
	}
	factor := decmath.CompoundFactor(rate, periods)
	// installment * (1 - (1+r)^-n) / r  ==  installment * (f - 1) / (r * f)
	return installment.Mul(factor.Sub(decmath.One)).DivRound(rate.Mul(factor), decmath.InternalPlaces)
}

// AddMonths adds calendar months, clamping the day to the target month's
// length instead of overflowing into the following month as time.AddDate does.
func AddMonths(t time.Time, months int) time.Time {
	y, m, d := t.Date()
	first := time.Date(y, m+time.Month(months), 1, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
	last := first.AddDate(0, 1, -1).Day()
	if d > last {
		d = last
	}
	return first.AddDate(0, 0, d-1)
}
