package terms

import (
	"math"

	"github.com/shopspring/decimal"

	"consigned-credit/internal/domain/loan"
)

// CETResult is the effective periodic rate found by the solver, as a
// fraction. When Converged is false Rate is the iterate with the smallest
// residual seen before the budget ran out.
type CETResult struct {
	Rate       float64
	Iterations int
	Converged  bool
}

// Percent returns the rate in percent per period.
func (r CETResult) Percent() decimal.Decimal {
	return decimal.NewFromFloat(r.Rate * 100).Round(6)
}

// AnnualPercent compounds the periodic rate over twelve periods.
func (r CETResult) AnnualPercent() decimal.Decimal {
	return decimal.NewFromFloat((math.Pow(1+r.Rate, 12) - 1) * 100).Round(6)
}

// EffectiveCostSolver finds i such that
//
//	sum_{k=1..n} pmt/(1+i)^k - (principal - tax) = 0
//
// by Newton-Raphson with the analytic derivative. Floating point is fine
// here; the result is only displayed and persisted after rounding.
type EffectiveCostSolver struct {
	guess   float64
	tol     float64
	maxIter int
}

func NewEffectiveCostSolver(guess, tol float64, maxIter int) *EffectiveCostSolver {
	return &EffectiveCostSolver{guess: guess, tol: tol, maxIter: maxIter}
}

func (s *EffectiveCostSolver) Solve(principal, installment decimal.Decimal, periods int, tax decimal.Decimal) (CETResult, error) {
	if periods <= 0 {
		return CETResult{}, loan.Violation("periods must be positive, got %d", periods)
	}
	net := principal.Sub(tax).InexactFloat64()
	pmt := installment.InexactFloat64()

	i := s.guess
	best := CETResult{Rate: i}
	bestAbs := math.Inf(1)

	for k := 1; k <= s.maxIter; k++ {
		f, df := cashFlowResidual(i, pmt, net, periods)
		if a := math.Abs(f); a < bestAbs {
			bestAbs = a
			best.Rate = i
		}
		best.Iterations = k
		if df == 0 || math.IsNaN(df) || math.IsInf(df, 0) {
			break
		}
		next := i - f/df
		if math.IsNaN(next) || math.IsInf(next, 0) || next <= -1 {
			break
		}
		if math.Abs(next-i) < s.tol {
			return CETResult{Rate: next, Iterations: k, Converged: true}, nil
		}
		i = next
	}
	return best, nil
}

// cashFlowResidual returns f(i) and f'(i) for a level installment series.
func cashFlowResidual(i, pmt, net float64, n int) (float64, float64) {
	v := 1 / (1 + i)
	vk := 1.0
	var f, df float64
	for k := 1; k <= n; k++ {
		vk *= v
		f += pmt * vk
		df -= float64(k) * pmt * vk * v
	}
	return f - net, df
}
