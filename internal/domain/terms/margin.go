package terms

import (
	"github.com/shopspring/decimal"

	"consigned-credit/internal/domain/loan"
	"consigned-credit/pkg/decmath"
)

const (
	reasonAvailable = "requested installment exceeds available margin"
	reasonCeiling   = "requested installment exceeds policy ceiling"
)

// MarginValidator decides whether a new payroll commitment fits. It keeps
// no state; committed installments are supplied by the caller.
type MarginValidator struct {
	ceiling decimal.Decimal
}

// NewMarginValidator takes the flat installment ceiling; zero disables it.
func NewMarginValidator(ceiling decimal.Decimal) *MarginValidator {
	return &MarginValidator{ceiling: ceiling}
}

// Validate evaluates both rules and reports the larger shortfall when both
// fail:
//  1. requested <= salary*capRatio - committed
//  2. requested <= flat ceiling (when configured)
func (v *MarginValidator) Validate(salary, capRatio, committed, requested decimal.Decimal) loan.MarginDecision {
	available := salary.Mul(capRatio).Sub(committed)
	d := loan.MarginDecision{
		GrossSalary: salary,
		CapRatio:    capRatio,
		Available:   available,
		Requested:   requested,
		Utilized:    committed,
		Outcome:     loan.MarginAdmissible,
		Shortfall:   decimal.Zero,
	}

	if requested.GreaterThan(available) {
		d.Outcome = loan.MarginInsufficient
		d.Shortfall = requested.Sub(available)
		d.Reason = reasonAvailable
	}
	if v.ceiling.IsPositive() && requested.GreaterThan(v.ceiling) {
		over := requested.Sub(v.ceiling)
		if d.Outcome != loan.MarginInsufficient || over.GreaterThan(d.Shortfall) {
			d.Reason = reasonCeiling
		}
		d.Outcome = loan.MarginInsufficient
		d.Shortfall = decmath.Max(d.Shortfall, over)
	}
	return d
}
