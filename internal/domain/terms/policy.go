// Package terms is the loan terms and margin validation engine: installment
// and schedule (Price system), IOF, CET and payroll margin checks composed
// into new-loan, refinance and portability simulations.
//
// Everything here is a pure function of its arguments plus the Policy
// supplied at construction; no I/O happens inside the package.
package terms

import (
	"errors"

	"github.com/shopspring/decimal"
)

// Policy holds every tunable constant of the engine. Rates are fractions
// (0.0038 means 0.38%) except where noted.
type Policy struct {
	// CapRatio is the share of gross salary available for deductions.
	CapRatio decimal.Decimal
	// MaxInstallment is a flat ceiling on the installment that must fit;
	// zero disables the check.
	MaxInstallment decimal.Decimal

	IOFDailyRate      decimal.Decimal
	IOFAdditionalRate decimal.Decimal
	// IOFMaxDays caps the daily accrual window; zero leaves it uncapped.
	IOFMaxDays int

	CETInitialGuess  float64
	CETTolerance     float64
	CETMaxIterations int

	// RateTolerance is the accepted distance, in percentage points, between
	// the requested rate and the product rate.
	RateTolerance decimal.Decimal

	// CurrencyScale is the number of minor-unit digits monetary outputs are
	// rounded to.
	CurrencyScale int32
}

func DefaultPolicy() Policy {
	return Policy{
		CapRatio:          decimal.RequireFromString("0.30"),
		MaxInstallment:    decimal.Zero,
		IOFDailyRate:      decimal.RequireFromString("0.000082"),
		IOFAdditionalRate: decimal.RequireFromString("0.0038"),
		CETInitialGuess:   0.02,
		CETTolerance:      1e-4,
		CETMaxIterations:  100,
		RateTolerance:     decimal.RequireFromString("0.0001"),
		CurrencyScale:     2,
	}
}

func (p Policy) Validate() error {
	switch {
	case p.CapRatio.IsNegative() || p.CapRatio.GreaterThan(decimal.NewFromInt(1)):
		return errors.New("policy: cap ratio must be within [0, 1]")
	case p.MaxInstallment.IsNegative():
		return errors.New("policy: max installment must not be negative")
	case p.IOFDailyRate.IsNegative() || p.IOFAdditionalRate.IsNegative():
		return errors.New("policy: IOF rates must not be negative")
	case p.IOFMaxDays < 0:
		return errors.New("policy: IOF max days must not be negative")
	case p.CETTolerance <= 0:
		return errors.New("policy: CET tolerance must be positive")
	case p.CETMaxIterations <= 0:
		return errors.New("policy: CET max iterations must be positive")
	case p.CETInitialGuess <= -1:
		return errors.New("policy: CET initial guess must be above -100%")
	case p.RateTolerance.IsNegative():
		return errors.New("policy: rate tolerance must not be negative")
	case p.CurrencyScale < 0:
		return errors.New("policy: currency scale must not be negative")
	}
	return nil
}
