package terms

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"consigned-credit/internal/domain/loan"
	"consigned-credit/pkg/decmath"
)

type NewLoanInput struct {
	Borrower  loan.BorrowerSnapshot
	Request   loan.LoanRequest
	Committed decimal.Decimal
	Anchor    time.Time
}

type RefinanceInput struct {
	Borrower  loan.BorrowerSnapshot
	Contract  loan.ContractSnapshot
	Request   loan.LoanRequest
	Committed decimal.Decimal
	Anchor    time.Time
}

// PortabilityInput has no principal: the financed amount is the origin
// contract's outstanding balance.
type PortabilityInput struct {
	Borrower  loan.BorrowerSnapshot
	Origin    loan.ContractSnapshot
	Product   loan.ProductSnapshot
	Term      int
	Rate      decimal.Decimal
	Committed decimal.Decimal
	Anchor    time.Time
}

// Engine composes the calculators into complete simulations. It is safe
// for concurrent use.
type Engine struct {
	policy Policy
	amort  *AmortizationCalculator
	tax    *TaxCalculator
	cet    *EffectiveCostSolver
	margin *MarginValidator
	now    func() time.Time
}

func NewEngine(p Policy) (*Engine, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &Engine{
		policy: p,
		amort:  NewAmortizationCalculator(p.CurrencyScale),
		tax:    NewTaxCalculator(p.IOFDailyRate, p.IOFAdditionalRate, p.IOFMaxDays, p.CurrencyScale),
		cet:    NewEffectiveCostSolver(p.CETInitialGuess, p.CETTolerance, p.CETMaxIterations),
		margin: NewMarginValidator(p.MaxInstallment),
		now:    func() time.Time { return time.Now().UTC() },
	}, nil
}

// WithClock replaces the creation timestamp source.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	cp := *e
	cp.now = now
	return &cp
}

func (e *Engine) Policy() Policy { return e.policy }

func (e *Engine) SimulateNewLoan(in NewLoanInput) (loan.LoanSimulation, error) {
	if err := checkBorrower(in.Borrower, in.Committed, in.Anchor); err != nil {
		return loan.LoanSimulation{}, err
	}
	if err := e.checkRequest(in.Request.Principal, in.Request.Term, in.Request.Rate, in.Request.Product); err != nil {
		return loan.LoanSimulation{}, err
	}
	q, err := e.quote(in.Request.Principal, in.Request.Term, in.Request.Rate)
	if err != nil {
		return loan.LoanSimulation{}, err
	}
	decision, err := e.checkMargin(in.Borrower, in.Committed, q.rounded)
	if err != nil {
		return loan.LoanSimulation{}, err
	}
	return e.assemble(loan.FlowNew, in.Borrower, in.Request.Product, in.Request.Principal, in.Request.Term, in.Request.Rate, q, decision, in.Anchor)
}

func (e *Engine) SimulateRefinance(in RefinanceInput) (loan.LoanSimulation, error) {
	if err := checkBorrower(in.Borrower, in.Committed, in.Anchor); err != nil {
		return loan.LoanSimulation{}, err
	}
	if err := checkContract(in.Contract); err != nil {
		return loan.LoanSimulation{}, err
	}
	req := in.Request
	if err := e.checkRequest(req.Principal, req.Term, req.Rate, req.Product); err != nil {
		return loan.LoanSimulation{}, err
	}
	if req.Principal.LessThan(in.Contract.OutstandingBalance) {
		return loan.LoanSimulation{}, &loan.InvalidTermError{
			Field:  "principal",
			Reason: fmt.Sprintf("must cover the outstanding balance %s", in.Contract.OutstandingBalance.StringFixed(2)),
		}
	}
	q, err := e.quote(req.Principal, req.Term, req.Rate)
	if err != nil {
		return loan.LoanSimulation{}, err
	}
	decision, err := e.checkMargin(in.Borrower, in.Committed, q.rounded.Sub(in.Contract.Installment))
	if err != nil {
		return loan.LoanSimulation{}, err
	}
	sim, err := e.assemble(loan.FlowRefinance, in.Borrower, req.Product, req.Principal, req.Term, req.Rate, q, decision, in.Anchor)
	if err != nil {
		return loan.LoanSimulation{}, err
	}

	oldTotal := in.Contract.Installment.Mul(decimal.NewFromInt(int64(in.Contract.RemainingTerm)))
	sim.Baseline = &loan.BaselineComparison{
		ContractID:         in.Contract.ContractID,
		OutstandingBalance: in.Contract.OutstandingBalance,
		OldInstallment:     in.Contract.Installment,
		OldRemainingTerm:   in.Contract.RemainingTerm,
		OldTotal:           oldTotal,
		NewTotal:           sim.TotalPaid,
		InstallmentDelta:   q.rounded.Sub(in.Contract.Installment),
		Payout:             req.Principal.Sub(in.Contract.OutstandingBalance),
		PresentValue:       decimal.Zero,
		Economy:            RefinanceEconomy(oldTotal, sim.TotalPaid),
	}
	return sim, nil
}

func (e *Engine) SimulatePortability(in PortabilityInput) (loan.LoanSimulation, error) {
	if err := checkBorrower(in.Borrower, in.Committed, in.Anchor); err != nil {
		return loan.LoanSimulation{}, err
	}
	if err := checkContract(in.Origin); err != nil {
		return loan.LoanSimulation{}, err
	}
	principal := in.Origin.OutstandingBalance
	if !principal.IsPositive() {
		return loan.LoanSimulation{}, loan.Violation("origin contract %s has no outstanding balance", in.Origin.ContractID)
	}
	if err := e.checkRequest(principal, in.Term, in.Rate, in.Product); err != nil {
		return loan.LoanSimulation{}, err
	}
	q, err := e.quote(principal, in.Term, in.Rate)
	if err != nil {
		return loan.LoanSimulation{}, err
	}
	decision, err := e.checkMargin(in.Borrower, in.Committed, q.rounded.Sub(in.Origin.Installment))
	if err != nil {
		return loan.LoanSimulation{}, err
	}
	sim, err := e.assemble(loan.FlowPortability, in.Borrower, in.Product, principal, in.Term, in.Rate, q, decision, in.Anchor)
	if err != nil {
		return loan.LoanSimulation{}, err
	}

	originRate := decmath.PercentToRate(in.Origin.Rate)
	pv := decmath.RoundMoney(PresentValue(in.Origin.Installment, in.Origin.RemainingTerm, originRate), e.policy.CurrencyScale)
	oldTotal := in.Origin.Installment.Mul(decimal.NewFromInt(int64(in.Origin.RemainingTerm)))
	sim.Baseline = &loan.BaselineComparison{
		ContractID:         in.Origin.ContractID,
		OutstandingBalance: principal,
		OldInstallment:     in.Origin.Installment,
		OldRemainingTerm:   in.Origin.RemainingTerm,
		OldTotal:           oldTotal,
		NewTotal:           sim.TotalPaid,
		InstallmentDelta:   q.rounded.Sub(in.Origin.Installment),
		Payout:             decimal.Zero,
		PresentValue:       pv,
		Economy:            PortabilityEconomy(oldTotal, sim.TotalPaid, pv, principal),
	}
	return sim, nil
}

// RefinanceEconomy is what the borrower stops paying on the old contract
// minus what the new schedule costs.
func RefinanceEconomy(oldTotal, newTotal decimal.Decimal) decimal.Decimal {
	return oldTotal.Sub(newTotal)
}

// PortabilityEconomy is (originTotal - newTotal) + (pv - outstanding).
func PortabilityEconomy(originTotal, newTotal, presentValue, outstanding decimal.Decimal) decimal.Decimal {
	return originTotal.Sub(newTotal).Add(presentValue.Sub(outstanding))
}

// quote is the periodic rate and installment for one request. The raw
// installment drives the schedule walk; the rounded one is what the borrower
// pays and what the margin is checked against.
type quote struct {
	rate    decimal.Decimal
	raw     decimal.Decimal
	rounded decimal.Decimal
}

func (e *Engine) quote(principal decimal.Decimal, term int, ratePct decimal.Decimal) (quote, error) {
	rate := decmath.PercentToRate(ratePct)
	raw, err := e.amort.ComputeInstallment(principal, term, rate)
	if err != nil {
		return quote{}, err
	}
	return quote{rate: rate, raw: raw, rounded: decmath.RoundMoney(raw, e.policy.CurrencyScale)}, nil
}

func (e *Engine) checkMargin(b loan.BorrowerSnapshot, committed, requested decimal.Decimal) (loan.MarginDecision, error) {
	d := e.margin.Validate(b.GrossSalary, e.policy.CapRatio, committed, requested)
	if !d.Admissible() {
		return d, &loan.MarginInsufficientError{
			BorrowerID: b.BorrowerID,
			Available:  d.Available,
			Requested:  d.Requested,
			Shortfall:  d.Shortfall,
			Decision:   d,
		}
	}
	return d, nil
}

func (e *Engine) assemble(flow loan.Flow, b loan.BorrowerSnapshot, p loan.ProductSnapshot, principal decimal.Decimal, term int, ratePct decimal.Decimal, q quote, decision loan.MarginDecision, anchor time.Time) (loan.LoanSimulation, error) {
	schedule, err := e.amort.BuildSchedule(principal, term, q.rate, q.raw, anchor)
	if err != nil {
		return loan.LoanSimulation{}, err
	}
	tax, err := e.tax.ComputeTax(principal, term)
	if err != nil {
		return loan.LoanSimulation{}, err
	}
	cet, err := e.cet.Solve(principal, q.rounded, term, tax)
	if err != nil {
		return loan.LoanSimulation{}, err
	}

	sim := loan.LoanSimulation{
		Flow:         flow,
		BorrowerID:   b.BorrowerID,
		ProductID:    p.ProductID,
		Principal:    principal,
		Term:         term,
		Rate:         ratePct,
		Installment:  q.rounded,
		TotalPaid:    ScheduleTotal(schedule),
		Tax:          tax,
		NetFinanced:  principal.Sub(tax),
		CET:          cet.Percent(),
		CETAnnual:    cet.AnnualPercent(),
		CETConverged: cet.Converged,
		Installments: schedule,
		Margin:       decision,
		CreatedAt:    e.now(),
	}
	if !cet.Converged {
		sim.Warnings = append(sim.Warnings, loan.WarningCETNotConverged)
	}
	return sim, nil
}

func checkBorrower(b loan.BorrowerSnapshot, committed decimal.Decimal, anchor time.Time) error {
	switch {
	case b.BorrowerID == "":
		return loan.Violation("borrower snapshot is required")
	case b.GrossSalary.IsNegative():
		return loan.Violation("gross salary must not be negative")
	case committed.IsNegative():
		return loan.Violation("committed installments must not be negative")
	case anchor.IsZero():
		return loan.Violation("anchor date is required")
	}
	return nil
}

func checkContract(c loan.ContractSnapshot) error {
	switch {
	case c.ContractID == "":
		return loan.Violation("contract snapshot is required")
	case c.Installment.IsNegative():
		return loan.Violation("contract %s installment must not be negative", c.ContractID)
	case c.RemainingTerm < 0:
		return loan.Violation("contract %s remaining term must not be negative", c.ContractID)
	case c.Rate.IsNegative():
		return loan.Violation("contract %s rate must not be negative", c.ContractID)
	}
	return nil
}

// checkRequest separates caller bugs (non-positive term or principal,
// negative rate) from business rejections against the product bounds.
func (e *Engine) checkRequest(principal decimal.Decimal, term int, ratePct decimal.Decimal, p loan.ProductSnapshot) error {
	switch {
	case p.ProductID == "":
		return loan.Violation("product snapshot is required")
	case term <= 0:
		return loan.Violation("term must be positive, got %d", term)
	case !principal.IsPositive():
		return loan.Violation("principal must be positive, got %s", principal)
	case ratePct.IsNegative():
		return loan.Violation("rate must not be negative, got %s", ratePct)
	}

	if p.MinTerm > 0 && term < p.MinTerm {
		return &loan.InvalidTermError{Field: "term", Reason: fmt.Sprintf("%d is below the product minimum %d", term, p.MinTerm)}
	}
	if p.MaxTerm > 0 && term > p.MaxTerm {
		return &loan.InvalidTermError{Field: "term", Reason: fmt.Sprintf("%d is above the product maximum %d", term, p.MaxTerm)}
	}
	if p.MinPrincipal.IsPositive() && principal.LessThan(p.MinPrincipal) {
		return &loan.InvalidTermError{Field: "principal", Reason: fmt.Sprintf("%s is below the product minimum %s", principal.StringFixed(2), p.MinPrincipal.StringFixed(2))}
	}
	if p.MaxPrincipal.IsPositive() && principal.GreaterThan(p.MaxPrincipal) {
		return &loan.InvalidTermError{Field: "principal", Reason: fmt.Sprintf("%s is above the product maximum %s", principal.StringFixed(2), p.MaxPrincipal.StringFixed(2))}
	}
	if !decmath.Within(ratePct, p.Rate, e.policy.RateTolerance) {
		return &loan.InvalidTermError{Field: "rate", Reason: fmt.Sprintf("%s does not match the product rate %s", ratePct, p.Rate)}
	}
	return nil
}
