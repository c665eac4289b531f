package loan

import (
	"time"

	"github.com/shopspring/decimal"
)

type Flow string

const (
	FlowNew         Flow = "NEW"
	FlowRefinance   Flow = "REFINANCE"
	FlowPortability Flow = "PORTABILITY"
)

func (f Flow) Valid() bool {
	switch f {
	case FlowNew, FlowRefinance, FlowPortability:
		return true
	}
	return false
}

// WarningCETNotConverged is attached to a simulation whose CET is the
// solver's best estimate after exhausting its iteration budget.
const WarningCETNotConverged = "CET_NOT_CONVERGED"

// BorrowerSnapshot is the immutable view of a payroll borrower for one request.
type BorrowerSnapshot struct {
	BorrowerID  string          `json:"borrower_id"`
	Enrollment  string          `json:"enrollment"`
	GrossSalary decimal.Decimal `json:"gross_salary"`
}

// ProductSnapshot carries the admissibility bounds and the configured rate
// (percent per period).
type ProductSnapshot struct {
	ProductID    string          `json:"product_id"`
	Rate         decimal.Decimal `json:"rate"`
	MinTerm      int             `json:"min_term"`
	MaxTerm      int             `json:"max_term"`
	MinPrincipal decimal.Decimal `json:"min_principal"`
	MaxPrincipal decimal.Decimal `json:"max_principal"`
}

// ContractSnapshot is the baseline contract for refinance (existing) and
// portability (origin bank) flows.
type ContractSnapshot struct {
	ContractID         string          `json:"contract_id"`
	BorrowerID         string          `json:"borrower_id"`
	Institution        string          `json:"institution"`
	Installment        decimal.Decimal `json:"installment"`
	RemainingTerm      int             `json:"remaining_term"`
	OutstandingBalance decimal.Decimal `json:"outstanding_balance"`
	Rate               decimal.Decimal `json:"rate"`
}

// LoanRequest is the requested principal, term and nominal rate plus the
// product bounds they are checked against.
type LoanRequest struct {
	Principal decimal.Decimal `json:"principal"`
	Term      int             `json:"term"`
	Rate      decimal.Decimal `json:"rate"`
	Product   ProductSnapshot `json:"product"`
}

type Installment struct {
	Period       int             `json:"period"`
	DueDate      time.Time       `json:"due_date"`
	Value        decimal.Decimal `json:"value"`
	Amortization decimal.Decimal `json:"amortization"`
	Interest     decimal.Decimal `json:"interest"`
	Balance      decimal.Decimal `json:"balance"`
}

type MarginOutcome string

const (
	MarginAdmissible   MarginOutcome = "admissible"
	MarginInsufficient MarginOutcome = "margin_insufficient"
)

// MarginDecision is transient; persistence of the outcome is the caller's job.
type MarginDecision struct {
	GrossSalary decimal.Decimal `json:"gross_salary"`
	CapRatio    decimal.Decimal `json:"cap_ratio"`
	Available   decimal.Decimal `json:"available"`
	Requested   decimal.Decimal `json:"requested"`
	Utilized    decimal.Decimal `json:"utilized"`
	Outcome     MarginOutcome   `json:"outcome"`
	Shortfall   decimal.Decimal `json:"shortfall"`
	Reason      string          `json:"reason,omitempty"`
}

func (d MarginDecision) Admissible() bool { return d.Outcome == MarginAdmissible }

// BaselineComparison reports the economy of new terms against the contract
// being refinanced or ported.
type BaselineComparison struct {
	ContractID         string          `json:"contract_id"`
	OutstandingBalance decimal.Decimal `json:"outstanding_balance"`
	OldInstallment     decimal.Decimal `json:"old_installment"`
	OldRemainingTerm   int             `json:"old_remaining_term"`
	OldTotal           decimal.Decimal `json:"old_total"`
	NewTotal           decimal.Decimal `json:"new_total"`
	InstallmentDelta   decimal.Decimal `json:"installment_delta"`
	// Payout is the cash released to the borrower on refinance
	// (new principal minus outstanding balance). Zero for portability.
	Payout decimal.Decimal `json:"payout"`
	// PresentValue of the origin's remaining installments at the origin
	// rate. Portability only.
	PresentValue decimal.Decimal `json:"present_value"`
	Economy      decimal.Decimal `json:"economy"`
}

type LoanSimulation struct {
	Flow         Flow                `json:"flow"`
	BorrowerID   string              `json:"borrower_id"`
	ProductID    string              `json:"product_id"`
	Principal    decimal.Decimal     `json:"principal"`
	Term         int                 `json:"term"`
	Rate         decimal.Decimal     `json:"rate"`
	Installment  decimal.Decimal     `json:"installment"`
	TotalPaid    decimal.Decimal     `json:"total_paid"`
	Tax          decimal.Decimal     `json:"tax"`
	NetFinanced  decimal.Decimal     `json:"net_financed"`
	CET          decimal.Decimal     `json:"cet"`
	CETAnnual    decimal.Decimal     `json:"cet_annual"`
	CETConverged bool                `json:"cet_converged"`
	Installments []Installment       `json:"installments"`
	Margin       MarginDecision      `json:"margin"`
	Baseline     *BaselineComparison `json:"baseline,omitempty"`
	Warnings     []string            `json:"warnings,omitempty"`
	CreatedAt    time.Time           `json:"created_at"`
}
