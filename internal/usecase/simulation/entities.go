package simulation

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"consigned-credit/internal/domain/loan"
)

type SimulateNewInput struct {
	BorrowerID string
	ProductID  string
	Principal  decimal.Decimal
	Term       int
}

// SimulateRefinanceInput replaces ContractID (owned by the borrower) with a
// new loan of Principal over Term.
type SimulateRefinanceInput struct {
	BorrowerID string
	ContractID string
	ProductID  string
	Principal  decimal.Decimal
	Term       int
}

// SimulatePortabilityInput brings ContractID from another institution; the
// financed principal is its outstanding balance.
type SimulatePortabilityInput struct {
	BorrowerID string
	ContractID string
	ProductID  string
	Term       int
}

// CreateProposalInput is any of the three flows; ContractID is required for
// refinance and portability, Principal is ignored for portability.
type CreateProposalInput struct {
	Flow       loan.Flow
	BorrowerID string
	ProductID  string
	ContractID string
	Principal  decimal.Decimal
	Term       int
}

type SimulationDTO struct {
	loan.LoanSimulation
	Cached bool `json:"cached"`
}

type ProposalDTO struct {
	ProposalID      string               `json:"proposal_id"`
	Flow            loan.Flow            `json:"flow"`
	BorrowerID      string               `json:"borrower_id"`
	ProductID       string               `json:"product_id"`
	ContractID      string               `json:"contract_id,omitempty"`
	Principal       decimal.Decimal      `json:"principal"`
	Term            int                  `json:"term"`
	Rate            decimal.Decimal      `json:"rate"`
	Installment     decimal.Decimal      `json:"installment"`
	TotalPaid       decimal.Decimal      `json:"total_paid"`
	Tax             decimal.Decimal      `json:"tax"`
	CET             decimal.Decimal      `json:"cet"`
	CETConverged    bool                 `json:"cet_converged"`
	Economy         decimal.Decimal      `json:"economy"`
	State           string               `json:"state"`
	RejectionReason string               `json:"rejection_reason,omitempty"`
	Shortfall       decimal.Decimal      `json:"shortfall"`
	CreatedAt       time.Time            `json:"created_at"`
	Simulation      *loan.LoanSimulation `json:"simulation,omitempty"`
}

func toProposalDTO(p *loan.Proposal) *ProposalDTO {
	return &ProposalDTO{
		ProposalID:      p.ProposalID,
		Flow:            p.Flow,
		BorrowerID:      p.BorrowerID,
		ProductID:       p.ProductID,
		ContractID:      p.ContractID,
		Principal:       p.Principal,
		Term:            p.Term,
		Rate:            p.Rate,
		Installment:     p.Installment,
		TotalPaid:       p.TotalPaid,
		Tax:             p.Tax,
		CET:             p.CET,
		CETConverged:    p.CETConverged,
		Economy:         p.Economy,
		State:           string(p.State),
		RejectionReason: p.RejectionReason,
		Shortfall:       p.Shortfall,
		CreatedAt:       p.CreatedAt,
	}
}

// ProposalRejectedError carries the id of the rejected proposal that was
// persisted alongside the margin failure.
type ProposalRejectedError struct {
	ProposalID string
	Err        *loan.MarginInsufficientError
}

func (e *ProposalRejectedError) Error() string {
	return fmt.Sprintf("proposal %s rejected: %v", e.ProposalID, e.Err)
}

func (e *ProposalRejectedError) Unwrap() error { return e.Err }

func IsProposalRejected(err error) (*ProposalRejectedError, bool) {
	var pe *ProposalRejectedError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}
