package loan

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Borrower is a public-sector employee eligible for payroll deduction.
type Borrower struct {
	ID          uint64          `gorm:"primaryKey;column:id" json:"-"`
	BorrowerID  string          `gorm:"size:32;uniqueIndex:ux_borrowers_borrower_id" json:"borrower_id"`
	Name        string          `gorm:"size:128" json:"name"`
	Enrollment  string          `gorm:"size:32;index" json:"enrollment"`
	GrossSalary decimal.Decimal `gorm:"type:decimal(18,2)" json:"gross_salary"`
	CreatedAt   time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Borrower) TableName() string { return "borrowers" }

func (b *Borrower) Snapshot() BorrowerSnapshot {
	return BorrowerSnapshot{BorrowerID: b.BorrowerID, Enrollment: b.Enrollment, GrossSalary: b.GrossSalary}
}

type Product struct {
	ID           uint64          `gorm:"primaryKey;column:id" json:"-"`
	ProductID    string          `gorm:"size:32;uniqueIndex:ux_products_product_id" json:"product_id"`
	Name         string          `gorm:"size:128" json:"name"`
	Rate         decimal.Decimal `gorm:"type:decimal(8,4)" json:"rate"`
	MinTerm      int             `json:"min_term"`
	MaxTerm      int             `json:"max_term"`
	MinPrincipal decimal.Decimal `gorm:"type:decimal(18,2)" json:"min_principal"`
	MaxPrincipal decimal.Decimal `gorm:"type:decimal(18,2)" json:"max_principal"`
	Active       bool            `gorm:"default:true" json:"active"`
	CreatedAt    time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Product) TableName() string { return "products" }

func (p *Product) Snapshot() ProductSnapshot {
	return ProductSnapshot{
		ProductID:    p.ProductID,
		Rate:         p.Rate,
		MinTerm:      p.MinTerm,
		MaxTerm:      p.MaxTerm,
		MinPrincipal: p.MinPrincipal,
		MaxPrincipal: p.MaxPrincipal,
	}
}

type ContractStatus string

const (
	ContractActive     ContractStatus = "active"
	ContractSettled    ContractStatus = "settled"
	ContractRefinanced ContractStatus = "refinanced"
	ContractPorted     ContractStatus = "ported"
)

// Contract is a running payroll-deductible loan, possibly held at another
// institution (origin of a portability).
type Contract struct {
	ID                 uint64          `gorm:"primaryKey;column:id" json:"-"`
	ContractID         string          `gorm:"size:32;uniqueIndex:ux_contracts_contract_id" json:"contract_id"`
	BorrowerID         string          `gorm:"size:32;index:idx_contracts_borrower_status" json:"borrower_id"`
	ProductID          string          `gorm:"size:32" json:"product_id"`
	Institution        string          `gorm:"size:64" json:"institution"`
	Installment        decimal.Decimal `gorm:"type:decimal(18,2)" json:"installment"`
	Term               int             `json:"term"`
	RemainingTerm      int             `json:"remaining_term"`
	OutstandingBalance decimal.Decimal `gorm:"type:decimal(18,2)" json:"outstanding_balance"`
	Rate               decimal.Decimal `gorm:"type:decimal(8,4)" json:"rate"`
	Status             ContractStatus  `gorm:"size:16;index:idx_contracts_borrower_status;default:'active'" json:"status"`
	CreatedAt          time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt          gorm.DeletedAt  `gorm:"index" json:"-"`
}

func (Contract) TableName() string { return "contracts" }

func (c *Contract) Snapshot() ContractSnapshot {
	return ContractSnapshot{
		ContractID:         c.ContractID,
		BorrowerID:         c.BorrowerID,
		Institution:        c.Institution,
		Installment:        c.Installment,
		RemainingTerm:      c.RemainingTerm,
		OutstandingBalance: c.OutstandingBalance,
		Rate:               c.Rate,
	}
}

// CommittedInstallments sums the installments of the given contracts that
// are still active.
func CommittedInstallments(cs []Contract) decimal.Decimal {
	total := decimal.Zero
	for _, c := range cs {
		if c.Status == ContractActive {
			total = total.Add(c.Installment)
		}
	}
	return total
}

type ProposalState string

const (
	ProposalProposed ProposalState = "proposed"
	ProposalRejected ProposalState = "rejected"
)

// Proposal is the persisted outcome of a simulation the borrower asked to
// contract.
type Proposal struct {
	ID              uint64          `gorm:"primaryKey;column:id" json:"-"`
	ProposalID      string          `gorm:"size:32;uniqueIndex:ux_proposals_proposal_id" json:"proposal_id"`
	Flow            Flow            `gorm:"size:16" json:"flow"`
	BorrowerID      string          `gorm:"size:32;index" json:"borrower_id"`
	ProductID       string          `gorm:"size:32" json:"product_id"`
	ContractID      string          `gorm:"size:32" json:"contract_id,omitempty"`
	Principal       decimal.Decimal `gorm:"type:decimal(18,2)" json:"principal"`
	Term            int             `json:"term"`
	Rate            decimal.Decimal `gorm:"type:decimal(8,4)" json:"rate"`
	Installment     decimal.Decimal `gorm:"type:decimal(18,2)" json:"installment"`
	TotalPaid       decimal.Decimal `gorm:"type:decimal(18,2)" json:"total_paid"`
	Tax             decimal.Decimal `gorm:"type:decimal(18,2)" json:"tax"`
	CET             decimal.Decimal `gorm:"type:decimal(10,6)" json:"cet"`
	CETConverged    bool            `json:"cet_converged"`
	Economy         decimal.Decimal `gorm:"type:decimal(18,2)" json:"economy"`
	State           ProposalState   `gorm:"size:16;default:'proposed'" json:"state"`
	RejectionReason string          `gorm:"type:text" json:"rejection_reason,omitempty"`
	Shortfall       decimal.Decimal `gorm:"type:decimal(18,2)" json:"shortfall"`
	CreatedAt       time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Proposal) TableName() string { return "proposals" }
