package uow

import (
	"context"

	"consigned-credit/internal/domain/loan"
)

type Repos struct {
	Borrowers loan.BorrowerRepository
	Products  loan.ProductRepository
	Contracts loan.ContractRepository
	Proposals loan.ProposalRepository
}

type UnitOfWork interface {
	WithinTx(ctx context.Context, fn func(r Repos) error) error
	// WithinBorrowerTx locks the borrower row, then reads the active
	// contracts, so two proposals for one borrower run one after the other.
	WithinBorrowerTx(ctx context.Context, borrowerID string, fn func(r Repos, active []loan.Contract) error) error
}
