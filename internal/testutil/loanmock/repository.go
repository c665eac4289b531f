package loanmock

import (
	"context"

	domain "consigned-credit/internal/domain/loan"
)

var (
	_ domain.BorrowerRepository = (*Borrowers)(nil)
	_ domain.ProductRepository  = (*Products)(nil)
	_ domain.ContractRepository = (*Contracts)(nil)
	_ domain.ProposalRepository = (*Proposals)(nil)
)

// Borrowers is a function-backed mock of domain.BorrowerRepository.
type Borrowers struct {
	GetByBorrowerIDFn func(ctx context.Context, borrowerID string) (*domain.Borrower, error)
}

func (m *Borrowers) GetByBorrowerID(ctx context.Context, borrowerID string) (*domain.Borrower, error) {
	if m.GetByBorrowerIDFn != nil {
		return m.GetByBorrowerIDFn(ctx, borrowerID)
	}
	return nil, context.Canceled
}

type Products struct {
	GetByProductIDFn func(ctx context.Context, productID string) (*domain.Product, error)
}

func (m *Products) GetByProductID(ctx context.Context, productID string) (*domain.Product, error) {
	if m.GetByProductIDFn != nil {
		return m.GetByProductIDFn(ctx, productID)
	}
	return nil, context.Canceled
}

// Contracts defaults to an empty active list so flows that only need the
// committed total work without setup.
type Contracts struct {
	GetByContractIDFn                 func(ctx context.Context, contractID string) (*domain.Contract, error)
	ListActiveByBorrowerIDFn          func(ctx context.Context, borrowerID string) ([]domain.Contract, error)
	ListActiveByBorrowerIDForUpdateFn func(ctx context.Context, borrowerID string) ([]domain.Contract, error)
}

func (m *Contracts) GetByContractID(ctx context.Context, contractID string) (*domain.Contract, error) {
	if m.GetByContractIDFn != nil {
		return m.GetByContractIDFn(ctx, contractID)
	}
	return nil, context.Canceled
}

func (m *Contracts) ListActiveByBorrowerID(ctx context.Context, borrowerID string) ([]domain.Contract, error) {
	if m.ListActiveByBorrowerIDFn != nil {
		return m.ListActiveByBorrowerIDFn(ctx, borrowerID)
	}
	return nil, nil
}

func (m *Contracts) ListActiveByBorrowerIDForUpdate(ctx context.Context, borrowerID string) ([]domain.Contract, error) {
	if m.ListActiveByBorrowerIDForUpdateFn != nil {
		return m.ListActiveByBorrowerIDForUpdateFn(ctx, borrowerID)
	}
	return nil, nil
}

type Proposals struct {
	CreateFn          func(ctx context.Context, p *domain.Proposal) error
	GetByProposalIDFn func(ctx context.Context, proposalID string) (*domain.Proposal, error)
}

func (m *Proposals) Create(ctx context.Context, p *domain.Proposal) error {
	if m.CreateFn != nil {
		return m.CreateFn(ctx, p)
	}
	return nil
}

func (m *Proposals) GetByProposalID(ctx context.Context, proposalID string) (*domain.Proposal, error) {
	if m.GetByProposalIDFn != nil {
		return m.GetByProposalIDFn(ctx, proposalID)
	}
	return nil, context.Canceled
}
