package loan

import "context"

type BorrowerRepository interface {
	GetByBorrowerID(ctx context.Context, borrowerID string) (*Borrower, error)
}

type ProductRepository interface {
	GetByProductID(ctx context.Context, productID string) (*Product, error)
}

type ContractRepository interface {
	GetByContractID(ctx context.Context, contractID string) (*Contract, error)
	ListActiveByBorrowerID(ctx context.Context, borrowerID string) ([]Contract, error)
	// Locks the rows until the surrounding tx ends.
	ListActiveByBorrowerIDForUpdate(ctx context.Context, borrowerID string) ([]Contract, error)
}

type ProposalRepository interface {
	Create(ctx context.Context, p *Proposal) error
	GetByProposalID(ctx context.Context, proposalID string) (*Proposal, error)
}
