package mysql

import (
	"context"

	"gorm.io/gorm"

	"consigned-credit/internal/domain/loan"
	"consigned-credit/internal/domain/uow"
)

type GormUoW struct{ db *gorm.DB }

func NewGormUoW(db *gorm.DB) *GormUoW { return &GormUoW{db: db} }

func reposFor(tx *gorm.DB) uow.Repos {
	return uow.Repos{
		Borrowers: &BorrowerRepository{db: tx},
		Products:  &ProductRepository{db: tx},
		Contracts: &ContractRepository{db: tx},
		Proposals: &ProposalRepository{db: tx},
	}
}

func (u *GormUoW) WithinTx(ctx context.Context, fn func(r uow.Repos) error) error {
	return u.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(reposFor(tx))
	})
}

func (u *GormUoW) WithinBorrowerTx(ctx context.Context, borrowerID string, fn func(r uow.Repos, active []loan.Contract) error) error {
	return u.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// the borrower row is the mutex: it exists even when the borrower
		// has no active contracts to lock
		if err := (&BorrowerRepository{db: tx}).lock(ctx, borrowerID); err != nil {
			return err
		}
		r := reposFor(tx)
		active, err := r.Contracts.ListActiveByBorrowerIDForUpdate(ctx, borrowerID)
		if err != nil {
			return err
		}
		return fn(r, active)
	})
}
