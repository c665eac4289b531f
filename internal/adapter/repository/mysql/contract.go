package mysql

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"consigned-credit/internal/domain/loan"
)

type ContractRepository struct{ db *gorm.DB }

func NewContractRepository(db *gorm.DB) *ContractRepository { return &ContractRepository{db: db} }

func (r *ContractRepository) GetByContractID(ctx context.Context, contractID string) (*loan.Contract, error) {
	var out loan.Contract
	res := r.db.WithContext(ctx).Where("contract_id = ?", contractID).First(&out)
	return &out, res.Error
}

func (r *ContractRepository) ListActiveByBorrowerID(ctx context.Context, borrowerID string) ([]loan.Contract, error) {
	return r.listActive(r.db.WithContext(ctx), borrowerID)
}

// ListActiveByBorrowerIDForUpdate must run inside a transaction.
func (r *ContractRepository) ListActiveByBorrowerIDForUpdate(ctx context.Context, borrowerID string) ([]loan.Contract, error) {
	return r.listActive(r.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}), borrowerID)
}

func (r *ContractRepository) listActive(q *gorm.DB, borrowerID string) ([]loan.Contract, error) {
	var out []loan.Contract
	res := q.Where("borrower_id = ? AND status = ?", borrowerID, loan.ContractActive).
		Order("id ASC").
		Find(&out)
	return out, res.Error
}
