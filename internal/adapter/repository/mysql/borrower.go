package mysql

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"consigned-credit/internal/domain/loan"
)

type BorrowerRepository struct{ db *gorm.DB }

func NewBorrowerRepository(db *gorm.DB) *BorrowerRepository { return &BorrowerRepository{db: db} }

func (r *BorrowerRepository) GetByBorrowerID(ctx context.Context, borrowerID string) (*loan.Borrower, error) {
	var out loan.Borrower
	res := r.db.WithContext(ctx).Where("borrower_id = ?", borrowerID).First(&out)
	return &out, res.Error
}

// lock takes a row lock on the borrower. A borrower that does not exist is
// not an error here; the caller reports it when it loads the row.
func (r *BorrowerRepository) lock(ctx context.Context, borrowerID string) error {
	var out loan.Borrower
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("borrower_id = ?", borrowerID).
		Take(&out).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	return err
}
