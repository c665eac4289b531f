package mysql

import (
	"context"

	"gorm.io/gorm"

	"consigned-credit/internal/domain/loan"
)

type ProposalRepository struct{ db *gorm.DB }

func NewProposalRepository(db *gorm.DB) *ProposalRepository { return &ProposalRepository{db: db} }

func (r *ProposalRepository) Create(ctx context.Context, p *loan.Proposal) error {
	return r.db.WithContext(ctx).Create(p).Error
}

func (r *ProposalRepository) GetByProposalID(ctx context.Context, proposalID string) (*loan.Proposal, error) {
	var out loan.Proposal
	res := r.db.WithContext(ctx).Where("proposal_id = ?", proposalID).First(&out)
	return &out, res.Error
}
