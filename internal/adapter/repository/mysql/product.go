package mysql

import (
	"context"

	"gorm.io/gorm"

	"consigned-credit/internal/domain/loan"
)

type ProductRepository struct{ db *gorm.DB }

func NewProductRepository(db *gorm.DB) *ProductRepository { return &ProductRepository{db: db} }

func (r *ProductRepository) GetByProductID(ctx context.Context, productID string) (*loan.Product, error) {
	var out loan.Product
	res := r.db.WithContext(ctx).Where("product_id = ?", productID).First(&out)
	return &out, res.Error
}
