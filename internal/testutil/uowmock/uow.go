package uowmock

import (
	"context"
	"errors"

	"consigned-credit/internal/domain/loan"
	"consigned-credit/internal/domain/uow"
)

var _ uow.UnitOfWork = (*UoW)(nil)

var errUnimplemented = errors.New("uowmock: method not implemented")

// UoW is a function-backed mock that satisfies uow.UnitOfWork.
// Unfilled function fields return errUnimplemented.
type UoW struct {
	WithinTxFn         func(ctx context.Context, fn func(r uow.Repos) error) error
	WithinBorrowerTxFn func(ctx context.Context, borrowerID string, fn func(r uow.Repos, active []loan.Contract) error) error
}

func New() *UoW { return &UoW{} }

func (m *UoW) WithWithinTx(fn func(context.Context, func(uow.Repos) error) error) *UoW {
	m.WithinTxFn = fn
	return m
}

func (m *UoW) WithWithinBorrowerTx(fn func(context.Context, string, func(uow.Repos, []loan.Contract) error) error) *UoW {
	m.WithinBorrowerTxFn = fn
	return m
}

// Passthrough runs every body directly against repos, handing
// WithinBorrowerTx the given active contracts.
func Passthrough(repos uow.Repos, active []loan.Contract) *UoW {
	return &UoW{
		WithinTxFn: func(_ context.Context, fn func(uow.Repos) error) error { return fn(repos) },
		WithinBorrowerTxFn: func(_ context.Context, _ string, fn func(uow.Repos, []loan.Contract) error) error {
			return fn(repos, active)
		},
	}
}

func (m *UoW) Reset() { *m = UoW{} }

func (m *UoW) WithinTx(ctx context.Context, fn func(r uow.Repos) error) error {
	if m.WithinTxFn != nil {
		return m.WithinTxFn(ctx, fn)
	}
	return errUnimplemented
}

func (m *UoW) WithinBorrowerTx(ctx context.Context, borrowerID string, fn func(r uow.Repos, active []loan.Contract) error) error {
	if m.WithinBorrowerTxFn != nil {
		return m.WithinBorrowerTxFn(ctx, borrowerID, fn)
	}
	return errUnimplemented
}
