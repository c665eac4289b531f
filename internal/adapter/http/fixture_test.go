package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"consigned-credit/internal/domain/loan"
	"consigned-credit/internal/domain/terms"
	"consigned-credit/internal/domain/uow"
	"consigned-credit/internal/infrastructure/cache"
	"consigned-credit/internal/infrastructure/logging"
	"consigned-credit/internal/testutil/loanmock"
	"consigned-credit/internal/testutil/uowmock"
	"consigned-credit/internal/usecase/simulation"
)

var (
	borrowerID = strings.Repeat("b", 32)
	productID  = "inss-consig"
	contractID = strings.Repeat("c", 32)
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newEchoWithValidator() *echo.Echo {
	e := echo.New()
	e.Validator = NewValidator()
	return e
}

func mustJSON(v any) *bytes.Reader {
	b, _ := json.Marshal(v)
	return bytes.NewReader(b)
}

// store is an in-memory backing for the mock repositories.
type store struct {
	borrower  *loan.Borrower
	product   *loan.Product
	contracts map[string]*loan.Contract
	proposals []*loan.Proposal
}

func newStore() *store {
	return &store{
		borrower: &loan.Borrower{BorrowerID: borrowerID, GrossSalary: dec("5000")},
		product: &loan.Product{
			ProductID: productID, Rate: dec("1.99"), MinTerm: 6, MaxTerm: 96,
			MinPrincipal: dec("500"), MaxPrincipal: dec("100000"), Active: true,
		},
		contracts: map[string]*loan.Contract{},
	}
}

func (s *store) active() []loan.Contract {
	var out []loan.Contract
	for _, c := range s.contracts {
		if c.Status == loan.ContractActive {
			out = append(out, *c)
		}
	}
	return out
}

func (s *store) repos() uow.Repos {
	return uow.Repos{
		Borrowers: &loanmock.Borrowers{GetByBorrowerIDFn: func(_ context.Context, id string) (*loan.Borrower, error) {
			if id != s.borrower.BorrowerID {
				return nil, gorm.ErrRecordNotFound
			}
			return s.borrower, nil
		}},
		Products: &loanmock.Products{GetByProductIDFn: func(_ context.Context, id string) (*loan.Product, error) {
			if id != s.product.ProductID {
				return nil, gorm.ErrRecordNotFound
			}
			return s.product, nil
		}},
		Contracts: &loanmock.Contracts{
			GetByContractIDFn: func(_ context.Context, id string) (*loan.Contract, error) {
				if c, ok := s.contracts[id]; ok {
					return c, nil
				}
				return nil, gorm.ErrRecordNotFound
			},
			ListActiveByBorrowerIDFn: func(context.Context, string) ([]loan.Contract, error) {
				return s.active(), nil
			},
		},
		Proposals: &loanmock.Proposals{
			CreateFn: func(_ context.Context, p *loan.Proposal) error {
				p.CreatedAt = time.Now().UTC()
				s.proposals = append(s.proposals, p)
				return nil
			},
			GetByProposalIDFn: func(_ context.Context, id string) (*loan.Proposal, error) {
				for _, p := range s.proposals {
					if p.ProposalID == id {
						return p, nil
					}
				}
				return nil, gorm.ErrRecordNotFound
			},
		},
	}
}

func (s *store) usecase(t *testing.T) *simulation.Usecase {
	t.Helper()
	engine, err := terms.NewEngine(terms.DefaultPolicy())
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	repos := s.repos()
	tx := uowmock.New().WithWithinBorrowerTx(func(_ context.Context, _ string, fn func(uow.Repos, []loan.Contract) error) error {
		return fn(repos, s.active())
	}).WithWithinTx(func(_ context.Context, fn func(uow.Repos) error) error {
		return fn(repos)
	})
	c := cache.NewSimulationCache(cache.NewMemoryStore(), time.Hour, logging.Discard())
	return simulation.NewUsecase(repos, tx, engine, c, nil, logging.Discard())
}

func postJSON(e *echo.Echo, path string, body any) (echo.Context, *httptest.ResponseRecorder) {
	req := httptest.NewRequest("POST", path, mustJSON(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}
