package simulation

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"consigned-credit/internal/domain/loan"
	"consigned-credit/internal/domain/terms"
	"consigned-credit/internal/domain/uow"
	"consigned-credit/internal/infrastructure/cache"
	"consigned-credit/internal/infrastructure/logging"
	"consigned-credit/internal/infrastructure/notify"
	"consigned-credit/internal/testutil/loanmock"
	"consigned-credit/internal/testutil/uowmock"
)

// ----- fixtures -----

var (
	borrowerID = strings.Repeat("b", 32)
	productID  = strings.Repeat("p", 32)
	contractID = strings.Repeat("c", 32)
	today      = time.Date(2025, 9, 6, 15, 30, 0, 0, time.UTC)
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type recorder struct{ events []notify.Event }

func (r *recorder) Notify(_ context.Context, e notify.Event) error {
	r.events = append(r.events, e)
	return nil
}

type fixture struct {
	borrower  *loan.Borrower
	product   *loan.Product
	contracts map[string]*loan.Contract
	active    []loan.Contract
	created   []*loan.Proposal
	notes     *recorder
	txReads   int
}

func newFixture() *fixture {
	return &fixture{
		borrower: &loan.Borrower{BorrowerID: borrowerID, Enrollment: "MAT-1", GrossSalary: dec("5000")},
		product: &loan.Product{
			ProductID: productID, Rate: dec("1.99"),
			MinTerm: 6, MaxTerm: 96, MinPrincipal: dec("500"), MaxPrincipal: dec("100000"),
			Active: true,
		},
		contracts: map[string]*loan.Contract{},
		notes:     &recorder{},
	}
}

// addContract registers an active contract owned by the borrower.
func (f *fixture) addContract(cid, installment, outstanding, rate string, remaining int) *loan.Contract {
	c := &loan.Contract{
		ContractID:         cid,
		BorrowerID:         borrowerID,
		Institution:        "other-bank",
		Installment:        dec(installment),
		RemainingTerm:      remaining,
		OutstandingBalance: dec(outstanding),
		Rate:               dec(rate),
		Status:             loan.ContractActive,
	}
	f.contracts[cid] = c
	f.active = append(f.active, *c)
	return c
}

func (f *fixture) repos() uow.Repos {
	return uow.Repos{
		Borrowers: &loanmock.Borrowers{GetByBorrowerIDFn: func(_ context.Context, id string) (*loan.Borrower, error) {
			if id != f.borrower.BorrowerID {
				return nil, gorm.ErrRecordNotFound
			}
			return f.borrower, nil
		}},
		Products: &loanmock.Products{GetByProductIDFn: func(_ context.Context, id string) (*loan.Product, error) {
			if id != f.product.ProductID {
				return nil, gorm.ErrRecordNotFound
			}
			return f.product, nil
		}},
		Contracts: &loanmock.Contracts{
			GetByContractIDFn: func(_ context.Context, id string) (*loan.Contract, error) {
				c, ok := f.contracts[id]
				if !ok {
					return nil, gorm.ErrRecordNotFound
				}
				return c, nil
			},
			ListActiveByBorrowerIDFn: func(context.Context, string) ([]loan.Contract, error) {
				return f.active, nil
			},
		},
		Proposals: &loanmock.Proposals{
			CreateFn: func(_ context.Context, p *loan.Proposal) error {
				p.CreatedAt = today
				f.created = append(f.created, p)
				return nil
			},
			GetByProposalIDFn: func(_ context.Context, id string) (*loan.Proposal, error) {
				for _, p := range f.created {
					if p.ProposalID == id {
						return p, nil
					}
				}
				return nil, gorm.ErrRecordNotFound
			},
		},
	}
}

func (f *fixture) usecase(t *testing.T, c Cache) *Usecase {
	t.Helper()
	engine, err := terms.NewEngine(terms.DefaultPolicy())
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	repos := f.repos()
	tx := uowmock.New().WithWithinBorrowerTx(func(_ context.Context, _ string, fn func(uow.Repos, []loan.Contract) error) error {
		return fn(repos, f.active)
	}).WithWithinTx(func(_ context.Context, fn func(uow.Repos) error) error {
		f.txReads++
		return fn(repos)
	})
	return NewUsecase(repos, tx, engine, c, f.notes, logging.Discard()).
		WithClock(func() time.Time { return today })
}

func memCache() *cache.SimulationCache {
	return cache.NewSimulationCache(cache.NewMemoryStore(), time.Hour, logging.Discard())
}

// ----- simulations -----

func TestSimulateNew_ComputesThenHitsCache(t *testing.T) {
	f := newFixture()
	uc := f.usecase(t, memCache())
	in := SimulateNewInput{BorrowerID: borrowerID, ProductID: productID, Principal: dec("10000"), Term: 24}

	first, err := uc.SimulateNew(context.Background(), in)
	if err != nil {
		t.Fatalf("SimulateNew: %v", err)
	}
	if first.Cached {
		t.Fatalf("first call must not be cached")
	}
	if len(first.Installments) != 24 || !first.Tax.Equal(dec("628.40")) {
		t.Fatalf("unexpected simulation: term=%d tax=%s", len(first.Installments), first.Tax)
	}
	// anchor is today's UTC midnight, first due one month later
	want := time.Date(2025, 10, 6, 0, 0, 0, 0, time.UTC)
	if !first.Installments[0].DueDate.Equal(want) {
		t.Fatalf("first due = %v, want %v", first.Installments[0].DueDate, want)
	}

	second, err := uc.SimulateNew(context.Background(), in)
	if err != nil {
		t.Fatalf("SimulateNew (2nd): %v", err)
	}
	if !second.Cached || !second.Installment.Equal(first.Installment) {
		t.Fatalf("second call: cached=%v installment=%s", second.Cached, second.Installment)
	}
}

func TestSimulateNew_CommittedChangeMissesCache(t *testing.T) {
	f := newFixture()
	uc := f.usecase(t, memCache())
	in := SimulateNewInput{BorrowerID: borrowerID, ProductID: productID, Principal: dec("10000"), Term: 24}

	if _, err := uc.SimulateNew(context.Background(), in); err != nil {
		t.Fatalf("SimulateNew: %v", err)
	}
	f.addContract(contractID, "100", "1000", "2.5", 10)
	got, err := uc.SimulateNew(context.Background(), in)
	if err != nil {
		t.Fatalf("SimulateNew: %v", err)
	}
	if got.Cached {
		t.Fatal("a new committed total must not reuse the cached simulation")
	}
	if !got.Margin.Utilized.Equal(dec("100")) {
		t.Fatalf("utilized = %s, want 100", got.Margin.Utilized)
	}
}

func TestSimulateNew_WithoutCache(t *testing.T) {
	f := newFixture()
	uc := f.usecase(t, nil)
	got, err := uc.SimulateNew(context.Background(), SimulateNewInput{BorrowerID: borrowerID, ProductID: productID, Principal: dec("10000"), Term: 24})
	if err != nil || got.Cached {
		t.Fatalf("got=%+v err=%v", got, err)
	}
}

func TestSimulateNew_LookupErrors(t *testing.T) {
	f := newFixture()
	uc := f.usecase(t, nil)
	ctx := context.Background()

	_, err := uc.SimulateNew(ctx, SimulateNewInput{BorrowerID: strings.Repeat("x", 32), ProductID: productID, Principal: dec("1000"), Term: 12})
	if !errors.Is(err, loan.ErrNotFound) {
		t.Fatalf("unknown borrower: want ErrNotFound, got %v", err)
	}

	_, err = uc.SimulateNew(ctx, SimulateNewInput{BorrowerID: borrowerID, ProductID: "nope", Principal: dec("1000"), Term: 12})
	if !errors.Is(err, loan.ErrNotFound) {
		t.Fatalf("unknown product: want ErrNotFound, got %v", err)
	}

	f.product.Active = false
	_, err = uc.SimulateNew(ctx, SimulateNewInput{BorrowerID: borrowerID, ProductID: productID, Principal: dec("1000"), Term: 12})
	if !errors.Is(err, loan.ErrProductInactive) {
		t.Fatalf("inactive product: want ErrProductInactive, got %v", err)
	}

	_, err = uc.SimulateNew(ctx, SimulateNewInput{ProductID: productID, Principal: dec("1000"), Term: 12})
	if !errors.Is(err, loan.ErrContractViolation) {
		t.Fatalf("missing borrower id: want violation, got %v", err)
	}
}

func TestSimulateNew_MarginInsufficient(t *testing.T) {
	f := newFixture()
	f.addContract(contractID, "1000", "20000", "2.1", 30)
	uc := f.usecase(t, memCache())

	_, err := uc.SimulateNew(context.Background(), SimulateNewInput{BorrowerID: borrowerID, ProductID: productID, Principal: dec("10000"), Term: 12})
	me, ok := loan.IsMarginInsufficient(err)
	if !ok {
		t.Fatalf("want MarginInsufficientError, got %v", err)
	}
	if !me.Available.Equal(dec("500")) || me.BorrowerID != borrowerID {
		t.Fatalf("unexpected margin error: %+v", me)
	}
}

func TestSimulateNew_InvalidTerm(t *testing.T) {
	f := newFixture()
	uc := f.usecase(t, nil)
	_, err := uc.SimulateNew(context.Background(), SimulateNewInput{BorrowerID: borrowerID, ProductID: productID, Principal: dec("10000"), Term: 120})
	ie, ok := loan.IsInvalidTerm(err)
	if !ok || ie.Field != "term" {
		t.Fatalf("want InvalidTermError on term, got %v", err)
	}
}

func TestSimulateRefinance(t *testing.T) {
	f := newFixture()
	old := f.addContract(contractID, "300", "3000", "2.5", 12)
	uc := f.usecase(t, memCache())

	got, err := uc.SimulateRefinance(context.Background(), SimulateRefinanceInput{
		BorrowerID: borrowerID, ContractID: contractID, ProductID: productID,
		Principal: dec("10000"), Term: 24,
	})
	if err != nil {
		t.Fatalf("SimulateRefinance: %v", err)
	}
	b := got.Baseline
	if b == nil || b.ContractID != contractID {
		t.Fatalf("missing baseline: %+v", got.Baseline)
	}
	if !b.Payout.Equal(dec("7000")) {
		t.Fatalf("payout = %s, want 7000", b.Payout)
	}
	want := terms.RefinanceEconomy(old.Installment.Mul(decimal.NewFromInt(int64(old.RemainingTerm))), got.TotalPaid)
	if !b.Economy.Equal(want) {
		t.Fatalf("economy = %s, want %s", b.Economy, want)
	}
	// only the delta over the old installment is checked against the margin
	if !got.Margin.Requested.Equal(got.Installment.Sub(dec("300"))) {
		t.Fatalf("margin requested = %s", got.Margin.Requested)
	}
}

func TestSimulateRefinance_ContractGuards(t *testing.T) {
	f := newFixture()
	c := f.addContract(contractID, "300", "3000", "2.5", 12)
	uc := f.usecase(t, nil)
	in := SimulateRefinanceInput{BorrowerID: borrowerID, ContractID: contractID, ProductID: productID, Principal: dec("10000"), Term: 24}
	ctx := context.Background()

	c.BorrowerID = strings.Repeat("z", 32)
	if _, err := uc.SimulateRefinance(ctx, in); !errors.Is(err, loan.ErrContractNotOwned) {
		t.Fatalf("want ErrContractNotOwned, got %v", err)
	}

	c.BorrowerID = borrowerID
	c.Status = loan.ContractSettled
	if _, err := uc.SimulateRefinance(ctx, in); !errors.Is(err, loan.ErrContractNotActive) {
		t.Fatalf("want ErrContractNotActive, got %v", err)
	}

	in.ContractID = strings.Repeat("9", 32)
	if _, err := uc.SimulateRefinance(ctx, in); !errors.Is(err, loan.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}

	in.ContractID = ""
	if _, err := uc.SimulateRefinance(ctx, in); !errors.Is(err, loan.ErrContractViolation) {
		t.Fatalf("want violation, got %v", err)
	}
}

func TestSimulatePortability(t *testing.T) {
	f := newFixture()
	f.addContract(contractID, "420", "8000", "2.5", 30)
	uc := f.usecase(t, memCache())

	got, err := uc.SimulatePortability(context.Background(), SimulatePortabilityInput{
		BorrowerID: borrowerID, ContractID: contractID, ProductID: productID, Term: 24,
	})
	if err != nil {
		t.Fatalf("SimulatePortability: %v", err)
	}
	if !got.Principal.Equal(dec("8000")) || !got.Rate.Equal(dec("1.99")) {
		t.Fatalf("principal=%s rate=%s", got.Principal, got.Rate)
	}
	if got.Baseline == nil || !got.Baseline.PresentValue.IsPositive() {
		t.Fatalf("baseline = %+v", got.Baseline)
	}
}

func TestSimulatePortability_RateMustBeLower(t *testing.T) {
	f := newFixture()
	f.addContract(contractID, "420", "8000", "1.99", 30)
	uc := f.usecase(t, nil)

	_, err := uc.SimulatePortability(context.Background(), SimulatePortabilityInput{
		BorrowerID: borrowerID, ContractID: contractID, ProductID: productID, Term: 24,
	})
	if !errors.Is(err, loan.ErrPortabilityRateNotLower) {
		t.Fatalf("want ErrPortabilityRateNotLower, got %v", err)
	}
}

// ----- proposals -----

func TestCreateProposal_Proposed(t *testing.T) {
	f := newFixture()
	uc := f.usecase(t, nil)

	dto, err := uc.CreateProposal(context.Background(), CreateProposalInput{
		Flow: loan.FlowNew, BorrowerID: borrowerID, ProductID: productID, Principal: dec("10000"), Term: 24,
	})
	if err != nil {
		t.Fatalf("CreateProposal: %v", err)
	}
	if dto.State != string(loan.ProposalProposed) || len(dto.ProposalID) != 32 {
		t.Fatalf("unexpected dto: %+v", dto)
	}
	if dto.Simulation == nil || !dto.Installment.Equal(dto.Simulation.Installment) {
		t.Fatalf("simulation not attached: %+v", dto.Simulation)
	}
	if len(f.created) != 1 || !f.created[0].Tax.Equal(dec("628.40")) {
		t.Fatalf("persisted = %+v", f.created)
	}
	if len(f.notes.events) != 1 || f.notes.events[0].Type != notify.EventProposalCreated {
		t.Fatalf("events = %+v", f.notes.events)
	}

	got, err := uc.GetProposal(context.Background(), dto.ProposalID)
	if err != nil || got.ProposalID != dto.ProposalID {
		t.Fatalf("GetProposal: got=%+v err=%v", got, err)
	}
}

func TestCreateProposal_RejectedIsPersisted(t *testing.T) {
	f := newFixture()
	f.addContract(contractID, "1000", "20000", "2.1", 30)
	uc := f.usecase(t, nil)

	dto, err := uc.CreateProposal(context.Background(), CreateProposalInput{
		Flow: loan.FlowNew, BorrowerID: borrowerID, ProductID: productID, Principal: dec("10000"), Term: 12,
	})
	if dto != nil {
		t.Fatalf("dto should be nil on rejection")
	}
	pe, ok := IsProposalRejected(err)
	if !ok {
		t.Fatalf("want ProposalRejectedError, got %v", err)
	}
	if _, ok := loan.IsMarginInsufficient(err); !ok {
		t.Fatalf("margin error must stay reachable: %v", err)
	}
	if len(f.created) != 1 {
		t.Fatalf("rejected proposal not persisted")
	}
	p := f.created[0]
	if p.ProposalID != pe.ProposalID || p.State != loan.ProposalRejected || !p.Shortfall.IsPositive() || p.RejectionReason == "" {
		t.Fatalf("unexpected rejected proposal: %+v", p)
	}
	if len(f.notes.events) != 1 || f.notes.events[0].Type != notify.EventProposalRejected {
		t.Fatalf("events = %+v", f.notes.events)
	}
}

func TestCreateProposal_Errors(t *testing.T) {
	f := newFixture()
	uc := f.usecase(t, nil)
	ctx := context.Background()

	_, err := uc.CreateProposal(ctx, CreateProposalInput{Flow: "LEASE", BorrowerID: borrowerID, ProductID: productID, Term: 12})
	if ie, ok := loan.IsInvalidTerm(err); !ok || ie.Field != "flow" {
		t.Fatalf("want InvalidTermError on flow, got %v", err)
	}

	_, err = uc.CreateProposal(ctx, CreateProposalInput{Flow: loan.FlowNew, BorrowerID: borrowerID, ProductID: productID, Principal: dec("10"), Term: 12})
	if _, ok := loan.IsInvalidTerm(err); !ok {
		t.Fatalf("want InvalidTermError on principal, got %v", err)
	}
	if len(f.created) != 0 || len(f.notes.events) != 0 {
		t.Fatalf("nothing should be persisted or notified on errors")
	}

	noTx := NewUsecase(f.repos(), nil, nil, nil, nil, logging.Discard())
	if _, err := noTx.CreateProposal(ctx, CreateProposalInput{Flow: loan.FlowNew}); !errors.Is(err, loan.ErrContractViolation) {
		t.Fatalf("want violation without uow, got %v", err)
	}
}

type failingNotifier struct{}

func (failingNotifier) Notify(context.Context, notify.Event) error { return errors.New("down") }

func TestCreateProposal_NotificationFailureIgnored(t *testing.T) {
	f := newFixture()
	uc := f.usecase(t, nil)
	uc.notifier = failingNotifier{}

	if _, err := uc.CreateProposal(context.Background(), CreateProposalInput{
		Flow: loan.FlowNew, BorrowerID: borrowerID, ProductID: productID, Principal: dec("10000"), Term: 24,
	}); err != nil {
		t.Fatalf("notification failure must not fail the request: %v", err)
	}
}

func TestGetProposal_NotFound(t *testing.T) {
	f := newFixture()
	uc := f.usecase(t, nil)
	if _, err := uc.GetProposal(context.Background(), "missing"); !errors.Is(err, loan.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
	if f.txReads != 1 {
		t.Fatalf("reads inside a tx = %d, want 1", f.txReads)
	}
}

func TestGetProposal_ReadsThroughUnitOfWork(t *testing.T) {
	f := newFixture()
	uc := f.usecase(t, nil)
	dto, err := uc.CreateProposal(context.Background(), CreateProposalInput{
		Flow: loan.FlowNew, BorrowerID: borrowerID, ProductID: productID, Principal: dec("10000"), Term: 24,
	})
	if err != nil {
		t.Fatalf("CreateProposal: %v", err)
	}

	got, err := uc.GetProposal(context.Background(), dto.ProposalID)
	if err != nil || got.ProposalID != dto.ProposalID {
		t.Fatalf("GetProposal: got=%+v err=%v", got, err)
	}
	if f.txReads != 1 {
		t.Fatalf("reads inside a tx = %d, want 1", f.txReads)
	}
}

func TestGetProposal_TxErrorIsReturned(t *testing.T) {
	f := newFixture()
	engine, err := terms.NewEngine(terms.DefaultPolicy())
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	down := errors.New("connection refused")
	tx := uowmock.New().WithWithinTx(func(context.Context, func(uow.Repos) error) error { return down })
	uc := NewUsecase(f.repos(), tx, engine, nil, f.notes, logging.Discard())

	_, err = uc.GetProposal(context.Background(), "any")
	if !errors.Is(err, down) || errors.Is(err, loan.ErrNotFound) {
		t.Fatalf("want the tx error, got %v", err)
	}
}

func TestAnchor_ClampsMonthEnd(t *testing.T) {
	f := newFixture()
	uc := f.usecase(t, nil).WithClock(func() time.Time { return time.Date(2025, 1, 31, 23, 0, 0, 0, time.UTC) })

	got, err := uc.SimulateNew(context.Background(), SimulateNewInput{BorrowerID: borrowerID, ProductID: productID, Principal: dec("5000"), Term: 12})
	if err != nil {
		t.Fatalf("SimulateNew: %v", err)
	}
	if want := time.Date(2025, 2, 28, 0, 0, 0, 0, time.UTC); !got.Installments[0].DueDate.Equal(want) {
		t.Fatalf("first due = %v, want %v", got.Installments[0].DueDate, want)
	}
}
