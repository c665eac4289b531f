package simulation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"consigned-credit/internal/domain/loan"
	"consigned-credit/internal/domain/terms"
	"consigned-credit/internal/domain/uow"
	"consigned-credit/internal/infrastructure/cache"
	"consigned-credit/internal/infrastructure/notify"
	"consigned-credit/pkg/id"
)

// Cache memoizes simulations per key; *cache.SimulationCache satisfies it.
type Cache interface {
	GetOrCompute(ctx context.Context, key string, compute func() (loan.LoanSimulation, error)) (loan.LoanSimulation, bool, error)
}

const notifyTimeout = 2 * time.Second

type Usecase struct {
	repos    uow.Repos
	uow      uow.UnitOfWork
	engine   *terms.Engine
	cache    Cache
	notifier notify.Notifier
	log      *slog.Logger
	now      func() time.Time
}

// NewUsecase: repos serve reads outside a tx, the UoW serves proposal
// creation. cache and notifier may be nil.
func NewUsecase(repos uow.Repos, tx uow.UnitOfWork, engine *terms.Engine, c Cache, n notify.Notifier, log *slog.Logger) *Usecase {
	if n == nil {
		n = notify.Nop{}
	}
	if log == nil {
		log = slog.Default()
	}
	return &Usecase{
		repos:    repos,
		uow:      tx,
		engine:   engine,
		cache:    c,
		notifier: n,
		log:      log,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the anchor date source.
func (u *Usecase) WithClock(now func() time.Time) *Usecase {
	u.now = now
	return u
}

// request is the flow-agnostic form of every input.
type request struct {
	flow       loan.Flow
	borrowerID string
	productID  string
	contractID string
	principal  decimal.Decimal
	term       int
}

// state is everything loaded from storage for one simulation.
type state struct {
	borrower  loan.BorrowerSnapshot
	product   loan.ProductSnapshot
	contract  *loan.ContractSnapshot
	committed decimal.Decimal
	anchor    time.Time
}

func (u *Usecase) SimulateNew(ctx context.Context, in SimulateNewInput) (*SimulationDTO, error) {
	return u.simulateCached(ctx, request{
		flow:       loan.FlowNew,
		borrowerID: in.BorrowerID,
		productID:  in.ProductID,
		principal:  in.Principal,
		term:       in.Term,
	})
}

func (u *Usecase) SimulateRefinance(ctx context.Context, in SimulateRefinanceInput) (*SimulationDTO, error) {
	return u.simulateCached(ctx, request{
		flow:       loan.FlowRefinance,
		borrowerID: in.BorrowerID,
		productID:  in.ProductID,
		contractID: in.ContractID,
		principal:  in.Principal,
		term:       in.Term,
	})
}

func (u *Usecase) SimulatePortability(ctx context.Context, in SimulatePortabilityInput) (*SimulationDTO, error) {
	return u.simulateCached(ctx, request{
		flow:       loan.FlowPortability,
		borrowerID: in.BorrowerID,
		productID:  in.ProductID,
		contractID: in.ContractID,
		term:       in.Term,
	})
}

func (u *Usecase) simulateCached(ctx context.Context, req request) (*SimulationDTO, error) {
	if err := checkIDs(req); err != nil {
		return nil, err
	}
	st, err := u.load(ctx, u.repos, req, func() ([]loan.Contract, error) {
		return u.repos.Contracts.ListActiveByBorrowerID(ctx, req.borrowerID)
	})
	if err != nil {
		return nil, err
	}

	compute := func() (loan.LoanSimulation, error) { return u.simulate(req, st) }
	var (
		sim loan.LoanSimulation
		hit bool
	)
	if u.cache != nil {
		sim, hit, err = u.cache.GetOrCompute(ctx, cacheKey(req, st), compute)
	} else {
		sim, err = compute()
	}
	if err != nil {
		u.logOutcome(ctx, req, err)
		return nil, err
	}
	u.log.InfoContext(ctx, "simulation computed",
		"flow", req.flow,
		"borrower_id", req.borrowerID,
		"installment", sim.Installment.StringFixed(2),
		"cet", sim.CET.String(),
		"cached", hit,
	)
	if !sim.CETConverged {
		u.log.WarnContext(ctx, "cet did not converge", "flow", req.flow, "borrower_id", req.borrowerID)
	}
	return &SimulationDTO{LoanSimulation: sim, Cached: hit}, nil
}

// CreateProposal re-simulates under the borrower lock and persists the
// outcome. A margin rejection is persisted too and returned as a
// *ProposalRejectedError wrapping the margin error.
func (u *Usecase) CreateProposal(ctx context.Context, in CreateProposalInput) (*ProposalDTO, error) {
	if u.uow == nil {
		return nil, loan.Violation("proposal creation needs a unit of work")
	}
	if !in.Flow.Valid() {
		return nil, &loan.InvalidTermError{Field: "flow", Reason: fmt.Sprintf("unknown flow %q", in.Flow)}
	}
	req := request{
		flow:       in.Flow,
		borrowerID: in.BorrowerID,
		productID:  in.ProductID,
		contractID: in.ContractID,
		principal:  in.Principal,
		term:       in.Term,
	}
	if err := checkIDs(req); err != nil {
		return nil, err
	}

	var (
		saved     *loan.Proposal
		sim       loan.LoanSimulation
		marginErr *loan.MarginInsufficientError
	)
	err := u.uow.WithinBorrowerTx(ctx, req.borrowerID, func(r uow.Repos, active []loan.Contract) error {
		st, err := u.load(ctx, r, req, func() ([]loan.Contract, error) { return active, nil })
		if err != nil {
			return err
		}
		p := &loan.Proposal{
			ProposalID: id.NewID32(),
			Flow:       req.flow,
			BorrowerID: req.borrowerID,
			ProductID:  req.productID,
			ContractID: req.contractID,
			Principal:  req.principal,
			Term:       req.term,
			Rate:       st.product.Rate,
		}
		sim, err = u.simulate(req, st)
		switch me, ok := loan.IsMarginInsufficient(err); {
		case ok:
			marginErr = me
			p.State = loan.ProposalRejected
			p.RejectionReason = me.Decision.Reason
			p.Shortfall = me.Shortfall
			if req.flow == loan.FlowPortability && st.contract != nil {
				p.Principal = st.contract.OutstandingBalance
			}
		case err != nil:
			return err
		default:
			fillFromSimulation(p, sim)
		}
		if err := r.Proposals.Create(ctx, p); err != nil {
			return err
		}
		saved = p
		return nil
	})
	if err != nil {
		u.logOutcome(ctx, req, err)
		return nil, err
	}

	dto := toProposalDTO(saved)
	if marginErr != nil {
		u.publish(ctx, notify.Event{
			Type:        notify.EventProposalRejected,
			ProposalID:  saved.ProposalID,
			BorrowerID:  saved.BorrowerID,
			Flow:        saved.Flow,
			Installment: marginErr.Requested,
			Shortfall:   marginErr.Shortfall,
			Reason:      saved.RejectionReason,
			OccurredAt:  u.now(),
		})
		u.logOutcome(ctx, req, marginErr)
		return nil, &ProposalRejectedError{ProposalID: saved.ProposalID, Err: marginErr}
	}

	dto.Simulation = &sim
	u.publish(ctx, notify.Event{
		Type:        notify.EventProposalCreated,
		ProposalID:  saved.ProposalID,
		BorrowerID:  saved.BorrowerID,
		Flow:        saved.Flow,
		Installment: saved.Installment,
		OccurredAt:  u.now(),
	})
	u.log.InfoContext(ctx, "proposal created",
		"proposal_id", saved.ProposalID,
		"flow", saved.Flow,
		"borrower_id", saved.BorrowerID,
	)
	return dto, nil
}

func (u *Usecase) GetProposal(ctx context.Context, proposalID string) (*ProposalDTO, error) {
	var p *loan.Proposal
	read := func(r uow.Repos) error {
		var err error
		p, err = r.Proposals.GetByProposalID(ctx, proposalID)
		return err
	}
	var err error
	if u.uow != nil {
		err = u.uow.WithinTx(ctx, read)
	} else {
		err = read(u.repos)
	}
	if err != nil {
		return nil, notFound(err, "proposal", proposalID)
	}
	return toProposalDTO(p), nil
}

// load fetches the snapshots a flow needs; listActive supplies the
// borrower's active contracts (locked inside a proposal tx).
func (u *Usecase) load(ctx context.Context, r uow.Repos, req request, listActive func() ([]loan.Contract, error)) (state, error) {
	b, err := r.Borrowers.GetByBorrowerID(ctx, req.borrowerID)
	if err != nil {
		return state{}, notFound(err, "borrower", req.borrowerID)
	}
	p, err := r.Products.GetByProductID(ctx, req.productID)
	if err != nil {
		return state{}, notFound(err, "product", req.productID)
	}
	if !p.Active {
		return state{}, fmt.Errorf("product %s: %w", p.ProductID, loan.ErrProductInactive)
	}

	st := state{
		borrower: b.Snapshot(),
		product:  p.Snapshot(),
		anchor:   u.anchor(),
	}

	if req.flow != loan.FlowNew {
		c, err := r.Contracts.GetByContractID(ctx, req.contractID)
		if err != nil {
			return state{}, notFound(err, "contract", req.contractID)
		}
		if c.BorrowerID != req.borrowerID {
			return state{}, fmt.Errorf("contract %s: %w", c.ContractID, loan.ErrContractNotOwned)
		}
		if c.Status != loan.ContractActive {
			return state{}, fmt.Errorf("contract %s is %s: %w", c.ContractID, c.Status, loan.ErrContractNotActive)
		}
		if req.flow == loan.FlowPortability && !p.Rate.LessThan(c.Rate) {
			return state{}, fmt.Errorf("product rate %s vs origin %s: %w", p.Rate, c.Rate, loan.ErrPortabilityRateNotLower)
		}
		snap := c.Snapshot()
		st.contract = &snap
	}

	active, err := listActive()
	if err != nil {
		return state{}, err
	}
	st.committed = loan.CommittedInstallments(active)
	return st, nil
}

func (u *Usecase) simulate(req request, st state) (loan.LoanSimulation, error) {
	switch req.flow {
	case loan.FlowNew:
		return u.engine.SimulateNewLoan(terms.NewLoanInput{
			Borrower:  st.borrower,
			Request:   loanRequest(req, st),
			Committed: st.committed,
			Anchor:    st.anchor,
		})
	case loan.FlowRefinance:
		return u.engine.SimulateRefinance(terms.RefinanceInput{
			Borrower:  st.borrower,
			Contract:  *st.contract,
			Request:   loanRequest(req, st),
			Committed: st.committed,
			Anchor:    st.anchor,
		})
	case loan.FlowPortability:
		return u.engine.SimulatePortability(terms.PortabilityInput{
			Borrower:  st.borrower,
			Origin:    *st.contract,
			Product:   st.product,
			Term:      req.term,
			Rate:      st.product.Rate,
			Committed: st.committed,
			Anchor:    st.anchor,
		})
	}
	return loan.LoanSimulation{}, loan.Violation("unknown flow %q", req.flow)
}

func loanRequest(req request, st state) loan.LoanRequest {
	return loan.LoanRequest{
		Principal: req.principal,
		Term:      req.term,
		Rate:      st.product.Rate,
		Product:   st.product,
	}
}

func fillFromSimulation(p *loan.Proposal, sim loan.LoanSimulation) {
	p.State = loan.ProposalProposed
	p.Principal = sim.Principal
	p.Rate = sim.Rate
	p.Installment = sim.Installment
	p.TotalPaid = sim.TotalPaid
	p.Tax = sim.Tax
	p.CET = sim.CET
	p.CETConverged = sim.CETConverged
	if sim.Baseline != nil {
		p.Economy = sim.Baseline.Economy
	}
}

// anchor is today at UTC midnight so identical requests on the same day
// share a cache entry.
func (u *Usecase) anchor() time.Time {
	y, m, d := u.now().UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// cacheKey covers every value the engine reads, so a changed snapshot
// never hits a stale entry.
func cacheKey(req request, st state) string {
	parts := []string{
		req.borrowerID,
		st.borrower.GrossSalary.String(),
		st.committed.String(),
		st.product.ProductID,
		st.product.Rate.String(),
		strconv.Itoa(st.product.MinTerm),
		strconv.Itoa(st.product.MaxTerm),
		st.product.MinPrincipal.String(),
		st.product.MaxPrincipal.String(),
		req.principal.String(),
		strconv.Itoa(req.term),
		st.anchor.Format(time.DateOnly),
	}
	if c := st.contract; c != nil {
		parts = append(parts,
			c.ContractID,
			c.Installment.String(),
			strconv.Itoa(c.RemainingTerm),
			c.OutstandingBalance.String(),
			c.Rate.String(),
		)
	}
	return cache.Key(req.flow, parts...)
}

func checkIDs(req request) error {
	if req.borrowerID == "" || req.productID == "" {
		return loan.Violation("borrower_id and product_id are required")
	}
	if req.flow != loan.FlowNew && req.contractID == "" {
		return loan.Violation("contract_id is required for %s", req.flow)
	}
	return nil
}

func notFound(err error, what, key string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s %s: %w", what, key, loan.ErrNotFound)
	}
	return err
}

// publish never fails the request; delivery errors are only logged.
func (u *Usecase) publish(ctx context.Context, evt notify.Event) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
	defer cancel()
	if err := u.notifier.Notify(ctx, evt); err != nil {
		u.log.ErrorContext(ctx, "proposal notification failed",
			"event_type", evt.Type,
			"proposal_id", evt.ProposalID,
			"err", err,
		)
	}
}

func (u *Usecase) logOutcome(ctx context.Context, req request, err error) {
	attrs := []any{"flow", req.flow, "borrower_id", req.borrowerID}
	if me, ok := loan.IsMarginInsufficient(err); ok {
		u.log.InfoContext(ctx, "margin insufficient", append(attrs,
			"available", me.Available.StringFixed(2),
			"requested", me.Requested.StringFixed(2),
			"shortfall", me.Shortfall.StringFixed(2),
		)...)
		return
	}
	if ie, ok := loan.IsInvalidTerm(err); ok {
		u.log.InfoContext(ctx, "invalid term", append(attrs, "field", ie.Field, "reason", ie.Reason)...)
		return
	}
	u.log.WarnContext(ctx, "simulation failed", append(attrs, "err", err)...)
}
