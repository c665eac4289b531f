package http

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"consigned-credit/internal/adapter/middleware"
	"consigned-credit/internal/domain/loan"
	"consigned-credit/internal/usecase/simulation"
)

type ProposalHandler struct{ uc *simulation.Usecase }

func NewProposalHandler(uc *simulation.Usecase) *ProposalHandler { return &ProposalHandler{uc: uc} }

type createProposalReq struct {
	Flow       string  `json:"flow"        validate:"required,flow"`
	BorrowerID string  `json:"borrower_id" validate:"required,hex32"`
	ProductID  string  `json:"product_id"  validate:"required,max=32"`
	ContractID string  `json:"contract_id" validate:"required_unless=Flow NEW,max=32"`
	Principal  float64 `json:"principal"   validate:"required_unless=Flow PORTABILITY,gte=0,dec2"`
	Term       int     `json:"term"        validate:"required,gte=1,lte=420"`
}

func (h *ProposalHandler) CreateProposal(c echo.Context) error {
	var req createProposalReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid body"})
	}
	if err := c.Validate(&req); err != nil {
		return validationFailed(c, err)
	}
	// the idempotency key is scoped by this header, so it must name the same borrower
	if hdr := strings.TrimSpace(c.Request().Header.Get(middleware.HeaderBorrowerID)); hdr != "" && hdr != req.BorrowerID {
		return c.JSON(http.StatusUnprocessableEntity, ErrorResponse{
			Error:   "validation failed",
			Details: []FieldError{{Field: "borrower_id", Message: "must match " + middleware.HeaderBorrowerID}},
		})
	}

	dto, err := h.uc.CreateProposal(c.Request().Context(), simulation.CreateProposalInput{
		Flow:       loan.Flow(req.Flow),
		BorrowerID: req.BorrowerID,
		ProductID:  req.ProductID,
		ContractID: req.ContractID,
		Principal:  decimal.NewFromFloat(req.Principal),
		Term:       req.Term,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, dto)
}

func (h *ProposalHandler) GetProposal(c echo.Context) error {
	proposalID := c.Param("proposal_id")
	if proposalID == "" {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "missing proposal_id path param"})
	}
	dto, err := h.uc.GetProposal(c.Request().Context(), proposalID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, dto)
}
