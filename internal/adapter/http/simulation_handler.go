package http

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"consigned-credit/internal/usecase/simulation"
)

type SimulationHandler struct{ uc *simulation.Usecase }

func NewSimulationHandler(uc *simulation.Usecase) *SimulationHandler {
	return &SimulationHandler{uc: uc}
}

type simulateNewReq struct {
	BorrowerID string  `json:"borrower_id" validate:"required,hex32"`
	ProductID  string  `json:"product_id"  validate:"required,max=32"`
	Principal  float64 `json:"principal"   validate:"required,gt=0,dec2"`
	Term       int     `json:"term"        validate:"required,gte=1,lte=420"`
}

type simulateRefinanceReq struct {
	BorrowerID string  `json:"borrower_id" validate:"required,hex32"`
	ContractID string  `json:"contract_id" validate:"required,max=32"`
	ProductID  string  `json:"product_id"  validate:"required,max=32"`
	Principal  float64 `json:"principal"   validate:"required,gt=0,dec2"`
	Term       int     `json:"term"        validate:"required,gte=1,lte=420"`
}

type simulatePortabilityReq struct {
	BorrowerID string `json:"borrower_id" validate:"required,hex32"`
	ContractID string `json:"contract_id" validate:"required,max=32"`
	ProductID  string `json:"product_id"  validate:"required,max=32"`
	Term       int    `json:"term"        validate:"required,gte=1,lte=420"`
}

func (h *SimulationHandler) SimulateNew(c echo.Context) error {
	var req simulateNewReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid body"})
	}
	if err := c.Validate(&req); err != nil {
		return validationFailed(c, err)
	}
	dto, err := h.uc.SimulateNew(c.Request().Context(), simulation.SimulateNewInput{
		BorrowerID: req.BorrowerID,
		ProductID:  req.ProductID,
		Principal:  decimal.NewFromFloat(req.Principal),
		Term:       req.Term,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, dto)
}

func (h *SimulationHandler) SimulateRefinance(c echo.Context) error {
	var req simulateRefinanceReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid body"})
	}
	if err := c.Validate(&req); err != nil {
		return validationFailed(c, err)
	}
	dto, err := h.uc.SimulateRefinance(c.Request().Context(), simulation.SimulateRefinanceInput{
		BorrowerID: req.BorrowerID,
		ContractID: req.ContractID,
		ProductID:  req.ProductID,
		Principal:  decimal.NewFromFloat(req.Principal),
		Term:       req.Term,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, dto)
}

func (h *SimulationHandler) SimulatePortability(c echo.Context) error {
	var req simulatePortabilityReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid body"})
	}
	if err := c.Validate(&req); err != nil {
		return validationFailed(c, err)
	}
	dto, err := h.uc.SimulatePortability(c.Request().Context(), simulation.SimulatePortabilityInput{
		BorrowerID: req.BorrowerID,
		ContractID: req.ContractID,
		ProductID:  req.ProductID,
		Term:       req.Term,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, dto)
}
