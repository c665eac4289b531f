package http

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"consigned-credit/internal/domain/loan"
	"consigned-credit/internal/usecase/simulation"
)

type MarginErrorResponse struct {
	Error      string          `json:"error"`
	ProposalID string          `json:"proposal_id,omitempty"`
	BorrowerID string          `json:"borrower_id"`
	Available  decimal.Decimal `json:"available"`
	Requested  decimal.Decimal `json:"requested"`
	Shortfall  decimal.Decimal `json:"shortfall"`
	Reason     string          `json:"reason,omitempty"`
}

func marginResponse(me *loan.MarginInsufficientError, proposalID string) MarginErrorResponse {
	return MarginErrorResponse{
		Error:      "margin insufficient",
		ProposalID: proposalID,
		BorrowerID: me.BorrowerID,
		Available:  me.Available,
		Requested:  me.Requested,
		Shortfall:  me.Shortfall,
		Reason:     me.Decision.Reason,
	}
}

// writeError maps domain and use case errors to HTTP responses.
func writeError(c echo.Context, err error) error {
	if pe, ok := simulation.IsProposalRejected(err); ok {
		return c.JSON(http.StatusUnprocessableEntity, marginResponse(pe.Err, pe.ProposalID))
	}
	if me, ok := loan.IsMarginInsufficient(err); ok {
		return c.JSON(http.StatusUnprocessableEntity, marginResponse(me, ""))
	}
	if ie, ok := loan.IsInvalidTerm(err); ok {
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid term",
			Details: []FieldError{{Field: ie.Field, Message: ie.Reason}},
		})
	}

	switch {
	case errors.Is(err, loan.ErrNotFound):
		return c.JSON(http.StatusNotFound, ErrorResponse{Error: err.Error()})
	case errors.Is(err, loan.ErrContractNotOwned):
		return c.JSON(http.StatusForbidden, ErrorResponse{Error: err.Error()})
	case errors.Is(err, loan.ErrContractNotActive), errors.Is(err, loan.ErrProductInactive):
		return c.JSON(http.StatusConflict, ErrorResponse{Error: err.Error()})
	case errors.Is(err, loan.ErrPortabilityRateNotLower), errors.Is(err, loan.ErrContractViolation):
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
	}

	slog.ErrorContext(c.Request().Context(), "unhandled error", "path", c.Path(), "err", err)
	return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
}

func validationFailed(c echo.Context, err error) error {
	return c.JSON(http.StatusUnprocessableEntity, ErrorResponse{
		Error:   "validation failed",
		Details: ToFieldErrors(err),
	})
}
