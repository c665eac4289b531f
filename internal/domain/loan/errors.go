package loan

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	ErrNotFound                = errors.New("not found")
	ErrContractViolation       = errors.New("contract violation")
	ErrContractNotActive       = errors.New("contract is not active")
	ErrContractNotOwned        = errors.New("contract does not belong to borrower")
	ErrProductInactive         = errors.New("product is not active")
	ErrPortabilityRateNotLower = errors.New("portability rate must be lower than the origin rate")
)

// Violation wraps ErrContractViolation; used for caller bugs such as a
// non-positive term or a missing snapshot.
func Violation(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrContractViolation, fmt.Sprintf(format, args...))
}

// InvalidTermError reports a request outside the product's configured bounds.
type InvalidTermError struct {
	Field  string
	Reason string
}

func (e *InvalidTermError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// MarginInsufficientError is a business outcome; downstream notification
// keys off this type so it must reach the caller unwrapped or via %w.
type MarginInsufficientError struct {
	BorrowerID string
	Available  decimal.Decimal
	Requested  decimal.Decimal
	Shortfall  decimal.Decimal
	Decision   MarginDecision
}

func (e *MarginInsufficientError) Error() string {
	return fmt.Sprintf("insufficient margin for borrower %s: available %s, requested %s, shortfall %s",
		e.BorrowerID, e.Available.StringFixed(2), e.Requested.StringFixed(2), e.Shortfall.StringFixed(2))
}

func IsMarginInsufficient(err error) (*MarginInsufficientError, bool) {
	var me *MarginInsufficientError
	if errors.As(err, &me) {
		return me, true
	}
	return nil, false
}

func IsInvalidTerm(err error) (*InvalidTermError, bool) {
	var ie *InvalidTermError
	if errors.As(err, &ie) {
		return ie, true
	}
	return nil, false
}
