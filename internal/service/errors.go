package service

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/iliyamo/raffle-checkout/internal/pricing"
)

// Error kinds returned by the checkout services.  Callers test them with
// errors.Is; handlers translate each kind to one HTTP status.
var (
	ErrInvalidQuantity       = pricing.ErrInvalidQuantity
	ErrUnauthenticated       = errors.New("unauthenticated")
	ErrInvalidSignature      = errors.New("invalid signature")
	ErrMissingCorrelation    = errors.New("missing correlation metadata")
	ErrRecordNotFound        = errors.New("purchase not found")
	ErrAllocationFailed      = errors.New("number allocation failed")
	ErrAllocationPersist     = errors.New("failed to persist allocation")
	ErrSessionCreationFailed = errors.New("failed to create payment session")
	ErrTransientStore        = errors.New("store unavailable")
	ErrForbidden             = errors.New("forbidden")
	ErrAlreadyConfirmed      = errors.New("purchase already confirmed")
	ErrPaymentInProgress     = errors.New("payment already submitted")
	ErrSessionConflict       = errors.New("checkout session changed concurrently")
)

// kindOf tags cause with kind while keeping both in the chain.
func kindOf(kind, cause error) error {
	if cause == nil {
		return kind
	}
	return fmt.Errorf("%w: %w", kind, cause)
}
