package handler

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/iliyamo/raffle-checkout/internal/pricing"
	"github.com/iliyamo/raffle-checkout/internal/service"
)

// statusFor maps a service error to an HTTP status and a message that is
// safe to show to clients.  Unknown errors become 500.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, service.ErrInvalidQuantity):
		return http.StatusBadRequest, invalidQuantityMessage
	case errors.Is(err, service.ErrUnauthenticated):
		return http.StatusUnauthorized, "unauthenticated"
	case errors.Is(err, service.ErrInvalidSignature):
		return http.StatusBadRequest, "invalid signature"
	case errors.Is(err, service.ErrMissingCorrelation):
		return http.StatusBadRequest, "missing metadata"
	case errors.Is(err, service.ErrRecordNotFound):
		return http.StatusNotFound, "purchase not found"
	case errors.Is(err, service.ErrForbidden):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, service.ErrAlreadyConfirmed):
		return http.StatusConflict, "purchase already confirmed"
	case errors.Is(err, service.ErrPaymentInProgress):
		return http.StatusConflict, "payment already submitted, awaiting confirmation"
	case errors.Is(err, service.ErrSessionConflict):
		return http.StatusConflict, "checkout changed, please retry"
	case errors.Is(err, service.ErrSessionCreationFailed):
		return http.StatusInternalServerError, "failed to create payment session"
	case errors.Is(err, service.ErrAllocationFailed):
		return http.StatusInternalServerError, "failed to allocate numbers"
	case errors.Is(err, service.ErrAllocationPersist):
		return http.StatusInternalServerError, "failed to update purchase"
	case errors.Is(err, service.ErrTransientStore):
		return http.StatusInternalServerError, "database error"
	}
	return http.StatusInternalServerError, "internal error"
}

var invalidQuantityMessage = fmt.Sprintf("quantity must be between %d and %d entries", pricing.MinQuantity, pricing.MaxQuantity)
