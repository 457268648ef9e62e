package handler

import (
	"context"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/raffle-checkout/internal/service"
)

// maxWebhookBody bounds the payload read from the provider.
const maxWebhookBody = 1 << 20

// Completions is the part of service.ConfirmationService the webhook uses.
type Completions interface {
	HandleCompletionEvent(ctx context.Context, rawBody []byte, signature string) (service.Outcome, error)
}

// WebhookHandler receives payment provider notifications.
type WebhookHandler struct {
	svc    Completions
	logger logrus.FieldLogger
}

// NewWebhookHandler constructs a WebhookHandler.
func NewWebhookHandler(svc Completions, logger logrus.FieldLogger) *WebhookHandler {
	return &WebhookHandler{svc: svc, logger: logger}
}

// Stripe handles POST /v1/webhooks/stripe.  The raw body is passed through
// untouched because the signature covers the exact bytes.  Any 2xx tells
// the provider to stop redelivering, so only handled or ignorable events
// are acknowledged; storage failures answer 500 to get a retry.
func (h *WebhookHandler) Stripe(c echo.Context) error {
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxWebhookBody))
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "unreadable body"})
	}
	outcome, err := h.svc.HandleCompletionEvent(c.Request().Context(), body, c.Request().Header.Get("Stripe-Signature"))
	if err != nil {
		status, msg := statusFor(err)
		h.logger.WithError(err).WithField("status", status).Warn("webhook rejected")
		return c.JSON(status, echo.Map{"error": msg})
	}
	return c.JSON(http.StatusOK, echo.Map{"received": true, "outcome": outcome})
}
