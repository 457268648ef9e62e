// Package payment talks to the external payment provider: it opens checkout
// sessions and authenticates completion notifications.
package payment

import (
	"errors"
	"time"
)

// Event types that can complete a purchase.
const (
	EventCheckoutCompleted     = "checkout.session.completed"
	EventAsyncPaymentSucceeded = "checkout.session.async_payment_succeeded"
)

// Payment statuses reported on a checkout session.
const (
	PaymentStatusPaid              = "paid"
	PaymentStatusUnpaid            = "unpaid"
	PaymentStatusNoPaymentRequired = "no_payment_required"
)

// Checkout session states.  Only an open session can still be paid; an
// expired one never will be.
const (
	SessionStatusOpen     = "open"
	SessionStatusComplete = "complete"
	SessionStatusExpired  = "expired"
)

// Correlation metadata keys echoed back by the provider.
const (
	MetadataPurchaseID = "purchase_id"
	MetadataUserID     = "user_id"
)

// ErrInvalidSignature is returned when a notification cannot be authenticated.
var ErrInvalidSignature = errors.New("invalid webhook signature")

// ErrMalformedEvent is returned for authenticated payloads that cannot be decoded.
var ErrMalformedEvent = errors.New("malformed webhook event")

// Correlation identifies the purchase a payment belongs to.
type Correlation struct {
	PurchaseID string
	UserID     string
}

// Complete reports whether both identifiers are present.
func (c Correlation) Complete() bool { return c.PurchaseID != "" && c.UserID != "" }

// LineItem is a single priced row on the checkout page.  Providers charge
// UnitAmount * Quantity.
type LineItem struct {
	Name        string
	Description string
	UnitAmount  int64
	Quantity    int64
}

// SessionRequest describes the checkout session to open.
type SessionRequest struct {
	Amount         int64 // authoritative total, minor units
	Currency       string
	LineItem       LineItem
	Correlation    Correlation
	SuccessURL     string
	CancelURL      string
	IdempotencyKey string
	ExpiresAt      time.Time // zero leaves the provider default
}

// Session is the provider's handle for a checkout.
type Session struct {
	ID     string
	URL    string
	Status string
}

// Payable reports whether the buyer can still pay through this session.
func (s *Session) Payable() bool { return s.Status == SessionStatusOpen }

// Event is an authenticated provider notification, reduced to the fields the
// confirmation flow needs.
type Event struct {
	ID            string
	Type          string
	SessionID     string
	PaymentStatus string
	Correlation   Correlation
}

// CompletesPurchase reports whether the event proves the buyer has paid.
// A completed checkout with an asynchronous method (pix, boleto) is still
// unpaid; its confirmation arrives later as async_payment_succeeded.
func (e *Event) CompletesPurchase() bool {
	switch e.Type {
	case EventAsyncPaymentSucceeded:
		return true
	case EventCheckoutCompleted:
		return e.PaymentStatus == PaymentStatusPaid || e.PaymentStatus == PaymentStatusNoPaymentRequired
	}
	return false
}
