// Package queue defines message payloads exchanged over the message broker
// and the publisher and consumer that move them.
package queue

// Queue names.  Both are durable.
const (
	PurchaseConfirmedQueue = "purchase.confirmed"
	PixelEventQueue        = "analytics.pixel"
)

// Pixel event names understood by the Kwai pixel API.
const (
	PixelInitiatedCheckout = "EVENT_INITIATED_CHECKOUT"
	PixelPurchase          = "EVENT_PURCHASE"
)

// PurchaseConfirmedEvent is published after a purchase has been confirmed and
// its numbers committed.  It carries enough information for downstream
// consumers to log or notify without querying the primary database.
type PurchaseConfirmedEvent struct {
	PurchaseID       string `json:"purchase_id"`
	UserID           string `json:"user_id"`
	UserName         string `json:"user_name,omitempty"`
	Quantity         int    `json:"quantity"`
	TotalAmountCents int64  `json:"total_amount_cents"`
	FirstNumber      int64  `json:"first_number"`
	LastNumber       int64  `json:"last_number"`
	SessionID        string `json:"session_id,omitempty"`
	ConfirmedAt      string `json:"confirmed_at"`
}

// PixelEvent is a marketing conversion event.  The consumer forwards it to
// the pixel API with the server side access token.
type PixelEvent struct {
	EventName   string `json:"event_name"`
	ClickID     string `json:"click_id,omitempty"`
	PurchaseID  string `json:"purchase_id"`
	Quantity    int    `json:"quantity"`
	AmountCents int64  `json:"amount_cents"`
	OccurredAt  string `json:"occurred_at"`
}
