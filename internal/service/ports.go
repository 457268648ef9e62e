package service

import (
	"context"

	"github.com/iliyamo/raffle-checkout/internal/model"
	"github.com/iliyamo/raffle-checkout/internal/payment"
	"github.com/iliyamo/raffle-checkout/internal/queue"
)

// IdentityProvider resolves a bearer token to the caller's identity.
type IdentityProvider interface {
	VerifyToken(ctx context.Context, token string) (*model.Identity, error)
}

// SessionProvider opens and looks up hosted checkout sessions.
type SessionProvider interface {
	CreateSession(ctx context.Context, req payment.SessionRequest) (*payment.Session, error)
	GetSession(ctx context.Context, id string) (*payment.Session, error)
}

// EventVerifier authenticates provider notifications.
type EventVerifier interface {
	Verify(payload []byte, signature string) (*payment.Event, error)
}

// EventPublisher emits domain events.  Publishing is best effort.
type EventPublisher interface {
	PublishPurchaseConfirmed(ctx context.Context, ev queue.PurchaseConfirmedEvent) error
	PublishPixelEvent(ctx context.Context, ev queue.PixelEvent) error
}
