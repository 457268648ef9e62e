package payment

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"
)

// checkoutSessions is the slice of the Stripe client the gateway uses.
type checkoutSessions interface {
	New(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
	Get(id string, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
}

// StripeGateway opens Stripe Checkout sessions and verifies Stripe webhooks.
type StripeGateway struct {
	sessions      checkoutSessions
	webhookSecret string
	methods       []string
}

// NewStripeGateway builds a gateway for the given API key and webhook signing
// secret.  Card and pix are offered at checkout.
func NewStripeGateway(secretKey, webhookSecret string) *StripeGateway {
	sc := client.New(secretKey, nil)
	return &StripeGateway{
		sessions:      sc.CheckoutSessions,
		webhookSecret: webhookSecret,
		methods:       []string{"card", "pix"},
	}
}

// CreateSession opens a one-off payment checkout.  The correlation ids are
// attached as metadata and the purchase id is also sent as the client
// reference so that notifications can be matched back to the purchase.
func (g *StripeGateway) CreateSession(ctx context.Context, req SessionRequest) (*Session, error) {
	if !req.Correlation.Complete() {
		return nil, errors.New("stripe: session request without correlation")
	}
	params := &stripe.CheckoutSessionParams{
		Mode:               stripe.String(string(stripe.CheckoutSessionModePayment)),
		PaymentMethodTypes: stripe.StringSlice(g.methods),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency: stripe.String(req.Currency),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name:        stripe.String(req.LineItem.Name),
					Description: stripe.String(req.LineItem.Description),
				},
				UnitAmount: stripe.Int64(req.LineItem.UnitAmount),
			},
			Quantity: stripe.Int64(req.LineItem.Quantity),
		}},
		SuccessURL:        stripe.String(req.SuccessURL),
		CancelURL:         stripe.String(req.CancelURL),
		ClientReferenceID: stripe.String(req.Correlation.PurchaseID),
	}
	if !req.ExpiresAt.IsZero() {
		params.ExpiresAt = stripe.Int64(req.ExpiresAt.Unix())
	}
	params.Context = ctx
	params.AddMetadata(MetadataPurchaseID, req.Correlation.PurchaseID)
	params.AddMetadata(MetadataUserID, req.Correlation.UserID)
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}

	s, err := g.sessions.New(params)
	if err != nil {
		return nil, errors.Wrap(err, "stripe: create checkout session")
	}
	if s.ID == "" || s.URL == "" {
		return nil, errors.New("stripe: checkout session missing id or url")
	}
	return &Session{ID: s.ID, URL: s.URL, Status: sessionStatus(s)}, nil
}

// GetSession fetches a previously opened checkout session.
func (g *StripeGateway) GetSession(ctx context.Context, id string) (*Session, error) {
	if id == "" {
		return nil, errors.New("stripe: empty session id")
	}
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	s, err := g.sessions.Get(id, params)
	if err != nil {
		return nil, errors.Wrapf(err, "stripe: get checkout session %s", id)
	}
	return &Session{ID: s.ID, URL: s.URL, Status: sessionStatus(s)}, nil
}

// sessionStatus treats a session without a status as open; Stripe only
// omits it on freshly created sessions.
func sessionStatus(s *stripe.CheckoutSession) string {
	if s.Status == "" {
		return SessionStatusOpen
	}
	return string(s.Status)
}

// Verify authenticates a webhook payload against the Stripe-Signature header
// and decodes the checkout session it carries.  Events that are not about a
// checkout session are returned with only ID and Type set.
func (g *StripeGateway) Verify(payload []byte, signature string) (*Event, error) {
	ev, err := webhook.ConstructEventWithOptions(payload, signature, g.webhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return nil, errors.Wrap(ErrInvalidSignature, err.Error())
	}
	out := &Event{ID: ev.ID, Type: string(ev.Type)}
	switch out.Type {
	case EventCheckoutCompleted, EventAsyncPaymentSucceeded:
	default:
		return out, nil
	}
	if ev.Data == nil {
		return nil, ErrMalformedEvent
	}
	var cs stripe.CheckoutSession
	if err := json.Unmarshal(ev.Data.Raw, &cs); err != nil {
		return nil, errors.Wrap(ErrMalformedEvent, err.Error())
	}
	out.SessionID = cs.ID
	out.PaymentStatus = string(cs.PaymentStatus)
	out.Correlation = Correlation{
		PurchaseID: cs.Metadata[MetadataPurchaseID],
		UserID:     cs.Metadata[MetadataUserID],
	}
	if out.Correlation.PurchaseID == "" {
		out.Correlation.PurchaseID = cs.ClientReferenceID
	}
	return out, nil
}
