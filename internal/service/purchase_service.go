// Package service implements purchase intake and payment confirmation on
// top of the purchase store, the payment provider and the event queue.
package service

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/raffle-checkout/internal/model"
	"github.com/iliyamo/raffle-checkout/internal/payment"
	"github.com/iliyamo/raffle-checkout/internal/pricing"
	"github.com/iliyamo/raffle-checkout/internal/queue"
	"github.com/iliyamo/raffle-checkout/internal/repository"
	"github.com/iliyamo/raffle-checkout/internal/utils"
)

const defaultUserName = "Usuário"

// CheckoutConfig holds the provider-facing settings for intake.
type CheckoutConfig struct {
	Currency          string
	ProductName       string
	SuccessPath       string
	CancelPath        string
	DefaultBaseURL    string        // used when the request has no usable Origin
	SessionTimeout    time.Duration // bound on the provider call
	SessionLifetime   time.Duration // how long a checkout session stays payable
	BackgroundTimeout time.Duration // bound on each best-effort task
}

// PurchaseRequest is the input to CreatePurchase.
type PurchaseRequest struct {
	Token    string
	Quantity int
	Origin   string
	ClickID  string // marketing click id, optional
}

// CheckoutResult is returned once a checkout session is open.
type CheckoutResult struct {
	PurchaseID  string
	SessionID   string
	RedirectURL string
	Quantity    int
	Amount      int64
}

// PurchaseService creates purchases and opens their checkout sessions.
type PurchaseService struct {
	repo     model.PurchaseRepository
	identity IdentityProvider
	sessions SessionProvider
	events   EventPublisher
	cfg      CheckoutConfig
	logger   logrus.FieldLogger
	bg       *background
}

// NewPurchaseService wires the intake service.  events may be nil.
func NewPurchaseService(repo model.PurchaseRepository, identity IdentityProvider, sessions SessionProvider,
	events EventPublisher, cfg CheckoutConfig, logger logrus.FieldLogger) *PurchaseService {
	if cfg.SessionTimeout <= 0 {
		cfg.SessionTimeout = 15 * time.Second
	}
	cfg.SessionLifetime = clampLifetime(cfg.SessionLifetime)
	logger = logger.WithField("component", "purchase")
	return &PurchaseService{
		repo:     repo,
		identity: identity,
		sessions: sessions,
		events:   events,
		cfg:      cfg,
		logger:   logger,
		bg:       newBackground(cfg.BackgroundTimeout, logger),
	}
}

// Wait blocks until detached work started by the service has finished.
func (s *PurchaseService) Wait() { s.bg.Wait() }

// CreatePurchase validates the request, stores a PENDING purchase and opens
// a checkout session for it.  Nothing is persisted for invalid quantities
// or unauthenticated callers.  If the session cannot be opened the record
// stays PENDING without a session reference.
func (s *PurchaseService) CreatePurchase(ctx context.Context, req PurchaseRequest) (*CheckoutResult, error) {
	if err := pricing.Validate(req.Quantity); err != nil {
		return nil, err
	}
	id, err := s.identity.VerifyToken(ctx, req.Token)
	if err != nil || id == nil || id.UserID == "" {
		return nil, kindOf(ErrUnauthenticated, err)
	}
	amount, err := pricing.ComputePrice(req.Quantity)
	if err != nil {
		return nil, err
	}

	name := strings.TrimSpace(id.Name)
	if name == "" {
		name = defaultUserName
	}
	p := &model.Purchase{
		ID:        uuid.NewString(),
		UserID:    id.UserID,
		UserName:  name,
		UserPhone: id.Phone,
		Quantity:  req.Quantity,
		Amount:    amount,
		Status:    model.StatusPending,
	}
	log := s.logger.WithFields(logrus.Fields{"purchase_id": p.ID, "user_id": p.UserID, "quantity": p.Quantity})
	if err := s.repo.Create(ctx, p); err != nil {
		log.WithError(err).Error("insert purchase failed")
		return nil, kindOf(ErrTransientStore, err)
	}

	sess, err := s.openSession(ctx, p, req.Origin, idempotencyKey(p.ID, ""))
	if err != nil {
		log.WithError(err).Error("create checkout session failed")
		return nil, kindOf(ErrSessionCreationFailed, err)
	}
	log = log.WithField("session_id", sess.ID)
	log.Info("checkout session created")

	s.attachSession(ctx, p.ID, sess.ID)
	s.publishPixel(ctx, queue.PixelEvent{
		EventName:   queue.PixelInitiatedCheckout,
		ClickID:     req.ClickID,
		PurchaseID:  p.ID,
		Quantity:    p.Quantity,
		AmountCents: p.Amount,
		OccurredAt:  time.Now().UTC().Format(time.RFC3339),
	})

	return s.checkoutResult(p, sess), nil
}

// ResumeCheckout returns a payable checkout for a PENDING purchase owned by
// viewer.  A purchase never has two payable sessions at once:
//
//   - no stored session: one is opened under the purchase's idempotency key
//     and stored before it is returned;
//   - stored session still open: that session is returned as is;
//   - stored session completed: the payment is being settled, so nothing new
//     is opened (ErrPaymentInProgress);
//   - stored session expired: a replacement is opened and swapped in with a
//     conditional update on the expired reference.
func (s *PurchaseService) ResumeCheckout(ctx context.Context, viewer model.Identity, purchaseID, origin string) (*CheckoutResult, error) {
	p, err := s.owned(ctx, viewer, purchaseID)
	if err != nil {
		return nil, err
	}
	if p.IsConfirmed() {
		return nil, ErrAlreadyConfirmed
	}
	log := s.logger.WithField("purchase_id", p.ID)

	if p.PaymentSessionRef == nil {
		sess, err := s.openSession(ctx, p, origin, idempotencyKey(p.ID, ""))
		if err != nil {
			log.WithError(err).Error("resume checkout session failed")
			return nil, kindOf(ErrSessionCreationFailed, err)
		}
		if err := s.repo.AttachSession(ctx, p.ID, sess.ID); err != nil {
			log.WithError(err).WithField("session_id", sess.ID).Error("store resumed session failed")
			if errors.Is(err, repository.ErrSessionAlreadyAttached) {
				return nil, ErrSessionConflict
			}
			return nil, kindOf(ErrTransientStore, err)
		}
		return s.checkoutResult(p, sess), nil
	}

	current := *p.PaymentSessionRef
	sess, err := s.lookupSession(ctx, current)
	if err != nil {
		log.WithError(err).WithField("session_id", current).Error("lookup checkout session failed")
		return nil, kindOf(ErrSessionCreationFailed, err)
	}
	switch sess.Status {
	case payment.SessionStatusOpen:
		return s.checkoutResult(p, sess), nil
	case payment.SessionStatusComplete:
		return nil, ErrPaymentInProgress
	case payment.SessionStatusExpired:
	default:
		return nil, kindOf(ErrSessionCreationFailed, errors.Errorf("unknown session status %q", sess.Status))
	}

	next, err := s.openSession(ctx, p, origin, idempotencyKey(p.ID, current))
	if err != nil {
		log.WithError(err).Error("replacement checkout session failed")
		return nil, kindOf(ErrSessionCreationFailed, err)
	}
	err = s.repo.ReplaceSession(ctx, p.ID, current, next.ID)
	switch {
	case err == nil:
	case errors.Is(err, repository.ErrNotPending):
		return nil, ErrAlreadyConfirmed
	case errors.Is(err, repository.ErrSessionAlreadyAttached):
		log.WithField("session_id", next.ID).Warn("checkout session replaced concurrently")
		return nil, ErrSessionConflict
	default:
		return nil, kindOf(ErrTransientStore, err)
	}
	log.WithFields(logrus.Fields{"expired_session": current, "session_id": next.ID}).Info("expired checkout session replaced")
	return s.checkoutResult(p, next), nil
}

// ListPurchases returns the viewer's purchases, newest first.
func (s *PurchaseService) ListPurchases(ctx context.Context, viewer model.Identity) ([]model.Purchase, error) {
	if viewer.UserID == "" {
		return nil, ErrUnauthenticated
	}
	items, err := s.repo.ListByUser(ctx, viewer.UserID)
	if err != nil {
		return nil, kindOf(ErrTransientStore, err)
	}
	return items, nil
}

// GetPurchase returns one purchase.  Buyers only see their own purchases;
// admins see all of them.
func (s *PurchaseService) GetPurchase(ctx context.Context, viewer model.Identity, purchaseID string) (*model.Purchase, error) {
	return s.owned(ctx, viewer, purchaseID)
}

func (s *PurchaseService) owned(ctx context.Context, viewer model.Identity, purchaseID string) (*model.Purchase, error) {
	if viewer.UserID == "" {
		return nil, ErrUnauthenticated
	}
	p, err := s.repo.GetByID(ctx, purchaseID)
	if errors.Is(err, repository.ErrPurchaseNotFound) {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, kindOf(ErrTransientStore, err)
	}
	if p.UserID != viewer.UserID && viewer.Role != utils.RoleAdmin {
		return nil, ErrForbidden
	}
	return p, nil
}

func (s *PurchaseService) checkoutResult(p *model.Purchase, sess *payment.Session) *CheckoutResult {
	return &CheckoutResult{
		PurchaseID:  p.ID,
		SessionID:   sess.ID,
		RedirectURL: sess.URL,
		Quantity:    p.Quantity,
		Amount:      p.Amount,
	}
}

// idempotencyKey derives the provider key for a purchase.  A replacement
// for an expired session is keyed on the session it replaces, so concurrent
// resumes of the same expired session get the same replacement.
func idempotencyKey(purchaseID, replaces string) string {
	if replaces == "" {
		return "purchase-" + purchaseID
	}
	return "purchase-" + purchaseID + "-after-" + replaces
}

func (s *PurchaseService) lookupSession(ctx context.Context, id string) (*payment.Session, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.SessionTimeout)
	defer cancel()
	return s.sessions.GetSession(ctx, id)
}

func (s *PurchaseService) openSession(ctx context.Context, p *model.Purchase, origin, key string) (*payment.Session, error) {
	base := s.baseURL(origin)
	ctx, cancel := context.WithTimeout(ctx, s.cfg.SessionTimeout)
	defer cancel()
	return s.sessions.CreateSession(ctx, payment.SessionRequest{
		Amount:   p.Amount,
		Currency: s.cfg.Currency,
		LineItem: payment.LineItem{
			Name:        fmt.Sprintf("Números - %s (%d números)", s.cfg.ProductName, p.Quantity),
			Description: fmt.Sprintf("Compra de %d números para o sorteio do %s.", p.Quantity, s.cfg.ProductName),
			UnitAmount:  pricing.LineItemUnitAmount(p.Amount, p.Quantity),
			Quantity:    int64(p.Quantity),
		},
		Correlation:    payment.Correlation{PurchaseID: p.ID, UserID: p.UserID},
		SuccessURL:     base + s.cfg.SuccessPath,
		CancelURL:      base + s.cfg.CancelPath,
		IdempotencyKey: key,
		ExpiresAt:      time.Now().Add(s.cfg.SessionLifetime),
	})
}

// Session lifetimes the provider accepts.  The upper bound stays under the
// provider's 24h idempotency window, so a session whose reference was never
// stored has expired before its key can open a second one.
const (
	minSessionLifetime     = 30 * time.Minute
	maxSessionLifetime     = 23 * time.Hour
	defaultSessionLifetime = maxSessionLifetime
)

func clampLifetime(d time.Duration) time.Duration {
	switch {
	case d <= 0:
		return defaultSessionLifetime
	case d < minSessionLifetime:
		return minSessionLifetime
	case d > maxSessionLifetime:
		return maxSessionLifetime
	}
	return d
}

// baseURL returns origin when it is an absolute http(s) URL and the
// configured default otherwise.  The result has no trailing slash.
func (s *PurchaseService) baseURL(origin string) string {
	if u, err := url.Parse(strings.TrimSpace(origin)); err == nil && u.Host != "" &&
		(u.Scheme == "http" || u.Scheme == "https") {
		return u.Scheme + "://" + u.Host
	}
	return strings.TrimRight(s.cfg.DefaultBaseURL, "/")
}

func (s *PurchaseService) attachSession(ctx context.Context, purchaseID, sessionID string) {
	fields := logrus.Fields{"purchase_id": purchaseID, "session_id": sessionID}
	s.bg.Go(ctx, "attach_session", fields, func(ctx context.Context) error {
		return s.repo.AttachSession(ctx, purchaseID, sessionID)
	})
}

func (s *PurchaseService) publishPixel(ctx context.Context, ev queue.PixelEvent) {
	if s.events == nil {
		return
	}
	fields := logrus.Fields{"purchase_id": ev.PurchaseID, "event_name": ev.EventName}
	s.bg.Go(ctx, "pixel_event", fields, func(ctx context.Context) error {
		return s.events.PublishPixelEvent(ctx, ev)
	})
}
