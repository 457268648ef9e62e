package service

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/raffle-checkout/internal/model"
	"github.com/iliyamo/raffle-checkout/internal/payment"
	"github.com/iliyamo/raffle-checkout/internal/queue"
	"github.com/iliyamo/raffle-checkout/internal/repository"
)

// Outcome is the result of handling one provider notification.
type Outcome string

const (
	OutcomeConfirmed        Outcome = "confirmed"
	OutcomeAlreadyConfirmed Outcome = "already_confirmed"
	OutcomeIgnored          Outcome = "ignored"
)

// ConfirmationService turns verified payment notifications into confirmed
// purchases.  Notifications may be redelivered any number of times and in
// parallel; the purchase row lock and the conditional update make the
// transition happen exactly once.
type ConfirmationService struct {
	repo      model.PurchaseRepository
	verifier  EventVerifier
	allocator NumberAllocator
	events    EventPublisher
	logger    logrus.FieldLogger
	bg        *background
}

// NewConfirmationService wires the confirmation handler.  events may be nil.
func NewConfirmationService(repo model.PurchaseRepository, verifier EventVerifier, events EventPublisher,
	backgroundTimeout time.Duration, logger logrus.FieldLogger) *ConfirmationService {
	logger = logger.WithField("component", "confirmation")
	return &ConfirmationService{
		repo:     repo,
		verifier: verifier,
		events:   events,
		logger:   logger,
		bg:       newBackground(backgroundTimeout, logger),
	}
}

// Wait blocks until post-commit notifications have been sent.
func (s *ConfirmationService) Wait() { s.bg.Wait() }

// HandleCompletionEvent authenticates a raw notification and, for events
// that prove payment, allocates numbers and confirms the purchase in one
// transaction.  OutcomeConfirmed is only returned after the commit.
func (s *ConfirmationService) HandleCompletionEvent(ctx context.Context, rawBody []byte, signature string) (Outcome, error) {
	ev, err := s.verifier.Verify(rawBody, signature)
	if err != nil {
		if errors.Is(err, payment.ErrMalformedEvent) {
			return "", kindOf(ErrMissingCorrelation, err)
		}
		return "", kindOf(ErrInvalidSignature, err)
	}
	log := s.logger.WithFields(logrus.Fields{"event_id": ev.ID, "event_type": ev.Type})
	if !ev.CompletesPurchase() {
		log.WithField("payment_status", ev.PaymentStatus).Debug("event ignored")
		return OutcomeIgnored, nil
	}
	if !ev.Correlation.Complete() {
		log.WithField("session_id", ev.SessionID).Warn("completion event without correlation metadata")
		return "", ErrMissingCorrelation
	}
	log = log.WithFields(logrus.Fields{
		"purchase_id": ev.Correlation.PurchaseID,
		"user_id":     ev.Correlation.UserID,
		"session_id":  ev.SessionID,
	})

	var (
		outcome   Outcome
		confirmed *model.Purchase
		inTx      bool
	)
	err = s.repo.WithTx(ctx, func(tx model.PurchaseTx) error {
		inTx = true
		p, err := tx.LockByID(ctx, ev.Correlation.PurchaseID)
		if errors.Is(err, repository.ErrPurchaseNotFound) {
			return ErrRecordNotFound
		}
		if err != nil {
			return kindOf(ErrTransientStore, err)
		}
		if p.UserID != ev.Correlation.UserID {
			return errors.Wrap(ErrMissingCorrelation, "user does not own purchase")
		}
		if p.IsConfirmed() {
			if p.PaymentSessionRef != nil && ev.SessionID != "" && *p.PaymentSessionRef != ev.SessionID {
				log.WithField("stored_session", *p.PaymentSessionRef).Error("payment for a confirmed purchase through another session")
			}
			outcome = OutcomeAlreadyConfirmed
			return nil
		}
		if p.PaymentSessionRef != nil && ev.SessionID != "" && *p.PaymentSessionRef != ev.SessionID {
			log.WithField("stored_session", *p.PaymentSessionRef).Warn("completion for a different session than stored")
		}

		nums, err := s.allocator.Allocate(ctx, tx, p.ID, p.Quantity)
		if err != nil {
			return kindOf(ErrAllocationFailed, err)
		}
		if err := tx.MarkConfirmed(ctx, p.ID, nums); err != nil {
			return kindOf(ErrAllocationPersist, err)
		}
		p.Status = model.StatusConfirmed
		p.RaffleNumbers = nums
		confirmed = p
		outcome = OutcomeConfirmed
		return nil
	})
	if err != nil {
		switch {
		case !inTx:
			err = kindOf(ErrTransientStore, err)
		case isKind(err):
		default:
			// fn succeeded, so this is the commit
			err = kindOf(ErrAllocationPersist, err)
		}
		log.WithError(err).Error("confirmation failed")
		return "", err
	}

	if outcome == OutcomeAlreadyConfirmed {
		log.Info("purchase already confirmed")
		return outcome, nil
	}
	log.WithField("numbers", len(confirmed.RaffleNumbers)).Info("purchase confirmed")
	s.notifyConfirmed(ctx, confirmed, ev.SessionID)
	return outcome, nil
}

func isKind(err error) bool {
	for _, k := range []error{ErrRecordNotFound, ErrMissingCorrelation, ErrAllocationFailed,
		ErrAllocationPersist, ErrTransientStore} {
		if errors.Is(err, k) {
			return true
		}
	}
	return false
}

func (s *ConfirmationService) notifyConfirmed(ctx context.Context, p *model.Purchase, sessionID string) {
	if s.events == nil {
		return
	}
	now := time.Now().UTC().Format(time.RFC3339)
	nums := p.RaffleNumbers
	ev := queue.PurchaseConfirmedEvent{
		PurchaseID:       p.ID,
		UserID:           p.UserID,
		UserName:         p.UserName,
		Quantity:         p.Quantity,
		TotalAmountCents: p.Amount,
		FirstNumber:      nums[0],
		LastNumber:       nums[len(nums)-1],
		SessionID:        sessionID,
		ConfirmedAt:      now,
	}
	fields := logrus.Fields{"purchase_id": p.ID}
	s.bg.Go(ctx, "publish_confirmed", fields, func(ctx context.Context) error {
		return s.events.PublishPurchaseConfirmed(ctx, ev)
	})
	s.bg.Go(ctx, "pixel_event", fields, func(ctx context.Context) error {
		return s.events.PublishPixelEvent(ctx, queue.PixelEvent{
			EventName:   queue.PixelPurchase,
			PurchaseID:  p.ID,
			Quantity:    p.Quantity,
			AmountCents: p.Amount,
			OccurredAt:  now,
		})
	})
}
