package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/iliyamo/raffle-checkout/internal/model"
	"github.com/iliyamo/raffle-checkout/internal/payment"
	"github.com/iliyamo/raffle-checkout/internal/queue"
	"github.com/iliyamo/raffle-checkout/internal/repository"
)

func nullLogger() logrus.FieldLogger {
	l, _ := test.NewNullLogger()
	return l
}

// memRepo is an in-memory PurchaseRepository.  Transactions are serialized
// by a single mutex and roll back by restoring a snapshot.
type memRepo struct {
	mu        sync.Mutex
	purchases map[string]*model.Purchase
	next      int64
	max       int64
	assigned  map[int64]string

	createErr  error
	attachErr  error
	confirmErr error
	commitErr  error
}

func newMemRepo() *memRepo {
	return &memRepo{purchases: map[string]*model.Purchase{}, next: 1, max: 99999999, assigned: map[int64]string{}}
}

func clonePurchase(p *model.Purchase) *model.Purchase {
	c := *p
	if p.PaymentSessionRef != nil {
		ref := *p.PaymentSessionRef
		c.PaymentSessionRef = &ref
	}
	c.RaffleNumbers = append(model.RaffleNumbers(nil), p.RaffleNumbers...)
	if len(c.RaffleNumbers) == 0 {
		c.RaffleNumbers = nil
	}
	return &c
}

func (r *memRepo) Create(_ context.Context, p *model.Purchase) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createErr != nil {
		return r.createErr
	}
	now := time.Now().UTC()
	p.CreatedAt, p.UpdatedAt = now, now
	r.purchases[p.ID] = clonePurchase(p)
	return nil
}

func (r *memRepo) GetByID(_ context.Context, id string) (*model.Purchase, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.purchases[id]
	if !ok {
		return nil, repository.ErrPurchaseNotFound
	}
	return clonePurchase(p), nil
}

func (r *memRepo) ListByUser(_ context.Context, userID string) ([]model.Purchase, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.Purchase, 0)
	for _, p := range r.purchases {
		if p.UserID == userID {
			out = append(out, *clonePurchase(p))
		}
	}
	return out, nil
}

func (r *memRepo) AttachSession(_ context.Context, id, ref string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.attachErr != nil {
		return r.attachErr
	}
	p, ok := r.purchases[id]
	if !ok {
		return repository.ErrPurchaseNotFound
	}
	if p.PaymentSessionRef != nil {
		if *p.PaymentSessionRef == ref {
			return nil
		}
		return repository.ErrSessionAlreadyAttached
	}
	p.PaymentSessionRef = &ref
	return nil
}

func (r *memRepo) ReplaceSession(_ context.Context, id, oldRef, newRef string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.purchases[id]
	if !ok {
		return repository.ErrPurchaseNotFound
	}
	if p.PaymentSessionRef != nil && *p.PaymentSessionRef == newRef {
		return nil
	}
	if p.Status != model.StatusPending {
		return repository.ErrNotPending
	}
	if p.PaymentSessionRef == nil || *p.PaymentSessionRef != oldRef {
		return repository.ErrSessionAlreadyAttached
	}
	p.PaymentSessionRef = &newRef
	return nil
}

func (r *memRepo) WithTx(ctx context.Context, fn func(tx model.PurchaseTx) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	snapPurchases := make(map[string]*model.Purchase, len(r.purchases))
	for k, v := range r.purchases {
		snapPurchases[k] = clonePurchase(v)
	}
	snapAssigned := make(map[int64]string, len(r.assigned))
	for k, v := range r.assigned {
		snapAssigned[k] = v
	}
	snapNext := r.next

	err := fn(&memTx{r: r})
	if err == nil && r.commitErr != nil {
		err = errors.Wrap(r.commitErr, "commit transaction")
	}
	if err != nil {
		r.purchases, r.assigned, r.next = snapPurchases, snapAssigned, snapNext
	}
	return err
}

// get returns a copy of the stored record without taking a transaction.
func (r *memRepo) get(id string) *model.Purchase {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.purchases[id]; ok {
		return clonePurchase(p)
	}
	return nil
}

func (r *memRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.purchases)
}

type memTx struct{ r *memRepo }

func (t *memTx) LockByID(_ context.Context, id string) (*model.Purchase, error) {
	p, ok := t.r.purchases[id]
	if !ok {
		return nil, repository.ErrPurchaseNotFound
	}
	return clonePurchase(p), nil
}

func (t *memTx) MarkConfirmed(_ context.Context, id string, nums model.RaffleNumbers) error {
	if t.r.confirmErr != nil {
		return t.r.confirmErr
	}
	p, ok := t.r.purchases[id]
	if !ok || p.Status != model.StatusPending {
		return repository.ErrNotPending
	}
	now := time.Now().UTC()
	p.Status = model.StatusConfirmed
	p.RaffleNumbers = append(model.RaffleNumbers(nil), nums...)
	p.ConfirmedAt = &now
	return nil
}

func (t *memTx) ReserveNumbers(_ context.Context, purchaseID string, count int) (model.RaffleNumbers, error) {
	last := t.r.next + int64(count) - 1
	if last > t.r.max {
		return nil, repository.ErrNumbersExhausted
	}
	out := make(model.RaffleNumbers, 0, count)
	for n := t.r.next; n <= last; n++ {
		if _, dup := t.r.assigned[n]; dup {
			return nil, repository.ErrDuplicateNumber
		}
		t.r.assigned[n] = purchaseID
		out = append(out, n)
	}
	t.r.next = last + 1
	return out, nil
}

type fakeIdentity map[string]model.Identity

func (f fakeIdentity) VerifyToken(_ context.Context, token string) (*model.Identity, error) {
	id, ok := f[token]
	if !ok {
		return nil, errors.New("bad token")
	}
	return &id, nil
}

// fakeSessions stands in for the provider.  By default a purchase always
// maps to session "cs_<purchase id>"; with fresh set every call opens a new
// session, which is what the provider does once an idempotency key is gone.
type fakeSessions struct {
	mu       sync.Mutex
	requests []payment.SessionRequest
	sessions map[string]*payment.Session
	opened   int
	err      error
	block    bool
	fresh    bool
}

func (f *fakeSessions) CreateSession(ctx context.Context, req payment.SessionRequest) (*payment.Session, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	err, block := f.err, f.block
	f.mu.Unlock()
	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.opened++
	id := "cs_" + req.Correlation.PurchaseID
	if f.fresh {
		id = fmt.Sprintf("%s_%d", id, f.opened)
	}
	if f.sessions == nil {
		f.sessions = map[string]*payment.Session{}
	}
	if s, ok := f.sessions[id]; ok {
		c := *s
		return &c, nil
	}
	s := &payment.Session{ID: id, URL: "https://checkout.test/" + id, Status: payment.SessionStatusOpen}
	f.sessions[id] = s
	c := *s
	return &c, nil
}

func (f *fakeSessions) GetSession(_ context.Context, id string) (*payment.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	s, ok := f.sessions[id]
	if !ok {
		return nil, errors.Errorf("no such session %s", id)
	}
	c := *s
	return &c, nil
}

// setStatus moves a provider session to a new state.
func (f *fakeSessions) setStatus(id, status string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions[id].Status = status
}

func (f *fakeSessions) calls() []payment.SessionRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]payment.SessionRequest(nil), f.requests...)
}

const goodSignature = "t=1,v1=good"

// jsonVerifier accepts goodSignature and decodes the body as a payment.Event.
type jsonVerifier struct{}

func (jsonVerifier) Verify(payload []byte, signature string) (*payment.Event, error) {
	if signature != goodSignature {
		return nil, payment.ErrInvalidSignature
	}
	var ev payment.Event
	if err := json.Unmarshal(payload, &ev); err != nil {
		return nil, payment.ErrMalformedEvent
	}
	return &ev, nil
}

type fakePublisher struct {
	mu        sync.Mutex
	confirmed []queue.PurchaseConfirmedEvent
	pixels    []queue.PixelEvent
	err       error
}

func (f *fakePublisher) PublishPurchaseConfirmed(_ context.Context, ev queue.PurchaseConfirmedEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.confirmed = append(f.confirmed, ev)
	return f.err
}

func (f *fakePublisher) PublishPixelEvent(_ context.Context, ev queue.PixelEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pixels = append(f.pixels, ev)
	return f.err
}

func (f *fakePublisher) snapshot() ([]queue.PurchaseConfirmedEvent, []queue.PixelEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]queue.PurchaseConfirmedEvent(nil), f.confirmed...), append([]queue.PixelEvent(nil), f.pixels...)
}

func completedEvent(purchaseID, userID string) []byte {
	return completedEventFor(purchaseID, userID, "cs_"+purchaseID)
}

func completedEventFor(purchaseID, userID, sessionID string) []byte {
	bs, _ := json.Marshal(payment.Event{
		ID:            "evt_" + sessionID,
		Type:          payment.EventCheckoutCompleted,
		SessionID:     sessionID,
		PaymentStatus: payment.PaymentStatusPaid,
		Correlation:   payment.Correlation{PurchaseID: purchaseID, UserID: userID},
	})
	return bs
}
