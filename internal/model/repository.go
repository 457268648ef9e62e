package model

import "context"

// PurchaseRepository is the transactional record store for purchases.  The
// MySQL implementation lives in internal/repository.
type PurchaseRepository interface {
	Create(ctx context.Context, p *Purchase) error
	GetByID(ctx context.Context, id string) (*Purchase, error)
	ListByUser(ctx context.Context, userID string) ([]Purchase, error)
	// AttachSession sets the payment session reference if none is set yet.
	AttachSession(ctx context.Context, id, sessionRef string) error
	// ReplaceSession swaps oldRef for newRef on a PENDING purchase.  It is
	// only used once the provider has expired oldRef.
	ReplaceSession(ctx context.Context, id, oldRef, newRef string) error
	// WithTx runs fn inside a single store transaction.  The transaction
	// commits when fn returns nil and rolls back otherwise.
	WithTx(ctx context.Context, fn func(tx PurchaseTx) error) error
}

// NumberSource reserves globally unique raffle numbers.  Reservations are
// durable only if the enclosing transaction commits.
type NumberSource interface {
	ReserveNumbers(ctx context.Context, purchaseID string, count int) (RaffleNumbers, error)
}

// PurchaseTx is the set of operations available inside a confirmation
// transaction.
type PurchaseTx interface {
	NumberSource
	// LockByID loads a purchase and holds its row lock until the
	// transaction ends.
	LockByID(ctx context.Context, id string) (*Purchase, error)
	// MarkConfirmed writes status and numbers in one conditional update
	// that only matches PENDING rows.
	MarkConfirmed(ctx context.Context, id string, numbers RaffleNumbers) error
}
