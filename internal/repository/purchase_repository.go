package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/iliyamo/raffle-checkout/internal/model"
)

const purchaseColumns = `id, user_id, user_name, user_phone, quantity, amount, status,
	payment_session_ref, raffle_numbers, created_at, confirmed_at, updated_at`

// PurchaseRepo provides persistence for raffle purchases and the raffle
// number space.  All timestamps are stored in UTC.
type PurchaseRepo struct {
	db *sqlx.DB
}

// NewPurchaseRepo returns a new PurchaseRepo bound to the given database.
func NewPurchaseRepo(db *sqlx.DB) *PurchaseRepo { return &PurchaseRepo{db: db} }

// DB exposes the underlying handle for health checks.
func (r *PurchaseRepo) DB() *sqlx.DB { return r.db }

// Create inserts a new PENDING purchase.  CreatedAt/UpdatedAt are set on the
// provided record from the database clock.
func (r *PurchaseRepo) Create(ctx context.Context, p *model.Purchase) error {
	const q = `INSERT INTO raffle_purchases (id, user_id, user_name, user_phone, quantity, amount, status)
	           VALUES (?, ?, ?, ?, ?, ?, ?)`
	if _, err := r.db.ExecContext(ctx, q, p.ID, p.UserID, p.UserName, p.UserPhone, p.Quantity, p.Amount, p.Status); err != nil {
		return errors.Wrap(err, "insert purchase")
	}
	// Query back the row to populate timestamps and defaults
	var stored model.Purchase
	if err := r.db.GetContext(ctx, &stored, `SELECT `+purchaseColumns+` FROM raffle_purchases WHERE id = ?`, p.ID); err != nil {
		return errors.Wrap(err, "reload purchase")
	}
	*p = stored
	return nil
}

// GetByID returns a single purchase or ErrPurchaseNotFound.
func (r *PurchaseRepo) GetByID(ctx context.Context, id string) (*model.Purchase, error) {
	var p model.Purchase
	err := r.db.GetContext(ctx, &p, `SELECT `+purchaseColumns+` FROM raffle_purchases WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrPurchaseNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "select purchase")
	}
	return &p, nil
}

// ListByUser returns the user's purchases, newest first.  When none exist an
// empty slice is returned.
func (r *PurchaseRepo) ListByUser(ctx context.Context, userID string) ([]model.Purchase, error) {
	items := make([]model.Purchase, 0)
	err := r.db.SelectContext(ctx, &items,
		`SELECT `+purchaseColumns+` FROM raffle_purchases WHERE user_id = ? ORDER BY created_at DESC, id`, userID)
	if err != nil {
		return nil, errors.Wrap(err, "list purchases")
	}
	return items, nil
}

// AttachSession stores the payment session reference.  The update only
// matches rows without a reference, so an existing one is never overwritten.
func (r *PurchaseRepo) AttachSession(ctx context.Context, id, sessionRef string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE raffle_purchases SET payment_session_ref = ? WHERE id = ? AND payment_session_ref IS NULL`,
		sessionRef, id)
	if err != nil {
		return errors.Wrap(err, "attach session")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "attach session")
	}
	if n == 1 {
		return nil
	}
	// distinguish a missing row from one that already has a reference
	existing, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if existing.PaymentSessionRef != nil && *existing.PaymentSessionRef == sessionRef {
		return nil
	}
	return ErrSessionAlreadyAttached
}

// ReplaceSession moves a PENDING purchase from oldRef to newRef.  Repeating
// the same replacement is a no-op.  ErrNotPending is returned once the
// purchase is confirmed and ErrSessionAlreadyAttached when the stored
// reference is neither oldRef nor newRef.
func (r *PurchaseRepo) ReplaceSession(ctx context.Context, id, oldRef, newRef string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE raffle_purchases SET payment_session_ref = ?
		  WHERE id = ? AND payment_session_ref = ? AND status = ?`,
		newRef, id, oldRef, model.StatusPending)
	if err != nil {
		return errors.Wrap(err, "replace session")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "replace session")
	}
	if n == 1 {
		return nil
	}
	existing, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}
	switch {
	case existing.PaymentSessionRef != nil && *existing.PaymentSessionRef == newRef:
		return nil
	case existing.IsConfirmed():
		return ErrNotPending
	}
	return ErrSessionAlreadyAttached
}

// WithTx runs fn inside a transaction.  It commits when fn returns nil and
// rolls back otherwise; the commit error is returned as is.
func (r *PurchaseRepo) WithTx(ctx context.Context, fn func(tx model.PurchaseTx) error) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin transaction")
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	if err := fn(&purchaseTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "commit transaction")
	}
	committed = true
	return nil
}

// purchaseTx implements model.PurchaseTx on top of a sqlx transaction.
type purchaseTx struct {
	tx *sqlx.Tx
}

// LockByID selects the purchase FOR UPDATE.  Concurrent confirmations of the
// same purchase queue on this row lock.
func (t *purchaseTx) LockByID(ctx context.Context, id string) (*model.Purchase, error) {
	var p model.Purchase
	err := t.tx.GetContext(ctx, &p, `SELECT `+purchaseColumns+` FROM raffle_purchases WHERE id = ? FOR UPDATE`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrPurchaseNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "lock purchase")
	}
	return &p, nil
}

// MarkConfirmed writes the numbers and the CONFIRMED status in one update.
// It returns ErrNotPending when the row is no longer PENDING.
func (t *purchaseTx) MarkConfirmed(ctx context.Context, id string, numbers model.RaffleNumbers) error {
	res, err := t.tx.ExecContext(ctx,
		`UPDATE raffle_purchases
		    SET status = ?, raffle_numbers = ?, confirmed_at = ?
		  WHERE id = ? AND status = ?`,
		model.StatusConfirmed, numbers, time.Now().UTC(), id, model.StatusPending)
	if err != nil {
		return errors.Wrap(err, "confirm purchase")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "confirm purchase")
	}
	if n != 1 {
		return ErrNotPending
	}
	return nil
}
