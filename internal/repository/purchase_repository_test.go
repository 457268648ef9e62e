package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/raffle-checkout/internal/model"
)

var purchaseCols = []string{
	"id", "user_id", "user_name", "user_phone", "quantity", "amount", "status",
	"payment_session_ref", "raffle_numbers", "created_at", "confirmed_at", "updated_at",
}

func newMockRepo(t *testing.T) (*PurchaseRepo, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		_ = db.Close()
	})
	return NewPurchaseRepo(sqlx.NewDb(db, "mysql")), mock
}

// purchaseRow builds a single raffle_purchases row.  ref and numbers may be nil.
func purchaseRow(id string, status model.Status, ref interface{}, numbers interface{}) *sqlmock.Rows {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	var confirmedAt interface{}
	if status == model.StatusConfirmed {
		confirmedAt = now
	}
	return sqlmock.NewRows(purchaseCols).AddRow(
		id, "u-1", "Ana", "", int64(100), int64(1000), string(status),
		ref, numbers, now, confirmedAt, now,
	)
}

var (
	selectPurchase = regexp.QuoteMeta(`FROM raffle_purchases WHERE id = ?`)
	attachSQL      = regexp.QuoteMeta(`UPDATE raffle_purchases SET payment_session_ref = ? WHERE id = ? AND payment_session_ref IS NULL`)
	replaceSQL     = regexp.QuoteMeta(`UPDATE raffle_purchases SET payment_session_ref = ? WHERE id = ? AND payment_session_ref = ? AND status = ?`)
)

func TestCreate_ReloadsStoredRow(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO raffle_purchases`)).
		WithArgs("p-1", "u-1", "Ana", "", 100, int64(1000), "PENDING").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(selectPurchase).WithArgs("p-1").
		WillReturnRows(purchaseRow("p-1", model.StatusPending, nil, nil))

	p := &model.Purchase{ID: "p-1", UserID: "u-1", UserName: "Ana", Quantity: 100, Amount: 1000, Status: model.StatusPending}
	require.NoError(t, repo.Create(context.Background(), p))
	assert.False(t, p.CreatedAt.IsZero())
	assert.Nil(t, p.PaymentSessionRef)
	assert.Nil(t, p.RaffleNumbers)
}

func TestCreate_InsertError(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO raffle_purchases`)).WillReturnError(errors.New("conn reset"))

	err := repo.Create(context.Background(), &model.Purchase{ID: "p-1", Status: model.StatusPending})
	assert.ErrorContains(t, err, "insert purchase")
}

func TestGetByID(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectQuery(selectPurchase).WithArgs("p-1").
		WillReturnRows(purchaseRow("p-1", model.StatusConfirmed, "cs_1", []byte("[5,6,7]")))

	p, err := repo.GetByID(context.Background(), "p-1")
	require.NoError(t, err)
	assert.True(t, p.IsConfirmed())
	require.NotNil(t, p.PaymentSessionRef)
	assert.Equal(t, "cs_1", *p.PaymentSessionRef)
	assert.Equal(t, model.RaffleNumbers{5, 6, 7}, p.RaffleNumbers)
	require.NotNil(t, p.ConfirmedAt)
}

func TestGetByID_NotFound(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectQuery(selectPurchase).WithArgs("nope").WillReturnRows(sqlmock.NewRows(purchaseCols))

	_, err := repo.GetByID(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrPurchaseNotFound)
}

func TestListByUser(t *testing.T) {
	repo, mock := newMockRepo(t)
	rows := purchaseRow("p-2", model.StatusPending, nil, nil)
	rows.AddRow("p-1", "u-1", "Ana", "", int64(100), int64(1000), "CONFIRMED", "cs_1", "[1]",
		time.Now(), time.Now(), time.Now())
	mock.ExpectQuery(regexp.QuoteMeta(`WHERE user_id = ? ORDER BY created_at DESC`)).WithArgs("u-1").WillReturnRows(rows)

	items, err := repo.ListByUser(context.Background(), "u-1")
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "p-2", items[0].ID)
	assert.Equal(t, model.RaffleNumbers{1}, items[1].RaffleNumbers)

	mock.ExpectQuery(regexp.QuoteMeta(`WHERE user_id = ?`)).WithArgs("u-9").WillReturnRows(sqlmock.NewRows(purchaseCols))
	items, err = repo.ListByUser(context.Background(), "u-9")
	require.NoError(t, err)
	assert.NotNil(t, items)
	assert.Empty(t, items)
}

func TestAttachSession(t *testing.T) {
	ctx := context.Background()

	t.Run("sets reference once", func(t *testing.T) {
		repo, mock := newMockRepo(t)
		mock.ExpectExec(attachSQL).WithArgs("cs_1", "p-1").WillReturnResult(sqlmock.NewResult(0, 1))
		assert.NoError(t, repo.AttachSession(ctx, "p-1", "cs_1"))
	})

	t.Run("same reference is a no-op", func(t *testing.T) {
		repo, mock := newMockRepo(t)
		mock.ExpectExec(attachSQL).WithArgs("cs_1", "p-1").WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(selectPurchase).WithArgs("p-1").
			WillReturnRows(purchaseRow("p-1", model.StatusPending, "cs_1", nil))
		assert.NoError(t, repo.AttachSession(ctx, "p-1", "cs_1"))
	})

	t.Run("never overwrites", func(t *testing.T) {
		repo, mock := newMockRepo(t)
		mock.ExpectExec(attachSQL).WithArgs("cs_2", "p-1").WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(selectPurchase).WithArgs("p-1").
			WillReturnRows(purchaseRow("p-1", model.StatusPending, "cs_1", nil))
		assert.ErrorIs(t, repo.AttachSession(ctx, "p-1", "cs_2"), ErrSessionAlreadyAttached)
	})

	t.Run("missing purchase", func(t *testing.T) {
		repo, mock := newMockRepo(t)
		mock.ExpectExec(attachSQL).WithArgs("cs_1", "p-9").WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(selectPurchase).WithArgs("p-9").WillReturnRows(sqlmock.NewRows(purchaseCols))
		assert.ErrorIs(t, repo.AttachSession(ctx, "p-9", "cs_1"), ErrPurchaseNotFound)
	})
}

func TestReplaceSession(t *testing.T) {
	ctx := context.Background()

	t.Run("swaps expired reference", func(t *testing.T) {
		repo, mock := newMockRepo(t)
		mock.ExpectExec(replaceSQL).WithArgs("cs_2", "p-1", "cs_1", "PENDING").WillReturnResult(sqlmock.NewResult(0, 1))
		assert.NoError(t, repo.ReplaceSession(ctx, "p-1", "cs_1", "cs_2"))
	})

	t.Run("repeat is a no-op", func(t *testing.T) {
		repo, mock := newMockRepo(t)
		mock.ExpectExec(replaceSQL).WithArgs("cs_2", "p-1", "cs_1", "PENDING").WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(selectPurchase).WithArgs("p-1").
			WillReturnRows(purchaseRow("p-1", model.StatusPending, "cs_2", nil))
		assert.NoError(t, repo.ReplaceSession(ctx, "p-1", "cs_1", "cs_2"))
	})

	t.Run("confirmed purchase", func(t *testing.T) {
		repo, mock := newMockRepo(t)
		mock.ExpectExec(replaceSQL).WithArgs("cs_2", "p-1", "cs_1", "PENDING").WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(selectPurchase).WithArgs("p-1").
			WillReturnRows(purchaseRow("p-1", model.StatusConfirmed, "cs_1", "[1]"))
		assert.ErrorIs(t, repo.ReplaceSession(ctx, "p-1", "cs_1", "cs_2"), ErrNotPending)
	})

	t.Run("reference moved elsewhere", func(t *testing.T) {
		repo, mock := newMockRepo(t)
		mock.ExpectExec(replaceSQL).WithArgs("cs_2", "p-1", "cs_1", "PENDING").WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(selectPurchase).WithArgs("p-1").
			WillReturnRows(purchaseRow("p-1", model.StatusPending, "cs_3", nil))
		assert.ErrorIs(t, repo.ReplaceSession(ctx, "p-1", "cs_1", "cs_2"), ErrSessionAlreadyAttached)
	})
}

func TestWithTx_Commits(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`WHERE id = ? FOR UPDATE`)).WithArgs("p-1").
		WillReturnRows(purchaseRow("p-1", model.StatusPending, "cs_1", nil))
	mock.ExpectCommit()

	var locked *model.Purchase
	err := repo.WithTx(context.Background(), func(tx model.PurchaseTx) error {
		var err error
		locked, err = tx.LockByID(context.Background(), "p-1")
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, "p-1", locked.ID)
}

func TestWithTx_RollsBackOnError(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`FOR UPDATE`)).WithArgs("p-9").WillReturnRows(sqlmock.NewRows(purchaseCols))
	mock.ExpectRollback()

	err := repo.WithTx(context.Background(), func(tx model.PurchaseTx) error {
		_, err := tx.LockByID(context.Background(), "p-9")
		return err
	})
	assert.ErrorIs(t, err, ErrPurchaseNotFound)
}

func TestWithTx_CommitError(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectBegin()
	mock.ExpectCommit().WillReturnError(errors.New("deadlock"))

	err := repo.WithTx(context.Background(), func(model.PurchaseTx) error { return nil })
	assert.ErrorContains(t, err, "commit transaction")
}

func TestWithTx_BeginError(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectBegin().WillReturnError(errors.New("too many connections"))

	called := false
	err := repo.WithTx(context.Background(), func(model.PurchaseTx) error { called = true; return nil })
	assert.ErrorContains(t, err, "begin transaction")
	assert.False(t, called)
}

func TestMarkConfirmed(t *testing.T) {
	confirmSQL := regexp.QuoteMeta(`SET status = ?, raffle_numbers = ?, confirmed_at = ? WHERE id = ? AND status = ?`)

	t.Run("pending row", func(t *testing.T) {
		repo, mock := newMockRepo(t)
		mock.ExpectBegin()
		mock.ExpectExec(confirmSQL).
			WithArgs("CONFIRMED", "[1,2,3]", sqlmock.AnyArg(), "p-1", "PENDING").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		err := repo.WithTx(context.Background(), func(tx model.PurchaseTx) error {
			return tx.MarkConfirmed(context.Background(), "p-1", model.RaffleNumbers{1, 2, 3})
		})
		assert.NoError(t, err)
	})

	t.Run("already confirmed row", func(t *testing.T) {
		repo, mock := newMockRepo(t)
		mock.ExpectBegin()
		mock.ExpectExec(confirmSQL).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectRollback()

		err := repo.WithTx(context.Background(), func(tx model.PurchaseTx) error {
			return tx.MarkConfirmed(context.Background(), "p-1", model.RaffleNumbers{1})
		})
		assert.ErrorIs(t, err, ErrNotPending)
	})
}
