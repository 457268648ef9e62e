package repository

import (
	"context"
	"database/sql"
	"strings"

	mysqldrv "github.com/go-sql-driver/mysql"
	"github.com/pkg/errors"

	"github.com/iliyamo/raffle-checkout/internal/model"
)

// numberInsertChunk bounds the rows per INSERT so a 10000-entry block stays
// well under the placeholder limit.
const numberInsertChunk = 1000

// mysqlDuplicateEntry is the server error number for a unique key violation.
const mysqlDuplicateEntry = 1062

// ReserveNumbers reserves count consecutive numbers from the raffle sequence
// and records each of them against purchaseID.  The sequence row stays
// locked until the enclosing transaction ends, so concurrent reservations
// are serialized by the database and a rollback returns the block to the
// pool.  Every number is also inserted into raffle_numbers, whose primary
// key rejects any number assigned twice.
func (t *purchaseTx) ReserveNumbers(ctx context.Context, purchaseID string, count int) (model.RaffleNumbers, error) {
	if count <= 0 {
		return nil, errors.Errorf("reserve numbers: invalid count %d", count)
	}
	var seq struct {
		Next int64 `db:"next_value"`
		Max  int64 `db:"max_value"`
	}
	err := t.tx.GetContext(ctx, &seq, `SELECT next_value, max_value FROM raffle_sequence WHERE id = 1 FOR UPDATE`)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Wrap(ErrNumbersExhausted, "raffle sequence not initialised")
	}
	if err != nil {
		return nil, errors.Wrap(err, "lock raffle sequence")
	}
	last := seq.Next + int64(count) - 1
	if last > seq.Max {
		return nil, ErrNumbersExhausted
	}
	if _, err := t.tx.ExecContext(ctx, `UPDATE raffle_sequence SET next_value = ? WHERE id = 1`, last+1); err != nil {
		return nil, errors.Wrap(err, "advance raffle sequence")
	}

	numbers := make(model.RaffleNumbers, 0, count)
	for n := seq.Next; n <= last; n++ {
		numbers = append(numbers, n)
	}
	if err := t.insertNumbers(ctx, purchaseID, numbers); err != nil {
		return nil, err
	}
	return numbers, nil
}

// insertNumbers bulk inserts numbers in chunks.
func (t *purchaseTx) insertNumbers(ctx context.Context, purchaseID string, numbers model.RaffleNumbers) error {
	for start := 0; start < len(numbers); start += numberInsertChunk {
		end := start + numberInsertChunk
		if end > len(numbers) {
			end = len(numbers)
		}
		chunk := numbers[start:end]
		var b strings.Builder
		b.WriteString(`INSERT INTO raffle_numbers (number, purchase_id) VALUES `)
		args := make([]interface{}, 0, len(chunk)*2)
		for i, n := range chunk {
			if i > 0 {
				b.WriteString(",")
			}
			b.WriteString("(?, ?)")
			args = append(args, n, purchaseID)
		}
		if _, err := t.tx.ExecContext(ctx, b.String(), args...); err != nil {
			var me *mysqldrv.MySQLError
			if errors.As(err, &me) && me.Number == mysqlDuplicateEntry {
				return ErrDuplicateNumber
			}
			return errors.Wrap(err, "insert raffle numbers")
		}
	}
	return nil
}
