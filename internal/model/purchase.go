package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Status is the lifecycle state of a purchase.  PENDING -> CONFIRMED is the
// only legal transition.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusConfirmed Status = "CONFIRMED"
)

// Purchase records a buyer's request for a quantity of raffle numbers from
// checkout through payment confirmation.
//
// Fields:
//  ID                – opaque identifier generated at creation (UUID).
//  UserID            – owner reference issued by the identity provider.
//  UserName          – display name copied from the identity token.
//  UserPhone         – phone copied from the identity token (may be empty).
//  Quantity          – number of entries requested, 100..10000.
//  Amount            – total price in minor currency units.
//  Status            – PENDING or CONFIRMED.
//  PaymentSessionRef – external payment session id, set at most once.
//  RaffleNumbers     – numbers assigned on confirmation (empty while PENDING).
//  CreatedAt         – creation timestamp.
//  ConfirmedAt       – confirmation timestamp (nil while PENDING).
//  UpdatedAt         – last update timestamp.
type Purchase struct {
	ID                string        `db:"id" json:"id"`
	UserID            string        `db:"user_id" json:"user_id"`
	UserName          string        `db:"user_name" json:"user_name"`
	UserPhone         string        `db:"user_phone" json:"user_phone,omitempty"`
	Quantity          int           `db:"quantity" json:"quantity"`
	Amount            int64         `db:"amount" json:"amount"`
	Status            Status        `db:"status" json:"status"`
	PaymentSessionRef *string       `db:"payment_session_ref" json:"payment_session_ref,omitempty"`
	RaffleNumbers     RaffleNumbers `db:"raffle_numbers" json:"raffle_numbers"`
	CreatedAt         time.Time     `db:"created_at" json:"created_at"`
	ConfirmedAt       *time.Time    `db:"confirmed_at" json:"confirmed_at,omitempty"`
	UpdatedAt         time.Time     `db:"updated_at" json:"updated_at"`
}

// IsConfirmed reports whether numbers have already been assigned.
func (p *Purchase) IsConfirmed() bool { return p.Status == StatusConfirmed }

// RaffleNumbers is the ordered set of numbers assigned to one purchase.  It is
// stored as a JSON array; a NULL column scans into a nil slice.
type RaffleNumbers []int64

// Value implements driver.Valuer.  An empty set is stored as NULL.
func (n RaffleNumbers) Value() (driver.Value, error) {
	if len(n) == 0 {
		return nil, nil
	}
	bs, err := json.Marshal([]int64(n))
	if err != nil {
		return nil, err
	}
	return string(bs), nil
}

// Scan implements sql.Scanner.
func (n *RaffleNumbers) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*n = nil
		return nil
	case []byte:
		return n.unmarshal(v)
	case string:
		return n.unmarshal([]byte(v))
	}
	return fmt.Errorf("raffle numbers: unsupported column type %T", src)
}

func (n *RaffleNumbers) unmarshal(bs []byte) error {
	if len(bs) == 0 || string(bs) == "null" {
		*n = nil
		return nil
	}
	var out []int64
	if err := json.Unmarshal(bs, &out); err != nil {
		return err
	}
	*n = out
	return nil
}
