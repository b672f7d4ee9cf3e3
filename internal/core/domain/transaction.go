package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type TransactionType string

const (
	TransactionIn  TransactionType = "IN"
	TransactionOut TransactionType = "OUT"
)

func (t TransactionType) Valid() bool {
	return t == TransactionIn || t == TransactionOut
}

// Delta returns the signed stock change for qty units moved under this type.
func (t TransactionType) Delta(qty int) int {
	if t == TransactionOut {
		return -qty
	}
	return qty
}

// Transaction is one committed ledger entry. It is created whole, with at
// least one item, and never mutated or deleted afterward.
type Transaction struct {
	ID        string
	Type      TransactionType
	Note      string
	ActorID   string
	CreatedAt time.Time
	Items     []TransactionItem
}

// TransactionItem links a transaction to one product movement. Seq preserves
// the caller's item order, which is independent of lock-acquisition order.
type TransactionItem struct {
	ID            string
	TransactionID string
	ProductID     string
	ProductName   string // populated on read
	Seq           int
	Qty           int
	Price         decimal.Decimal // product price snapshot at commit time
}
