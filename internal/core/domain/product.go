package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Product struct {
	ID          string
	Name        string
	Description string
	CategoryID  string
	Price       decimal.Decimal
	Stock       int // never negative; written only by the ledger under lock
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
