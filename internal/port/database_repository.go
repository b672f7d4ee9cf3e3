package port

import (
	"context"

	"github.com/hafizdr/stock-ledger/internal/core/domain"
)

// LedgerTx is the collaborator surface available inside one unit of work.
// Everything staged through it commits or rolls back together.
type LedgerTx interface {
	// GetProductForUpdate loads a product under an exclusive lock that is
	// held until the unit of work commits or rolls back. Returns
	// *domain.NotFoundError if the product does not exist and
	// domain.ErrLockTimeout if the lock cannot be acquired in time.
	GetProductForUpdate(ctx context.Context, productID string) (*domain.Product, error)

	// SaveProductStock stages the product's new stock value.
	SaveProductStock(ctx context.Context, product *domain.Product) error

	// InsertTransaction stages the transaction header.
	InsertTransaction(ctx context.Context, txn *domain.Transaction) error

	// InsertItem stages one line item.
	InsertItem(ctx context.Context, item *domain.TransactionItem) error
}

type DatabaseRepository interface {
	// WithinTx runs fn inside one atomic unit of work. If fn returns an
	// error, nothing it staged becomes visible.
	WithinTx(ctx context.Context, fn func(tx LedgerTx) error) error

	// GetTransaction loads a committed transaction with its items and each
	// item's product name populated.
	GetTransaction(ctx context.Context, id string) (*domain.Transaction, error)

	// ListTransactions returns committed transactions newest first, items
	// populated.
	ListTransactions(ctx context.Context) ([]domain.Transaction, error)

	CreateProduct(ctx context.Context, product *domain.Product) error
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
	ListProducts(ctx context.Context) ([]domain.Product, error)
}
