package port

import (
	"context"

	"github.com/hafizdr/stock-ledger/internal/core/domain"
)

type EventPublisher interface {
	PublishTransactionCommitted(ctx context.Context, event domain.TransactionCommitted) error
}
