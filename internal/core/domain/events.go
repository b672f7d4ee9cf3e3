package domain

import "time"

type ItemMovement struct {
	ProductID string `json:"product_id"`
	Qty       int    `json:"qty"`
}

// TransactionCommitted is published after a ledger transaction commits.
// Delivery is best effort and never affects the committed result.
type TransactionCommitted struct {
	TransactionID string          `json:"transaction_id"`
	Type          TransactionType `json:"type"`
	ActorID       string          `json:"actor_id,omitempty"`
	Items         []ItemMovement  `json:"items"`
	OccurredAt    time.Time       `json:"occurred_at"`
}
