package port

import "context"

type CacheRepository interface {
	// SetStock overwrites the cached stock value for a product.
	SetStock(ctx context.Context, productID string, stock int) error

	// GetStock returns the cached stock; ok is false on a cache miss.
	GetStock(ctx context.Context, productID string) (stock int, ok bool, err error)

	// DeleteStock drops a product's cached stock.
	DeleteStock(ctx context.Context, productID string) error
}
