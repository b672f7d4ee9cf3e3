package service

import (
	"context"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/hafizdr/stock-ledger/internal/core/domain"
	"github.com/hafizdr/stock-ledger/internal/port"
)

type ItemRequest struct {
	ProductID string
	Qty       int
}

type CreateTransactionRequest struct {
	Type    domain.TransactionType
	Note    string
	ActorID string
	Items   []ItemRequest
}

// LedgerService is the only writer of product stock. Every stock movement
// goes through CreateTransaction, which applies all of a request's items and
// persists the transaction record in one atomic unit of work.
type LedgerService struct {
	repo       port.DatabaseRepository
	cache      port.CacheRepository
	eventQueue chan domain.TransactionCommitted
}

// NewLedgerService creates the ledger engine. cache may be nil; committed
// events are buffered on a queue of queueSize drained via GetEventQueue.
func NewLedgerService(repo port.DatabaseRepository, cache port.CacheRepository, queueSize int) *LedgerService {
	return &LedgerService{
		repo:       repo,
		cache:      cache,
		eventQueue: make(chan domain.TransactionCommitted, queueSize),
	}
}

func validateRequest(req CreateTransactionRequest) error {
	if !req.Type.Valid() {
		return &domain.ValidationError{Reason: fmt.Sprintf("type must be IN or OUT, got %q", req.Type)}
	}
	if len(req.Items) == 0 {
		return &domain.ValidationError{Reason: "items must not be empty"}
	}
	for i, it := range req.Items {
		if it.ProductID == "" {
			return &domain.ValidationError{Reason: fmt.Sprintf("items[%d]: productId is required", i)}
		}
		if it.Qty < 1 {
			return &domain.ValidationError{Reason: fmt.Sprintf("items[%d]: qty must be >= 1, got %d", i, it.Qty)}
		}
	}
	return nil
}

// lockOrder returns the distinct product ids referenced by items in ascending
// order. Locks are always acquired in this order, so two transactions that
// reference the same products with differently ordered items cannot deadlock.
func lockOrder(items []ItemRequest) []string {
	seen := make(map[string]struct{}, len(items))
	ids := make([]string, 0, len(items))
	for _, it := range items {
		if _, ok := seen[it.ProductID]; ok {
			continue
		}
		seen[it.ProductID] = struct{}{}
		ids = append(ids, it.ProductID)
	}
	sort.Strings(ids)
	return ids
}

// CreateTransaction validates the request, locks every referenced product in
// canonical order, applies the stock deltas and commits header, items and
// stock updates atomically. On any failure nothing is persisted.
func (s *LedgerService) CreateTransaction(ctx context.Context, req CreateTransactionRequest) (*domain.Transaction, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	header := &domain.Transaction{
		ID:        uuid.New().String(),
		Type:      req.Type,
		Note:      req.Note,
		ActorID:   req.ActorID,
		CreatedAt: time.Now().UTC(),
	}

	lockIDs := lockOrder(req.Items)
	touched := make([]*domain.Product, 0, len(lockIDs))

	err := s.repo.WithinTx(ctx, func(tx port.LedgerTx) error {
		products := make(map[string]*domain.Product, len(lockIDs))
		for _, id := range lockIDs {
			p, err := tx.GetProductForUpdate(ctx, id)
			if err != nil {
				return err
			}
			products[id] = p
		}

		// Deltas apply in the caller's item order; the record keeps that
		// order even though locks were taken in canonical order.
		for _, it := range req.Items {
			p := products[it.ProductID]
			if req.Type == domain.TransactionOut && it.Qty > p.Stock {
				return &domain.InsufficientStockError{
					ProductID: p.ID,
					Requested: it.Qty,
					Available: p.Stock,
				}
			}
			p.Stock += req.Type.Delta(it.Qty)
		}

		if err := tx.InsertTransaction(ctx, header); err != nil {
			return fmt.Errorf("insert transaction: %w", err)
		}
		for i, it := range req.Items {
			p := products[it.ProductID]
			item := &domain.TransactionItem{
				ID:            uuid.New().String(),
				TransactionID: header.ID,
				ProductID:     p.ID,
				Seq:           i,
				Qty:           it.Qty,
				Price:         p.Price,
			}
			if err := tx.InsertItem(ctx, item); err != nil {
				return fmt.Errorf("insert item for product %s: %w", p.ID, err)
			}
		}

		for _, id := range lockIDs {
			p := products[id]
			if err := tx.SaveProductStock(ctx, p); err != nil {
				return fmt.Errorf("save stock for product %s: %w", p.ID, err)
			}
			touched = append(touched, p)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	committed, err := s.repo.GetTransaction(ctx, header.ID)
	if err != nil {
		return nil, fmt.Errorf("reload transaction %s: %w", header.ID, err)
	}

	s.refreshCache(ctx, touched)
	s.enqueueCommitted(committed)

	return committed, nil
}

// ListTransactions returns all committed transactions newest first, items and
// product names populated.
func (s *LedgerService) ListTransactions(ctx context.Context) ([]domain.Transaction, error) {
	return s.repo.ListTransactions(ctx)
}

// CreateProduct registers a product with its initial stock. Subsequent stock
// changes must go through CreateTransaction.
func (s *LedgerService) CreateProduct(ctx context.Context, p *domain.Product) (*domain.Product, error) {
	if p.Name == "" {
		return nil, &domain.ValidationError{Reason: "product name is required"}
	}
	if p.Stock < 0 {
		return nil, &domain.ValidationError{Reason: fmt.Sprintf("stock must be >= 0, got %d", p.Stock)}
	}
	if p.Price.IsNegative() {
		return nil, &domain.ValidationError{Reason: "price must not be negative"}
	}

	now := time.Now().UTC()
	product := *p
	product.ID = uuid.New().String()
	product.CreatedAt = now
	product.UpdatedAt = now

	if err := s.repo.CreateProduct(ctx, &product); err != nil {
		return nil, fmt.Errorf("create product: %w", err)
	}

	s.refreshCache(ctx, []*domain.Product{&product})
	return &product, nil
}

func (s *LedgerService) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	return s.repo.GetProduct(ctx, id)
}

func (s *LedgerService) ListProducts(ctx context.Context) ([]domain.Product, error) {
	return s.repo.ListProducts(ctx)
}

// GetProductStock serves the current stock cache-first, falling back to the
// database and filling the cache on a miss.
func (s *LedgerService) GetProductStock(ctx context.Context, productID string) (int, error) {
	if s.cache != nil {
		stock, ok, err := s.cache.GetStock(ctx, productID)
		if err != nil {
			log.Printf("stock cache read failed for product %s: %v", productID, err)
		} else if ok {
			return stock, nil
		}
	}

	p, err := s.repo.GetProduct(ctx, productID)
	if err != nil {
		return 0, err
	}

	if s.cache != nil {
		if err := s.cache.SetStock(ctx, productID, p.Stock); err != nil {
			log.Printf("stock cache fill failed for product %s: %v", productID, err)
		}
	}
	return p.Stock, nil
}

// GetEventQueue exposes the committed-event queue for publisher workers.
func (s *LedgerService) GetEventQueue() <-chan domain.TransactionCommitted {
	return s.eventQueue
}

// Close ends the committed-event queue once all producers are done.
func (s *LedgerService) Close() {
	close(s.eventQueue)
}

func (s *LedgerService) refreshCache(ctx context.Context, products []*domain.Product) {
	if s.cache == nil {
		return
	}
	for _, p := range products {
		if err := s.cache.SetStock(ctx, p.ID, p.Stock); err != nil {
			log.Printf("stock cache refresh failed for product %s: %v", p.ID, err)
		}
	}
}

func (s *LedgerService) enqueueCommitted(txn *domain.Transaction) {
	event := domain.TransactionCommitted{
		TransactionID: txn.ID,
		Type:          txn.Type,
		ActorID:       txn.ActorID,
		Items:         make([]domain.ItemMovement, 0, len(txn.Items)),
		OccurredAt:    txn.CreatedAt,
	}
	for _, it := range txn.Items {
		event.Items = append(event.Items, domain.ItemMovement{ProductID: it.ProductID, Qty: it.Qty})
	}

	// The transaction is already durable; drop the event rather than stall
	// the caller when no publisher is draining the queue.
	select {
	case s.eventQueue <- event:
	default:
		log.Printf("event queue full, dropping committed event for transaction %s", txn.ID)
	}
}
