package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/hafizdr/stock-ledger/internal/core/domain"
	"github.com/hafizdr/stock-ledger/internal/port"
)

// MemoryAdapter implements port.DatabaseRepository entirely in memory with
// the same contract as the MySQL adapter: GetProductForUpdate takes an
// exclusive per-product lock held until the unit of work ends, and nothing a
// unit of work stages is visible until it commits.
type MemoryAdapter struct {
	mu           sync.Mutex
	products     map[string]domain.Product
	transactions []txnRecord
	locks        map[string]chan struct{}
	lockTimeout  time.Duration
	nextSeq      uint64
}

// txnRecord carries an insertion sequence so listing stays deterministic when
// two transactions share a creation timestamp.
type txnRecord struct {
	txn domain.Transaction
	seq uint64
}

func NewMemoryAdapter(lockTimeout time.Duration) *MemoryAdapter {
	return &MemoryAdapter{
		products:    make(map[string]domain.Product),
		locks:       make(map[string]chan struct{}),
		lockTimeout: lockTimeout,
	}
}

func (m *MemoryAdapter) lockFor(productID string) chan struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()

	ch, ok := m.locks[productID]
	if !ok {
		ch = make(chan struct{}, 1)
		m.locks[productID] = ch
	}
	return ch
}

func (m *MemoryAdapter) WithinTx(ctx context.Context, fn func(tx port.LedgerTx) error) error {
	tx := &memoryTx{
		store:  m,
		loaded: make(map[string]*domain.Product),
	}
	defer tx.releaseLocks()

	if err := fn(tx); err != nil {
		return err
	}
	tx.commit()
	return nil
}

type memoryTx struct {
	store  *MemoryAdapter
	loaded map[string]*domain.Product // locked working copies
	saves  []*domain.Product
	header *domain.Transaction
	items  []domain.TransactionItem
	held   []chan struct{}
}

func (t *memoryTx) GetProductForUpdate(ctx context.Context, productID string) (*domain.Product, error) {
	if p, ok := t.loaded[productID]; ok {
		return p, nil
	}

	ch := t.store.lockFor(productID)
	timer := time.NewTimer(t.store.lockTimeout)
	defer timer.Stop()

	select {
	case ch <- struct{}{}:
		t.held = append(t.held, ch)
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return nil, domain.ErrLockTimeout
	}

	t.store.mu.Lock()
	p, ok := t.store.products[productID]
	t.store.mu.Unlock()
	if !ok {
		return nil, &domain.NotFoundError{ProductID: productID}
	}

	cp := p
	t.loaded[productID] = &cp
	return &cp, nil
}

func (t *memoryTx) SaveProductStock(ctx context.Context, product *domain.Product) error {
	t.saves = append(t.saves, product)
	return nil
}

func (t *memoryTx) InsertTransaction(ctx context.Context, txn *domain.Transaction) error {
	cp := *txn
	cp.Items = nil
	t.header = &cp
	return nil
}

func (t *memoryTx) InsertItem(ctx context.Context, item *domain.TransactionItem) error {
	t.items = append(t.items, *item)
	return nil
}

func (t *memoryTx) commit() {
	s := t.store
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	for _, p := range t.saves {
		cur := s.products[p.ID]
		cur.Stock = p.Stock
		cur.UpdatedAt = now
		s.products[p.ID] = cur
	}

	if t.header != nil {
		txn := *t.header
		txn.Items = append([]domain.TransactionItem(nil), t.items...)
		s.nextSeq++
		s.transactions = append(s.transactions, txnRecord{txn: txn, seq: s.nextSeq})
	}
}

func (t *memoryTx) releaseLocks() {
	for _, ch := range t.held {
		<-ch
	}
	t.held = nil
}

func (m *MemoryAdapter) GetTransaction(ctx context.Context, id string) (*domain.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, rec := range m.transactions {
		if rec.txn.ID == id {
			txn := m.populateItems(rec.txn)
			return &txn, nil
		}
	}
	return nil, fmt.Errorf("transaction %s not found", id)
}

func (m *MemoryAdapter) ListTransactions(ctx context.Context) ([]domain.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]domain.Transaction, 0, len(m.transactions))
	recs := append([]txnRecord(nil), m.transactions...)
	sort.SliceStable(recs, func(i, j int) bool {
		if !recs[i].txn.CreatedAt.Equal(recs[j].txn.CreatedAt) {
			return recs[i].txn.CreatedAt.After(recs[j].txn.CreatedAt)
		}
		return recs[i].seq > recs[j].seq
	})
	for _, rec := range recs {
		out = append(out, m.populateItems(rec.txn))
	}
	return out, nil
}

// populateItems fills per-item product names; callers must hold m.mu.
func (m *MemoryAdapter) populateItems(txn domain.Transaction) domain.Transaction {
	items := append([]domain.TransactionItem(nil), txn.Items...)
	for i := range items {
		if p, ok := m.products[items[i].ProductID]; ok {
			items[i].ProductName = p.Name
		}
	}
	txn.Items = items
	return txn
}

func (m *MemoryAdapter) CreateProduct(ctx context.Context, product *domain.Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.products[product.ID] = *product
	return nil
}

func (m *MemoryAdapter) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.products[id]
	if !ok {
		return nil, &domain.NotFoundError{ProductID: id}
	}
	cp := p
	return &cp, nil
}

func (m *MemoryAdapter) ListProducts(ctx context.Context) ([]domain.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]domain.Product, 0, len(m.products))
	for _, p := range m.products {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

var _ port.DatabaseRepository = (*MemoryAdapter)(nil)
