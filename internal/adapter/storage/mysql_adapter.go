package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"

	"github.com/hafizdr/stock-ledger/internal/core/domain"
	"github.com/hafizdr/stock-ledger/internal/port"
)

// MySQL error numbers for bounded lock waits on SELECT ... FOR UPDATE.
const (
	mysqlErrLockWaitTimeout = 1205
	mysqlErrDeadlock        = 1213
)

type MySQLAdapter struct {
	db *sql.DB
}

func NewMySQLAdapter(db *sql.DB) *MySQLAdapter {
	return &MySQLAdapter{db: db}
}

// WithinTx runs fn inside one SQL transaction. Row locks taken by
// GetProductForUpdate are held until the transaction commits or rolls back.
func (m *MySQLAdapter) WithinTx(ctx context.Context, fn func(tx port.LedgerTx) error) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&mysqlTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", translateLockErr(err))
	}
	return nil
}

// translateLockErr maps the driver's lock-wait-timeout and deadlock errors to
// the retryable domain error; everything else passes through unchanged.
func translateLockErr(err error) error {
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		switch myErr.Number {
		case mysqlErrLockWaitTimeout, mysqlErrDeadlock:
			return domain.ErrLockTimeout
		}
	}
	return err
}

type mysqlTx struct {
	tx *sql.Tx
}

func (t *mysqlTx) GetProductForUpdate(ctx context.Context, productID string) (*domain.Product, error) {
	var (
		p           domain.Product
		description sql.NullString
		categoryID  sql.NullString
	)
	err := t.tx.QueryRowContext(ctx, `
		SELECT id, name, description, category_id, price, stock, created_at, updated_at
		FROM products WHERE id = ? FOR UPDATE`, productID,
	).Scan(&p.ID, &p.Name, &description, &categoryID, &p.Price, &p.Stock, &p.CreatedAt, &p.UpdatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, &domain.NotFoundError{ProductID: productID}
	}
	if err != nil {
		return nil, fmt.Errorf("select product for update: %w", translateLockErr(err))
	}

	p.Description = description.String
	p.CategoryID = categoryID.String
	return &p, nil
}

func (t *mysqlTx) SaveProductStock(ctx context.Context, product *domain.Product) error {
	_, err := t.tx.ExecContext(ctx, `
		UPDATE products SET stock = ?, updated_at = NOW(6) WHERE id = ?`,
		product.Stock, product.ID,
	)
	if err != nil {
		return fmt.Errorf("update stock: %w", translateLockErr(err))
	}
	return nil
}

func (t *mysqlTx) InsertTransaction(ctx context.Context, txn *domain.Transaction) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO transactions (id, type, note, actor_id, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		txn.ID, string(txn.Type), nullable(txn.Note), nullable(txn.ActorID), txn.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}
	return nil
}

func (t *mysqlTx) InsertItem(ctx context.Context, item *domain.TransactionItem) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO transaction_items (id, transaction_id, product_id, seq, qty, price)
		VALUES (?, ?, ?, ?, ?, ?)`,
		item.ID, item.TransactionID, item.ProductID, item.Seq, item.Qty, item.Price,
	)
	if err != nil {
		return fmt.Errorf("insert item: %w", err)
	}
	return nil
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func (m *MySQLAdapter) GetTransaction(ctx context.Context, id string) (*domain.Transaction, error) {
	var (
		txn     domain.Transaction
		note    sql.NullString
		actorID sql.NullString
		txType  string
	)
	err := m.db.QueryRowContext(ctx, `
		SELECT id, type, note, actor_id, created_at
		FROM transactions WHERE id = ?`, id,
	).Scan(&txn.ID, &txType, &note, &actorID, &txn.CreatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("transaction %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("query transaction: %w", err)
	}

	txn.Type = domain.TransactionType(txType)
	txn.Note = note.String
	txn.ActorID = actorID.String

	items, err := m.queryItems(ctx, `WHERE ti.transaction_id = ?`, id)
	if err != nil {
		return nil, err
	}
	txn.Items = items[id]
	return &txn, nil
}

func (m *MySQLAdapter) ListTransactions(ctx context.Context) ([]domain.Transaction, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT id, type, note, actor_id, created_at
		FROM transactions ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	defer rows.Close()

	var txns []domain.Transaction
	for rows.Next() {
		var (
			txn     domain.Transaction
			note    sql.NullString
			actorID sql.NullString
			txType  string
		)
		if err := rows.Scan(&txn.ID, &txType, &note, &actorID, &txn.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		txn.Type = domain.TransactionType(txType)
		txn.Note = note.String
		txn.ActorID = actorID.String
		txns = append(txns, txn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transactions: %w", err)
	}

	items, err := m.queryItems(ctx, ``)
	if err != nil {
		return nil, err
	}
	for i := range txns {
		txns[i].Items = items[txns[i].ID]
	}
	return txns, nil
}

// queryItems loads line items with product names, keyed by transaction id and
// ordered by each item's position in the original request.
func (m *MySQLAdapter) queryItems(ctx context.Context, where string, args ...any) (map[string][]domain.TransactionItem, error) {
	query := `
		SELECT ti.id, ti.transaction_id, ti.product_id, p.name, ti.seq, ti.qty, ti.price
		FROM transaction_items ti
		JOIN products p ON p.id = ti.product_id
		` + where + `
		ORDER BY ti.transaction_id, ti.seq`

	rows, err := m.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query items: %w", err)
	}
	defer rows.Close()

	items := make(map[string][]domain.TransactionItem)
	for rows.Next() {
		var it domain.TransactionItem
		if err := rows.Scan(&it.ID, &it.TransactionID, &it.ProductID, &it.ProductName, &it.Seq, &it.Qty, &it.Price); err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		items[it.TransactionID] = append(items[it.TransactionID], it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate items: %w", err)
	}
	return items, nil
}

func (m *MySQLAdapter) CreateProduct(ctx context.Context, product *domain.Product) error {
	_, err := m.db.ExecContext(ctx, `
		INSERT INTO products (id, name, description, category_id, price, stock, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		product.ID, product.Name, nullable(product.Description), nullable(product.CategoryID),
		product.Price, product.Stock, product.CreatedAt, product.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert product: %w", err)
	}
	return nil
}

func (m *MySQLAdapter) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	var (
		p           domain.Product
		description sql.NullString
		categoryID  sql.NullString
	)
	err := m.db.QueryRowContext(ctx, `
		SELECT id, name, description, category_id, price, stock, created_at, updated_at
		FROM products WHERE id = ?`, id,
	).Scan(&p.ID, &p.Name, &description, &categoryID, &p.Price, &p.Stock, &p.CreatedAt, &p.UpdatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, &domain.NotFoundError{ProductID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("query product: %w", err)
	}

	p.Description = description.String
	p.CategoryID = categoryID.String
	return &p, nil
}

func (m *MySQLAdapter) ListProducts(ctx context.Context) ([]domain.Product, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT id, name, description, category_id, price, stock, created_at, updated_at
		FROM products ORDER BY name, id`)
	if err != nil {
		return nil, fmt.Errorf("query products: %w", err)
	}
	defer rows.Close()

	var products []domain.Product
	for rows.Next() {
		var (
			p           domain.Product
			description sql.NullString
			categoryID  sql.NullString
		)
		if err := rows.Scan(&p.ID, &p.Name, &description, &categoryID, &p.Price, &p.Stock, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		p.Description = description.String
		p.CategoryID = categoryID.String
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate products: %w", err)
	}
	return products, nil
}

var _ port.DatabaseRepository = (*MySQLAdapter)(nil)
