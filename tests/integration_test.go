package tests

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"testing"

	_ "github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/hafizdr/stock-ledger/internal/adapter/storage"
	"github.com/hafizdr/stock-ledger/internal/core/domain"
	"github.com/hafizdr/stock-ledger/internal/core/service"
)

type testEnv struct {
	redis   *redis.Client
	mysql   *sql.DB
	cache   *storage.RedisAdapter
	db      *storage.MySQLAdapter
	cleanup func()
}

func setupTestEnv(t *testing.T) *testEnv {
	redisAddr := os.Getenv("REDIS_ADDR")
	if redisAddr == "" {
		redisAddr = "localhost:6379"
	}

	mysqlDSN := os.Getenv("MYSQL_DSN")
	if mysqlDSN == "" {
		mysqlDSN = "root:root@tcp(localhost:3306)/stockledger?parseTime=true"
	}

	rdb := redis.NewClient(&redis.Options{Addr: redisAddr})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		t.Skipf("Redis not available: %v", err)
	}

	db, err := sql.Open("mysql", mysqlDSN)
	if err != nil {
		t.Skipf("MySQL not available: %v", err)
	}
	if err := db.Ping(); err != nil {
		t.Skipf("MySQL not available: %v", err)
	}

	return &testEnv{
		redis: rdb,
		mysql: db,
		cache: storage.NewRedisAdapter(rdb),
		db:    storage.NewMySQLAdapter(db),
		cleanup: func() {
			rdb.Close()
			db.Close()
		},
	}
}

func (env *testEnv) seedProduct(t *testing.T, ledger *service.LedgerService, name string, stock int) *domain.Product {
	t.Helper()
	p, err := ledger.CreateProduct(context.Background(), &domain.Product{
		Name:  name + "-" + uuid.New().String()[:8],
		Price: decimal.NewFromInt(20),
		Stock: stock,
	})
	if err != nil {
		t.Fatalf("seed product: %v", err)
	}
	t.Cleanup(func() {
		ctx := context.Background()
		env.mysql.ExecContext(ctx, `DELETE FROM transaction_items WHERE product_id = ?`, p.ID)
		env.mysql.ExecContext(ctx, `DELETE FROM transactions WHERE id NOT IN (SELECT DISTINCT transaction_id FROM transaction_items)`)
		env.mysql.ExecContext(ctx, `DELETE FROM products WHERE id = ?`, p.ID)
		env.cache.DeleteStock(ctx, p.ID)
	})
	return p
}

func TestIntegration_ConcurrentStockOut(t *testing.T) {
	env := setupTestEnv(t)
	defer env.cleanup()

	ctx := context.Background()
	initialStock := 10
	totalRequests := 20

	ledger := service.NewLedgerService(env.db, env.cache, 100)
	defer ledger.Close()
	p := env.seedProduct(t, ledger, "integration-item", initialStock)

	var successCount atomic.Int32
	var wg sync.WaitGroup

	for i := 0; i < totalRequests; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := ledger.CreateTransaction(ctx, service.CreateTransactionRequest{
				Type:  domain.TransactionOut,
				Items: []service.ItemRequest{{ProductID: p.ID, Qty: 1}},
			})
			if err == nil {
				successCount.Add(1)
			}
		}()
	}
	wg.Wait()

	if successCount.Load() != int32(initialStock) {
		t.Errorf("expected %d successful transactions, got %d", initialStock, successCount.Load())
	}

	// Verify MySQL stock
	var mysqlStock int
	env.mysql.QueryRowContext(ctx, `SELECT stock FROM products WHERE id = ?`, p.ID).Scan(&mysqlStock)
	if mysqlStock != 0 {
		t.Errorf("expected MySQL stock 0, got %d", mysqlStock)
	}

	// Verify committed item rows match the successes
	var itemCount int
	env.mysql.QueryRowContext(ctx, `SELECT COUNT(*) FROM transaction_items WHERE product_id = ?`, p.ID).Scan(&itemCount)
	if itemCount != initialStock {
		t.Errorf("expected %d item rows, got %d", initialStock, itemCount)
	}

	// Verify Redis cache mirrors the final value
	cached, ok, err := env.cache.GetStock(ctx, p.ID)
	if err != nil {
		t.Fatalf("cache read: %v", err)
	}
	if !ok || cached != 0 {
		t.Errorf("expected cached stock 0, got %d (ok=%v)", cached, ok)
	}
}

func TestIntegration_MultiItemRollback(t *testing.T) {
	env := setupTestEnv(t)
	defer env.cleanup()

	ctx := context.Background()
	ledger := service.NewLedgerService(env.db, env.cache, 100)
	defer ledger.Close()

	a := env.seedProduct(t, ledger, "rollback-a", 100)
	b := env.seedProduct(t, ledger, "rollback-b", 10)

	_, err := ledger.CreateTransaction(ctx, service.CreateTransactionRequest{
		Type: domain.TransactionOut,
		Items: []service.ItemRequest{
			{ProductID: a.ID, Qty: 5},
			{ProductID: b.ID, Qty: 999999},
		},
	})

	var stockErr *domain.InsufficientStockError
	if !errors.As(err, &stockErr) {
		t.Fatalf("expected InsufficientStockError, got: %v", err)
	}

	var stockA, stockB int
	env.mysql.QueryRowContext(ctx, `SELECT stock FROM products WHERE id = ?`, a.ID).Scan(&stockA)
	env.mysql.QueryRowContext(ctx, `SELECT stock FROM products WHERE id = ?`, b.ID).Scan(&stockB)
	if stockA != 100 {
		t.Errorf("expected product A stock unchanged at 100, got %d", stockA)
	}
	if stockB != 10 {
		t.Errorf("expected product B stock unchanged at 10, got %d", stockB)
	}

	var itemCount int
	env.mysql.QueryRowContext(ctx, `SELECT COUNT(*) FROM transaction_items WHERE product_id IN (?, ?)`, a.ID, b.ID).Scan(&itemCount)
	if itemCount != 0 {
		t.Errorf("expected no item rows, got %d", itemCount)
	}
}

func TestIntegration_ReadYourWrite(t *testing.T) {
	env := setupTestEnv(t)
	defer env.cleanup()

	ctx := context.Background()
	ledger := service.NewLedgerService(env.db, env.cache, 100)
	defer ledger.Close()

	p := env.seedProduct(t, ledger, "ryw-item", 10)

	txn, err := ledger.CreateTransaction(ctx, service.CreateTransactionRequest{
		Type:    domain.TransactionOut,
		Note:    "integration",
		ActorID: uuid.New().String(),
		Items:   []service.ItemRequest{{ProductID: p.ID, Qty: 4}},
	})
	if err != nil {
		t.Fatalf("create transaction: %v", err)
	}

	if len(txn.Items) != 1 {
		t.Fatalf("expected 1 item populated, got %d", len(txn.Items))
	}
	if txn.Items[0].ProductName != p.Name {
		t.Errorf("expected product name %q, got %q", p.Name, txn.Items[0].ProductName)
	}
	if !txn.Items[0].Price.Equal(p.Price) {
		t.Errorf("expected price snapshot %s, got %s", p.Price, txn.Items[0].Price)
	}

	// The committed transaction appears in the listing with the same items.
	txns, err := ledger.ListTransactions(ctx)
	if err != nil {
		t.Fatalf("list transactions: %v", err)
	}
	found := false
	for _, listed := range txns {
		if listed.ID == txn.ID {
			found = true
			if len(listed.Items) != 1 || listed.Items[0].Qty != 4 {
				t.Errorf("unexpected listed items: %+v", listed.Items)
			}
		}
	}
	if !found {
		t.Error("committed transaction not present in listing")
	}

	// Stock read goes through the refreshed cache.
	stock, err := ledger.GetProductStock(ctx, p.ID)
	if err != nil {
		t.Fatalf("get product stock: %v", err)
	}
	if stock != 6 {
		t.Errorf("expected stock 6, got %d", stock)
	}
}

func TestIntegration_CallerItemOrderPreserved(t *testing.T) {
	env := setupTestEnv(t)
	defer env.cleanup()

	ctx := context.Background()
	ledger := service.NewLedgerService(env.db, env.cache, 100)
	defer ledger.Close()

	a := env.seedProduct(t, ledger, "order-a", 50)
	b := env.seedProduct(t, ledger, "order-b", 50)

	// Submit items in descending id order; locks canonicalize but the
	// record must keep the caller's order.
	first, second := a, b
	if first.ID < second.ID {
		first, second = second, first
	}

	txn, err := ledger.CreateTransaction(ctx, service.CreateTransactionRequest{
		Type: domain.TransactionOut,
		Items: []service.ItemRequest{
			{ProductID: first.ID, Qty: 1},
			{ProductID: second.ID, Qty: 2},
		},
	})
	if err != nil {
		t.Fatalf("create transaction: %v", err)
	}

	if len(txn.Items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(txn.Items))
	}
	if txn.Items[0].ProductID != first.ID || txn.Items[1].ProductID != second.ID {
		t.Errorf("caller item order not preserved: %+v", txn.Items)
	}
}
