package main

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"github.com/hafizdr/stock-ledger/internal/adapter/storage"
	"github.com/hafizdr/stock-ledger/internal/core/domain"
	"github.com/hafizdr/stock-ledger/internal/core/service"
)

const (
	initialStock  = 20
	totalRequests = 50
	queueSize     = 100
)

func main() {
	ctx := context.Background()

	repo := storage.NewMemoryAdapter(3 * time.Second)
	ledger := service.NewLedgerService(repo, nil, queueSize)
	defer ledger.Close()

	// Drain the committed-event queue in background
	go func() {
		for range ledger.GetEventQueue() {
		}
	}()

	product, err := ledger.CreateProduct(ctx, &domain.Product{
		Name:  "stress-test-product",
		Price: decimal.NewFromInt(10),
		Stock: initialStock,
	})
	if err != nil {
		log.Fatalf("failed to create product: %v", err)
	}

	// Counters
	var successCount atomic.Int32
	var failCount atomic.Int32

	// Spawn concurrent stock-out requests
	var wg sync.WaitGroup
	start := time.Now()

	for i := 0; i < totalRequests; i++ {
		wg.Add(1)
		go func(actorID int) {
			defer wg.Done()

			_, err := ledger.CreateTransaction(ctx, service.CreateTransactionRequest{
				Type:    domain.TransactionOut,
				ActorID: fmt.Sprintf("actor-%d", actorID),
				Items:   []service.ItemRequest{{ProductID: product.ID, Qty: 1}},
			})
			if err == nil {
				successCount.Add(1)
			} else {
				failCount.Add(1)
			}
		}(i)
	}

	wg.Wait()
	elapsed := time.Since(start)

	// Results
	success := successCount.Load()
	fail := failCount.Load()

	fmt.Println("========== STRESS TEST RESULTS ==========")
	fmt.Printf("Initial Stock:    %d\n", initialStock)
	fmt.Printf("Total Requests:   %d\n", totalRequests)
	fmt.Printf("Successful:       %d\n", success)
	fmt.Printf("Failed:           %d\n", fail)
	fmt.Printf("Duration:         %v\n", elapsed)
	fmt.Println("==========================================")

	// Assertions
	if success == int32(initialStock) && fail == int32(totalRequests-initialStock) {
		fmt.Printf("PASS: Exactly %d transactions succeeded, %d failed\n", initialStock, totalRequests-initialStock)
	} else {
		fmt.Printf("FAIL: Expected %d success/%d fail, got %d/%d\n",
			initialStock, totalRequests-initialStock, success, fail)
	}

	// Verify final stock
	final, err := ledger.GetProduct(ctx, product.ID)
	if err != nil {
		log.Fatalf("failed to reload product: %v", err)
	}
	fmt.Printf("Final Stock: %d\n", final.Stock)

	if final.Stock == 0 {
		fmt.Println("PASS: Stock depleted to 0")
	} else {
		fmt.Printf("FAIL: Expected stock 0, got %d\n", final.Stock)
	}
}
