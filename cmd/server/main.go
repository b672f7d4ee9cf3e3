package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/redis/go-redis/v9"

	"github.com/hafizdr/stock-ledger/internal/adapter/events"
	"github.com/hafizdr/stock-ledger/internal/adapter/handler"
	"github.com/hafizdr/stock-ledger/internal/adapter/storage"
	"github.com/hafizdr/stock-ledger/internal/config"
	"github.com/hafizdr/stock-ledger/internal/core/service"
)

func main() {
	cfg := config.Load()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize MySQL. Bound lock waits so a blocked SELECT ... FOR UPDATE
	// surfaces as a retryable conflict instead of hanging the request.
	sep := "?"
	if strings.Contains(cfg.MySQLDSN, "?") {
		sep = "&"
	}
	dsn := fmt.Sprintf("%s%sinnodb_lock_wait_timeout=%d", cfg.MySQLDSN, sep, int(cfg.LockTimeout.Seconds()))
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		log.Fatalf("failed to connect mysql: %v", err)
	}
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		log.Fatalf("failed to ping mysql: %v", err)
	}
	log.Println("connected to mysql")

	// Initialize Redis
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		PoolSize: 100,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatalf("failed to connect redis: %v", err)
	}
	log.Println("connected to redis")

	// Initialize adapters
	mysqlAdapter := storage.NewMySQLAdapter(db)
	redisAdapter := storage.NewRedisAdapter(rdb)
	publisher := events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)

	// Initialize ledger
	ledger := service.NewLedgerService(mysqlAdapter, redisAdapter, cfg.QueueSize)

	// Start publisher workers draining committed events to Kafka
	var wg sync.WaitGroup
	for i := 0; i < cfg.WorkerCount; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			publishLoop(id, ledger, publisher)
		}(i)
	}
	log.Printf("started %d publisher workers", cfg.WorkerCount)

	// Initialize HTTP server
	httpHandler := handler.NewHTTPHandler(ledger)
	mux := http.NewServeMux()
	mux.HandleFunc("/health", httpHandler.HealthCheck)
	mux.HandleFunc("/api/transactions", httpHandler.Transactions)
	mux.HandleFunc("/api/products", httpHandler.Products)
	mux.HandleFunc("/api/products/", httpHandler.Product)

	httpServer := &http.Server{
		Addr:    cfg.HTTPPort,
		Handler: mux,
	}

	go func() {
		log.Printf("HTTP server listening on %s", cfg.HTTPPort)
		if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
			log.Printf("HTTP server error: %v", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	httpServer.Shutdown(shutdownCtx)
	log.Println("HTTP server stopped")

	// Close event queue and wait for publisher workers
	ledger.Close()
	wg.Wait()
	log.Println("publisher workers stopped")

	// Close connections
	publisher.Close()
	rdb.Close()
	db.Close()
	log.Println("connections closed")
}

func publishLoop(id int, ledger *service.LedgerService, publisher *events.KafkaPublisher) {
	for event := range ledger.GetEventQueue() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)

		if err := publisher.PublishTransactionCommitted(ctx, event); err != nil {
			// The transaction is already durable; the event is lost, not the write.
			log.Printf("worker %d: failed to publish event for transaction %s: %v", id, event.TransactionID, err)
		}

		cancel()
	}
}
