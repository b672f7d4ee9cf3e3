package storage

import (
	"context"
	"os"
	"testing"

	"github.com/redis/go-redis/v9"
)

func getRedisClient(t *testing.T) *redis.Client {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}

	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(context.Background()).Err(); err != nil {
		t.Skipf("Redis not available: %v", err)
	}
	return client
}

func TestSetAndGetStock(t *testing.T) {
	client := getRedisClient(t)
	defer client.Close()

	ctx := context.Background()
	adapter := NewRedisAdapter(client)

	client.Del(ctx, "stock:test-product")
	if err := adapter.SetStock(ctx, "test-product", 10); err != nil {
		t.Fatalf("set stock: %v", err)
	}

	stock, ok, err := adapter.GetStock(ctx, "test-product")
	if err != nil {
		t.Fatalf("get stock: %v", err)
	}
	if !ok {
		t.Fatal("expected a cache hit")
	}
	if stock != 10 {
		t.Errorf("expected stock 10, got %d", stock)
	}
}

func TestGetStock_Miss(t *testing.T) {
	client := getRedisClient(t)
	defer client.Close()

	ctx := context.Background()
	adapter := NewRedisAdapter(client)

	client.Del(ctx, "stock:nonexistent")

	_, ok, err := adapter.GetStock(ctx, "nonexistent")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Error("expected a cache miss")
	}
}

func TestSetStock_Overwrite(t *testing.T) {
	client := getRedisClient(t)
	defer client.Close()

	ctx := context.Background()
	adapter := NewRedisAdapter(client)

	client.Del(ctx, "stock:test-product")
	adapter.SetStock(ctx, "test-product", 10)
	adapter.SetStock(ctx, "test-product", 7)

	stock, ok, _ := adapter.GetStock(ctx, "test-product")
	if !ok || stock != 7 {
		t.Errorf("expected stock 7, got %d (ok=%v)", stock, ok)
	}
}

func TestDeleteStock(t *testing.T) {
	client := getRedisClient(t)
	defer client.Close()

	ctx := context.Background()
	adapter := NewRedisAdapter(client)

	adapter.SetStock(ctx, "test-product", 3)
	if err := adapter.DeleteStock(ctx, "test-product"); err != nil {
		t.Fatalf("delete stock: %v", err)
	}

	_, ok, _ := adapter.GetStock(ctx, "test-product")
	if ok {
		t.Error("expected a cache miss after delete")
	}
}
