package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/rl1809/correlator/internal/adapter/analytics"
	"github.com/rl1809/correlator/internal/adapter/storage"
	"github.com/rl1809/correlator/internal/core/domain"
	"github.com/rl1809/correlator/internal/core/service"
)

const keyPrefix = "correlator:stress:"

func main() {
	redisAddr := flag.String("redis", "localhost:6379", "redis address")
	totalProducers := flag.Int("n", 50, "concurrent product batches")
	flag.Parse()

	ctx := context.Background()

	// Initialize Redis
	rdb := redis.NewClient(&redis.Options{Addr: *redisAddr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatalf("failed to connect redis: %v", err)
	}
	defer rdb.Close()

	// Clear previous test data
	redisAdapter := storage.NewRedisAdapter(rdb, keyPrefix)
	if err := redisAdapter.ClearBoth(ctx); err != nil {
		log.Fatalf("failed to clear buffer: %v", err)
	}

	// In-process analytics sink counting accepted batches
	var batches, records atomic.Int32
	sink := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/auth/token":
			json.NewEncoder(w).Encode(map[string]any{"access_token": "stress", "token_type": "Bearer", "expires_in": 3600})
		case "/analytics/api/data":
			var body struct {
				Data []json.RawMessage `json:"data"`
			}
			json.NewDecoder(r.Body).Decode(&body)
			batches.Add(1)
			records.Add(int32(len(body.Data)))
			w.WriteHeader(http.StatusAccepted)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer sink.Close()

	client, err := analytics.NewClient(zap.NewNop(), analytics.Config{BaseURL: sink.URL})
	if err != nil {
		log.Fatalf("failed to create analytics client: %v", err)
	}
	correlationService := service.NewCorrelationService(redisAdapter, client, nil, service.Options{}, zap.NewNop())

	// Spawn concurrent arrivals
	var wg sync.WaitGroup
	var errCount atomic.Int32
	start := time.Now()

	for i := 0; i < *totalProducers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			products := []domain.Product{{
				ProductID:  fmt.Sprintf("P%d", n),
				CustomerID: "C1",
				Name:       "Widget",
				Price:      domain.MustMoney("1.00"),
			}}
			if err := correlationService.AddProducts(ctx, products); err != nil {
				errCount.Add(1)
			}
		}(i)
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		customers := []domain.Customer{{CustomerID: "C1", FirstName: "Ann", LastName: "Lee"}}
		if err := correlationService.AddCustomers(ctx, customers); err != nil {
			errCount.Add(1)
		}
	}()

	wg.Wait()
	elapsed := time.Since(start)

	// Results
	delivered := batches.Load()
	pending, _ := correlationService.Buffered(ctx)

	fmt.Println("========== STRESS TEST RESULTS ==========")
	fmt.Printf("Product batches:  %d\n", *totalProducers)
	fmt.Printf("Customer batches: 1\n")
	fmt.Printf("Errors:           %d\n", errCount.Load())
	fmt.Printf("Delivered:        %d batch(es), %d record(s)\n", delivered, records.Load())
	fmt.Printf("Duration:         %v\n", elapsed)
	fmt.Println("==========================================")

	// Assertions
	if delivered == 1 {
		fmt.Println("PASS: exactly one batch delivered")
	} else {
		fmt.Printf("FAIL: expected 1 delivered batch, got %d\n", delivered)
	}

	if pending.Customers == nil {
		fmt.Println("PASS: customers consumed by the attempt")
	} else {
		fmt.Println("FAIL: customers still buffered")
	}

	redisAdapter.ClearBoth(ctx)
}
