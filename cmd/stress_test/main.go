package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/shopspring/decimal"

	"github.com/rl1809/storefront/internal/adapter/storage"
	"github.com/rl1809/storefront/internal/core/domain"
	"github.com/rl1809/storefront/internal/core/service"
	"github.com/rl1809/storefront/internal/port"
)

const (
	itemID        = "stress-item"
	initialStock  = 1
	totalRequests = 50
)

// Every customer holds the last unit in their cart and checks out at the
// same time. Exactly one checkout may win and stock must end at zero.
func main() {
	mysqlDSN := flag.String("mysql", "", "MySQL DSN; empty runs against the in-memory store")
	flag.Parse()

	ctx := context.Background()

	var store port.Store
	if *mysqlDSN != "" {
		db, err := sql.Open("mysql", *mysqlDSN)
		if err != nil {
			log.Fatalf("failed to open mysql: %v", err)
		}
		defer db.Close()
		adapter := storage.NewMySQLAdapter(db)
		if err := adapter.Migrate(ctx); err != nil {
			log.Fatalf("failed to migrate: %v", err)
		}
		store = adapter
	} else {
		store = storage.NewMemoryAdapter()
	}

	repos := store.Repositories()

	// Reset test data
	if err := repos.Catalog.SaveItem(ctx, domain.ShopItem{
		ID:             itemID,
		Title:          "Stress Item",
		Price:          decimal.NewFromInt(100),
		AvailableCount: initialStock,
	}); err != nil {
		log.Fatalf("failed to set stock: %v", err)
	}
	for i := 0; i < totalRequests; i++ {
		if err := repos.Customers.SaveCustomer(ctx, domain.Customer{
			ID:    customerID(i),
			Name:  customerID(i),
			Email: customerID(i) + "@example.com",
			Cart:  domain.NewCart(domain.CartLine{ItemID: itemID, Quantity: 1}),
		}); err != nil {
			log.Fatalf("failed to seed customer: %v", err)
		}
	}

	checkout := service.NewCheckoutService(store, storage.NewMemoryCache(), nil, nil, service.CheckoutOptions{})

	var successCount, stockCount, otherCount atomic.Int32
	var wg sync.WaitGroup
	start := time.Now()

	for i := 0; i < totalRequests; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()

			_, err := checkout.Checkout(ctx, customerID(n), "")
			switch {
			case err == nil:
				successCount.Add(1)
			case errors.Is(err, domain.ErrInsufficientStock):
				stockCount.Add(1)
			default:
				otherCount.Add(1)
				log.Printf("customer %d: %v", n, err)
			}
		}(i)
	}

	wg.Wait()
	elapsed := time.Since(start)

	item, err := repos.Catalog.GetItem(ctx, itemID)
	if err != nil || item == nil {
		log.Fatalf("failed to read final stock: %v", err)
	}

	fmt.Println("========== STRESS TEST RESULTS ==========")
	fmt.Printf("Initial Stock:      %d\n", initialStock)
	fmt.Printf("Total Requests:     %d\n", totalRequests)
	fmt.Printf("Successful:         %d\n", successCount.Load())
	fmt.Printf("Insufficient Stock: %d\n", stockCount.Load())
	fmt.Printf("Other Errors:       %d\n", otherCount.Load())
	fmt.Printf("Final Stock:        %d\n", item.AvailableCount)
	fmt.Printf("Duration:           %v\n", elapsed)
	fmt.Println("==========================================")

	if successCount.Load() == initialStock && item.AvailableCount == 0 {
		fmt.Println("PASS: stock never oversold")
	} else {
		fmt.Printf("FAIL: expected %d success and stock 0, got %d and %d\n",
			initialStock, successCount.Load(), item.AvailableCount)
	}
}

func customerID(n int) string {
	return fmt.Sprintf("stress-customer-%d", n)
}

