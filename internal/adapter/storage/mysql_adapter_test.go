package storage

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"testing"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/rl1809/storefront/internal/core/domain"
	"github.com/rl1809/storefront/internal/port"
)

func getMySQLAdapter(t *testing.T) (*MySQLAdapter, *sql.DB) {
	dsn := os.Getenv("MYSQL_DSN")
	if dsn == "" {
		dsn = "root:root@tcp(localhost:3306)/storefront?parseTime=true"
	}

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		t.Skipf("MySQL not available: %v", err)
	}

	if err := db.Ping(); err != nil {
		t.Skipf("MySQL not available: %v", err)
	}

	adapter := NewMySQLAdapter(db)
	if err := adapter.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate failed: %v", err)
	}
	return adapter, db
}

func TestMySQLItem_SaveAndDeduct(t *testing.T) {
	adapter, db := getMySQLAdapter(t)
	defer db.Close()

	ctx := context.Background()
	repos := adapter.Repositories()
	itemID := "mysql-item-" + uuid.NewString()
	defer db.ExecContext(ctx, `DELETE FROM shop_items WHERE id = ?`, itemID)

	err := repos.Catalog.SaveItem(ctx, domain.ShopItem{ID: itemID, Title: "Widget", Price: decimal.RequireFromString("9.99"), AvailableCount: 3})
	if err != nil {
		t.Fatalf("SaveItem failed: %v", err)
	}

	if err := repos.Catalog.DeductStock(ctx, itemID, 2); err != nil {
		t.Fatalf("DeductStock failed: %v", err)
	}
	if err := repos.Catalog.DeductStock(ctx, itemID, 2); !errors.Is(err, port.ErrStockConflict) {
		t.Errorf("expected ErrStockConflict, got: %v", err)
	}

	item, err := repos.Catalog.GetItem(ctx, itemID)
	if err != nil {
		t.Fatalf("GetItem failed: %v", err)
	}
	if item == nil {
		t.Fatal("expected item, got nil")
	}
	if item.AvailableCount != 1 {
		t.Errorf("expected available count 1, got %d", item.AvailableCount)
	}
	if item.Version != 1 {
		t.Errorf("expected version 1, got %d", item.Version)
	}
	if !item.Price.Equal(decimal.RequireFromString("9.99")) {
		t.Errorf("expected price 9.99, got %s", item.Price)
	}
}

func TestMySQLGetItem_NotFound(t *testing.T) {
	adapter, db := getMySQLAdapter(t)
	defer db.Close()

	item, err := adapter.Repositories().Catalog.GetItem(context.Background(), "nonexistent-item")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if item != nil {
		t.Error("expected nil for nonexistent item")
	}
}

func TestMySQLCustomer_CartOrderPreserved(t *testing.T) {
	adapter, db := getMySQLAdapter(t)
	defer db.Close()

	ctx := context.Background()
	repos := adapter.Repositories()
	customerID := "mysql-customer-" + uuid.NewString()
	defer db.ExecContext(ctx, `DELETE FROM customers WHERE id = ?`, customerID)
	defer db.ExecContext(ctx, `DELETE FROM cart_lines WHERE customer_id = ?`, customerID)

	c := domain.Customer{
		ID:    customerID,
		Name:  "Ada",
		Email: "ada@example.com",
		Cart:  domain.NewCart(domain.CartLine{ItemID: "z", Quantity: 1}, domain.CartLine{ItemID: "a", Quantity: 2}),
	}
	if err := repos.Customers.SaveCustomer(ctx, c); err != nil {
		t.Fatalf("SaveCustomer failed: %v", err)
	}

	got, err := repos.Customers.GetCustomer(ctx, customerID)
	if err != nil {
		t.Fatalf("GetCustomer failed: %v", err)
	}
	lines := got.Cart.Lines()
	if len(lines) != 2 || lines[0].ItemID != "z" || lines[1].ItemID != "a" || lines[1].Quantity != 2 {
		t.Errorf("unexpected cart lines: %+v", lines)
	}
}

func TestMySQLAtomically_RollbackAndCommit(t *testing.T) {
	adapter, db := getMySQLAdapter(t)
	defer db.Close()

	ctx := context.Background()
	itemID := "mysql-tx-item-" + uuid.NewString()
	customerID := "mysql-tx-customer-" + uuid.NewString()
	defer db.ExecContext(ctx, `DELETE FROM shop_items WHERE id = ?`, itemID)
	defer db.ExecContext(ctx, `DELETE FROM orders WHERE customer_id = ?`, customerID)

	repos := adapter.Repositories()
	if err := repos.Catalog.SaveItem(ctx, domain.ShopItem{ID: itemID, Title: "Tx", Price: decimal.NewFromInt(5), AvailableCount: 2}); err != nil {
		t.Fatalf("setup failed: %v", err)
	}

	order := domain.Order{
		ID:         uuid.NewString(),
		CustomerID: customerID,
		Items:      []domain.OrderLine{{ItemID: itemID, Quantity: 2}},
		TotalBill:  decimal.NewFromInt(10),
		CreatedAt:  time.Now().UTC(),
	}
	defer db.ExecContext(ctx, `DELETE FROM order_lines WHERE order_id = ?`, order.ID)

	boom := errors.New("boom")
	err := adapter.Atomically(ctx, func(ctx context.Context, r port.Repositories) error {
		if err := r.Catalog.DeductStock(ctx, itemID, 2); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got: %v", err)
	}
	item, _ := repos.Catalog.GetItem(ctx, itemID)
	if item.AvailableCount != 2 {
		t.Errorf("expected rollback to keep stock 2, got %d", item.AvailableCount)
	}

	err = adapter.Atomically(ctx, func(ctx context.Context, r port.Repositories) error {
		if err := r.Catalog.DeductStock(ctx, itemID, 2); err != nil {
			return err
		}
		return r.Orders.CreateOrder(ctx, order)
	})
	if err != nil {
		t.Fatalf("Atomically failed: %v", err)
	}

	orders, err := repos.Orders.ListOrdersByCustomer(ctx, customerID)
	if err != nil {
		t.Fatalf("ListOrdersByCustomer failed: %v", err)
	}
	if len(orders) != 1 || len(orders[0].Items) != 1 || !orders[0].TotalBill.Equal(decimal.NewFromInt(10)) {
		t.Errorf("unexpected orders: %+v", orders)
	}
}
