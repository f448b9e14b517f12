package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rl1809/storefront/internal/core/domain"
	"github.com/rl1809/storefront/internal/port"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS shop_items (
		id VARCHAR(64) NOT NULL PRIMARY KEY,
		title VARCHAR(255) NOT NULL,
		price DECIMAL(12,2) NOT NULL,
		available_count INT NOT NULL,
		version INT NOT NULL DEFAULT 0,
		created_at DATETIME(6) NOT NULL,
		updated_at DATETIME(6) NOT NULL,
		CONSTRAINT chk_available_count CHECK (available_count >= 0)
	)`,
	`CREATE TABLE IF NOT EXISTS customers (
		id VARCHAR(64) NOT NULL PRIMARY KEY,
		name VARCHAR(255) NOT NULL,
		email VARCHAR(255) NOT NULL,
		phone VARCHAR(64) NOT NULL DEFAULT '',
		address VARCHAR(512) NOT NULL DEFAULT '',
		created_at DATETIME(6) NOT NULL,
		updated_at DATETIME(6) NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS cart_lines (
		customer_id VARCHAR(64) NOT NULL,
		item_id VARCHAR(64) NOT NULL,
		quantity INT NOT NULL,
		position INT NOT NULL,
		PRIMARY KEY (customer_id, item_id)
	)`,
	`CREATE TABLE IF NOT EXISTS orders (
		id VARCHAR(64) NOT NULL PRIMARY KEY,
		customer_id VARCHAR(64) NOT NULL,
		total_bill DECIMAL(14,2) NOT NULL,
		created_at DATETIME(6) NOT NULL,
		INDEX idx_orders_customer (customer_id, created_at)
	)`,
	`CREATE TABLE IF NOT EXISTS order_lines (
		order_id VARCHAR(64) NOT NULL,
		position INT NOT NULL,
		item_id VARCHAR(64) NOT NULL,
		quantity INT NOT NULL,
		PRIMARY KEY (order_id, position)
	)`,
}

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type MySQLAdapter struct {
	db *sql.DB
}

func NewMySQLAdapter(db *sql.DB) *MySQLAdapter {
	return &MySQLAdapter{db: db}
}

// Migrate creates the tables if they do not exist yet.
func (m *MySQLAdapter) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := m.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

func (m *MySQLAdapter) Repositories() port.Repositories {
	r := &mysqlRepos{db: m.db}
	return port.Repositories{Catalog: r, Customers: r, Orders: r}
}

// Atomically runs fn in one transaction. Item and customer rows read inside
// it are locked with SELECT ... FOR UPDATE until commit.
func (m *MySQLAdapter) Atomically(ctx context.Context, fn func(ctx context.Context, repos port.Repositories) error) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	r := &mysqlRepos{db: m.db, tx: tx}
	if err := fn(ctx, port.Repositories{Catalog: r, Customers: r, Orders: r}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// mysqlRepos implements the repositories either on the pool or bound to a
// transaction.
type mysqlRepos struct {
	db *sql.DB
	tx *sql.Tx
}

func (r *mysqlRepos) q() querier {
	if r.tx != nil {
		return r.tx
	}
	return r.db
}

func (r *mysqlRepos) lockClause() string {
	if r.tx != nil {
		return " FOR UPDATE"
	}
	return ""
}

// inTx runs multi-statement writes in the bound transaction, or in a short
// one of its own.
func (r *mysqlRepos) inTx(ctx context.Context, fn func(q querier) error) error {
	if r.tx != nil {
		return fn(r.tx)
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func (r *mysqlRepos) GetItem(ctx context.Context, itemID string) (*domain.ShopItem, error) {
	var item domain.ShopItem
	err := r.q().QueryRowContext(ctx, `
		SELECT id, title, price, available_count, version, created_at, updated_at
		FROM shop_items WHERE id = ?`+r.lockClause(), itemID,
	).Scan(&item.ID, &item.Title, &item.Price, &item.AvailableCount, &item.Version, &item.CreatedAt, &item.UpdatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query shop item: %w", err)
	}
	return &item, nil
}

func (r *mysqlRepos) ListItems(ctx context.Context) ([]domain.ShopItem, error) {
	rows, err := r.q().QueryContext(ctx, `
		SELECT id, title, price, available_count, version, created_at, updated_at
		FROM shop_items ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query shop items: %w", err)
	}
	defer rows.Close()

	var items []domain.ShopItem
	for rows.Next() {
		var item domain.ShopItem
		if err := rows.Scan(&item.ID, &item.Title, &item.Price, &item.AvailableCount, &item.Version, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan shop item: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (r *mysqlRepos) SaveItem(ctx context.Context, item domain.ShopItem) error {
	now := time.Now().UTC()
	if item.CreatedAt.IsZero() {
		item.CreatedAt = now
	}
	_, err := r.q().ExecContext(ctx, `
		INSERT INTO shop_items (id, title, price, available_count, version, created_at, updated_at)
		VALUES (?, ?, ?, ?, 0, ?, ?)
		ON DUPLICATE KEY UPDATE
			title = VALUES(title), price = VALUES(price), available_count = VALUES(available_count),
			version = version + 1, updated_at = VALUES(updated_at)`,
		item.ID, item.Title, item.Price, item.AvailableCount, item.CreatedAt, now,
	)
	if err != nil {
		return fmt.Errorf("upsert shop item: %w", err)
	}
	return nil
}

func (r *mysqlRepos) DeductStock(ctx context.Context, itemID string, quantity int) error {
	result, err := r.q().ExecContext(ctx, `
		UPDATE shop_items
		SET available_count = available_count - ?, version = version + 1, updated_at = NOW(6)
		WHERE id = ? AND available_count >= ?`,
		quantity, itemID, quantity,
	)
	if err != nil {
		return fmt.Errorf("update shop item: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return port.ErrStockConflict
	}
	return nil
}

func (r *mysqlRepos) GetCustomer(ctx context.Context, customerID string) (*domain.Customer, error) {
	var c domain.Customer
	err := r.q().QueryRowContext(ctx, `
		SELECT id, name, email, phone, address, created_at, updated_at
		FROM customers WHERE id = ?`+r.lockClause(), customerID,
	).Scan(&c.ID, &c.Name, &c.Email, &c.Phone, &c.Address, &c.CreatedAt, &c.UpdatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query customer: %w", err)
	}

	rows, err := r.q().QueryContext(ctx, `
		SELECT item_id, quantity FROM cart_lines
		WHERE customer_id = ? ORDER BY position`, customerID)
	if err != nil {
		return nil, fmt.Errorf("query cart lines: %w", err)
	}
	defer rows.Close()

	var lines []domain.CartLine
	for rows.Next() {
		var l domain.CartLine
		if err := rows.Scan(&l.ItemID, &l.Quantity); err != nil {
			return nil, fmt.Errorf("scan cart line: %w", err)
		}
		lines = append(lines, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read cart lines: %w", err)
	}
	c.Cart = domain.NewCart(lines...)
	return &c, nil
}

func (r *mysqlRepos) SaveCustomer(ctx context.Context, c domain.Customer) error {
	now := time.Now().UTC()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = now
	}
	return r.inTx(ctx, func(q querier) error {
		_, err := q.ExecContext(ctx, `
			INSERT INTO customers (id, name, email, phone, address, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON DUPLICATE KEY UPDATE
				name = VALUES(name), email = VALUES(email), phone = VALUES(phone),
				address = VALUES(address), updated_at = VALUES(updated_at)`,
			c.ID, c.Name, c.Email, c.Phone, c.Address, c.CreatedAt, c.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("upsert customer: %w", err)
		}

		if _, err := q.ExecContext(ctx, `DELETE FROM cart_lines WHERE customer_id = ?`, c.ID); err != nil {
			return fmt.Errorf("delete cart lines: %w", err)
		}
		for i, l := range c.Cart.Lines() {
			_, err := q.ExecContext(ctx, `
				INSERT INTO cart_lines (customer_id, item_id, quantity, position)
				VALUES (?, ?, ?, ?)`,
				c.ID, l.ItemID, l.Quantity, i,
			)
			if err != nil {
				return fmt.Errorf("insert cart line: %w", err)
			}
		}
		return nil
	})
}

func (r *mysqlRepos) CreateOrder(ctx context.Context, order domain.Order) error {
	return r.inTx(ctx, func(q querier) error {
		_, err := q.ExecContext(ctx, `
			INSERT INTO orders (id, customer_id, total_bill, created_at)
			VALUES (?, ?, ?, ?)`,
			order.ID, order.CustomerID, order.TotalBill, order.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert order: %w", err)
		}
		for i, l := range order.Items {
			_, err := q.ExecContext(ctx, `
				INSERT INTO order_lines (order_id, position, item_id, quantity)
				VALUES (?, ?, ?, ?)`,
				order.ID, i, l.ItemID, l.Quantity,
			)
			if err != nil {
				return fmt.Errorf("insert order line: %w", err)
			}
		}
		return nil
	})
}

func (r *mysqlRepos) ListOrdersByCustomer(ctx context.Context, customerID string) ([]domain.Order, error) {
	rows, err := r.q().QueryContext(ctx, `
		SELECT o.id, o.customer_id, o.total_bill, o.created_at, l.item_id, l.quantity
		FROM orders o
		LEFT JOIN order_lines l ON l.order_id = o.id
		WHERE o.customer_id = ?
		ORDER BY o.created_at, o.id, l.position`, customerID)
	if err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}
	defer rows.Close()

	var orders []domain.Order
	for rows.Next() {
		var (
			o        domain.Order
			itemID   sql.NullString
			quantity sql.NullInt64
		)
		if err := rows.Scan(&o.ID, &o.CustomerID, &o.TotalBill, &o.CreatedAt, &itemID, &quantity); err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		if n := len(orders); n == 0 || orders[n-1].ID != o.ID {
			orders = append(orders, o)
		}
		if itemID.Valid {
			last := &orders[len(orders)-1]
			last.Items = append(last.Items, domain.OrderLine{ItemID: itemID.String, Quantity: int(quantity.Int64)})
		}
	}
	return orders, rows.Err()
}
