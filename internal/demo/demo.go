// Package demo builds a small SQLite shop database (customers, products and
// orders) for trying out questions without a real database.
package demo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"

	_ "modernc.org/sqlite"

	"github.com/myquery/myquery/internal/observability"
)

var ErrExists = errors.New("demo database already exists")

const schemaDDL = `
CREATE TABLE customers (
	id INTEGER PRIMARY KEY,
	name TEXT NOT NULL,
	email TEXT UNIQUE,
	country TEXT,
	created_at TEXT
);
CREATE TABLE products (
	id INTEGER PRIMARY KEY,
	name TEXT NOT NULL,
	category TEXT,
	price REAL,
	stock INTEGER
);
CREATE TABLE orders (
	id INTEGER PRIMARY KEY,
	customer_id INTEGER REFERENCES customers(id),
	product_id INTEGER REFERENCES products(id),
	quantity INTEGER,
	total_amount REAL,
	order_date TEXT
);`

type Options struct {
	Orders    int
	Seed      int64
	BatchSize int
	// Overwrite replaces an existing file instead of failing with ErrExists.
	Overwrite bool
	Logger    *slog.Logger
}

type Stats struct {
	Path      string `json:"path"`
	Customers int    `json:"customers"`
	Products  int    `json:"products"`
	Orders    int    `json:"orders"`
}

// Create writes the demo database to path.
func Create(ctx context.Context, path string, opts Options) (Stats, error) {
	if opts.Orders <= 0 {
		opts.Orders = 8
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 100
	}
	if opts.Logger == nil {
		opts.Logger = observability.NopLogger()
	}

	if _, err := os.Stat(path); err == nil {
		if !opts.Overwrite {
			return Stats{}, fmt.Errorf("%w: %s", ErrExists, path)
		}
		if err := os.Remove(path); err != nil {
			return Stats{}, err
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return Stats{}, fmt.Errorf("open demo database: %w", err)
	}
	defer func() { _ = db.Close() }()

	if _, err := db.ExecContext(ctx, schemaDDL); err != nil {
		return Stats{}, fmt.Errorf("create demo tables: %w", err)
	}
	if err := insertFixtures(ctx, db); err != nil {
		return Stats{}, err
	}

	gen := NewGenerator(opts.Seed)
	written := 0
	for written < opts.Orders {
		n := min(opts.BatchSize, opts.Orders-written)
		batch := make([]Order, 0, n)
		for i := 0; i < n; i++ {
			batch = append(batch, gen.NextOrder())
		}
		if err := insertOrders(ctx, db, batch); err != nil {
			return Stats{}, err
		}
		written += n
		opts.Logger.Debug("demo_batch_written", slog.Int("batch_size", n), slog.Int("total", written))
	}

	stats := Stats{Path: path, Customers: len(customers), Products: len(products), Orders: written}
	opts.Logger.Info("demo_database_created", slog.String("path", path), slog.Int("orders", written))
	return stats, nil
}

func insertFixtures(ctx context.Context, db *sql.DB) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	for _, c := range customers {
		if _, err := tx.ExecContext(ctx, `INSERT INTO customers VALUES (?, ?, ?, ?, ?)`, c.ID, c.Name, c.Email, c.Country, c.CreatedAt); err != nil {
			return fmt.Errorf("insert customer %d: %w", c.ID, err)
		}
	}
	for _, p := range products {
		if _, err := tx.ExecContext(ctx, `INSERT INTO products VALUES (?, ?, ?, ?, ?)`, p.ID, p.Name, p.Category, p.Price, p.Stock); err != nil {
			return fmt.Errorf("insert product %d: %w", p.ID, err)
		}
	}
	return tx.Commit()
}

func insertOrders(ctx context.Context, db *sql.DB, batch []Order) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO orders VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer func() { _ = stmt.Close() }()
	for _, o := range batch {
		if _, err := stmt.ExecContext(ctx, o.ID, o.CustomerID, o.ProductID, o.Quantity, o.TotalAmount, o.OrderDate); err != nil {
			return fmt.Errorf("insert order %d: %w", o.ID, err)
		}
	}
	return tx.Commit()
}
