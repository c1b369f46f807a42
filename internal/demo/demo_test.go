package demo

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"reflect"
	"testing"
)

func TestGeneratorDeterministicForSeed(t *testing.T) {
	g1 := NewGenerator(42)
	g2 := NewGenerator(42)
	for i := 0; i < 20; i++ {
		o1, o2 := g1.NextOrder(), g2.NextOrder()
		if !reflect.DeepEqual(o1, o2) {
			t.Fatalf("order %d differs: %#v vs %#v", i, o1, o2)
		}
	}
}

func TestGeneratorOrdersAreConsistent(t *testing.T) {
	g := NewGenerator(7)
	prevDate := ""
	for i := 1; i <= 200; i++ {
		o := g.NextOrder()
		if o.ID != i {
			t.Fatalf("ID = %d, want %d", o.ID, i)
		}
		if o.OrderDate < prevDate {
			t.Fatalf("order date went backwards: %s < %s", o.OrderDate, prevDate)
		}
		prevDate = o.OrderDate
		price := products[o.ProductID-1].Price
		if o.TotalAmount != round2(price*float64(o.Quantity)) {
			t.Fatalf("order %d total = %v for %d x %v", i, o.TotalAmount, o.Quantity, price)
		}
	}
}

func TestCreateWritesBatches(t *testing.T) {
	path := filepath.Join(t.TempDir(), "demo.db")
	stats, err := Create(context.Background(), path, Options{Orders: 25, Seed: 1, BatchSize: 10})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if stats.Orders != 25 || stats.Customers != 5 || stats.Products != 5 {
		t.Fatalf("stats = %+v", stats)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer func() { _ = db.Close() }()
	var count int
	if err := db.QueryRow(`SELECT count(*) FROM orders`).Scan(&count); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 25 {
		t.Fatalf("orders = %d, want 25", count)
	}
}

func TestCreateRefusesExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "demo.db")
	if _, err := Create(context.Background(), path, Options{}); err != nil {
		t.Fatalf("first Create() error = %v", err)
	}
	if _, err := Create(context.Background(), path, Options{}); !errors.Is(err, ErrExists) {
		t.Fatalf("second Create() error = %v, want ErrExists", err)
	}
	stats, err := Create(context.Background(), path, Options{Orders: 3, Overwrite: true})
	if err != nil || stats.Orders != 3 {
		t.Fatalf("Create(overwrite) = %+v, %v", stats, err)
	}
}
