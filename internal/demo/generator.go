package demo

import (
	"math"
	"math/rand"
	"time"
)

type Customer struct {
	ID        int
	Name      string
	Email     string
	Country   string
	CreatedAt string
}

type Product struct {
	ID       int
	Name     string
	Category string
	Price    float64
	Stock    int
}

type Order struct {
	ID          int
	CustomerID  int
	ProductID   int
	Quantity    int
	TotalAmount float64
	OrderDate   string
}

var customers = []Customer{
	{1, "John Doe", "john@example.com", "USA", "2024-01-15"},
	{2, "Jane Smith", "jane@example.com", "UK", "2024-02-20"},
	{3, "Bob Johnson", "bob@example.com", "Canada", "2024-03-10"},
	{4, "Alice Williams", "alice@example.com", "USA", "2024-04-05"},
	{5, "Charlie Brown", "charlie@example.com", "Australia", "2024-05-12"},
}

var products = []Product{
	{1, "Laptop", "Electronics", 999.99, 50},
	{2, "Mouse", "Electronics", 29.99, 200},
	{3, "Keyboard", "Electronics", 79.99, 150},
	{4, "Monitor", "Electronics", 299.99, 75},
	{5, "Desk Chair", "Furniture", 199.99, 30},
}

// Generator produces a deterministic order stream for a seed. Order dates
// start at the base date and advance by at most two days per order.
type Generator struct {
	rnd      *rand.Rand
	sequence int
	day      time.Time
}

func NewGenerator(seed int64) *Generator {
	return &Generator{
		rnd: rand.New(rand.NewSource(seed)),
		day: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
	}
}

func (g *Generator) NextOrder() Order {
	g.sequence++
	product := g.pickProduct()
	quantity := g.pickQuantity(product)
	order := Order{
		ID:          g.sequence,
		CustomerID:  customers[g.rnd.Intn(len(customers))].ID,
		ProductID:   product.ID,
		Quantity:    quantity,
		TotalAmount: round2(product.Price * float64(quantity)),
		OrderDate:   g.day.Format("2006-01-02"),
	}
	g.day = g.day.AddDate(0, 0, g.rnd.Intn(3))
	return order
}

// pickProduct favours cheap accessories over laptops and furniture.
func (g *Generator) pickProduct() Product {
	p := g.rnd.Intn(100)
	switch {
	case p < 35:
		return products[1]
	case p < 60:
		return products[2]
	case p < 78:
		return products[3]
	case p < 90:
		return products[0]
	default:
		return products[4]
	}
}

func (g *Generator) pickQuantity(product Product) int {
	if product.Price > 250 {
		return 1 + g.rnd.Intn(2)
	}
	return 1 + g.rnd.Intn(5)
}

func round2(value float64) float64 {
	return math.Round(value*100) / 100
}
