package models

import (
	"math"
	"time"
)

// DefaultClientID is used when a chat request carries no client id
const DefaultClientID = "default"

// CatalogItem represents a product in the catalog
type CatalogItem struct {
	ID       string   `json:"id" db:"id"`
	Title    string   `json:"title" db:"title"`
	Price    float64  `json:"price" db:"price"`
	Image    string   `json:"image,omitempty" db:"image"`
	Keywords []string `json:"keywords,omitempty" db:"-"`
}

// PendingOrder is a not yet confirmed item+quantity negotiation for one client
type PendingOrder struct {
	Item      CatalogItem `json:"item"`
	Quantity  int         `json:"quantity"`
	UpdatedAt time.Time   `json:"updatedAt"`
}

// Estimate returns the pending total rounded to cents
func (p PendingOrder) Estimate() float64 {
	return OrderTotal(p.Item.Price, p.Quantity)
}

// OrderRecord represents a placed order. Records are never mutated.
type OrderRecord struct {
	OrderID   string      `json:"orderId" db:"order_id"`
	Item      CatalogItem `json:"item" db:"-"`
	Quantity  int         `json:"quantity" db:"quantity"`
	Total     float64     `json:"total" db:"total"`
	CreatedAt time.Time   `json:"createdAt" db:"created_at"`
}

// OrderTotal computes price*quantity rounded to 2 decimals
func OrderTotal(price float64, quantity int) float64 {
	return math.Round(price*float64(quantity)*100) / 100
}

// NormalizeQuantity clamps a parsed quantity to >= 1
func NormalizeQuantity(q int) int {
	if q < 1 {
		return 1
	}
	return q
}

// Order channels
const (
	OrderChannelChat   = "chat"
	OrderChannelDirect = "direct"
)
