package model

import "time"

type Product struct {
	ID          string    `json:"id" db:"id"`
	Slug        string    `json:"slug" db:"slug"`
	Name        string    `json:"name" db:"name"`
	Description string    `json:"description" db:"description"`
	PriceAmount int64     `json:"priceAmount" db:"price_amount"`
	Currency    string    `json:"currency" db:"currency"`
	Stock       int       `json:"stock" db:"stock"`
	ImageURL    string    `json:"imageUrl" db:"image_url"`
	Active      bool      `json:"active" db:"active"`
	CreatedAt   time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt   time.Time `json:"updatedAt" db:"updated_at"`
}

const (
	OrderStatusPending = "pending"
	OrderStatusPaid    = "PAID"
)

type Order struct {
	ID          string    `json:"id" db:"id"`
	UserID      string    `json:"userId" db:"user_id"`
	OrderRef    string    `json:"orderRef" db:"order_ref"`
	TotalAmount int64     `json:"totalAmount" db:"total_amount"`
	Currency    string    `json:"currency" db:"currency"`
	Status      string    `json:"status" db:"status"`
	CreatedAt   time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt   time.Time `json:"updatedAt" db:"updated_at"`

	Items []OrderItem `json:"items" db:"-"`
}

type OrderItem struct {
	ID         string `json:"id" db:"id"`
	OrderID    string `json:"orderId" db:"order_id"`
	ProductID  string `json:"productId" db:"product_id"`
	Quantity   int    `json:"quantity" db:"quantity"`
	UnitAmount int64  `json:"unitAmount" db:"unit_amount"`
}
