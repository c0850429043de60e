package model

import "time"

type Event struct {
	ID          string    `json:"id" db:"id"`
	Slug        string    `json:"slug" db:"slug"`
	Title       string    `json:"title" db:"title"`
	Description string    `json:"description" db:"description"`
	StartsAt    time.Time `json:"startsAt" db:"starts_at"`
	PriceAmount int64     `json:"priceAmount" db:"price_amount"`
	Currency    string    `json:"currency" db:"currency"`
	Capacity    int       `json:"capacity" db:"capacity"`
	TicketsSold int       `json:"ticketsSold" db:"tickets_sold"`
	Published   bool      `json:"published" db:"published"`
	CreatedAt   time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt   time.Time `json:"updatedAt" db:"updated_at"`
}

const (
	TicketStatusPending = "pending"
	TicketStatusActive  = "active"
)

type Ticket struct {
	ID        string    `json:"id" db:"id"`
	EventID   string    `json:"eventId" db:"event_id"`
	UserID    string    `json:"userId" db:"user_id"`
	Status    string    `json:"status" db:"status"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}
