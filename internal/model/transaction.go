package model

import (
	"database/sql"
	"time"
)

const (
	TransactionTypeMembership = "membership"
	TransactionTypeTicket     = "ticket"
	TransactionTypeRenewal    = "renewal"
	TransactionTypeOrder      = "order"
)

const (
	PaymentStatusPending = "pending"
	PaymentStatusPaid    = "PAID"
)

// Transaction ties a local purchase to a SumUp checkout session. OrderRef is
// the client-visible idempotency anchor used to poll confirmation status;
// IdempotencyKey deduplicates retried checkout-creation requests.
type Transaction struct {
	ID             string         `json:"id" db:"id"`
	Type           string         `json:"type" db:"type"`
	ReferenceID    string         `json:"referenceId" db:"reference_id"`
	UserID         string         `json:"userId" db:"user_id"`
	Email          string         `json:"email" db:"email"`
	Name           string         `json:"name" db:"name"`
	OrderRef       string         `json:"orderRef" db:"order_ref"`
	CheckoutID     sql.NullString `json:"checkoutId" db:"checkout_id"`
	PaymentID      sql.NullString `json:"paymentId" db:"payment_id"`
	Plan           string         `json:"plan,omitempty" db:"plan"`
	Amount         int64          `json:"amount" db:"amount"`
	Currency       string         `json:"currency" db:"currency"`
	PaymentStatus  string         `json:"paymentStatus" db:"payment_status"`
	IdempotencyKey sql.NullString `json:"-" db:"idempotency_key"`
	ConsentAt      time.Time      `json:"consentAt" db:"consent_at"`
	CreatedAt      time.Time      `json:"createdAt" db:"created_at"`
	UpdatedAt      time.Time      `json:"updatedAt" db:"updated_at"`
}
