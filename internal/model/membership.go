package model

import (
	"database/sql"
	"time"
)

const (
	MembershipStatusPending = "pending"
	MembershipStatusActive  = "active"
	MembershipStatusExpired = "expired"
)

// Membership is a single row per user that is mutated in place across
// renewals: EndDate is extended, never duplicated into a second active row.
type Membership struct {
	ID                  string         `json:"id" db:"id"`
	UserID              string         `json:"userId" db:"user_id"`
	Plan                string         `json:"plan" db:"plan"`
	Status              string         `json:"status" db:"status"`
	StartDate           time.Time      `json:"startDate" db:"start_date"`
	EndDate             time.Time      `json:"endDate" db:"end_date"`
	AutoRenew           bool           `json:"autoRenew" db:"auto_renew"`
	PaymentInstrumentID sql.NullString `json:"-" db:"payment_instrument_id"`
	RenewalFailedAt     sql.NullTime   `json:"renewalFailedAt" db:"renewal_failed_at"`
	RenewalAttempts     int            `json:"renewalAttempts" db:"renewal_attempts"`
	RenewalWarningSent  bool           `json:"renewalWarningSent" db:"renewal_warning_sent"`
	Amount              int64          `json:"amount" db:"amount"`
	Currency            string         `json:"currency" db:"currency"`
	CreatedAt           time.Time      `json:"createdAt" db:"created_at"`
	UpdatedAt           time.Time      `json:"updatedAt" db:"updated_at"`
}

// PaymentInstrument is the durable handle used for off-session recurring
// charges. At most one row per user is active.
type PaymentInstrument struct {
	ID           string    `json:"id" db:"id"`
	UserID       string    `json:"userId" db:"user_id"`
	InstrumentID string    `json:"-" db:"instrument_id"`
	CardType     string    `json:"cardType" db:"card_type"`
	Last4        string    `json:"last4" db:"last4"`
	ExpiryMonth  int       `json:"expiryMonth" db:"expiry_month"`
	ExpiryYear   int       `json:"expiryYear" db:"expiry_year"`
	IsActive     bool      `json:"isActive" db:"is_active"`
	CreatedAt    time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt    time.Time `json:"updatedAt" db:"updated_at"`
}

const (
	RenewalStatusSuccess = "success"
	RenewalStatusFailed  = "failed"
)

// RenewalLogEntry is an append-only audit row, one per renewal attempt.
type RenewalLogEntry struct {
	ID           string         `json:"id" db:"id"`
	MembershipID string         `json:"membershipId" db:"membership_id"`
	AttemptDate  time.Time      `json:"attemptDate" db:"attempt_date"`
	Status       string         `json:"status" db:"status"`
	PaymentID    sql.NullString `json:"paymentId" db:"payment_id"`
	ErrorMessage sql.NullString `json:"errorMessage" db:"error_message"`
	Amount       int64          `json:"amount" db:"amount"`
	Currency     string         `json:"currency" db:"currency"`
}
