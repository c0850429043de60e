package model

import (
	"database/sql"
	"time"
)

// User is created lazily on first checkout and never deleted. Emails are
// stored lower-cased and unique.
type User struct {
	ID              string         `json:"id" db:"id"`
	Email           string         `json:"email" db:"email"`
	Name            string         `json:"name" db:"name"`
	SumUpCustomerID sql.NullString `json:"-" db:"sumup_customer_id"`
	MarketingOptIn  bool           `json:"marketingOptIn" db:"marketing_opt_in"`
	CreatedAt       time.Time      `json:"createdAt" db:"created_at"`
	UpdatedAt       time.Time      `json:"updatedAt" db:"updated_at"`
}

type Admin struct {
	ID           string    `json:"id" db:"id"`
	Email        string    `json:"email" db:"email"`
	PasswordHash string    `json:"-" db:"password_hash"`
	CreatedAt    time.Time `json:"createdAt" db:"created_at"`
}
