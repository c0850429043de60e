package database

import (
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"
)

// migrations is append-only; never edit an applied entry. The DDL sticks to
// the dialect subset MySQL and SQLite share: string uuid primary keys,
// DATETIME columns, inline UNIQUE constraints.
var migrations = []string{
	// 1: identity and auth
	`CREATE TABLE IF NOT EXISTS users (
		id VARCHAR(36) PRIMARY KEY,
		email VARCHAR(191) NOT NULL,
		name VARCHAR(191) NOT NULL,
		sumup_customer_id VARCHAR(191),
		marketing_opt_in BOOLEAN NOT NULL DEFAULT FALSE,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		UNIQUE (email)
	)`,
	`CREATE TABLE IF NOT EXISTS admins (
		id VARCHAR(36) PRIMARY KEY,
		email VARCHAR(191) NOT NULL,
		password_hash VARCHAR(191) NOT NULL,
		created_at DATETIME NOT NULL,
		UNIQUE (email)
	)`,
	// 2: memberships and payment instruments
	`CREATE TABLE IF NOT EXISTS memberships (
		id VARCHAR(36) PRIMARY KEY,
		user_id VARCHAR(36) NOT NULL,
		plan VARCHAR(64) NOT NULL,
		status VARCHAR(16) NOT NULL,
		start_date DATETIME NOT NULL,
		end_date DATETIME NOT NULL,
		auto_renew BOOLEAN NOT NULL DEFAULT FALSE,
		payment_instrument_id VARCHAR(36),
		renewal_failed_at DATETIME,
		renewal_attempts INT NOT NULL DEFAULT 0,
		renewal_warning_sent BOOLEAN NOT NULL DEFAULT FALSE,
		amount BIGINT NOT NULL,
		currency VARCHAR(3) NOT NULL,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS payment_instruments (
		id VARCHAR(36) PRIMARY KEY,
		user_id VARCHAR(36) NOT NULL,
		instrument_id VARCHAR(191) NOT NULL,
		card_type VARCHAR(32) NOT NULL,
		last4 VARCHAR(4) NOT NULL,
		expiry_month INT NOT NULL,
		expiry_year INT NOT NULL,
		is_active BOOLEAN NOT NULL DEFAULT FALSE,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`,
	// 3: transactions
	`CREATE TABLE IF NOT EXISTS transactions (
		id VARCHAR(36) PRIMARY KEY,
		type VARCHAR(16) NOT NULL,
		reference_id VARCHAR(36) NOT NULL,
		user_id VARCHAR(36) NOT NULL,
		email VARCHAR(191) NOT NULL,
		name VARCHAR(191) NOT NULL,
		order_ref VARCHAR(96) NOT NULL,
		checkout_id VARCHAR(191),
		payment_id VARCHAR(191),
		amount BIGINT NOT NULL,
		currency VARCHAR(3) NOT NULL,
		payment_status VARCHAR(16) NOT NULL,
		idempotency_key VARCHAR(191),
		consent_at DATETIME NOT NULL,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		UNIQUE (order_ref)
	)`,
	// 4: events and tickets
	`CREATE TABLE IF NOT EXISTS events (
		id VARCHAR(36) PRIMARY KEY,
		slug VARCHAR(191) NOT NULL,
		title VARCHAR(191) NOT NULL,
		description TEXT,
		starts_at DATETIME NOT NULL,
		price_amount BIGINT NOT NULL,
		currency VARCHAR(3) NOT NULL,
		capacity INT NOT NULL,
		tickets_sold INT NOT NULL DEFAULT 0,
		published BOOLEAN NOT NULL DEFAULT FALSE,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		UNIQUE (slug)
	)`,
	`CREATE TABLE IF NOT EXISTS tickets (
		id VARCHAR(36) PRIMARY KEY,
		event_id VARCHAR(36) NOT NULL,
		user_id VARCHAR(36) NOT NULL,
		status VARCHAR(16) NOT NULL,
		created_at DATETIME NOT NULL
	)`,
	// 5: shop
	`CREATE TABLE IF NOT EXISTS products (
		id VARCHAR(36) PRIMARY KEY,
		slug VARCHAR(191) NOT NULL,
		name VARCHAR(191) NOT NULL,
		description TEXT,
		price_amount BIGINT NOT NULL,
		currency VARCHAR(3) NOT NULL,
		stock INT NOT NULL DEFAULT 0,
		image_url VARCHAR(512) NOT NULL DEFAULT '',
		active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		UNIQUE (slug)
	)`,
	`CREATE TABLE IF NOT EXISTS orders (
		id VARCHAR(36) PRIMARY KEY,
		user_id VARCHAR(36) NOT NULL,
		order_ref VARCHAR(96) NOT NULL,
		total_amount BIGINT NOT NULL,
		currency VARCHAR(3) NOT NULL,
		status VARCHAR(16) NOT NULL,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		UNIQUE (order_ref)
	)`,
	`CREATE TABLE IF NOT EXISTS order_items (
		id VARCHAR(36) PRIMARY KEY,
		order_id VARCHAR(36) NOT NULL,
		product_id VARCHAR(36) NOT NULL,
		quantity INT NOT NULL,
		unit_amount BIGINT NOT NULL
	)`,
	// 6: audit and operational logs
	`CREATE TABLE IF NOT EXISTS renewal_log (
		id VARCHAR(36) PRIMARY KEY,
		membership_id VARCHAR(36) NOT NULL,
		attempt_date DATETIME NOT NULL,
		status VARCHAR(16) NOT NULL,
		payment_id VARCHAR(191),
		error_message TEXT,
		amount BIGINT NOT NULL,
		currency VARCHAR(3) NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS webhook_log (
		id VARCHAR(36) PRIMARY KEY,
		webhook_id VARCHAR(191) NOT NULL,
		entity_type VARCHAR(32) NOT NULL,
		entity_id VARCHAR(96) NOT NULL,
		received_at DATETIME NOT NULL,
		UNIQUE (webhook_id, entity_type, entity_id)
	)`,
	`CREATE TABLE IF NOT EXISTS email_log (
		id VARCHAR(36) PRIMARY KEY,
		recipient VARCHAR(191) NOT NULL,
		subject VARCHAR(255) NOT NULL,
		template VARCHAR(64) NOT NULL,
		status VARCHAR(16) NOT NULL,
		error_message TEXT,
		created_at DATETIME NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS cron_log (
		id VARCHAR(36) PRIMARY KEY,
		job_name VARCHAR(64) NOT NULL,
		started_at DATETIME NOT NULL,
		completed_at DATETIME,
		status VARCHAR(16) NOT NULL,
		records_processed INT NOT NULL DEFAULT 0,
		records_succeeded INT NOT NULL DEFAULT 0,
		records_failed INT NOT NULL DEFAULT 0,
		error_message TEXT,
		details TEXT
	)`,
	// 7: record the purchased plan on the transaction so confirmation
	// extends by what was actually paid for, not the row's prior plan
	`ALTER TABLE transactions ADD COLUMN plan VARCHAR(64) NOT NULL DEFAULT ''`,
}

// Migrate applies pending schema migrations in order.
func Migrate(db *sqlx.DB) error {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		version INT PRIMARY KEY,
		applied_at DATETIME NOT NULL
	)`)
	if err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	var current int
	if err := db.Get(&current, `SELECT COALESCE(MAX(version), 0) FROM schema_migrations`); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}

	for i := current; i < len(migrations); i++ {
		version := i + 1
		if _, err := db.Exec(migrations[i]); err != nil {
			return fmt.Errorf("apply migration %d: %w", version, err)
		}
		if _, err := db.Exec(`INSERT INTO schema_migrations (version, applied_at) VALUES (?, ?)`,
			version, time.Now().UTC()); err != nil {
			return fmt.Errorf("record migration %d: %w", version, err)
		}
		log.Info().Int("version", version).Msg("applied migration")
	}

	return nil
}
