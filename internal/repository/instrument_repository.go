package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/nickcalamaro/DiceBastion-sub000/internal/model"
)

type InstrumentRepository interface {
	GetByID(ctx context.Context, id string) (*model.PaymentInstrument, error)
	GetActiveByUserID(ctx context.Context, userID string) (*model.PaymentInstrument, error)
	// Upsert deactivates any prior instrument for the user and inserts the
	// new one as the single active row.
	Upsert(ctx context.Context, instrument *model.PaymentInstrument) error
	DeactivateByUserID(ctx context.Context, userID string) error
	Deactivate(ctx context.Context, id string) error
}

type SQLInstrumentRepository struct {
	db *sqlx.DB
}

func NewInstrumentRepository(db *sqlx.DB) InstrumentRepository {
	return &SQLInstrumentRepository{db: db}
}

func (r *SQLInstrumentRepository) GetByID(ctx context.Context, id string) (*model.PaymentInstrument, error) {
	var instrument model.PaymentInstrument
	err := r.db.GetContext(ctx, &instrument, `SELECT * FROM payment_instruments WHERE id = ?`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &instrument, nil
}

func (r *SQLInstrumentRepository) GetActiveByUserID(ctx context.Context, userID string) (*model.PaymentInstrument, error) {
	var instrument model.PaymentInstrument
	query := `
		SELECT * FROM payment_instruments
		WHERE user_id = ? AND is_active = TRUE
		ORDER BY updated_at DESC
		LIMIT 1
	`
	err := r.db.GetContext(ctx, &instrument, query, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &instrument, nil
}

func (r *SQLInstrumentRepository) Upsert(ctx context.Context, instrument *model.PaymentInstrument) error {
	if instrument.ID == "" {
		instrument.ID = uuid.New().String()
	}
	instrument.IsActive = true
	instrument.CreatedAt = time.Now()
	instrument.UpdatedAt = time.Now()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE payment_instruments SET is_active = FALSE, updated_at = ? WHERE user_id = ? AND is_active = TRUE`,
		time.Now(), instrument.UserID)
	if err != nil {
		tx.Rollback()
		return err
	}

	query := `
		INSERT INTO payment_instruments (
			id, user_id, instrument_id, card_type, last4,
			expiry_month, expiry_year, is_active, created_at, updated_at
		) VALUES (
			:id, :user_id, :instrument_id, :card_type, :last4,
			:expiry_month, :expiry_year, :is_active, :created_at, :updated_at
		)
	`
	if _, err := tx.NamedExecContext(ctx, query, instrument); err != nil {
		tx.Rollback()
		return err
	}

	return tx.Commit()
}

func (r *SQLInstrumentRepository) DeactivateByUserID(ctx context.Context, userID string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE payment_instruments SET is_active = FALSE, updated_at = ? WHERE user_id = ? AND is_active = TRUE`,
		time.Now(), userID)
	return err
}

func (r *SQLInstrumentRepository) Deactivate(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE payment_instruments SET is_active = FALSE, updated_at = ? WHERE id = ?`,
		time.Now(), id)
	return err
}
