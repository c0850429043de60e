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

type TransactionRepository interface {
	Create(ctx context.Context, tx *model.Transaction) error
	GetByOrderRef(ctx context.Context, orderRef string) (*model.Transaction, error)
	GetByCheckoutID(ctx context.Context, checkoutID string) (*model.Transaction, error)
	// GetByIdempotencyKey finds a prior checkout of the same type for the
	// same user created with the same client-supplied key.
	GetByIdempotencyKey(ctx context.Context, txType, userID, key string) (*model.Transaction, error)
	SetCheckoutID(ctx context.Context, id, checkoutID string) error
	// MarkPaid settles a pending transaction exactly once, reporting
	// whether this caller won the flip.
	MarkPaid(ctx context.Context, id, paymentID string) (bool, error)
	ListByUserID(ctx context.Context, userID string) ([]model.Transaction, error)
}

type SQLTransactionRepository struct {
	db *sqlx.DB
}

func NewTransactionRepository(db *sqlx.DB) TransactionRepository {
	return &SQLTransactionRepository{db: db}
}

func (r *SQLTransactionRepository) Create(ctx context.Context, tx *model.Transaction) error {
	if tx.ID == "" {
		tx.ID = uuid.New().String()
	}
	tx.CreatedAt = time.Now()
	tx.UpdatedAt = time.Now()

	query := `
		INSERT INTO transactions (
			id, type, reference_id, user_id, email, name, order_ref,
			checkout_id, payment_id, plan, amount, currency, payment_status,
			idempotency_key, consent_at, created_at, updated_at
		) VALUES (
			:id, :type, :reference_id, :user_id, :email, :name, :order_ref,
			:checkout_id, :payment_id, :plan, :amount, :currency, :payment_status,
			:idempotency_key, :consent_at, :created_at, :updated_at
		)
	`
	_, err := r.db.NamedExecContext(ctx, query, tx)
	return err
}

func (r *SQLTransactionRepository) GetByOrderRef(ctx context.Context, orderRef string) (*model.Transaction, error) {
	var tx model.Transaction
	err := r.db.GetContext(ctx, &tx, `SELECT * FROM transactions WHERE order_ref = ?`, orderRef)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &tx, nil
}

func (r *SQLTransactionRepository) GetByCheckoutID(ctx context.Context, checkoutID string) (*model.Transaction, error) {
	var tx model.Transaction
	err := r.db.GetContext(ctx, &tx, `SELECT * FROM transactions WHERE checkout_id = ?`, checkoutID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &tx, nil
}

func (r *SQLTransactionRepository) GetByIdempotencyKey(ctx context.Context, txType, userID, key string) (*model.Transaction, error) {
	var tx model.Transaction
	query := `
		SELECT * FROM transactions
		WHERE type = ? AND user_id = ? AND idempotency_key = ?
		ORDER BY created_at DESC
		LIMIT 1
	`
	err := r.db.GetContext(ctx, &tx, query, txType, userID, key)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &tx, nil
}

func (r *SQLTransactionRepository) SetCheckoutID(ctx context.Context, id, checkoutID string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE transactions SET checkout_id = ?, updated_at = ? WHERE id = ?`,
		checkoutID, time.Now(), id)
	return err
}

func (r *SQLTransactionRepository) MarkPaid(ctx context.Context, id, paymentID string) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE transactions
		SET payment_status = ?, payment_id = ?, updated_at = ?
		WHERE id = ? AND payment_status != ?
	`, model.PaymentStatusPaid, paymentID, time.Now(), id, model.PaymentStatusPaid)
	if err != nil {
		return false, err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}

func (r *SQLTransactionRepository) ListByUserID(ctx context.Context, userID string) ([]model.Transaction, error) {
	var out []model.Transaction
	err := r.db.SelectContext(ctx, &out,
		`SELECT * FROM transactions WHERE user_id = ? ORDER BY created_at DESC`, userID)
	return out, err
}
