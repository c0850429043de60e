package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/nickcalamaro/DiceBastion-sub000/internal/model"
)

type UserRepository interface {
	GetByID(ctx context.Context, id string) (*model.User, error)
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	Create(ctx context.Context, user *model.User) error
	SetSumUpCustomerID(ctx context.Context, userID, customerID string) error
	SetMarketingOptIn(ctx context.Context, userID string, optIn bool) error
}

type SQLUserRepository struct {
	db *sqlx.DB
}

func NewUserRepository(db *sqlx.DB) UserRepository {
	return &SQLUserRepository{db: db}
}

func (r *SQLUserRepository) GetByID(ctx context.Context, id string) (*model.User, error) {
	var user model.User
	err := r.db.GetContext(ctx, &user, `SELECT * FROM users WHERE id = ?`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &user, nil
}

func (r *SQLUserRepository) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	var user model.User
	err := r.db.GetContext(ctx, &user, `SELECT * FROM users WHERE email = ?`,
		strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &user, nil
}

func (r *SQLUserRepository) Create(ctx context.Context, user *model.User) error {
	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	user.Email = strings.ToLower(strings.TrimSpace(user.Email))
	user.CreatedAt = time.Now()
	user.UpdatedAt = time.Now()

	query := `
		INSERT INTO users (
			id, email, name, sumup_customer_id, marketing_opt_in, created_at, updated_at
		) VALUES (
			:id, :email, :name, :sumup_customer_id, :marketing_opt_in, :created_at, :updated_at
		)
	`
	_, err := r.db.NamedExecContext(ctx, query, user)
	return err
}

func (r *SQLUserRepository) SetSumUpCustomerID(ctx context.Context, userID, customerID string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE users SET sumup_customer_id = ?, updated_at = ? WHERE id = ?`,
		customerID, time.Now(), userID)
	return err
}

func (r *SQLUserRepository) SetMarketingOptIn(ctx context.Context, userID string, optIn bool) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE users SET marketing_opt_in = ?, updated_at = ? WHERE id = ?`,
		optIn, time.Now(), userID)
	return err
}
