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

// ErrSoldOut is returned when a conditional tickets_sold increment finds the
// event already at capacity.
var ErrSoldOut = errors.New("event sold out")

type EventRepository interface {
	List(ctx context.Context, publishedOnly bool) ([]model.Event, error)
	GetByID(ctx context.Context, id string) (*model.Event, error)
	GetBySlug(ctx context.Context, slug string) (*model.Event, error)
	Create(ctx context.Context, event *model.Event) error
	Update(ctx context.Context, event *model.Event) error
	Delete(ctx context.Context, id string) error
	// IncrementTicketsSold succeeds only while tickets_sold < capacity.
	IncrementTicketsSold(ctx context.Context, id string) error

	CreateTicket(ctx context.Context, ticket *model.Ticket) error
	GetTicketByID(ctx context.Context, id string) (*model.Ticket, error)
	// ActivateTicket flips a pending ticket to active; returns false when the
	// ticket was not pending (the re-entrancy guard for double confirmation).
	ActivateTicket(ctx context.Context, id string) (bool, error)
	// RevertTicket compensates a won activation whose capacity increment
	// then failed.
	RevertTicket(ctx context.Context, id string) error
}

type SQLEventRepository struct {
	db *sqlx.DB
}

func NewEventRepository(db *sqlx.DB) EventRepository {
	return &SQLEventRepository{db: db}
}

func (r *SQLEventRepository) List(ctx context.Context, publishedOnly bool) ([]model.Event, error) {
	var events []model.Event
	query := `SELECT * FROM events ORDER BY starts_at ASC`
	if publishedOnly {
		query = `SELECT * FROM events WHERE published = TRUE ORDER BY starts_at ASC`
	}
	err := r.db.SelectContext(ctx, &events, query)
	return events, err
}

func (r *SQLEventRepository) GetByID(ctx context.Context, id string) (*model.Event, error) {
	var event model.Event
	err := r.db.GetContext(ctx, &event, `SELECT * FROM events WHERE id = ?`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &event, nil
}

func (r *SQLEventRepository) GetBySlug(ctx context.Context, slug string) (*model.Event, error) {
	var event model.Event
	err := r.db.GetContext(ctx, &event, `SELECT * FROM events WHERE slug = ?`, slug)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &event, nil
}

func (r *SQLEventRepository) Create(ctx context.Context, event *model.Event) error {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	event.CreatedAt = time.Now()
	event.UpdatedAt = time.Now()

	query := `
		INSERT INTO events (
			id, slug, title, description, starts_at, price_amount, currency,
			capacity, tickets_sold, published, created_at, updated_at
		) VALUES (
			:id, :slug, :title, :description, :starts_at, :price_amount, :currency,
			:capacity, :tickets_sold, :published, :created_at, :updated_at
		)
	`
	_, err := r.db.NamedExecContext(ctx, query, event)
	return err
}

func (r *SQLEventRepository) Update(ctx context.Context, event *model.Event) error {
	event.UpdatedAt = time.Now()

	query := `
		UPDATE events SET
			slug = :slug,
			title = :title,
			description = :description,
			starts_at = :starts_at,
			price_amount = :price_amount,
			currency = :currency,
			capacity = :capacity,
			published = :published,
			updated_at = :updated_at
		WHERE id = :id
	`
	_, err := r.db.NamedExecContext(ctx, query, event)
	return err
}

func (r *SQLEventRepository) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM events WHERE id = ?`, id)
	return err
}

func (r *SQLEventRepository) IncrementTicketsSold(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE events
		SET tickets_sold = tickets_sold + 1, updated_at = ?
		WHERE id = ? AND tickets_sold < capacity
	`, time.Now(), id)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrSoldOut
	}
	return nil
}

func (r *SQLEventRepository) CreateTicket(ctx context.Context, ticket *model.Ticket) error {
	if ticket.ID == "" {
		ticket.ID = uuid.New().String()
	}
	ticket.CreatedAt = time.Now()

	query := `
		INSERT INTO tickets (id, event_id, user_id, status, created_at)
		VALUES (:id, :event_id, :user_id, :status, :created_at)
	`
	_, err := r.db.NamedExecContext(ctx, query, ticket)
	return err
}

func (r *SQLEventRepository) GetTicketByID(ctx context.Context, id string) (*model.Ticket, error) {
	var ticket model.Ticket
	err := r.db.GetContext(ctx, &ticket, `SELECT * FROM tickets WHERE id = ?`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &ticket, nil
}

func (r *SQLEventRepository) ActivateTicket(ctx context.Context, id string) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE tickets SET status = ? WHERE id = ? AND status = ?`,
		model.TicketStatusActive, id, model.TicketStatusPending)
	if err != nil {
		return false, err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}

func (r *SQLEventRepository) RevertTicket(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE tickets SET status = ? WHERE id = ? AND status = ?`,
		model.TicketStatusPending, id, model.TicketStatusActive)
	return err
}
