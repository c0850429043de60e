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

type MembershipRepository interface {
	GetByID(ctx context.Context, id string) (*model.Membership, error)
	GetActiveByUserID(ctx context.Context, userID string) (*model.Membership, error)
	GetLatestByUserID(ctx context.Context, userID string) (*model.Membership, error)
	Create(ctx context.Context, m *model.Membership) error
	Activate(ctx context.Context, id string, startDate, endDate time.Time) error
	ExtendActive(ctx context.Context, id string, endDate time.Time) error
	SetAutoRenew(ctx context.Context, id string, autoRenew bool) error
	SetPlan(ctx context.Context, id, plan string, amount int64, currency string) error
	SetInstrument(ctx context.Context, id string, instrumentID sql.NullString) error
	RecordRenewalFailure(ctx context.Context, id string, failedAt time.Time) error
	ResetRenewalState(ctx context.Context, id string) error
	MarkWarningSent(ctx context.Context, id string) error
	DueForWarning(ctx context.Context, warnOn time.Time) ([]model.Membership, error)
	DueForRenewal(ctx context.Context, now time.Time, graceDays, maxAttempts int) ([]model.Membership, error)
	ExpireLapsed(ctx context.Context, now time.Time, graceDays, maxAttempts int) (int64, error)
	List(ctx context.Context, limit, offset int) ([]model.Membership, error)

	AppendRenewalLog(ctx context.Context, entry *model.RenewalLogEntry) error
	RenewalLogByMembership(ctx context.Context, membershipID string) ([]model.RenewalLogEntry, error)
}

type SQLMembershipRepository struct {
	db *sqlx.DB
}

func NewMembershipRepository(db *sqlx.DB) MembershipRepository {
	return &SQLMembershipRepository{db: db}
}

func (r *SQLMembershipRepository) GetByID(ctx context.Context, id string) (*model.Membership, error) {
	var m model.Membership
	err := r.db.GetContext(ctx, &m, `SELECT * FROM memberships WHERE id = ?`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &m, nil
}

// GetActiveByUserID returns the user's single active membership, if any.
func (r *SQLMembershipRepository) GetActiveByUserID(ctx context.Context, userID string) (*model.Membership, error) {
	var m model.Membership
	query := `
		SELECT * FROM memberships
		WHERE user_id = ? AND status = ?
		ORDER BY end_date DESC
		LIMIT 1
	`
	err := r.db.GetContext(ctx, &m, query, userID, model.MembershipStatusActive)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &m, nil
}

func (r *SQLMembershipRepository) GetLatestByUserID(ctx context.Context, userID string) (*model.Membership, error) {
	var m model.Membership
	query := `
		SELECT * FROM memberships
		WHERE user_id = ?
		ORDER BY created_at DESC
		LIMIT 1
	`
	err := r.db.GetContext(ctx, &m, query, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &m, nil
}

func (r *SQLMembershipRepository) Create(ctx context.Context, m *model.Membership) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	m.CreatedAt = time.Now()
	m.UpdatedAt = time.Now()

	query := `
		INSERT INTO memberships (
			id, user_id, plan, status, start_date, end_date,
			auto_renew, payment_instrument_id, renewal_failed_at,
			renewal_attempts, renewal_warning_sent, amount, currency,
			created_at, updated_at
		) VALUES (
			:id, :user_id, :plan, :status, :start_date, :end_date,
			:auto_renew, :payment_instrument_id, :renewal_failed_at,
			:renewal_attempts, :renewal_warning_sent, :amount, :currency,
			:created_at, :updated_at
		)
	`
	_, err := r.db.NamedExecContext(ctx, query, m)
	return err
}

// Activate flips a pending membership to active exactly once. The status
// guard makes concurrent confirmations a no-op for the loser.
func (r *SQLMembershipRepository) Activate(ctx context.Context, id string, startDate, endDate time.Time) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE memberships
		SET status = ?, start_date = ?, end_date = ?, updated_at = ?
		WHERE id = ? AND status = ?
	`, model.MembershipStatusActive, startDate, endDate, time.Now(), id, model.MembershipStatusPending)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return errors.New("membership not pending")
	}
	return nil
}

func (r *SQLMembershipRepository) ExtendActive(ctx context.Context, id string, endDate time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE memberships
		SET end_date = ?, status = ?, updated_at = ?
		WHERE id = ?
	`, endDate, model.MembershipStatusActive, time.Now(), id)
	return err
}

func (r *SQLMembershipRepository) SetAutoRenew(ctx context.Context, id string, autoRenew bool) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE memberships SET auto_renew = ?, updated_at = ? WHERE id = ?`,
		autoRenew, time.Now(), id)
	return err
}

// SetPlan records a plan change, keeping the stored amount and currency in
// step so renewals charge the new tier.
func (r *SQLMembershipRepository) SetPlan(ctx context.Context, id, plan string, amount int64, currency string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE memberships SET plan = ?, amount = ?, currency = ?, updated_at = ? WHERE id = ?`,
		plan, amount, currency, time.Now(), id)
	return err
}

func (r *SQLMembershipRepository) SetInstrument(ctx context.Context, id string, instrumentID sql.NullString) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE memberships SET payment_instrument_id = ?, updated_at = ? WHERE id = ?`,
		instrumentID, time.Now(), id)
	return err
}

func (r *SQLMembershipRepository) RecordRenewalFailure(ctx context.Context, id string, failedAt time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE memberships
		SET renewal_attempts = renewal_attempts + 1, renewal_failed_at = ?, updated_at = ?
		WHERE id = ?
	`, failedAt, time.Now(), id)
	return err
}

func (r *SQLMembershipRepository) ResetRenewalState(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE memberships
		SET renewal_attempts = 0, renewal_failed_at = NULL, renewal_warning_sent = FALSE, updated_at = ?
		WHERE id = ?
	`, time.Now(), id)
	return err
}

func (r *SQLMembershipRepository) MarkWarningSent(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE memberships SET renewal_warning_sent = TRUE, updated_at = ? WHERE id = ?`,
		time.Now(), id)
	return err
}

// DueForWarning selects active auto-renewing memberships whose end date falls
// on the warning day and which have not been warned yet.
func (r *SQLMembershipRepository) DueForWarning(ctx context.Context, warnOn time.Time) ([]model.Membership, error) {
	dayStart := time.Date(warnOn.Year(), warnOn.Month(), warnOn.Day(), 0, 0, 0, 0, warnOn.Location())
	dayEnd := dayStart.AddDate(0, 0, 1)

	var out []model.Membership
	query := `
		SELECT * FROM memberships
		WHERE status = ? AND auto_renew = TRUE AND renewal_warning_sent = FALSE
		  AND end_date >= ? AND end_date < ?
	`
	err := r.db.SelectContext(ctx, &out, query, model.MembershipStatusActive, dayStart, dayEnd)
	return out, err
}

// DueForRenewal selects active auto-renewing memberships whose end date has
// passed but is still inside the grace window, with attempts remaining.
func (r *SQLMembershipRepository) DueForRenewal(ctx context.Context, now time.Time, graceDays, maxAttempts int) ([]model.Membership, error) {
	graceStart := now.AddDate(0, 0, -graceDays)

	var out []model.Membership
	query := `
		SELECT * FROM memberships
		WHERE status = ? AND auto_renew = TRUE
		  AND end_date <= ? AND end_date > ?
		  AND renewal_attempts < ?
		ORDER BY end_date ASC
	`
	err := r.db.SelectContext(ctx, &out, query, model.MembershipStatusActive, now, graceStart, maxAttempts)
	return out, err
}

// ExpireLapsed marks active memberships as expired in one statement. The
// grace window applies uniformly: a row expires only once end_date is past
// the window AND renewal is no longer viable (auto-renew off or attempts
// exhausted).
func (r *SQLMembershipRepository) ExpireLapsed(ctx context.Context, now time.Time, graceDays, maxAttempts int) (int64, error) {
	graceStart := now.AddDate(0, 0, -graceDays)

	result, err := r.db.ExecContext(ctx, `
		UPDATE memberships
		SET status = ?, updated_at = ?
		WHERE status = ?
		  AND end_date <= ?
		  AND (auto_renew = FALSE OR renewal_attempts >= ?)
	`, model.MembershipStatusExpired, time.Now(), model.MembershipStatusActive,
		graceStart, maxAttempts)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (r *SQLMembershipRepository) List(ctx context.Context, limit, offset int) ([]model.Membership, error) {
	var out []model.Membership
	err := r.db.SelectContext(ctx, &out,
		`SELECT * FROM memberships ORDER BY created_at DESC LIMIT ? OFFSET ?`, limit, offset)
	return out, err
}

func (r *SQLMembershipRepository) AppendRenewalLog(ctx context.Context, entry *model.RenewalLogEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.AttemptDate.IsZero() {
		entry.AttemptDate = time.Now()
	}

	query := `
		INSERT INTO renewal_log (
			id, membership_id, attempt_date, status, payment_id, error_message, amount, currency
		) VALUES (
			:id, :membership_id, :attempt_date, :status, :payment_id, :error_message, :amount, :currency
		)
	`
	_, err := r.db.NamedExecContext(ctx, query, entry)
	return err
}

func (r *SQLMembershipRepository) RenewalLogByMembership(ctx context.Context, membershipID string) ([]model.RenewalLogEntry, error) {
	var out []model.RenewalLogEntry
	err := r.db.SelectContext(ctx, &out,
		`SELECT * FROM renewal_log WHERE membership_id = ? ORDER BY attempt_date DESC`, membershipID)
	return out, err
}
