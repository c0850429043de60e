package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/nickcalamaro/DiceBastion-sub000/internal/model"
)

type WebhookLogRepository interface {
	// RecordDelivery inserts the dedup triple and reports whether this
	// delivery is the first one. A repeat delivery returns false, nil.
	RecordDelivery(ctx context.Context, webhookID, entityType, entityID string) (bool, error)
}

type SQLWebhookLogRepository struct {
	db *sqlx.DB
}

func NewWebhookLogRepository(db *sqlx.DB) WebhookLogRepository {
	return &SQLWebhookLogRepository{db: db}
}

func (r *SQLWebhookLogRepository) RecordDelivery(ctx context.Context, webhookID, entityType, entityID string) (bool, error) {
	var count int
	err := r.db.GetContext(ctx, &count,
		`SELECT COUNT(*) FROM webhook_log WHERE webhook_id = ? AND entity_type = ? AND entity_id = ?`,
		webhookID, entityType, entityID)
	if err != nil {
		return false, err
	}
	if count > 0 {
		return false, nil
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO webhook_log (id, webhook_id, entity_type, entity_id, received_at) VALUES (?, ?, ?, ?, ?)`,
		uuid.New().String(), webhookID, entityType, entityID, time.Now())
	if err != nil {
		// A concurrent delivery may have won the insert; the unique
		// constraint turns that race into a duplicate, not an error.
		var again int
		if checkErr := r.db.GetContext(ctx, &again,
			`SELECT COUNT(*) FROM webhook_log WHERE webhook_id = ? AND entity_type = ? AND entity_id = ?`,
			webhookID, entityType, entityID); checkErr == nil && again > 0 {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

type EmailLogRepository interface {
	Record(ctx context.Context, entry *model.EmailLogEntry) error
	List(ctx context.Context, limit, offset int) ([]model.EmailLogEntry, error)
}

type SQLEmailLogRepository struct {
	db *sqlx.DB
}

func NewEmailLogRepository(db *sqlx.DB) EmailLogRepository {
	return &SQLEmailLogRepository{db: db}
}

func (r *SQLEmailLogRepository) Record(ctx context.Context, entry *model.EmailLogEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	entry.CreatedAt = time.Now()

	query := `
		INSERT INTO email_log (id, recipient, subject, template, status, error_message, created_at)
		VALUES (:id, :recipient, :subject, :template, :status, :error_message, :created_at)
	`
	_, err := r.db.NamedExecContext(ctx, query, entry)
	return err
}

func (r *SQLEmailLogRepository) List(ctx context.Context, limit, offset int) ([]model.EmailLogEntry, error) {
	var out []model.EmailLogEntry
	err := r.db.SelectContext(ctx, &out,
		`SELECT * FROM email_log ORDER BY created_at DESC LIMIT ? OFFSET ?`, limit, offset)
	return out, err
}

type JobLogRepository interface {
	Start(ctx context.Context, jobName string) (*model.CronJobLog, error)
	Finish(ctx context.Context, entry *model.CronJobLog) error
	List(ctx context.Context, limit, offset int) ([]model.CronJobLog, error)
	Summary(ctx context.Context, since time.Time) ([]model.CronJobSummary, error)
}

type SQLJobLogRepository struct {
	db *sqlx.DB
}

func NewJobLogRepository(db *sqlx.DB) JobLogRepository {
	return &SQLJobLogRepository{db: db}
}

func (r *SQLJobLogRepository) Start(ctx context.Context, jobName string) (*model.CronJobLog, error) {
	entry := &model.CronJobLog{
		ID:        uuid.New().String(),
		JobName:   jobName,
		StartedAt: time.Now(),
		Status:    model.JobStatusRunning,
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO cron_log (id, job_name, started_at, status) VALUES (?, ?, ?, ?)`,
		entry.ID, entry.JobName, entry.StartedAt, entry.Status)
	if err != nil {
		return nil, err
	}
	return entry, nil
}

func (r *SQLJobLogRepository) Finish(ctx context.Context, entry *model.CronJobLog) error {
	query := `
		UPDATE cron_log SET
			completed_at = :completed_at,
			status = :status,
			records_processed = :records_processed,
			records_succeeded = :records_succeeded,
			records_failed = :records_failed,
			error_message = :error_message,
			details = :details
		WHERE id = :id
	`
	_, err := r.db.NamedExecContext(ctx, query, entry)
	return err
}

func (r *SQLJobLogRepository) List(ctx context.Context, limit, offset int) ([]model.CronJobLog, error) {
	var out []model.CronJobLog
	err := r.db.SelectContext(ctx, &out,
		`SELECT * FROM cron_log ORDER BY started_at DESC LIMIT ? OFFSET ?`, limit, offset)
	return out, err
}

func (r *SQLJobLogRepository) Summary(ctx context.Context, since time.Time) ([]model.CronJobSummary, error) {
	var out []model.CronJobSummary
	query := `
		SELECT
			job_name,
			COUNT(*) AS runs,
			SUM(CASE WHEN status = 'completed' THEN 1 ELSE 0 END) AS completed,
			SUM(CASE WHEN status = 'partial' THEN 1 ELSE 0 END) AS partial,
			SUM(CASE WHEN status = 'failed' THEN 1 ELSE 0 END) AS failed,
			SUM(records_processed) AS total_processed,
			MAX(started_at) AS last_run_at
		FROM cron_log
		WHERE started_at >= ?
		GROUP BY job_name
		ORDER BY job_name
	`
	err := r.db.SelectContext(ctx, &out, query, since)
	return out, err
}
