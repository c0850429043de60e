package model

import (
	"database/sql"
	"time"
)

// WebhookLogEntry makes a second delivery of the same provider webhook a
// no-op. The (webhook_id, entity_type, entity_id) triple is unique.
type WebhookLogEntry struct {
	ID         string    `json:"id" db:"id"`
	WebhookID  string    `json:"webhookId" db:"webhook_id"`
	EntityType string    `json:"entityType" db:"entity_type"`
	EntityID   string    `json:"entityId" db:"entity_id"`
	ReceivedAt time.Time `json:"receivedAt" db:"received_at"`
}

const (
	EmailStatusSent   = "sent"
	EmailStatusFailed = "failed"
)

type EmailLogEntry struct {
	ID           string         `json:"id" db:"id"`
	Recipient    string         `json:"recipient" db:"recipient"`
	Subject      string         `json:"subject" db:"subject"`
	Template     string         `json:"template" db:"template"`
	Status       string         `json:"status" db:"status"`
	ErrorMessage sql.NullString `json:"errorMessage" db:"error_message"`
	CreatedAt    time.Time      `json:"createdAt" db:"created_at"`
}

const (
	JobStatusRunning   = "running"
	JobStatusCompleted = "completed"
	JobStatusPartial   = "partial"
	JobStatusFailed    = "failed"
)

// CronJobLog records one run of a scheduled job phase.
type CronJobLog struct {
	ID               string         `json:"id" db:"id"`
	JobName          string         `json:"jobName" db:"job_name"`
	StartedAt        time.Time      `json:"startedAt" db:"started_at"`
	CompletedAt      sql.NullTime   `json:"completedAt" db:"completed_at"`
	Status           string         `json:"status" db:"status"`
	RecordsProcessed int            `json:"recordsProcessed" db:"records_processed"`
	RecordsSucceeded int            `json:"recordsSucceeded" db:"records_succeeded"`
	RecordsFailed    int            `json:"recordsFailed" db:"records_failed"`
	ErrorMessage     sql.NullString `json:"errorMessage" db:"error_message"`
	Details          sql.NullString `json:"details" db:"details"`
}

// CronJobSummary aggregates runs of one job over a trailing window.
type CronJobSummary struct {
	JobName        string       `json:"jobName" db:"job_name"`
	Runs           int          `json:"runs" db:"runs"`
	Completed      int          `json:"completed" db:"completed"`
	Partial        int          `json:"partial" db:"partial"`
	Failed         int          `json:"failed" db:"failed"`
	TotalProcessed int          `json:"totalProcessed" db:"total_processed"`
	LastRunAt      sql.NullTime `json:"lastRunAt" db:"last_run_at"`
}
