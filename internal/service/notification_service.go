package service

import (
	"context"
	"database/sql"

	"github.com/rs/zerolog/log"

	"github.com/nickcalamaro/DiceBastion-sub000/internal/mailer"
	"github.com/nickcalamaro/DiceBastion-sub000/internal/model"
	"github.com/nickcalamaro/DiceBastion-sub000/internal/repository"
)

// Notifier dispatches transactional email and records every outcome in the
// email history. Sends are always best-effort: a failed email never fails
// the operation that triggered it.
type Notifier interface {
	Send(ctx context.Context, recipient string, msg mailer.Message)
	NotifyAdmin(ctx context.Context, subject, detail string)
}

type DefaultNotifier struct {
	sender    mailer.Sender
	emailLog  repository.EmailLogRepository
	adminAddr string
}

func NewNotifier(sender mailer.Sender, emailLog repository.EmailLogRepository, adminAddr string) Notifier {
	return &DefaultNotifier{
		sender:    sender,
		emailLog:  emailLog,
		adminAddr: adminAddr,
	}
}

func (n *DefaultNotifier) Send(ctx context.Context, recipient string, msg mailer.Message) {
	msg.To = recipient

	entry := &model.EmailLogEntry{
		Recipient: recipient,
		Subject:   msg.Subject,
		Template:  msg.Template,
		Status:    model.EmailStatusSent,
	}

	if err := n.sender.Send(ctx, msg); err != nil {
		log.Error().Err(err).Str("recipient", recipient).Str("template", msg.Template).
			Msg("failed to send email")
		entry.Status = model.EmailStatusFailed
		entry.ErrorMessage = sql.NullString{String: err.Error(), Valid: true}
	}

	if err := n.emailLog.Record(ctx, entry); err != nil {
		log.Error().Err(err).Str("recipient", recipient).Msg("failed to record email log entry")
	}
}

func (n *DefaultNotifier) NotifyAdmin(ctx context.Context, subject, detail string) {
	if n.adminAddr == "" {
		return
	}
	n.Send(ctx, n.adminAddr, mailer.AdminNotification(subject, detail))
}
