package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/nickcalamaro/DiceBastion-sub000/internal/config"
	"github.com/nickcalamaro/DiceBastion-sub000/internal/mailer"
	"github.com/nickcalamaro/DiceBastion-sub000/internal/model"
	"github.com/nickcalamaro/DiceBastion-sub000/internal/repository"
	"github.com/nickcalamaro/DiceBastion-sub000/internal/sumup"
	"github.com/nickcalamaro/DiceBastion-sub000/internal/timeutil"
)

const (
	jobRenewalWarnings  = "renewal_warnings"
	jobRenewalCharges   = "renewal_charges"
	jobMembershipExpiry = "membership_expiry"
)

// SweepReport summarizes one full sweep across its phases.
type SweepReport struct {
	WarningsSent     int   `json:"warningsSent"`
	ChargesAttempted int   `json:"chargesAttempted"`
	ChargesSucceeded int   `json:"chargesSucceeded"`
	ChargesFailed    int   `json:"chargesFailed"`
	Expired          int64 `json:"expired"`
}

// RenewalService runs the daily lifecycle sweep over auto-renewing
// memberships: upcoming-expiry warnings, off-session charges inside the
// grace window, and bulk expiry of lapsed rows.
type RenewalService interface {
	RunSweep(ctx context.Context) (*SweepReport, error)
	RetryRenewal(ctx context.Context, email string) error
}

type DefaultRenewalService struct {
	users       repository.UserRepository
	memberships repository.MembershipRepository
	instruments repository.InstrumentRepository
	txns        repository.TransactionRepository
	jobs        repository.JobLogRepository
	provider    PaymentProvider
	notifier    Notifier
	cfg         config.RenewalConfig

	// sleep is replaceable in tests.
	sleep func(time.Duration)
}

func NewRenewalService(
	users repository.UserRepository,
	memberships repository.MembershipRepository,
	instruments repository.InstrumentRepository,
	txns repository.TransactionRepository,
	jobs repository.JobLogRepository,
	provider PaymentProvider,
	notifier Notifier,
	cfg config.RenewalConfig,
) *DefaultRenewalService {
	return &DefaultRenewalService{
		users:       users,
		memberships: memberships,
		instruments: instruments,
		txns:        txns,
		jobs:        jobs,
		provider:    provider,
		notifier:    notifier,
		cfg:         cfg,
		sleep:       time.Sleep,
	}
}

// RunSweep executes the three phases in order. Each phase is fault-isolated:
// a panic or error in one phase is recorded in the job log and the next
// phase still runs.
func (s *DefaultRenewalService) RunSweep(ctx context.Context) (*SweepReport, error) {
	report := &SweepReport{}

	s.runPhase(ctx, jobRenewalWarnings, func(ctx context.Context, jobLog *model.CronJobLog) error {
		return s.sendWarnings(ctx, report, jobLog)
	})
	s.runPhase(ctx, jobRenewalCharges, func(ctx context.Context, jobLog *model.CronJobLog) error {
		return s.chargeDue(ctx, report, jobLog)
	})
	s.runPhase(ctx, jobMembershipExpiry, func(ctx context.Context, jobLog *model.CronJobLog) error {
		return s.expireLapsed(ctx, report, jobLog)
	})

	log.Info().
		Int("warningsSent", report.WarningsSent).
		Int("chargesAttempted", report.ChargesAttempted).
		Int("chargesSucceeded", report.ChargesSucceeded).
		Int64("expired", report.Expired).
		Msg("renewal sweep finished")
	return report, nil
}

func (s *DefaultRenewalService) runPhase(ctx context.Context, name string, phase func(context.Context, *model.CronJobLog) error) {
	jobLog, err := s.jobs.Start(ctx, name)
	if err != nil {
		log.Error().Err(err).Str("job", name).Msg("failed to start job log")
		jobLog = &model.CronJobLog{ID: uuid.New().String(), JobName: name, StartedAt: time.Now()}
	}

	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("job", name).Interface("panic", r).Msg("sweep phase panicked")
			jobLog.Status = model.JobStatusFailed
			jobLog.ErrorMessage = sql.NullString{String: fmt.Sprint(r), Valid: true}
		}
		jobLog.CompletedAt = sql.NullTime{Time: time.Now(), Valid: true}
		if err := s.jobs.Finish(ctx, jobLog); err != nil {
			log.Error().Err(err).Str("job", name).Msg("failed to finish job log")
		}
	}()

	if err := phase(ctx, jobLog); err != nil {
		log.Error().Err(err).Str("job", name).Msg("sweep phase failed")
		jobLog.Status = model.JobStatusFailed
		jobLog.ErrorMessage = sql.NullString{String: err.Error(), Valid: true}
		return
	}
	if jobLog.Status == "" || jobLog.Status == model.JobStatusRunning {
		if jobLog.RecordsFailed > 0 {
			jobLog.Status = model.JobStatusPartial
		} else {
			jobLog.Status = model.JobStatusCompleted
		}
	}
}

func (s *DefaultRenewalService) sendWarnings(ctx context.Context, report *SweepReport, jobLog *model.CronJobLog) error {
	warnOn := time.Now().AddDate(0, 0, s.cfg.WarningDays)
	due, err := s.memberships.DueForWarning(ctx, warnOn)
	if err != nil {
		return err
	}

	for i := range due {
		m := &due[i]
		jobLog.RecordsProcessed++

		user, err := s.users.GetByID(ctx, m.UserID)
		if err != nil || user == nil {
			jobLog.RecordsFailed++
			continue
		}

		s.notifier.Send(ctx, user.Email,
			mailer.RenewalUpcoming(user.Name, m.Plan, m.EndDate, m.Amount, m.Currency))
		if err := s.memberships.MarkWarningSent(ctx, m.ID); err != nil {
			log.Error().Err(err).Str("membershipId", m.ID).Msg("failed to mark warning sent")
			jobLog.RecordsFailed++
			continue
		}
		jobLog.RecordsSucceeded++
		report.WarningsSent++
	}
	return nil
}

func (s *DefaultRenewalService) chargeDue(ctx context.Context, report *SweepReport, jobLog *model.CronJobLog) error {
	due, err := s.memberships.DueForRenewal(ctx, time.Now(), s.cfg.GraceDays, s.cfg.MaxAttempts)
	if err != nil {
		return err
	}

	for i := range due {
		if i > 0 && s.cfg.Pacing > 0 {
			s.sleep(s.cfg.Pacing)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		jobLog.RecordsProcessed++
		report.ChargesAttempted++
		if err := s.renewOne(ctx, &due[i]); err != nil {
			log.Warn().Err(err).Str("membershipId", due[i].ID).Msg("renewal charge failed")
			jobLog.RecordsFailed++
			report.ChargesFailed++
			continue
		}
		jobLog.RecordsSucceeded++
		report.ChargesSucceeded++
	}
	return nil
}

func (s *DefaultRenewalService) expireLapsed(ctx context.Context, report *SweepReport, jobLog *model.CronJobLog) error {
	expired, err := s.memberships.ExpireLapsed(ctx, time.Now(), s.cfg.GraceDays, s.cfg.MaxAttempts)
	if err != nil {
		return err
	}
	report.Expired = expired
	jobLog.RecordsProcessed = int(expired)
	jobLog.RecordsSucceeded = int(expired)
	return nil
}

// RetryRenewal charges one membership immediately, outside the sweep
// schedule. Used by the admin retry endpoint after a member has updated
// their card.
func (s *DefaultRenewalService) RetryRenewal(ctx context.Context, email string) error {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	if user == nil {
		return ErrUserNotFound
	}

	membership, err := s.memberships.GetLatestByUserID(ctx, user.ID)
	if err != nil {
		return err
	}
	if membership == nil || membership.Status == model.MembershipStatusPending {
		return ErrMembershipNotFound
	}

	// A manual retry starts the attempt counter over.
	if membership.RenewalAttempts > 0 {
		if err := s.memberships.ResetRenewalState(ctx, membership.ID); err != nil {
			return err
		}
		membership.RenewalAttempts = 0
	}
	return s.renewOne(ctx, membership)
}

func (s *DefaultRenewalService) renewOne(ctx context.Context, membership *model.Membership) error {
	now := time.Now()

	instrument, err := s.activeInstrument(ctx, membership)
	if err != nil {
		return err
	}
	if instrument == nil {
		s.recordFailure(ctx, membership, now, "No active payment instrument")
		return errors.New("no active payment instrument")
	}

	plan, ok := LookupPlan(membership.Plan)
	if !ok {
		s.recordFailure(ctx, membership, now, "Unknown plan "+membership.Plan)
		return ErrUnknownPlan
	}

	user, err := s.users.GetByID(ctx, membership.UserID)
	if err != nil {
		return err
	}
	if user == nil {
		return ErrUserNotFound
	}

	customerID, err := ensureProviderCustomer(ctx, s.provider, s.users, user)
	if err != nil {
		// A failed customer setup is a failed attempt like any other: it
		// counts against the budget and can disable auto-renew.
		s.handleChargeFailure(ctx, membership, user, instrument, now, err)
		return err
	}

	orderRef := uuid.New().String()
	txn := &model.Transaction{
		ID:            uuid.New().String(),
		Type:          model.TransactionTypeRenewal,
		ReferenceID:   membership.ID,
		UserID:        user.ID,
		Email:         user.Email,
		Name:          user.Name,
		OrderRef:      orderRef,
		Plan:          plan.ID,
		Amount:        plan.Amount,
		Currency:      plan.Currency,
		PaymentStatus: model.PaymentStatusPending,
		ConsentAt:     now,
	}
	if err := s.txns.Create(ctx, txn); err != nil {
		return err
	}

	checkout, err := s.provider.CreateCheckout(ctx, sumup.CheckoutRequest{
		CheckoutReference: orderRef,
		Amount:            sumup.ToAPIAmount(plan.Amount),
		Currency:          plan.Currency,
		Description:       "Dice Bastion " + plan.Name + " renewal",
		CustomerID:        customerID,
	})
	if err != nil {
		s.handleChargeFailure(ctx, membership, user, instrument, now, err)
		return err
	}
	if err := s.txns.SetCheckoutID(ctx, txn.ID, checkout.ID); err != nil {
		return err
	}

	charged, err := s.provider.CompleteCheckout(ctx, checkout.ID, instrument.InstrumentID)
	if err != nil {
		s.handleChargeFailure(ctx, membership, user, instrument, now, err)
		return err
	}
	if !checkoutPaid(charged.Status) {
		err := fmt.Errorf("charge returned status %s", charged.Status)
		s.handleChargeFailure(ctx, membership, user, instrument, now, err)
		return err
	}

	paymentID := charged.ID
	for _, t := range charged.Transactions {
		if checkoutPaid(t.Status) {
			paymentID = t.ID
		}
	}

	// Settling the transaction is the single-winner gate against the
	// provider webhook: whoever flips pending to PAID performs the
	// extension, so the term is never extended twice for one charge.
	won, err := s.txns.MarkPaid(ctx, txn.ID, paymentID)
	if err != nil {
		return err
	}
	if !won {
		log.Info().Str("membershipId", membership.ID).Str("orderRef", orderRef).
			Msg("renewal charge settled by webhook delivery")
		return nil
	}

	// Extend from the paid-up end when it is still in the future so an
	// early charge never shortens the term.
	base := now
	if membership.EndDate.After(now) {
		base = membership.EndDate
	}
	newEnd := timeutil.AddMonths(base, plan.Months)

	if err := s.memberships.ExtendActive(ctx, membership.ID, newEnd); err != nil {
		return err
	}
	if err := s.memberships.ResetRenewalState(ctx, membership.ID); err != nil {
		return err
	}

	s.appendLog(ctx, membership, now, model.RenewalStatusSuccess, paymentID, "")
	s.notifier.Send(ctx, user.Email,
		mailer.RenewalSuccess(user.Name, plan.Name, newEnd, plan.Amount, plan.Currency))

	log.Info().Str("membershipId", membership.ID).Time("newEnd", newEnd).
		Msg("membership renewed")
	membership.EndDate = newEnd
	membership.RenewalAttempts = 0
	return nil
}

func (s *DefaultRenewalService) activeInstrument(ctx context.Context, membership *model.Membership) (*model.PaymentInstrument, error) {
	if membership.PaymentInstrumentID.Valid {
		instrument, err := s.instruments.GetByID(ctx, membership.PaymentInstrumentID.String)
		if err != nil {
			return nil, err
		}
		if instrument != nil && instrument.IsActive {
			return instrument, nil
		}
	}
	return s.instruments.GetActiveByUserID(ctx, membership.UserID)
}

// handleChargeFailure records the attempt and decides whether the
// membership keeps retrying, loses its stored card, or gives up.
func (s *DefaultRenewalService) handleChargeFailure(ctx context.Context, membership *model.Membership, user *model.User, instrument *model.PaymentInstrument, now time.Time, cause error) {
	s.recordFailure(ctx, membership, now, cause.Error())
	attempts := membership.RenewalAttempts + 1

	if isTokenError(cause) {
		// The stored card is unusable; further retries cannot succeed.
		if err := s.instruments.Deactivate(ctx, instrument.ID); err != nil {
			log.Error().Err(err).Str("instrumentId", instrument.ID).Msg("failed to deactivate instrument")
		}
		if err := s.memberships.SetAutoRenew(ctx, membership.ID, false); err != nil {
			log.Error().Err(err).Str("membershipId", membership.ID).Msg("failed to disable auto-renew")
		}
		s.notifier.Send(ctx, user.Email, mailer.CardProblem(user.Name))
		s.notifier.NotifyAdmin(ctx, "Stored card rejected",
			fmt.Sprintf("Renewal for %s failed with a card/token error; auto-renew disabled.", user.Email))
		return
	}

	if attempts >= s.cfg.MaxAttempts {
		if err := s.memberships.SetAutoRenew(ctx, membership.ID, false); err != nil {
			log.Error().Err(err).Str("membershipId", membership.ID).Msg("failed to disable auto-renew")
		}
		s.notifier.Send(ctx, user.Email, mailer.RenewalFinalFailure(user.Name))
		s.notifier.NotifyAdmin(ctx, "Renewal abandoned",
			fmt.Sprintf("Renewal for %s failed %d times; auto-renew disabled.", user.Email, attempts))
		return
	}

	s.notifier.Send(ctx, user.Email, mailer.RenewalRetry(user.Name, attempts, s.cfg.MaxAttempts))
}

func (s *DefaultRenewalService) recordFailure(ctx context.Context, membership *model.Membership, now time.Time, message string) {
	if err := s.memberships.RecordRenewalFailure(ctx, membership.ID, now); err != nil {
		log.Error().Err(err).Str("membershipId", membership.ID).Msg("failed to record renewal failure")
	}
	s.appendLog(ctx, membership, now, model.RenewalStatusFailed, "", message)
}

func (s *DefaultRenewalService) appendLog(ctx context.Context, membership *model.Membership, attemptAt time.Time, status, paymentID, errMsg string) {
	entry := &model.RenewalLogEntry{
		ID:           uuid.New().String(),
		MembershipID: membership.ID,
		AttemptDate:  attemptAt,
		Status:       status,
		Amount:       membership.Amount,
		Currency:     membership.Currency,
	}
	if paymentID != "" {
		entry.PaymentID = sql.NullString{String: paymentID, Valid: true}
	}
	if errMsg != "" {
		entry.ErrorMessage = sql.NullString{String: errMsg, Valid: true}
	}
	if err := s.memberships.AppendRenewalLog(ctx, entry); err != nil {
		log.Error().Err(err).Str("membershipId", membership.ID).Msg("failed to append renewal log")
	}
}

// tokenErrorMarkers are the substrings that flag a charge failure as a
// problem with the stored instrument itself. Any single match counts; "card
// declined" is a token error even though nothing is expired.
var tokenErrorMarkers = []string{"invalid", "expired", "token", "card"}

// isTokenError reports whether a charge failure points at the stored
// instrument itself rather than a transient decline. A structured API error
// code is checked first; the message scan covers codes the provider leaves
// unset.
func isTokenError(err error) bool {
	var apiErr *sumup.APIError
	if errors.As(err, &apiErr) {
		switch strings.ToUpper(apiErr.Code) {
		case "INVALID_TOKEN", "TOKEN_EXPIRED", "CARD_EXPIRED", "INVALID_CARD":
			return true
		}
	}

	msg := strings.ToLower(err.Error())
	for _, marker := range tokenErrorMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
