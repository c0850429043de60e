package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nickcalamaro/DiceBastion-sub000/internal/config"
	"github.com/nickcalamaro/DiceBastion-sub000/internal/model"
	"github.com/nickcalamaro/DiceBastion-sub000/internal/repository"
	"github.com/nickcalamaro/DiceBastion-sub000/internal/service"
	"github.com/nickcalamaro/DiceBastion-sub000/internal/sumup"
	"github.com/nickcalamaro/DiceBastion-sub000/internal/testutil"
)

type renewalFixture struct {
	db          *sqlx.DB
	users       repository.UserRepository
	members     repository.MembershipRepository
	instruments repository.InstrumentRepository
	txns        repository.TransactionRepository
	jobs        repository.JobLogRepository
	provider    *testutil.FakeProvider
	sender      *testutil.FakeSender
	svc         *service.DefaultRenewalService
}

func newRenewalFixture(t *testing.T) *renewalFixture {
	t.Helper()
	db := testutil.OpenDB(t)

	f := &renewalFixture{
		db:          db,
		users:       repository.NewUserRepository(db),
		members:     repository.NewMembershipRepository(db),
		instruments: repository.NewInstrumentRepository(db),
		txns:        repository.NewTransactionRepository(db),
		jobs:        repository.NewJobLogRepository(db),
		provider:    testutil.NewFakeProvider(),
		sender:      &testutil.FakeSender{},
	}
	notifier := service.NewNotifier(f.sender, repository.NewEmailLogRepository(db), "admin@dicebastion.com")
	f.svc = service.NewRenewalService(
		f.users, f.members, f.instruments, f.txns, f.jobs,
		f.provider, notifier, config.RenewalConfig{
			WarningDays: 7,
			GraceDays:   30,
			MaxAttempts: 3,
		})
	return f
}

// seedMember creates a user with an active auto-renewing membership ending
// at end, plus a stored card.
func (f *renewalFixture) seedMember(t *testing.T, email string, end time.Time, attempts int) *model.Membership {
	t.Helper()
	ctx := context.Background()

	user := &model.User{Email: email, Name: "Alex"}
	require.NoError(t, f.users.Create(ctx, user))
	f.provider.Customers["dicebastion-"+user.ID] = true

	membership := &model.Membership{
		UserID:          user.ID,
		Plan:            "monthly",
		Status:          model.MembershipStatusActive,
		StartDate:       end.AddDate(0, -1, 0),
		EndDate:         end,
		AutoRenew:       true,
		RenewalAttempts: attempts,
		Amount:          1000,
		Currency:        "GBP",
	}
	require.NoError(t, f.members.Create(ctx, membership))

	instrument := &model.PaymentInstrument{
		UserID:       user.ID,
		InstrumentID: "tok-" + user.ID,
		CardType:     "VISA",
		Last4:        "4242",
		ExpiryMonth:  12,
		ExpiryYear:   2030,
	}
	require.NoError(t, f.instruments.Upsert(ctx, instrument))
	return membership
}

func TestSweepRenewsDueMembership(t *testing.T) {
	f := newRenewalFixture(t)
	ctx := context.Background()

	expiredYesterday := time.Now().AddDate(0, 0, -1)
	membership := f.seedMember(t, "alex@example.com", expiredYesterday, 0)

	report, err := f.svc.RunSweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.ChargesAttempted)
	assert.Equal(t, 1, report.ChargesSucceeded)

	refreshed, err := f.members.GetByID(ctx, membership.ID)
	require.NoError(t, err)
	assert.Equal(t, model.MembershipStatusActive, refreshed.Status)
	assert.True(t, refreshed.EndDate.After(time.Now().AddDate(0, 0, 25)),
		"end date extended by a month from the lapsed end")
	assert.Equal(t, 0, refreshed.RenewalAttempts)

	entries, err := f.members.RenewalLogByMembership(ctx, membership.ID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, model.RenewalStatusSuccess, entries[0].Status)

	// The off-session charge used the stored token.
	require.Len(t, f.provider.Completed, 1)
}

func TestSweepRecordsFailureAndKeepsRetrying(t *testing.T) {
	f := newRenewalFixture(t)
	ctx := context.Background()

	membership := f.seedMember(t, "alex@example.com", time.Now().AddDate(0, 0, -1), 0)
	f.provider.CompleteCheckoutFn = func(ctx context.Context, id, token string) (*sumup.Checkout, error) {
		return nil, &sumup.APIError{Status: 402, Message: "insufficient funds"}
	}

	report, err := f.svc.RunSweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.ChargesFailed)

	refreshed, err := f.members.GetByID(ctx, membership.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, refreshed.RenewalAttempts)
	assert.True(t, refreshed.AutoRenew, "a transient decline keeps auto-renew on")

	entries, err := f.members.RenewalLogByMembership(ctx, membership.ID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, model.RenewalStatusFailed, entries[0].Status)
}

func TestSweepDisablesAutoRenewAfterMaxAttempts(t *testing.T) {
	f := newRenewalFixture(t)
	ctx := context.Background()

	membership := f.seedMember(t, "alex@example.com", time.Now().AddDate(0, 0, -1), 2)
	f.provider.CompleteCheckoutFn = func(ctx context.Context, id, token string) (*sumup.Checkout, error) {
		return nil, &sumup.APIError{Status: 402, Message: "insufficient funds"}
	}

	_, err := f.svc.RunSweep(ctx)
	require.NoError(t, err)

	refreshed, err := f.members.GetByID(ctx, membership.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, refreshed.RenewalAttempts)
	assert.False(t, refreshed.AutoRenew)
}

func TestSweepTokenErrorDeactivatesInstrument(t *testing.T) {
	f := newRenewalFixture(t)
	ctx := context.Background()

	membership := f.seedMember(t, "alex@example.com", time.Now().AddDate(0, 0, -1), 0)
	f.provider.CompleteCheckoutFn = func(ctx context.Context, id, token string) (*sumup.Checkout, error) {
		return nil, &sumup.APIError{Status: 400, Code: "INVALID_TOKEN", Message: "token is invalid"}
	}

	_, err := f.svc.RunSweep(ctx)
	require.NoError(t, err)

	refreshed, err := f.members.GetByID(ctx, membership.ID)
	require.NoError(t, err)
	assert.False(t, refreshed.AutoRenew)

	stored, err := f.instruments.GetActiveByUserID(ctx, membership.UserID)
	require.NoError(t, err)
	assert.Nil(t, stored, "unusable card is deactivated on the first attempt")
}

func TestSweepSkipsMembershipWithoutInstrument(t *testing.T) {
	f := newRenewalFixture(t)
	ctx := context.Background()

	membership := f.seedMember(t, "alex@example.com", time.Now().AddDate(0, 0, -1), 0)
	require.NoError(t, f.instruments.DeactivateByUserID(ctx, membership.UserID))

	report, err := f.svc.RunSweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.ChargesFailed)
	require.Empty(t, f.provider.Completed, "no charge is attempted without a card")

	refreshed, err := f.members.GetByID(ctx, membership.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, refreshed.RenewalAttempts)
}

func TestSweepSendsWarnings(t *testing.T) {
	f := newRenewalFixture(t)
	ctx := context.Background()

	membership := f.seedMember(t, "alex@example.com", time.Now().AddDate(0, 0, 7), 0)

	report, err := f.svc.RunSweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.WarningsSent)
	assert.Zero(t, report.ChargesAttempted)

	refreshed, err := f.members.GetByID(ctx, membership.ID)
	require.NoError(t, err)
	assert.True(t, refreshed.RenewalWarningSent)

	messages := f.sender.Sent()
	require.Len(t, messages, 1)
	assert.Equal(t, "alex@example.com", messages[0].To)

	// A second sweep does not warn again.
	report, err = f.svc.RunSweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, report.WarningsSent)
}

func TestSweepExpiresLapsedMemberships(t *testing.T) {
	f := newRenewalFixture(t)
	ctx := context.Background()

	// Past the grace window with auto-renew off: expires.
	noRenew := f.seedMember(t, "old@example.com", time.Now().AddDate(0, 0, -45), 0)
	require.NoError(t, f.members.SetAutoRenew(ctx, noRenew.ID, false))

	// Past the grace window with the attempt budget spent: expires.
	exhausted := f.seedMember(t, "failed@example.com", time.Now().AddDate(0, 0, -45), 3)

	// Auto-renew off but still inside the grace window: keeps active.
	inGrace := f.seedMember(t, "grace@example.com", time.Now().AddDate(0, 0, -10), 0)
	require.NoError(t, f.members.SetAutoRenew(ctx, inGrace.ID, false))

	// Past the grace window but auto-renewing with attempts left: keeps
	// active, renewal remains viable.
	viable := f.seedMember(t, "viable@example.com", time.Now().AddDate(0, 0, -45), 1)

	report, err := f.svc.RunSweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), report.Expired)

	for _, want := range []struct {
		id     string
		status string
	}{
		{noRenew.ID, model.MembershipStatusExpired},
		{exhausted.ID, model.MembershipStatusExpired},
		{inGrace.ID, model.MembershipStatusActive},
		{viable.ID, model.MembershipStatusActive},
	} {
		refreshed, err := f.members.GetByID(ctx, want.id)
		require.NoError(t, err)
		assert.Equal(t, want.status, refreshed.Status)
	}
}

func TestSweepWritesJobLog(t *testing.T) {
	f := newRenewalFixture(t)
	ctx := context.Background()

	_, err := f.svc.RunSweep(ctx)
	require.NoError(t, err)

	entries, err := f.jobs.List(ctx, 10, 0)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	for _, entry := range entries {
		assert.Equal(t, model.JobStatusCompleted, entry.Status)
		assert.True(t, entry.CompletedAt.Valid)
	}
}

func TestRetryRenewalByEmail(t *testing.T) {
	f := newRenewalFixture(t)
	ctx := context.Background()

	membership := f.seedMember(t, "alex@example.com", time.Now().AddDate(0, 0, -1), 2)

	require.NoError(t, f.svc.RetryRenewal(ctx, "alex@example.com"))

	refreshed, err := f.members.GetByID(ctx, membership.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, refreshed.RenewalAttempts)
	assert.True(t, refreshed.EndDate.After(time.Now().AddDate(0, 0, 25)))
}

func TestRetryRenewalUnknownEmail(t *testing.T) {
	f := newRenewalFixture(t)
	err := f.svc.RetryRenewal(context.Background(), "nobody@example.com")
	assert.ErrorIs(t, err, service.ErrUserNotFound)
}

func TestSweepCardDeclinedIsTokenError(t *testing.T) {
	f := newRenewalFixture(t)
	ctx := context.Background()

	membership := f.seedMember(t, "alex@example.com", time.Now().AddDate(0, 0, -1), 0)
	// No structured code and only one marker word in the message.
	f.provider.CompleteCheckoutFn = func(ctx context.Context, id, token string) (*sumup.Checkout, error) {
		return nil, &sumup.APIError{Status: 402, Message: "card declined"}
	}

	_, err := f.svc.RunSweep(ctx)
	require.NoError(t, err)

	refreshed, err := f.members.GetByID(ctx, membership.ID)
	require.NoError(t, err)
	assert.False(t, refreshed.AutoRenew, "a card error disables auto-renew on the first attempt")

	stored, err := f.instruments.GetActiveByUserID(ctx, membership.UserID)
	require.NoError(t, err)
	assert.Nil(t, stored)
}

func TestSweepCustomerSetupFailureCountsAsAttempt(t *testing.T) {
	f := newRenewalFixture(t)
	ctx := context.Background()

	membership := f.seedMember(t, "alex@example.com", time.Now().AddDate(0, 0, -1), 2)
	delete(f.provider.Customers, "dicebastion-"+membership.UserID)
	f.provider.CreateCustomerFn = func(ctx context.Context, customerID, name, email string) (*sumup.Customer, error) {
		return nil, &sumup.APIError{Status: 503, Message: "service unavailable"}
	}

	report, err := f.svc.RunSweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.ChargesFailed)

	refreshed, err := f.members.GetByID(ctx, membership.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, refreshed.RenewalAttempts)
	assert.False(t, refreshed.AutoRenew, "the third failure disables auto-renew whatever its cause")

	entries, err := f.members.RenewalLogByMembership(ctx, membership.ID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, model.RenewalStatusFailed, entries[0].Status)
}

func TestSweepChargeSettledByWebhookExtendsOnce(t *testing.T) {
	f := newRenewalFixture(t)
	ctx := context.Background()

	end := time.Now().AddDate(0, 0, -1)
	membership := f.seedMember(t, "alex@example.com", end, 0)

	// The webhook lands between the charge and the sweep's own settlement:
	// the transaction is already PAID when the sweep tries to flip it.
	f.provider.CompleteCheckoutFn = func(ctx context.Context, id, token string) (*sumup.Checkout, error) {
		txn, err := f.txns.GetByCheckoutID(ctx, id)
		require.NoError(t, err)
		require.NotNil(t, txn)
		_, err = f.txns.MarkPaid(ctx, txn.ID, "pay-webhook")
		require.NoError(t, err)
		return &sumup.Checkout{ID: id, Status: sumup.CheckoutStatusPaid}, nil
	}

	report, err := f.svc.RunSweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.ChargesSucceeded)

	refreshed, err := f.members.GetByID(ctx, membership.ID)
	require.NoError(t, err)
	assert.WithinDuration(t, end, refreshed.EndDate, time.Minute,
		"the losing channel leaves the term untouched")
}
