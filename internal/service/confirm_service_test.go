package service_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nickcalamaro/DiceBastion-sub000/internal/model"
	"github.com/nickcalamaro/DiceBastion-sub000/internal/repository"
	"github.com/nickcalamaro/DiceBastion-sub000/internal/service"
	"github.com/nickcalamaro/DiceBastion-sub000/internal/sumup"
	"github.com/nickcalamaro/DiceBastion-sub000/internal/testutil"
)

type confirmFixture struct {
	db          *sqlx.DB
	users       repository.UserRepository
	members     repository.MembershipRepository
	instruments repository.InstrumentRepository
	events      repository.EventRepository
	products    repository.ProductRepository
	txns        repository.TransactionRepository
	emailLog    repository.EmailLogRepository
	provider    *testutil.FakeProvider
	sender      *testutil.FakeSender
	checkouts   service.CheckoutService
	svc         service.ConfirmService
}

func newConfirmFixture(t *testing.T) *confirmFixture {
	t.Helper()
	db := testutil.OpenDB(t)

	f := &confirmFixture{
		db:          db,
		users:       repository.NewUserRepository(db),
		members:     repository.NewMembershipRepository(db),
		instruments: repository.NewInstrumentRepository(db),
		events:      repository.NewEventRepository(db),
		products:    repository.NewProductRepository(db),
		txns:        repository.NewTransactionRepository(db),
		emailLog:    repository.NewEmailLogRepository(db),
		provider:    testutil.NewFakeProvider(),
		sender:      &testutil.FakeSender{},
	}
	notifier := service.NewNotifier(f.sender, f.emailLog, "admin@dicebastion.com")
	f.checkouts = service.NewCheckoutService(
		f.users, f.members, f.events, f.products, f.txns,
		f.provider, testutil.FakeVerifier{OK: true}, "")
	f.svc = service.NewConfirmService(
		f.users, f.members, f.instruments, f.events, f.products,
		f.txns, repository.NewWebhookLogRepository(db), f.provider, notifier)
	return f
}

func (f *confirmFixture) startMembership(t *testing.T) *service.CheckoutResult {
	t.Helper()
	result, err := f.checkouts.CreateMembershipCheckout(context.Background(), membershipRequest())
	require.NoError(t, err)
	return result
}

func TestConfirmMembershipActivates(t *testing.T) {
	f := newConfirmFixture(t)
	ctx := context.Background()
	started := f.startMembership(t)

	result, err := f.svc.ConfirmByOrderRef(ctx, started.OrderRef)
	require.NoError(t, err)
	assert.Equal(t, service.ConfirmStatusConfirmed, result.Status)
	assert.Equal(t, "monthly", result.Plan)

	membership, err := f.members.GetByID(ctx, started.MembershipID)
	require.NoError(t, err)
	assert.Equal(t, model.MembershipStatusActive, membership.Status)
	assert.WithinDuration(t, time.Now().AddDate(0, 1, 0), membership.EndDate, 2*time.Hour)

	txn, err := f.txns.GetByOrderRef(ctx, started.OrderRef)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentStatusPaid, txn.PaymentStatus)
	assert.True(t, txn.PaymentID.Valid)

	// Welcome email went out.
	messages := f.sender.Sent()
	require.NotEmpty(t, messages)
	assert.Equal(t, "alex@example.com", messages[0].To)
}

func TestConfirmMembershipTwiceIsNoOp(t *testing.T) {
	f := newConfirmFixture(t)
	ctx := context.Background()
	started := f.startMembership(t)

	first, err := f.svc.ConfirmByOrderRef(ctx, started.OrderRef)
	require.NoError(t, err)
	require.Equal(t, service.ConfirmStatusConfirmed, first.Status)

	membership, err := f.members.GetByID(ctx, started.MembershipID)
	require.NoError(t, err)
	endAfterFirst := membership.EndDate

	second, err := f.svc.ConfirmByOrderRef(ctx, started.OrderRef)
	require.NoError(t, err)
	assert.Equal(t, service.ConfirmStatusAlreadyActive, second.Status)

	membership, err = f.members.GetByID(ctx, started.MembershipID)
	require.NoError(t, err)
	assert.Equal(t, endAfterFirst, membership.EndDate)
}

func TestConfirmPendingCheckoutStaysPending(t *testing.T) {
	f := newConfirmFixture(t)
	ctx := context.Background()
	started := f.startMembership(t)

	f.provider.GetCheckoutFn = func(ctx context.Context, id string) (*sumup.Checkout, error) {
		return &sumup.Checkout{ID: id, Status: sumup.CheckoutStatusPending}, nil
	}

	result, err := f.svc.ConfirmByOrderRef(ctx, started.OrderRef)
	require.NoError(t, err)
	assert.Equal(t, service.ConfirmStatusPending, result.Status)

	membership, err := f.members.GetByID(ctx, started.MembershipID)
	require.NoError(t, err)
	assert.Equal(t, model.MembershipStatusPending, membership.Status)
}

func TestConfirmAmountMismatchRejected(t *testing.T) {
	f := newConfirmFixture(t)
	ctx := context.Background()
	started := f.startMembership(t)

	f.provider.GetCheckoutFn = func(ctx context.Context, id string) (*sumup.Checkout, error) {
		return &sumup.Checkout{ID: id, Status: sumup.CheckoutStatusPaid, Amount: 0.01, Currency: "GBP"}, nil
	}

	_, err := f.svc.ConfirmByOrderRef(ctx, started.OrderRef)
	assert.ErrorIs(t, err, service.ErrPaymentMismatch)

	membership, err := f.members.GetByID(ctx, started.MembershipID)
	require.NoError(t, err)
	assert.Equal(t, model.MembershipStatusPending, membership.Status)
}

func TestConfirmUnknownOrderRef(t *testing.T) {
	f := newConfirmFixture(t)

	_, err := f.svc.ConfirmByOrderRef(context.Background(), "b7a3f6a0-0000-0000-0000-000000000000")
	assert.ErrorIs(t, err, service.ErrOrderNotFound)
}

func TestConfirmTicketActivatesAndCounts(t *testing.T) {
	f := newConfirmFixture(t)
	ctx := context.Background()

	event := &model.Event{
		Slug: "friday-night-magic", Title: "Friday Night Magic",
		StartsAt: time.Now().AddDate(0, 0, 7), PriceAmount: 500,
		Currency: "GBP", Capacity: 2, Published: true,
	}
	require.NoError(t, f.events.Create(ctx, event))

	started, err := f.checkouts.CreateEventCheckout(ctx, &service.EventCheckoutRequest{
		EventID: event.ID, Email: "alex@example.com", Name: "Alex",
		PrivacyConsent: true, TurnstileToken: "tok",
	})
	require.NoError(t, err)

	result, err := f.svc.ConfirmByOrderRef(ctx, started.OrderRef)
	require.NoError(t, err)
	assert.Equal(t, service.ConfirmStatusConfirmed, result.Status)

	ticket, err := f.events.GetTicketByID(ctx, started.TicketID)
	require.NoError(t, err)
	assert.Equal(t, model.TicketStatusActive, ticket.Status)

	refreshed, err := f.events.GetByID(ctx, event.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, refreshed.TicketsSold)

	// Second delivery does not double-count.
	again, err := f.svc.ConfirmByOrderRef(ctx, started.OrderRef)
	require.NoError(t, err)
	assert.Equal(t, service.ConfirmStatusAlreadyActive, again.Status)

	refreshed, err = f.events.GetByID(ctx, event.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, refreshed.TicketsSold)
}

func TestConfirmTicketAtCapacityReverts(t *testing.T) {
	f := newConfirmFixture(t)
	ctx := context.Background()

	event := &model.Event{
		Slug: "tight-squeeze", Title: "Tight Squeeze",
		StartsAt: time.Now().AddDate(0, 0, 7), PriceAmount: 500,
		Currency: "GBP", Capacity: 1, Published: true,
	}
	require.NoError(t, f.events.Create(ctx, event))

	started, err := f.checkouts.CreateEventCheckout(ctx, &service.EventCheckoutRequest{
		EventID: event.ID, Email: "alex@example.com", Name: "Alex",
		PrivacyConsent: true, TurnstileToken: "tok",
	})
	require.NoError(t, err)

	// Capacity fills between checkout creation and payment confirmation.
	require.NoError(t, f.events.IncrementTicketsSold(ctx, event.ID))

	_, err = f.svc.ConfirmByOrderRef(ctx, started.OrderRef)
	assert.ErrorIs(t, err, service.ErrEventSoldOut)

	ticket, err := f.events.GetTicketByID(ctx, started.TicketID)
	require.NoError(t, err)
	assert.Equal(t, model.TicketStatusPending, ticket.Status)
}

func TestConfirmOrderMarksPaidAndDecrementsStock(t *testing.T) {
	f := newConfirmFixture(t)
	ctx := context.Background()

	dice := &model.Product{Slug: "dice-set", Name: "Dice Set", PriceAmount: 1200, Currency: "GBP", Stock: 5, Active: true}
	require.NoError(t, f.products.Create(ctx, dice))

	started, err := f.checkouts.CreateShopCheckout(ctx, &service.ShopCheckoutRequest{
		Email: "alex@example.com", Name: "Alex",
		PrivacyConsent: true, TurnstileToken: "tok",
		Items: []service.OrderItemRequest{{ProductID: dice.ID, Quantity: 2}},
	})
	require.NoError(t, err)

	result, err := f.svc.ConfirmByOrderRef(ctx, started.OrderRef)
	require.NoError(t, err)
	assert.Equal(t, service.ConfirmStatusConfirmed, result.Status)

	order, err := f.products.GetOrderByID(ctx, started.OrderID)
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusPaid, order.Status)

	product, err := f.products.GetByID(ctx, dice.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, product.Stock)

	// Replay leaves stock alone.
	_, err = f.svc.ConfirmByOrderRef(ctx, started.OrderRef)
	require.NoError(t, err)
	product, err = f.products.GetByID(ctx, dice.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, product.Stock)
}

func TestConfirmMembershipWithAutoRenewStoresInstrument(t *testing.T) {
	f := newConfirmFixture(t)
	ctx := context.Background()

	instrument := sumup.PaymentInstrument{Token: "tok-abc", Active: true, CreatedAt: time.Now()}
	instrument.Card.Type = "VISA"
	instrument.Card.Last4Digits = "4242"
	instrument.Card.ExpiryMonth = 12
	instrument.Card.ExpiryYear = 2030
	f.provider.Instruments = []sumup.PaymentInstrument{instrument}

	req := membershipRequest()
	req.AutoRenew = true
	started, err := f.checkouts.CreateMembershipCheckout(ctx, req)
	require.NoError(t, err)

	_, err = f.svc.ConfirmByOrderRef(ctx, started.OrderRef)
	require.NoError(t, err)

	stored, err := f.instruments.GetActiveByUserID(ctx, started.UserID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, "tok-abc", stored.InstrumentID)
	assert.Equal(t, "4242", stored.Last4)

	membership, err := f.members.GetByID(ctx, started.MembershipID)
	require.NoError(t, err)
	assert.True(t, membership.AutoRenew)
	assert.True(t, membership.PaymentInstrumentID.Valid)
}

func TestConfirmPlanChangeExtendsByNewPlan(t *testing.T) {
	f := newConfirmFixture(t)
	ctx := context.Background()

	started := f.startMembership(t)
	_, err := f.svc.ConfirmByOrderRef(ctx, started.OrderRef)
	require.NoError(t, err)

	membership, err := f.members.GetByID(ctx, started.MembershipID)
	require.NoError(t, err)
	monthlyEnd := membership.EndDate

	// The same member comes back and pays for the quarterly tier.
	req := membershipRequest()
	req.Plan = "quarterly"
	upgrade, err := f.checkouts.CreateMembershipCheckout(ctx, req)
	require.NoError(t, err)
	require.Equal(t, started.MembershipID, upgrade.MembershipID)

	result, err := f.svc.ConfirmByOrderRef(ctx, upgrade.OrderRef)
	require.NoError(t, err)
	assert.Equal(t, service.ConfirmStatusConfirmed, result.Status)
	assert.Equal(t, "quarterly", result.Plan)

	refreshed, err := f.members.GetByID(ctx, started.MembershipID)
	require.NoError(t, err)
	assert.Equal(t, "quarterly", refreshed.Plan)
	assert.Equal(t, int64(2700), refreshed.Amount)
	// Three months on top of the paid-up monthly end, not one.
	assert.WithinDuration(t, monthlyEnd.AddDate(0, 3, 0), refreshed.EndDate, 2*time.Hour)
}

func TestConfirmLosesSettlementRaceWritesNothing(t *testing.T) {
	f := newConfirmFixture(t)
	ctx := context.Background()
	started := f.startMembership(t)

	// The webhook settles the transaction after the poll has read it but
	// before the poll flips it.
	f.provider.GetCheckoutFn = func(ctx context.Context, id string) (*sumup.Checkout, error) {
		txn, err := f.txns.GetByCheckoutID(ctx, id)
		require.NoError(t, err)
		require.NotNil(t, txn)
		_, err = f.txns.MarkPaid(ctx, txn.ID, "pay-webhook")
		require.NoError(t, err)
		return &sumup.Checkout{ID: id, Status: sumup.CheckoutStatusPaid, Amount: 10.00, Currency: "GBP"}, nil
	}

	result, err := f.svc.ConfirmByOrderRef(ctx, started.OrderRef)
	require.NoError(t, err)
	assert.Equal(t, service.ConfirmStatusAlreadyActive, result.Status)

	// The loser performed no extension; the row is exactly as the winner
	// would find it.
	membership, err := f.members.GetByID(ctx, started.MembershipID)
	require.NoError(t, err)
	assert.Equal(t, model.MembershipStatusPending, membership.Status)
}

func webhookBody(t *testing.T, webhookID, checkoutID, reference string) []byte {
	t.Helper()
	body, err := json.Marshal(map[string]interface{}{
		"id":         webhookID,
		"event_type": "checkout.status.updated",
		"payload": map[string]string{
			"checkout_id": checkoutID,
			"reference":   reference,
			"status":      "PAID",
		},
	})
	require.NoError(t, err)
	return body
}

func TestHandleWebhookConfirms(t *testing.T) {
	f := newConfirmFixture(t)
	ctx := context.Background()
	started := f.startMembership(t)

	result, err := f.svc.HandleWebhook(ctx,
		webhookBody(t, "wh-1", started.CheckoutID, started.OrderRef), "sig")
	require.NoError(t, err)
	assert.Equal(t, service.ConfirmStatusConfirmed, result.Status)

	membership, err := f.members.GetByID(ctx, started.MembershipID)
	require.NoError(t, err)
	assert.Equal(t, model.MembershipStatusActive, membership.Status)
}

func TestHandleWebhookRejectsBadSignature(t *testing.T) {
	f := newConfirmFixture(t)
	started := f.startMembership(t)
	f.provider.SignatureValid = false

	_, err := f.svc.HandleWebhook(context.Background(),
		webhookBody(t, "wh-1", started.CheckoutID, started.OrderRef), "bad")
	assert.ErrorIs(t, err, service.ErrInvalidSignature)

	membership, err := f.members.GetByID(context.Background(), started.MembershipID)
	require.NoError(t, err)
	assert.Equal(t, model.MembershipStatusPending, membership.Status)
}

func TestHandleWebhookDeduplicatesDeliveries(t *testing.T) {
	f := newConfirmFixture(t)
	ctx := context.Background()
	started := f.startMembership(t)
	body := webhookBody(t, "wh-once", started.CheckoutID, started.OrderRef)

	first, err := f.svc.HandleWebhook(ctx, body, "sig")
	require.NoError(t, err)
	assert.Equal(t, service.ConfirmStatusConfirmed, first.Status)

	second, err := f.svc.HandleWebhook(ctx, body, "sig")
	require.NoError(t, err)
	assert.Equal(t, service.ConfirmStatusDuplicate, second.Status)
}
