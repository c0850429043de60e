package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nickcalamaro/DiceBastion-sub000/internal/model"
	"github.com/nickcalamaro/DiceBastion-sub000/internal/repository"
	"github.com/nickcalamaro/DiceBastion-sub000/internal/service"
	"github.com/nickcalamaro/DiceBastion-sub000/internal/testutil"
)

type memberFixture struct {
	users       repository.UserRepository
	members     repository.MembershipRepository
	instruments repository.InstrumentRepository
	svc         service.MembershipService
}

func newMemberFixture(t *testing.T) *memberFixture {
	t.Helper()
	db := testutil.OpenDB(t)

	f := &memberFixture{
		users:       repository.NewUserRepository(db),
		members:     repository.NewMembershipRepository(db),
		instruments: repository.NewInstrumentRepository(db),
	}
	f.svc = service.NewMembershipService(f.users, f.members, f.instruments)
	return f
}

func (f *memberFixture) seedActive(t *testing.T, email string) (*model.User, *model.Membership) {
	t.Helper()
	ctx := context.Background()

	user := &model.User{Email: email, Name: "Alex"}
	require.NoError(t, f.users.Create(ctx, user))

	membership := &model.Membership{
		UserID:    user.ID,
		Plan:      "monthly",
		Status:    model.MembershipStatusActive,
		StartDate: time.Now().AddDate(0, -1, 0),
		EndDate:   time.Now().AddDate(0, 0, 20),
		AutoRenew: true,
		Amount:    1000,
		Currency:  "GBP",
	}
	require.NoError(t, f.members.Create(ctx, membership))

	require.NoError(t, f.instruments.Upsert(ctx, &model.PaymentInstrument{
		UserID: user.ID, InstrumentID: "tok-1", CardType: "VISA", Last4: "4242",
		ExpiryMonth: 6, ExpiryYear: 2030,
	}))
	return user, membership
}

func TestStatusByEmail(t *testing.T) {
	f := newMemberFixture(t)
	f.seedActive(t, "alex@example.com")

	status, err := f.svc.StatusByEmail(context.Background(), "Alex@Example.com")
	require.NoError(t, err)
	assert.True(t, status.Active)
	assert.Equal(t, "monthly", status.Plan)
	assert.True(t, status.AutoRenew)
	assert.Equal(t, "4242", status.CardLast4)
	assert.Equal(t, "06/2030", status.CardExpires)
}

func TestStatusByEmailUnknownMember(t *testing.T) {
	f := newMemberFixture(t)

	status, err := f.svc.StatusByEmail(context.Background(), "nobody@example.com")
	require.NoError(t, err)
	assert.False(t, status.Active)
	assert.Empty(t, status.Plan)
}

func TestStatusByEmailExpiredMembership(t *testing.T) {
	f := newMemberFixture(t)
	ctx := context.Background()

	user := &model.User{Email: "old@example.com", Name: "Sam"}
	require.NoError(t, f.users.Create(ctx, user))
	require.NoError(t, f.members.Create(ctx, &model.Membership{
		UserID: user.ID, Plan: "monthly", Status: model.MembershipStatusExpired,
		StartDate: time.Now().AddDate(0, -3, 0), EndDate: time.Now().AddDate(0, -2, 0),
		Amount: 1000, Currency: "GBP",
	}))

	status, err := f.svc.StatusByEmail(ctx, "old@example.com")
	require.NoError(t, err)
	assert.False(t, status.Active)
	assert.Equal(t, model.MembershipStatusExpired, status.Status)
}

func TestSetAutoRenewToggle(t *testing.T) {
	f := newMemberFixture(t)
	ctx := context.Background()
	_, membership := f.seedActive(t, "alex@example.com")

	status, err := f.svc.SetAutoRenew(ctx, "alex@example.com", false)
	require.NoError(t, err)
	assert.False(t, status.AutoRenew)

	refreshed, err := f.members.GetByID(ctx, membership.ID)
	require.NoError(t, err)
	assert.False(t, refreshed.AutoRenew)
}

func TestSetAutoRenewUnknownMember(t *testing.T) {
	f := newMemberFixture(t)

	_, err := f.svc.SetAutoRenew(context.Background(), "nobody@example.com", true)
	assert.ErrorIs(t, err, service.ErrMembershipNotFound)
}

func TestRemovePaymentMethod(t *testing.T) {
	f := newMemberFixture(t)
	ctx := context.Background()
	user, membership := f.seedActive(t, "alex@example.com")

	require.NoError(t, f.svc.RemovePaymentMethod(ctx, "alex@example.com"))

	stored, err := f.instruments.GetActiveByUserID(ctx, user.ID)
	require.NoError(t, err)
	assert.Nil(t, stored)

	// Auto-renew turns off with the card gone.
	refreshed, err := f.members.GetByID(ctx, membership.ID)
	require.NoError(t, err)
	assert.False(t, refreshed.AutoRenew)
}
