package service

import (
	"context"
	"strings"
	"time"

	"github.com/nickcalamaro/DiceBastion-sub000/internal/model"
	"github.com/nickcalamaro/DiceBastion-sub000/internal/repository"
)

// MembershipStatus is the public view of a member's standing, keyed by
// email so the site can show it without accounts or sessions.
type MembershipStatus struct {
	Active      bool       `json:"active"`
	Plan        string     `json:"plan,omitempty"`
	Status      string     `json:"status,omitempty"`
	StartDate   *time.Time `json:"startDate,omitempty"`
	EndDate     *time.Time `json:"endDate,omitempty"`
	AutoRenew   bool       `json:"autoRenew"`
	CardType    string     `json:"cardType,omitempty"`
	CardLast4   string     `json:"cardLast4,omitempty"`
	CardExpires string     `json:"cardExpires,omitempty"`
}

type MembershipService interface {
	StatusByEmail(ctx context.Context, email string) (*MembershipStatus, error)
	SetAutoRenew(ctx context.Context, email string, enabled bool) (*MembershipStatus, error)
	RemovePaymentMethod(ctx context.Context, email string) error
	RenewalHistory(ctx context.Context, membershipID string) ([]model.RenewalLogEntry, error)
}

type DefaultMembershipService struct {
	users       repository.UserRepository
	memberships repository.MembershipRepository
	instruments repository.InstrumentRepository
}

func NewMembershipService(
	users repository.UserRepository,
	memberships repository.MembershipRepository,
	instruments repository.InstrumentRepository,
) MembershipService {
	return &DefaultMembershipService{
		users:       users,
		memberships: memberships,
		instruments: instruments,
	}
}

func (s *DefaultMembershipService) StatusByEmail(ctx context.Context, email string) (*MembershipStatus, error) {
	membership, user, err := s.lookup(ctx, email)
	if err != nil {
		return nil, err
	}
	if membership == nil {
		return &MembershipStatus{Active: false}, nil
	}
	return s.buildStatus(ctx, user, membership), nil
}

func (s *DefaultMembershipService) SetAutoRenew(ctx context.Context, email string, enabled bool) (*MembershipStatus, error) {
	membership, user, err := s.lookup(ctx, email)
	if err != nil {
		return nil, err
	}
	if membership == nil {
		return nil, ErrMembershipNotFound
	}

	if err := s.memberships.SetAutoRenew(ctx, membership.ID, enabled); err != nil {
		return nil, err
	}
	membership.AutoRenew = enabled
	return s.buildStatus(ctx, user, membership), nil
}

// RemovePaymentMethod deactivates the stored card and turns auto-renew off:
// a membership with no instrument cannot be charged, leaving the flag on
// would only generate failed attempts.
func (s *DefaultMembershipService) RemovePaymentMethod(ctx context.Context, email string) error {
	membership, user, err := s.lookup(ctx, email)
	if err != nil {
		return err
	}
	if user == nil {
		return ErrUserNotFound
	}

	if err := s.instruments.DeactivateByUserID(ctx, user.ID); err != nil {
		return err
	}
	if membership != nil && membership.AutoRenew {
		if err := s.memberships.SetAutoRenew(ctx, membership.ID, false); err != nil {
			return err
		}
	}
	return nil
}

func (s *DefaultMembershipService) RenewalHistory(ctx context.Context, membershipID string) ([]model.RenewalLogEntry, error) {
	return s.memberships.RenewalLogByMembership(ctx, membershipID)
}

func (s *DefaultMembershipService) lookup(ctx context.Context, email string) (*model.Membership, *model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, nil, ErrInvalidEmail
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return nil, nil, err
	}
	if user == nil {
		return nil, nil, nil
	}

	membership, err := s.memberships.GetLatestByUserID(ctx, user.ID)
	if err != nil {
		return nil, nil, err
	}
	return membership, user, nil
}

func (s *DefaultMembershipService) buildStatus(ctx context.Context, user *model.User, membership *model.Membership) *MembershipStatus {
	now := time.Now()
	status := &MembershipStatus{
		Active:    membership.Status == model.MembershipStatusActive && membership.EndDate.After(now),
		Plan:      membership.Plan,
		Status:    membership.Status,
		StartDate: &membership.StartDate,
		EndDate:   &membership.EndDate,
		AutoRenew: membership.AutoRenew,
	}

	if user != nil {
		if instrument, err := s.instruments.GetActiveByUserID(ctx, user.ID); err == nil && instrument != nil {
			status.CardType = instrument.CardType
			status.CardLast4 = instrument.Last4
			status.CardExpires = cardExpiry(instrument)
		}
	}
	return status
}

func cardExpiry(instrument *model.PaymentInstrument) string {
	if instrument.ExpiryMonth == 0 || instrument.ExpiryYear == 0 {
		return ""
	}
	return time.Date(instrument.ExpiryYear, time.Month(instrument.ExpiryMonth), 1, 0, 0, 0, 0, time.UTC).
		Format("01/2006")
}
