package service

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/nickcalamaro/DiceBastion-sub000/internal/model"
	"github.com/nickcalamaro/DiceBastion-sub000/internal/repository"
	"github.com/nickcalamaro/DiceBastion-sub000/internal/sumup"
	"github.com/nickcalamaro/DiceBastion-sub000/internal/turnstile"
)

var emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

const maxNameLength = 100

type MembershipCheckoutRequest struct {
	Email            string `json:"email"`
	Name             string `json:"name"`
	Plan             string `json:"plan"`
	PrivacyConsent   bool   `json:"privacyConsent"`
	MarketingConsent bool   `json:"marketingConsent"`
	TurnstileToken   string `json:"turnstileToken"`
	AutoRenew        bool   `json:"autoRenew"`
	IdempotencyKey   string `json:"-"`
	ClientIP         string `json:"-"`
}

type EventCheckoutRequest struct {
	EventID        string `json:"-"`
	Email          string `json:"email"`
	Name           string `json:"name"`
	PrivacyConsent bool   `json:"privacyConsent"`
	TurnstileToken string `json:"turnstileToken"`
	IdempotencyKey string `json:"-"`
	ClientIP       string `json:"-"`
}

type OrderItemRequest struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

type ShopCheckoutRequest struct {
	Email          string             `json:"email"`
	Name           string             `json:"name"`
	Items          []OrderItemRequest `json:"items"`
	PrivacyConsent bool               `json:"privacyConsent"`
	TurnstileToken string             `json:"turnstileToken"`
	IdempotencyKey string             `json:"-"`
	ClientIP       string             `json:"-"`
}

type CheckoutResult struct {
	OrderRef     string `json:"orderRef"`
	CheckoutID   string `json:"checkoutId"`
	MembershipID string `json:"membershipId,omitempty"`
	TicketID     string `json:"ticketId,omitempty"`
	OrderID      string `json:"orderId,omitempty"`
	UserID       string `json:"userId"`
}

type CheckoutService interface {
	CreateMembershipCheckout(ctx context.Context, req *MembershipCheckoutRequest) (*CheckoutResult, error)
	CreateEventCheckout(ctx context.Context, req *EventCheckoutRequest) (*CheckoutResult, error)
	CreateShopCheckout(ctx context.Context, req *ShopCheckoutRequest) (*CheckoutResult, error)
}

type DefaultCheckoutService struct {
	users       repository.UserRepository
	memberships repository.MembershipRepository
	events      repository.EventRepository
	products    repository.ProductRepository
	txns        repository.TransactionRepository
	provider    PaymentProvider
	verifier    turnstile.Verifier
	returnURL   string
}

func NewCheckoutService(
	users repository.UserRepository,
	memberships repository.MembershipRepository,
	events repository.EventRepository,
	products repository.ProductRepository,
	txns repository.TransactionRepository,
	provider PaymentProvider,
	verifier turnstile.Verifier,
	returnURL string,
) CheckoutService {
	return &DefaultCheckoutService{
		users:       users,
		memberships: memberships,
		events:      events,
		products:    products,
		txns:        txns,
		provider:    provider,
		verifier:    verifier,
		returnURL:   returnURL,
	}
}

func (s *DefaultCheckoutService) CreateMembershipCheckout(ctx context.Context, req *MembershipCheckoutRequest) (*CheckoutResult, error) {
	if err := s.validateIdentity(ctx, req.Email, req.Name, req.PrivacyConsent, req.TurnstileToken, req.ClientIP); err != nil {
		return nil, err
	}

	plan, ok := LookupPlan(req.Plan)
	if !ok {
		return nil, ErrUnknownPlan
	}

	user, err := s.ensureUser(ctx, req.Email, req.Name, req.MarketingConsent)
	if err != nil {
		return nil, err
	}

	// Idempotency check before any write: a retried request returns the
	// original session untouched.
	if req.IdempotencyKey != "" {
		prior, err := s.txns.GetByIdempotencyKey(ctx, model.TransactionTypeMembership, user.ID, req.IdempotencyKey)
		if err != nil {
			return nil, err
		}
		if prior != nil && prior.CheckoutID.Valid {
			log.Info().Str("orderRef", prior.OrderRef).Str("idempotencyKey", req.IdempotencyKey).
				Msg("replaying idempotent membership checkout")
			return &CheckoutResult{
				OrderRef:     prior.OrderRef,
				CheckoutID:   prior.CheckoutID.String,
				MembershipID: prior.ReferenceID,
				UserID:       user.ID,
			}, nil
		}
	}

	// Extend the existing row on a repeat purchase rather than inserting a
	// second membership for the user.
	membership, err := s.memberships.GetActiveByUserID(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	if membership == nil {
		membership = &model.Membership{
			UserID:    user.ID,
			Plan:      plan.ID,
			Status:    model.MembershipStatusPending,
			StartDate: time.Now(),
			EndDate:   time.Now(),
			AutoRenew: req.AutoRenew,
			Amount:    plan.Amount,
			Currency:  plan.Currency,
		}
		if err := s.memberships.Create(ctx, membership); err != nil {
			return nil, err
		}
	}

	var customerID string
	if req.AutoRenew {
		customerID, err = ensureProviderCustomer(ctx, s.provider, s.users, user)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrSumUpCheckoutFailed, err)
		}
		if !membership.AutoRenew {
			if err := s.memberships.SetAutoRenew(ctx, membership.ID, true); err != nil {
				return nil, err
			}
		}
	}

	orderRef := uuid.New().String()
	txn := &model.Transaction{
		Type:           model.TransactionTypeMembership,
		ReferenceID:    membership.ID,
		UserID:         user.ID,
		Email:          user.Email,
		Name:           user.Name,
		OrderRef:       orderRef,
		Plan:           plan.ID,
		Amount:         plan.Amount,
		Currency:       plan.Currency,
		PaymentStatus:  model.PaymentStatusPending,
		IdempotencyKey: toNullString(req.IdempotencyKey),
		ConsentAt:      time.Now(),
	}
	if err := s.txns.Create(ctx, txn); err != nil {
		return nil, err
	}

	checkoutReq := sumup.CheckoutRequest{
		CheckoutReference: orderRef,
		Amount:            sumup.ToAPIAmount(plan.Amount),
		Currency:          plan.Currency,
		Description:       "Dice Bastion " + plan.Name,
		ReturnURL:         s.returnURL,
	}
	if req.AutoRenew {
		checkoutReq.Purpose = sumup.PurposeSetupRecurring
		checkoutReq.CustomerID = customerID
	}

	checkoutID, err := s.createProviderCheckout(ctx, txn, checkoutReq)
	if err != nil {
		return nil, err
	}

	return &CheckoutResult{
		OrderRef:     orderRef,
		CheckoutID:   checkoutID,
		MembershipID: membership.ID,
		UserID:       user.ID,
	}, nil
}

func (s *DefaultCheckoutService) CreateEventCheckout(ctx context.Context, req *EventCheckoutRequest) (*CheckoutResult, error) {
	if err := s.validateIdentity(ctx, req.Email, req.Name, req.PrivacyConsent, req.TurnstileToken, req.ClientIP); err != nil {
		return nil, err
	}

	event, err := s.events.GetByID(ctx, req.EventID)
	if err != nil {
		return nil, err
	}
	if event == nil || !event.Published {
		return nil, ErrEventNotFound
	}
	if event.TicketsSold >= event.Capacity {
		return nil, ErrEventSoldOut
	}

	user, err := s.ensureUser(ctx, req.Email, req.Name, false)
	if err != nil {
		return nil, err
	}

	if req.IdempotencyKey != "" {
		prior, err := s.txns.GetByIdempotencyKey(ctx, model.TransactionTypeTicket, user.ID, req.IdempotencyKey)
		if err != nil {
			return nil, err
		}
		if prior != nil && prior.CheckoutID.Valid {
			log.Info().Str("orderRef", prior.OrderRef).Msg("replaying idempotent event checkout")
			return &CheckoutResult{
				OrderRef:   prior.OrderRef,
				CheckoutID: prior.CheckoutID.String,
				TicketID:   prior.ReferenceID,
				UserID:     user.ID,
			}, nil
		}
	}

	ticket := &model.Ticket{
		EventID: event.ID,
		UserID:  user.ID,
		Status:  model.TicketStatusPending,
	}
	if err := s.events.CreateTicket(ctx, ticket); err != nil {
		return nil, err
	}

	orderRef := fmt.Sprintf("EVT-%s-%s", event.ID, uuid.New().String())
	txn := &model.Transaction{
		Type:           model.TransactionTypeTicket,
		ReferenceID:    ticket.ID,
		UserID:         user.ID,
		Email:          user.Email,
		Name:           user.Name,
		OrderRef:       orderRef,
		Amount:         event.PriceAmount,
		Currency:       event.Currency,
		PaymentStatus:  model.PaymentStatusPending,
		IdempotencyKey: toNullString(req.IdempotencyKey),
		ConsentAt:      time.Now(),
	}
	if err := s.txns.Create(ctx, txn); err != nil {
		return nil, err
	}

	checkoutID, err := s.createProviderCheckout(ctx, txn, sumup.CheckoutRequest{
		CheckoutReference: orderRef,
		Amount:            sumup.ToAPIAmount(event.PriceAmount),
		Currency:          event.Currency,
		Description:       "Ticket: " + event.Title,
		ReturnURL:         s.returnURL,
	})
	if err != nil {
		return nil, err
	}

	return &CheckoutResult{
		OrderRef:   orderRef,
		CheckoutID: checkoutID,
		TicketID:   ticket.ID,
		UserID:     user.ID,
	}, nil
}

func (s *DefaultCheckoutService) CreateShopCheckout(ctx context.Context, req *ShopCheckoutRequest) (*CheckoutResult, error) {
	if err := s.validateIdentity(ctx, req.Email, req.Name, req.PrivacyConsent, req.TurnstileToken, req.ClientIP); err != nil {
		return nil, err
	}
	if len(req.Items) == 0 {
		return nil, ErrMissingFields
	}

	user, err := s.ensureUser(ctx, req.Email, req.Name, false)
	if err != nil {
		return nil, err
	}

	if req.IdempotencyKey != "" {
		prior, err := s.txns.GetByIdempotencyKey(ctx, model.TransactionTypeOrder, user.ID, req.IdempotencyKey)
		if err != nil {
			return nil, err
		}
		if prior != nil && prior.CheckoutID.Valid {
			log.Info().Str("orderRef", prior.OrderRef).Msg("replaying idempotent shop checkout")
			return &CheckoutResult{
				OrderRef:   prior.OrderRef,
				CheckoutID: prior.CheckoutID.String,
				OrderID:    prior.ReferenceID,
				UserID:     user.ID,
			}, nil
		}
	}

	var total int64
	currency := ""
	items := make([]model.OrderItem, 0, len(req.Items))
	for _, item := range req.Items {
		if item.Quantity <= 0 {
			return nil, ErrInvalidAmount
		}
		product, err := s.products.GetByID(ctx, item.ProductID)
		if err != nil {
			return nil, err
		}
		if product == nil || !product.Active {
			return nil, ErrProductNotFound
		}
		if product.Stock < item.Quantity {
			return nil, ErrInsufficientStock
		}
		if currency == "" {
			currency = product.Currency
		}
		total += product.PriceAmount * int64(item.Quantity)
		items = append(items, model.OrderItem{
			ProductID:  product.ID,
			Quantity:   item.Quantity,
			UnitAmount: product.PriceAmount,
		})
	}
	if total <= 0 {
		return nil, ErrInvalidAmount
	}

	orderRef := "SHP-" + uuid.New().String()
	order := &model.Order{
		UserID:      user.ID,
		OrderRef:    orderRef,
		TotalAmount: total,
		Currency:    currency,
		Status:      model.OrderStatusPending,
		Items:       items,
	}
	if err := s.products.CreateOrder(ctx, order); err != nil {
		return nil, err
	}

	txn := &model.Transaction{
		Type:           model.TransactionTypeOrder,
		ReferenceID:    order.ID,
		UserID:         user.ID,
		Email:          user.Email,
		Name:           user.Name,
		OrderRef:       orderRef,
		Amount:         total,
		Currency:       currency,
		PaymentStatus:  model.PaymentStatusPending,
		IdempotencyKey: toNullString(req.IdempotencyKey),
		ConsentAt:      time.Now(),
	}
	if err := s.txns.Create(ctx, txn); err != nil {
		return nil, err
	}

	checkoutID, err := s.createProviderCheckout(ctx, txn, sumup.CheckoutRequest{
		CheckoutReference: orderRef,
		Amount:            sumup.ToAPIAmount(total),
		Currency:          currency,
		Description:       "Dice Bastion shop order",
		ReturnURL:         s.returnURL,
	})
	if err != nil {
		return nil, err
	}

	return &CheckoutResult{
		OrderRef:   orderRef,
		CheckoutID: checkoutID,
		OrderID:    order.ID,
		UserID:     user.ID,
	}, nil
}

// createProviderCheckout calls SumUp and persists the returned session id.
// On provider failure the pending rows stay in place; the client retries
// safely through its idempotency key.
func (s *DefaultCheckoutService) createProviderCheckout(ctx context.Context, txn *model.Transaction, req sumup.CheckoutRequest) (string, error) {
	checkout, err := s.provider.CreateCheckout(ctx, req)
	if err != nil {
		log.Error().Err(err).Str("orderRef", txn.OrderRef).Msg("sumup checkout creation failed")
		return "", fmt.Errorf("%w: %v", ErrSumUpCheckoutFailed, err)
	}
	if checkout.ID == "" {
		return "", ErrSumUpMissingID
	}
	if err := s.txns.SetCheckoutID(ctx, txn.ID, checkout.ID); err != nil {
		return "", err
	}
	return checkout.ID, nil
}

func (s *DefaultCheckoutService) validateIdentity(ctx context.Context, email, name string, privacyConsent bool, turnstileToken, clientIP string) error {
	email = strings.TrimSpace(email)
	if email == "" || name == "" {
		return ErrMissingFields
	}
	if !emailPattern.MatchString(email) {
		return ErrInvalidEmail
	}
	if len(name) > maxNameLength {
		return ErrMissingFields
	}
	if !privacyConsent {
		return ErrPrivacyConsentRequired
	}

	ok, err := s.verifier.Verify(ctx, turnstileToken, clientIP)
	if err != nil {
		log.Error().Err(err).Msg("turnstile verification error")
		return ErrTurnstileFailed
	}
	if !ok {
		return ErrTurnstileFailed
	}
	return nil
}

func (s *DefaultCheckoutService) ensureUser(ctx context.Context, email, name string, marketingOptIn bool) (*model.User, error) {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if user == nil {
		user = &model.User{
			Email:          email,
			Name:           name,
			MarketingOptIn: marketingOptIn,
		}
		if err := s.users.Create(ctx, user); err != nil {
			return nil, err
		}
		return user, nil
	}

	// Best-effort opt-in update on repeat purchase.
	if marketingOptIn && !user.MarketingOptIn {
		if err := s.users.SetMarketingOptIn(ctx, user.ID, true); err != nil {
			log.Warn().Err(err).Str("userId", user.ID).Msg("failed to update marketing opt-in")
		}
	}
	return user, nil
}

func toNullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
