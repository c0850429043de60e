package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/nickcalamaro/DiceBastion-sub000/internal/mailer"
	"github.com/nickcalamaro/DiceBastion-sub000/internal/model"
	"github.com/nickcalamaro/DiceBastion-sub000/internal/repository"
	"github.com/nickcalamaro/DiceBastion-sub000/internal/sumup"
	"github.com/nickcalamaro/DiceBastion-sub000/internal/timeutil"
)

const (
	ConfirmStatusConfirmed     = "confirmed"
	ConfirmStatusAlreadyActive = "already_active"
	ConfirmStatusPending       = "pending"
	ConfirmStatusDuplicate     = "duplicate"
)

type ConfirmResult struct {
	OK        bool      `json:"ok"`
	Status    string    `json:"status"`
	Plan      string    `json:"plan,omitempty"`
	EndDate   time.Time `json:"endDate,omitempty"`
	Amount    int64     `json:"amount,omitempty"`
	Currency  string    `json:"currency,omitempty"`
	AutoRenew bool      `json:"autoRenew,omitempty"`
	CardLast4 string    `json:"cardLast4,omitempty"`
}

// ConfirmService turns a provider-reported payment into a durable state
// transition exactly once. The client poll and the provider webhook are two
// at-least-once delivery channels converging on this one idempotent
// function.
type ConfirmService interface {
	ConfirmByOrderRef(ctx context.Context, orderRef string) (*ConfirmResult, error)
	HandleWebhook(ctx context.Context, payload []byte, signature string) (*ConfirmResult, error)
}

type DefaultConfirmService struct {
	users       repository.UserRepository
	memberships repository.MembershipRepository
	instruments repository.InstrumentRepository
	events      repository.EventRepository
	products    repository.ProductRepository
	txns        repository.TransactionRepository
	webhookLog  repository.WebhookLogRepository
	provider    PaymentProvider
	notifier    Notifier
}

func NewConfirmService(
	users repository.UserRepository,
	memberships repository.MembershipRepository,
	instruments repository.InstrumentRepository,
	events repository.EventRepository,
	products repository.ProductRepository,
	txns repository.TransactionRepository,
	webhookLog repository.WebhookLogRepository,
	provider PaymentProvider,
	notifier Notifier,
) ConfirmService {
	return &DefaultConfirmService{
		users:       users,
		memberships: memberships,
		instruments: instruments,
		events:      events,
		products:    products,
		txns:        txns,
		webhookLog:  webhookLog,
		provider:    provider,
		notifier:    notifier,
	}
}

func (s *DefaultConfirmService) ConfirmByOrderRef(ctx context.Context, orderRef string) (*ConfirmResult, error) {
	txn, err := s.txns.GetByOrderRef(ctx, orderRef)
	if err != nil {
		return nil, err
	}
	if txn == nil {
		return nil, ErrOrderNotFound
	}
	return s.reconcile(ctx, txn)
}

// webhookEvent is SumUp's checkout status push.
type webhookEvent struct {
	ID        string `json:"id"`
	EventType string `json:"event_type"`
	Payload   struct {
		CheckoutID string `json:"checkout_id"`
		Reference  string `json:"reference"`
		Status     string `json:"status"`
	} `json:"payload"`
}

func (s *DefaultConfirmService) HandleWebhook(ctx context.Context, payload []byte, signature string) (*ConfirmResult, error) {
	// Signature first: an unauthenticated request never touches the
	// database.
	if !s.provider.VerifySignature(payload, signature) {
		return nil, ErrInvalidSignature
	}

	var event webhookEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, fmt.Errorf("parse webhook payload: %w", err)
	}
	if event.ID == "" || event.Payload.CheckoutID == "" {
		return nil, ErrOrderNotFound
	}

	first, err := s.webhookLog.RecordDelivery(ctx, event.ID, "checkout", event.Payload.CheckoutID)
	if err != nil {
		return nil, err
	}
	if !first {
		log.Info().Str("webhookId", event.ID).Str("checkoutId", event.Payload.CheckoutID).
			Msg("duplicate webhook delivery, skipping")
		return &ConfirmResult{OK: true, Status: ConfirmStatusDuplicate}, nil
	}

	txn, err := s.txns.GetByCheckoutID(ctx, event.Payload.CheckoutID)
	if err != nil {
		return nil, err
	}
	if txn == nil && event.Payload.Reference != "" {
		txn, err = s.txns.GetByOrderRef(ctx, event.Payload.Reference)
		if err != nil {
			return nil, err
		}
	}
	if txn == nil {
		return nil, ErrOrderNotFound
	}

	return s.reconcile(ctx, txn)
}

func (s *DefaultConfirmService) reconcile(ctx context.Context, txn *model.Transaction) (*ConfirmResult, error) {
	switch txn.Type {
	case model.TransactionTypeMembership, model.TransactionTypeRenewal:
		return s.reconcileMembership(ctx, txn)
	case model.TransactionTypeTicket:
		return s.reconcileTicket(ctx, txn)
	case model.TransactionTypeOrder:
		return s.reconcileOrder(ctx, txn)
	default:
		return nil, fmt.Errorf("unknown transaction type %q", txn.Type)
	}
}

func (s *DefaultConfirmService) reconcileMembership(ctx context.Context, txn *model.Transaction) (*ConfirmResult, error) {
	membership, err := s.memberships.GetByID(ctx, txn.ReferenceID)
	if err != nil {
		return nil, err
	}
	if membership == nil {
		return nil, ErrMembershipNotFound
	}

	// Re-entrancy guard: a transaction already settled means the other
	// delivery channel won; return without writing.
	if txn.PaymentStatus == model.PaymentStatusPaid {
		return s.membershipResult(ctx, ConfirmStatusAlreadyActive, membership), nil
	}

	paymentID, checkout, result, err := s.fetchPaidCheckout(ctx, txn)
	if err != nil || result != nil {
		return result, err
	}

	// The transaction records the plan that was actually paid for; the row
	// on the membership may lag behind on a tier change.
	planID := membership.Plan
	if txn.Plan != "" {
		planID = txn.Plan
	}
	plan, ok := LookupPlan(planID)
	if !ok {
		return nil, ErrUnknownPlan
	}

	// Settling the transaction is the single-winner gate between the client
	// poll and the webhook; only the winner extends.
	won, err := s.txns.MarkPaid(ctx, txn.ID, paymentID)
	if err != nil {
		return nil, err
	}
	if !won {
		return s.membershipResult(ctx, ConfirmStatusAlreadyActive, membership), nil
	}

	// Extend from the later of now or the current paid-up end so a renewal
	// or upgrade never shortens paid-for time.
	now := time.Now()
	base := now
	if membership.Status == model.MembershipStatusActive && membership.EndDate.After(now) {
		base = membership.EndDate
	}
	newEnd := timeutil.AddMonths(base, plan.Months)

	if membership.Status == model.MembershipStatusPending {
		if err := s.memberships.Activate(ctx, membership.ID, now, newEnd); err != nil {
			// Lost the activation race; report already active with no
			// further writes.
			log.Info().Str("membershipId", membership.ID).Msg("membership already activated concurrently")
			return s.membershipResult(ctx, ConfirmStatusAlreadyActive, membership), nil
		}
	} else {
		if err := s.memberships.ExtendActive(ctx, membership.ID, newEnd); err != nil {
			return nil, err
		}
	}
	membership.Status = model.MembershipStatusActive
	membership.EndDate = newEnd

	if membership.Plan != plan.ID {
		if err := s.memberships.SetPlan(ctx, membership.ID, plan.ID, plan.Amount, plan.Currency); err != nil {
			return nil, err
		}
		membership.Plan = plan.ID
		membership.Amount = plan.Amount
		membership.Currency = plan.Currency
	}

	// A settled payment wipes any failure state left by earlier renewal
	// attempts, whichever channel delivered it.
	if err := s.memberships.ResetRenewalState(ctx, membership.ID); err != nil {
		log.Error().Err(err).Str("membershipId", membership.ID).Msg("failed to reset renewal state")
	}

	if membership.AutoRenew && checkout.CustomerID != "" {
		s.registerInstrument(ctx, membership, checkout.CustomerID)
	}

	s.notifier.Send(ctx, txn.Email,
		mailer.MembershipWelcome(txn.Name, plan.Name, newEnd, membership.AutoRenew))
	s.notifier.NotifyAdmin(ctx, "New membership payment",
		fmt.Sprintf("%s (%s) paid for the %s plan, valid until %s.",
			txn.Name, txn.Email, plan.Name, newEnd.Format("2006-01-02")))

	return s.membershipResult(ctx, ConfirmStatusConfirmed, membership), nil
}

func (s *DefaultConfirmService) reconcileTicket(ctx context.Context, txn *model.Transaction) (*ConfirmResult, error) {
	ticket, err := s.events.GetTicketByID(ctx, txn.ReferenceID)
	if err != nil {
		return nil, err
	}
	if ticket == nil {
		return nil, ErrOrderNotFound
	}

	if ticket.Status == model.TicketStatusActive {
		return &ConfirmResult{OK: true, Status: ConfirmStatusAlreadyActive}, nil
	}

	paymentID, _, result, err := s.fetchPaidCheckout(ctx, txn)
	if err != nil || result != nil {
		return result, err
	}

	// Activation is the single-winner gate; only the winner touches the
	// capacity counter.
	flipped, err := s.events.ActivateTicket(ctx, ticket.ID)
	if err != nil {
		return nil, err
	}
	if !flipped {
		return &ConfirmResult{OK: true, Status: ConfirmStatusAlreadyActive}, nil
	}

	if err := s.events.IncrementTicketsSold(ctx, ticket.EventID); err != nil {
		if revertErr := s.events.RevertTicket(ctx, ticket.ID); revertErr != nil {
			log.Error().Err(revertErr).Str("ticketId", ticket.ID).Msg("failed to revert ticket after capacity failure")
		}
		if err == repository.ErrSoldOut {
			return nil, ErrEventSoldOut
		}
		return nil, err
	}

	if _, err := s.txns.MarkPaid(ctx, txn.ID, paymentID); err != nil {
		return nil, err
	}

	if event, err := s.events.GetByID(ctx, ticket.EventID); err == nil && event != nil {
		s.notifier.Send(ctx, txn.Email, mailer.TicketConfirmation(txn.Name, event.Title, event.StartsAt))
		s.notifier.NotifyAdmin(ctx, "Ticket sold",
			fmt.Sprintf("%s (%s) bought a ticket for %s.", txn.Name, txn.Email, event.Title))
	}

	return &ConfirmResult{
		OK:       true,
		Status:   ConfirmStatusConfirmed,
		Amount:   txn.Amount,
		Currency: txn.Currency,
	}, nil
}

func (s *DefaultConfirmService) reconcileOrder(ctx context.Context, txn *model.Transaction) (*ConfirmResult, error) {
	order, err := s.products.GetOrderByID(ctx, txn.ReferenceID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, ErrOrderNotFound
	}

	if order.Status == model.OrderStatusPaid {
		return &ConfirmResult{OK: true, Status: ConfirmStatusAlreadyActive}, nil
	}

	paymentID, _, result, err := s.fetchPaidCheckout(ctx, txn)
	if err != nil || result != nil {
		return result, err
	}

	flipped, err := s.products.MarkOrderPaid(ctx, order.ID)
	if err != nil {
		return nil, err
	}
	if !flipped {
		return &ConfirmResult{OK: true, Status: ConfirmStatusAlreadyActive}, nil
	}

	for _, item := range order.Items {
		if err := s.products.DecrementStock(ctx, item.ProductID, item.Quantity); err != nil {
			// The money is taken; an oversold item is an operational
			// problem, not a customer-facing failure.
			log.Error().Err(err).Str("orderId", order.ID).Str("productId", item.ProductID).
				Msg("stock decrement failed for paid order")
			s.notifier.NotifyAdmin(ctx, "Stock problem on paid order",
				fmt.Sprintf("Order %s paid but product %s had insufficient stock.", order.OrderRef, item.ProductID))
		}
	}

	if _, err := s.txns.MarkPaid(ctx, txn.ID, paymentID); err != nil {
		return nil, err
	}

	s.notifier.Send(ctx, txn.Email,
		mailer.OrderConfirmation(txn.Name, order.OrderRef, order.TotalAmount, order.Currency))
	s.notifier.NotifyAdmin(ctx, "Shop order paid",
		fmt.Sprintf("%s (%s) paid order %s.", txn.Name, txn.Email, order.OrderRef))

	return &ConfirmResult{
		OK:       true,
		Status:   ConfirmStatusConfirmed,
		Amount:   order.TotalAmount,
		Currency: order.Currency,
	}, nil
}

// fetchPaidCheckout pulls the authoritative status from the provider and
// re-verifies amount and currency against the stored transaction. A non-nil
// ConfirmResult means the caller should return it as-is (still pending).
func (s *DefaultConfirmService) fetchPaidCheckout(ctx context.Context, txn *model.Transaction) (string, *sumup.Checkout, *ConfirmResult, error) {
	if !txn.CheckoutID.Valid || txn.CheckoutID.String == "" {
		return "", nil, nil, ErrSumUpMissingID
	}

	checkout, err := s.provider.GetCheckout(ctx, txn.CheckoutID.String)
	if err != nil {
		return "", nil, nil, fmt.Errorf("%w: %v", ErrSumUpCheckoutFailed, err)
	}

	if !checkoutPaid(checkout.Status) {
		return "", nil, &ConfirmResult{OK: true, Status: ConfirmStatusPending}, nil
	}

	// Defensive re-verification against tampering or provider/client
	// desync.
	if sumup.FromAPIAmount(checkout.Amount) != txn.Amount ||
		!strings.EqualFold(checkout.Currency, txn.Currency) {
		log.Error().Str("orderRef", txn.OrderRef).
			Float64("providerAmount", checkout.Amount).Int64("expectedAmount", txn.Amount).
			Str("providerCurrency", checkout.Currency).Str("expectedCurrency", txn.Currency).
			Msg("payment amount mismatch")
		return "", nil, nil, ErrPaymentMismatch
	}

	paymentID := checkout.ID
	for _, t := range checkout.Transactions {
		if checkoutPaid(t.Status) {
			paymentID = t.ID
		}
	}
	return paymentID, checkout, nil, nil
}

// registerInstrument stores the reusable token captured by a
// recurring-setup checkout, deactivating any prior instrument.
func (s *DefaultConfirmService) registerInstrument(ctx context.Context, membership *model.Membership, customerID string) {
	instruments, err := s.provider.ListPaymentInstruments(ctx, customerID)
	if err != nil {
		log.Error().Err(err).Str("membershipId", membership.ID).Msg("failed to list payment instruments")
		return
	}

	var latest *sumup.PaymentInstrument
	for i := range instruments {
		if !instruments[i].Active {
			continue
		}
		if latest == nil || instruments[i].CreatedAt.After(latest.CreatedAt) {
			latest = &instruments[i]
		}
	}
	if latest == nil {
		log.Warn().Str("membershipId", membership.ID).Msg("no active payment instrument returned by provider")
		return
	}

	instrument := &model.PaymentInstrument{
		UserID:       membership.UserID,
		InstrumentID: latest.Token,
		CardType:     latest.Card.Type,
		Last4:        latest.Card.Last4Digits,
		ExpiryMonth:  latest.Card.ExpiryMonth,
		ExpiryYear:   latest.Card.ExpiryYear,
	}
	if err := s.instruments.Upsert(ctx, instrument); err != nil {
		log.Error().Err(err).Str("membershipId", membership.ID).Msg("failed to store payment instrument")
		return
	}
	if err := s.memberships.SetInstrument(ctx, membership.ID,
		sql.NullString{String: instrument.ID, Valid: true}); err != nil {
		log.Error().Err(err).Str("membershipId", membership.ID).Msg("failed to link payment instrument")
	}
}

func (s *DefaultConfirmService) membershipResult(ctx context.Context, status string, membership *model.Membership) *ConfirmResult {
	result := &ConfirmResult{
		OK:        true,
		Status:    status,
		Plan:      membership.Plan,
		EndDate:   membership.EndDate,
		Amount:    membership.Amount,
		Currency:  membership.Currency,
		AutoRenew: membership.AutoRenew,
	}
	if instrument, err := s.instruments.GetActiveByUserID(ctx, membership.UserID); err == nil && instrument != nil {
		result.CardLast4 = instrument.Last4
	}
	return result
}
