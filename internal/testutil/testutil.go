// Package testutil provides the shared sqlite test database and fakes for
// the external services.
package testutil

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/nickcalamaro/DiceBastion-sub000/internal/config"
	"github.com/nickcalamaro/DiceBastion-sub000/internal/database"
	"github.com/nickcalamaro/DiceBastion-sub000/internal/mailer"
	"github.com/nickcalamaro/DiceBastion-sub000/internal/sumup"
)

// OpenDB opens a fresh migrated sqlite database in a per-test temp dir.
func OpenDB(t *testing.T) *sqlx.DB {
	t.Helper()

	db, err := database.Open(&config.DBConfig{
		Driver:     "sqlite",
		SQLitePath: filepath.Join(t.TempDir(), "test.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

// FakeProvider implements service.PaymentProvider with pluggable behavior.
// Unset hooks fall back to a paid checkout echoing the request.
type FakeProvider struct {
	mu sync.Mutex

	CreateCheckoutFn   func(ctx context.Context, req sumup.CheckoutRequest) (*sumup.Checkout, error)
	GetCheckoutFn      func(ctx context.Context, id string) (*sumup.Checkout, error)
	CompleteCheckoutFn func(ctx context.Context, id, token string) (*sumup.Checkout, error)
	CreateCustomerFn   func(ctx context.Context, customerID, name, email string) (*sumup.Customer, error)
	Instruments        []sumup.PaymentInstrument
	SignatureValid     bool

	Created   []sumup.CheckoutRequest
	Completed []string
	Customers map[string]bool
}

func NewFakeProvider() *FakeProvider {
	return &FakeProvider{SignatureValid: true, Customers: map[string]bool{}}
}

func (p *FakeProvider) CreateCheckout(ctx context.Context, req sumup.CheckoutRequest) (*sumup.Checkout, error) {
	p.mu.Lock()
	p.Created = append(p.Created, req)
	p.mu.Unlock()

	if p.CreateCheckoutFn != nil {
		return p.CreateCheckoutFn(ctx, req)
	}
	return &sumup.Checkout{
		ID:                "chk-" + req.CheckoutReference,
		CheckoutReference: req.CheckoutReference,
		Amount:            req.Amount,
		Currency:          req.Currency,
		Status:            sumup.CheckoutStatusPending,
		CustomerID:        req.CustomerID,
	}, nil
}

func (p *FakeProvider) GetCheckout(ctx context.Context, id string) (*sumup.Checkout, error) {
	if p.GetCheckoutFn != nil {
		return p.GetCheckoutFn(ctx, id)
	}

	// Echo the session created earlier, now paid.
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, req := range p.Created {
		if "chk-"+req.CheckoutReference == id {
			return &sumup.Checkout{
				ID:                id,
				CheckoutReference: req.CheckoutReference,
				Amount:            req.Amount,
				Currency:          req.Currency,
				Status:            sumup.CheckoutStatusPaid,
				CustomerID:        req.CustomerID,
				Transactions: []sumup.Transaction{
					{ID: "txn-" + req.CheckoutReference, Amount: req.Amount, Currency: req.Currency, Status: sumup.CheckoutStatusSuccessful},
				},
			}, nil
		}
	}
	return &sumup.Checkout{ID: id, Status: sumup.CheckoutStatusPaid}, nil
}

func (p *FakeProvider) CompleteCheckout(ctx context.Context, id, token string) (*sumup.Checkout, error) {
	p.mu.Lock()
	p.Completed = append(p.Completed, token)
	p.mu.Unlock()

	if p.CompleteCheckoutFn != nil {
		return p.CompleteCheckoutFn(ctx, id, token)
	}
	return &sumup.Checkout{ID: id, Status: sumup.CheckoutStatusPaid}, nil
}

func (p *FakeProvider) CreateCustomer(ctx context.Context, customerID, name, email string) (*sumup.Customer, error) {
	if p.CreateCustomerFn != nil {
		return p.CreateCustomerFn(ctx, customerID, name, email)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Customers[customerID] = true
	return &sumup.Customer{CustomerID: customerID}, nil
}

func (p *FakeProvider) GetCustomer(ctx context.Context, customerID string) (*sumup.Customer, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.Customers[customerID] {
		return nil, &sumup.APIError{Status: 404, Message: "customer not found"}
	}
	return &sumup.Customer{CustomerID: customerID}, nil
}

func (p *FakeProvider) ListPaymentInstruments(ctx context.Context, customerID string) ([]sumup.PaymentInstrument, error) {
	return p.Instruments, nil
}

func (p *FakeProvider) VerifySignature(payload []byte, signature string) bool {
	return p.SignatureValid
}

// FakeSender records messages instead of delivering them.
type FakeSender struct {
	mu       sync.Mutex
	Messages []mailer.Message
	Err      error
}

func (s *FakeSender) Send(_ context.Context, msg mailer.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	s.Messages = append(s.Messages, msg)
	return nil
}

func (s *FakeSender) Sent() []mailer.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]mailer.Message, len(s.Messages))
	copy(out, s.Messages)
	return out
}

// FakeVerifier approves or rejects every challenge token.
type FakeVerifier struct {
	OK bool
}

func (v FakeVerifier) Verify(context.Context, string, string) (bool, error) {
	return v.OK, nil
}
