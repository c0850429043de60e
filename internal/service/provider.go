package service

import (
	"context"

	"github.com/nickcalamaro/DiceBastion-sub000/internal/sumup"
)

// PaymentProvider is the slice of the SumUp API the services use. It exists
// so tests can substitute a fake provider.
type PaymentProvider interface {
	CreateCheckout(ctx context.Context, req sumup.CheckoutRequest) (*sumup.Checkout, error)
	GetCheckout(ctx context.Context, checkoutID string) (*sumup.Checkout, error)
	CompleteCheckout(ctx context.Context, checkoutID, token string) (*sumup.Checkout, error)
	CreateCustomer(ctx context.Context, customerID, name, email string) (*sumup.Customer, error)
	GetCustomer(ctx context.Context, customerID string) (*sumup.Customer, error)
	ListPaymentInstruments(ctx context.Context, customerID string) ([]sumup.PaymentInstrument, error)
	VerifySignature(payload []byte, signature string) bool
}

// checkoutPaid reports whether the provider considers the checkout settled.
func checkoutPaid(status string) bool {
	return status == sumup.CheckoutStatusPaid || status == sumup.CheckoutStatusSuccessful
}
