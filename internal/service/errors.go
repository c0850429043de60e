package service

import "errors"

// Sentinel errors carry the client-facing error code as their text; the
// controllers map them to HTTP statuses.
var (
	ErrInvalidEmail           = errors.New("invalid_email")
	ErrMissingFields          = errors.New("missing_fields")
	ErrPrivacyConsentRequired = errors.New("privacy_consent_required")
	ErrTurnstileFailed        = errors.New("turnstile_failed")
	ErrUnknownPlan            = errors.New("unknown_plan")
	ErrInvalidAmount          = errors.New("invalid_amount")
	ErrRateLimitExceeded      = errors.New("rate_limit_exceeded")
	ErrSumUpCheckoutFailed    = errors.New("sumup_checkout_failed")
	ErrSumUpMissingID         = errors.New("sumup_missing_id")
	ErrPaymentMismatch        = errors.New("payment_mismatch")
	ErrOrderNotFound          = errors.New("order_not_found")
	ErrEventNotFound          = errors.New("event_not_found")
	ErrEventSoldOut           = errors.New("event_sold_out")
	ErrProductNotFound        = errors.New("product_not_found")
	ErrMembershipNotFound     = errors.New("membership_not_found")
	ErrUserNotFound           = errors.New("user_not_found")
	ErrInsufficientStock      = errors.New("insufficient_stock")
	ErrInvalidSignature       = errors.New("invalid_signature")
	ErrUnauthorized           = errors.New("unauthorized")
)
