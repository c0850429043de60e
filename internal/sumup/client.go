// Package sumup is a minimal client for the SumUp REST API: OAuth
// client-credentials token exchange, hosted checkout sessions, customers and
// tokenized payment instruments for off-session charges.
package sumup

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

var (
	ErrCheckoutFailed = errors.New("failed to create checkout")
	ErrCustomerFailed = errors.New("failed to create customer")
	ErrChargeFailed   = errors.New("failed to charge payment instrument")
)

const (
	CheckoutStatusPending    = "PENDING"
	CheckoutStatusPaid       = "PAID"
	CheckoutStatusFailed     = "FAILED"
	CheckoutStatusSuccessful = "SUCCESSFUL"

	// PurposeSetupRecurring asks the checkout to capture a reusable
	// payment-instrument token alongside the charge.
	PurposeSetupRecurring = "SETUP_RECURRING_PAYMENT"
)

type Config struct {
	BaseURL       string
	ClientID      string
	ClientSecret  string
	MerchantCode  string
	WebhookSecret string
}

type Client struct {
	httpClient    *http.Client
	baseURL       string
	clientID      string
	clientSecret  string
	merchantCode  string
	webhookSecret string

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

func NewClient(config Config) *Client {
	if config.ClientID == "" || config.ClientSecret == "" {
		log.Warn().Msg("SumUp credentials are empty, provider calls will fail")
	}
	return &Client{
		httpClient:    &http.Client{Timeout: 30 * time.Second},
		baseURL:       strings.TrimSuffix(config.BaseURL, "/"),
		clientID:      config.ClientID,
		clientSecret:  config.ClientSecret,
		merchantCode:  config.MerchantCode,
		webhookSecret: config.WebhookSecret,
	}
}

// APIError is a non-2xx response from SumUp. Code carries the structured
// error identifier when the API supplies one.
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"error_code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("sumup api error %d (%s): %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("sumup api error %d: %s", e.Status, e.Message)
}

type Checkout struct {
	ID                string        `json:"id"`
	CheckoutReference string        `json:"checkout_reference"`
	Amount            float64       `json:"amount"`
	Currency          string        `json:"currency"`
	MerchantCode      string        `json:"merchant_code"`
	Status            string        `json:"status"`
	Purpose           string        `json:"purpose,omitempty"`
	CustomerID        string        `json:"customer_id,omitempty"`
	Transactions      []Transaction `json:"transactions,omitempty"`
}

type Transaction struct {
	ID       string  `json:"id"`
	Amount   float64 `json:"amount"`
	Currency string  `json:"currency"`
	Status   string  `json:"status"`
}

type CheckoutRequest struct {
	CheckoutReference string  `json:"checkout_reference"`
	Amount            float64 `json:"amount"`
	Currency          string  `json:"currency"`
	MerchantCode      string  `json:"merchant_code"`
	Description       string  `json:"description,omitempty"`
	ReturnURL         string  `json:"return_url,omitempty"`
	Purpose           string  `json:"purpose,omitempty"`
	CustomerID        string  `json:"customer_id,omitempty"`
}

type Customer struct {
	CustomerID      string          `json:"customer_id"`
	PersonalDetails PersonalDetails `json:"personal_details"`
}

type PersonalDetails struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
}

// PaymentInstrument is a provider-issued token referencing a stored card.
type PaymentInstrument struct {
	Token  string `json:"token"`
	Active bool   `json:"active"`
	Type   string `json:"type"`
	Card   struct {
		Type        string `json:"type"`
		Last4Digits string `json:"last_4_digits"`
		ExpiryMonth int    `json:"expiry_month,string"`
		ExpiryYear  int    `json:"expiry_year,string"`
	} `json:"card"`
	CreatedAt time.Time `json:"created_at"`
}

// ToAPIAmount converts minor units to the decimal amount SumUp expects.
func ToAPIAmount(minor int64) float64 {
	return float64(minor) / 100
}

// FromAPIAmount converts a SumUp decimal amount back to minor units.
func FromAPIAmount(amount float64) int64 {
	return int64(math.Round(amount * 100))
}

func (c *Client) CreateCheckout(ctx context.Context, req CheckoutRequest) (*Checkout, error) {
	if req.MerchantCode == "" {
		req.MerchantCode = c.merchantCode
	}

	var checkout Checkout
	if err := c.do(ctx, http.MethodPost, "/v0.1/checkouts", req, &checkout); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCheckoutFailed, err)
	}
	log.Info().Str("checkoutId", checkout.ID).Str("reference", req.CheckoutReference).
		Msg("created sumup checkout")
	return &checkout, nil
}

func (c *Client) GetCheckout(ctx context.Context, checkoutID string) (*Checkout, error) {
	var checkout Checkout
	if err := c.do(ctx, http.MethodGet, "/v0.1/checkouts/"+url.PathEscape(checkoutID), nil, &checkout); err != nil {
		return nil, err
	}
	return &checkout, nil
}

// CompleteCheckout charges a checkout using a stored payment-instrument
// token, the off-session path used by renewals.
func (c *Client) CompleteCheckout(ctx context.Context, checkoutID, token string) (*Checkout, error) {
	body := map[string]string{
		"payment_type": "card",
		"token":        token,
	}

	var checkout Checkout
	if err := c.do(ctx, http.MethodPut, "/v0.1/checkouts/"+url.PathEscape(checkoutID), body, &checkout); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrChargeFailed, err)
	}
	log.Info().Str("checkoutId", checkout.ID).Str("status", checkout.Status).
		Msg("completed sumup checkout with stored token")
	return &checkout, nil
}

func (c *Client) CreateCustomer(ctx context.Context, customerID, name, email string) (*Customer, error) {
	body := Customer{
		CustomerID: customerID,
		PersonalDetails: PersonalDetails{
			Name:  name,
			Email: email,
		},
	}

	var customer Customer
	if err := c.do(ctx, http.MethodPost, "/v0.1/customers", body, &customer); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCustomerFailed, err)
	}
	log.Info().Str("customerId", customer.CustomerID).Msg("created sumup customer")
	return &customer, nil
}

func (c *Client) GetCustomer(ctx context.Context, customerID string) (*Customer, error) {
	var customer Customer
	if err := c.do(ctx, http.MethodGet, "/v0.1/customers/"+url.PathEscape(customerID), nil, &customer); err != nil {
		return nil, err
	}
	return &customer, nil
}

func (c *Client) ListPaymentInstruments(ctx context.Context, customerID string) ([]PaymentInstrument, error) {
	var instruments []PaymentInstrument
	path := "/v0.1/customers/" + url.PathEscape(customerID) + "/payment-instruments"
	if err := c.do(ctx, http.MethodGet, path, nil, &instruments); err != nil {
		return nil, err
	}
	return instruments, nil
}

// VerifySignature checks the webhook HMAC-SHA256 signature over the raw
// payload against the shared secret.
func (c *Client) VerifySignature(payload []byte, signature string) bool {
	if c.webhookSecret == "" {
		log.Warn().Msg("webhook secret is empty, rejecting webhook")
		return false
	}

	mac := hmac.New(sha256.New, []byte(c.webhookSecret))
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(expected), []byte(strings.TrimSpace(signature)))
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	token, err := c.token(ctx)
	if err != nil {
		return err
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Status: resp.StatusCode}
		if err := json.Unmarshal(data, apiErr); err != nil || apiErr.Message == "" {
			apiErr.Message = strings.TrimSpace(string(data))
		}
		return apiErr
	}

	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("decode sumup response: %w", err)
		}
	}
	return nil
}

// token returns a cached OAuth access token, refreshing it when it is within
// a minute of expiry.
func (c *Client) token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.accessToken != "" && time.Now().Before(c.tokenExpiry.Add(-time.Minute)) {
		return c.accessToken, nil
	}

	form := url.Values{
		"grant_type":    {"client_credentials"},
		"client_id":     {c.clientID},
		"client_secret": {c.clientSecret},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/token",
		strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("sumup token exchange: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("sumup token exchange failed: %d %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	var tokenResp struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tokenResp); err != nil {
		return "", fmt.Errorf("decode token response: %w", err)
	}

	c.accessToken = tokenResp.AccessToken
	c.tokenExpiry = time.Now().Add(time.Duration(tokenResp.ExpiresIn) * time.Second)
	return c.accessToken, nil
}
