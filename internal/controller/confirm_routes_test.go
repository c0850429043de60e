package controller

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nickcalamaro/DiceBastion-sub000/internal/ratelimit"
	"github.com/nickcalamaro/DiceBastion-sub000/internal/service"
)

type stubConfirmService struct {
	result *service.ConfirmResult
	err    error

	gotOrderRef  string
	gotSignature string
}

func (s *stubConfirmService) ConfirmByOrderRef(_ context.Context, orderRef string) (*service.ConfirmResult, error) {
	s.gotOrderRef = orderRef
	return s.result, s.err
}

func (s *stubConfirmService) HandleWebhook(_ context.Context, _ []byte, signature string) (*service.ConfirmResult, error) {
	s.gotSignature = signature
	return s.result, s.err
}

func confirmed() *service.ConfirmResult {
	return &service.ConfirmResult{OK: true, Status: service.ConfirmStatusConfirmed}
}

func membershipServer(stub *stubConfirmService, debug bool) *echo.Echo {
	e := echo.New()
	limiter := ratelimit.NewMemoryLimiter(100, 0)
	NewMembershipController(nil, stub, nil, nil, limiter, debug).RegisterRoutes(e)
	return e
}

func get(e *echo.Echo, target string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

const (
	refUUID1 = "1b4e28ba-2fa1-11d2-883f-0016d3cca427"
	refUUID2 = "9f8b1c2d-3e4f-4a5b-8c6d-7e8f9a0b1c2d"
)

func TestMembershipConfirmEndpoint(t *testing.T) {
	stub := &stubConfirmService{result: confirmed()}
	e := membershipServer(stub, false)

	rec := get(e, "/membership/confirm?orderRef="+refUUID1)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, refUUID1, stub.gotOrderRef)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "confirmed", body["status"])
}

func TestMembershipConfirmRejectsMalformedRef(t *testing.T) {
	stub := &stubConfirmService{result: confirmed()}
	e := membershipServer(stub, false)

	for _, ref := range []string{"abc", "EVT-" + refUUID1 + "-" + refUUID2, "SHP-" + refUUID1, ""} {
		rec := get(e, "/membership/confirm?orderRef="+ref)
		assert.Equal(t, http.StatusBadRequest, rec.Code, "ref %q", ref)
	}
	assert.Empty(t, stub.gotOrderRef, "invalid refs never reach the service")
}

func TestEventAndShopConfirmRefFormats(t *testing.T) {
	stub := &stubConfirmService{result: confirmed()}
	e := echo.New()
	limiter := ratelimit.NewMemoryLimiter(100, 0)
	NewEventController(nil, nil, stub, limiter, false).RegisterRoutes(e)
	NewShopController(nil, nil, stub, limiter, false).RegisterRoutes(e)

	rec := get(e, "/events/confirm?orderRef=EVT-"+refUUID1+"-"+refUUID2)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = get(e, "/shop/confirm?orderRef=SHP-"+refUUID1)
	assert.Equal(t, http.StatusOK, rec.Code)

	// Cross-format references are rejected by each endpoint.
	rec = get(e, "/events/confirm?orderRef="+refUUID1)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = get(e, "/shop/confirm?orderRef=EVT-"+refUUID1+"-"+refUUID2)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestConfirmErrorMapping(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{service.ErrOrderNotFound, http.StatusNotFound, "order_not_found"},
		{service.ErrPaymentMismatch, http.StatusConflict, "payment_mismatch"},
		{service.ErrSumUpCheckoutFailed, http.StatusBadGateway, "sumup_checkout_failed"},
		{service.ErrEventSoldOut, http.StatusConflict, "event_sold_out"},
	}

	for _, tc := range cases {
		stub := &stubConfirmService{err: tc.err}
		rec := get(membershipServer(stub, false), "/membership/confirm?orderRef="+refUUID1)

		assert.Equal(t, tc.status, rec.Code)
		var body map[string]string
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, tc.code, body["error"])
	}
}

func TestInternalErrorHidesDetailUnlessDebug(t *testing.T) {
	stub := &stubConfirmService{err: assert.AnError}

	rec := get(membershipServer(stub, false), "/membership/confirm?orderRef="+refUUID1)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "internal_error", body["error"])
	assert.Empty(t, body["detail"])

	rec = get(membershipServer(stub, true), "/membership/confirm?orderRef="+refUUID1)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.NotEmpty(t, body["detail"])
}

func TestWebhookEndpoint(t *testing.T) {
	stub := &stubConfirmService{result: confirmed()}
	e := echo.New()
	NewWebhookController(stub, false).RegisterRoutes(e)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/sumup", strings.NewReader(`{"id":"wh-1"}`))
	req.Header.Set("SumUp-Signature", "sig")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "sig", stub.gotSignature)
}

func TestWebhookEndpointBadSignature(t *testing.T) {
	stub := &stubConfirmService{err: service.ErrInvalidSignature}
	e := echo.New()
	NewWebhookController(stub, false).RegisterRoutes(e)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/sumup", strings.NewReader(`{"id":"wh-1"}`))
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
