package controller

import (
	"errors"
	"net/http"
	"regexp"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"github.com/nickcalamaro/DiceBastion-sub000/internal/service"
)

const uuidPattern = `[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}`

// Order references are validated before any lookup so garbage params never
// reach the database. Each purchase flow has its own format.
var (
	membershipRefPattern = regexp.MustCompile(`^` + uuidPattern + `$`)
	eventRefPattern      = regexp.MustCompile(`^EVT-` + uuidPattern + `-` + uuidPattern + `$`)
	shopRefPattern       = regexp.MustCompile(`^SHP-` + uuidPattern + `$`)
)

var errorStatuses = []struct {
	err    error
	status int
}{
	{service.ErrOrderNotFound, http.StatusNotFound},
	{service.ErrEventNotFound, http.StatusNotFound},
	{service.ErrProductNotFound, http.StatusNotFound},
	{service.ErrMembershipNotFound, http.StatusNotFound},
	{service.ErrUserNotFound, http.StatusNotFound},
	{service.ErrInvalidEmail, http.StatusBadRequest},
	{service.ErrMissingFields, http.StatusBadRequest},
	{service.ErrPrivacyConsentRequired, http.StatusBadRequest},
	{service.ErrUnknownPlan, http.StatusBadRequest},
	{service.ErrInvalidAmount, http.StatusBadRequest},
	{service.ErrTurnstileFailed, http.StatusForbidden},
	{service.ErrEventSoldOut, http.StatusConflict},
	{service.ErrInsufficientStock, http.StatusConflict},
	{service.ErrPaymentMismatch, http.StatusConflict},
	{service.ErrUnauthorized, http.StatusUnauthorized},
	{service.ErrInvalidSignature, http.StatusUnauthorized},
	{service.ErrRateLimitExceeded, http.StatusTooManyRequests},
	{service.ErrSumUpCheckoutFailed, http.StatusBadGateway},
	{service.ErrSumUpMissingID, http.StatusBadGateway},
}

// confirmByRef is the shared confirmation-poll handler: validate the
// reference format, then reconcile.
func confirmByRef(c echo.Context, confirms service.ConfirmService, pattern *regexp.Regexp, debug bool) error {
	ref := c.QueryParam("orderRef")
	if !pattern.MatchString(ref) {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid_order_ref"})
	}

	result, err := confirms.ConfirmByOrderRef(c.Request().Context(), ref)
	if err != nil {
		return writeError(c, err, debug)
	}
	return c.JSON(http.StatusOK, result)
}

// writeError maps a service error to an HTTP status and a stable error code
// in the response body. Unrecognized errors become internal_error; the
// underlying message is only exposed when debug is on.
func writeError(c echo.Context, err error, debug bool) error {
	for _, mapping := range errorStatuses {
		if errors.Is(err, mapping.err) {
			return c.JSON(mapping.status, map[string]string{"error": mapping.err.Error()})
		}
	}

	log.Error().Err(err).Str("path", c.Path()).Msg("request failed")
	body := map[string]string{"error": "internal_error"}
	if debug {
		body["detail"] = err.Error()
	}
	return c.JSON(http.StatusInternalServerError, body)
}
