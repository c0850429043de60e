package controller

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/nickcalamaro/DiceBastion-sub000/internal/middleware"
	"github.com/nickcalamaro/DiceBastion-sub000/internal/ratelimit"
	"github.com/nickcalamaro/DiceBastion-sub000/internal/service"
)

const headerIdempotencyKey = "Idempotency-Key"

type MembershipController struct {
	checkouts   service.CheckoutService
	confirms    service.ConfirmService
	memberships service.MembershipService
	renewals    service.RenewalService
	limiter     ratelimit.Limiter
	debug       bool
}

func NewMembershipController(
	checkouts service.CheckoutService,
	confirms service.ConfirmService,
	memberships service.MembershipService,
	renewals service.RenewalService,
	limiter ratelimit.Limiter,
	debug bool,
) *MembershipController {
	return &MembershipController{
		checkouts:   checkouts,
		confirms:    confirms,
		memberships: memberships,
		renewals:    renewals,
		limiter:     limiter,
		debug:       debug,
	}
}

func (ctl *MembershipController) RegisterRoutes(e *echo.Echo) {
	e.GET("/membership/plans", ctl.ListPlans)
	e.POST("/membership/checkout", ctl.CreateCheckout, middleware.RateLimit(ctl.limiter))
	e.GET("/membership/confirm", ctl.Confirm)
	e.GET("/membership/status", ctl.Status)
	e.GET("/membership/auto-renewal", ctl.GetAutoRenewal)
	e.POST("/membership/auto-renewal/toggle", ctl.ToggleAutoRenewal)
	e.POST("/membership/payment-method/remove", ctl.RemovePaymentMethod)
	e.POST("/membership/retry-renewal", ctl.RetryRenewal)
}

func (ctl *MembershipController) ListPlans(c echo.Context) error {
	return c.JSON(http.StatusOK, service.AllPlans())
}

func (ctl *MembershipController) CreateCheckout(c echo.Context) error {
	var req service.MembershipCheckoutRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid_request"})
	}
	req.IdempotencyKey = c.Request().Header.Get(headerIdempotencyKey)
	req.ClientIP = c.RealIP()

	result, err := ctl.checkouts.CreateMembershipCheckout(c.Request().Context(), &req)
	if err != nil {
		return writeError(c, err, ctl.debug)
	}
	return c.JSON(http.StatusOK, result)
}

func (ctl *MembershipController) Confirm(c echo.Context) error {
	return confirmByRef(c, ctl.confirms, membershipRefPattern, ctl.debug)
}

func (ctl *MembershipController) Status(c echo.Context) error {
	email := c.QueryParam("email")
	if email == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid_email"})
	}

	status, err := ctl.memberships.StatusByEmail(c.Request().Context(), email)
	if err != nil {
		return writeError(c, err, ctl.debug)
	}
	return c.JSON(http.StatusOK, status)
}

func (ctl *MembershipController) GetAutoRenewal(c echo.Context) error {
	email := c.QueryParam("email")
	if email == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid_email"})
	}

	status, err := ctl.memberships.StatusByEmail(c.Request().Context(), email)
	if err != nil {
		return writeError(c, err, ctl.debug)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"autoRenew": status.AutoRenew,
		"cardLast4": status.CardLast4,
	})
}

func (ctl *MembershipController) ToggleAutoRenewal(c echo.Context) error {
	var req struct {
		Email     string `json:"email"`
		AutoRenew bool   `json:"autoRenew"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid_request"})
	}

	status, err := ctl.memberships.SetAutoRenew(c.Request().Context(), req.Email, req.AutoRenew)
	if err != nil {
		return writeError(c, err, ctl.debug)
	}
	return c.JSON(http.StatusOK, status)
}

func (ctl *MembershipController) RemovePaymentMethod(c echo.Context) error {
	var req struct {
		Email string `json:"email"`
	}
	if err := c.Bind(&req); err != nil || req.Email == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid_email"})
	}

	if err := ctl.memberships.RemovePaymentMethod(c.Request().Context(), req.Email); err != nil {
		return writeError(c, err, ctl.debug)
	}
	return c.JSON(http.StatusOK, map[string]bool{"ok": true})
}

func (ctl *MembershipController) RetryRenewal(c echo.Context) error {
	var req struct {
		Email string `json:"email"`
	}
	if err := c.Bind(&req); err != nil || req.Email == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid_email"})
	}

	if err := ctl.renewals.RetryRenewal(c.Request().Context(), req.Email); err != nil {
		return writeError(c, err, ctl.debug)
	}
	return c.JSON(http.StatusOK, map[string]bool{"ok": true})
}
