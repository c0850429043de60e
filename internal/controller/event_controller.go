package controller

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/nickcalamaro/DiceBastion-sub000/internal/middleware"
	"github.com/nickcalamaro/DiceBastion-sub000/internal/ratelimit"
	"github.com/nickcalamaro/DiceBastion-sub000/internal/service"
)

type EventController struct {
	events    service.EventService
	checkouts service.CheckoutService
	confirms  service.ConfirmService
	limiter   ratelimit.Limiter
	debug     bool
}

func NewEventController(
	events service.EventService,
	checkouts service.CheckoutService,
	confirms service.ConfirmService,
	limiter ratelimit.Limiter,
	debug bool,
) *EventController {
	return &EventController{
		events:    events,
		checkouts: checkouts,
		confirms:  confirms,
		limiter:   limiter,
		debug:     debug,
	}
}

func (ctl *EventController) RegisterRoutes(e *echo.Echo) {
	e.GET("/events", ctl.List)
	e.GET("/events/confirm", ctl.Confirm)
	e.GET("/events/:slug", ctl.Get)
	e.POST("/events/:id/checkout", ctl.CreateCheckout, middleware.RateLimit(ctl.limiter))
}

func (ctl *EventController) Confirm(c echo.Context) error {
	return confirmByRef(c, ctl.confirms, eventRefPattern, ctl.debug)
}

func (ctl *EventController) List(c echo.Context) error {
	events, err := ctl.events.ListPublished(c.Request().Context())
	if err != nil {
		return writeError(c, err, ctl.debug)
	}
	return c.JSON(http.StatusOK, events)
}

func (ctl *EventController) Get(c echo.Context) error {
	event, err := ctl.events.GetBySlug(c.Request().Context(), c.Param("slug"))
	if err != nil {
		return writeError(c, err, ctl.debug)
	}
	return c.JSON(http.StatusOK, event)
}

func (ctl *EventController) CreateCheckout(c echo.Context) error {
	var req service.EventCheckoutRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid_request"})
	}
	req.EventID = c.Param("id")
	req.IdempotencyKey = c.Request().Header.Get(headerIdempotencyKey)
	req.ClientIP = c.RealIP()

	result, err := ctl.checkouts.CreateEventCheckout(c.Request().Context(), &req)
	if err != nil {
		return writeError(c, err, ctl.debug)
	}
	return c.JSON(http.StatusOK, result)
}
