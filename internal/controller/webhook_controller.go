package controller

import (
	"io"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/nickcalamaro/DiceBastion-sub000/internal/service"
)

const headerWebhookSignature = "SumUp-Signature"

// WebhookController ingests SumUp's checkout status pushes. Deliveries
// funnel into the same idempotent confirm path as the client poll.
type WebhookController struct {
	confirms service.ConfirmService
	debug    bool
}

func NewWebhookController(confirms service.ConfirmService, debug bool) *WebhookController {
	return &WebhookController{confirms: confirms, debug: debug}
}

func (ctl *WebhookController) RegisterRoutes(e *echo.Echo) {
	e.POST("/webhooks/sumup", ctl.Receive)
}

func (ctl *WebhookController) Receive(c echo.Context) error {
	payload, err := io.ReadAll(io.LimitReader(c.Request().Body, 1<<20))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid_request"})
	}

	result, err := ctl.confirms.HandleWebhook(c.Request().Context(), payload,
		c.Request().Header.Get(headerWebhookSignature))
	if err != nil {
		return writeError(c, err, ctl.debug)
	}
	return c.JSON(http.StatusOK, result)
}
