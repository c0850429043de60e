package controller

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/nickcalamaro/DiceBastion-sub000/internal/middleware"
	"github.com/nickcalamaro/DiceBastion-sub000/internal/ratelimit"
	"github.com/nickcalamaro/DiceBastion-sub000/internal/service"
)

type ShopController struct {
	shop      service.ShopService
	checkouts service.CheckoutService
	confirms  service.ConfirmService
	limiter   ratelimit.Limiter
	debug     bool
}

func NewShopController(
	shop service.ShopService,
	checkouts service.CheckoutService,
	confirms service.ConfirmService,
	limiter ratelimit.Limiter,
	debug bool,
) *ShopController {
	return &ShopController{
		shop:      shop,
		checkouts: checkouts,
		confirms:  confirms,
		limiter:   limiter,
		debug:     debug,
	}
}

func (ctl *ShopController) RegisterRoutes(e *echo.Echo) {
	e.GET("/shop/products", ctl.List)
	e.GET("/shop/products/:slug", ctl.Get)
	e.GET("/shop/confirm", ctl.Confirm)
	e.POST("/shop/checkout", ctl.CreateCheckout, middleware.RateLimit(ctl.limiter))
}

func (ctl *ShopController) Confirm(c echo.Context) error {
	return confirmByRef(c, ctl.confirms, shopRefPattern, ctl.debug)
}

func (ctl *ShopController) List(c echo.Context) error {
	products, err := ctl.shop.ListActive(c.Request().Context())
	if err != nil {
		return writeError(c, err, ctl.debug)
	}
	return c.JSON(http.StatusOK, products)
}

func (ctl *ShopController) Get(c echo.Context) error {
	product, err := ctl.shop.GetBySlug(c.Request().Context(), c.Param("slug"))
	if err != nil {
		return writeError(c, err, ctl.debug)
	}
	return c.JSON(http.StatusOK, product)
}

func (ctl *ShopController) CreateCheckout(c echo.Context) error {
	var req service.ShopCheckoutRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid_request"})
	}
	req.IdempotencyKey = c.Request().Header.Get(headerIdempotencyKey)
	req.ClientIP = c.RealIP()

	result, err := ctl.checkouts.CreateShopCheckout(c.Request().Context(), &req)
	if err != nil {
		return writeError(c, err, ctl.debug)
	}
	return c.JSON(http.StatusOK, result)
}
