package controller

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/nickcalamaro/DiceBastion-sub000/internal/middleware"
	"github.com/nickcalamaro/DiceBastion-sub000/internal/repository"
	"github.com/nickcalamaro/DiceBastion-sub000/internal/service"
)

type AdminController struct {
	auth        service.AuthService
	renewals    service.RenewalService
	memberships service.MembershipService
	events      service.EventService
	shop        service.ShopService
	memberRepo  repository.MembershipRepository
	emailLog    repository.EmailLogRepository
	jobLog      repository.JobLogRepository
	debug       bool
}

func NewAdminController(
	auth service.AuthService,
	renewals service.RenewalService,
	memberships service.MembershipService,
	events service.EventService,
	shop service.ShopService,
	memberRepo repository.MembershipRepository,
	emailLog repository.EmailLogRepository,
	jobLog repository.JobLogRepository,
	debug bool,
) *AdminController {
	return &AdminController{
		auth:        auth,
		renewals:    renewals,
		memberships: memberships,
		events:      events,
		shop:        shop,
		memberRepo:  memberRepo,
		emailLog:    emailLog,
		jobLog:      jobLog,
		debug:       debug,
	}
}

func (ctl *AdminController) RegisterRoutes(e *echo.Echo) {
	e.POST("/login", ctl.Login)
	e.POST("/logout", ctl.Logout)

	g := e.Group("/admin", middleware.AdminAuth(ctl.auth))
	g.GET("/verify", ctl.Verify)
	g.GET("/memberships", ctl.ListMemberships)
	g.GET("/renewal-logs", ctl.RenewalLogs)
	g.POST("/renewals/run", ctl.RunSweep)

	g.GET("/events", ctl.ListEvents)
	g.POST("/events", ctl.CreateEvent)
	g.PUT("/events/:id", ctl.UpdateEvent)
	g.DELETE("/events/:id", ctl.DeleteEvent)

	g.GET("/products", ctl.ListProducts)
	g.POST("/products", ctl.CreateProduct)
	g.PUT("/products/:id", ctl.UpdateProduct)
	g.DELETE("/products/:id", ctl.DeleteProduct)
	g.POST("/products/:id/image", ctl.UploadProductImage)

	g.GET("/emails", ctl.ListEmails)
	g.GET("/cron-logs", ctl.CronLogs)
}

func (ctl *AdminController) Login(c echo.Context) error {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid_request"})
	}

	token, err := ctl.auth.Login(c.Request().Context(), req.Email, req.Password)
	if err != nil {
		return writeError(c, err, ctl.debug)
	}
	return c.JSON(http.StatusOK, map[string]string{"token": token})
}

// Logout is an acknowledgement; sessions are stateless JWTs the client
// discards.
func (ctl *AdminController) Logout(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]bool{"ok": true})
}

func (ctl *AdminController) Verify(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"ok":      true,
		"adminId": c.Get(middleware.ContextAdminID),
	})
}

func (ctl *AdminController) ListMemberships(c echo.Context) error {
	limit, offset := pagination(c)
	memberships, err := ctl.memberRepo.List(c.Request().Context(), limit, offset)
	if err != nil {
		return writeError(c, err, ctl.debug)
	}
	return c.JSON(http.StatusOK, memberships)
}

func (ctl *AdminController) RenewalLogs(c echo.Context) error {
	membershipID := c.QueryParam("membershipId")
	if membershipID == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "missing_fields"})
	}

	entries, err := ctl.memberships.RenewalHistory(c.Request().Context(), membershipID)
	if err != nil {
		return writeError(c, err, ctl.debug)
	}
	return c.JSON(http.StatusOK, entries)
}

func (ctl *AdminController) RunSweep(c echo.Context) error {
	report, err := ctl.renewals.RunSweep(c.Request().Context())
	if err != nil {
		return writeError(c, err, ctl.debug)
	}
	return c.JSON(http.StatusOK, report)
}

func (ctl *AdminController) ListEvents(c echo.Context) error {
	events, err := ctl.events.ListAll(c.Request().Context())
	if err != nil {
		return writeError(c, err, ctl.debug)
	}
	return c.JSON(http.StatusOK, events)
}

func (ctl *AdminController) CreateEvent(c echo.Context) error {
	var input service.EventInput
	if err := c.Bind(&input); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid_request"})
	}

	event, err := ctl.events.Create(c.Request().Context(), &input)
	if err != nil {
		return writeError(c, err, ctl.debug)
	}
	return c.JSON(http.StatusCreated, event)
}

func (ctl *AdminController) UpdateEvent(c echo.Context) error {
	var input service.EventInput
	if err := c.Bind(&input); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid_request"})
	}

	event, err := ctl.events.Update(c.Request().Context(), c.Param("id"), &input)
	if err != nil {
		return writeError(c, err, ctl.debug)
	}
	return c.JSON(http.StatusOK, event)
}

func (ctl *AdminController) DeleteEvent(c echo.Context) error {
	if err := ctl.events.Delete(c.Request().Context(), c.Param("id")); err != nil {
		return writeError(c, err, ctl.debug)
	}
	return c.JSON(http.StatusOK, map[string]bool{"ok": true})
}

func (ctl *AdminController) ListProducts(c echo.Context) error {
	products, err := ctl.shop.ListAll(c.Request().Context())
	if err != nil {
		return writeError(c, err, ctl.debug)
	}
	return c.JSON(http.StatusOK, products)
}

func (ctl *AdminController) CreateProduct(c echo.Context) error {
	var input service.ProductInput
	if err := c.Bind(&input); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid_request"})
	}

	product, err := ctl.shop.Create(c.Request().Context(), &input)
	if err != nil {
		return writeError(c, err, ctl.debug)
	}
	return c.JSON(http.StatusCreated, product)
}

func (ctl *AdminController) UpdateProduct(c echo.Context) error {
	var input service.ProductInput
	if err := c.Bind(&input); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid_request"})
	}

	product, err := ctl.shop.Update(c.Request().Context(), c.Param("id"), &input)
	if err != nil {
		return writeError(c, err, ctl.debug)
	}
	return c.JSON(http.StatusOK, product)
}

func (ctl *AdminController) DeleteProduct(c echo.Context) error {
	if err := ctl.shop.Delete(c.Request().Context(), c.Param("id")); err != nil {
		return writeError(c, err, ctl.debug)
	}
	return c.JSON(http.StatusOK, map[string]bool{"ok": true})
}

func (ctl *AdminController) UploadProductImage(c echo.Context) error {
	fileHeader, err := c.FormFile("image")
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "missing_image"})
	}

	file, err := fileHeader.Open()
	if err != nil {
		return writeError(c, err, ctl.debug)
	}
	defer file.Close()

	url, err := ctl.shop.UploadImage(c.Request().Context(), c.Param("id"), fileHeader.Filename, file)
	if err != nil {
		return writeError(c, err, ctl.debug)
	}
	return c.JSON(http.StatusOK, map[string]string{"imageUrl": url})
}

func (ctl *AdminController) ListEmails(c echo.Context) error {
	limit, offset := pagination(c)
	entries, err := ctl.emailLog.List(c.Request().Context(), limit, offset)
	if err != nil {
		return writeError(c, err, ctl.debug)
	}
	return c.JSON(http.StatusOK, entries)
}

// CronLogs returns paged job runs plus a trailing 7-day per-job summary.
func (ctl *AdminController) CronLogs(c echo.Context) error {
	limit, offset := pagination(c)
	ctx := c.Request().Context()

	entries, err := ctl.jobLog.List(ctx, limit, offset)
	if err != nil {
		return writeError(c, err, ctl.debug)
	}
	summary, err := ctl.jobLog.Summary(ctx, time.Now().AddDate(0, 0, -7))
	if err != nil {
		return writeError(c, err, ctl.debug)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"logs":    entries,
		"summary": summary,
	})
}

func pagination(c echo.Context) (limit, offset int) {
	limit, offset = 50, 0
	if v := c.QueryParam("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 200 {
			limit = n
		}
	}
	if v := c.QueryParam("page"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 1 {
			offset = (n - 1) * limit
		}
	} else if v := c.QueryParam("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}
	return limit, offset
}
