package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/nickcalamaro/DiceBastion-sub000/internal/service"
)

const (
	headerSessionToken = "X-Session-Token"
	headerAdminKey     = "X-Admin-Key"

	// ContextAdminID holds the authenticated admin id, or "api-key" for
	// shared-key callers.
	ContextAdminID = "adminID"
)

// AdminAuth guards admin routes. It accepts either a session JWT from the
// interactive login or the static shared key used by machine callers.
func AdminAuth(auth service.AuthService) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if token := c.Request().Header.Get(headerSessionToken); token != "" {
				adminID, err := auth.VerifySession(token)
				if err == nil {
					c.Set(ContextAdminID, adminID)
					return next(c)
				}
			}

			if key := c.Request().Header.Get(headerAdminKey); key != "" && auth.VerifyAdminKey(key) {
				c.Set(ContextAdminID, "api-key")
				return next(c)
			}

			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		}
	}
}
