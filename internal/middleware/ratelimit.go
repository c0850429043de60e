package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/nickcalamaro/DiceBastion-sub000/internal/ratelimit"
)

// RateLimit throttles a route group by client IP. Echo's RealIP honors
// X-Forwarded-For behind the reverse proxy.
func RateLimit(limiter ratelimit.Limiter) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !limiter.Allow(c.Request().Context(), c.RealIP()) {
				return c.JSON(http.StatusTooManyRequests, map[string]string{"error": "rate_limit_exceeded"})
			}
			return next(c)
		}
	}
}
