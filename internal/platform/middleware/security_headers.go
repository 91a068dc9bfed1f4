package middleware

import (
	"github.com/labstack/echo/v4"
)

// SecurityHeaders sets the response headers every reply carries. Printed
// tickets and bills are previewed by the front desk in a same-origin frame,
// so framing is limited to the origin rather than denied. hsts should only
// be enabled when the server sits behind TLS.
func SecurityHeaders(hsts bool) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			h := c.Response().Header()
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("X-Frame-Options", "SAMEORIGIN")
			h.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'self'")
			h.Set("Referrer-Policy", "no-referrer")
			// Patient data must not be kept by browsers or proxies.
			h.Set("Cache-Control", "no-store")
			if hsts {
				h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
			}
			return next(c)
		}
	}
}
