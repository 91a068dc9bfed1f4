package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
)

// TimeoutConfig sets the request deadline. Routes under a Slow prefix, such
// as year-long report exports, get their own budget.
type TimeoutConfig struct {
	Default time.Duration
	Slow    map[string]time.Duration
}

func (cfg TimeoutConfig) forPath(path string) time.Duration {
	best, d := "", cfg.Default
	for prefix, t := range cfg.Slow {
		if strings.HasPrefix(path, prefix) && len(prefix) > len(best) {
			best, d = prefix, t
		}
	}
	return d
}

// RequestTimeout puts a deadline on the request context. The handler runs
// on the request goroutine; pgx aborts queries once the deadline passes and
// the resulting error is reported as 504.
func RequestTimeout(cfg TimeoutConfig) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			timeout := cfg.forPath(c.Request().URL.Path)
			if timeout <= 0 {
				return next(c)
			}

			ctx, cancel := context.WithTimeout(c.Request().Context(), timeout)
			defer cancel()
			c.SetRequest(c.Request().WithContext(ctx))

			err := next(c)
			if errors.Is(ctx.Err(), context.DeadlineExceeded) && !c.Response().Committed {
				return echo.NewHTTPError(http.StatusGatewayTimeout, "request processing exceeded the allowed time limit")
			}
			return err
		}
	}
}
