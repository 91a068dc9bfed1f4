package auth

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// publicRoutes are reachable without a token, keyed by method and route
// pattern. Only the login call and the probes qualify.
var publicRoutes = map[string]bool{
	http.MethodGet + " /health":          true,
	http.MethodGet + " /health/db":       true,
	http.MethodPost + " /api/auth/login": true,
}

// AuthSkipper reports whether the matched route is public.
func AuthSkipper(c echo.Context) bool {
	return IsPublic(c.Request().Method, c.Path())
}

func IsPublic(method, route string) bool {
	return publicRoutes[method+" "+route]
}
