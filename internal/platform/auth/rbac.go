package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

const (
	RoleAdmin           = "admin"
	RoleReceptionist    = "receptionist"
	RoleDoctor          = "doctor"
	RolePharmacist      = "pharmacist"
	RolePhysiotherapist = "physiotherapist"
	RoleStorekeeper     = "storekeeper"
)

// Roles lists every staff role in display order.
var Roles = []string{RoleAdmin, RoleReceptionist, RoleDoctor, RolePharmacist, RolePhysiotherapist, RoleStorekeeper}

// ValidRole reports whether role is a known staff role.
func ValidRole(role string) bool {
	for _, r := range Roles {
		if r == role {
			return true
		}
	}
	return false
}

// HasRole reports whether the principal on ctx holds one of roles. Admin
// holds every role.
func HasRole(ctx context.Context, roles ...string) bool {
	for _, has := range RolesFromContext(ctx) {
		if has == RoleAdmin {
			return true
		}
		for _, required := range roles {
			if has == required {
				return true
			}
		}
	}
	return false
}

// RequireRole returns middleware that checks if the user has at least one of the specified roles.
func RequireRole(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if HasRole(c.Request().Context(), roles...) {
				return next(c)
			}
			return echo.NewHTTPError(http.StatusForbidden,
				fmt.Sprintf("required role: %s", strings.Join(roles, " or ")))
		}
	}
}
