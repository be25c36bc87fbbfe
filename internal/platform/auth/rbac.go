package auth

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// Staff roles.
const (
	RoleAdmin     = "admin"
	RoleReception = "reception"
	RoleDoctor    = "doctor"
	RoleNurse     = "nurse"
	RoleLab       = "lab"
	RolePharmacy  = "pharmacy"
	RoleBilling   = "billing"
	RoleOT        = "ot"
	RoleSupport   = "support"
)

// HasRole reports whether roles grants any of want. Admin grants everything.
func HasRole(roles []string, want ...string) bool {
	for _, has := range roles {
		if has == RoleAdmin {
			return true
		}
		for _, w := range want {
			if has == w {
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
			if HasRole(RolesFromContext(c.Request().Context()), roles...) {
				return next(c)
			}
			return echo.NewHTTPError(http.StatusForbidden,
				fmt.Sprintf("required role: %s", strings.Join(roles, " or ")))
		}
	}
}
