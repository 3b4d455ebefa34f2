package auth

import (
	"fmt"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/bloodlab/bloodlab/internal/platform/apperr"
)

// RequireRole allows the request through when the caller holds one of roles.
// Admin always passes.
func RequireRole(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			role := RoleFromContext(c.Request().Context())
			if role == "" {
				return apperr.Unauthorized("authentication required")
			}
			if role == RoleAdmin {
				return next(c)
			}
			for _, r := range roles {
				if r == role {
					return next(c)
				}
			}
			return apperr.Forbidden(fmt.Sprintf("required role: %s", strings.Join(roles, " or ")))
		}
	}
}

// ValidRole reports whether r is an assignable role.
func ValidRole(r string) bool {
	return r == RoleAdmin || r == RolePatient
}
