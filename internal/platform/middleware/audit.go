package middleware

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/bloodlab/bloodlab/internal/platform/auth"
)

// Audit logs who touched which patient or report record. Reads are logged
// at debug level, writes at info.
func Audit(logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			resource := auditResource(c.Path())
			if resource == "" {
				return next(c)
			}

			err := next(c)

			req := c.Request()
			evt := logger.Info()
			if req.Method == http.MethodGet || req.Method == http.MethodHead {
				evt = logger.Debug()
			}
			ctx := req.Context()
			evt.
				Str("audit", "access").
				Str("action", auditAction(req.Method, c.Path())).
				Str("resource", resource).
				Str("resource_id", c.Param("id")).
				Int64("user_id", auth.UserIDFromContext(ctx)).
				Str("role", auth.RoleFromContext(ctx)).
				Str("request_id", stringValue(c.Get("request_id"))).
				Str("ip", c.RealIP()).
				Bool("failed", err != nil).
				Msg("record access")
			return err
		}
	}
}

func auditResource(route string) string {
	switch {
	case strings.Contains(route, "/patients"):
		return "patient"
	case strings.Contains(route, "/reports"), strings.Contains(route, "/blood-reports"):
		return "blood_report"
	}
	return ""
}

func auditAction(method, route string) string {
	switch method {
	case http.MethodPost:
		if strings.HasSuffix(route, "/bulk-delete") {
			return "delete"
		}
		return "create"
	case http.MethodPut, http.MethodPatch:
		return "update"
	case http.MethodDelete:
		return "delete"
	}
	if strings.HasSuffix(route, "/pdf") {
		return "export"
	}
	if strings.Contains(route, ":id") {
		return "read"
	}
	return "search"
}

func stringValue(v any) string {
	s, _ := v.(string)
	return s
}
