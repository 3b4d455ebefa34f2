package middleware

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/bloodlab/bloodlab/pkg/response"
)

// RequestTimeout puts a deadline on the request context. Queries running on
// that context are cancelled when it passes, and if the handler has not
// written a response by then the client gets a 504.
//
// The handler runs on the calling goroutine, so a handler that ignores its
// context is not interrupted.
func RequestTimeout(timeout time.Duration) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if timeout <= 0 {
				return next(c)
			}
			ctx, cancel := context.WithTimeout(c.Request().Context(), timeout)
			defer cancel()
			c.SetRequest(c.Request().WithContext(ctx))

			err := next(c)
			if errors.Is(ctx.Err(), context.DeadlineExceeded) && !c.Response().Committed {
				return gatewayTimeout(c)
			}
			return err
		}
	}
}

func gatewayTimeout(c echo.Context) error {
	return response.Fail(c, http.StatusGatewayTimeout,
		"request processing exceeded the allowed time limit", nil)
}
