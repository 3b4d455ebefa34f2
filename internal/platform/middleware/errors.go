package middleware

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/bloodlab/bloodlab/internal/platform/apperr"
	"github.com/bloodlab/bloodlab/pkg/response"
)

// ErrorHandler renders every error as the standard envelope. With verbose
// set, internal error causes are included in the message.
func ErrorHandler(logger zerolog.Logger, verbose bool) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		status, message, details := classify(err, verbose)
		if status >= http.StatusInternalServerError {
			logger.Error().
				Err(err).
				Str("request_id", fmt.Sprintf("%v", c.Get("request_id"))).
				Str("path", c.Request().URL.Path).
				Msg("request failed")
		}

		var werr error
		if c.Request().Method == http.MethodHead {
			werr = c.NoContent(status)
		} else {
			werr = response.Fail(c, status, message, details)
		}
		if werr != nil {
			logger.Error().Err(werr).Msg("write error response")
		}
	}
}

func classify(err error, verbose bool) (int, string, map[string]string) {
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		msg := appErr.Message
		if verbose && appErr.Code == apperr.CodeInternal && appErr.Err != nil {
			msg = appErr.Error()
		}
		return appErr.HTTPStatus, msg, appErr.Details
	}

	var he *echo.HTTPError
	if errors.As(err, &he) {
		msg := http.StatusText(he.Code)
		if m, ok := he.Message.(string); ok && m != "" {
			msg = m
		}
		return he.Code, msg, nil
	}

	if verbose {
		return http.StatusInternalServerError, err.Error(), nil
	}
	return http.StatusInternalServerError, "internal server error", nil
}
