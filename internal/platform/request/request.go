// Package request holds the echo helpers handlers share for reading path
// params, query params and JSON bodies.
package request

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/bloodlab/bloodlab/internal/platform/apperr"
	"github.com/bloodlab/bloodlab/pkg/dateonly"
)

// Bind decodes the body into v. Malformed input becomes a validation error;
// an oversize body keeps its 413 from the body limit middleware.
func Bind(c echo.Context, v any) error {
	err := c.Bind(v)
	if err == nil {
		return nil
	}
	var he *echo.HTTPError
	if errors.As(err, &he) && he.Code == http.StatusRequestEntityTooLarge {
		return he
	}
	return apperr.Validation("invalid request body", nil)
}

// ID parses the :id path param as a positive integer.
func ID(c echo.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperr.Validation("invalid id", map[string]string{"id": "id must be a positive integer"})
	}
	return id, nil
}

// Date reads an optional YYYY-MM-DD query param. Absent yields nil.
func Date(c echo.Context, name string) (*dateonly.Date, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return nil, nil
	}
	d, err := dateonly.Parse(raw)
	if err != nil {
		return nil, apperr.Validation("invalid date", map[string]string{name: "must be a date in YYYY-MM-DD format"})
	}
	return &d, nil
}
