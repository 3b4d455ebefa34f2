package pagination

import (
	"strconv"

	"github.com/labstack/echo/v4"
)

const (
	DefaultLimit = 10
	MaxLimit     = 100
)

// Params is a 1-indexed page request.
type Params struct {
	Page  int
	Limit int
}

// FromContext reads ?page= and ?limit= from the request. Missing or
// non-positive values fall back to page 1 and DefaultLimit; limit is capped
// at MaxLimit.
func FromContext(c echo.Context) Params {
	return New(atoi(c.QueryParam("page")), atoi(c.QueryParam("limit")))
}

func New(page, limit int) Params {
	if page <= 0 {
		page = 1
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	return Params{Page: page, Limit: limit}
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}

// Offset is the number of rows to skip for this page.
func (p Params) Offset() int {
	return (p.Page - 1) * p.Limit
}

// Meta is the pagination block returned alongside list results.
type Meta struct {
	CurrentPage  int `json:"currentPage"`
	TotalPages   int `json:"totalPages"`
	TotalItems   int `json:"totalItems"`
	ItemsPerPage int `json:"itemsPerPage"`
}

// NewMeta computes totalPages as ceil(total/limit); zero items means zero pages.
func NewMeta(p Params, total int) Meta {
	pages := 0
	if total > 0 {
		pages = (total + p.Limit - 1) / p.Limit
	}
	return Meta{
		CurrentPage:  p.Page,
		TotalPages:   pages,
		TotalItems:   total,
		ItemsPerPage: p.Limit,
	}
}
