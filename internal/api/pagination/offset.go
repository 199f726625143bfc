// Package pagination parses page/limit query parameters and builds the
// pagination block returned with list responses.
package pagination

import (
	"math"
	"net/url"
	"strconv"
	"strings"

	"github.com/eventdesk/server/internal/fault"
)

// Params is a normalized page request. Page starts at 1.
type Params struct {
	Page  int
	Limit int
}

// Meta is the "pagination" object of list responses.
type Meta struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"totalPages"`
}

// Parse reads page and limit from query. Missing values take the defaults,
// a limit above maxLimit is clamped, and non-numeric or non-positive values
// are rejected. So is a page whose offset would not fit in an int.
func Parse(query url.Values, defaultLimit, maxLimit int) (Params, error) {
	params := Params{Page: 1, Limit: defaultLimit}

	page, err := positiveInt(query, "page")
	if err != nil {
		return Params{}, err
	}
	if page > 0 {
		params.Page = page
	}

	limit, err := positiveInt(query, "limit")
	if err != nil {
		return Params{}, err
	}
	if limit > 0 {
		params.Limit = limit
	}
	if params.Limit > maxLimit {
		params.Limit = maxLimit
	}
	if params.Limit > 0 && params.Page > math.MaxInt/params.Limit {
		return Params{}, fault.Validation("page", "is out of range")
	}
	return params, nil
}

func positiveInt(query url.Values, key string) (int, error) {
	raw := strings.TrimSpace(query.Get(key))
	if raw == "" {
		return 0, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 1 {
		return 0, fault.Validation(key, "must be a positive integer")
	}
	return value, nil
}

// NewMeta computes the page count for total items.
func NewMeta(params Params, total int) Meta {
	pages := 0
	if params.Limit > 0 {
		pages = (total + params.Limit - 1) / params.Limit
	}
	return Meta{Page: params.Page, Limit: params.Limit, Total: total, TotalPages: pages}
}
