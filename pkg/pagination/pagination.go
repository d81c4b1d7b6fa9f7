package pagination

import (
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
)

const (
	DefaultPage    = 1
	DefaultPerPage = 20
	MaxPerPage     = 100
)

// Params holds page-based pagination extracted from a request.
type Params struct {
	Page    int
	PerPage int
	Offset  int
}

// Parse turns raw page and per_page query values into Params using the
// default limits. Missing, non-numeric and non-positive values fall back to
// the defaults; per_page is capped at MaxPerPage.
func Parse(page, perPage string) Params {
	return ParseWithLimits(page, perPage, DefaultPerPage, MaxPerPage)
}

// ParseWithLimits is Parse with caller-chosen defaults.
func ParseWithLimits(page, perPage string, defaultPerPage, maxPerPage int) Params {
	p := positiveOr(page, DefaultPage)
	pp := positiveOr(perPage, defaultPerPage)
	if pp > maxPerPage {
		pp = maxPerPage
	}
	return Params{Page: p, PerPage: pp, Offset: (p - 1) * pp}
}

// FromContext extracts pagination parameters from the echo context.
func FromContext(c echo.Context) Params {
	return Parse(c.QueryParam("page"), c.QueryParam("per_page"))
}

// Limit reads a bare "limit" query value, as used by short sub-resource
// listings, clamped to [1, max].
func Limit(c echo.Context, def, max int) int {
	n := positiveOr(c.QueryParam("limit"), def)
	if n > max {
		n = max
	}
	return n
}

func positiveOr(raw string, def int) int {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n < 1 {
		return def
	}
	return n
}

// Meta describes the page that was returned.
type Meta struct {
	Page    int  `json:"page"`
	PerPage int  `json:"per_page"`
	Total   int  `json:"total"`
	Pages   int  `json:"pages"`
	HasNext bool `json:"has_next"`
	HasPrev bool `json:"has_prev"`
}

// NewMeta builds the pagination block for a listing of total items.
func NewMeta(p Params, total int) Meta {
	pages := 0
	if p.PerPage > 0 {
		pages = (total + p.PerPage - 1) / p.PerPage
	}
	return Meta{
		Page:    p.Page,
		PerPage: p.PerPage,
		Total:   total,
		Pages:   pages,
		HasNext: p.Page < pages,
		HasPrev: p.Page > 1,
	}
}
