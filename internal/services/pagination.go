package services

import (
	"strings"

	"github.com/diewo77/smart-invoices/validation"
)

const (
	defaultPageLimit = 10
	maxPageLimit     = 100
)

// Pagination describes the page returned by a listing.
type Pagination struct {
	Total      int64 `json:"total"`
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	TotalPages int   `json:"total_pages"`
}

func newPagination(total int64, page, limit int) Pagination {
	pages := int((total + int64(limit) - 1) / int64(limit))
	return Pagination{Total: total, Page: page, Limit: limit, TotalPages: pages}
}

// pageBounds applies defaults to zero values and rejects out-of-range ones.
func pageBounds(page, limit int) (int, int, error) {
	if page == 0 {
		page = 1
	}
	if limit == 0 {
		limit = defaultPageLimit
	}
	v := make(validation.Violations)
	if page < 1 {
		v.Add("page", "out_of_range")
	}
	validation.RangeInt("limit", limit, 1, maxPageLimit, v)
	if err := invalid(v); err != nil {
		return 0, 0, err
	}
	return page, limit, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// likePattern builds a lower-cased substring pattern with LIKE wildcards escaped.
func likePattern(term string) string {
	return "%" + likeEscaper.Replace(strings.ToLower(term)) + "%"
}
