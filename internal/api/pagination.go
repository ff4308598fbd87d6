package api

import (
	"net/http"
	"net/url"
	"strconv"

	"github.com/google/uuid"
	"github.com/wolfeidau/crm/internal/store"
)

const defaultPageLimit = 50

// Page is a validated page request.
type Page struct {
	Page  int `json:"page" validate:"min=1,max=1000000"`
	Limit int `json:"limit" validate:"min=1,max=100"`
}

// Pagination describes the window returned by a list endpoint.
type Pagination struct {
	Page       int  `json:"page"`
	Limit      int  `json:"limit"`
	Total      int  `json:"total"`
	TotalPages int  `json:"totalPages"`
	HasNext    bool `json:"hasNext"`
	HasPrev    bool `json:"hasPrev"`
}

// Pagination computes page metadata for total matching rows.
func (p Page) Pagination(total int) Pagination {
	totalPages := 0
	if total > 0 {
		totalPages = (total + p.Limit - 1) / p.Limit
	}
	return Pagination{
		Page:       p.Page,
		Limit:      p.Limit,
		Total:      total,
		TotalPages: totalPages,
		HasNext:    p.Page < totalPages,
		HasPrev:    p.Page > 1,
	}
}

func (p Page) store() store.Page {
	return store.Page{Page: p.Page, Limit: p.Limit}
}

// queryParams collects query string parse failures so a request reports all of them at once.
type queryParams struct {
	values  url.Values
	details map[string]string
}

func newQueryParams(r *http.Request) *queryParams {
	return &queryParams{values: r.URL.Query(), details: map[string]string{}}
}

func (q *queryParams) int(name string, def int) int {
	raw := q.values.Get(name)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		q.details[name] = "must be an integer"
		return def
	}
	return n
}

func (q *queryParams) uuid(name string) *uuid.UUID {
	raw := q.values.Get(name)
	if raw == "" {
		return nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		q.details[name] = "must be a valid UUID"
		return nil
	}
	return &id
}

func (q *queryParams) oneOf(name string, allowed ...string) string {
	raw := q.values.Get(name)
	if raw == "" {
		return ""
	}
	for _, a := range allowed {
		if raw == a {
			return raw
		}
	}
	q.details[name] = "is invalid"
	return ""
}

func (q *queryParams) string(name string) string {
	return q.values.Get(name)
}

// page parses page and limit, defaulting to the first page of 50.
func (q *queryParams) page() Page {
	return Page{Page: q.int("page", 1), Limit: q.int("limit", defaultPageLimit)}
}

// err returns a VALIDATION_ERROR when any parameter failed to parse, then validates page.
func (q *queryParams) err(page Page) error {
	if len(q.details) > 0 {
		return validationError("Invalid query parameters", q.details)
	}
	return validateStruct(page)
}
