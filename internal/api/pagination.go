package api

import (
	"net/http"
	"strconv"
)

// Page is a parsed ?page=&limit= pair. Page is 1-based.
type Page struct {
	Number int
	Limit  int
}

// Offset is the number of rows before this page.
func (p Page) Offset() int { return (p.Number - 1) * p.Limit }

// PageMeta describes a page of a list response.
type PageMeta struct {
	Page       int  `json:"page"`
	Limit      int  `json:"limit"`
	Total      int  `json:"total"`
	TotalPages int  `json:"total_pages"`
	HasMore    bool `json:"has_more"`
}

// PagedResponse is the body of every paginated list endpoint.
type PagedResponse struct {
	Data       any      `json:"data"`
	Pagination PageMeta `json:"pagination"`
}

// parsePage reads page and limit. Missing or non-positive values fall back
// to page 1 and defaultLimit; limit is capped at ceiling.
func parsePage(r *http.Request, defaultLimit, ceiling int) Page {
	q := r.URL.Query()
	p := Page{Number: 1, Limit: defaultLimit}
	if n, err := strconv.Atoi(q.Get("page")); err == nil && n > 0 {
		p.Number = n
	}
	if n, err := strconv.Atoi(q.Get("limit")); err == nil && n > 0 {
		p.Limit = min(n, ceiling)
	}
	return p
}

func paged(data any, p Page, total int) PagedResponse {
	pages := (total + p.Limit - 1) / p.Limit
	if pages < 1 {
		pages = 1
	}
	return PagedResponse{
		Data: data,
		Pagination: PageMeta{
			Page:       p.Number,
			Limit:      p.Limit,
			Total:      total,
			TotalPages: pages,
			HasMore:    p.Number < pages,
		},
	}
}
