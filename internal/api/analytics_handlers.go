package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/ignite/engage/internal/domain"
	"github.com/ignite/engage/internal/pkg/httputil"
	"github.com/ignite/engage/internal/service/analytics"
)

// GetStats returns the caller's delivery totals and rates.
//
//	GET /api/analytics/stats
func (h *Handlers) GetStats(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerID(w, r)
	if !ok {
		return
	}
	st, err := h.analytics.Stats(r.Context(), owner)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	httputil.OK(w, st)
}

// ListEvents returns the caller's events newest first.
//
//	GET /api/analytics/events?campaignId=&eventType=&startDate=&endDate=&limit=
func (h *Handlers) ListEvents(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerID(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	query := analytics.EventQuery{
		CampaignID: q.Get("campaignId"),
		EventType:  q.Get("eventType"),
	}
	var err error
	if query.Start, err = parseTimeParam(q.Get("startDate"), "startDate"); err != nil {
		respondServiceError(w, err)
		return
	}
	if query.End, err = parseTimeParam(q.Get("endDate"), "endDate"); err != nil {
		respondServiceError(w, err)
		return
	}
	if v := q.Get("limit"); v != "" {
		if query.Limit, err = strconv.Atoi(v); err != nil {
			respondServiceError(w, &domain.ValidationError{Field: "limit", Message: "must be an integer"})
			return
		}
	}

	events, err := h.analytics.Events(r.Context(), owner, query)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	if events == nil {
		events = []domain.Event{}
	}
	httputil.OK(w, map[string]any{"events": events, "count": len(events)})
}

// ListActivity returns the caller's recent audit trail.
//
//	GET /api/activity?limit=20
func (h *Handlers) ListActivity(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerID(w, r)
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	items, err := h.analytics.Activity(r.Context(), owner, limit)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	if items == nil {
		items = []domain.ActivityLog{}
	}
	httputil.OK(w, map[string]any{"activity": items})
}

// parseTimeParam accepts RFC 3339 or a bare YYYY-MM-DD date.
func parseTimeParam(v, field string) (*time.Time, error) {
	if v == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, v); err == nil {
			return &t, nil
		}
	}
	return nil, &domain.ValidationError{Field: field, Message: "must be an RFC 3339 timestamp or YYYY-MM-DD date"}
}
