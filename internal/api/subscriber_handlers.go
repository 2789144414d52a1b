package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ignite/engage/internal/domain"
	"github.com/ignite/engage/internal/pkg/httputil"
	"github.com/ignite/engage/internal/service/subscriber"
)

// ListSubscribers pages through the caller's list.
//
//	GET /api/subscribers?status=active&search=ann&page=1&limit=50
func (h *Handlers) ListSubscribers(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerID(w, r)
	if !ok {
		return
	}
	p := parsePage(r, 50, 500)
	q := r.URL.Query()
	items, total, err := h.subscribers.List(r.Context(), owner, subscriber.ListFilter{
		Status: q.Get("status"),
		Search: q.Get("search"),
		Limit:  p.Limit,
		Offset: p.Offset(),
	})
	if err != nil {
		respondServiceError(w, err)
		return
	}
	if items == nil {
		items = []domain.Subscriber{}
	}
	httputil.OK(w, paged(items, p, total))
}

// CreateSubscriber adds an address to the caller's list.
//
//	POST /api/subscribers
func (h *Handlers) CreateSubscriber(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerID(w, r)
	if !ok {
		return
	}
	var in subscriber.CreateInput
	if !httputil.Decode(w, r, &in) {
		return
	}
	s, err := h.subscribers.Create(r.Context(), owner, in)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	httputil.Created(w, s)
}

// GetSubscriber returns one subscriber.
//
//	GET /api/subscribers/{id}
func (h *Handlers) GetSubscriber(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerID(w, r)
	if !ok {
		return
	}
	s, err := h.subscribers.Get(r.Context(), owner, chi.URLParam(r, "id"))
	if err != nil {
		respondServiceError(w, err)
		return
	}
	httputil.OK(w, s)
}
