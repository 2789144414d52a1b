package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ignite/engage/internal/pkg/httputil"
	"github.com/ignite/engage/internal/service/template"
)

// ListTemplates returns all of the caller's templates, newest first.
//
//	GET /api/templates
func (h *Handlers) ListTemplates(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerID(w, r)
	if !ok {
		return
	}
	items, err := h.templates.List(r.Context(), owner)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	httputil.OK(w, map[string]any{"templates": items})
}

// CreateTemplate saves reusable content.
//
//	POST /api/templates
func (h *Handlers) CreateTemplate(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerID(w, r)
	if !ok {
		return
	}
	var in template.CreateInput
	if !httputil.Decode(w, r, &in) {
		return
	}
	t, err := h.templates.Create(r.Context(), owner, in)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	httputil.Created(w, t)
}

// GetTemplate returns one template.
//
//	GET /api/templates/{id}
func (h *Handlers) GetTemplate(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerID(w, r)
	if !ok {
		return
	}
	t, err := h.templates.Get(r.Context(), owner, chi.URLParam(r, "id"))
	if err != nil {
		respondServiceError(w, err)
		return
	}
	httputil.OK(w, t)
}
