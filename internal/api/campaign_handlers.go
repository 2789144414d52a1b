package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/ignite/engage/internal/domain"
	"github.com/ignite/engage/internal/pkg/httputil"
	"github.com/ignite/engage/internal/service/campaign"
	"github.com/ignite/engage/internal/service/dispatch"
	"github.com/ignite/engage/internal/worker"
)

// ListCampaigns returns the caller's campaigns newest first.
//
//	GET /api/campaigns?status=draft&page=1&limit=50
func (h *Handlers) ListCampaigns(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerID(w, r)
	if !ok {
		return
	}
	p := parsePage(r, 50, 200)
	items, total, err := h.campaigns.List(r.Context(), owner, campaign.ListFilter{
		Status: r.URL.Query().Get("status"),
		Limit:  p.Limit,
		Offset: p.Offset(),
	})
	if err != nil {
		respondServiceError(w, err)
		return
	}
	if items == nil {
		items = []domain.Campaign{}
	}
	httputil.OK(w, paged(items, p, total))
}

// CreateCampaign creates a draft.
//
//	POST /api/campaigns
func (h *Handlers) CreateCampaign(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerID(w, r)
	if !ok {
		return
	}
	var in campaign.CreateInput
	if !httputil.Decode(w, r, &in) {
		return
	}
	c, err := h.campaigns.Create(r.Context(), owner, in)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	httputil.Created(w, c)
}

// GetCampaign returns one of the caller's campaigns.
//
//	GET /api/campaigns/{id}
func (h *Handlers) GetCampaign(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerID(w, r)
	if !ok {
		return
	}
	c, err := h.campaigns.Get(r.Context(), owner, chi.URLParam(r, "id"))
	if err != nil {
		respondServiceError(w, err)
		return
	}
	httputil.OK(w, c)
}

// UpdateCampaign applies a partial update. Content is locked once a send
// has started.
//
//	PUT /api/campaigns/{id}
func (h *Handlers) UpdateCampaign(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerID(w, r)
	if !ok {
		return
	}
	var p campaign.Patch
	if !httputil.Decode(w, r, &p) {
		return
	}
	c, err := h.campaigns.Update(r.Context(), owner, chi.URLParam(r, "id"), p)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	httputil.OK(w, c)
}

// DeleteCampaign removes a draft or failed campaign. Other campaigns are
// kept for their event history.
//
//	DELETE /api/campaigns/{id}
func (h *Handlers) DeleteCampaign(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerID(w, r)
	if !ok {
		return
	}
	if err := h.campaigns.Delete(r.Context(), owner, chi.URLParam(r, "id")); err != nil {
		respondServiceError(w, err)
		return
	}
	httputil.NoContent(w)
}

// sendResponse is the body of a synchronous send.
type sendResponse struct {
	*dispatch.Result
	Message string `json:"message,omitempty"`
}

// SendCampaign sends a draft to every active subscriber. With async=true
// the campaign is checked, the send is queued and 202 is returned.
//
//	POST /api/campaigns/{id}/send?async=true
func (h *Handlers) SendCampaign(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerID(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")

	if async, _ := strconv.ParseBool(r.URL.Query().Get("async")); async && h.queue != nil {
		c, err := h.campaigns.Get(r.Context(), owner, id)
		if err != nil {
			respondServiceError(w, err)
			return
		}
		if c.Status != domain.CampaignDraft {
			respondServiceError(w, &domain.InvalidStateError{Op: "send", Status: c.Status})
			return
		}
		if err := h.queue.Submit(owner, id); err != nil {
			if errors.Is(err, worker.ErrQueueFull) || errors.Is(err, worker.ErrStopped) {
				httputil.ErrorCode(w, http.StatusServiceUnavailable, codeUnavailable, err.Error(), nil)
				return
			}
			respondServiceError(w, err)
			return
		}
		respondJSON(w, http.StatusAccepted, map[string]string{"status": "queued", "campaign_id": id})
		return
	}

	res, err := h.dispatcher.Run(r.Context(), owner, id)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	out := sendResponse{Result: res}
	if res.Err != nil {
		out.Message = res.Err.Error()
	}
	httputil.OK(w, out)
}

// previewRequest renders for a stored subscriber or for ad-hoc sample
// values.
type previewRequest struct {
	SubscriberID string `json:"subscriber_id"`
	campaign.PreviewInput
}

// PreviewCampaign renders subject and content for a stored subscriber or
// for the sample values in the body.
//
//	POST /api/campaigns/{id}/preview
func (h *Handlers) PreviewCampaign(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerID(w, r)
	if !ok {
		return
	}
	var req previewRequest
	if r.ContentLength != 0 && !httputil.Decode(w, r, &req) {
		return
	}

	in := req.PreviewInput
	if req.SubscriberID != "" {
		s, err := h.subscribers.Get(r.Context(), owner, req.SubscriberID)
		if err != nil {
			respondServiceError(w, err)
			return
		}
		in = campaign.PreviewInput{Email: s.Email, Name: s.Name, Metadata: s.Metadata}
	}

	p, err := h.campaigns.Preview(r.Context(), owner, chi.URLParam(r, "id"), in)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	httputil.OK(w, p)
}
