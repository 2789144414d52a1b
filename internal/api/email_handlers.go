package api

import (
	"net/http"

	"github.com/ignite/engage/internal/pkg/httputil"
	"github.com/ignite/engage/internal/service/dispatch"
)

// SendEmail sends a one-off message outside any campaign. Per-recipient
// failures are reported in the body, not as an error status.
//
//	POST /api/email/send
func (h *Handlers) SendEmail(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerID(w, r)
	if !ok {
		return
	}
	var in dispatch.AdHocInput
	if !httputil.Decode(w, r, &in) {
		return
	}
	res, err := h.dispatcher.SendAdHoc(r.Context(), owner, in)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	httputil.OK(w, res)
}
