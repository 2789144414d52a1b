package api

import (
	"io"
	"net/http"

	"github.com/ignite/engage/internal/pkg/httputil"
	"github.com/ignite/engage/internal/service/reconcile"
)

// HandleSESNotification receives SNS-delivered SES notifications. A body
// that cannot be parsed is rejected with 400 so SNS does not retry it; a
// failure while applying returns 5xx so it does.
//
//	POST /webhooks/ses/notification
func (h *Handlers) HandleSESNotification(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, httputil.MaxBodyBytes))
	if err != nil {
		httputil.BadRequest(w, "unable to read request body")
		return
	}

	n, err := reconcile.Parse(body)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	report, err := h.reconciler.Apply(r.Context(), n)
	if err != nil {
		log.Error("apply notification", "kind", string(n.Kind), "sns_message_id", n.SNSMessageID, "error", err)
		respondServiceError(w, err)
		return
	}
	httputil.OK(w, report)
}
