package api

import (
	"context"
	"net/http"

	"github.com/ignite/engage/internal/auth"
	"github.com/ignite/engage/internal/domain"
	"github.com/ignite/engage/internal/pkg/httputil"
	"github.com/ignite/engage/internal/pkg/logger"
	"github.com/ignite/engage/internal/service/analytics"
	"github.com/ignite/engage/internal/service/campaign"
	"github.com/ignite/engage/internal/service/dispatch"
	"github.com/ignite/engage/internal/service/reconcile"
	"github.com/ignite/engage/internal/service/subscriber"
	"github.com/ignite/engage/internal/service/template"
)

var log = logger.With("api")

// CampaignService is the campaign state machine as the handlers use it.
type CampaignService interface {
	List(ctx context.Context, ownerID string, f campaign.ListFilter) ([]domain.Campaign, int, error)
	Get(ctx context.Context, ownerID, id string) (*domain.Campaign, error)
	Create(ctx context.Context, ownerID string, in campaign.CreateInput) (*domain.Campaign, error)
	Update(ctx context.Context, ownerID, id string, p campaign.Patch) (*domain.Campaign, error)
	Delete(ctx context.Context, ownerID, id string) error
	Preview(ctx context.Context, ownerID, id string, in campaign.PreviewInput) (*campaign.Preview, error)
}

// SubscriberService manages the mailing list.
type SubscriberService interface {
	Create(ctx context.Context, ownerID string, in subscriber.CreateInput) (*domain.Subscriber, error)
	Get(ctx context.Context, ownerID, id string) (*domain.Subscriber, error)
	List(ctx context.Context, ownerID string, f subscriber.ListFilter) ([]domain.Subscriber, int, error)
}

// TemplateService stores reusable content.
type TemplateService interface {
	Create(ctx context.Context, ownerID string, in template.CreateInput) (*domain.Template, error)
	Get(ctx context.Context, ownerID, id string) (*domain.Template, error)
	List(ctx context.Context, ownerID string) ([]domain.Template, error)
}

// Dispatcher performs sends.
type Dispatcher interface {
	Run(ctx context.Context, ownerID, campaignID string) (*dispatch.Result, error)
	SendAdHoc(ctx context.Context, ownerID string, in dispatch.AdHocInput) (*dispatch.AdHocResult, error)
}

// SendQueue accepts background campaign sends.
type SendQueue interface {
	Submit(ownerID, campaignID string) error
}

// AnalyticsService answers reporting queries.
type AnalyticsService interface {
	Stats(ctx context.Context, ownerID string) (*analytics.Stats, error)
	Events(ctx context.Context, ownerID string, q analytics.EventQuery) ([]domain.Event, error)
	Activity(ctx context.Context, userID string, limit int) ([]domain.ActivityLog, error)
}

// NotificationApplier applies parsed provider notifications.
type NotificationApplier interface {
	Apply(ctx context.Context, n *reconcile.Notification) (*reconcile.Report, error)
}

// Handlers holds the API handler dependencies.
type Handlers struct {
	campaigns   CampaignService
	subscribers SubscriberService
	templates   TemplateService
	dispatcher  Dispatcher
	queue       SendQueue
	analytics   AnalyticsService
	reconciler  NotificationApplier
}

// NewHandlers creates the handler set. queue may be nil, in which case
// every campaign send runs inside the request.
func NewHandlers(
	campaigns CampaignService,
	subscribers SubscriberService,
	templates TemplateService,
	dispatcher Dispatcher,
	queue SendQueue,
	analyticsSvc AnalyticsService,
	reconciler NotificationApplier,
) *Handlers {
	return &Handlers{
		campaigns:   campaigns,
		subscribers: subscribers,
		templates:   templates,
		dispatcher:  dispatcher,
		queue:       queue,
		analytics:   analyticsSvc,
		reconciler:  reconciler,
	}
}

// ownerID returns the authenticated owner or writes a 401.
func ownerID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id, ok := auth.OwnerID(r.Context())
	if !ok {
		httputil.Unauthorized(w, "missing bearer token")
	}
	return id, ok
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	httputil.JSON(w, status, data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	httputil.Error(w, status, message)
}
