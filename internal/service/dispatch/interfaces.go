package dispatch

import (
	"context"

	"github.com/ignite/engage/internal/domain"
)

// Campaigns is the slice of the campaign state machine the dispatcher drives.
type Campaigns interface {
	BeginSend(ctx context.Context, ownerID, id string) (*domain.Campaign, error)
	SetRecipientCount(ctx context.Context, ownerID, id string, n int) error
	Finish(ctx context.Context, ownerID, id string, status domain.CampaignStatus) (*domain.Campaign, error)
}

// Subscribers loads send targets.
type Subscribers interface {
	ListActive(ctx context.Context, ownerID string) ([]domain.Subscriber, error)
}

// EventLog appends delivery events.
type EventLog interface {
	Append(ctx context.Context, e *domain.Event) (bool, error)
}

// ActivityRecorder appends audit-trail entries.
type ActivityRecorder interface {
	Record(ctx context.Context, a *domain.ActivityLog) error
}
