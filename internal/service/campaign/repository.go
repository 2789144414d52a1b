package campaign

import (
	"context"
	"time"

	"github.com/ignite/engage/internal/domain"
)

// Repository defines the data access contract for campaigns.
// Implementations must be safe for concurrent use, and every status guard
// below must be evaluated atomically with the write it protects.
type Repository interface {
	// Get returns a single campaign. Returns ErrNotFound if it doesn't exist
	// or belongs to another owner.
	Get(ctx context.Context, ownerID, id string) (*domain.Campaign, error)

	// List returns campaigns matching the given filter, ordered by created_at DESC.
	List(ctx context.Context, ownerID string, filter ListFilter) ([]domain.Campaign, int, error)

	// Create inserts a new campaign.
	Create(ctx context.Context, c *domain.Campaign) error

	// Update applies the non-nil fields of p. When p.Content is set the write
	// only happens if the campaign is not sending or sent; otherwise an
	// ImmutableFieldError is returned.
	Update(ctx context.Context, ownerID, id string, p Patch, now time.Time) (*domain.Campaign, error)

	// Delete removes a campaign that is not sending or sent. Returns an
	// InvalidStateError otherwise.
	Delete(ctx context.Context, ownerID, id string) error

	// TransitionStatus moves the campaign to `to` only if its current status
	// is one of `from` (compare-and-swap). Returns an InvalidStateError when
	// the guard does not hold.
	TransitionStatus(ctx context.Context, ownerID, id string, from []domain.CampaignStatus, to domain.CampaignStatus, now time.Time) (*domain.Campaign, error)

	// SetRecipientCount records the recipient count if it is not yet set.
	SetRecipientCount(ctx context.Context, ownerID, id string, n int, now time.Time) error

	// Finish moves a sending campaign to its terminal status. sentAt is
	// written only if it was never written before.
	Finish(ctx context.Context, ownerID, id string, status domain.CampaignStatus, sentAt *time.Time, now time.Time) (*domain.Campaign, error)
}

// ActivityRecorder appends audit-trail entries.
type ActivityRecorder interface {
	Record(ctx context.Context, a *domain.ActivityLog) error
}

// TemplateLookup resolves template ids referenced by campaigns.
type TemplateLookup interface {
	Get(ctx context.Context, ownerID, id string) (*domain.Template, error)
}

// ListFilter controls pagination and filtering for campaign lists.
type ListFilter struct {
	Status string
	Limit  int
	Offset int
}

// Patch holds the mutable fields for a campaign update.
// Nil fields are not applied. Status, recipient count and sent-at are not
// patchable; they only move through the state machine.
type Patch struct {
	Name       *string    `json:"name"`
	Subject    *string    `json:"subject"`
	Content    *string    `json:"content"`
	SendAt     *time.Time `json:"send_at"`
	TemplateID *string    `json:"template_id"`
}

