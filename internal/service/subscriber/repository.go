package subscriber

import (
	"context"
	"time"

	"github.com/ignite/engage/internal/domain"
)

// Repository defines the data access contract for subscribers.
type Repository interface {
	// Create inserts a subscriber. Returns ErrExists if the owner already has
	// a subscriber with the same normalized email.
	Create(ctx context.Context, s *domain.Subscriber) error

	// Get returns a subscriber by id. Returns ErrNotFound if it doesn't exist
	// or belongs to another owner.
	Get(ctx context.Context, ownerID, id string) (*domain.Subscriber, error)

	// FindByEmail looks a subscriber up by owner and normalized email.
	FindByEmail(ctx context.Context, ownerID, email string) (*domain.Subscriber, error)

	// List returns subscribers matching the filter, newest first.
	List(ctx context.Context, ownerID string, filter ListFilter) ([]domain.Subscriber, int, error)

	// ListActive returns every active subscriber of the owner.
	ListActive(ctx context.Context, ownerID string) ([]domain.Subscriber, error)

	// UpdateStatus sets the subscriber's status. Concurrent writes to the
	// same subscriber are serialized by the store; the last write wins.
	UpdateStatus(ctx context.Context, ownerID, id string, status domain.SubscriberStatus, now time.Time) error
}

// ActivityRecorder appends audit-trail entries.
type ActivityRecorder interface {
	Record(ctx context.Context, a *domain.ActivityLog) error
}

// ListFilter controls pagination and filtering for subscriber lists.
type ListFilter struct {
	Status string
	Search string
	Limit  int
	Offset int
}
