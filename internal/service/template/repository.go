package template

import (
	"context"

	"github.com/ignite/engage/internal/domain"
)

// Repository defines the data access contract for templates.
type Repository interface {
	// Create inserts a new template.
	Create(ctx context.Context, t *domain.Template) error

	// Get returns ErrNotFound if the template doesn't exist or belongs to
	// another owner.
	Get(ctx context.Context, ownerID, id string) (*domain.Template, error)

	// List returns the owner's templates ordered by created_at DESC.
	List(ctx context.Context, ownerID string) ([]domain.Template, error)
}

// ActivityRecorder appends audit-trail entries.
type ActivityRecorder interface {
	Record(ctx context.Context, a *domain.ActivityLog) error
}
