package analytics

import (
	"context"

	"github.com/ignite/engage/internal/domain"
)

// EventRepository is the append-only delivery event log.
type EventRepository interface {
	// Append records e. It returns false without error when an event with
	// the same (message id, event, recipient) key already exists.
	Append(ctx context.Context, e *domain.Event) (bool, error)

	// FindByMessageID returns the earliest event of the given type carrying
	// messageID, across owners. Returns ErrEventNotFound if none exists.
	FindByMessageID(ctx context.Context, messageID string, event domain.EventType) (*domain.Event, error)

	// Search returns the owner's events matching filter, newest first.
	Search(ctx context.Context, ownerID string, filter domain.EventFilter) ([]domain.Event, error)

	// CountByType returns event counts for the owner grouped by type.
	CountByType(ctx context.Context, ownerID string) (map[domain.EventType]int, error)
}

// ActivityRepository is the append-only per-user audit trail.
type ActivityRepository interface {
	Record(ctx context.Context, a *domain.ActivityLog) error
	List(ctx context.Context, userID string, limit int) ([]domain.ActivityLog, error)
}
