package memory

import (
	"context"
	"sync"

	"github.com/ignite/engage/internal/domain"
)

// ActivityRepo implements analytics.ActivityRepository.
type ActivityRepo struct {
	mu      sync.RWMutex
	entries []domain.ActivityLog
}

// NewActivityRepo creates an empty audit trail.
func NewActivityRepo() *ActivityRepo {
	return &ActivityRepo{}
}

func (r *ActivityRepo) Record(_ context.Context, a *domain.ActivityLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, *a)
	return nil
}

// List walks the trail backwards so the newest entries come first.
func (r *ActivityRepo) List(_ context.Context, userID string, limit int) ([]domain.ActivityLog, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []domain.ActivityLog
	for i := len(r.entries) - 1; i >= 0; i-- {
		if r.entries[i].UserID != userID {
			continue
		}
		out = append(out, r.entries[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}
