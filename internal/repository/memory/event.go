package memory

import (
	"context"
	"maps"
	"sort"
	"sync"

	"github.com/ignite/engage/internal/domain"
	"github.com/ignite/engage/internal/service/analytics"
)

// EventRepo implements analytics.EventRepository. Events with a dedup key
// are recorded at most once.
type EventRepo struct {
	mu     sync.RWMutex
	events []domain.Event
	keys   map[string]struct{}
}

// NewEventRepo creates an empty event log.
func NewEventRepo() *EventRepo {
	return &EventRepo{keys: make(map[string]struct{})}
}

func (r *EventRepo) Append(_ context.Context, e *domain.Event) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if k, ok := e.DedupKey(); ok {
		if _, seen := r.keys[k]; seen {
			return false, nil
		}
		r.keys[k] = struct{}{}
	}
	r.events = append(r.events, cloneEvent(e))
	return true, nil
}

func (r *EventRepo) FindByMessageID(_ context.Context, messageID string, event domain.EventType) (*domain.Event, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for i := range r.events {
		e := &r.events[i]
		if e.Event == event && e.MessageID != nil && *e.MessageID == messageID {
			cp := cloneEvent(e)
			return &cp, nil
		}
	}
	return nil, analytics.ErrEventNotFound
}

func (r *EventRepo) Search(_ context.Context, ownerID string, f domain.EventFilter) ([]domain.Event, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []domain.Event
	for i := range r.events {
		e := &r.events[i]
		if e.OwnerID != ownerID {
			continue
		}
		if f.CampaignID != "" && (e.CampaignID == nil || *e.CampaignID != f.CampaignID) {
			continue
		}
		if f.Event != "" && e.Event != f.Event {
			continue
		}
		if f.Start != nil && e.Timestamp.Before(*f.Start) {
			continue
		}
		if f.End != nil && e.Timestamp.After(*f.End) {
			continue
		}
		out = append(out, cloneEvent(e))
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	return page(out, 0, f.Limit), nil
}

func (r *EventRepo) CountByType(_ context.Context, ownerID string) (map[domain.EventType]int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	counts := make(map[domain.EventType]int)
	for _, e := range r.events {
		if e.OwnerID == ownerID {
			counts[e.Event]++
		}
	}
	return counts, nil
}

// All returns every recorded event in append order.
func (r *EventRepo) All() []domain.Event {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.Event, len(r.events))
	for i := range r.events {
		out[i] = cloneEvent(&r.events[i])
	}
	return out
}

func cloneEvent(e *domain.Event) domain.Event {
	cp := *e
	cp.Metadata = maps.Clone(e.Metadata)
	return cp
}
