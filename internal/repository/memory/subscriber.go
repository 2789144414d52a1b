package memory

import (
	"context"
	"maps"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ignite/engage/internal/domain"
	"github.com/ignite/engage/internal/service/subscriber"
)

// SubscriberRepo implements subscriber.Repository.
type SubscriberRepo struct {
	mu      sync.RWMutex
	byID    map[string]*domain.Subscriber
	byEmail map[string]string // ownerID|email -> id
}

// NewSubscriberRepo creates an empty subscriber store.
func NewSubscriberRepo() *SubscriberRepo {
	return &SubscriberRepo{
		byID:    make(map[string]*domain.Subscriber),
		byEmail: make(map[string]string),
	}
}

func emailKey(ownerID, email string) string {
	return ownerID + "|" + domain.NormalizeEmail(email)
}

func (r *SubscriberRepo) Create(_ context.Context, s *domain.Subscriber) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := emailKey(s.OwnerID, s.Email)
	if _, exists := r.byEmail[k]; exists {
		return subscriber.ErrExists
	}
	r.byID[s.ID] = cloneSubscriber(s)
	r.byEmail[k] = s.ID
	return nil
}

func (r *SubscriberRepo) Get(_ context.Context, ownerID, id string) (*domain.Subscriber, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.byID[id]
	if !ok || s.OwnerID != ownerID {
		return nil, subscriber.ErrNotFound
	}
	return cloneSubscriber(s), nil
}

func (r *SubscriberRepo) FindByEmail(_ context.Context, ownerID, email string) (*domain.Subscriber, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byEmail[emailKey(ownerID, email)]
	if !ok {
		return nil, subscriber.ErrNotFound
	}
	return cloneSubscriber(r.byID[id]), nil
}

func (r *SubscriberRepo) List(_ context.Context, ownerID string, f subscriber.ListFilter) ([]domain.Subscriber, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := r.filter(ownerID, func(s *domain.Subscriber) bool {
		if f.Status != "" && string(s.Status) != f.Status {
			return false
		}
		if f.Search != "" && !strings.Contains(s.Email, f.Search) && !strings.Contains(strings.ToLower(s.Name), f.Search) {
			return false
		}
		return true
	})
	total := len(out)
	return page(out, f.Offset, f.Limit), total, nil
}

func (r *SubscriberRepo) ListActive(_ context.Context, ownerID string) ([]domain.Subscriber, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.filter(ownerID, (*domain.Subscriber).Dispatchable), nil
}

func (r *SubscriberRepo) UpdateStatus(_ context.Context, ownerID, id string, status domain.SubscriberStatus, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.byID[id]
	if !ok || s.OwnerID != ownerID {
		return subscriber.ErrNotFound
	}
	s.Status = status
	s.UpdatedAt = now
	return nil
}

// filter must be called with r.mu held.
func (r *SubscriberRepo) filter(ownerID string, keep func(*domain.Subscriber) bool) []domain.Subscriber {
	var out []domain.Subscriber
	for _, s := range r.byID {
		if s.OwnerID == ownerID && keep(s) {
			out = append(out, *cloneSubscriber(s))
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].Email < out[j].Email
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

func cloneSubscriber(s *domain.Subscriber) *domain.Subscriber {
	cp := *s
	cp.Metadata = maps.Clone(s.Metadata)
	return &cp
}
