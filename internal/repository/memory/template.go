package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/ignite/engage/internal/domain"
	"github.com/ignite/engage/internal/service/template"
)

// TemplateRepo implements template.Repository.
type TemplateRepo struct {
	mu        sync.RWMutex
	templates map[string]domain.Template
}

// NewTemplateRepo creates an empty template store.
func NewTemplateRepo() *TemplateRepo {
	return &TemplateRepo{templates: make(map[string]domain.Template)}
}

func (r *TemplateRepo) Create(_ context.Context, t *domain.Template) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.templates[t.ID] = *t
	return nil
}

func (r *TemplateRepo) Get(_ context.Context, ownerID, id string) (*domain.Template, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.templates[id]
	if !ok || t.OwnerID != ownerID {
		return nil, template.ErrNotFound
	}
	return &t, nil
}

func (r *TemplateRepo) List(_ context.Context, ownerID string) ([]domain.Template, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.Template, 0)
	for _, t := range r.templates {
		if t.OwnerID == ownerID {
			out = append(out, t)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}
