package template

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/engage/internal/domain"
	"github.com/ignite/engage/internal/pkg/logger"
)

var log = logger.With("template")

// Service manages templates. It is safe for concurrent use.
type Service struct {
	repo     Repository
	activity ActivityRecorder
	now      func() time.Time
}

// NewService creates a template service. activity may be nil.
func NewService(repo Repository, activity ActivityRecorder) *Service {
	return &Service{
		repo:     repo,
		activity: activity,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// CreateInput holds the fields for a new template.
type CreateInput struct {
	Name    string `json:"name"`
	Content string `json:"content"`
}

// Create validates and persists a template.
func (s *Service) Create(ctx context.Context, ownerID string, in CreateInput) (*domain.Template, error) {
	if strings.TrimSpace(in.Name) == "" {
		return nil, domain.Required("name")
	}
	if strings.TrimSpace(in.Content) == "" {
		return nil, domain.Required("content")
	}

	now := s.now()
	t := &domain.Template{
		ID:        uuid.New().String(),
		OwnerID:   ownerID,
		Name:      strings.TrimSpace(in.Name),
		Content:   in.Content,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.Create(ctx, t); err != nil {
		return nil, domain.Upstream("create template", err)
	}

	if s.activity != nil {
		id := t.ID
		err := s.activity.Record(ctx, &domain.ActivityLog{
			ID:         uuid.New().String(),
			UserID:     ownerID,
			Action:     domain.ActionCreateTemplate,
			EntityType: domain.EntityTemplate,
			EntityID:   &id,
			Details:    map[string]any{"name": t.Name},
			Timestamp:  now,
		})
		if err != nil {
			log.Warn("activity record failed", "template_id", id, "error", err)
		}
	}
	return t, nil
}

// Get returns one template.
func (s *Service) Get(ctx context.Context, ownerID, id string) (*domain.Template, error) {
	t, err := s.repo.Get(ctx, ownerID, id)
	return t, domain.Upstream("get template", err)
}

// List returns every template the owner has saved, newest first.
func (s *Service) List(ctx context.Context, ownerID string) ([]domain.Template, error) {
	items, err := s.repo.List(ctx, ownerID)
	return items, domain.Upstream("list templates", err)
}
