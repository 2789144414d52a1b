package subscriber

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/engage/internal/domain"
	"github.com/ignite/engage/internal/pkg/logger"
)

var log = logger.With("subscriber")

// DefaultSource is recorded for subscribers added by hand.
const DefaultSource = "manual"

// Service implements subscriber business logic. It is safe for concurrent use.
type Service struct {
	repo     Repository
	activity ActivityRecorder
	now      func() time.Time
}

// NewService creates a subscriber service backed by the given repository.
func NewService(repo Repository, activity ActivityRecorder) *Service {
	return &Service{
		repo:     repo,
		activity: activity,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// CreateInput holds the fields for adding a subscriber.
type CreateInput struct {
	Email    string                  `json:"email"`
	Name     string                  `json:"name"`
	Status   domain.SubscriberStatus `json:"status"`
	Source   string                  `json:"source"`
	Metadata map[string]any          `json:"metadata"`
}

// Create validates and persists a subscriber. Status defaults to active and
// source to "manual".
func (s *Service) Create(ctx context.Context, ownerID string, in CreateInput) (*domain.Subscriber, error) {
	email := domain.NormalizeEmail(in.Email)
	if email == "" {
		return nil, domain.Required("email")
	}
	if !validEmail(email) {
		return nil, &domain.ValidationError{Field: "email", Message: "invalid address"}
	}

	status := in.Status
	if status == "" {
		status = domain.SubscriberActive
	}
	if !status.Valid() {
		return nil, &domain.ValidationError{Field: "status", Message: "unknown subscriber status"}
	}
	source := strings.TrimSpace(in.Source)
	if source == "" {
		source = DefaultSource
	}
	meta := in.Metadata
	if meta == nil {
		meta = map[string]any{}
	}

	now := s.now()
	sub := &domain.Subscriber{
		ID:        uuid.New().String(),
		OwnerID:   ownerID,
		Email:     email,
		Name:      strings.TrimSpace(in.Name),
		Status:    status,
		Source:    source,
		Metadata:  meta,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.Create(ctx, sub); err != nil {
		return nil, domain.Upstream("create subscriber", err)
	}

	if s.activity != nil {
		id := sub.ID
		err := s.activity.Record(ctx, &domain.ActivityLog{
			ID:         uuid.New().String(),
			UserID:     ownerID,
			Action:     domain.ActionCreateSubscriber,
			EntityType: domain.EntitySubscriber,
			EntityID:   &id,
			Details:    map[string]any{"source": source},
			Timestamp:  now,
		})
		if err != nil {
			log.Warn("activity record failed", "subscriber_id", id, "error", err)
		}
	}
	return sub, nil
}

// Get returns a single subscriber.
func (s *Service) Get(ctx context.Context, ownerID, id string) (*domain.Subscriber, error) {
	sub, err := s.repo.Get(ctx, ownerID, id)
	return sub, domain.Upstream("get subscriber", err)
}

// List returns subscribers matching the given filter.
func (s *Service) List(ctx context.Context, ownerID string, f ListFilter) ([]domain.Subscriber, int, error) {
	if f.Status != "" && !domain.SubscriberStatus(f.Status).Valid() {
		return nil, 0, &domain.ValidationError{Field: "status", Message: "unknown subscriber status"}
	}
	f.Search = strings.ToLower(strings.TrimSpace(f.Search))
	items, total, err := s.repo.List(ctx, ownerID, f)
	return items, total, domain.Upstream("list subscribers", err)
}

// ListActive returns the owner's dispatchable subscribers.
func (s *Service) ListActive(ctx context.Context, ownerID string) ([]domain.Subscriber, error) {
	items, err := s.repo.ListActive(ctx, ownerID)
	return items, domain.Upstream("list active subscribers", err)
}

func validEmail(email string) bool {
	local, host, ok := strings.Cut(email, "@")
	if !ok || local == "" || host == "" || strings.ContainsAny(email, " \t\r\n") {
		return false
	}
	return !strings.Contains(host, "@") && strings.Contains(host, ".")
}
