package campaign

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/osteele/liquid"

	"github.com/ignite/engage/internal/domain"
	"github.com/ignite/engage/internal/pkg/logger"
)

var log = logger.With("campaign")

// Service implements the campaign state machine on top of a Repository.
// All public methods are safe for concurrent use if the underlying
// repository is concurrency-safe.
type Service struct {
	repo      Repository
	activity  ActivityRecorder
	templates TemplateLookup
	engine    *liquid.Engine
	now       func() time.Time
}

// NewService creates a campaign service backed by the given repository.
// activity may be nil, in which case nothing is recorded.
func NewService(repo Repository, activity ActivityRecorder) *Service {
	return &Service{
		repo:     repo,
		activity: activity,
		engine:   liquid.NewEngine(),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides the time source. Intended for tests.
func (s *Service) SetClock(now func() time.Time) { s.now = now }

// SetTemplates makes Create and Update reject template ids the owner does
// not have. Without it template_id is stored unchecked.
func (s *Service) SetTemplates(t TemplateLookup) { s.templates = t }

// Get returns a single campaign.
func (s *Service) Get(ctx context.Context, ownerID, id string) (*domain.Campaign, error) {
	c, err := s.repo.Get(ctx, ownerID, id)
	return c, domain.Upstream("get campaign", err)
}

// List returns campaigns matching the filter.
func (s *Service) List(ctx context.Context, ownerID string, f ListFilter) ([]domain.Campaign, int, error) {
	if f.Status != "" && !domain.CampaignStatus(f.Status).Valid() {
		return nil, 0, &domain.ValidationError{Field: "status", Message: "unknown campaign status"}
	}
	items, total, err := s.repo.List(ctx, ownerID, f)
	return items, total, domain.Upstream("list campaigns", err)
}

// CreateInput holds the fields for creating a new campaign.
type CreateInput struct {
	Name       string     `json:"name"`
	Subject    string     `json:"subject"`
	Content    string     `json:"content"`
	SendAt     *time.Time `json:"send_at"`
	TemplateID *string    `json:"template_id"`
}

// Create validates and persists a new campaign in draft status.
func (s *Service) Create(ctx context.Context, ownerID string, input CreateInput) (*domain.Campaign, error) {
	if strings.TrimSpace(input.Name) == "" {
		return nil, domain.Required("name")
	}
	if strings.TrimSpace(input.Subject) == "" {
		return nil, domain.Required("subject")
	}
	if strings.TrimSpace(input.Content) == "" {
		return nil, domain.Required("content")
	}
	if err := s.checkTemplate(ctx, ownerID, input.TemplateID); err != nil {
		return nil, err
	}

	now := s.now()
	c := &domain.Campaign{
		ID:         uuid.New().String(),
		OwnerID:    ownerID,
		TemplateID: input.TemplateID,
		Name:       input.Name,
		Subject:    input.Subject,
		Content:    input.Content,
		Status:     domain.CampaignDraft,
		SendAt:     input.SendAt,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.repo.Create(ctx, c); err != nil {
		return nil, domain.Upstream("create campaign", err)
	}

	s.record(ctx, ownerID, domain.ActionCreateCampaign, c.ID, map[string]any{"name": c.Name})
	return c, nil
}

// Update modifies mutable campaign fields. Content is immutable once the
// campaign is sending or sent. The other fields stay editable in every state.
func (s *Service) Update(ctx context.Context, ownerID, id string, p Patch) (*domain.Campaign, error) {
	if p.Name != nil && strings.TrimSpace(*p.Name) == "" {
		return nil, domain.Required("name")
	}
	if p.Subject != nil && strings.TrimSpace(*p.Subject) == "" {
		return nil, domain.Required("subject")
	}
	if p.Content != nil && strings.TrimSpace(*p.Content) == "" {
		return nil, domain.Required("content")
	}
	if err := s.checkTemplate(ctx, ownerID, p.TemplateID); err != nil {
		return nil, err
	}

	c, err := s.repo.Update(ctx, ownerID, id, p, s.now())
	if err != nil {
		return nil, domain.Upstream("update campaign", err)
	}

	s.record(ctx, ownerID, domain.ActionUpdateCampaign, id, map[string]any{"fields": p.fields()})
	return c, nil
}

// Delete removes a campaign that is draft or failed.
func (s *Service) Delete(ctx context.Context, ownerID, id string) error {
	if err := s.repo.Delete(ctx, ownerID, id); err != nil {
		return domain.Upstream("delete campaign", err)
	}
	s.record(ctx, ownerID, domain.ActionDeleteCampaign, id, nil)
	return nil
}

// BeginSend atomically moves a draft campaign to sending. Of any number of
// concurrent callers for the same campaign, exactly one succeeds; the rest
// get an InvalidStateError.
func (s *Service) BeginSend(ctx context.Context, ownerID, id string) (*domain.Campaign, error) {
	c, err := s.repo.TransitionStatus(ctx, ownerID, id,
		[]domain.CampaignStatus{domain.CampaignDraft}, domain.CampaignSending, s.now())
	if err != nil {
		return nil, domain.Upstream("begin send", err)
	}
	log.Info("campaign sending", "campaign_id", id, "owner_id", ownerID)
	return c, nil
}

// SetRecipientCount records how many subscribers the send targets. The
// count is written once; later calls are ignored.
func (s *Service) SetRecipientCount(ctx context.Context, ownerID, id string, n int) error {
	if n < 0 {
		return &domain.ValidationError{Field: "recipient_count", Message: "must not be negative"}
	}
	return domain.Upstream("set recipient count", s.repo.SetRecipientCount(ctx, ownerID, id, n, s.now()))
}

// Finish moves a sending campaign to sent or failed. sentAt is stamped only
// on the first transition to sent.
func (s *Service) Finish(ctx context.Context, ownerID, id string, status domain.CampaignStatus) (*domain.Campaign, error) {
	if status != domain.CampaignSent && status != domain.CampaignFailed {
		return nil, &domain.ValidationError{Field: "status", Message: fmt.Sprintf("%q is not a terminal status", status)}
	}
	now := s.now()
	var sentAt *time.Time
	if status == domain.CampaignSent {
		sentAt = &now
	}
	c, err := s.repo.Finish(ctx, ownerID, id, status, sentAt, now)
	if err != nil {
		return nil, domain.Upstream("finish campaign", err)
	}
	log.Info("campaign finished", "campaign_id", id, "status", string(status))
	return c, nil
}

// PreviewInput supplies the per-recipient variables for a preview render.
type PreviewInput struct {
	Email    string         `json:"email"`
	Name     string         `json:"name"`
	Metadata map[string]any `json:"metadata"`
}

// Preview is a rendered subject and body.
type Preview struct {
	Subject string `json:"subject"`
	HTML    string `json:"html"`
}

// Preview renders the campaign's subject and content as Liquid templates
// against one recipient's variables. Dispatch always sends the stored text
// verbatim; Preview never changes the campaign.
func (s *Service) Preview(ctx context.Context, ownerID, id string, in PreviewInput) (*Preview, error) {
	c, err := s.repo.Get(ctx, ownerID, id)
	if err != nil {
		return nil, domain.Upstream("get campaign", err)
	}

	bindings := map[string]any{
		"subscriber": map[string]any{
			"email":    in.Email,
			"name":     in.Name,
			"metadata": in.Metadata,
		},
		"campaign": map[string]any{
			"id":   c.ID,
			"name": c.Name,
		},
	}

	subject, serr := s.engine.ParseAndRenderString(c.Subject, bindings)
	if serr != nil {
		return nil, &domain.ValidationError{Field: "subject", Message: serr.Error()}
	}
	html, herr := s.engine.ParseAndRenderString(c.Content, bindings)
	if herr != nil {
		return nil, &domain.ValidationError{Field: "content", Message: herr.Error()}
	}
	return &Preview{Subject: subject, HTML: html}, nil
}

func (s *Service) checkTemplate(ctx context.Context, ownerID string, id *string) error {
	if id == nil || s.templates == nil {
		return nil
	}
	_, err := s.templates.Get(ctx, ownerID, *id)
	if errors.Is(err, domain.ErrNotFound) {
		return &domain.ValidationError{Field: "template_id", Message: "unknown template"}
	}
	return domain.Upstream("get template", err)
}

func (s *Service) record(ctx context.Context, ownerID, action, entityID string, details map[string]any) {
	if s.activity == nil {
		return
	}
	id := entityID
	entry := &domain.ActivityLog{
		ID:         uuid.New().String(),
		UserID:     ownerID,
		Action:     action,
		EntityType: domain.EntityCampaign,
		EntityID:   &id,
		Details:    details,
		Timestamp:  s.now(),
	}
	if err := s.activity.Record(ctx, entry); err != nil {
		log.Warn("activity record failed", "action", action, "campaign_id", entityID, "error", err)
	}
}

func (p Patch) fields() []string {
	var out []string
	if p.Name != nil {
		out = append(out, "name")
	}
	if p.Subject != nil {
		out = append(out, "subject")
	}
	if p.Content != nil {
		out = append(out, "content")
	}
	if p.SendAt != nil {
		out = append(out, "send_at")
	}
	if p.TemplateID != nil {
		out = append(out, "template_id")
	}
	return out
}
