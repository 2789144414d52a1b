package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ignite/engage/internal/domain"
	"github.com/ignite/engage/internal/service/campaign"
)

// CampaignRepo implements campaign.Repository.
type CampaignRepo struct {
	mu        sync.Mutex
	campaigns map[string]*domain.Campaign
}

// NewCampaignRepo creates an empty campaign store.
func NewCampaignRepo() *CampaignRepo {
	return &CampaignRepo{campaigns: make(map[string]*domain.Campaign)}
}

func (r *CampaignRepo) lookup(ownerID, id string) (*domain.Campaign, error) {
	c, ok := r.campaigns[id]
	if !ok || c.OwnerID != ownerID {
		return nil, campaign.ErrNotFound
	}
	return c, nil
}

func (r *CampaignRepo) Get(_ context.Context, ownerID, id string) (*domain.Campaign, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, err := r.lookup(ownerID, id)
	if err != nil {
		return nil, err
	}
	return cloneCampaign(c), nil
}

func (r *CampaignRepo) List(_ context.Context, ownerID string, f campaign.ListFilter) ([]domain.Campaign, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Campaign
	for _, c := range r.campaigns {
		if c.OwnerID != ownerID {
			continue
		}
		if f.Status != "" && string(c.Status) != f.Status {
			continue
		}
		out = append(out, *cloneCampaign(c))
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	total := len(out)
	return page(out, f.Offset, f.Limit), total, nil
}

func (r *CampaignRepo) Create(_ context.Context, c *domain.Campaign) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.campaigns[c.ID] = cloneCampaign(c)
	return nil
}

func (r *CampaignRepo) Update(_ context.Context, ownerID, id string, p campaign.Patch, now time.Time) (*domain.Campaign, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, err := r.lookup(ownerID, id)
	if err != nil {
		return nil, err
	}
	if p.Content != nil && c.ContentLocked() {
		return nil, campaign.ContentLocked(c.Status)
	}
	if p.Name != nil {
		c.Name = *p.Name
	}
	if p.Subject != nil {
		c.Subject = *p.Subject
	}
	if p.Content != nil {
		c.Content = *p.Content
	}
	if p.SendAt != nil {
		t := *p.SendAt
		c.SendAt = &t
	}
	if p.TemplateID != nil {
		s := *p.TemplateID
		c.TemplateID = &s
	}
	c.UpdatedAt = now
	return cloneCampaign(c), nil
}

func (r *CampaignRepo) Delete(_ context.Context, ownerID, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, err := r.lookup(ownerID, id)
	if err != nil {
		return err
	}
	if c.ContentLocked() {
		return campaign.InvalidState(campaign.OpDelete, c.Status)
	}
	delete(r.campaigns, id)
	return nil
}

func (r *CampaignRepo) TransitionStatus(_ context.Context, ownerID, id string, from []domain.CampaignStatus, to domain.CampaignStatus, now time.Time) (*domain.Campaign, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, err := r.lookup(ownerID, id)
	if err != nil {
		return nil, err
	}
	if !statusIn(c.Status, from) {
		return nil, campaign.InvalidState(campaign.TransitionOp(to), c.Status)
	}
	c.Status = to
	c.UpdatedAt = now
	return cloneCampaign(c), nil
}

func (r *CampaignRepo) SetRecipientCount(_ context.Context, ownerID, id string, n int, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, err := r.lookup(ownerID, id)
	if err != nil {
		return err
	}
	if c.RecipientCount == nil {
		c.RecipientCount = &n
		c.UpdatedAt = now
	}
	return nil
}

func (r *CampaignRepo) Finish(_ context.Context, ownerID, id string, status domain.CampaignStatus, sentAt *time.Time, now time.Time) (*domain.Campaign, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, err := r.lookup(ownerID, id)
	if err != nil {
		return nil, err
	}
	if c.Status != domain.CampaignSending {
		return nil, campaign.InvalidState(campaign.OpFinish, c.Status)
	}
	c.Status = status
	if sentAt != nil && c.SentAt == nil {
		t := *sentAt
		c.SentAt = &t
	}
	c.UpdatedAt = now
	return cloneCampaign(c), nil
}

func statusIn(s domain.CampaignStatus, set []domain.CampaignStatus) bool {
	for _, v := range set {
		if v == s {
			return true
		}
	}
	return false
}

func cloneCampaign(c *domain.Campaign) *domain.Campaign {
	cp := *c
	if c.TemplateID != nil {
		v := *c.TemplateID
		cp.TemplateID = &v
	}
	if c.SendAt != nil {
		v := *c.SendAt
		cp.SendAt = &v
	}
	if c.SentAt != nil {
		v := *c.SentAt
		cp.SentAt = &v
	}
	if c.RecipientCount != nil {
		v := *c.RecipientCount
		cp.RecipientCount = &v
	}
	return &cp
}

func page[T any](items []T, offset, limit int) []T {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return nil
	}
	end := len(items)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return items[offset:end]
}
