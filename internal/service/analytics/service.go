package analytics

import (
	"context"
	"time"

	"github.com/ignite/engage/internal/domain"
)

// Limits for event and activity queries.
const (
	DefaultEventLimit    = 100
	MaxEventLimit        = 500
	DefaultActivityLimit = 10
	MaxActivityLimit     = 100
)

// Service answers reporting queries over the event log and activity trail.
type Service struct {
	events   EventRepository
	activity ActivityRepository
}

// NewService creates an analytics service.
func NewService(events EventRepository, activity ActivityRepository) *Service {
	return &Service{events: events, activity: activity}
}

// Stats holds per-type event totals and derived rates for one owner.
type Stats struct {
	Sent       int `json:"sent"`
	Delivered  int `json:"delivered"`
	Opened     int `json:"opened"`
	Clicked    int `json:"clicked"`
	Bounced    int `json:"bounced"`
	Complained int `json:"complained"`
	Failed     int `json:"failed"`

	DeliveryRate  float64 `json:"delivery_rate"`
	BounceRate    float64 `json:"bounce_rate"`
	ComplaintRate float64 `json:"complaint_rate"`
}

// Stats counts the owner's events by type.
func (s *Service) Stats(ctx context.Context, ownerID string) (*Stats, error) {
	counts, err := s.events.CountByType(ctx, ownerID)
	if err != nil {
		return nil, domain.Upstream("count events", err)
	}

	st := &Stats{
		Sent:       counts[domain.EventSent],
		Delivered:  counts[domain.EventDelivered],
		Opened:     counts[domain.EventOpened],
		Clicked:    counts[domain.EventClicked],
		Bounced:    counts[domain.EventBounced],
		Complained: counts[domain.EventComplained],
		Failed:     counts[domain.EventFailed],
	}
	if st.Sent > 0 {
		st.DeliveryRate = ratio(st.Delivered, st.Sent)
		st.BounceRate = ratio(st.Bounced, st.Sent)
		st.ComplaintRate = ratio(st.Complained, st.Sent)
	}
	return st, nil
}

// EventQuery is the caller-facing event search.
type EventQuery struct {
	CampaignID string
	EventType  string
	Start      *time.Time
	End        *time.Time
	Limit      int
}

// Events returns the owner's events newest first. Limit defaults to 100 and
// is capped at 500.
func (s *Service) Events(ctx context.Context, ownerID string, q EventQuery) ([]domain.Event, error) {
	f := domain.EventFilter{
		CampaignID: q.CampaignID,
		Start:      q.Start,
		End:        q.End,
		Limit:      clamp(q.Limit, DefaultEventLimit, MaxEventLimit),
	}
	if q.EventType != "" {
		et := domain.EventType(q.EventType)
		if !knownEvent(et) {
			return nil, &domain.ValidationError{Field: "eventType", Message: "unknown event type"}
		}
		f.Event = et
	}
	if f.Start != nil && f.End != nil && f.End.Before(*f.Start) {
		return nil, &domain.ValidationError{Field: "endDate", Message: "must not be before startDate"}
	}

	events, err := s.events.Search(ctx, ownerID, f)
	if err != nil {
		return nil, domain.Upstream("search events", err)
	}
	return events, nil
}

// Activity returns the user's most recent audit entries, newest first.
func (s *Service) Activity(ctx context.Context, userID string, limit int) ([]domain.ActivityLog, error) {
	items, err := s.activity.List(ctx, userID, clamp(limit, DefaultActivityLimit, MaxActivityLimit))
	if err != nil {
		return nil, domain.Upstream("list activity", err)
	}
	return items, nil
}

func clamp(n, def, ceiling int) int {
	if n <= 0 {
		return def
	}
	if n > ceiling {
		return ceiling
	}
	return n
}

func ratio(n, d int) float64 {
	return float64(n) / float64(d)
}

func knownEvent(et domain.EventType) bool {
	for _, t := range domain.AllEventTypes {
		if t == et {
			return true
		}
	}
	return false
}
