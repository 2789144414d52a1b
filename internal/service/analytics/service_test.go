package analytics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/engage/internal/domain"
)

type stubEvents struct {
	counts  map[domain.EventType]int
	filter  domain.EventFilter
	results []domain.Event
	err     error
}

func (s *stubEvents) Append(context.Context, *domain.Event) (bool, error) { return true, nil }

func (s *stubEvents) FindByMessageID(context.Context, string, domain.EventType) (*domain.Event, error) {
	return nil, ErrEventNotFound
}

func (s *stubEvents) Search(_ context.Context, _ string, f domain.EventFilter) ([]domain.Event, error) {
	s.filter = f
	return s.results, s.err
}

func (s *stubEvents) CountByType(context.Context, string) (map[domain.EventType]int, error) {
	return s.counts, s.err
}

type stubActivity struct {
	limit int
	err   error
}

func (s *stubActivity) Record(context.Context, *domain.ActivityLog) error { return nil }

func (s *stubActivity) List(_ context.Context, _ string, limit int) ([]domain.ActivityLog, error) {
	s.limit = limit
	return nil, s.err
}

func TestStatsRates(t *testing.T) {
	events := &stubEvents{counts: map[domain.EventType]int{
		domain.EventSent:       10,
		domain.EventDelivered:  8,
		domain.EventBounced:    2,
		domain.EventComplained: 1,
	}}
	svc := NewService(events, &stubActivity{})

	st, err := svc.Stats(context.Background(), "o1")
	require.NoError(t, err)
	assert.Equal(t, 10, st.Sent)
	assert.InDelta(t, 0.8, st.DeliveryRate, 1e-9)
	assert.InDelta(t, 0.2, st.BounceRate, 1e-9)
	assert.InDelta(t, 0.1, st.ComplaintRate, 1e-9)
}

func TestStatsNoSends(t *testing.T) {
	svc := NewService(&stubEvents{counts: map[domain.EventType]int{domain.EventFailed: 3}}, &stubActivity{})

	st, err := svc.Stats(context.Background(), "o1")
	require.NoError(t, err)
	assert.Equal(t, 3, st.Failed)
	assert.Zero(t, st.DeliveryRate)
}

func TestEventsLimits(t *testing.T) {
	tests := []struct {
		name  string
		limit int
		want  int
	}{
		{"default", 0, DefaultEventLimit},
		{"within range", 25, 25},
		{"capped", 10000, MaxEventLimit},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			events := &stubEvents{}
			_, err := NewService(events, &stubActivity{}).Events(context.Background(), "o1", EventQuery{Limit: tt.limit})
			require.NoError(t, err)
			assert.Equal(t, tt.want, events.filter.Limit)
		})
	}
}

func TestEventsValidation(t *testing.T) {
	svc := NewService(&stubEvents{}, &stubActivity{})

	_, err := svc.Events(context.Background(), "o1", EventQuery{EventType: "exploded"})
	assert.ErrorIs(t, err, domain.ErrValidation)

	start := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	end := start.Add(-time.Hour)
	_, err = svc.Events(context.Background(), "o1", EventQuery{Start: &start, End: &end})
	var verr *domain.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "endDate", verr.Field)
}

func TestEventsPassesFilter(t *testing.T) {
	events := &stubEvents{}
	_, err := NewService(events, &stubActivity{}).Events(context.Background(), "o1", EventQuery{
		CampaignID: "c1", EventType: "bounced",
	})
	require.NoError(t, err)
	assert.Equal(t, "c1", events.filter.CampaignID)
	assert.Equal(t, domain.EventBounced, events.filter.Event)
}

func TestStoreFailureIsUpstream(t *testing.T) {
	boom := errors.New("connection reset")
	svc := NewService(&stubEvents{err: boom}, &stubActivity{err: boom})

	_, err := svc.Stats(context.Background(), "o1")
	assert.ErrorIs(t, err, domain.ErrUpstreamUnavailable)

	_, err = svc.Events(context.Background(), "o1", EventQuery{})
	assert.ErrorIs(t, err, domain.ErrUpstreamUnavailable)

	_, err = svc.Activity(context.Background(), "o1", 5)
	assert.ErrorIs(t, err, domain.ErrUpstreamUnavailable)
}

func TestActivityLimit(t *testing.T) {
	activity := &stubActivity{}
	svc := NewService(&stubEvents{}, activity)

	_, err := svc.Activity(context.Background(), "o1", 0)
	require.NoError(t, err)
	assert.Equal(t, DefaultActivityLimit, activity.limit)

	_, err = svc.Activity(context.Background(), "o1", 1000)
	require.NoError(t, err)
	assert.Equal(t, MaxActivityLimit, activity.limit)
}
