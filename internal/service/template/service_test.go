package template

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/engage/internal/domain"
)

type mockRepo struct {
	mu    sync.Mutex
	store map[string]domain.Template
	err   error
}

func newMockRepo() *mockRepo {
	return &mockRepo{store: make(map[string]domain.Template)}
}

func (m *mockRepo) Create(_ context.Context, t *domain.Template) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.store[t.ID] = *t
	return nil
}

func (m *mockRepo) Get(_ context.Context, ownerID, id string) (*domain.Template, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	t, ok := m.store[id]
	if !ok || t.OwnerID != ownerID {
		return nil, ErrNotFound
	}
	return &t, nil
}

func (m *mockRepo) List(_ context.Context, ownerID string) ([]domain.Template, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	var out []domain.Template
	for _, t := range m.store {
		if t.OwnerID == ownerID {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

type recorder struct {
	entries []*domain.ActivityLog
}

func (r *recorder) Record(_ context.Context, a *domain.ActivityLog) error {
	r.entries = append(r.entries, a)
	return nil
}

func TestCreate(t *testing.T) {
	rec := &recorder{}
	svc := NewService(newMockRepo(), rec)

	tpl, err := svc.Create(context.Background(), "owner-1", CreateInput{Name: " Welcome ", Content: "<p>Hi</p>"})
	require.NoError(t, err)
	assert.Equal(t, "Welcome", tpl.Name)
	assert.Equal(t, "owner-1", tpl.OwnerID)
	assert.NotEmpty(t, tpl.ID)

	require.Len(t, rec.entries, 1)
	assert.Equal(t, domain.ActionCreateTemplate, rec.entries[0].Action)
	assert.Equal(t, domain.EntityTemplate, rec.entries[0].EntityType)
	assert.Equal(t, tpl.ID, *rec.entries[0].EntityID)
}

func TestCreate_Validation(t *testing.T) {
	svc := NewService(newMockRepo(), nil)
	for name, in := range map[string]CreateInput{
		"no name":    {Content: "<p>Hi</p>"},
		"no content": {Name: "Welcome", Content: "  "},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := svc.Create(context.Background(), "owner-1", in)
			assert.ErrorIs(t, err, domain.ErrValidation)
		})
	}
}

func TestGet_OwnerScoped(t *testing.T) {
	svc := NewService(newMockRepo(), nil)
	ctx := context.Background()

	tpl, err := svc.Create(ctx, "owner-1", CreateInput{Name: "A", Content: "a"})
	require.NoError(t, err)

	_, err = svc.Get(ctx, "owner-2", tpl.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	got, err := svc.Get(ctx, "owner-1", tpl.ID)
	require.NoError(t, err)
	assert.Equal(t, "A", got.Name)
}

func TestList_NewestFirst(t *testing.T) {
	svc := NewService(newMockRepo(), nil)
	base := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	tick := base
	svc.now = func() time.Time { tick = tick.Add(time.Minute); return tick }
	ctx := context.Background()

	for _, name := range []string{"first", "second"} {
		_, err := svc.Create(ctx, "owner-1", CreateInput{Name: name, Content: "x"})
		require.NoError(t, err)
	}
	_, err := svc.Create(ctx, "owner-2", CreateInput{Name: "other", Content: "x"})
	require.NoError(t, err)

	items, err := svc.List(ctx, "owner-1")
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "second", items[0].Name)
}

func TestStoreFailureIsUpstream(t *testing.T) {
	repo := newMockRepo()
	repo.err = errors.New("connection reset")
	svc := NewService(repo, nil)

	_, err := svc.List(context.Background(), "owner-1")
	assert.ErrorIs(t, err, domain.ErrUpstreamUnavailable)
	_, err = svc.Create(context.Background(), "owner-1", CreateInput{Name: "A", Content: "a"})
	assert.ErrorIs(t, err, domain.ErrUpstreamUnavailable)
}
