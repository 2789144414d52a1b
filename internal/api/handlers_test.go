package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/engage/internal/auth"
	"github.com/ignite/engage/internal/config"
	"github.com/ignite/engage/internal/domain"
	"github.com/ignite/engage/internal/repository/memory"
	"github.com/ignite/engage/internal/service/analytics"
	"github.com/ignite/engage/internal/service/campaign"
	"github.com/ignite/engage/internal/service/dispatch"
	"github.com/ignite/engage/internal/service/reconcile"
	"github.com/ignite/engage/internal/service/sending"
	"github.com/ignite/engage/internal/service/subscriber"
	"github.com/ignite/engage/internal/service/template"
	"github.com/ignite/engage/internal/worker"
)

const testOwner = "owner-1"

type countingTransport struct {
	mu sync.Mutex
	n  int
}

func (t *countingTransport) Send(_ context.Context, msg *sending.Message) (*sending.Receipt, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.n++
	return &sending.Receipt{MessageID: fmt.Sprintf("ses-%d", t.n)}, nil
}

type stubQueue struct {
	err       error
	submitted []string
}

func (q *stubQueue) Submit(_, campaignID string) error {
	if q.err != nil {
		return q.err
	}
	q.submitted = append(q.submitted, campaignID)
	return nil
}

type testEnv struct {
	router      http.Handler
	subscribers *memory.SubscriberRepo
	events      *memory.EventRepo
	transport   *countingTransport
	queue       *stubQueue
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		subscribers: memory.NewSubscriberRepo(),
		events:      memory.NewEventRepo(),
		transport:   &countingTransport{},
		queue:       &stubQueue{},
	}
	activity := memory.NewActivityRepo()
	templates := template.NewService(memory.NewTemplateRepo(), activity)
	campaigns := campaign.NewService(memory.NewCampaignRepo(), activity)
	campaigns.SetTemplates(templates)
	subs := subscriber.NewService(env.subscribers, activity)
	d := dispatch.New(campaigns, env.subscribers, env.events, activity, env.transport, dispatch.Config{From: "news@engage.test"})
	rec := reconcile.New(env.subscribers, env.events, reconcile.NewMemoryDeduper(time.Hour))

	verifier, err := auth.NewVerifier(config.AuthConfig{DevMode: true, DevOwnerID: testOwner})
	require.NoError(t, err)

	h := NewHandlers(campaigns, subs, templates, d, env.queue, analytics.NewService(env.events, activity), rec)
	env.router = SetupRoutes(h, NewHealthChecker(nil, nil, nil), verifier, []string{"*"})
	return env
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func (e *testEnv) createCampaign(t *testing.T) domain.Campaign {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/api/campaigns", map[string]string{
		"name": "Spring", "subject": "Hi {{ subscriber.name }}", "content": "<p>Hello {{ subscriber.name }}</p>",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[domain.Campaign](t, rec)
}

func (e *testEnv) addSubscriber(t *testing.T, email string) domain.Subscriber {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/api/subscribers", map[string]string{"email": email, "name": "Ann"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[domain.Subscriber](t, rec)
}

func TestCampaignCRUD(t *testing.T) {
	env := newTestEnv(t)
	c := env.createCampaign(t)
	assert.Equal(t, domain.CampaignDraft, c.Status)

	rec := env.do(t, http.MethodGet, "/api/campaigns/"+c.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodPut, "/api/campaigns/"+c.ID, map[string]string{"name": "Summer"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Summer", decode[domain.Campaign](t, rec).Name)

	rec = env.do(t, http.MethodGet, "/api/campaigns?limit=10", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[struct {
		Data       []domain.Campaign `json:"data"`
		Pagination PageMeta          `json:"pagination"`
	}](t, rec)
	assert.Len(t, list.Data, 1)
	assert.Equal(t, 1, list.Pagination.Total)
	assert.Equal(t, 10, list.Pagination.Limit)

	rec = env.do(t, http.MethodDelete, "/api/campaigns/"+c.ID, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/campaigns/"+c.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateCampaignValidation(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/campaigns", map[string]string{"subject": "s", "content": "c"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	body := decode[map[string]any](t, rec)
	assert.Equal(t, codeValidation, body["code"])
	assert.Equal(t, "name", body["details"].(map[string]any)["field"])

	req := httptest.NewRequest(http.MethodPost, "/api/campaigns", bytes.NewBufferString("{"))
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestEmptyListIsArray(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/api/campaigns", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"data":[]`)
}

func TestSendCampaignSync(t *testing.T) {
	env := newTestEnv(t)
	env.addSubscriber(t, "a@x.com")
	env.addSubscriber(t, "b@x.com")
	c := env.createCampaign(t)

	rec := env.do(t, http.MethodPost, "/api/campaigns/"+c.ID+"/send", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	res := decode[struct {
		Campaign       domain.Campaign `json:"campaign"`
		RecipientCount int             `json:"recipient_count"`
		Sent           int             `json:"sent"`
	}](t, rec)
	assert.Equal(t, domain.CampaignSent, res.Campaign.Status)
	assert.Equal(t, 2, res.RecipientCount)
	assert.Equal(t, 2, res.Sent)
	assert.Equal(t, 2, env.transport.n)

	t.Run("second send is rejected", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/api/campaigns/"+c.ID+"/send", nil)
		require.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, codeInvalidState, decode[map[string]any](t, rec)["code"])
	})

	t.Run("content is locked", func(t *testing.T) {
		rec := env.do(t, http.MethodPut, "/api/campaigns/"+c.ID, map[string]string{"content": "<p>new</p>"})
		require.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, codeImmutable, decode[map[string]any](t, rec)["code"])
	})

	t.Run("sent campaign cannot be deleted", func(t *testing.T) {
		rec := env.do(t, http.MethodDelete, "/api/campaigns/"+c.ID, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestSendCampaignZeroRecipients(t *testing.T) {
	env := newTestEnv(t)
	c := env.createCampaign(t)

	rec := env.do(t, http.MethodPost, "/api/campaigns/"+c.ID+"/send", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[map[string]any](t, rec)
	assert.Equal(t, true, body["zero_recipients"])
	assert.Equal(t, domain.ErrZeroRecipients.Error(), body["message"])
}

func TestSendCampaignAsync(t *testing.T) {
	env := newTestEnv(t)
	c := env.createCampaign(t)

	rec := env.do(t, http.MethodPost, "/api/campaigns/"+c.ID+"/send?async=true", nil)
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, []string{c.ID}, env.queue.submitted)

	env.queue.err = worker.ErrQueueFull
	rec = env.do(t, http.MethodPost, "/api/campaigns/"+c.ID+"/send?async=true", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestSendCampaignAsyncChecksCampaign(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/campaigns/missing/send?async=true", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	env.addSubscriber(t, "ann@x.com")
	c := env.createCampaign(t)
	rec = env.do(t, http.MethodPost, "/api/campaigns/"+c.ID+"/send", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = env.do(t, http.MethodPost, "/api/campaigns/"+c.ID+"/send?async=true", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), codeInvalidState)
	assert.Empty(t, env.queue.submitted)
}

func TestPreviewCampaign(t *testing.T) {
	env := newTestEnv(t)
	c := env.createCampaign(t)
	s := env.addSubscriber(t, "ann@x.com")

	rec := env.do(t, http.MethodPost, "/api/campaigns/"+c.ID+"/preview", map[string]string{"subscriber_id": s.ID})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	p := decode[campaign.Preview](t, rec)
	assert.Equal(t, "Hi Ann", p.Subject)
	assert.Equal(t, "<p>Hello Ann</p>", p.HTML)

	rec = env.do(t, http.MethodPost, "/api/campaigns/"+c.ID+"/preview", map[string]string{"subscriber_id": "missing"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTemplateEndpoints(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/templates", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"templates":[]}`, rec.Body.String())

	rec = env.do(t, http.MethodPost, "/api/templates", map[string]string{"name": "Welcome"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/templates", map[string]string{"name": "Welcome", "content": "<p>Hi</p>"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	tpl := decode[domain.Template](t, rec)

	rec = env.do(t, http.MethodGet, "/api/templates/"+tpl.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Welcome", decode[domain.Template](t, rec).Name)

	rec = env.do(t, http.MethodGet, "/api/templates/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/campaigns", map[string]any{
		"name": "N", "subject": "S", "content": "C", "template_id": "missing",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/campaigns", map[string]any{
		"name": "N", "subject": "S", "content": "C", "template_id": tpl.ID,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, tpl.ID, *decode[domain.Campaign](t, rec).TemplateID)
}

func TestSubscriberEndpoints(t *testing.T) {
	env := newTestEnv(t)
	s := env.addSubscriber(t, "Ann@X.com")
	assert.Equal(t, "ann@x.com", s.Email)

	rec := env.do(t, http.MethodPost, "/api/subscribers", map[string]string{"email": "ann@x.com"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/subscribers", map[string]string{"email": "nope"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/subscribers/"+s.ID, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/subscribers?search=ann", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[struct {
		Data []domain.Subscriber `json:"data"`
	}](t, rec)
	assert.Len(t, list.Data, 1)
}

func TestSendEmail(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/email/send", map[string]any{
		"to": []string{"a@x.com", "b@x.com"}, "subject": "Hi", "html": "<p>x</p>",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	res := decode[dispatch.AdHocResult](t, rec)
	assert.Equal(t, 2, res.Sent)
	assert.Len(t, env.events.All(), 2)

	rec = env.do(t, http.MethodPost, "/api/email/send", map[string]any{"subject": "Hi", "html": "<p>x</p>"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAnalyticsEndpoints(t *testing.T) {
	env := newTestEnv(t)
	env.addSubscriber(t, "a@x.com")
	c := env.createCampaign(t)
	require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/api/campaigns/"+c.ID+"/send", nil).Code)

	rec := env.do(t, http.MethodGet, "/api/analytics/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, decode[analytics.Stats](t, rec).Sent)

	rec = env.do(t, http.MethodGet, "/api/analytics/events?campaignId="+c.ID+"&eventType=sent&startDate=2020-01-01", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, decode[map[string]any](t, rec)["count"])

	rec = env.do(t, http.MethodGet, "/api/analytics/events?startDate=yesterday", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/analytics/events?eventType=exploded", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/activity?limit=5", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, decode[map[string][]domain.ActivityLog](t, rec)["activity"])
}

const bounceNotification = `{
  "Type": "Notification",
  "MessageId": "sns-1",
  "TopicArn": "arn:aws:sns:us-east-1:1:ses",
  "Message": "{\"notificationType\":\"Bounce\",\"bounce\":{\"bounceType\":\"Permanent\",\"bouncedRecipients\":[{\"emailAddress\":\"a@x.com\"}]},\"mail\":{\"messageId\":\"ses-9\",\"destination\":[\"a@x.com\"],\"tags\":{\"owner_id\":[\"owner-1\"]}}}"
}`

func TestSESWebhook(t *testing.T) {
	env := newTestEnv(t)
	s := env.addSubscriber(t, "a@x.com")

	req := httptest.NewRequest(http.MethodPost, "/webhooks/ses/notification", bytes.NewBufferString(bounceNotification))
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 1, decode[reconcile.Report](t, rec).SubscribersUpdated)

	got, err := env.subscribers.Get(context.Background(), testOwner, s.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SubscriberBounced, got.Status)

	// Redelivery is acknowledged without a second event.
	rec = httptest.NewRecorder()
	env.router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/webhooks/ses/notification", bytes.NewBufferString(bounceNotification)))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, env.events.All(), 1)

	rec = httptest.NewRecorder()
	env.router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/webhooks/ses/notification", bytes.NewBufferString("not json")))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

type failingApplier struct{}

func (failingApplier) Apply(context.Context, *reconcile.Notification) (*reconcile.Report, error) {
	return nil, domain.Upstream("append event", errors.New("connection refused"))
}

func TestSESWebhookApplyFailureIsRetryable(t *testing.T) {
	h := NewHandlers(nil, nil, nil, nil, nil, nil, failingApplier{})
	req := httptest.NewRequest(http.MethodPost, "/webhooks/ses/notification", bytes.NewBufferString(bounceNotification))
	rec := httptest.NewRecorder()
	h.HandleSESNotification(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.NotContains(t, rec.Body.String(), "connection refused")
}

func TestAuthRequiredOutsideDevMode(t *testing.T) {
	verifier, err := auth.NewVerifier(config.AuthConfig{JWTSecret: "s3cret"})
	require.NoError(t, err)
	activity := memory.NewActivityRepo()
	h := NewHandlers(campaign.NewService(memory.NewCampaignRepo(), activity), nil, nil, nil, nil, nil, nil)
	router := SetupRoutes(h, nil, verifier, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/campaigns", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "owner-9",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString([]byte("s3cret"))
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/campaigns", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestUnknownRoute(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
