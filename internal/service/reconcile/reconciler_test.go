package reconcile

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/engage/internal/domain"
	"github.com/ignite/engage/internal/pkg/httpretry"
	"github.com/ignite/engage/internal/repository/memory"
)

const owner = "owner-1"

type fixture struct {
	subs   *memory.SubscriberRepo
	events *memory.EventRepo
	rec    *Reconciler
}

func newFixture(t *testing.T, dedup Deduper) *fixture {
	t.Helper()
	f := &fixture{subs: memory.NewSubscriberRepo(), events: memory.NewEventRepo()}
	f.rec = New(f.subs, f.events, dedup)
	return f
}

func (f *fixture) subscriber(t *testing.T, email string, status domain.SubscriberStatus) {
	t.Helper()
	require.NoError(t, f.subs.Create(context.Background(), &domain.Subscriber{
		ID: "sub-" + email, OwnerID: owner, Email: email, Status: status,
	}))
}

// sent records what the dispatcher would have written for a delivered send.
func (f *fixture) sent(t *testing.T, messageID, campaignID, email string) {
	t.Helper()
	_, err := f.events.Append(context.Background(), &domain.Event{
		ID: "ev-" + messageID, OwnerID: owner, CampaignID: &campaignID, MessageID: &messageID,
		Event: domain.EventSent, Recipient: email, Timestamp: time.Now(),
	})
	require.NoError(t, err)
}

func (f *fixture) status(t *testing.T, email string) domain.SubscriberStatus {
	t.Helper()
	s, err := f.subs.FindByEmail(context.Background(), owner, email)
	require.NoError(t, err)
	return s.Status
}

func (f *fixture) eventsOf(et domain.EventType) []domain.Event {
	var out []domain.Event
	for _, e := range f.events.All() {
		if e.Event == et {
			out = append(out, e)
		}
	}
	return out
}

func parse(t *testing.T, inner string) *Notification {
	t.Helper()
	n, err := Parse(wrap(t, inner))
	require.NoError(t, err)
	return n
}

func TestApply_BounceAfterSend(t *testing.T) {
	f := newFixture(t, nil)
	f.subscriber(t, "a@x.com", domain.SubscriberActive)
	f.subscriber(t, "c@x.com", domain.SubscriberActive)
	f.sent(t, "ses-1", "camp-1", "a@x.com")
	f.sent(t, "ses-2", "camp-1", "c@x.com")

	rep, err := f.rec.Apply(context.Background(), parse(t, bounceC))
	require.NoError(t, err)

	assert.Equal(t, 1, rep.Applied)
	assert.Equal(t, 1, rep.SubscribersUpdated)
	assert.Equal(t, domain.SubscriberBounced, f.status(t, "c@x.com"))
	assert.Equal(t, domain.SubscriberActive, f.status(t, "a@x.com"))

	bounced := f.eventsOf(domain.EventBounced)
	require.Len(t, bounced, 1)
	ev := bounced[0]
	assert.Equal(t, "c@x.com", ev.Recipient)
	assert.Equal(t, owner, ev.OwnerID)
	assert.Equal(t, "camp-1", *ev.CampaignID)
	assert.Equal(t, "sub-c@x.com", *ev.SubscriberID)
	assert.Equal(t, "Permanent", ev.Metadata["bounceType"])
	assert.Equal(t, "General", ev.Metadata["bounceSubType"])
	assert.Equal(t, "smtp; 550 5.1.1 user unknown", ev.Metadata["diagnosticCode"])
}

func TestApply_BounceUnknownEmailIsNoop(t *testing.T) {
	f := newFixture(t, nil)
	f.subscriber(t, "a@x.com", domain.SubscriberActive)
	f.sent(t, "ses-2", "camp-1", "c@x.com")

	rep, err := f.rec.Apply(context.Background(), parse(t, bounceC))
	require.NoError(t, err)

	assert.Equal(t, 1, rep.UnknownRecipients)
	assert.Zero(t, rep.SubscribersUpdated)
	assert.Equal(t, domain.SubscriberActive, f.status(t, "a@x.com"))
}

func TestApply_Idempotent(t *testing.T) {
	for name, dedup := range map[string]Deduper{
		"store key only": nil,
		"memory deduper": NewMemoryDeduper(time.Hour),
	} {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t, dedup)
			f.subscriber(t, "c@x.com", domain.SubscriberActive)
			f.sent(t, "ses-2", "camp-1", "c@x.com")
			n := parse(t, bounceC)

			_, err := f.rec.Apply(context.Background(), n)
			require.NoError(t, err)
			rep, err := f.rec.Apply(context.Background(), n)
			require.NoError(t, err)

			assert.Equal(t, 1, rep.Duplicates)
			assert.Zero(t, rep.Applied)
			assert.Zero(t, rep.SubscribersUpdated)
			assert.Equal(t, domain.SubscriberBounced, f.status(t, "c@x.com"))
			assert.Len(t, f.eventsOf(domain.EventBounced), 1)
		})
	}
}

func TestApply_ComplaintUnsubscribes(t *testing.T) {
	f := newFixture(t, nil)
	f.subscriber(t, "a@x.com", domain.SubscriberActive)

	n := parse(t, `{
	  "eventType": "Complaint",
	  "complaint": {"complaintFeedbackType": "abuse", "complainedRecipients": [{"emailAddress": "A@x.com"}]},
	  "mail": {"messageId": "ses-5", "destination": ["a@x.com"], "tags": {"owner_id": ["owner-1"], "campaign_id": ["camp-7"]}}
	}`)
	rep, err := f.rec.Apply(context.Background(), n)
	require.NoError(t, err)

	assert.Equal(t, 1, rep.Applied)
	assert.Equal(t, domain.SubscriberUnsubscribed, f.status(t, "a@x.com"))
	ev := f.eventsOf(domain.EventComplained)
	require.Len(t, ev, 1)
	assert.Equal(t, "abuse", ev[0].Metadata["complaintFeedbackType"])
	assert.Equal(t, "camp-7", *ev[0].CampaignID)
}

func TestApply_DeliveryLeavesSubscriber(t *testing.T) {
	f := newFixture(t, nil)
	f.subscriber(t, "a@x.com", domain.SubscriberUnsubscribed)
	f.sent(t, "ses-3", "camp-1", "a@x.com")

	// No delivery.recipients: fall back to mail.destination.
	n := parse(t, `{"notificationType":"Delivery","delivery":{"processingTimeMillis":540,"smtpResponse":"250 2.0.0 OK"},"mail":{"messageId":"ses-3","destination":["a@x.com"]}}`)
	rep, err := f.rec.Apply(context.Background(), n)
	require.NoError(t, err)

	assert.Equal(t, 1, rep.Applied)
	assert.Equal(t, domain.SubscriberUnsubscribed, f.status(t, "a@x.com"))
	ev := f.eventsOf(domain.EventDelivered)
	require.Len(t, ev, 1)
	assert.Equal(t, int64(540), ev[0].Metadata["processingTimeMillis"])
	assert.Equal(t, "250 2.0.0 OK", ev[0].Metadata["smtpResponse"])
}

func TestApply_PerRecipientDiagnostic(t *testing.T) {
	f := newFixture(t, nil)
	f.subscriber(t, "a@x.com", domain.SubscriberActive)
	f.subscriber(t, "b@x.com", domain.SubscriberActive)

	n := parse(t, `{
	  "notificationType": "Bounce",
	  "bounce": {"bounceType": "Transient", "bounceSubType": "MailboxFull", "bouncedRecipients": [
	    {"emailAddress": "a@x.com", "diagnosticCode": "552 mailbox full"},
	    {"emailAddress": "b@x.com", "diagnosticCode": "452 over quota"}
	  ]},
	  "mail": {"messageId": "ses-8", "tags": {"owner_id": ["owner-1"]}}
	}`)
	rep, err := f.rec.Apply(context.Background(), n)
	require.NoError(t, err)
	assert.Equal(t, 2, rep.Applied)

	codes := map[string]any{}
	for _, ev := range f.eventsOf(domain.EventBounced) {
		codes[ev.Recipient] = ev.Metadata["diagnosticCode"]
	}
	assert.Equal(t, map[string]any{"a@x.com": "552 mailbox full", "b@x.com": "452 over quota"}, codes)
}

func TestApply_OrphanRecorded(t *testing.T) {
	f := newFixture(t, nil)
	f.subscriber(t, "c@x.com", domain.SubscriberActive)

	rep, err := f.rec.Apply(context.Background(), parse(t, bounceC))
	require.NoError(t, err)

	assert.Equal(t, 1, rep.Orphans)
	assert.Equal(t, domain.SubscriberActive, f.status(t, "c@x.com"))
	ev := f.eventsOf(domain.EventBounced)
	require.Len(t, ev, 1)
	assert.Empty(t, ev[0].OwnerID)
	assert.Equal(t, true, ev[0].Metadata["orphan"])
}

func TestApply_UnknownAcked(t *testing.T) {
	f := newFixture(t, nil)
	rep, err := f.rec.Apply(context.Background(), parse(t, `{"eventType":"Rendering Failure"}`))
	require.NoError(t, err)
	assert.True(t, rep.Ignored)
	assert.Empty(t, f.events.All())
}

func TestApply_OpenAndClick(t *testing.T) {
	f := newFixture(t, nil)
	f.subscriber(t, "a@x.com", domain.SubscriberActive)
	tags := `"tags": {"owner_id": ["owner-1"]}`

	_, err := f.rec.Apply(context.Background(), parse(t, `{"eventType":"Open","open":{"ipAddress":"192.0.2.1"},"mail":{"messageId":"m1","destination":["a@x.com"],`+tags+`}}`))
	require.NoError(t, err)
	_, err = f.rec.Apply(context.Background(), parse(t, `{"eventType":"Click","click":{"link":"https://example.com"},"mail":{"messageId":"m1","destination":["a@x.com"],`+tags+`}}`))
	require.NoError(t, err)

	require.Len(t, f.eventsOf(domain.EventOpened), 1)
	clicks := f.eventsOf(domain.EventClicked)
	require.Len(t, clicks, 1)
	assert.Equal(t, "https://example.com", clicks[0].Metadata["link"])
	assert.Equal(t, domain.SubscriberActive, f.status(t, "a@x.com"))
}

// flakyEvents fails the first append.
type flakyEvents struct {
	*memory.EventRepo
	failed atomic.Bool
}

func (e *flakyEvents) Append(ctx context.Context, ev *domain.Event) (bool, error) {
	if e.failed.CompareAndSwap(false, true) {
		return false, errors.New("connection reset")
	}
	return e.EventRepo.Append(ctx, ev)
}

func TestApply_FailureReleasesDedupClaim(t *testing.T) {
	subs := memory.NewSubscriberRepo()
	require.NoError(t, subs.Create(context.Background(), &domain.Subscriber{ID: "s", OwnerID: owner, Email: "c@x.com", Status: domain.SubscriberActive}))
	events := &flakyEvents{EventRepo: memory.NewEventRepo()}
	rec := New(subs, events, NewMemoryDeduper(time.Hour))

	n := parse(t, `{"notificationType":"Bounce","bounce":{"bounceType":"Permanent","bouncedRecipients":[{"emailAddress":"c@x.com"}]},"mail":{"messageId":"ses-2","tags":{"owner_id":["owner-1"]}}}`)

	_, err := rec.Apply(context.Background(), n)
	assert.ErrorIs(t, err, domain.ErrUpstreamUnavailable)

	rep, err := rec.Apply(context.Background(), n)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Applied)
	assert.Len(t, events.All(), 1)
}

func TestApply_SubscriptionConfirmation(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		assert.Equal(t, "ConfirmSubscription", r.URL.Query().Get("Action"))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	f := newFixture(t, nil)
	n := &Notification{Kind: KindSubscriptionConfirmation, SubscribeURL: srv.URL + "/?Action=ConfirmSubscription"}

	rep, err := f.rec.Apply(context.Background(), n)
	require.NoError(t, err)
	assert.True(t, rep.Ignored)
	assert.Zero(t, hits.Load())

	f.rec.SetConfirmer(&Confirmer{client: srv.Client(), anyHost: true})
	rep, err = f.rec.Apply(context.Background(), n)
	require.NoError(t, err)
	assert.True(t, rep.Confirmed)
	assert.Equal(t, int32(1), hits.Load())
}

func TestConfirmer_RefusesForeignHost(t *testing.T) {
	c := NewConfirmer(nil)
	err := c.Confirm(context.Background(), "https://attacker.example.com/confirm")
	assert.Error(t, err)
	err = c.Confirm(context.Background(), "http://sns.us-east-1.amazonaws.com/")
	assert.Error(t, err)
}

func TestNewConfirmer_WrapsOnce(t *testing.T) {
	plain := &http.Client{Timeout: time.Second}
	c := NewConfirmer(plain)
	rc, ok := c.client.(*httpretry.RetryClient)
	require.True(t, ok)

	again := NewConfirmer(rc)
	assert.Same(t, rc, again.client)
}

func TestRedisDeduper(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	d := NewRedisDeduper(client, time.Hour)
	ctx := context.Background()

	first, err := d.Claim(ctx, "ses-2|bounced|c@x.com")
	require.NoError(t, err)
	assert.True(t, first)

	again, err := d.Claim(ctx, "ses-2|bounced|c@x.com")
	require.NoError(t, err)
	assert.False(t, again)

	mr.FastForward(2 * time.Hour)
	expired, err := d.Claim(ctx, "ses-2|bounced|c@x.com")
	require.NoError(t, err)
	assert.True(t, expired)

	require.NoError(t, d.Forget(ctx, "ses-2|bounced|c@x.com"))
	assert.False(t, mr.Exists("ses-event:ses-2|bounced|c@x.com"))
}

func TestRedisDeduper_WithReconciler(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	f := newFixture(t, NewRedisDeduper(client, time.Hour))
	f.subscriber(t, "c@x.com", domain.SubscriberActive)
	f.sent(t, "ses-2", "camp-1", "c@x.com")
	n := parse(t, bounceC)

	_, err := f.rec.Apply(context.Background(), n)
	require.NoError(t, err)
	rep, err := f.rec.Apply(context.Background(), n)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Duplicates)
	assert.True(t, mr.Exists("ses-event:ses-2|bounced|c@x.com"))
}

func TestMemoryDeduper_Expiry(t *testing.T) {
	d := NewMemoryDeduper(time.Minute)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	d.now = func() time.Time { return now }

	ok, _ := d.Claim(context.Background(), "k")
	assert.True(t, ok)
	ok, _ = d.Claim(context.Background(), "k")
	assert.False(t, ok)

	now = now.Add(2 * time.Minute)
	ok, _ = d.Claim(context.Background(), "k")
	assert.True(t, ok)
}
