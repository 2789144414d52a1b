package tracking

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/engage/internal/domain"
	"github.com/ignite/engage/internal/repository/memory"
	"github.com/ignite/engage/internal/service/reconcile"
)

type fakeSQS struct {
	mu      sync.Mutex
	batches [][]types.Message
	deleted []string
	err     error
}

func (f *fakeSQS) ReceiveMessage(ctx context.Context, _ *sqs.ReceiveMessageInput, _ ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if len(f.batches) == 0 {
		return &sqs.ReceiveMessageOutput{}, ctx.Err()
	}
	batch := f.batches[0]
	f.batches = f.batches[1:]
	return &sqs.ReceiveMessageOutput{Messages: batch}, nil
}

func (f *fakeSQS) DeleteMessage(_ context.Context, in *sqs.DeleteMessageInput, _ ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, aws.ToString(in.ReceiptHandle))
	return &sqs.DeleteMessageOutput{}, nil
}

func (f *fakeSQS) deletedHandles() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.deleted...)
}

type applierFunc func(ctx context.Context, n *reconcile.Notification) (*reconcile.Report, error)

func (f applierFunc) Apply(ctx context.Context, n *reconcile.Notification) (*reconcile.Report, error) {
	return f(ctx, n)
}

func message(handle, body string) types.Message {
	return types.Message{MessageId: aws.String("sqs-" + handle), ReceiptHandle: aws.String(handle), Body: aws.String(body)}
}

const rawBounce = `{
  "notificationType": "Bounce",
  "bounce": {
    "bounceType": "Permanent",
    "bounceSubType": "General",
    "timestamp": "2026-04-01T10:00:00Z",
    "bouncedRecipients": [{"emailAddress": "c@x.com", "status": "5.1.1"}]
  },
  "mail": {"messageId": "ses-2", "destination": ["c@x.com"], "tags": {"owner_id": ["o1"], "campaign_id": ["c1"]}}
}`

func TestPollOnceDeletesAppliedAndPoison(t *testing.T) {
	api := &fakeSQS{batches: [][]types.Message{{
		message("ok", rawBounce),
		message("garbage", "not json"),
	}}}
	var kinds []reconcile.Kind
	c := NewConsumer(api, "https://sqs.us-east-1.amazonaws.com/1/ses-events", applierFunc(func(_ context.Context, n *reconcile.Notification) (*reconcile.Report, error) {
		kinds = append(kinds, n.Kind)
		return &reconcile.Report{Kind: n.Kind, Applied: 1}, nil
	}))

	deleted, err := c.PollOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, deleted)
	assert.Equal(t, []string{"ok", "garbage"}, api.deletedHandles())
	assert.Equal(t, []reconcile.Kind{reconcile.KindBounce}, kinds)
}

func TestPollOnceKeepsFailedForRedelivery(t *testing.T) {
	api := &fakeSQS{batches: [][]types.Message{{message("retry-me", rawBounce)}}}
	c := NewConsumer(api, "q", applierFunc(func(context.Context, *reconcile.Notification) (*reconcile.Report, error) {
		return nil, &domain.UpstreamError{Op: "append event", Err: errors.New("db down")}
	}))

	deleted, err := c.PollOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, deleted)
	assert.Empty(t, api.deletedHandles())
}

func TestPollOnceReceiveError(t *testing.T) {
	api := &fakeSQS{err: errors.New("AccessDenied")}
	c := NewConsumer(api, "q", applierFunc(func(context.Context, *reconcile.Notification) (*reconcile.Report, error) {
		t.Fatal("apply must not be called")
		return nil, nil
	}))

	_, err := c.PollOnce(context.Background())
	assert.Error(t, err)
}

func TestConsumerAppliesBounceEndToEnd(t *testing.T) {
	ctx := context.Background()
	subs := memory.NewSubscriberRepo()
	events := memory.NewEventRepo()
	now := time.Now()
	require.NoError(t, subs.Create(ctx, &domain.Subscriber{
		ID: "s3", OwnerID: "o1", Email: "c@x.com", Status: domain.SubscriberActive, CreatedAt: now, UpdatedAt: now,
	}))
	rec := reconcile.New(subs, events, reconcile.NewMemoryDeduper(time.Hour))

	api := &fakeSQS{batches: [][]types.Message{
		{message("first", rawBounce)},
		{message("again", rawBounce)},
	}}
	c := NewConsumer(api, "q", rec)

	for i := 0; i < 2; i++ {
		_, err := c.PollOnce(ctx)
		require.NoError(t, err)
	}

	s, err := subs.Get(ctx, "o1", "s3")
	require.NoError(t, err)
	assert.Equal(t, domain.SubscriberBounced, s.Status)
	assert.Len(t, events.All(), 1)
	assert.Equal(t, []string{"first", "again"}, api.deletedHandles())
}

func TestRunStops(t *testing.T) {
	api := &fakeSQS{}
	c := NewConsumer(api, "q", applierFunc(func(context.Context, *reconcile.Notification) (*reconcile.Report, error) {
		return &reconcile.Report{}, nil
	}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()

	c.Stop()
	c.Stop()
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after Stop")
	}
}
