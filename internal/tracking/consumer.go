// Package tracking ingests provider delivery notifications from an SQS
// queue subscribed to the SES event topic.
package tracking

import (
	"context"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"github.com/ignite/engage/internal/pkg/logger"
	"github.com/ignite/engage/internal/service/reconcile"
)

var log = logger.With("tracking")

// SQSAPI is the slice of the SQS client the consumer needs.
type SQSAPI interface {
	ReceiveMessage(ctx context.Context, in *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, in *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

// Applier applies one parsed notification.
type Applier interface {
	Apply(ctx context.Context, n *reconcile.Notification) (*reconcile.Report, error)
}

// Consumer long-polls the queue and hands each notification to the
// reconciler. A message is deleted once applied, or immediately when it
// cannot be parsed; anything else is left for SQS to redeliver.
type Consumer struct {
	sqsClient  SQSAPI
	queueURL   string
	applier    Applier
	waitTime   int32
	retryDelay time.Duration
	done       chan struct{}
	stopOnce   sync.Once
}

// NewConsumer creates a notification consumer for queueURL.
func NewConsumer(sqsClient SQSAPI, queueURL string, applier Applier) *Consumer {
	return &Consumer{
		sqsClient:  sqsClient,
		queueURL:   queueURL,
		applier:    applier,
		waitTime:   20,
		retryDelay: 5 * time.Second,
		done:       make(chan struct{}),
	}
}

// Run polls until ctx is cancelled or Stop is called.
func (c *Consumer) Run(ctx context.Context) {
	log.Info("SES notification consumer started", "queue", c.queueURL)
	defer log.Info("SES notification consumer stopped")

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		default:
		}

		if _, err := c.PollOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Error("SQS receive failed", "error", err)
			select {
			case <-ctx.Done():
				return
			case <-c.done:
				return
			case <-time.After(c.retryDelay):
			}
		}
	}
}

// Stop ends Run after the in-flight poll returns.
func (c *Consumer) Stop() {
	c.stopOnce.Do(func() { close(c.done) })
}

// PollOnce receives one batch and processes it. It returns how many
// messages were deleted.
func (c *Consumer) PollOnce(ctx context.Context) (int, error) {
	out, err := c.sqsClient.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:            aws.String(c.queueURL),
		MaxNumberOfMessages: 10,
		WaitTimeSeconds:     c.waitTime,
	})
	if err != nil {
		return 0, err
	}

	deleted := 0
	for _, msg := range out.Messages {
		if c.handle(ctx, msg) {
			c.deleteMessage(ctx, msg.ReceiptHandle)
			deleted++
		}
	}
	return deleted, nil
}

// handle reports whether the message is done with.
func (c *Consumer) handle(ctx context.Context, msg types.Message) bool {
	n, err := reconcile.Parse([]byte(aws.ToString(msg.Body)))
	if err != nil {
		log.Warn("dropping unparseable notification", "sqs_message_id", aws.ToString(msg.MessageId), "error", err)
		return true
	}

	rep, err := c.applier.Apply(ctx, n)
	if err != nil {
		log.Error("notification apply failed, leaving for redelivery",
			"sqs_message_id", aws.ToString(msg.MessageId), "kind", string(n.Kind), "error", err)
		return false
	}

	log.Debug("notification applied",
		"kind", string(rep.Kind),
		"applied", rep.Applied,
		"duplicates", rep.Duplicates,
		"orphans", rep.Orphans,
	)
	return true
}

func (c *Consumer) deleteMessage(ctx context.Context, handle *string) {
	_, err := c.sqsClient.DeleteMessage(context.WithoutCancel(ctx), &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(c.queueURL),
		ReceiptHandle: handle,
	})
	if err != nil {
		log.Warn("SQS delete failed", "error", err)
	}
}
