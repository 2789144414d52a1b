package reconcile

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/engage/internal/domain"
	"github.com/ignite/engage/internal/pkg/logger"
	"github.com/ignite/engage/internal/service/sending"
)

var log = logger.With("reconcile")

// SubscriberStore is the subscriber access the reconciler needs.
type SubscriberStore interface {
	FindByEmail(ctx context.Context, ownerID, email string) (*domain.Subscriber, error)
	UpdateStatus(ctx context.Context, ownerID, id string, status domain.SubscriberStatus, now time.Time) error
}

// EventStore is the event log access the reconciler needs.
type EventStore interface {
	Append(ctx context.Context, e *domain.Event) (bool, error)
	FindByMessageID(ctx context.Context, messageID string, event domain.EventType) (*domain.Event, error)
}

// SubscriptionConfirmer activates an SNS subscription.
type SubscriptionConfirmer interface {
	Confirm(ctx context.Context, subscribeURL string) error
}

// Reconciler applies parsed notifications.
type Reconciler struct {
	subscribers SubscriberStore
	events      EventStore
	dedup       Deduper
	confirmer   SubscriptionConfirmer
	now         func() time.Time
}

// New creates a Reconciler. dedup may be nil, leaving the event store's
// unique key as the only duplicate guard.
func New(subscribers SubscriberStore, events EventStore, dedup Deduper) *Reconciler {
	return &Reconciler{
		subscribers: subscribers,
		events:      events,
		dedup:       dedup,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// SetConfirmer enables SNS subscription confirmation.
func (r *Reconciler) SetConfirmer(c SubscriptionConfirmer) { r.confirmer = c }

// SetClock overrides the time source. Intended for tests.
func (r *Reconciler) SetClock(now func() time.Time) { r.now = now }

// Report counts what one Apply did.
type Report struct {
	Kind               Kind `json:"kind"`
	Applied            int  `json:"applied"`
	Duplicates         int  `json:"duplicates"`
	Orphans            int  `json:"orphans"`
	UnknownRecipients  int  `json:"unknown_recipients"`
	SubscribersUpdated int  `json:"subscribers_updated"`
	Confirmed          bool `json:"confirmed,omitempty"`
	Ignored            bool `json:"ignored,omitempty"`
}

// origin is who a notification belongs to.
type origin struct {
	ownerID    string
	campaignID string
}

// item is one recipient's share of a notification.
type item struct {
	email    string
	event    domain.EventType
	target   domain.SubscriberStatus // empty: leave the subscriber alone
	at       time.Time
	metadata map[string]any
}

// Apply performs the state changes a notification implies. Unknown kinds
// are acknowledged without effect. An error means nothing was lost and the
// notification should be redelivered.
func (r *Reconciler) Apply(ctx context.Context, n *Notification) (*Report, error) {
	rep := &Report{Kind: n.Kind}

	switch n.Kind {
	case KindSubscriptionConfirmation:
		if r.confirmer == nil {
			log.Info("subscription confirmation received, confirmation disabled", "topic", n.TopicARN)
			rep.Ignored = true
			return rep, nil
		}
		if err := r.confirmer.Confirm(ctx, n.SubscribeURL); err != nil {
			return rep, domain.Upstream("confirm subscription", err)
		}
		log.Info("SNS subscription confirmed", "topic", n.TopicARN)
		rep.Confirmed = true
		return rep, nil
	case KindUnknown:
		log.Debug("ignoring notification", "type", n.RawType, "sns_message_id", n.SNSMessageID)
		rep.Ignored = true
		return rep, nil
	}

	items := r.items(n)
	if len(items) == 0 {
		log.Debug("notification names no recipients", "kind", string(n.Kind), "message_id", n.Mail.MessageID)
		return rep, nil
	}

	org, err := r.resolve(ctx, n.Mail)
	if err != nil {
		return rep, err
	}

	for _, it := range items {
		ev := &domain.Event{
			ID:        uuid.New().String(),
			OwnerID:   org.ownerID,
			Event:     it.event,
			Recipient: it.email,
			Timestamp: it.at,
			Metadata:  it.metadata,
		}
		if n.Mail.MessageID != "" {
			id := n.Mail.MessageID
			ev.MessageID = &id
		}
		if org.campaignID != "" {
			id := org.campaignID
			ev.CampaignID = &id
		}

		key, keyed := ev.DedupKey()
		claimed := false
		if keyed && r.dedup != nil {
			first, err := r.dedup.Claim(ctx, key)
			switch {
			case err != nil:
				log.Warn("dedup store unavailable", "error", err)
			case !first:
				log.Debug("duplicate notification", "message_id", n.Mail.MessageID, "event", string(it.event))
				rep.Duplicates++
				continue
			default:
				claimed = true
			}
		}

		if err := r.applyOne(ctx, org, ev, it, rep); err != nil {
			if claimed {
				if ferr := r.dedup.Forget(context.WithoutCancel(ctx), key); ferr != nil {
					log.Warn("dedup release failed", "error", ferr)
				}
			}
			return rep, err
		}
	}
	return rep, nil
}

func (r *Reconciler) applyOne(ctx context.Context, org origin, ev *domain.Event, it item, rep *Report) error {
	if org.ownerID == "" {
		ev.Metadata["orphan"] = true
		inserted, err := r.events.Append(ctx, ev)
		if err != nil {
			return domain.Upstream("append event", err)
		}
		if inserted {
			log.Debug("orphan notification recorded", "event", string(it.event), "recipient", it.email)
			rep.Orphans++
		} else {
			rep.Duplicates++
		}
		return nil
	}

	sub, err := r.subscribers.FindByEmail(ctx, org.ownerID, it.email)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		log.Debug("notification for unknown subscriber", "owner_id", org.ownerID, "recipient", it.email)
		rep.UnknownRecipients++
		sub = nil
	case err != nil:
		return domain.Upstream("find subscriber", err)
	}

	if sub != nil {
		id := sub.ID
		ev.SubscriberID = &id
		if it.target != "" && sub.Status != it.target {
			if err := r.subscribers.UpdateStatus(ctx, org.ownerID, sub.ID, it.target, r.now()); err != nil {
				return domain.Upstream("update subscriber", err)
			}
			log.Info("subscriber status changed", "subscriber_id", sub.ID,
				"from", string(sub.Status), "to", string(it.target), "reason", string(it.event))
			rep.SubscribersUpdated++
		}
	}

	inserted, err := r.events.Append(ctx, ev)
	if err != nil {
		return domain.Upstream("append event", err)
	}
	if inserted {
		rep.Applied++
	} else {
		rep.Duplicates++
	}
	return nil
}

// resolve finds the owning account: first from message tags set at send
// time, then from the sent event carrying the same message id.
func (r *Reconciler) resolve(ctx context.Context, mail Mail) (origin, error) {
	org := origin{
		ownerID:    mail.Tag(sending.TagOwnerID),
		campaignID: mail.Tag(sending.TagCampaignID),
	}
	if org.ownerID != "" || mail.MessageID == "" {
		return org, nil
	}

	sent, err := r.events.FindByMessageID(ctx, mail.MessageID, domain.EventSent)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return org, nil
	case err != nil:
		return org, domain.Upstream("find sent event", err)
	}
	org.ownerID = sent.OwnerID
	if sent.CampaignID != nil {
		org.campaignID = *sent.CampaignID
	}
	return org, nil
}

func (r *Reconciler) items(n *Notification) []item {
	at := func(t time.Time) time.Time {
		if t.IsZero() {
			return r.now()
		}
		return t
	}

	var out []item
	switch n.Kind {
	case KindBounce:
		b := n.Bounce
		for _, rcpt := range b.Recipients {
			meta := map[string]any{
				"bounceType":    b.BounceType,
				"bounceSubType": b.BounceSubType,
			}
			putNonEmpty(meta, "diagnosticCode", rcpt.DiagnosticCode)
			putNonEmpty(meta, "status", rcpt.Status)
			putNonEmpty(meta, "action", rcpt.Action)
			putNonEmpty(meta, "feedbackId", b.FeedbackID)
			putNonEmpty(meta, "reportingMTA", b.ReportingMTA)
			out = appendItem(out, rcpt.Email, domain.EventBounced, domain.SubscriberBounced, at(b.Timestamp), meta)
		}
	case KindComplaint:
		c := n.Complaint
		for _, email := range c.Recipients {
			meta := map[string]any{"complaintFeedbackType": c.FeedbackType}
			putNonEmpty(meta, "feedbackId", c.FeedbackID)
			putNonEmpty(meta, "userAgent", c.UserAgent)
			out = appendItem(out, email, domain.EventComplained, domain.SubscriberUnsubscribed, at(c.Timestamp), meta)
		}
	case KindDelivery:
		d := n.Delivery
		recipients := d.Recipients
		if len(recipients) == 0 {
			recipients = n.Mail.Destination
		}
		for _, email := range recipients {
			meta := map[string]any{
				"processingTimeMillis": d.ProcessingTimeMillis,
				"smtpResponse":         d.SMTPResponse,
			}
			putNonEmpty(meta, "reportingMTA", d.ReportingMTA)
			out = appendItem(out, email, domain.EventDelivered, "", at(d.Timestamp), meta)
		}
	case KindOpen, KindClick:
		e := n.Engagement
		et := domain.EventOpened
		if n.Kind == KindClick {
			et = domain.EventClicked
		}
		for _, email := range n.Mail.Destination {
			meta := map[string]any{}
			putNonEmpty(meta, "ipAddress", e.IPAddress)
			putNonEmpty(meta, "userAgent", e.UserAgent)
			putNonEmpty(meta, "link", e.Link)
			out = appendItem(out, email, et, "", at(e.Timestamp), meta)
		}
	}
	return out
}

func appendItem(out []item, email string, et domain.EventType, target domain.SubscriberStatus, at time.Time, meta map[string]any) []item {
	email = domain.NormalizeEmail(email)
	if email == "" {
		return out
	}
	return append(out, item{email: email, event: et, target: target, at: at, metadata: meta})
}

func putNonEmpty(m map[string]any, k, v string) {
	if v != "" {
		m[k] = v
	}
}
