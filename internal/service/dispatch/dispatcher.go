package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/engage/internal/domain"
	"github.com/ignite/engage/internal/pkg/distlock"
	"github.com/ignite/engage/internal/pkg/logger"
	"github.com/ignite/engage/internal/service/sending"
)

var log = logger.With("dispatch")

// Error kinds recorded in failed-event metadata.
const (
	KindTimeout   = "timeout"
	KindCancelled = "cancelled"
	KindTransport = "transport"
	KindNoMessage = "missing_message_id"
)

// Config tunes a Dispatcher.
type Config struct {
	// From is the sender address for campaign mail and the default for ad-hoc mail.
	From string
	// SendTimeout bounds each transport call. Zero means no per-call deadline.
	SendTimeout time.Duration
	// AllFailedStatus is the terminal status when every attempt failed.
	AllFailedStatus domain.CampaignStatus
}

// Dispatcher sends campaigns and ad-hoc mail through a Transport.
type Dispatcher struct {
	campaigns   Campaigns
	subscribers Subscribers
	events      EventLog
	activity    ActivityRecorder
	transport   sending.Transport
	locks       distlock.Factory
	cfg         Config
	now         func() time.Time
}

// New creates a Dispatcher. activity may be nil.
func New(campaigns Campaigns, subscribers Subscribers, events EventLog, activity ActivityRecorder, transport sending.Transport, cfg Config) *Dispatcher {
	if cfg.AllFailedStatus == "" {
		cfg.AllFailedStatus = domain.CampaignFailed
	}
	return &Dispatcher{
		campaigns:   campaigns,
		subscribers: subscribers,
		events:      events,
		activity:    activity,
		transport:   transport,
		cfg:         cfg,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// SetLocks installs a distributed lock factory guarding Run. The repository
// compare-and-swap in BeginSend remains the primary guard.
func (d *Dispatcher) SetLocks(f distlock.Factory) { d.locks = f }

// SetClock overrides the time source. Intended for tests.
func (d *Dispatcher) SetClock(now func() time.Time) { d.now = now }

// Result summarizes one campaign send.
type Result struct {
	Campaign       *domain.Campaign `json:"campaign"`
	RecipientCount int              `json:"recipient_count"`
	Sent           int              `json:"sent"`
	Failed         int              `json:"failed"`
	Unattempted    int              `json:"unattempted,omitempty"`
	ZeroRecipients bool             `json:"zero_recipients,omitempty"`
	Cancelled      bool             `json:"cancelled,omitempty"`
	// Err is ErrZeroRecipients for an empty audience. It is a reported
	// outcome, not an operation failure.
	Err error `json:"-"`
}

// Run begins and performs a campaign send: it takes the campaign's send
// lock, moves the campaign draft → sending, loads the owner's active
// subscribers and calls Send. If the subscriber store is unreachable the
// campaign stays in sending and an UpstreamError is returned.
func (d *Dispatcher) Run(ctx context.Context, ownerID, campaignID string) (*Result, error) {
	if d.locks != nil {
		lock := d.locks("campaign-send:" + campaignID)
		held, err := lock.Acquire(ctx)
		switch {
		case err != nil:
			log.Warn("send lock unavailable, relying on status guard", "campaign_id", campaignID, "error", err)
		case !held:
			return nil, &domain.InvalidStateError{Op: "send", Status: domain.CampaignSending}
		default:
			defer func() {
				if err := lock.Release(context.WithoutCancel(ctx)); err != nil {
					log.Warn("send lock release failed", "campaign_id", campaignID, "error", err)
				}
			}()
		}
	}

	c, err := d.campaigns.BeginSend(ctx, ownerID, campaignID)
	if err != nil {
		return nil, err
	}

	subs, err := d.subscribers.ListActive(ctx, ownerID)
	if err != nil {
		log.Error("load subscribers failed, campaign left sending", "campaign_id", campaignID, "error", err)
		return nil, domain.Upstream("load subscribers", err)
	}

	return d.Send(ctx, c, subs)
}

// Send delivers c to every active subscriber of c's owner found in subs.
// c must already be in sending. Cancelling ctx stops new attempts; the
// campaign is still finalized. If an event cannot be written the batch
// stops, the campaign stays in sending and an UpstreamError is returned.
func (d *Dispatcher) Send(ctx context.Context, c *domain.Campaign, subs []domain.Subscriber) (*Result, error) {
	if c.Status != domain.CampaignSending {
		return nil, &domain.InvalidStateError{Op: "dispatch", Status: c.Status}
	}
	// Finalization must happen even if the caller has gone away.
	final := context.WithoutCancel(ctx)

	recipients := make([]domain.Subscriber, 0, len(subs))
	for _, s := range subs {
		if s.Dispatchable() && s.OwnerID == c.OwnerID {
			recipients = append(recipients, s)
		}
	}

	if len(recipients) == 0 {
		done, err := d.campaigns.Finish(final, c.OwnerID, c.ID, domain.CampaignFailed)
		if err != nil {
			return nil, err
		}
		log.Warn("campaign has no active subscribers", "campaign_id", c.ID)
		d.record(final, c.OwnerID, domain.ActionSendCampaign, domain.EntityCampaign, &c.ID, map[string]any{
			"recipientCount": 0,
			"status":         string(done.Status),
		})
		return &Result{Campaign: done, ZeroRecipients: true, Err: domain.ErrZeroRecipients}, nil
	}

	res := &Result{RecipientCount: len(recipients)}
	if err := d.campaigns.SetRecipientCount(final, c.OwnerID, c.ID, len(recipients)); err != nil {
		return nil, err
	}

	tags := map[string]string{
		sending.TagCampaignID: c.ID,
		sending.TagOwnerID:    c.OwnerID,
	}
	for i := range recipients {
		if ctx.Err() != nil {
			res.Cancelled = true
			res.Unattempted = len(recipients) - i
			log.Warn("campaign send cancelled", "campaign_id", c.ID, "unattempted", res.Unattempted)
			break
		}
		sub := &recipients[i]
		msg := &sending.Message{
			To:      sub.Email,
			From:    d.cfg.From,
			Subject: c.Subject,
			HTML:    c.Content,
			Tags:    withSubscriber(tags, sub.ID),
		}
		ev := d.attempt(ctx, msg)
		ev.OwnerID = c.OwnerID
		ev.CampaignID = &c.ID
		subID := sub.ID
		ev.SubscriberID = &subID
		if err := d.append(final, ev); err != nil {
			log.Error("event write failed, campaign left sending", "campaign_id", c.ID,
				"recipient", ev.Recipient, "attempted", i+1, "error", err)
			return nil, domain.Upstream("append event", err)
		}

		if ev.Event == domain.EventSent {
			res.Sent++
		} else {
			res.Failed++
		}
	}

	status := d.terminalStatus(res)
	done, err := d.campaigns.Finish(final, c.OwnerID, c.ID, status)
	if err != nil {
		return nil, err
	}
	res.Campaign = done

	details := map[string]any{
		"recipientCount": res.RecipientCount,
		"sent":           res.Sent,
		"failed":         res.Failed,
		"status":         string(status),
	}
	if res.Cancelled {
		details["cancelled"] = true
		details["unattempted"] = res.Unattempted
	}
	d.record(final, c.OwnerID, domain.ActionSendCampaign, domain.EntityCampaign, &c.ID, details)

	log.Info("campaign send complete", "campaign_id", c.ID, "status", string(status),
		"sent", res.Sent, "failed", res.Failed)
	return res, nil
}

// terminalStatus is sent unless nothing was delivered. A batch where every
// attempt failed follows the configured policy; a batch cancelled before
// its first attempt is failed.
func (d *Dispatcher) terminalStatus(res *Result) domain.CampaignStatus {
	if res.Sent > 0 {
		return domain.CampaignSent
	}
	if res.Failed == 0 {
		return domain.CampaignFailed
	}
	return d.cfg.AllFailedStatus
}

// attempt makes one bounded transport call and returns the event describing
// its outcome. Owner and campaign fields are left for the caller.
func (d *Dispatcher) attempt(ctx context.Context, msg *sending.Message) *domain.Event {
	sendCtx := ctx
	if d.cfg.SendTimeout > 0 {
		var cancel context.CancelFunc
		sendCtx, cancel = context.WithTimeout(ctx, d.cfg.SendTimeout)
		defer cancel()
	}

	receipt, err := d.transport.Send(sendCtx, msg)
	if err == nil && (receipt == nil || receipt.MessageID == "") {
		err = &domain.TransportError{Recipient: msg.To, Kind: KindNoMessage, Err: errors.New("provider returned no message id")}
	}

	ev := &domain.Event{
		ID:        uuid.New().String(),
		Recipient: msg.To,
		Timestamp: d.now(),
	}
	if err != nil {
		kind := errorKind(err)
		log.Warn("send failed", "recipient", msg.To, "kind", kind, "error", err)
		ev.Event = domain.EventFailed
		ev.Metadata = map[string]any{
			"error":     err.Error(),
			"errorKind": kind,
		}
		return ev
	}

	id := receipt.MessageID
	ev.Event = domain.EventSent
	ev.MessageID = &id
	return ev
}

func (d *Dispatcher) append(ctx context.Context, ev *domain.Event) error {
	_, err := d.events.Append(ctx, ev)
	return err
}

func (d *Dispatcher) record(ctx context.Context, ownerID, action, entityType string, entityID *string, details map[string]any) {
	if d.activity == nil {
		return
	}
	entry := &domain.ActivityLog{
		ID:         uuid.New().String(),
		UserID:     ownerID,
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		Details:    details,
		Timestamp:  d.now(),
	}
	if err := d.activity.Record(ctx, entry); err != nil {
		log.Warn("activity record failed", "action", action, "error", err)
	}
}

func errorKind(err error) string {
	var te *domain.TransportError
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	case errors.Is(err, context.Canceled):
		return KindCancelled
	case errors.As(err, &te) && te.Kind != "":
		return te.Kind
	}
	return KindTransport
}

func withSubscriber(base map[string]string, subscriberID string) map[string]string {
	tags := make(map[string]string, len(base)+1)
	for k, v := range base {
		tags[k] = v
	}
	tags[sending.TagSubscriberID] = subscriberID
	return tags
}

// AdHocInput is a one-off send outside any campaign.
type AdHocInput struct {
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html"`
	From    string   `json:"from"`
}

// Outcome is the per-recipient result of an ad-hoc send.
type Outcome struct {
	Recipient string `json:"recipient"`
	MessageID string `json:"message_id,omitempty"`
	Error     string `json:"error,omitempty"`
}

// AdHocResult summarizes an ad-hoc send.
type AdHocResult struct {
	Sent     int       `json:"sent"`
	Failed   int       `json:"failed"`
	Outcomes []Outcome `json:"outcomes"`
}

// SendAdHoc sends one message to each address in in.To. Events carry the
// owner but no campaign.
func (d *Dispatcher) SendAdHoc(ctx context.Context, ownerID string, in AdHocInput) (*AdHocResult, error) {
	if len(in.To) == 0 {
		return nil, domain.Required("to")
	}
	if in.Subject == "" {
		return nil, domain.Required("subject")
	}
	if in.HTML == "" {
		return nil, domain.Required("html")
	}
	to := make([]string, 0, len(in.To))
	for i, addr := range in.To {
		addr = domain.NormalizeEmail(addr)
		if addr == "" {
			return nil, &domain.ValidationError{Field: fmt.Sprintf("to[%d]", i), Message: "empty address"}
		}
		to = append(to, addr)
	}
	from := in.From
	if from == "" {
		from = d.cfg.From
	}

	final := context.WithoutCancel(ctx)
	res := &AdHocResult{Outcomes: make([]Outcome, 0, len(to))}
	messageIDs := make([]string, 0, len(to))
	for _, addr := range to {
		if ctx.Err() != nil {
			break
		}
		ev := d.attempt(ctx, &sending.Message{
			To:      addr,
			From:    from,
			Subject: in.Subject,
			HTML:    in.HTML,
			Tags:    map[string]string{sending.TagOwnerID: ownerID},
		})
		ev.OwnerID = ownerID
		if err := d.append(final, ev); err != nil {
			log.Error("event write failed, ad-hoc send stopped", "recipient", addr, "error", err)
			return nil, domain.Upstream("append event", err)
		}

		out := Outcome{Recipient: addr}
		if ev.Event == domain.EventSent {
			res.Sent++
			out.MessageID = *ev.MessageID
			messageIDs = append(messageIDs, out.MessageID)
		} else {
			res.Failed++
			out.Error, _ = ev.Metadata["error"].(string)
		}
		res.Outcomes = append(res.Outcomes, out)
	}

	var entityID *string
	if len(messageIDs) > 0 {
		entityID = &messageIDs[0]
	}
	d.record(final, ownerID, domain.ActionSendEmail, domain.EntityEmail, entityID, map[string]any{
		"recipients": to,
		"subject":    in.Subject,
		"sent":       res.Sent,
		"failed":     res.Failed,
	})
	return res, nil
}
