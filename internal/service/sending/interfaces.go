// Package sending defines the contract between the Dispatcher and the
// external email-delivery provider.
//
// Each provider (SES, Resend) implements Transport. The provider call is the
// only suspension point of a campaign send; callers bound it with a context
// deadline and treat every error, including a timeout, as a soft
// per-recipient failure.
package sending

import (
	"context"
)

// Message is one fully-resolved outbound email for a single recipient.
type Message struct {
	To      string
	From    string
	Subject string
	HTML    string
	// Tags travel with the message and come back on provider notifications,
	// which is how webhooks are attributed to a campaign and owner.
	Tags map[string]string
}

// Receipt is returned by the provider on acceptance.
type Receipt struct {
	MessageID string
}

// Transport sends a single email. Implementations must be safe for
// concurrent use.
type Transport interface {
	Send(ctx context.Context, msg *Message) (*Receipt, error)
}

// TransportFunc adapts a function to Transport.
type TransportFunc func(ctx context.Context, msg *Message) (*Receipt, error)

// Send calls f.
func (f TransportFunc) Send(ctx context.Context, msg *Message) (*Receipt, error) {
	return f(ctx, msg)
}

// Tag names set on every campaign message.
const (
	TagCampaignID   = "campaign_id"
	TagOwnerID      = "owner_id"
	TagSubscriberID = "subscriber_id"
)
