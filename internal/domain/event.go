package domain

import "time"

// EventType enumerates delivery-lifecycle occurrences.
type EventType string

const (
	EventSent       EventType = "sent"
	EventDelivered  EventType = "delivered"
	EventOpened     EventType = "opened"
	EventClicked    EventType = "clicked"
	EventBounced    EventType = "bounced"
	EventComplained EventType = "complained"
	EventFailed     EventType = "failed"
)

// AllEventTypes lists every event type in reporting order.
var AllEventTypes = []EventType{
	EventSent, EventDelivered, EventOpened, EventClicked,
	EventBounced, EventComplained, EventFailed,
}

// Event is an immutable record of one delivery-lifecycle occurrence for one
// recipient. The log is append-only.
type Event struct {
	ID           string         `json:"id" db:"id"`
	OwnerID      string         `json:"owner_id,omitempty" db:"owner_id"`
	CampaignID   *string        `json:"campaign_id" db:"campaign_id"`
	SubscriberID *string        `json:"subscriber_id,omitempty" db:"subscriber_id"`
	MessageID    *string        `json:"message_id" db:"message_id"`
	Event        EventType      `json:"event" db:"event"`
	Recipient    string         `json:"recipient" db:"recipient"`
	Timestamp    time.Time      `json:"timestamp" db:"timestamp"`
	Metadata     map[string]any `json:"metadata,omitempty" db:"metadata"`
}

// DedupKey identifies an event for idempotent recording. Events without a
// message id (transport failures) have no key and are never deduplicated.
func (e *Event) DedupKey() (string, bool) {
	if e.MessageID == nil || *e.MessageID == "" {
		return "", false
	}
	return *e.MessageID + "|" + string(e.Event) + "|" + NormalizeEmail(e.Recipient), true
}

// EventFilter narrows an event search. Zero values are ignored.
type EventFilter struct {
	CampaignID string
	Event      EventType
	Start      *time.Time
	End        *time.Time
	Limit      int
}
