package domain

import (
	"strings"
	"time"
)

// SubscriberStatus enumerates the delivery-eligibility states of a subscriber.
type SubscriberStatus string

const (
	SubscriberActive       SubscriberStatus = "active"
	SubscriberUnsubscribed SubscriberStatus = "unsubscribed"
	SubscriberBounced      SubscriberStatus = "bounced"
	SubscriberNew          SubscriberStatus = "new"
)

// Valid reports whether s is one of the known subscriber states.
func (s SubscriberStatus) Valid() bool {
	switch s {
	case SubscriberActive, SubscriberUnsubscribed, SubscriberBounced, SubscriberNew:
		return true
	}
	return false
}

// Subscriber is a recipient on an account's mailing list.
type Subscriber struct {
	ID        string           `json:"id" db:"id"`
	OwnerID   string           `json:"owner_id" db:"owner_id"`
	Email     string           `json:"email" db:"email"`
	Name      string           `json:"name" db:"name"`
	Status    SubscriberStatus `json:"status" db:"status"`
	Source    string           `json:"source" db:"source"`
	Metadata  map[string]any   `json:"metadata" db:"metadata"`
	CreatedAt time.Time        `json:"created_at" db:"created_at"`
	UpdatedAt time.Time        `json:"updated_at" db:"updated_at"`
}

// Dispatchable reports whether the subscriber may receive campaign mail.
func (s *Subscriber) Dispatchable() bool {
	return s.Status == SubscriberActive
}

// NormalizeEmail is the canonical form used for storage and webhook lookups.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
