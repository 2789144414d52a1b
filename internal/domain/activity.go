package domain

import "time"

// Activity actions recorded by the pipeline.
const (
	ActionCreateCampaign   = "create_campaign"
	ActionUpdateCampaign   = "update_campaign"
	ActionDeleteCampaign   = "delete_campaign"
	ActionSendCampaign     = "send_campaign"
	ActionSendEmail        = "send_email"
	ActionCreateSubscriber = "create_subscriber"
	ActionCreateTemplate   = "create_template"
)

// Activity entity types.
const (
	EntityCampaign   = "campaign"
	EntitySubscriber = "subscriber"
	EntityEmail      = "email"
	EntityTemplate   = "template"
)

// ActivityLog is one entry of the per-user audit trail.
type ActivityLog struct {
	ID         string         `json:"id" db:"id"`
	UserID     string         `json:"user_id" db:"user_id"`
	Action     string         `json:"action" db:"action"`
	EntityType string         `json:"entity_type" db:"entity_type"`
	EntityID   *string        `json:"entity_id" db:"entity_id"`
	Details    map[string]any `json:"details,omitempty" db:"details"`
	Timestamp  time.Time      `json:"timestamp" db:"timestamp"`
}
