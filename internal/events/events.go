package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// CampaignChannel is the redis pub/sub channel every API process listens on.
const CampaignChannel = "events:campaign"

// Event types
const (
	EventCampaignCreated = "campaign_created"
	EventStatusChanged   = "status_changed"
	EventAssetsUploaded  = "assets_uploaded"
	EventReminderSent    = "reminder_sent"
	EventEscalationSent  = "escalation_sent"
)

type Event struct {
	TenantID   uuid.UUID      `json:"tenant_id"`
	CampaignID uuid.UUID      `json:"campaign_id"`
	Type       string         `json:"type"`
	Payload    map[string]any `json:"payload"`
	At         time.Time      `json:"at"`
}

type Publisher interface {
	Publish(ctx context.Context, stream string, event Event) error
}

type Subscriber interface {
	Subscribe(ctx context.Context, stream string, handler func(Event)) error
}
