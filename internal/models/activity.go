package models

import (
	"time"

	"github.com/google/uuid"
)

// Activity action codes
const (
	ActivityCampaignCreated  = "campaign_created"
	ActivityStatusChanged    = "status_changed"
	ActivityAssetsAdded      = "assets_added"
	ActivityNotificationSent = "notification_sent"
)

// CampaignActivity is an append-only audit entry.
type CampaignActivity struct {
	ID         uuid.UUID      `json:"id"`
	CampaignID uuid.UUID      `json:"campaign_id"`
	ActorRole  Role           `json:"actor_role"`
	ActorID    string         `json:"actor_id"` // email, or "system"
	Action     string         `json:"action"`
	Detail     map[string]any `json:"detail,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}
