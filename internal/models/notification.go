package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Notification delivery statuses
const (
	NotificationStatusPending = "pending"
	NotificationStatusSent    = "sent"
	NotificationStatusFailed  = "failed"
)

const (
	NotificationAssetEscalation = "asset_escalation"
	NotificationDraftEscalation = "draft_escalation"
)

func AssetReminderType(days int) string { return fmt.Sprintf("asset_reminder_%dd", days) }
func DraftReminderType(days int) string { return fmt.Sprintf("draft_reminder_%dd", days) }

// CampaignNotification doubles as the dedup ledger: one row per (campaign, type).
type CampaignNotification struct {
	ID               uuid.UUID  `json:"id"`
	CampaignID       uuid.UUID  `json:"campaign_id"`
	NotificationType string     `json:"notification_type"`
	RecipientRole    Role       `json:"recipient_role"`
	RecipientAddress string     `json:"recipient_address"`
	Status           string     `json:"status"`
	Attempts         int        `json:"attempts"`
	SentAt           *time.Time `json:"sent_at,omitempty"`
	Error            *string    `json:"error,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}
