package models

import (
	"time"

	"github.com/google/uuid"
)

// MagicLinkToken never holds the raw token, only its SHA-256 hash.
type MagicLinkToken struct {
	ID         uuid.UUID  `json:"id"`
	TokenHash  string     `json:"-"`
	TenantID   uuid.UUID  `json:"tenant_id"`
	Email      string     `json:"email"`
	PortalType Role       `json:"portal_type"`
	CampaignID *uuid.UUID `json:"campaign_id,omitempty"`
	ExpiresAt  time.Time  `json:"expires_at"`
	UsedAt     *time.Time `json:"used_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}
