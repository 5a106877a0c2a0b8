package realtime

import (
	"time"

	"github.com/jobboard/campaign-portal/internal/auth"
)

// Client -> server message types
const (
	MsgSubscribe   = "subscribe"
	MsgUnsubscribe = "unsubscribe"
)

// Server -> client message types
const (
	MsgConnected     = "connected"
	MsgSubscribed    = "subscribed"
	MsgUnsubscribed  = "unsubscribed"
	MsgError         = "error"
	MsgCampaignEvent = "campaign_event"
)

// Close codes sent before the server drops a connection.
const (
	CloseUnauthenticated = 4401
	CloseTenantMismatch  = 4403
)

type ClientMessage struct {
	Type       string `json:"type"`
	CampaignID string `json:"campaignId"`
}

type ServerMessage struct {
	Type       string         `json:"type"`
	User       *auth.AuthUser `json:"user,omitempty"`
	CampaignID string         `json:"campaignId,omitempty"`
	EventType  string         `json:"eventType,omitempty"`
	Payload    map[string]any `json:"payload,omitempty"`
	At         *time.Time     `json:"at,omitempty"`
	Message    string         `json:"message,omitempty"`
}
