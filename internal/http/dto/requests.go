package dto

import "time"

// Auth

type RequestMagicLinkRequest struct {
	Email      string  `json:"email"`
	PortalType string  `json:"portal_type"`
	CampaignID *string `json:"campaign_id,omitempty"`
}

// Campaigns

type CreateCampaignRequest struct {
	CustomerName  string    `json:"customer_name"`
	CustomerEmail string    `json:"customer_email"`
	CampaignType  string    `json:"campaign_type"`
	AgencyID      string    `json:"agency_id"`
	AssetDeadline time.Time `json:"asset_deadline"`
	GoLiveDate    time.Time `json:"go_live_date"`
	CSOwnerEmail  string    `json:"cs_owner_email,omitempty"` // defaults to the caller
}

type RequestChangesRequest struct {
	Feedback string `json:"feedback"`
}
