package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type CampaignStatus string

// Campaign statuses
const (
	CampaignStatusCreated           CampaignStatus = "created"
	CampaignStatusAwaitingAssets    CampaignStatus = "awaiting_assets"
	CampaignStatusAssetsUploaded    CampaignStatus = "assets_uploaded"
	CampaignStatusDraftInProgress   CampaignStatus = "draft_in_progress"
	CampaignStatusDraftSubmitted    CampaignStatus = "draft_submitted"
	CampaignStatusCustomerReview    CampaignStatus = "customer_review"
	CampaignStatusApproved          CampaignStatus = "approved"
	CampaignStatusRevisionRequested CampaignStatus = "revision_requested"
	CampaignStatusLive              CampaignStatus = "live"
)

// Valid state transitions: from -> []to
var ValidCampaignTransitions = map[CampaignStatus][]CampaignStatus{
	CampaignStatusCreated:           {CampaignStatusAssetsUploaded},
	CampaignStatusAwaitingAssets:    {CampaignStatusAssetsUploaded},
	CampaignStatusAssetsUploaded:    {CampaignStatusDraftInProgress},
	CampaignStatusDraftInProgress:   {CampaignStatusDraftSubmitted},
	CampaignStatusDraftSubmitted:    {CampaignStatusCustomerReview},
	CampaignStatusCustomerReview:    {CampaignStatusApproved, CampaignStatusRevisionRequested},
	CampaignStatusRevisionRequested: {CampaignStatusDraftInProgress},
	CampaignStatusApproved:          {CampaignStatusLive},
	CampaignStatusLive:              {},
}

// ParseCampaignStatus rejects anything outside the status table instead of coercing it.
func ParseCampaignStatus(s string) (CampaignStatus, error) {
	st := CampaignStatus(s)
	if _, ok := ValidCampaignTransitions[st]; !ok {
		return "", fmt.Errorf("unknown campaign status %q", s)
	}
	return st, nil
}

func IsValidTransition(from, to CampaignStatus) bool {
	allowed, ok := ValidCampaignTransitions[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

// Statuses scanned by the reminder sweeps.
var (
	AssetDeadlineStatuses = []CampaignStatus{CampaignStatusCreated, CampaignStatusAwaitingAssets}
	DraftDeadlineStatuses = []CampaignStatus{CampaignStatusAssetsUploaded, CampaignStatusDraftInProgress, CampaignStatusRevisionRequested}
)

type Campaign struct {
	ID               uuid.UUID      `json:"id"`
	TenantID         uuid.UUID      `json:"tenant_id"`
	CustomerName     string         `json:"customer_name"`
	CustomerEmail    string         `json:"customer_email"`
	CampaignType     string         `json:"campaign_type"`
	AgencyID         uuid.UUID      `json:"agency_id"`
	CSOwnerID        uuid.UUID      `json:"cs_owner_id"`
	Status           CampaignStatus `json:"status"`
	AssetDeadline    time.Time      `json:"asset_deadline"`
	GoLiveDate       time.Time      `json:"go_live_date"`
	CustomerFeedback *string        `json:"customer_feedback,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`

	// Joined from agencies / users to avoid N+1 lookups in sweeps and entitlement checks.
	AgencyName   string `json:"agency_name,omitempty"`
	AgencyEmail  string `json:"agency_email,omitempty"`
	CSOwnerEmail string `json:"cs_owner_email,omitempty"`
}
