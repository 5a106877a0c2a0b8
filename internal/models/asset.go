package models

import (
	"time"

	"github.com/google/uuid"
)

type AssetKind string

const (
	AssetKindAsset AssetKind = "asset" // customer brand material
	AssetKindDraft AssetKind = "draft" // agency deliverable
)

type CampaignAsset struct {
	ID           uuid.UUID `json:"id"`
	CampaignID   uuid.UUID `json:"campaign_id"`
	Kind         AssetKind `json:"kind"`
	Filename     string    `json:"filename"`
	StorageKey   string    `json:"-"`
	ContentType  string    `json:"content_type"`
	SizeBytes    int64     `json:"size_bytes"`
	UploaderRole Role      `json:"uploader_role"`
	UploadedBy   string    `json:"uploaded_by"`
	UploadedAt   time.Time `json:"uploaded_at"`
}
