package services

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jobboard/campaign-portal/internal/apperrors"
	"github.com/jobboard/campaign-portal/internal/models"
	"github.com/jobboard/campaign-portal/internal/repositories"
)

// Consumer-side views of the repositories. The pgx-backed repos satisfy them;
// tests use in-memory fakes.

type CampaignStore interface {
	Create(ctx context.Context, c *models.Campaign, activity models.CampaignActivity) (*models.Campaign, error)
	GetByID(ctx context.Context, tenantID, id uuid.UUID) (*models.Campaign, error)
	List(ctx context.Context, f repositories.CampaignFilter) ([]models.Campaign, error)
	ListByStatuses(ctx context.Context, statuses []models.CampaignStatus) ([]models.Campaign, error)
	ExistsForCustomer(ctx context.Context, tenantID uuid.UUID, email string, campaignID *uuid.UUID) (bool, error)
	Transition(ctx context.Context, t repositories.Transition) (*models.Campaign, error)
}

type AssetStore interface {
	GetByID(ctx context.Context, campaignID, id uuid.UUID) (*models.CampaignAsset, error)
	ListByCampaign(ctx context.Context, campaignID uuid.UUID) ([]models.CampaignAsset, error)
}

type ActivityStore interface {
	Append(ctx context.Context, a *models.CampaignActivity) error
	ListByCampaign(ctx context.Context, campaignID uuid.UUID, limit int) ([]models.CampaignActivity, error)
}

type NotificationStore interface {
	Reserve(ctx context.Context, n *models.CampaignNotification, staleBefore time.Time) (bool, error)
	MarkSent(ctx context.Context, id uuid.UUID, sentAt time.Time) error
	MarkFailed(ctx context.Context, id uuid.UUID, reason string) error
	ListByCampaign(ctx context.Context, campaignID uuid.UUID) ([]models.CampaignNotification, error)
}

type MagicLinkStore interface {
	Create(ctx context.Context, t *models.MagicLinkToken) error
	Consume(ctx context.Context, tenantID uuid.UUID, tokenHash string, now time.Time) (*models.MagicLinkToken, error)
	GetByHash(ctx context.Context, tokenHash string) (*models.MagicLinkToken, error)
}

type UserStore interface {
	GetByEmail(ctx context.Context, tenantID uuid.UUID, email string) (*models.User, error)
}

type AgencyStore interface {
	GetByID(ctx context.Context, tenantID, id uuid.UUID) (*models.Agency, error)
	GetByEmail(ctx context.Context, tenantID uuid.UUID, email string) (*models.Agency, error)
	List(ctx context.Context, tenantID uuid.UUID) ([]models.Agency, error)
}

type TenantStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Tenant, error)
}

// storeErr maps repository errors into the caller-facing taxonomy.
func storeErr(err error, what string) error {
	if errors.Is(err, repositories.ErrNotFound) {
		return apperrors.NotFound("%s not found", what)
	}
	return apperrors.Wrap(apperrors.KindInternal, err, "load %s", what)
}
