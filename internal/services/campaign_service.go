package services

import (
	"context"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jobboard/campaign-portal/internal/apperrors"
	"github.com/jobboard/campaign-portal/internal/auth"
	"github.com/jobboard/campaign-portal/internal/events"
	"github.com/jobboard/campaign-portal/internal/models"
	"github.com/jobboard/campaign-portal/internal/rbac"
	"github.com/jobboard/campaign-portal/internal/repositories"
	"github.com/jobboard/campaign-portal/internal/requestid"
	"github.com/jobboard/campaign-portal/internal/storage"
	"go.uber.org/zap"
)

type CampaignService struct {
	campaigns     CampaignStore
	assets        AssetStore
	activity      ActivityStore
	notifications NotificationStore
	users         UserStore
	agencies      AgencyStore
	objects       storage.ObjectStore
	workflow      *WorkflowService
	publisher     events.Publisher
	downloadTTL   time.Duration
	activityLimit int
	log           *zap.Logger
}

func NewCampaignService(
	campaigns CampaignStore,
	assets AssetStore,
	activity ActivityStore,
	notifications NotificationStore,
	users UserStore,
	agencies AgencyStore,
	objects storage.ObjectStore,
	workflow *WorkflowService,
	publisher events.Publisher,
	downloadTTL time.Duration,
	log *zap.Logger,
) *CampaignService {
	return &CampaignService{
		campaigns:     campaigns,
		assets:        assets,
		activity:      activity,
		notifications: notifications,
		users:         users,
		agencies:      agencies,
		objects:       objects,
		workflow:      workflow,
		publisher:     publisher,
		downloadTTL:   downloadTTL,
		activityLimit: repositories.DefaultActivityLimit,
		log:           log,
	}
}

type CreateCampaignInput struct {
	CustomerName  string
	CustomerEmail string
	CampaignType  string
	AgencyID      uuid.UUID
	AssetDeadline time.Time
	GoLiveDate    time.Time
	// CSOwnerEmail defaults to the caller.
	CSOwnerEmail string
}

func normalizeEmail(raw string) (string, error) {
	addr, err := mail.ParseAddress(strings.TrimSpace(raw))
	if err != nil {
		return "", apperrors.Validation("invalid email address")
	}
	return strings.ToLower(addr.Address), nil
}

func (s *CampaignService) Create(ctx context.Context, user *auth.AuthUser, in CreateCampaignInput) (*models.Campaign, error) {
	if user == nil {
		return nil, apperrors.Unauthorized()
	}
	if !rbac.HasPermission(user.Portal, rbac.ActionCreateCampaign) {
		return nil, apperrors.Forbidden("only customer success can create campaigns")
	}

	in.CustomerName = strings.TrimSpace(in.CustomerName)
	in.CampaignType = strings.TrimSpace(in.CampaignType)
	switch {
	case in.CustomerName == "":
		return nil, apperrors.Validation("customer_name is required")
	case in.CampaignType == "":
		return nil, apperrors.Validation("campaign_type is required")
	case in.AgencyID == uuid.Nil:
		return nil, apperrors.Validation("agency_id is required")
	case in.AssetDeadline.IsZero() || in.GoLiveDate.IsZero():
		return nil, apperrors.Validation("asset_deadline and go_live_date are required")
	case in.GoLiveDate.Before(in.AssetDeadline):
		return nil, apperrors.Validation("go_live_date must not be before asset_deadline")
	}
	customerEmail, err := normalizeEmail(in.CustomerEmail)
	if err != nil {
		return nil, err
	}

	if _, err := s.agencies.GetByID(ctx, user.TenantID, in.AgencyID); err != nil {
		return nil, storeErr(err, "agency")
	}
	ownerEmail := user.Email
	if strings.TrimSpace(in.CSOwnerEmail) != "" {
		if ownerEmail, err = normalizeEmail(in.CSOwnerEmail); err != nil {
			return nil, err
		}
	}
	owner, err := s.users.GetByEmail(ctx, user.TenantID, ownerEmail)
	if err != nil {
		return nil, storeErr(err, "cs owner")
	}

	c, err := s.campaigns.Create(ctx, &models.Campaign{
		TenantID:      user.TenantID,
		CustomerName:  in.CustomerName,
		CustomerEmail: customerEmail,
		CampaignType:  in.CampaignType,
		AgencyID:      in.AgencyID,
		CSOwnerID:     owner.ID,
		Status:        models.CampaignStatusAwaitingAssets,
		AssetDeadline: in.AssetDeadline.UTC(),
		GoLiveDate:    in.GoLiveDate.UTC(),
	}, models.CampaignActivity{
		ActorRole: user.Portal,
		ActorID:   user.Email,
		Action:    models.ActivityCampaignCreated,
		Detail:    map[string]any{"status": string(models.CampaignStatusAwaitingAssets)},
	})
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindInternal, err, "create campaign")
	}

	s.log.Info("campaign created",
		requestid.Field(ctx),
		zap.String("campaign_id", c.ID.String()),
		zap.String("tenant_id", c.TenantID.String()),
		zap.String("created_by", user.Email))
	s.workflow.publish(ctx, c, events.EventCampaignCreated, map[string]any{"customer_name": c.CustomerName})
	return c, nil
}

type ListCampaignsInput struct {
	Status *string
	Limit  int
	Offset int
}

// List returns the caller's view: all tenant campaigns for cs, assigned ones
// for an agency, own ones for a customer.
func (s *CampaignService) List(ctx context.Context, user *auth.AuthUser, in ListCampaignsInput) ([]models.Campaign, error) {
	if user == nil {
		return nil, apperrors.Unauthorized()
	}
	f := repositories.CampaignFilter{TenantID: user.TenantID, Limit: in.Limit, Offset: in.Offset}
	if in.Status != nil && *in.Status != "" {
		st, err := models.ParseCampaignStatus(*in.Status)
		if err != nil {
			return nil, apperrors.Validation("%s", err.Error())
		}
		f.Status = &st
	}

	switch user.Portal {
	case models.RoleCS:
	case models.RoleAgency:
		agency, err := s.agencies.GetByEmail(ctx, user.TenantID, user.Email)
		if err != nil {
			return nil, storeErr(err, "agency")
		}
		f.AgencyID = &agency.ID
	case models.RoleCustomer:
		f.CustomerEmail = &user.Email
	default:
		return nil, apperrors.Forbidden("unknown portal")
	}

	campaigns, err := s.campaigns.List(ctx, f)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindInternal, err, "list campaigns")
	}
	if user.CampaignID != nil {
		scoped := campaigns[:0]
		for _, c := range campaigns {
			if c.ID == *user.CampaignID {
				scoped = append(scoped, c)
			}
		}
		campaigns = scoped
	}
	return campaigns, nil
}

type CampaignDetail struct {
	Campaign      *models.Campaign              `json:"campaign"`
	Assets        []models.CampaignAsset        `json:"assets"`
	Activity      []models.CampaignActivity     `json:"activity"`
	Notifications []models.CampaignNotification `json:"notifications,omitempty"`
}

// Detail loads a campaign for its viewer. Customers and agencies trigger the
// auto-transition they are waiting on; only cs sees the notification ledger.
func (s *CampaignService) Detail(ctx context.Context, user *auth.AuthUser, campaignID uuid.UUID) (*CampaignDetail, error) {
	c, err := loadCampaign(ctx, s.campaigns, user, campaignID)
	if err != nil {
		return nil, err
	}
	if user.Portal != models.RoleCS {
		if c, err = s.workflow.Observe(ctx, user, c); err != nil {
			return nil, err
		}
	}

	d := &CampaignDetail{Campaign: c}
	if d.Assets, err = s.assets.ListByCampaign(ctx, c.ID); err != nil {
		return nil, apperrors.Wrap(apperrors.KindInternal, err, "list assets")
	}
	if d.Activity, err = s.activity.ListByCampaign(ctx, c.ID, s.activityLimit); err != nil {
		return nil, apperrors.Wrap(apperrors.KindInternal, err, "list activity")
	}
	if user.Portal == models.RoleCS {
		if d.Notifications, err = s.notifications.ListByCampaign(ctx, c.ID); err != nil {
			return nil, apperrors.Wrap(apperrors.KindInternal, err, "list notifications")
		}
	}
	return d, nil
}

// AssetURL issues a short-lived download link for one asset of a campaign the caller may see.
func (s *CampaignService) AssetURL(ctx context.Context, user *auth.AuthUser, campaignID, assetID uuid.UUID) (string, time.Time, error) {
	c, err := loadCampaign(ctx, s.campaigns, user, campaignID)
	if err != nil {
		return "", time.Time{}, err
	}
	asset, err := s.assets.GetByID(ctx, c.ID, assetID)
	if err != nil {
		return "", time.Time{}, storeErr(err, "asset")
	}
	url, expiresAt, err := s.objects.SignedURL(ctx, asset.StorageKey, s.downloadTTL)
	if err != nil {
		return "", time.Time{}, apperrors.Wrap(apperrors.KindInternal, err, "sign download url")
	}
	return url, expiresAt, nil
}

func (s *CampaignService) ListAgencies(ctx context.Context, user *auth.AuthUser) ([]models.Agency, error) {
	if user == nil {
		return nil, apperrors.Unauthorized()
	}
	if user.Portal != models.RoleCS {
		return nil, apperrors.Forbidden("only customer success can list agencies")
	}
	agencies, err := s.agencies.List(ctx, user.TenantID)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindInternal, err, "list agencies")
	}
	return agencies, nil
}

// CanSubscribe is the realtime entitlement check: the caller must be a party
// to the campaign within its own tenant.
func (s *CampaignService) CanSubscribe(ctx context.Context, user *auth.AuthUser, campaignID uuid.UUID) error {
	_, err := loadCampaign(ctx, s.campaigns, user, campaignID)
	return err
}
