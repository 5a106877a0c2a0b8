package services

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/jobboard/campaign-portal/internal/apperrors"
	"github.com/jobboard/campaign-portal/internal/auth"
	"github.com/jobboard/campaign-portal/internal/models"
)

// authorizeCampaign checks tenant, session scope and ownership. It does not
// check which workflow edges the role may drive; that is rbac's job.
func authorizeCampaign(user *auth.AuthUser, c *models.Campaign) error {
	if user == nil {
		return apperrors.Unauthorized()
	}
	if c.TenantID != user.TenantID {
		return apperrors.Forbidden("campaign belongs to another tenant")
	}
	if user.CampaignID != nil && *user.CampaignID != c.ID {
		return apperrors.Forbidden("session is scoped to another campaign")
	}

	switch user.Portal {
	case models.RoleCS:
		return nil
	case models.RoleCustomer:
		if strings.EqualFold(c.CustomerEmail, user.Email) {
			return nil
		}
	case models.RoleAgency:
		if strings.EqualFold(c.AgencyEmail, user.Email) {
			return nil
		}
	}
	return apperrors.Forbidden("not a party to this campaign")
}

func loadCampaign(ctx context.Context, campaigns CampaignStore, user *auth.AuthUser, id uuid.UUID) (*models.Campaign, error) {
	if user == nil {
		return nil, apperrors.Unauthorized()
	}
	c, err := campaigns.GetByID(ctx, user.TenantID, id)
	if err != nil {
		return nil, storeErr(err, "campaign")
	}
	if err := authorizeCampaign(user, c); err != nil {
		return nil, err
	}
	return c, nil
}
