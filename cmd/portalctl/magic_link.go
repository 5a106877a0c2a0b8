package main

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/jobboard/campaign-portal/internal/auth"
	"github.com/jobboard/campaign-portal/internal/mail"
	"github.com/jobboard/campaign-portal/internal/models"
	"github.com/jobboard/campaign-portal/internal/repositories"
	"github.com/jobboard/campaign-portal/internal/services"
	"github.com/spf13/cobra"
)

var (
	magicLinkTenant   string
	magicLinkEmail    string
	magicLinkPortal   string
	magicLinkCampaign string
)

// magicLinkCmd issues a link directly, for support staff and local development.
var magicLinkCmd = &cobra.Command{
	Use:   "magic-link",
	Short: "Issue a sign-in link and print it",
	RunE:  runMagicLink,
}

func init() {
	magicLinkCmd.Flags().StringVar(&magicLinkTenant, "tenant", "", "tenant slug")
	magicLinkCmd.Flags().StringVar(&magicLinkEmail, "email", "", "recipient email")
	magicLinkCmd.Flags().StringVar(&magicLinkPortal, "portal", "cs", "portal: cs, customer or agency")
	magicLinkCmd.Flags().StringVar(&magicLinkCampaign, "campaign", "", "scope a customer link to one campaign")
	_ = magicLinkCmd.MarkFlagRequired("tenant")
	_ = magicLinkCmd.MarkFlagRequired("email")
}

func runMagicLink(cmd *cobra.Command, _ []string) error {
	portal, err := models.ParsePortalRole(magicLinkPortal)
	if err != nil {
		return err
	}
	var campaignID *uuid.UUID
	if magicLinkCampaign != "" {
		id, err := uuid.Parse(magicLinkCampaign)
		if err != nil {
			return fmt.Errorf("invalid --campaign: %w", err)
		}
		campaignID = &id
	}

	ctx := cmd.Context()
	e, cleanup, err := connect(ctx, true)
	if err != nil {
		return err
	}
	defer cleanup()

	tenant, err := repositories.NewTenantRepo(e.pool).GetBySlug(ctx, magicLinkTenant)
	if err != nil {
		return fmt.Errorf("tenant %s: %w", magicLinkTenant, err)
	}

	campaigns := repositories.NewCampaignRepo(e.pool)
	authService := services.NewAuthService(repositories.NewMagicLinkRepo(e.pool), campaigns,
		repositories.NewUserRepo(e.pool), repositories.NewAgencyRepo(e.pool),
		auth.NewSessionManager(e.cfg.SessionSecret, e.cfg.SessionTTL), auth.NewRedisRevocationStore(e.rdb),
		mail.NewLogMailer(e.log), services.AuthServiceConfig{
			AppBaseURL:   e.cfg.AppBaseURL,
			MagicLinkTTL: e.cfg.MagicLinkTTL,
		}, e.log)

	token, err := authService.IssueMagicLink(ctx, tenant.ID, magicLinkEmail, portal, campaignID)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), authService.MagicLinkURL(token))
	return nil
}
