package services

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jobboard/campaign-portal/internal/apperrors"
	"github.com/jobboard/campaign-portal/internal/auth"
	"github.com/jobboard/campaign-portal/internal/mail"
	"github.com/jobboard/campaign-portal/internal/models"
	"github.com/jobboard/campaign-portal/internal/repositories"
	"github.com/jobboard/campaign-portal/internal/requestid"
	"go.uber.org/zap"
)

type AuthService struct {
	magicLinks   MagicLinkStore
	campaigns    CampaignStore
	users        UserStore
	agencies     AgencyStore
	sessions     *auth.SessionManager
	revocations  auth.RevocationStore
	mailer       mail.Mailer
	appBaseURL   string
	magicLinkTTL time.Duration
	sendTimeout  time.Duration
	now          func() time.Time
	log          *zap.Logger
}

type AuthServiceConfig struct {
	AppBaseURL   string
	MagicLinkTTL time.Duration
	SendTimeout  time.Duration
}

func NewAuthService(
	magicLinks MagicLinkStore,
	campaigns CampaignStore,
	users UserStore,
	agencies AgencyStore,
	sessions *auth.SessionManager,
	revocations auth.RevocationStore,
	mailer mail.Mailer,
	cfg AuthServiceConfig,
	log *zap.Logger,
) *AuthService {
	if cfg.MagicLinkTTL <= 0 {
		cfg.MagicLinkTTL = time.Hour
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 30 * time.Second
	}
	return &AuthService{
		magicLinks:   magicLinks,
		campaigns:    campaigns,
		users:        users,
		agencies:     agencies,
		sessions:     sessions,
		revocations:  revocations,
		mailer:       mailer,
		appBaseURL:   cfg.AppBaseURL,
		magicLinkTTL: cfg.MagicLinkTTL,
		sendTimeout:  cfg.SendTimeout,
		now:          time.Now,
		log:          log,
	}
}

// IssueMagicLink persists the hash of a fresh token and returns the plaintext
// for one-time delivery.
func (s *AuthService) IssueMagicLink(ctx context.Context, tenantID uuid.UUID, email string, portal models.Role, campaignID *uuid.UUID) (string, error) {
	plain, hash, err := auth.NewMagicToken()
	if err != nil {
		return "", apperrors.Wrap(apperrors.KindInternal, err, "issue magic link")
	}
	t := &models.MagicLinkToken{
		TokenHash:  hash,
		TenantID:   tenantID,
		Email:      email,
		PortalType: portal,
		CampaignID: campaignID,
		ExpiresAt:  s.now().Add(s.magicLinkTTL),
	}
	if err := s.magicLinks.Create(ctx, t); err != nil {
		return "", apperrors.Wrap(apperrors.KindInternal, err, "store magic link")
	}
	return plain, nil
}

func (s *AuthService) MagicLinkURL(token string) string {
	return s.appBaseURL + "/auth/verify/" + token
}

// entitled reports whether email may sign in to portal within the tenant.
func (s *AuthService) entitled(ctx context.Context, tenantID uuid.UUID, email string, portal models.Role, campaignID *uuid.UUID) (bool, error) {
	var err error
	switch portal {
	case models.RoleCS:
		_, err = s.users.GetByEmail(ctx, tenantID, email)
	case models.RoleAgency:
		_, err = s.agencies.GetByEmail(ctx, tenantID, email)
	case models.RoleCustomer:
		return s.campaigns.ExistsForCustomer(ctx, tenantID, email, campaignID)
	default:
		return false, nil
	}
	if errors.Is(err, repositories.ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

// RequestMagicLink emails a sign-in link when the address is entitled to the
// portal. The outcome is the same whether or not it is, so callers cannot
// enumerate accounts; only malformed input is reported.
func (s *AuthService) RequestMagicLink(ctx context.Context, tenant *models.Tenant, rawEmail, rawPortal string, campaignID *uuid.UUID) error {
	email, err := normalizeEmail(rawEmail)
	if err != nil {
		return err
	}
	portal, err := models.ParsePortalRole(rawPortal)
	if err != nil {
		return apperrors.Validation("portal_type must be one of cs, customer, agency")
	}
	if portal != models.RoleCustomer {
		campaignID = nil
	}

	ok, err := s.entitled(ctx, tenant.ID, email, portal, campaignID)
	if err != nil {
		s.log.Error("magic link entitlement lookup failed", requestid.Field(ctx), zap.String("tenant", tenant.Slug), zap.Error(err))
		return nil
	}
	if !ok {
		s.log.Info("magic link requested for unknown address",
			requestid.Field(ctx),
			zap.String("tenant", tenant.Slug),
			zap.String("portal", string(portal)))
		return nil
	}

	token, err := s.IssueMagicLink(ctx, tenant.ID, email, portal, campaignID)
	if err != nil {
		s.log.Error("failed to issue magic link", requestid.Field(ctx), zap.Error(err))
		return nil
	}

	subject, html, err := mail.Render(mail.TemplateMagicLink, mail.TemplateData{
		TenantName: tenant.Name,
		Link:       s.MagicLinkURL(token),
		ExpiresIn:  s.magicLinkTTL,
	})
	if err != nil {
		s.log.Error("failed to render magic link email", requestid.Field(ctx), zap.Error(err))
		return nil
	}

	sendCtx, cancel := context.WithTimeout(mail.WithTags(ctx, map[string]string{
		"tenant_id":  tenant.ID.String(),
		"mail_kind":  "magic_link",
		"request_id": requestid.From(ctx),
	}), s.sendTimeout)
	defer cancel()
	if err := s.mailer.Send(sendCtx, email, subject, html); err != nil {
		s.log.Warn("magic link delivery failed",
			requestid.Field(ctx),
			zap.String("tenant", tenant.Slug),
			zap.Error(apperrors.Wrap(apperrors.KindDeliveryFailure, err, "send magic link")))
	}
	return nil
}

// Redeem consumes a magic-link token. Unknown, expired, used and cross-tenant
// tokens all yield the same unauthorized error.
func (s *AuthService) Redeem(ctx context.Context, tenantID uuid.UUID, token string) (*auth.AuthUser, error) {
	if token == "" {
		return nil, apperrors.Unauthorized()
	}
	hash := auth.HashToken(token)
	now := s.now()

	t, err := s.magicLinks.Consume(ctx, tenantID, hash, now)
	if err != nil {
		if !errors.Is(err, repositories.ErrNotFound) {
			s.log.Error("magic link redemption failed", requestid.Field(ctx), zap.Error(err))
			return nil, apperrors.Unauthorized()
		}
		s.log.Debug("magic link rejected", zap.String("reason", s.rejectionReason(ctx, tenantID, hash, now)))
		return nil, apperrors.Unauthorized()
	}

	return &auth.AuthUser{
		Email:      t.Email,
		TenantID:   t.TenantID,
		Portal:     t.PortalType,
		CampaignID: t.CampaignID,
	}, nil
}

func (s *AuthService) rejectionReason(ctx context.Context, tenantID uuid.UUID, hash string, now time.Time) string {
	t, err := s.magicLinks.GetByHash(ctx, hash)
	switch {
	case err != nil:
		return "unknown token"
	case t.TenantID != tenantID:
		return "tenant mismatch"
	case t.UsedAt != nil:
		return "already used"
	case !now.Before(t.ExpiresAt):
		return "expired"
	default:
		return "concurrent redemption"
	}
}

type Session struct {
	Token     string         `json:"token"`
	User      *auth.AuthUser `json:"user"`
	ExpiresAt time.Time      `json:"expires_at"`
}

func (s *AuthService) IssueSession(user *auth.AuthUser) (*Session, error) {
	token, claims, err := s.sessions.Issue(*user)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindInternal, err, "issue session")
	}
	return &Session{Token: token, User: user, ExpiresAt: claims.ExpiresAt.Time}, nil
}

// VerifySession fails closed: a revocation store that cannot be read rejects
// the session.
func (s *AuthService) VerifySession(ctx context.Context, token string) (*auth.AuthUser, *auth.Claims, error) {
	if token == "" {
		return nil, nil, apperrors.Unauthorized()
	}
	user, claims, err := s.sessions.Verify(token)
	if err != nil {
		s.log.Debug("session rejected", zap.Error(err))
		return nil, nil, apperrors.Unauthorized()
	}
	revoked, err := s.revocations.IsRevoked(ctx, claims.ID)
	if err != nil {
		s.log.Warn("session revocation check failed", requestid.Field(ctx), zap.Error(err))
		return nil, nil, apperrors.Unauthorized()
	}
	if revoked {
		s.log.Debug("session rejected", zap.String("reason", "revoked"))
		return nil, nil, apperrors.Unauthorized()
	}
	return user, claims, nil
}

func (s *AuthService) Logout(ctx context.Context, claims *auth.Claims) error {
	if claims == nil || claims.ExpiresAt == nil {
		return nil
	}
	if err := s.revocations.Revoke(ctx, claims.ID, claims.ExpiresAt.Time); err != nil {
		return apperrors.Wrap(apperrors.KindInternal, err, "revoke session")
	}
	return nil
}
