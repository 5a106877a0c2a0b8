package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/jobboard/campaign-portal/internal/apperrors"
	"github.com/jobboard/campaign-portal/internal/http/dto"
	"github.com/jobboard/campaign-portal/internal/middleware"
	"github.com/jobboard/campaign-portal/internal/services"
	"go.uber.org/zap"
)

type AuthHandler struct {
	authService  *services.AuthService
	cookieName   string
	cookieSecure bool
	log          *zap.Logger
}

func NewAuthHandler(authService *services.AuthService, cookieName string, cookieSecure bool, log *zap.Logger) *AuthHandler {
	return &AuthHandler{authService: authService, cookieName: cookieName, cookieSecure: cookieSecure, log: log}
}

func (h *AuthHandler) RequestMagicLink(c *fiber.Ctx) error {
	var req dto.RequestMagicLinkRequest
	if err := c.BodyParser(&req); err != nil {
		return respondError(c, h.log, apperrors.Validation("invalid request"))
	}

	var campaignID *uuid.UUID
	if req.CampaignID != nil && *req.CampaignID != "" {
		id, err := uuid.Parse(*req.CampaignID)
		if err != nil {
			return respondError(c, h.log, apperrors.Validation("invalid campaign_id"))
		}
		campaignID = &id
	}

	if err := h.authService.RequestMagicLink(c.UserContext(), middleware.GetTenant(c), req.Email, req.PortalType, campaignID); err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true})
}

// Verify redeems a magic link and starts a session.
func (h *AuthHandler) Verify(c *fiber.Ctx) error {
	tenant := middleware.GetTenant(c)
	user, err := h.authService.Redeem(c.UserContext(), tenant.ID, c.Params("token"))
	if err != nil {
		return respondError(c, h.log, err)
	}

	session, err := h.authService.IssueSession(user)
	if err != nil {
		return respondError(c, h.log, err)
	}
	h.setCookie(c, session.Token, session.ExpiresAt)

	h.log.Info("session started",
		zap.String("tenant", tenant.Slug),
		zap.String("portal", string(user.Portal)))
	return c.JSON(dto.SessionResponse{Token: session.Token, User: session.User, ExpiresAt: session.ExpiresAt})
}

func (h *AuthHandler) Session(c *fiber.Ctx) error {
	return c.JSON(middleware.GetUser(c))
}

func (h *AuthHandler) Logout(c *fiber.Ctx) error {
	if err := h.authService.Logout(c.UserContext(), middleware.GetClaims(c)); err != nil {
		return respondError(c, h.log, err)
	}
	h.setCookie(c, "", time.Unix(0, 0))
	return c.JSON(dto.SuccessResponse{OK: true})
}

func (h *AuthHandler) setCookie(c *fiber.Ctx, value string, expires time.Time) {
	c.Cookie(&fiber.Cookie{
		Name:     h.cookieName,
		Value:    value,
		Path:     "/",
		Expires:  expires,
		HTTPOnly: true,
		Secure:   h.cookieSecure,
		SameSite: fiber.CookieSameSiteLaxMode,
	})
}
