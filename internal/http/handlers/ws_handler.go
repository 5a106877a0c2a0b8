package handlers

import (
	"context"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/jobboard/campaign-portal/internal/middleware"
	"github.com/jobboard/campaign-portal/internal/models"
	"github.com/jobboard/campaign-portal/internal/realtime"
	"go.uber.org/zap"
)

const (
	localsWSToken  = "ws_token"
	localsWSTenant = "ws_tenant"
)

type WSHandler struct {
	hub        *realtime.Hub
	sessions   middleware.SessionVerifier
	cookieName string
	ctx        context.Context
	log        *zap.Logger
}

// NewWSHandler serves hub connections until ctx ends.
func NewWSHandler(ctx context.Context, hub *realtime.Hub, sessions middleware.SessionVerifier, cookieName string, log *zap.Logger) *WSHandler {
	return &WSHandler{hub: hub, sessions: sessions, cookieName: cookieName, ctx: ctx, log: log}
}

// Upgrade checks for a websocket upgrade and captures the credentials, which
// are no longer reachable from the hijacked connection.
func (h *WSHandler) Upgrade(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}
	token := c.Query("token")
	if token == "" {
		token = middleware.SessionToken(c, h.cookieName)
	}
	c.Locals(localsWSToken, token)
	c.Locals(localsWSTenant, middleware.GetTenant(c))
	return c.Next()
}

func (h *WSHandler) Handle(conn *websocket.Conn) {
	token, _ := conn.Locals(localsWSToken).(string)
	tenant, _ := conn.Locals(localsWSTenant).(*models.Tenant)

	user, _, err := h.sessions.VerifySession(h.ctx, token)
	if err != nil || tenant == nil {
		h.closeWith(conn, realtime.CloseUnauthenticated, "unauthenticated")
		return
	}
	if user.TenantID != tenant.ID {
		h.closeWith(conn, realtime.CloseTenantMismatch, "tenant mismatch")
		return
	}

	h.log.Debug("websocket connected",
		zap.String("tenant", tenant.Slug),
		zap.String("portal", string(user.Portal)))
	h.hub.Serve(h.ctx, conn, *user)
}

func (h *WSHandler) closeWith(conn *websocket.Conn, code int, reason string) {
	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason))
	_ = conn.Close()
}
