package middleware

import (
	"context"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/jobboard/campaign-portal/internal/apperrors"
	"github.com/jobboard/campaign-portal/internal/auth"
	"github.com/jobboard/campaign-portal/internal/models"
	"go.uber.org/zap"
)

const (
	CtxUser   = "user"
	CtxClaims = "session_claims"
)

type SessionVerifier interface {
	VerifySession(ctx context.Context, token string) (*auth.AuthUser, *auth.Claims, error)
}

// SessionToken reads the bearer token, falling back to the session cookie.
func SessionToken(c *fiber.Ctx, cookieName string) string {
	if h := c.Get(fiber.HeaderAuthorization); h != "" {
		if token := strings.TrimPrefix(h, "Bearer "); token != h {
			return strings.TrimSpace(token)
		}
		return ""
	}
	return c.Cookies(cookieName)
}

// AuthMiddleware requires a valid session issued for the request's tenant.
func AuthMiddleware(sessions SessionVerifier, cookieName string, log *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := SessionToken(c, cookieName)
		if token == "" {
			return abort(c, apperrors.KindUnauthorized, "missing session")
		}

		user, claims, err := sessions.VerifySession(c.UserContext(), token)
		if err != nil {
			return abort(c, apperrors.KindUnauthorized, "invalid or expired session")
		}
		if tenant := GetTenant(c); tenant != nil && tenant.ID != user.TenantID {
			log.Debug("session used on another tenant",
				zap.String("session_tenant", user.TenantID.String()),
				zap.String("request_tenant", tenant.ID.String()))
			return abort(c, apperrors.KindForbidden, "session belongs to another tenant")
		}

		c.Locals(CtxUser, user)
		c.Locals(CtxClaims, claims)
		return c.Next()
	}
}

// RequirePortal gates a route group to the given portals.
func RequirePortal(portals ...models.Role) fiber.Handler {
	return func(c *fiber.Ctx) error {
		user := GetUser(c)
		if user == nil {
			return abort(c, apperrors.KindUnauthorized, "missing session")
		}
		for _, p := range portals {
			if user.Portal == p {
				return c.Next()
			}
		}
		return abort(c, apperrors.KindForbidden, "portal not allowed")
	}
}

func GetUser(c *fiber.Ctx) *auth.AuthUser {
	u, _ := c.Locals(CtxUser).(*auth.AuthUser)
	return u
}

func GetClaims(c *fiber.Ctx) *auth.Claims {
	cl, _ := c.Locals(CtxClaims).(*auth.Claims)
	return cl
}
