package middleware

import (
	"context"
	"errors"
	"net"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/jobboard/campaign-portal/internal/apperrors"
	"github.com/jobboard/campaign-portal/internal/models"
	"github.com/jobboard/campaign-portal/internal/repositories"
	"go.uber.org/zap"
)

const (
	CtxTenant = "tenant"

	TenantHeader = "X-Tenant"
)

type TenantLookup interface {
	GetByDomain(ctx context.Context, domain string) (*models.Tenant, error)
	GetBySlug(ctx context.Context, slug string) (*models.Tenant, error)
}

func hostOnly(host string) string {
	host = strings.ToLower(strings.TrimSpace(host))
	if h, _, err := net.SplitHostPort(host); err == nil {
		return h
	}
	return host
}

// TenantMiddleware resolves the tenant from the request host. With
// allowOverride the X-Tenant header selects a tenant by slug instead.
func TenantMiddleware(tenants TenantLookup, allowOverride bool, log *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var (
			tenant *models.Tenant
			err    error
		)
		if slug := strings.TrimSpace(c.Get(TenantHeader)); allowOverride && slug != "" {
			tenant, err = tenants.GetBySlug(c.UserContext(), strings.ToLower(slug))
		} else {
			tenant, err = tenants.GetByDomain(c.UserContext(), hostOnly(c.Hostname()))
		}
		if errors.Is(err, repositories.ErrNotFound) {
			return abort(c, apperrors.KindNotFound, "unknown tenant")
		}
		if err != nil {
			log.Error("tenant lookup failed", zap.String("host", c.Hostname()), zap.Error(err))
			return abort(c, apperrors.KindInternal, "internal error")
		}

		c.Locals(CtxTenant, tenant)
		return c.Next()
	}
}

func GetTenant(c *fiber.Ctx) *models.Tenant {
	t, _ := c.Locals(CtxTenant).(*models.Tenant)
	return t
}
