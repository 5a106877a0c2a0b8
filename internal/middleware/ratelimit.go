package middleware

import (
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/jobboard/campaign-portal/internal/apperrors"
	"github.com/jobboard/campaign-portal/internal/requestid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// KeyFunc names the bucket a request is counted against.
type KeyFunc func(c *fiber.Ctx) string

// ByRouteAndIP keys on the route pattern, not the concrete path, so path
// parameters such as tokens share one bucket.
func ByRouteAndIP(c *fiber.Ctx) string {
	return fmt.Sprintf("rl:%s:%s", c.Route().Path, c.IP())
}

// ByTenantAndIP counts requests per scope, tenant and client address.
func ByTenantAndIP(scope string) KeyFunc {
	return func(c *fiber.Ctx) string {
		tenant := "-"
		if t := GetTenant(c); t != nil {
			tenant = t.ID.String()
		}
		return fmt.Sprintf("rl:%s:%s:%s", scope, tenant, c.IP())
	}
}

func RateLimitMiddleware(rdb *redis.Client, limit int, window time.Duration, key KeyFunc, log *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		k := key(c)

		ctx := c.UserContext()
		count, err := rdb.Incr(ctx, k).Result()
		if err != nil {
			log.Warn("rate limiter unavailable", requestid.Field(ctx), zap.Error(err))
			return c.Next() // fail open
		}

		if count == 1 {
			rdb.Expire(ctx, k, window)
		}

		if count > int64(limit) {
			c.Set(fiber.HeaderRetryAfter, fmt.Sprintf("%d", int(window.Seconds())))
			return abort(c, apperrors.KindRateLimited, "rate limit exceeded")
		}

		return c.Next()
	}
}
