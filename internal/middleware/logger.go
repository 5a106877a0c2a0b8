package middleware

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

func LoggerMiddleware(log *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()

		err := c.Next()

		reqID, _ := c.Locals(CtxRequestID).(string)
		fields := []zap.Field{
			zap.String("request_id", reqID),
			zap.String("method", c.Method()),
			zap.String("route", c.Route().Path),
			zap.Int("status", c.Response().StatusCode()),
			zap.Duration("latency", time.Since(start)),
			zap.String("ip", c.IP()),
		}
		if t := GetTenant(c); t != nil {
			fields = append(fields, zap.String("tenant", t.Slug))
		}
		if u := GetUser(c); u != nil {
			fields = append(fields, zap.String("portal", string(u.Portal)))
		}
		log.Info("request", fields...)

		return err
	}
}
