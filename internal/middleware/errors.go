package middleware

import (
	"github.com/gofiber/fiber/v2"
	"github.com/jobboard/campaign-portal/internal/apperrors"
)

// abort ends the request with the same error body the handlers use.
func abort(c *fiber.Ctx, kind apperrors.Kind, msg string) error {
	reqID, _ := c.Locals(CtxRequestID).(string)
	return c.Status(apperrors.HTTPStatus(kind)).JSON(fiber.Map{
		"error":      msg,
		"code":       string(kind),
		"request_id": reqID,
	})
}
