package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/jobboard/campaign-portal/internal/apperrors"
	"github.com/jobboard/campaign-portal/internal/http/dto"
	"github.com/jobboard/campaign-portal/internal/middleware"
	"go.uber.org/zap"
)

// respondError maps the error taxonomy onto HTTP. Internal errors are logged
// and never echoed.
func respondError(c *fiber.Ctx, log *zap.Logger, err error) error {
	kind := apperrors.KindOf(err)
	reqID, _ := c.Locals(middleware.CtxRequestID).(string)
	if kind == apperrors.KindInternal {
		log.Error("request failed",
			zap.String("request_id", reqID),
			zap.String("route", c.Route().Path),
			zap.Error(err))
	}
	return c.Status(apperrors.HTTPStatus(kind)).JSON(dto.ErrorResponse{
		Error:     apperrors.Message(err),
		Code:      string(kind),
		RequestID: reqID,
	})
}

func paramUUID(c *fiber.Ctx, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Params(name))
	if err != nil {
		return uuid.Nil, apperrors.Validation("invalid %s", name)
	}
	return id, nil
}
