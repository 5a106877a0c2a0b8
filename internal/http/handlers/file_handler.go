package handlers

import (
	"errors"
	"fmt"
	"os"

	"github.com/gofiber/fiber/v2"
	"github.com/jobboard/campaign-portal/internal/apperrors"
	"github.com/jobboard/campaign-portal/internal/storage"
	"go.uber.org/zap"
)

type FileHandler struct {
	store *storage.LocalStore
	log   *zap.Logger
}

func NewFileHandler(store *storage.LocalStore, log *zap.Logger) *FileHandler {
	return &FileHandler{store: store, log: log}
}

// Download streams the object named by a signed download token. The token
// is the only credential.
func (h *FileHandler) Download(c *fiber.Ctx) error {
	f, filename, contentType, err := h.store.Open(c.Params("token"))
	if errors.Is(err, os.ErrNotExist) {
		return respondError(c, h.log, apperrors.NotFound("file not found"))
	}
	if err != nil {
		h.log.Debug("download rejected", zap.Error(err))
		return respondError(c, h.log, apperrors.Unauthorized())
	}

	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return respondError(c, h.log, apperrors.Wrap(apperrors.KindInternal, err, "stat file"))
	}

	c.Set(fiber.HeaderContentType, contentType)
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", filename))
	c.Set(fiber.HeaderCacheControl, "private, no-store")
	// fasthttp closes the file once the body is written
	return c.SendStream(f, int(info.Size()))
}
