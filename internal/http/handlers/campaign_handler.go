package handlers

import (
	"os"
	"path/filepath"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/jobboard/campaign-portal/internal/apperrors"
	"github.com/jobboard/campaign-portal/internal/http/dto"
	"github.com/jobboard/campaign-portal/internal/middleware"
	"github.com/jobboard/campaign-portal/internal/services"
	"go.uber.org/zap"
)

// CampaignHandler serves all three portals. What a caller may see or do is
// decided by the services from the session's portal.
type CampaignHandler struct {
	campaignService *services.CampaignService
	workflow        *services.WorkflowService
	maxUploadBytes  int64
	log             *zap.Logger
}

func NewCampaignHandler(campaignService *services.CampaignService, workflow *services.WorkflowService, maxUploadBytes int64, log *zap.Logger) *CampaignHandler {
	return &CampaignHandler{
		campaignService: campaignService,
		workflow:        workflow,
		maxUploadBytes:  maxUploadBytes,
		log:             log,
	}
}

func (h *CampaignHandler) ListCampaigns(c *fiber.Ctx) error {
	in := services.ListCampaignsInput{Limit: 50}
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 200 {
			in.Limit = n
		}
	}
	if v := c.Query("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			in.Offset = n
		}
	}
	if v := c.Query("status"); v != "" {
		in.Status = &v
	}

	campaigns, err := h.campaignService.List(c.UserContext(), middleware.GetUser(c), in)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: campaigns})
}

func (h *CampaignHandler) CreateCampaign(c *fiber.Ctx) error {
	var req dto.CreateCampaignRequest
	if err := c.BodyParser(&req); err != nil {
		return respondError(c, h.log, apperrors.Validation("invalid request"))
	}
	agencyID, err := uuid.Parse(req.AgencyID)
	if err != nil {
		return respondError(c, h.log, apperrors.Validation("invalid agency_id"))
	}

	campaign, err := h.campaignService.Create(c.UserContext(), middleware.GetUser(c), services.CreateCampaignInput{
		CustomerName:  req.CustomerName,
		CustomerEmail: req.CustomerEmail,
		CampaignType:  req.CampaignType,
		AgencyID:      agencyID,
		AssetDeadline: req.AssetDeadline,
		GoLiveDate:    req.GoLiveDate,
		CSOwnerEmail:  req.CSOwnerEmail,
	})
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.Status(fiber.StatusCreated).JSON(dto.SuccessResponse{OK: true, Data: campaign})
}

// GetCampaign returns the campaign with its assets and activity. Customer and
// agency views apply the auto-transition they are waiting on.
func (h *CampaignHandler) GetCampaign(c *fiber.Ctx) error {
	id, err := paramUUID(c, "id")
	if err != nil {
		return respondError(c, h.log, err)
	}
	detail, err := h.campaignService.Detail(c.UserContext(), middleware.GetUser(c), id)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(detail)
}

func (h *CampaignHandler) ListAgencies(c *fiber.Ctx) error {
	agencies, err := h.campaignService.ListAgencies(c.UserContext(), middleware.GetUser(c))
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: agencies})
}

func (h *CampaignHandler) AssetURL(c *fiber.Ctx) error {
	id, err := paramUUID(c, "id")
	if err != nil {
		return respondError(c, h.log, err)
	}
	assetID, err := paramUUID(c, "assetId")
	if err != nil {
		return respondError(c, h.log, err)
	}
	url, expiresAt, err := h.campaignService.AssetURL(c.UserContext(), middleware.GetUser(c), id, assetID)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(dto.DownloadURLResponse{URL: url, ExpiresAt: expiresAt})
}

// Workflow actions

type workflowAction func(c *fiber.Ctx, id uuid.UUID) (*services.TransitionResult, error)

func (h *CampaignHandler) action(fn workflowAction) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := paramUUID(c, "id")
		if err != nil {
			return respondError(c, h.log, err)
		}
		res, err := fn(c, id)
		if err != nil {
			return respondError(c, h.log, err)
		}
		return c.JSON(res)
	}
}

func (h *CampaignHandler) StartDraft(c *fiber.Ctx) error {
	return h.action(func(c *fiber.Ctx, id uuid.UUID) (*services.TransitionResult, error) {
		return h.workflow.StartDraft(c.UserContext(), middleware.GetUser(c), id)
	})(c)
}

func (h *CampaignHandler) StartReview(c *fiber.Ctx) error {
	return h.action(func(c *fiber.Ctx, id uuid.UUID) (*services.TransitionResult, error) {
		return h.workflow.StartReview(c.UserContext(), middleware.GetUser(c), id)
	})(c)
}

func (h *CampaignHandler) Approve(c *fiber.Ctx) error {
	return h.action(func(c *fiber.Ctx, id uuid.UUID) (*services.TransitionResult, error) {
		return h.workflow.Approve(c.UserContext(), middleware.GetUser(c), id)
	})(c)
}

func (h *CampaignHandler) RequestChanges(c *fiber.Ctx) error {
	return h.action(func(c *fiber.Ctx, id uuid.UUID) (*services.TransitionResult, error) {
		var req dto.RequestChangesRequest
		if err := c.BodyParser(&req); err != nil {
			return nil, apperrors.Validation("invalid request")
		}
		return h.workflow.RequestChanges(c.UserContext(), middleware.GetUser(c), id, req.Feedback)
	})(c)
}

func (h *CampaignHandler) MarkLive(c *fiber.Ctx) error {
	return h.action(func(c *fiber.Ctx, id uuid.UUID) (*services.TransitionResult, error) {
		return h.workflow.MarkLive(c.UserContext(), middleware.GetUser(c), id)
	})(c)
}

func (h *CampaignHandler) UploadAssets(c *fiber.Ctx) error {
	return h.action(func(c *fiber.Ctx, id uuid.UUID) (*services.TransitionResult, error) {
		files, cleanup, err := h.spoolFiles(c)
		if err != nil {
			return nil, err
		}
		defer cleanup()
		return h.workflow.UploadAssets(c.UserContext(), middleware.GetUser(c), id, files)
	})(c)
}

func (h *CampaignHandler) UploadDraft(c *fiber.Ctx) error {
	return h.action(func(c *fiber.Ctx, id uuid.UUID) (*services.TransitionResult, error) {
		files, cleanup, err := h.spoolFiles(c)
		if err != nil {
			return nil, err
		}
		defer cleanup()
		return h.workflow.UploadDraft(c.UserContext(), middleware.GetUser(c), id, files)
	})(c)
}

// spoolFiles copies the multipart "files" field to a private temp dir so the
// object store can read them after the request body is released.
func (h *CampaignHandler) spoolFiles(c *fiber.Ctx) ([]services.UploadedFile, func(), error) {
	noop := func() {}
	form, err := c.MultipartForm()
	if err != nil {
		return nil, noop, apperrors.Validation("expected multipart form with files")
	}
	headers := form.File["files"]
	if len(headers) == 0 {
		return nil, noop, apperrors.Validation("at least one file is required")
	}

	var total int64
	for _, fh := range headers {
		total += fh.Size
	}
	if h.maxUploadBytes > 0 && total > h.maxUploadBytes {
		return nil, noop, apperrors.Validation("upload exceeds %d MB", h.maxUploadBytes/(1024*1024))
	}

	dir, err := os.MkdirTemp("", "campaign-upload-*")
	if err != nil {
		return nil, noop, apperrors.Wrap(apperrors.KindInternal, err, "create upload dir")
	}
	cleanup := func() {
		if err := os.RemoveAll(dir); err != nil {
			h.log.Warn("failed to remove upload dir", zap.String("dir", dir), zap.Error(err))
		}
	}

	files := make([]services.UploadedFile, 0, len(headers))
	for i, fh := range headers {
		dst := filepath.Join(dir, strconv.Itoa(i))
		if err := c.SaveFile(fh, dst); err != nil {
			cleanup()
			return nil, noop, apperrors.Wrap(apperrors.KindInternal, err, "spool upload")
		}
		files = append(files, services.UploadedFile{
			Filename:    fh.Filename,
			Path:        dst,
			ContentType: fh.Header.Get(fiber.HeaderContentType),
			Size:        fh.Size,
		})
	}
	return files, cleanup, nil
}
