package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jobboard/campaign-portal/internal/apperrors"
	"github.com/jobboard/campaign-portal/internal/auth"
	"github.com/jobboard/campaign-portal/internal/events"
	"github.com/jobboard/campaign-portal/internal/models"
	"github.com/jobboard/campaign-portal/internal/rbac"
	"github.com/jobboard/campaign-portal/internal/repositories"
	"github.com/jobboard/campaign-portal/internal/requestid"
	"github.com/jobboard/campaign-portal/internal/storage"
	"go.uber.org/zap"
)

const systemActorID = "system"

// edge is one arc of the state machine. Auto-transition edges
// (rbac.IsAutoTransition) return the campaign unchanged when it is already at to.
type edge struct {
	from []models.CampaignStatus
	to   models.CampaignStatus
}

var workflowEdges = map[string]edge{
	rbac.ActionUploadAssets: {
		from: []models.CampaignStatus{models.CampaignStatusCreated, models.CampaignStatusAwaitingAssets},
		to:   models.CampaignStatusAssetsUploaded,
	},
	rbac.ActionStartDraft: {
		from: []models.CampaignStatus{models.CampaignStatusAssetsUploaded, models.CampaignStatusRevisionRequested},
		to:   models.CampaignStatusDraftInProgress,
	},
	rbac.ActionSubmitDraft: {
		from: []models.CampaignStatus{models.CampaignStatusDraftInProgress},
		to:   models.CampaignStatusDraftSubmitted,
	},
	rbac.ActionStartReview: {
		from: []models.CampaignStatus{models.CampaignStatusDraftSubmitted},
		to:   models.CampaignStatusCustomerReview,
	},
	rbac.ActionApprove: {
		from: []models.CampaignStatus{models.CampaignStatusCustomerReview},
		to:   models.CampaignStatusApproved,
	},
	rbac.ActionRequestChanges: {
		from: []models.CampaignStatus{models.CampaignStatusCustomerReview},
		to:   models.CampaignStatusRevisionRequested,
	},
	rbac.ActionMarkLive: {
		from: []models.CampaignStatus{models.CampaignStatusApproved},
		to:   models.CampaignStatusLive,
	},
}

type TransitionResult struct {
	Campaign *models.Campaign `json:"campaign"`
	// Applied is false when an idempotent edge found the campaign already at its target.
	Applied bool `json:"applied"`
}

// UploadedFile is a file already spooled to local disk by the transport layer.
type UploadedFile struct {
	Filename    string
	Path        string
	ContentType string
	Size        int64
}

type actor struct {
	role models.Role
	id   string
	// triggeredBy is set on system transitions caused by a user action.
	triggeredBy *auth.AuthUser
}

func userActor(u *auth.AuthUser) actor { return actor{role: u.Portal, id: u.Email} }

func systemActor(trigger *auth.AuthUser) actor {
	return actor{role: models.RoleSystem, id: systemActorID, triggeredBy: trigger}
}

type transitionOpts struct {
	setFeedback bool
	feedback    *string
	assets      []*models.CampaignAsset
	detail      map[string]any
	guard       func(c *models.Campaign) error
}

// WorkflowService is the campaign state machine. Every mutation goes through
// a conditional update keyed on the status it validated against, writes one
// activity row and publishes one event.
type WorkflowService struct {
	campaigns CampaignStore
	objects   storage.ObjectStore
	publisher events.Publisher
	now       func() time.Time
	log       *zap.Logger
}

func NewWorkflowService(campaigns CampaignStore, objects storage.ObjectStore, publisher events.Publisher, log *zap.Logger) *WorkflowService {
	return &WorkflowService{
		campaigns: campaigns,
		objects:   objects,
		publisher: publisher,
		now:       time.Now,
		log:       log,
	}
}

func containsStatus(list []models.CampaignStatus, s models.CampaignStatus) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// transition validates and performs one edge of the state machine.
func (s *WorkflowService) transition(ctx context.Context, c *models.Campaign, a actor, action string, opts transitionOpts) (*TransitionResult, error) {
	e, ok := workflowEdges[action]
	if !ok {
		return nil, apperrors.New(apperrors.KindInternal, "unknown workflow action %q", action)
	}
	if !rbac.HasPermission(a.role, action) {
		return nil, apperrors.InvalidTransition("%s cannot %s", a.role, action)
	}
	idempotent := rbac.IsAutoTransition(action)
	if idempotent && c.Status == e.to {
		return &TransitionResult{Campaign: c}, nil
	}
	if !containsStatus(e.from, c.Status) || !models.IsValidTransition(c.Status, e.to) {
		return nil, apperrors.InvalidTransition("cannot %s while campaign is %s", action, c.Status)
	}
	if opts.guard != nil {
		if err := opts.guard(c); err != nil {
			return nil, err
		}
	}

	detail := map[string]any{"action": action, "from": string(c.Status), "to": string(e.to)}
	for k, v := range opts.detail {
		detail[k] = v
	}
	if a.triggeredBy != nil {
		detail["triggered_by"] = a.triggeredBy.Email
		detail["triggered_by_role"] = string(a.triggeredBy.Portal)
	}

	updated, err := s.campaigns.Transition(ctx, repositories.Transition{
		TenantID:    c.TenantID,
		CampaignID:  c.ID,
		From:        []models.CampaignStatus{c.Status},
		To:          e.to,
		SetFeedback: opts.setFeedback,
		Feedback:    opts.feedback,
		Assets:      opts.assets,
		Activity: models.CampaignActivity{
			ActorRole: a.role,
			ActorID:   a.id,
			Action:    models.ActivityStatusChanged,
			Detail:    detail,
		},
	})
	if errors.Is(err, repositories.ErrStaleStatus) {
		current, gerr := s.campaigns.GetByID(ctx, c.TenantID, c.ID)
		if gerr != nil {
			return nil, storeErr(gerr, "campaign")
		}
		if idempotent && current.Status == e.to {
			return &TransitionResult{Campaign: current}, nil
		}
		return nil, apperrors.InvalidTransition("campaign moved to %s before %s could apply", current.Status, action)
	}
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindInternal, err, "apply %s", action)
	}

	s.log.Info("campaign transition",
		requestid.Field(ctx),
		zap.String("campaign_id", updated.ID.String()),
		zap.String("action", action),
		zap.String("from", string(c.Status)),
		zap.String("to", string(updated.Status)),
		zap.String("actor_role", string(a.role)),
	)
	s.publish(ctx, updated, events.EventStatusChanged, detail)
	return &TransitionResult{Campaign: updated, Applied: true}, nil
}

// publish is best-effort: a lost realtime event never fails the mutation.
func (s *WorkflowService) publish(ctx context.Context, c *models.Campaign, eventType string, payload map[string]any) {
	p := map[string]any{"status": string(c.Status)}
	for k, v := range payload {
		p[k] = v
	}
	err := s.publisher.Publish(ctx, events.CampaignChannel, events.Event{
		TenantID:   c.TenantID,
		CampaignID: c.ID,
		Type:       eventType,
		Payload:    p,
		At:         s.now().UTC(),
	})
	if err != nil {
		s.log.Warn("failed to publish campaign event",
			requestid.Field(ctx),
			zap.String("campaign_id", c.ID.String()),
			zap.String("type", eventType),
			zap.Error(err))
	}
}

func (s *WorkflowService) storeFiles(ctx context.Context, c *models.Campaign, kind models.AssetKind, user *auth.AuthUser, files []UploadedFile) ([]*models.CampaignAsset, error) {
	assets := make([]*models.CampaignAsset, 0, len(files))
	for _, f := range files {
		name := strings.TrimSpace(f.Filename)
		if name == "" {
			return nil, apperrors.Validation("file name is required")
		}
		contentType := f.ContentType
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		obj, err := s.objects.Upload(ctx, storage.ObjectKey(c.TenantID, c.ID, string(kind), name), f.Path, contentType)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.KindInternal, err, "store %s", name)
		}
		assets = append(assets, &models.CampaignAsset{
			Kind:         kind,
			Filename:     name,
			StorageKey:   obj.Key,
			ContentType:  contentType,
			SizeBytes:    f.Size,
			UploaderRole: user.Portal,
			UploadedBy:   user.Email,
		})
	}
	return assets, nil
}

// UploadAssets stores customer brand material. The first upload moves the
// campaign to assets_uploaded; later uploads before drafting only add files.
func (s *WorkflowService) UploadAssets(ctx context.Context, user *auth.AuthUser, campaignID uuid.UUID, files []UploadedFile) (*TransitionResult, error) {
	if len(files) == 0 {
		return nil, apperrors.Validation("at least one file is required")
	}
	c, err := loadCampaign(ctx, s.campaigns, user, campaignID)
	if err != nil {
		return nil, err
	}
	if !rbac.HasPermission(user.Portal, rbac.ActionUploadAssets) {
		return nil, apperrors.InvalidTransition("%s cannot %s", user.Portal, rbac.ActionUploadAssets)
	}
	if !containsStatus(workflowEdges[rbac.ActionUploadAssets].from, c.Status) && c.Status != models.CampaignStatusAssetsUploaded {
		return nil, apperrors.InvalidTransition("assets cannot be uploaded while campaign is %s", c.Status)
	}

	assets, err := s.storeFiles(ctx, c, models.AssetKindAsset, user, files)
	if err != nil {
		return nil, err
	}

	// A concurrent first upload can move the campaign under us; retry once as an add.
	for attempt := 0; attempt < 2; attempt++ {
		if c.Status != models.CampaignStatusAssetsUploaded {
			res, err := s.transition(ctx, c, userActor(user), rbac.ActionUploadAssets, transitionOpts{
				assets: assets,
				detail: map[string]any{"files": len(assets)},
			})
			if apperrors.KindOf(err) == apperrors.KindInvalidTransition && attempt == 0 {
				if c, err = loadCampaign(ctx, s.campaigns, user, campaignID); err != nil {
					return nil, err
				}
				continue
			}
			return res, err
		}

		res, err := s.addAssets(ctx, c, user, assets)
		if errors.Is(err, repositories.ErrStaleStatus) && attempt == 0 {
			if c, err = loadCampaign(ctx, s.campaigns, user, campaignID); err != nil {
				return nil, err
			}
			continue
		}
		if errors.Is(err, repositories.ErrStaleStatus) {
			return nil, apperrors.InvalidTransition("assets cannot be uploaded while campaign is %s", c.Status)
		}
		return res, err
	}
	return nil, apperrors.InvalidTransition("assets cannot be uploaded while campaign is %s", c.Status)
}

func (s *WorkflowService) addAssets(ctx context.Context, c *models.Campaign, user *auth.AuthUser, assets []*models.CampaignAsset) (*TransitionResult, error) {
	detail := map[string]any{"files": len(assets), "kind": string(models.AssetKindAsset)}
	updated, err := s.campaigns.Transition(ctx, repositories.Transition{
		TenantID:   c.TenantID,
		CampaignID: c.ID,
		From:       []models.CampaignStatus{models.CampaignStatusAssetsUploaded},
		Assets:     assets,
		Activity: models.CampaignActivity{
			ActorRole: user.Portal,
			ActorID:   user.Email,
			Action:    models.ActivityAssetsAdded,
			Detail:    detail,
		},
	})
	if err != nil {
		if errors.Is(err, repositories.ErrStaleStatus) {
			return nil, err
		}
		return nil, apperrors.Wrap(apperrors.KindInternal, err, "add assets")
	}
	s.publish(ctx, updated, events.EventAssetsUploaded, detail)
	return &TransitionResult{Campaign: updated, Applied: true}, nil
}

// UploadDraft stores the agency deliverable and submits it. If the agency has
// not formally started the draft yet, the start-draft edge is applied first.
func (s *WorkflowService) UploadDraft(ctx context.Context, user *auth.AuthUser, campaignID uuid.UUID, files []UploadedFile) (*TransitionResult, error) {
	if len(files) == 0 {
		return nil, apperrors.Validation("at least one file is required")
	}
	c, err := loadCampaign(ctx, s.campaigns, user, campaignID)
	if err != nil {
		return nil, err
	}
	if !rbac.HasPermission(user.Portal, rbac.ActionSubmitDraft) {
		return nil, apperrors.InvalidTransition("%s cannot %s", user.Portal, rbac.ActionSubmitDraft)
	}

	if containsStatus(workflowEdges[rbac.ActionStartDraft].from, c.Status) {
		res, err := s.transition(ctx, c, systemActor(user), rbac.ActionStartDraft, transitionOpts{})
		if err != nil {
			return nil, err
		}
		c = res.Campaign
	}
	if c.Status != models.CampaignStatusDraftInProgress {
		return nil, apperrors.InvalidTransition("drafts cannot be uploaded while campaign is %s", c.Status)
	}

	assets, err := s.storeFiles(ctx, c, models.AssetKindDraft, user, files)
	if err != nil {
		return nil, err
	}
	return s.transition(ctx, c, userActor(user), rbac.ActionSubmitDraft, transitionOpts{
		assets: assets,
		detail: map[string]any{"files": len(assets)},
	})
}

func (s *WorkflowService) StartDraft(ctx context.Context, user *auth.AuthUser, campaignID uuid.UUID) (*TransitionResult, error) {
	c, err := loadCampaign(ctx, s.campaigns, user, campaignID)
	if err != nil {
		return nil, err
	}
	return s.transition(ctx, c, userActor(user), rbac.ActionStartDraft, transitionOpts{})
}

func (s *WorkflowService) StartReview(ctx context.Context, user *auth.AuthUser, campaignID uuid.UUID) (*TransitionResult, error) {
	c, err := loadCampaign(ctx, s.campaigns, user, campaignID)
	if err != nil {
		return nil, err
	}
	return s.transition(ctx, c, userActor(user), rbac.ActionStartReview, transitionOpts{})
}

// beginReview applies the start-review auto-transition when the customer acts
// on a draft it has not formally opened.
func (s *WorkflowService) beginReview(ctx context.Context, user *auth.AuthUser, c *models.Campaign) (*models.Campaign, error) {
	if c.Status != models.CampaignStatusDraftSubmitted {
		return c, nil
	}
	res, err := s.transition(ctx, c, systemActor(user), rbac.ActionStartReview, transitionOpts{})
	if err != nil {
		return nil, err
	}
	return res.Campaign, nil
}

func (s *WorkflowService) Approve(ctx context.Context, user *auth.AuthUser, campaignID uuid.UUID) (*TransitionResult, error) {
	c, err := loadCampaign(ctx, s.campaigns, user, campaignID)
	if err != nil {
		return nil, err
	}
	if !rbac.HasPermission(user.Portal, rbac.ActionApprove) {
		return nil, apperrors.InvalidTransition("%s cannot %s", user.Portal, rbac.ActionApprove)
	}
	if c, err = s.beginReview(ctx, user, c); err != nil {
		return nil, err
	}
	return s.transition(ctx, c, userActor(user), rbac.ActionApprove, transitionOpts{setFeedback: true})
}

func (s *WorkflowService) RequestChanges(ctx context.Context, user *auth.AuthUser, campaignID uuid.UUID, feedback string) (*TransitionResult, error) {
	feedback = strings.TrimSpace(feedback)
	if feedback == "" {
		return nil, apperrors.Validation("feedback is required")
	}
	c, err := loadCampaign(ctx, s.campaigns, user, campaignID)
	if err != nil {
		return nil, err
	}
	if !rbac.HasPermission(user.Portal, rbac.ActionRequestChanges) {
		return nil, apperrors.InvalidTransition("%s cannot %s", user.Portal, rbac.ActionRequestChanges)
	}
	if c, err = s.beginReview(ctx, user, c); err != nil {
		return nil, err
	}
	return s.transition(ctx, c, userActor(user), rbac.ActionRequestChanges, transitionOpts{
		setFeedback: true,
		feedback:    &feedback,
		detail:      map[string]any{"feedback": feedback},
	})
}

func (s *WorkflowService) MarkLive(ctx context.Context, user *auth.AuthUser, campaignID uuid.UUID) (*TransitionResult, error) {
	c, err := loadCampaign(ctx, s.campaigns, user, campaignID)
	if err != nil {
		return nil, err
	}
	return s.transition(ctx, c, userActor(user), rbac.ActionMarkLive, transitionOpts{
		guard: func(c *models.Campaign) error {
			if s.now().Before(c.GoLiveDate) {
				return apperrors.New(apperrors.KindPrematureGoLive,
					"campaign cannot go live before %s", c.GoLiveDate.UTC().Format(time.RFC3339))
			}
			return nil
		},
	})
}

// Observe applies the auto-transition the viewing party is waiting on: an
// agency looking at a campaign ready for drafting starts the draft, a customer
// looking at a submitted draft starts the review. A lost race is not an error.
func (s *WorkflowService) Observe(ctx context.Context, user *auth.AuthUser, c *models.Campaign) (*models.Campaign, error) {
	var action string
	switch {
	case user.Portal == models.RoleAgency && containsStatus(workflowEdges[rbac.ActionStartDraft].from, c.Status):
		action = rbac.ActionStartDraft
	case user.Portal == models.RoleCustomer && c.Status == models.CampaignStatusDraftSubmitted:
		action = rbac.ActionStartReview
	default:
		return c, nil
	}

	res, err := s.transition(ctx, c, systemActor(user), action, transitionOpts{})
	if apperrors.KindOf(err) == apperrors.KindInvalidTransition {
		s.log.Debug("auto-transition skipped", zap.String("campaign_id", c.ID.String()), zap.Error(err))
		return loadCampaign(ctx, s.campaigns, user, c.ID)
	}
	if err != nil {
		return nil, err
	}
	return res.Campaign, nil
}
