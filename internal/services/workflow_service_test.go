package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jobboard/campaign-portal/internal/apperrors"
	"github.com/jobboard/campaign-portal/internal/auth"
	"github.com/jobboard/campaign-portal/internal/events"
	"github.com/jobboard/campaign-portal/internal/models"
	"github.com/jobboard/campaign-portal/internal/rbac"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkflowEdgesMatchStatusTable(t *testing.T) {
	for action, e := range workflowEdges {
		for _, from := range e.from {
			assert.True(t, models.IsValidTransition(from, e.to), "%s: %s -> %s not in status table", action, from, e.to)
		}
	}
	assert.True(t, rbac.IsAutoTransition(rbac.ActionStartDraft))
	assert.True(t, rbac.IsAutoTransition(rbac.ActionStartReview))
	assert.False(t, rbac.IsAutoTransition(rbac.ActionApprove))
}

func TestWorkflowHappyPath(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	c, err := env.campaign.Create(ctx, env.cs(), CreateCampaignInput{
		CustomerName:  "Dana",
		CustomerEmail: "Dana@Example.com",
		CampaignType:  "featured_listing",
		AgencyID:      env.agency.ID,
		AssetDeadline: env.now.Add(7 * 24 * time.Hour),
		GoLiveDate:    env.now.Add(10 * 24 * time.Hour),
	})
	require.NoError(t, err)
	require.Equal(t, models.CampaignStatusAwaitingAssets, c.Status)
	require.Equal(t, "dana@example.com", c.CustomerEmail)
	customer := env.customer("dana@example.com")

	res, err := env.workflow.UploadAssets(ctx, customer, c.ID, oneFile("logo.png"))
	require.NoError(t, err)
	assert.True(t, res.Applied)
	assert.Equal(t, models.CampaignStatusAssetsUploaded, res.Campaign.Status)

	detail, err := env.campaign.Detail(ctx, env.agencyUser(), c.ID)
	require.NoError(t, err)
	assert.Equal(t, models.CampaignStatusDraftInProgress, detail.Campaign.Status, "agency view starts the draft")
	assert.Len(t, detail.Assets, 1)
	assert.Nil(t, detail.Notifications, "ledger is cs-only")

	res, err = env.workflow.UploadDraft(ctx, env.agencyUser(), c.ID, oneFile("draft-v1.pdf"))
	require.NoError(t, err)
	assert.Equal(t, models.CampaignStatusDraftSubmitted, res.Campaign.Status)

	detail, err = env.campaign.Detail(ctx, customer, c.ID)
	require.NoError(t, err)
	assert.Equal(t, models.CampaignStatusCustomerReview, detail.Campaign.Status, "customer view starts the review")

	res, err = env.workflow.Approve(ctx, customer, c.ID)
	require.NoError(t, err)
	assert.Equal(t, models.CampaignStatusApproved, res.Campaign.Status)

	_, err = env.workflow.MarkLive(ctx, env.cs(), c.ID)
	assert.ErrorIs(t, err, apperrors.ErrPrematureGoLive)
	assert.Equal(t, models.CampaignStatusApproved, env.campaigns.status(c.ID))

	env.now = c.GoLiveDate
	res, err = env.workflow.MarkLive(ctx, env.cs(), c.ID)
	require.NoError(t, err)
	assert.Equal(t, models.CampaignStatusLive, res.Campaign.Status)

	// created + 6 status changes, one broadcast each
	assert.Equal(t, 7, env.activity.count(c.ID, ""))
	assert.Equal(t, 6, env.activity.count(c.ID, models.ActivityStatusChanged))
	assert.Len(t, env.publisher.forCampaign(c.ID), 7)
}

func TestUploadAssetsScenario(t *testing.T) {
	env := newTestEnv(t)
	c := env.seed(models.CampaignStatusAwaitingAssets)

	res, err := env.workflow.UploadAssets(context.Background(), env.customer("customer@example.com"), c.ID, oneFile("brand.zip"))
	require.NoError(t, err)
	assert.Equal(t, models.CampaignStatusAssetsUploaded, res.Campaign.Status)
	assert.Equal(t, 1, env.activity.count(c.ID, ""))

	evs := env.publisher.forCampaign(c.ID)
	require.Len(t, evs, 1)
	assert.Equal(t, events.EventStatusChanged, evs[0].Type)
	assert.Equal(t, c.TenantID, evs[0].TenantID)

	require.Len(t, env.objects.keys, 1)
	assert.Contains(t, env.objects.keys[0], "/campaigns/"+c.ID.String()+"/asset/")

	// Asset deadline is exactly 7 days away, but the campaign left awaiting_assets.
	stats, err := env.reminders.Sweep(context.Background(), env.now)
	require.NoError(t, err)
	assert.Zero(t, stats.Sent)
	assert.Nil(t, env.notifications.get(c.ID, models.AssetReminderType(7)))
}

func TestUploadAssetsAfterFirstUploadAddsFiles(t *testing.T) {
	env := newTestEnv(t)
	c := env.seed(models.CampaignStatusAssetsUploaded)

	res, err := env.workflow.UploadAssets(context.Background(), env.customer("customer@example.com"), c.ID, oneFile("more.png"))
	require.NoError(t, err)
	assert.Equal(t, models.CampaignStatusAssetsUploaded, res.Campaign.Status)
	assert.Equal(t, 1, env.activity.count(c.ID, models.ActivityAssetsAdded))
	assert.Equal(t, events.EventAssetsUploaded, env.publisher.forCampaign(c.ID)[0].Type)
}

func TestUploadRequiresFiles(t *testing.T) {
	env := newTestEnv(t)
	c := env.seed(models.CampaignStatusAwaitingAssets)

	_, err := env.workflow.UploadAssets(context.Background(), env.customer("customer@example.com"), c.ID, nil)
	assert.ErrorIs(t, err, apperrors.ErrValidation)
	_, err = env.workflow.UploadDraft(context.Background(), env.agencyUser(), c.ID, nil)
	assert.ErrorIs(t, err, apperrors.ErrValidation)
}

func TestTransitionsRejectWrongRole(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	customer := env.customer("customer@example.com")

	tests := []struct {
		name   string
		status models.CampaignStatus
		call   func(id uuid.UUID) error
	}{
		{"agency uploads assets", models.CampaignStatusAwaitingAssets, func(id uuid.UUID) error {
			_, err := env.workflow.UploadAssets(ctx, env.agencyUser(), id, oneFile("a.png"))
			return err
		}},
		{"cs uploads assets", models.CampaignStatusAwaitingAssets, func(id uuid.UUID) error {
			_, err := env.workflow.UploadAssets(ctx, env.cs(), id, oneFile("a.png"))
			return err
		}},
		{"customer starts draft", models.CampaignStatusAssetsUploaded, func(id uuid.UUID) error {
			_, err := env.workflow.StartDraft(ctx, customer, id)
			return err
		}},
		{"customer uploads draft", models.CampaignStatusDraftInProgress, func(id uuid.UUID) error {
			_, err := env.workflow.UploadDraft(ctx, customer, id, oneFile("d.pdf"))
			return err
		}},
		{"agency starts review", models.CampaignStatusDraftSubmitted, func(id uuid.UUID) error {
			_, err := env.workflow.StartReview(ctx, env.agencyUser(), id)
			return err
		}},
		{"agency approves", models.CampaignStatusCustomerReview, func(id uuid.UUID) error {
			_, err := env.workflow.Approve(ctx, env.agencyUser(), id)
			return err
		}},
		{"cs approves", models.CampaignStatusCustomerReview, func(id uuid.UUID) error {
			_, err := env.workflow.Approve(ctx, env.cs(), id)
			return err
		}},
		{"agency requests changes", models.CampaignStatusCustomerReview, func(id uuid.UUID) error {
			_, err := env.workflow.RequestChanges(ctx, env.agencyUser(), id, "x")
			return err
		}},
		{"customer marks live", models.CampaignStatusApproved, func(id uuid.UUID) error {
			_, err := env.workflow.MarkLive(ctx, customer, id)
			return err
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := env.seed(tt.status)
			err := tt.call(c.ID)
			assert.ErrorIs(t, err, apperrors.ErrInvalidTransition)
			assert.Equal(t, tt.status, env.campaigns.status(c.ID), "status must not change")
			assert.Zero(t, env.activity.count(c.ID, ""))
		})
	}
}

func TestTransitionsRejectWrongSourceState(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	customer := env.customer("customer@example.com")

	tests := []struct {
		name   string
		status models.CampaignStatus
		call   func(id uuid.UUID) error
	}{
		{"upload assets while in review", models.CampaignStatusCustomerReview, func(id uuid.UUID) error {
			_, err := env.workflow.UploadAssets(ctx, customer, id, oneFile("a.png"))
			return err
		}},
		{"start draft while awaiting assets", models.CampaignStatusAwaitingAssets, func(id uuid.UUID) error {
			_, err := env.workflow.StartDraft(ctx, env.agencyUser(), id)
			return err
		}},
		{"upload draft after approval", models.CampaignStatusApproved, func(id uuid.UUID) error {
			_, err := env.workflow.UploadDraft(ctx, env.agencyUser(), id, oneFile("d.pdf"))
			return err
		}},
		{"start review before draft", models.CampaignStatusDraftInProgress, func(id uuid.UUID) error {
			_, err := env.workflow.StartReview(ctx, customer, id)
			return err
		}},
		{"approve while awaiting assets", models.CampaignStatusAwaitingAssets, func(id uuid.UUID) error {
			_, err := env.workflow.Approve(ctx, customer, id)
			return err
		}},
		{"approve twice", models.CampaignStatusApproved, func(id uuid.UUID) error {
			_, err := env.workflow.Approve(ctx, customer, id)
			return err
		}},
		{"mark live from review", models.CampaignStatusCustomerReview, func(id uuid.UUID) error {
			_, err := env.workflow.MarkLive(ctx, env.cs(), id)
			return err
		}},
		{"mark live twice", models.CampaignStatusLive, func(id uuid.UUID) error {
			_, err := env.workflow.MarkLive(ctx, env.cs(), id)
			return err
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := env.seed(tt.status)
			err := tt.call(c.ID)
			assert.ErrorIs(t, err, apperrors.ErrInvalidTransition)
			assert.Equal(t, tt.status, env.campaigns.status(c.ID))
		})
	}
}

func TestAutoTransitionsAreIdempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	c := env.seed(models.CampaignStatusAssetsUploaded)
	first, err := env.workflow.StartDraft(ctx, env.agencyUser(), c.ID)
	require.NoError(t, err)
	second, err := env.workflow.StartDraft(ctx, env.agencyUser(), c.ID)
	require.NoError(t, err)
	assert.True(t, first.Applied)
	assert.False(t, second.Applied)
	assert.Equal(t, models.CampaignStatusDraftInProgress, second.Campaign.Status)
	assert.Equal(t, 1, env.activity.count(c.ID, ""))
	assert.Len(t, env.publisher.forCampaign(c.ID), 1)

	r := env.seed(models.CampaignStatusDraftSubmitted)
	customer := env.customer("customer@example.com")
	_, err = env.workflow.StartReview(ctx, customer, r.ID)
	require.NoError(t, err)
	res, err := env.workflow.StartReview(ctx, customer, r.ID)
	require.NoError(t, err)
	assert.False(t, res.Applied)
	assert.Equal(t, 1, env.activity.count(r.ID, ""))
}

func TestConcurrentAutoTransitionAppliesOnce(t *testing.T) {
	env := newTestEnv(t)
	c := env.seed(models.CampaignStatusAssetsUploaded)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.workflow.StartDraft(context.Background(), env.agencyUser(), c.ID)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, models.CampaignStatusDraftInProgress, env.campaigns.status(c.ID))
	assert.Equal(t, 1, env.activity.count(c.ID, ""))
}

func TestStaleTransitionIsRejected(t *testing.T) {
	env := newTestEnv(t)
	c := env.seed(models.CampaignStatusCustomerReview)

	// Another request approves between our read and our write.
	env.campaigns.beforeTransition = func(stored *models.Campaign) {
		stored.Status = models.CampaignStatusApproved
		env.campaigns.beforeTransition = nil
	}

	_, err := env.workflow.RequestChanges(context.Background(), env.customer("customer@example.com"), c.ID, "fix colors")
	assert.ErrorIs(t, err, apperrors.ErrInvalidTransition)
	assert.Equal(t, models.CampaignStatusApproved, env.campaigns.status(c.ID))
	assert.Zero(t, env.activity.count(c.ID, ""))
}

func TestStaleIdempotentTransitionReturnsCurrent(t *testing.T) {
	env := newTestEnv(t)
	c := env.seed(models.CampaignStatusAssetsUploaded)

	env.campaigns.beforeTransition = func(stored *models.Campaign) {
		stored.Status = models.CampaignStatusDraftInProgress
		env.campaigns.beforeTransition = nil
	}

	res, err := env.workflow.StartDraft(context.Background(), env.agencyUser(), c.ID)
	require.NoError(t, err)
	assert.False(t, res.Applied)
	assert.Equal(t, models.CampaignStatusDraftInProgress, res.Campaign.Status)
}

func TestRequestChangesThenRedraftOnce(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	customer := env.customer("customer@example.com")
	c := env.seed(models.CampaignStatusCustomerReview)

	_, err := env.workflow.RequestChanges(ctx, customer, c.ID, "   ")
	assert.ErrorIs(t, err, apperrors.ErrValidation)

	res, err := env.workflow.RequestChanges(ctx, customer, c.ID, "fix colors")
	require.NoError(t, err)
	assert.Equal(t, models.CampaignStatusRevisionRequested, res.Campaign.Status)
	require.NotNil(t, res.Campaign.CustomerFeedback)
	assert.Equal(t, "fix colors", *res.Campaign.CustomerFeedback)

	before := env.activity.count(c.ID, "")
	for i := 0; i < 2; i++ {
		d, err := env.campaign.Detail(ctx, env.agencyUser(), c.ID)
		require.NoError(t, err)
		assert.Equal(t, models.CampaignStatusDraftInProgress, d.Campaign.Status)
	}
	assert.Equal(t, before+1, env.activity.count(c.ID, ""), "redraft must be recorded exactly once")
}

func TestApproveFromSubmittedStartsReviewFirst(t *testing.T) {
	env := newTestEnv(t)
	c := env.seed(models.CampaignStatusDraftSubmitted)
	feedback := "old note"
	env.campaigns.mu.Lock()
	env.campaigns.campaigns[c.ID].CustomerFeedback = &feedback
	env.campaigns.mu.Unlock()

	res, err := env.workflow.Approve(context.Background(), env.customer("customer@example.com"), c.ID)
	require.NoError(t, err)
	assert.Equal(t, models.CampaignStatusApproved, res.Campaign.Status)
	assert.Nil(t, res.Campaign.CustomerFeedback, "approval clears feedback")

	entries, _ := env.activity.ListByCampaign(context.Background(), c.ID, 0)
	require.Len(t, entries, 2)
	assert.Equal(t, models.RoleSystem, entries[0].ActorRole)
	assert.Equal(t, rbac.ActionStartReview, entries[0].Detail["action"])
	assert.Equal(t, "customer@example.com", entries[0].Detail["triggered_by"])
	assert.Equal(t, models.RoleCustomer, entries[1].ActorRole)
}

func TestUploadDraftFromRevisionStartsDraftFirst(t *testing.T) {
	env := newTestEnv(t)
	c := env.seed(models.CampaignStatusRevisionRequested)

	res, err := env.workflow.UploadDraft(context.Background(), env.agencyUser(), c.ID, oneFile("v2.pdf"))
	require.NoError(t, err)
	assert.Equal(t, models.CampaignStatusDraftSubmitted, res.Campaign.Status)
	assert.Equal(t, 2, env.activity.count(c.ID, models.ActivityStatusChanged))
}

func TestMarkLiveGuard(t *testing.T) {
	env := newTestEnv(t)
	c := env.seed(models.CampaignStatusApproved)

	env.now = c.GoLiveDate.Add(-time.Second)
	_, err := env.workflow.MarkLive(context.Background(), env.cs(), c.ID)
	assert.ErrorIs(t, err, apperrors.ErrPrematureGoLive)
	assert.Equal(t, apperrors.KindPrematureGoLive, apperrors.KindOf(err))

	env.now = c.GoLiveDate
	res, err := env.workflow.MarkLive(context.Background(), env.cs(), c.ID)
	require.NoError(t, err)
	assert.Equal(t, models.CampaignStatusLive, res.Campaign.Status)
}

func TestOwnershipChecks(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	c := env.seed(models.CampaignStatusCustomerReview)

	_, err := env.workflow.Approve(ctx, env.customer("someone-else@example.com"), c.ID)
	assert.ErrorIs(t, err, apperrors.ErrForbidden)

	otherAgency := &auth.AuthUser{Email: "other@agency.example.com", TenantID: env.tenant.ID, Portal: models.RoleAgency}
	_, err = env.workflow.StartDraft(ctx, otherAgency, c.ID)
	assert.ErrorIs(t, err, apperrors.ErrForbidden)

	scopedElsewhere := uuid.New()
	scoped := env.customer("customer@example.com")
	scoped.CampaignID = &scopedElsewhere
	_, err = env.workflow.Approve(ctx, scoped, c.ID)
	assert.ErrorIs(t, err, apperrors.ErrForbidden)

	foreign := &auth.AuthUser{Email: "customer@example.com", TenantID: uuid.New(), Portal: models.RoleCustomer}
	_, err = env.workflow.Approve(ctx, foreign, c.ID)
	assert.ErrorIs(t, err, apperrors.ErrNotFound, "campaigns of other tenants are invisible")

	assert.Equal(t, models.CampaignStatusCustomerReview, env.campaigns.status(c.ID))
}

func TestPublishFailureDoesNotFailTransition(t *testing.T) {
	env := newTestEnv(t)
	env.publisher.err = assert.AnError
	c := env.seed(models.CampaignStatusAssetsUploaded)

	res, err := env.workflow.StartDraft(context.Background(), env.agencyUser(), c.ID)
	require.NoError(t, err)
	assert.True(t, res.Applied)
}
