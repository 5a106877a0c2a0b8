package services

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jobboard/campaign-portal/internal/auth"
	"github.com/jobboard/campaign-portal/internal/models"
	"go.uber.org/zap"
)

// testEnv wires every service against in-memory stores for one tenant.
type testEnv struct {
	tenant        models.Tenant
	csUser        models.User
	agency        models.Agency
	activity      *fakeActivityStore
	campaigns     *fakeCampaignStore
	notifications *fakeNotificationStore
	magicLinks    *fakeMagicLinkStore
	mailer        *fakeMailer
	publisher     *fakePublisher
	objects       *fakeObjectStore
	revocations   *fakeRevocations
	now           time.Time

	workflow  *WorkflowService
	campaign  *CampaignService
	reminders *ReminderService
	auth      *AuthService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	tenant := models.Tenant{ID: uuid.New(), Slug: "acme", Name: "Acme Jobs", Domain: "acme.example.com"}
	csUser := models.User{ID: uuid.New(), TenantID: tenant.ID, Email: "cs@acme.example.com", Name: "Casey"}
	agency := models.Agency{ID: uuid.New(), TenantID: tenant.ID, Name: "Studio North", Email: "studio@agency.example.com"}

	users := &fakeUserStore{users: []models.User{csUser}}
	agencies := &fakeAgencyStore{agencies: []models.Agency{agency}}
	activity := &fakeActivityStore{}
	campaigns := newFakeCampaignStore(activity, agencies, users)

	e := &testEnv{
		tenant:        tenant,
		csUser:        csUser,
		agency:        agency,
		activity:      activity,
		campaigns:     campaigns,
		notifications: newFakeNotificationStore(),
		magicLinks:    newFakeMagicLinkStore(),
		mailer:        &fakeMailer{},
		publisher:     &fakePublisher{},
		objects:       &fakeObjectStore{},
		revocations:   &fakeRevocations{},
		now:           time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
	}
	log := zap.NewNop()
	clock := func() time.Time { return e.now }
	e.notifications.now = clock

	e.workflow = NewWorkflowService(campaigns, e.objects, e.publisher, log)
	e.workflow.now = clock
	e.campaign = NewCampaignService(campaigns, &fakeAssetStore{campaigns: campaigns}, activity, e.notifications,
		users, agencies, e.objects, e.workflow, e.publisher, 15*time.Minute, log)
	e.reminders = NewReminderService(campaigns, e.notifications, activity, &fakeTenantStore{tenants: []models.Tenant{tenant}},
		e.mailer, e.publisher, nil, ReminderConfig{
			AppBaseURL:            "https://acme.example.com",
			AssetReminderDays:     []int{7, 3, 1},
			DraftReminderDays:     []int{7, 3, 1},
			EscalationOverdueDays: 1,
			SendTimeout:           time.Second,
			PendingLease:          10 * time.Minute,
		}, log)
	e.auth = NewAuthService(e.magicLinks, campaigns, users, agencies,
		auth.NewSessionManager("test-secret", time.Hour), e.revocations, e.mailer,
		AuthServiceConfig{AppBaseURL: "https://acme.example.com", MagicLinkTTL: time.Hour, SendTimeout: time.Second}, log)
	e.auth.now = clock
	return e
}

func (e *testEnv) cs() *auth.AuthUser {
	return &auth.AuthUser{Email: e.csUser.Email, TenantID: e.tenant.ID, Portal: models.RoleCS}
}

func (e *testEnv) customer(email string) *auth.AuthUser {
	return &auth.AuthUser{Email: email, TenantID: e.tenant.ID, Portal: models.RoleCustomer}
}

func (e *testEnv) agencyUser() *auth.AuthUser {
	return &auth.AuthUser{Email: e.agency.Email, TenantID: e.tenant.ID, Portal: models.RoleAgency}
}

// seed stores a campaign in the given status owned by customer@example.com.
func (e *testEnv) seed(status models.CampaignStatus) *models.Campaign {
	return e.campaigns.put(models.Campaign{
		TenantID:      e.tenant.ID,
		CustomerName:  "Dana",
		CustomerEmail: "customer@example.com",
		CampaignType:  "featured_listing",
		AgencyID:      e.agency.ID,
		CSOwnerID:     e.csUser.ID,
		Status:        status,
		AssetDeadline: e.now.Add(7 * 24 * time.Hour),
		GoLiveDate:    e.now.Add(14 * 24 * time.Hour),
		AgencyName:    e.agency.Name,
		AgencyEmail:   e.agency.Email,
		CSOwnerEmail:  e.csUser.Email,
	})
}

func oneFile(name string) []UploadedFile {
	return []UploadedFile{{Filename: name, Path: "/tmp/" + name, ContentType: "image/png", Size: 10}}
}
