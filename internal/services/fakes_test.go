package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jobboard/campaign-portal/internal/events"
	"github.com/jobboard/campaign-portal/internal/mail"
	"github.com/jobboard/campaign-portal/internal/models"
	"github.com/jobboard/campaign-portal/internal/repositories"
	"github.com/jobboard/campaign-portal/internal/storage"
)

type fakeActivityStore struct {
	mu      sync.Mutex
	entries []models.CampaignActivity
}

func (s *fakeActivityStore) Append(_ context.Context, a *models.CampaignActivity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a.ID = uuid.New()
	a.CreatedAt = time.Now()
	s.entries = append(s.entries, *a)
	return nil
}

// ListByCampaign keeps the repository contract: the latest limit entries,
// oldest first.
func (s *fakeActivityStore) ListByCampaign(_ context.Context, campaignID uuid.UUID, limit int) ([]models.CampaignActivity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.CampaignActivity
	for _, a := range s.entries {
		if a.CampaignID == campaignID {
			out = append(out, a)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (s *fakeActivityStore) count(campaignID uuid.UUID, action string) int {
	list, _ := s.ListByCampaign(context.Background(), campaignID, 0)
	n := 0
	for _, a := range list {
		if action == "" || a.Action == action {
			n++
		}
	}
	return n
}

type fakeCampaignStore struct {
	mu        sync.Mutex
	campaigns map[uuid.UUID]*models.Campaign
	assets    []models.CampaignAsset
	activity  *fakeActivityStore
	agencies  *fakeAgencyStore
	users     *fakeUserStore

	// beforeTransition runs inside Transition before the status check,
	// standing in for a concurrent writer.
	beforeTransition func(c *models.Campaign)
}

func newFakeCampaignStore(activity *fakeActivityStore, agencies *fakeAgencyStore, users *fakeUserStore) *fakeCampaignStore {
	return &fakeCampaignStore{
		campaigns: map[uuid.UUID]*models.Campaign{},
		activity:  activity,
		agencies:  agencies,
		users:     users,
	}
}

func (s *fakeCampaignStore) Create(ctx context.Context, c *models.Campaign, activity models.CampaignActivity) (*models.Campaign, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *c
	cp.ID = uuid.New()
	cp.CreatedAt = time.Now()
	cp.UpdatedAt = cp.CreatedAt
	if a, err := s.agencies.GetByID(ctx, cp.TenantID, cp.AgencyID); err == nil {
		cp.AgencyName, cp.AgencyEmail = a.Name, a.Email
	}
	for _, u := range s.users.users {
		if u.ID == cp.CSOwnerID {
			cp.CSOwnerEmail = u.Email
		}
	}
	s.campaigns[cp.ID] = &cp
	activity.CampaignID = cp.ID
	_ = s.activity.Append(ctx, &activity)
	out := cp
	return &out, nil
}

// put stores a campaign as-is; tests use it to start from any status.
func (s *fakeCampaignStore) put(c models.Campaign) *models.Campaign {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	s.campaigns[c.ID] = &c
	out := c
	return &out
}

func (s *fakeCampaignStore) status(id uuid.UUID) models.CampaignStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.campaigns[id].Status
}

func (s *fakeCampaignStore) setStatus(id uuid.UUID, st models.CampaignStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.campaigns[id].Status = st
}

func (s *fakeCampaignStore) GetByID(_ context.Context, tenantID, id uuid.UUID) (*models.Campaign, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.campaigns[id]
	if !ok || c.TenantID != tenantID {
		return nil, repositories.ErrNotFound
	}
	out := *c
	return &out, nil
}

func (s *fakeCampaignStore) List(_ context.Context, f repositories.CampaignFilter) ([]models.Campaign, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Campaign
	for _, c := range s.campaigns {
		if c.TenantID != f.TenantID {
			continue
		}
		if f.Status != nil && c.Status != *f.Status {
			continue
		}
		if f.AgencyID != nil && c.AgencyID != *f.AgencyID {
			continue
		}
		if f.CustomerEmail != nil && !strings.EqualFold(c.CustomerEmail, *f.CustomerEmail) {
			continue
		}
		out = append(out, *c)
	}
	return out, nil
}

func (s *fakeCampaignStore) ListByStatuses(_ context.Context, statuses []models.CampaignStatus) ([]models.Campaign, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Campaign
	for _, c := range s.campaigns {
		if containsStatus(statuses, c.Status) {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (s *fakeCampaignStore) ExistsForCustomer(_ context.Context, tenantID uuid.UUID, email string, campaignID *uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.campaigns {
		if c.TenantID == tenantID && strings.EqualFold(c.CustomerEmail, email) && (campaignID == nil || *campaignID == c.ID) {
			return true, nil
		}
	}
	return false, nil
}

func (s *fakeCampaignStore) Transition(ctx context.Context, t repositories.Transition) (*models.Campaign, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.campaigns[t.CampaignID]
	if !ok || c.TenantID != t.TenantID {
		return nil, repositories.ErrStaleStatus
	}
	if s.beforeTransition != nil {
		s.beforeTransition(c)
	}
	if !containsStatus(t.From, c.Status) {
		return nil, repositories.ErrStaleStatus
	}
	if t.To != "" {
		c.Status = t.To
	}
	if t.SetFeedback {
		c.CustomerFeedback = t.Feedback
	}
	c.UpdatedAt = time.Now()
	for _, a := range t.Assets {
		a.ID = uuid.New()
		a.CampaignID = c.ID
		a.UploadedAt = time.Now()
		s.assets = append(s.assets, *a)
	}
	t.Activity.CampaignID = c.ID
	_ = s.activity.Append(ctx, &t.Activity)
	out := *c
	return &out, nil
}

type fakeAssetStore struct {
	campaigns *fakeCampaignStore
}

func (s *fakeAssetStore) GetByID(_ context.Context, campaignID, id uuid.UUID) (*models.CampaignAsset, error) {
	s.campaigns.mu.Lock()
	defer s.campaigns.mu.Unlock()
	for _, a := range s.campaigns.assets {
		if a.ID == id && a.CampaignID == campaignID {
			out := a
			return &out, nil
		}
	}
	return nil, repositories.ErrNotFound
}

func (s *fakeAssetStore) ListByCampaign(_ context.Context, campaignID uuid.UUID) ([]models.CampaignAsset, error) {
	s.campaigns.mu.Lock()
	defer s.campaigns.mu.Unlock()
	var out []models.CampaignAsset
	for _, a := range s.campaigns.assets {
		if a.CampaignID == campaignID {
			out = append(out, a)
		}
	}
	return out, nil
}

type fakeNotificationStore struct {
	mu   sync.Mutex
	rows map[string]*models.CampaignNotification
	now  func() time.Time
}

func newFakeNotificationStore() *fakeNotificationStore {
	return &fakeNotificationStore{rows: map[string]*models.CampaignNotification{}, now: time.Now}
}

func notificationKey(campaignID uuid.UUID, typ string) string { return campaignID.String() + "/" + typ }

func (s *fakeNotificationStore) Reserve(_ context.Context, n *models.CampaignNotification, staleBefore time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := notificationKey(n.CampaignID, n.NotificationType)
	row, ok := s.rows[key]
	if !ok {
		row = &models.CampaignNotification{
			ID:               uuid.New(),
			CampaignID:       n.CampaignID,
			NotificationType: n.NotificationType,
			CreatedAt:        s.now(),
		}
		s.rows[key] = row
	} else {
		reclaim := row.Status == models.NotificationStatusFailed ||
			(row.Status == models.NotificationStatusPending && row.UpdatedAt.Before(staleBefore))
		if !reclaim {
			return false, nil
		}
	}
	row.Status = models.NotificationStatusPending
	row.Attempts++
	row.RecipientRole = n.RecipientRole
	row.RecipientAddress = n.RecipientAddress
	row.Error = nil
	row.UpdatedAt = s.now()
	*n = *row
	return true, nil
}

func (s *fakeNotificationStore) find(id uuid.UUID) *models.CampaignNotification {
	for _, r := range s.rows {
		if r.ID == id {
			return r
		}
	}
	return nil
}

func (s *fakeNotificationStore) MarkSent(_ context.Context, id uuid.UUID, sentAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.find(id)
	if r == nil {
		return repositories.ErrNotFound
	}
	r.Status = models.NotificationStatusSent
	r.SentAt = &sentAt
	r.Error = nil
	return nil
}

func (s *fakeNotificationStore) MarkFailed(_ context.Context, id uuid.UUID, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.find(id)
	if r == nil || r.Status != models.NotificationStatusPending {
		return nil
	}
	r.Status = models.NotificationStatusFailed
	r.Error = &reason
	return nil
}

func (s *fakeNotificationStore) ListByCampaign(_ context.Context, campaignID uuid.UUID) ([]models.CampaignNotification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.CampaignNotification
	for _, r := range s.rows {
		if r.CampaignID == campaignID {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (s *fakeNotificationStore) get(campaignID uuid.UUID, typ string) *models.CampaignNotification {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rows[notificationKey(campaignID, typ)]
	if !ok {
		return nil
	}
	out := *r
	return &out
}

type fakeMagicLinkStore struct {
	mu     sync.Mutex
	tokens map[string]*models.MagicLinkToken
}

func newFakeMagicLinkStore() *fakeMagicLinkStore {
	return &fakeMagicLinkStore{tokens: map[string]*models.MagicLinkToken{}}
}

func (s *fakeMagicLinkStore) Create(_ context.Context, t *models.MagicLinkToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t.ID = uuid.New()
	t.CreatedAt = time.Now()
	cp := *t
	s.tokens[t.TokenHash] = &cp
	return nil
}

func (s *fakeMagicLinkStore) Consume(_ context.Context, tenantID uuid.UUID, hash string, now time.Time) (*models.MagicLinkToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tokens[hash]
	if !ok || t.UsedAt != nil || !now.Before(t.ExpiresAt) || t.TenantID != tenantID {
		return nil, repositories.ErrNotFound
	}
	t.UsedAt = &now
	out := *t
	return &out, nil
}

func (s *fakeMagicLinkStore) GetByHash(_ context.Context, hash string) (*models.MagicLinkToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tokens[hash]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	out := *t
	return &out, nil
}

type fakeUserStore struct {
	users []models.User
}

func (s *fakeUserStore) GetByEmail(_ context.Context, tenantID uuid.UUID, email string) (*models.User, error) {
	for _, u := range s.users {
		if u.TenantID == tenantID && strings.EqualFold(u.Email, email) {
			out := u
			return &out, nil
		}
	}
	return nil, repositories.ErrNotFound
}

type fakeAgencyStore struct {
	agencies []models.Agency
}

func (s *fakeAgencyStore) GetByID(_ context.Context, tenantID, id uuid.UUID) (*models.Agency, error) {
	for _, a := range s.agencies {
		if a.TenantID == tenantID && a.ID == id {
			out := a
			return &out, nil
		}
	}
	return nil, repositories.ErrNotFound
}

func (s *fakeAgencyStore) GetByEmail(_ context.Context, tenantID uuid.UUID, email string) (*models.Agency, error) {
	for _, a := range s.agencies {
		if a.TenantID == tenantID && strings.EqualFold(a.Email, email) {
			out := a
			return &out, nil
		}
	}
	return nil, repositories.ErrNotFound
}

func (s *fakeAgencyStore) List(_ context.Context, tenantID uuid.UUID) ([]models.Agency, error) {
	var out []models.Agency
	for _, a := range s.agencies {
		if a.TenantID == tenantID {
			out = append(out, a)
		}
	}
	return out, nil
}

type fakeTenantStore struct {
	tenants []models.Tenant
}

func (s *fakeTenantStore) GetByID(_ context.Context, id uuid.UUID) (*models.Tenant, error) {
	for _, t := range s.tenants {
		if t.ID == id {
			out := t
			return &out, nil
		}
	}
	return nil, repositories.ErrNotFound
}

type sentMail struct {
	To, Subject, HTML string
	Tags              map[string]string
}

type fakeMailer struct {
	mu   sync.Mutex
	sent []sentMail
	// failFor makes sends to these recipients fail.
	failFor map[string]error
}

func (m *fakeMailer) Send(ctx context.Context, to, subject, html string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	if err, ok := m.failFor[to]; ok {
		return err
	}
	m.sent = append(m.sent, sentMail{To: to, Subject: subject, HTML: html, Tags: mail.TagsFrom(ctx)})
	return nil
}

func (m *fakeMailer) sentTo(to string) []sentMail {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []sentMail
	for _, s := range m.sent {
		if s.To == to {
			out = append(out, s)
		}
	}
	return out
}

type fakePublisher struct {
	mu     sync.Mutex
	events []events.Event
	err    error
}

func (p *fakePublisher) Publish(_ context.Context, _ string, e events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, e)
	return nil
}

func (p *fakePublisher) forCampaign(id uuid.UUID) []events.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []events.Event
	for _, e := range p.events {
		if e.CampaignID == id {
			out = append(out, e)
		}
	}
	return out
}

type fakeObjectStore struct {
	mu   sync.Mutex
	keys []string
}

func (s *fakeObjectStore) Upload(_ context.Context, key, _ string, _ string) (*storage.Object, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys = append(s.keys, key)
	return &storage.Object{Key: key, Bucket: "test"}, nil
}

func (s *fakeObjectStore) SignedURL(_ context.Context, key string, ttl time.Duration) (string, time.Time, error) {
	return "https://files.example.com/" + key, time.Now().Add(ttl), nil
}

type fakeRevocations struct {
	mu      sync.Mutex
	revoked map[string]time.Time
	err     error
}

func (r *fakeRevocations) Revoke(_ context.Context, jti string, until time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.revoked == nil {
		r.revoked = map[string]time.Time{}
	}
	r.revoked[jti] = until
	return nil
}

func (r *fakeRevocations) IsRevoked(_ context.Context, jti string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return false, r.err
	}
	_, ok := r.revoked[jti]
	return ok, nil
}

type fakeLocker struct {
	held bool
	err  error
}

func (l *fakeLocker) TryLock(context.Context, string, time.Duration) (func(context.Context) error, bool, error) {
	if l.err != nil {
		return nil, false, l.err
	}
	if l.held {
		return nil, false, nil
	}
	l.held = true
	return func(context.Context) error { l.held = false; return nil }, true, nil
}

var errSMTPDown = errors.New("smtp: connection refused")
