package services

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/jobboard/campaign-portal/internal/events"
	"github.com/jobboard/campaign-portal/internal/mail"
	"github.com/jobboard/campaign-portal/internal/models"
	"go.uber.org/zap"
)

const (
	sweepLockKey     = "lock:reminder-sweep"
	schedulerActorID = "scheduler"
)

// Locker is a cross-process mutual exclusion, e.g. db.RedisLocker.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (release func(context.Context) error, ok bool, err error)
}

type ReminderConfig struct {
	AppBaseURL            string
	AssetReminderDays     []int
	DraftReminderDays     []int
	EscalationOverdueDays int
	SendTimeout           time.Duration
	PendingLease          time.Duration
	LockTTL               time.Duration
}

type SweepStats struct {
	Skipped   bool `json:"skipped"`
	Campaigns int  `json:"campaigns"`
	Sent      int  `json:"sent"`
	Failed    int  `json:"failed"`
	Deduped   int  `json:"deduped"`
	Errors    int  `json:"errors"`
}

// ReminderService raises deadline reminders and escalations. The ledger row
// for (campaign, type) is reserved before sending, so a type that reached
// sent is never sent again no matter how often the sweep runs.
type ReminderService struct {
	campaigns     CampaignStore
	notifications NotificationStore
	activity      ActivityStore
	tenants       TenantStore
	mailer        mail.Mailer
	publisher     events.Publisher
	locker        Locker
	cfg           ReminderConfig
	log           *zap.Logger

	running sync.Mutex
}

func NewReminderService(
	campaigns CampaignStore,
	notifications NotificationStore,
	activity ActivityStore,
	tenants TenantStore,
	mailer mail.Mailer,
	publisher events.Publisher,
	locker Locker,
	cfg ReminderConfig,
	log *zap.Logger,
) *ReminderService {
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 30 * time.Second
	}
	if cfg.PendingLease <= 0 {
		cfg.PendingLease = 10 * time.Minute
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 55 * time.Minute
	}
	if cfg.EscalationOverdueDays <= 0 {
		cfg.EscalationOverdueDays = 1
	}
	return &ReminderService{
		campaigns:     campaigns,
		notifications: notifications,
		activity:      activity,
		tenants:       tenants,
		mailer:        mailer,
		publisher:     publisher,
		locker:        locker,
		cfg:           cfg,
		log:           log,
	}
}

// DaysUntil is the ceiling of the whole days from now to deadline; negative
// once the deadline has passed.
func DaysUntil(deadline, now time.Time) int {
	return int(math.Ceil(deadline.Sub(now).Hours() / 24))
}

type plannedNotification struct {
	notificationType string
	template         string
	recipientRole    models.Role
	recipient        string
	deadline         time.Time
	days             int
	escalation       bool
	link             string
}

func containsInt(list []int, v int) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}

// plan decides which notifications a campaign is due at now. At most one
// reminder or one escalation per sweep, never both.
func (s *ReminderService) plan(c *models.Campaign, now time.Time) []plannedNotification {
	var out []plannedNotification
	switch {
	case containsStatus(models.AssetDeadlineStatuses, c.Status):
		days := DaysUntil(c.AssetDeadline, now)
		if containsInt(s.cfg.AssetReminderDays, days) {
			out = append(out, plannedNotification{
				notificationType: models.AssetReminderType(days),
				template:         mail.TemplateAssetReminder,
				recipientRole:    models.RoleCustomer,
				recipient:        c.CustomerEmail,
				deadline:         c.AssetDeadline,
				days:             days,
				link:             fmt.Sprintf("%s/customer/campaign/%s", s.cfg.AppBaseURL, c.ID),
			})
		} else if days < 0 && -days >= s.cfg.EscalationOverdueDays {
			out = append(out, plannedNotification{
				notificationType: models.NotificationAssetEscalation,
				template:         mail.TemplateAssetEscalation,
				recipientRole:    models.RoleCS,
				recipient:        c.CSOwnerEmail,
				deadline:         c.AssetDeadline,
				days:             days,
				escalation:       true,
				link:             fmt.Sprintf("%s/cs/campaigns/%s", s.cfg.AppBaseURL, c.ID),
			})
		}
	case containsStatus(models.DraftDeadlineStatuses, c.Status):
		days := DaysUntil(c.GoLiveDate, now)
		if containsInt(s.cfg.DraftReminderDays, days) {
			out = append(out, plannedNotification{
				notificationType: models.DraftReminderType(days),
				template:         mail.TemplateDraftReminder,
				recipientRole:    models.RoleAgency,
				recipient:        c.AgencyEmail,
				deadline:         c.GoLiveDate,
				days:             days,
				link:             fmt.Sprintf("%s/agency/campaign/%s", s.cfg.AppBaseURL, c.ID),
			})
		} else if days < 0 && -days >= s.cfg.EscalationOverdueDays {
			out = append(out, plannedNotification{
				notificationType: models.NotificationDraftEscalation,
				template:         mail.TemplateDraftEscalation,
				recipientRole:    models.RoleCS,
				recipient:        c.CSOwnerEmail,
				deadline:         c.GoLiveDate,
				days:             days,
				escalation:       true,
				link:             fmt.Sprintf("%s/cs/campaigns/%s", s.cfg.AppBaseURL, c.ID),
			})
		}
	}
	return out
}

// Sweep runs both deadline sweeps once. Overlapping calls in this process
// return immediately with Skipped set; with a Locker the same holds across
// processes.
func (s *ReminderService) Sweep(ctx context.Context, now time.Time) (SweepStats, error) {
	var stats SweepStats
	if !s.running.TryLock() {
		stats.Skipped = true
		return stats, nil
	}
	defer s.running.Unlock()

	if s.locker != nil {
		release, ok, err := s.locker.TryLock(ctx, sweepLockKey, s.cfg.LockTTL)
		if err != nil {
			return stats, fmt.Errorf("acquire sweep lock: %w", err)
		}
		if !ok {
			stats.Skipped = true
			return stats, nil
		}
		defer func() {
			if err := release(context.Background()); err != nil {
				s.log.Warn("failed to release sweep lock", zap.Error(err))
			}
		}()
	}

	statuses := append(append([]models.CampaignStatus{}, models.AssetDeadlineStatuses...), models.DraftDeadlineStatuses...)
	campaigns, err := s.campaigns.ListByStatuses(ctx, statuses)
	if err != nil {
		return stats, fmt.Errorf("list campaigns: %w", err)
	}

	tenantNames := map[string]string{}
	for i := range campaigns {
		if ctx.Err() != nil {
			return stats, ctx.Err()
		}
		stats.Campaigns++
		s.processCampaign(ctx, &campaigns[i], now, tenantNames, &stats)
	}

	s.log.Info("reminder sweep finished",
		zap.Int("campaigns", stats.Campaigns),
		zap.Int("sent", stats.Sent),
		zap.Int("failed", stats.Failed),
		zap.Int("deduped", stats.Deduped),
		zap.Int("errors", stats.Errors))
	return stats, nil
}

// processCampaign isolates one campaign: nothing here aborts the sweep.
func (s *ReminderService) processCampaign(ctx context.Context, c *models.Campaign, now time.Time, tenantNames map[string]string, stats *SweepStats) {
	defer func() {
		if r := recover(); r != nil {
			stats.Errors++
			s.log.Error("panic while processing campaign reminders",
				zap.String("campaign_id", c.ID.String()), zap.Any("panic", r))
		}
	}()

	for _, p := range s.plan(c, now) {
		if p.recipient == "" {
			stats.Errors++
			s.log.Warn("notification has no recipient",
				zap.String("campaign_id", c.ID.String()), zap.String("type", p.notificationType))
			continue
		}
		s.deliver(ctx, c, p, now, s.tenantName(ctx, c, tenantNames), stats)
	}
}

func (s *ReminderService) tenantName(ctx context.Context, c *models.Campaign, cache map[string]string) string {
	key := c.TenantID.String()
	if name, ok := cache[key]; ok {
		return name
	}
	name := ""
	if s.tenants != nil {
		if t, err := s.tenants.GetByID(ctx, c.TenantID); err == nil {
			name = t.Name
		}
	}
	cache[key] = name
	return name
}

func (s *ReminderService) deliver(ctx context.Context, c *models.Campaign, p plannedNotification, now time.Time, tenantName string, stats *SweepStats) {
	n := &models.CampaignNotification{
		CampaignID:       c.ID,
		NotificationType: p.notificationType,
		RecipientRole:    p.recipientRole,
		RecipientAddress: p.recipient,
	}
	log := s.log.With(zap.String("campaign_id", c.ID.String()), zap.String("type", p.notificationType))

	reserved, err := s.notifications.Reserve(ctx, n, now.Add(-s.cfg.PendingLease))
	if err != nil {
		stats.Errors++
		log.Error("failed to reserve notification", zap.Error(err))
		return
	}
	if !reserved {
		stats.Deduped++
		return
	}

	subject, html, err := mail.Render(p.template, mail.TemplateData{
		TenantName:   tenantName,
		CustomerName: c.CustomerName,
		AgencyName:   c.AgencyName,
		CampaignType: c.CampaignType,
		Link:         p.link,
		Days:         p.days,
		Deadline:     p.deadline,
	})
	if err == nil {
		sendCtx, cancel := context.WithTimeout(mail.WithTags(ctx, map[string]string{
			"tenant_id":         c.TenantID.String(),
			"campaign_id":       c.ID.String(),
			"notification_type": p.notificationType,
		}), s.cfg.SendTimeout)
		err = s.mailer.Send(sendCtx, p.recipient, subject, html)
		cancel()
	}
	if err != nil {
		stats.Failed++
		log.Warn("notification delivery failed", zap.Int("attempt", n.Attempts), zap.Error(err))
		if merr := s.notifications.MarkFailed(ctx, n.ID, err.Error()); merr != nil {
			log.Error("failed to mark notification failed", zap.Error(merr))
		}
		return
	}

	if err := s.notifications.MarkSent(ctx, n.ID, now); err != nil {
		// The mail went out; the pending row will be re-claimed after the lease.
		stats.Errors++
		log.Error("failed to mark notification sent", zap.Error(err))
		return
	}
	stats.Sent++

	detail := map[string]any{
		"notification_type": p.notificationType,
		"recipient_role":    string(p.recipientRole),
		"days":              p.days,
	}
	if err := s.activity.Append(ctx, &models.CampaignActivity{
		CampaignID: c.ID,
		ActorRole:  models.RoleSystem,
		ActorID:    schedulerActorID,
		Action:     models.ActivityNotificationSent,
		Detail:     detail,
	}); err != nil {
		log.Error("failed to record notification activity", zap.Error(err))
	}

	eventType := events.EventReminderSent
	if p.escalation {
		eventType = events.EventEscalationSent
	}
	if err := s.publisher.Publish(ctx, events.CampaignChannel, events.Event{
		TenantID:   c.TenantID,
		CampaignID: c.ID,
		Type:       eventType,
		Payload:    detail,
		At:         now.UTC(),
	}); err != nil {
		log.Warn("failed to publish notification event", zap.Error(err))
	}
	log.Info("notification sent", zap.String("recipient_role", string(p.recipientRole)))
}
