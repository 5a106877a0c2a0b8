package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/jobboard/campaign-portal/internal/config"
	"github.com/jobboard/campaign-portal/internal/db"
	"github.com/jobboard/campaign-portal/internal/events"
	"github.com/jobboard/campaign-portal/internal/mail"
	"github.com/jobboard/campaign-portal/internal/repositories"
	"github.com/jobboard/campaign-portal/internal/services"
	"go.uber.org/zap"
)

func main() {
	log, _ := zap.NewProduction()
	defer log.Sync()

	cfg := config.MustLoad(log)
	cfg.Validate(log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := db.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer pool.Close()

	rdb, err := db.NewRedisClient(ctx, cfg, log)
	if err != nil {
		log.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer rdb.Close()

	mailer, closeMailer, err := mail.New(cfg, log)
	if err != nil {
		log.Fatal("failed to set up mail transport", zap.Error(err))
	}
	defer closeMailer()

	// Repos
	campaignRepo := repositories.NewCampaignRepo(pool)
	notificationRepo := repositories.NewNotificationRepo(pool)
	activityRepo := repositories.NewActivityRepo(pool)
	tenantRepo := repositories.NewTenantRepo(pool)
	magicLinkRepo := repositories.NewMagicLinkRepo(pool)

	// Services
	publisher := events.NewRedisPublisher(rdb, log)
	reminders := services.NewReminderService(campaignRepo, notificationRepo, activityRepo, tenantRepo,
		mailer, publisher, db.NewRedisLocker(rdb), services.ReminderConfig{
			AppBaseURL:            cfg.AppBaseURL,
			AssetReminderDays:     cfg.AssetReminderDays,
			DraftReminderDays:     cfg.DraftReminderDays,
			EscalationOverdueDays: cfg.EscalationOverdueDays,
			SendTimeout:           cfg.NotificationSendTimeout,
			PendingLease:          cfg.NotificationPendingLease,
			LockTTL:               cfg.SweepLockTTL,
		}, log)

	log.Info("worker started", zap.Duration("reminder_interval", cfg.ReminderInterval))

	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sched := &scheduler{
		reminders:        reminders,
		links:            magicLinkRepo,
		reminderInterval: cfg.ReminderInterval,
		cleanupInterval:  6 * time.Hour,
		now:              time.Now,
		log:              log,
	}
	sched.run(sigCtx)
	log.Info("shutting down worker")
}
