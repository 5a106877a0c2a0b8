package main

import (
	"encoding/json"
	"time"

	"github.com/jobboard/campaign-portal/internal/db"
	"github.com/jobboard/campaign-portal/internal/events"
	"github.com/jobboard/campaign-portal/internal/mail"
	"github.com/jobboard/campaign-portal/internal/repositories"
	"github.com/jobboard/campaign-portal/internal/services"
	"github.com/spf13/cobra"
)

var sweepAt string

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Run one reminder and escalation sweep",
	Long: `Run one reminder and escalation sweep with the configured mail transport.

The sweep takes the same redis lock as the worker, so it is skipped while a
worker sweep is in progress. --at evaluates deadlines at another instant.`,
	RunE: runSweep,
}

func init() {
	sweepCmd.Flags().StringVar(&sweepAt, "at", "", "evaluate deadlines at this RFC3339 time instead of now")
}

func runSweep(cmd *cobra.Command, _ []string) error {
	now := time.Now()
	if sweepAt != "" {
		t, err := time.Parse(time.RFC3339, sweepAt)
		if err != nil {
			return err
		}
		now = t
	}

	ctx := cmd.Context()
	e, cleanup, err := connect(ctx, true)
	if err != nil {
		return err
	}
	defer cleanup()

	mailer, closeMailer, err := mail.New(e.cfg, e.log)
	if err != nil {
		return err
	}
	defer closeMailer()

	reminders := services.NewReminderService(
		repositories.NewCampaignRepo(e.pool),
		repositories.NewNotificationRepo(e.pool),
		repositories.NewActivityRepo(e.pool),
		repositories.NewTenantRepo(e.pool),
		mailer,
		events.NewRedisPublisher(e.rdb, e.log),
		db.NewRedisLocker(e.rdb),
		services.ReminderConfig{
			AppBaseURL:            e.cfg.AppBaseURL,
			AssetReminderDays:     e.cfg.AssetReminderDays,
			DraftReminderDays:     e.cfg.DraftReminderDays,
			EscalationOverdueDays: e.cfg.EscalationOverdueDays,
			SendTimeout:           e.cfg.NotificationSendTimeout,
			PendingLease:          e.cfg.NotificationPendingLease,
			LockTTL:               e.cfg.SweepLockTTL,
		}, e.log)

	stats, err := reminders.Sweep(ctx, now)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(stats)
}
