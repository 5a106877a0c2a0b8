package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jobboard/campaign-portal/internal/models"
)

type NotificationRepo struct {
	pool *pgxpool.Pool
}

func NewNotificationRepo(pool *pgxpool.Pool) *NotificationRepo {
	return &NotificationRepo{pool: pool}
}

// Reserve claims the (campaign, type) ledger slot before a send. It inserts a
// pending row, or re-claims a failed row, or a pending row last touched before
// staleBefore (a sender that died mid-send). A sent row is never re-claimed.
// reserved=false means another sweep owns the slot or it is already sent.
func (r *NotificationRepo) Reserve(ctx context.Context, n *models.CampaignNotification, staleBefore time.Time) (bool, error) {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO campaign_notifications (campaign_id, notification_type, recipient_role, recipient_address, status, attempts)
		VALUES ($1, $2, $3, $4, 'pending', 1)
		ON CONFLICT (campaign_id, notification_type) DO UPDATE SET
			status = 'pending',
			attempts = campaign_notifications.attempts + 1,
			recipient_role = EXCLUDED.recipient_role,
			recipient_address = EXCLUDED.recipient_address,
			error = NULL,
			updated_at = now()
		WHERE campaign_notifications.status = 'failed'
		   OR (campaign_notifications.status = 'pending' AND campaign_notifications.updated_at < $5)
		RETURNING id, status, attempts, created_at, updated_at
	`, n.CampaignID, n.NotificationType, n.RecipientRole, n.RecipientAddress, staleBefore,
	).Scan(&n.ID, &n.Status, &n.Attempts, &n.CreatedAt, &n.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (r *NotificationRepo) MarkSent(ctx context.Context, id uuid.UUID, sentAt time.Time) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE campaign_notifications SET status = 'sent', sent_at = $2, error = NULL, updated_at = now()
		WHERE id = $1
	`, id, sentAt)
	return err
}

func (r *NotificationRepo) MarkFailed(ctx context.Context, id uuid.UUID, reason string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE campaign_notifications SET status = 'failed', error = $2, updated_at = now()
		WHERE id = $1 AND status = 'pending'
	`, id, reason)
	return err
}

func (r *NotificationRepo) ListByCampaign(ctx context.Context, campaignID uuid.UUID) ([]models.CampaignNotification, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, campaign_id, notification_type, recipient_role, recipient_address, status, attempts,
		       sent_at, error, created_at, updated_at
		FROM campaign_notifications WHERE campaign_id = $1
		ORDER BY created_at
	`, campaignID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.CampaignNotification
	for rows.Next() {
		var n models.CampaignNotification
		if err := rows.Scan(&n.ID, &n.CampaignID, &n.NotificationType, &n.RecipientRole, &n.RecipientAddress,
			&n.Status, &n.Attempts, &n.SentAt, &n.Error, &n.CreatedAt, &n.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}
