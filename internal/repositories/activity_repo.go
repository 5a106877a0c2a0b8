package repositories

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jobboard/campaign-portal/internal/models"
)

type ActivityRepo struct {
	pool *pgxpool.Pool
}

func NewActivityRepo(pool *pgxpool.Pool) *ActivityRepo {
	return &ActivityRepo{pool: pool}
}

func insertActivity(ctx context.Context, tx pgx.Tx, a *models.CampaignActivity) error {
	if a.Detail == nil {
		a.Detail = map[string]any{}
	}
	return tx.QueryRow(ctx, `
		INSERT INTO campaign_activity (campaign_id, actor_role, actor_id, action, detail)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`, a.CampaignID, a.ActorRole, a.ActorID, a.Action, a.Detail).Scan(&a.ID, &a.CreatedAt)
}

// Append writes an activity outside of a status transition (notification sends).
func (r *ActivityRepo) Append(ctx context.Context, a *models.CampaignActivity) error {
	if a.Detail == nil {
		a.Detail = map[string]any{}
	}
	return r.pool.QueryRow(ctx, `
		INSERT INTO campaign_activity (campaign_id, actor_role, actor_id, action, detail)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`, a.CampaignID, a.ActorRole, a.ActorID, a.Action, a.Detail).Scan(&a.ID, &a.CreatedAt)
}

// DefaultActivityLimit caps the activity returned with a campaign detail.
const DefaultActivityLimit = 200

// ListByCampaign returns the latest limit entries, oldest first.
func (r *ActivityRepo) ListByCampaign(ctx context.Context, campaignID uuid.UUID, limit int) ([]models.CampaignActivity, error) {
	if limit <= 0 {
		limit = DefaultActivityLimit
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, campaign_id, actor_role, actor_id, action, detail, created_at
		FROM (
			SELECT id, campaign_id, actor_role, actor_id, action, detail, created_at
			FROM campaign_activity WHERE campaign_id = $1
			ORDER BY created_at DESC, id DESC LIMIT $2
		) latest
		ORDER BY created_at, id
	`, campaignID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []models.CampaignActivity
	for rows.Next() {
		var a models.CampaignActivity
		if err := rows.Scan(&a.ID, &a.CampaignID, &a.ActorRole, &a.ActorID, &a.Action, &a.Detail, &a.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, a)
	}
	return entries, rows.Err()
}
