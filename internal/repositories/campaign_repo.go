package repositories

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jobboard/campaign-portal/internal/models"
)

type CampaignRepo struct {
	pool *pgxpool.Pool
}

func NewCampaignRepo(pool *pgxpool.Pool) *CampaignRepo {
	return &CampaignRepo{pool: pool}
}

const campaignColumns = `
	c.id, c.tenant_id, c.customer_name, c.customer_email, c.campaign_type, c.agency_id, c.cs_owner_id,
	c.status, c.asset_deadline, c.go_live_date, c.customer_feedback, c.created_at, c.updated_at,
	a.name, a.email, u.email`

const campaignJoins = `
	JOIN agencies a ON a.id = c.agency_id
	JOIN users u ON u.id = c.cs_owner_id`

func scanCampaign(row pgx.Row) (*models.Campaign, error) {
	var c models.Campaign
	err := row.Scan(&c.ID, &c.TenantID, &c.CustomerName, &c.CustomerEmail, &c.CampaignType, &c.AgencyID, &c.CSOwnerID,
		&c.Status, &c.AssetDeadline, &c.GoLiveDate, &c.CustomerFeedback, &c.CreatedAt, &c.UpdatedAt,
		&c.AgencyName, &c.AgencyEmail, &c.CSOwnerEmail)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// Create inserts the campaign and its creation activity in one transaction.
func (r *CampaignRepo) Create(ctx context.Context, c *models.Campaign, activity models.CampaignActivity) (*models.Campaign, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	err = tx.QueryRow(ctx, `
		INSERT INTO campaigns (tenant_id, customer_name, customer_email, campaign_type, agency_id, cs_owner_id,
		                       status, asset_deadline, go_live_date)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id
	`, c.TenantID, c.CustomerName, c.CustomerEmail, c.CampaignType, c.AgencyID, c.CSOwnerID,
		c.Status, c.AssetDeadline, c.GoLiveDate,
	).Scan(&c.ID)
	if err != nil {
		return nil, err
	}

	activity.CampaignID = c.ID
	if err := insertActivity(ctx, tx, &activity); err != nil {
		return nil, err
	}

	created, err := scanCampaign(tx.QueryRow(ctx,
		`SELECT `+campaignColumns+` FROM campaigns c `+campaignJoins+` WHERE c.id = $1`, c.ID))
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return created, nil
}

// GetByID never returns a campaign outside tenantID.
func (r *CampaignRepo) GetByID(ctx context.Context, tenantID, id uuid.UUID) (*models.Campaign, error) {
	c, err := scanCampaign(r.pool.QueryRow(ctx,
		`SELECT `+campaignColumns+` FROM campaigns c `+campaignJoins+` WHERE c.id = $1 AND c.tenant_id = $2`,
		id, tenantID))
	if err != nil {
		return nil, notFound(err)
	}
	return c, nil
}

type CampaignFilter struct {
	TenantID      uuid.UUID
	Status        *models.CampaignStatus
	AgencyID      *uuid.UUID
	CustomerEmail *string
	Limit         int
	Offset        int
}

func (r *CampaignRepo) List(ctx context.Context, f CampaignFilter) ([]models.Campaign, error) {
	query := `SELECT ` + campaignColumns + ` FROM campaigns c ` + campaignJoins
	args := []any{f.TenantID}
	argIdx := 2
	where := []string{"c.tenant_id = $1"}

	if f.Status != nil {
		where = append(where, fmt.Sprintf("c.status = $%d", argIdx))
		args = append(args, string(*f.Status))
		argIdx++
	}
	if f.AgencyID != nil {
		where = append(where, fmt.Sprintf("c.agency_id = $%d", argIdx))
		args = append(args, *f.AgencyID)
		argIdx++
	}
	if f.CustomerEmail != nil {
		where = append(where, fmt.Sprintf("lower(c.customer_email) = lower($%d)", argIdx))
		args = append(args, *f.CustomerEmail)
		argIdx++
	}
	query += " WHERE " + strings.Join(where, " AND ")

	limit := f.Limit
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	query += fmt.Sprintf(" ORDER BY c.created_at DESC LIMIT $%d OFFSET $%d", argIdx, argIdx+1)
	args = append(args, limit, f.Offset)

	return r.query(ctx, query, args...)
}

// ListByStatuses spans all tenants; only the scheduler uses it.
func (r *CampaignRepo) ListByStatuses(ctx context.Context, statuses []models.CampaignStatus) ([]models.Campaign, error) {
	return r.query(ctx,
		`SELECT `+campaignColumns+` FROM campaigns c `+campaignJoins+` WHERE c.status = ANY($1) ORDER BY c.created_at`,
		statusStrings(statuses))
}

func (r *CampaignRepo) query(ctx context.Context, query string, args ...any) ([]models.Campaign, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var campaigns []models.Campaign
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, err
		}
		campaigns = append(campaigns, *c)
	}
	return campaigns, rows.Err()
}

// ExistsForCustomer reports whether email is the customer of any campaign in
// the tenant, or of campaignID when it is given.
func (r *CampaignRepo) ExistsForCustomer(ctx context.Context, tenantID uuid.UUID, email string, campaignID *uuid.UUID) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM campaigns
			WHERE tenant_id = $1 AND lower(customer_email) = lower($2) AND ($3::uuid IS NULL OR id = $3)
		)
	`, tenantID, email, campaignID).Scan(&exists)
	return exists, err
}

// Transition is a single-campaign mutation guarded by the current status.
type Transition struct {
	TenantID   uuid.UUID
	CampaignID uuid.UUID
	From       []models.CampaignStatus
	// To empty keeps the current status.
	To          models.CampaignStatus
	SetFeedback bool
	Feedback    *string
	Assets      []*models.CampaignAsset
	Activity    models.CampaignActivity
}

// Transition applies t atomically: the status update only matches while the
// campaign is still in one of t.From, so of two racing callers exactly one
// wins and the other gets ErrStaleStatus. Assets and the activity row are
// written in the same transaction.
func (r *CampaignRepo) Transition(ctx context.Context, t Transition) (*models.Campaign, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	c, err := scanCampaign(tx.QueryRow(ctx, `
		WITH c AS (
			UPDATE campaigns SET
				status = COALESCE(NULLIF($3, ''), status),
				customer_feedback = CASE WHEN $4::boolean THEN $5 ELSE customer_feedback END,
				updated_at = now()
			WHERE id = $1 AND tenant_id = $2 AND status = ANY($6)
			RETURNING *
		)
		SELECT `+campaignColumns+` FROM c `+campaignJoins,
		t.CampaignID, t.TenantID, string(t.To), t.SetFeedback, t.Feedback, statusStrings(t.From)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrStaleStatus
		}
		return nil, err
	}

	for _, a := range t.Assets {
		a.CampaignID = c.ID
		if err := insertAsset(ctx, tx, a); err != nil {
			return nil, err
		}
	}

	t.Activity.CampaignID = c.ID
	if err := insertActivity(ctx, tx, &t.Activity); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return c, nil
}
