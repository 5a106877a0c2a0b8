package repositories

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jobboard/campaign-portal/internal/models"
)

type AssetRepo struct {
	pool *pgxpool.Pool
}

func NewAssetRepo(pool *pgxpool.Pool) *AssetRepo {
	return &AssetRepo{pool: pool}
}

func insertAsset(ctx context.Context, tx pgx.Tx, a *models.CampaignAsset) error {
	return tx.QueryRow(ctx, `
		INSERT INTO campaign_assets (campaign_id, kind, filename, storage_key, content_type, size_bytes, uploader_role, uploaded_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, uploaded_at
	`, a.CampaignID, a.Kind, a.Filename, a.StorageKey, a.ContentType, a.SizeBytes, a.UploaderRole, a.UploadedBy,
	).Scan(&a.ID, &a.UploadedAt)
}

const assetColumns = `id, campaign_id, kind, filename, storage_key, content_type, size_bytes, uploader_role, uploaded_by, uploaded_at`

func scanAsset(row pgx.Row) (*models.CampaignAsset, error) {
	var a models.CampaignAsset
	if err := row.Scan(&a.ID, &a.CampaignID, &a.Kind, &a.Filename, &a.StorageKey, &a.ContentType,
		&a.SizeBytes, &a.UploaderRole, &a.UploadedBy, &a.UploadedAt); err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *AssetRepo) GetByID(ctx context.Context, campaignID, id uuid.UUID) (*models.CampaignAsset, error) {
	a, err := scanAsset(r.pool.QueryRow(ctx,
		`SELECT `+assetColumns+` FROM campaign_assets WHERE id = $1 AND campaign_id = $2`, id, campaignID))
	if err != nil {
		return nil, notFound(err)
	}
	return a, nil
}

// ListByCampaign returns assets oldest first; the last draft is the latest one.
func (r *AssetRepo) ListByCampaign(ctx context.Context, campaignID uuid.UUID) ([]models.CampaignAsset, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+assetColumns+` FROM campaign_assets WHERE campaign_id = $1 ORDER BY uploaded_at, id`, campaignID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var assets []models.CampaignAsset
	for rows.Next() {
		a, err := scanAsset(rows)
		if err != nil {
			return nil, err
		}
		assets = append(assets, *a)
	}
	return assets, rows.Err()
}
