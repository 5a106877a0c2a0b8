package repositories

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jobboard/campaign-portal/internal/models"
)

type MagicLinkRepo struct {
	pool *pgxpool.Pool
}

func NewMagicLinkRepo(pool *pgxpool.Pool) *MagicLinkRepo {
	return &MagicLinkRepo{pool: pool}
}

const magicLinkColumns = `id, token_hash, tenant_id, email, portal_type, campaign_id, expires_at, used_at, created_at`

func scanMagicLink(row pgx.Row) (*models.MagicLinkToken, error) {
	var t models.MagicLinkToken
	if err := row.Scan(&t.ID, &t.TokenHash, &t.TenantID, &t.Email, &t.PortalType, &t.CampaignID,
		&t.ExpiresAt, &t.UsedAt, &t.CreatedAt); err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *MagicLinkRepo) Create(ctx context.Context, t *models.MagicLinkToken) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO magic_link_tokens (token_hash, tenant_id, email, portal_type, campaign_id, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at
	`, t.TokenHash, t.TenantID, t.Email, t.PortalType, t.CampaignID, t.ExpiresAt).Scan(&t.ID, &t.CreatedAt)
}

// Consume marks the token used and returns it, in one statement. Unknown,
// expired, already-used and other-tenant tokens all yield ErrNotFound and
// leave the row untouched.
func (r *MagicLinkRepo) Consume(ctx context.Context, tenantID uuid.UUID, tokenHash string, now time.Time) (*models.MagicLinkToken, error) {
	t, err := scanMagicLink(r.pool.QueryRow(ctx, `
		UPDATE magic_link_tokens
		SET used_at = $2
		WHERE token_hash = $1 AND used_at IS NULL AND expires_at > $2 AND tenant_id = $3
		RETURNING `+magicLinkColumns,
		tokenHash, now, tenantID))
	if err != nil {
		return nil, notFound(err)
	}
	return t, nil
}

// GetByHash is for diagnostics after a failed Consume.
func (r *MagicLinkRepo) GetByHash(ctx context.Context, tokenHash string) (*models.MagicLinkToken, error) {
	t, err := scanMagicLink(r.pool.QueryRow(ctx,
		`SELECT `+magicLinkColumns+` FROM magic_link_tokens WHERE token_hash = $1`, tokenHash))
	if err != nil {
		return nil, notFound(err)
	}
	return t, nil
}

func (r *MagicLinkRepo) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM magic_link_tokens WHERE expires_at < $1`, before)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
