package repositories

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jobboard/campaign-portal/internal/models"
)

type TenantRepo struct {
	pool *pgxpool.Pool
}

func NewTenantRepo(pool *pgxpool.Pool) *TenantRepo {
	return &TenantRepo{pool: pool}
}

func scanTenant(row pgx.Row) (*models.Tenant, error) {
	var t models.Tenant
	if err := row.Scan(&t.ID, &t.Slug, &t.Name, &t.Domain, &t.CreatedAt); err != nil {
		return nil, notFound(err)
	}
	return &t, nil
}

func (r *TenantRepo) GetByDomain(ctx context.Context, domain string) (*models.Tenant, error) {
	return scanTenant(r.pool.QueryRow(ctx,
		`SELECT id, slug, name, domain, created_at FROM tenants WHERE domain = lower($1)`, domain))
}

func (r *TenantRepo) GetBySlug(ctx context.Context, slug string) (*models.Tenant, error) {
	return scanTenant(r.pool.QueryRow(ctx,
		`SELECT id, slug, name, domain, created_at FROM tenants WHERE slug = $1`, slug))
}

func (r *TenantRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Tenant, error) {
	return scanTenant(r.pool.QueryRow(ctx,
		`SELECT id, slug, name, domain, created_at FROM tenants WHERE id = $1`, id))
}

func (r *TenantRepo) Upsert(ctx context.Context, slug, name, domain string) (*models.Tenant, error) {
	return scanTenant(r.pool.QueryRow(ctx, `
		INSERT INTO tenants (slug, name, domain)
		VALUES ($1, $2, lower($3))
		ON CONFLICT (slug) DO UPDATE SET name = EXCLUDED.name, domain = EXCLUDED.domain
		RETURNING id, slug, name, domain, created_at
	`, slug, name, domain))
}

type UserRepo struct {
	pool *pgxpool.Pool
}

func NewUserRepo(pool *pgxpool.Pool) *UserRepo {
	return &UserRepo{pool: pool}
}

func scanUser(row pgx.Row) (*models.User, error) {
	var u models.User
	if err := row.Scan(&u.ID, &u.TenantID, &u.Email, &u.Name, &u.CreatedAt); err != nil {
		return nil, notFound(err)
	}
	return &u, nil
}

func (r *UserRepo) GetByEmail(ctx context.Context, tenantID uuid.UUID, email string) (*models.User, error) {
	return scanUser(r.pool.QueryRow(ctx, `
		SELECT id, tenant_id, email, name, created_at
		FROM users WHERE tenant_id = $1 AND lower(email) = lower($2)
	`, tenantID, email))
}

func (r *UserRepo) Upsert(ctx context.Context, tenantID uuid.UUID, email, name string) (*models.User, error) {
	return scanUser(r.pool.QueryRow(ctx, `
		INSERT INTO users (tenant_id, email, name)
		VALUES ($1, lower($2), $3)
		ON CONFLICT (tenant_id, email) DO UPDATE SET name = EXCLUDED.name
		RETURNING id, tenant_id, email, name, created_at
	`, tenantID, email, name))
}

type AgencyRepo struct {
	pool *pgxpool.Pool
}

func NewAgencyRepo(pool *pgxpool.Pool) *AgencyRepo {
	return &AgencyRepo{pool: pool}
}

func scanAgency(row pgx.Row) (*models.Agency, error) {
	var a models.Agency
	if err := row.Scan(&a.ID, &a.TenantID, &a.Name, &a.Email, &a.CreatedAt); err != nil {
		return nil, notFound(err)
	}
	return &a, nil
}

func (r *AgencyRepo) GetByID(ctx context.Context, tenantID, id uuid.UUID) (*models.Agency, error) {
	return scanAgency(r.pool.QueryRow(ctx, `
		SELECT id, tenant_id, name, email, created_at FROM agencies WHERE tenant_id = $1 AND id = $2
	`, tenantID, id))
}

func (r *AgencyRepo) GetByEmail(ctx context.Context, tenantID uuid.UUID, email string) (*models.Agency, error) {
	return scanAgency(r.pool.QueryRow(ctx, `
		SELECT id, tenant_id, name, email, created_at FROM agencies WHERE tenant_id = $1 AND lower(email) = lower($2)
	`, tenantID, email))
}

func (r *AgencyRepo) List(ctx context.Context, tenantID uuid.UUID) ([]models.Agency, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, tenant_id, name, email, created_at FROM agencies WHERE tenant_id = $1 ORDER BY name
	`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Agency
	for rows.Next() {
		a, err := scanAgency(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

func (r *AgencyRepo) Upsert(ctx context.Context, tenantID uuid.UUID, name, email string) (*models.Agency, error) {
	return scanAgency(r.pool.QueryRow(ctx, `
		INSERT INTO agencies (tenant_id, name, email)
		VALUES ($1, $2, lower($3))
		ON CONFLICT (tenant_id, email) DO UPDATE SET name = EXCLUDED.name
		RETURNING id, tenant_id, name, email, created_at
	`, tenantID, name, email))
}
