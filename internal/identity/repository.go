package identity

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/mcare/mcare-backend/pkg/dbx"
	"github.com/mcare/mcare-backend/pkg/errors"
)

// Tenant mirrors the tenants table. This table carries no tenant filter
// policy — it is the root of isolation, not a partition of it.
type Tenant struct {
	ID            string    `db:"id"`
	Name          string    `db:"name"`
	Slug          string    `db:"slug"`
	BillingStatus string    `db:"billing_status"`
	CreatedAt     time.Time `db:"created_at"`
}

// Repository persists tenants and API keys. Operations on the tenants
// table and the authenticate_api_key lookup run on the raw connection
// (no tenant binding applies or is even possible yet); every other
// api_keys operation runs through the caller-supplied tenant-bound
// context.
type Repository struct {
	db *dbx.DB
}

// NewRepository wraps a database connection.
func NewRepository(db *dbx.DB) *Repository {
	return &Repository{db: db}
}

// GetTenantByID fetches a tenant by id. Tenants carry no tenant-isolation
// policy, so this runs on the raw connection regardless of ctx.
func (r *Repository) GetTenantByID(ctx context.Context, id string) (*Tenant, error) {
	var t Tenant
	err := r.db.GetContext(ctx, &t,
		`SELECT id, name, slug, billing_status, created_at FROM tenants WHERE id = $1`, id)
	if err == sql.ErrNoRows {
		return nil, errors.NotFound("tenant")
	}
	return &t, err
}

// FindTenantByName returns the tenant with the given name, or nil if none
// exists.
func (r *Repository) FindTenantByName(ctx context.Context, name string) (*Tenant, error) {
	var t Tenant
	err := r.db.GetContext(ctx, &t,
		`SELECT id, name, slug, billing_status, created_at FROM tenants WHERE name = $1`, name)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// CreateTenant inserts a new tenant with the given name and slug.
func (r *Repository) CreateTenant(ctx context.Context, name, slug string) (*Tenant, error) {
	t := &Tenant{
		ID:            uuid.New().String(),
		Name:          name,
		Slug:          slug,
		BillingStatus: "free",
	}

	err := r.db.QueryRowContext(ctx,
		`INSERT INTO tenants (id, name, slug, billing_status) VALUES ($1, $2, $3, $4) RETURNING created_at`,
		t.ID, t.Name, t.Slug, t.BillingStatus,
	).Scan(&t.CreatedAt)
	if err != nil {
		if appErr := dbx.MapPQError(err); appErr != nil {
			return nil, appErr
		}
		return nil, err
	}

	return t, nil
}

// CreateApiKey inserts a new active API key row for tenantID under the
// caller's already tenant-bound context.
func (r *Repository) CreateApiKey(ctx context.Context, tenantID, plainKey, label, role string) (*ApiKey, error) {
	key := &ApiKey{
		ID:       uuid.New().String(),
		TenantID: tenantID,
		KeyHash:  hashKey(plainKey),
		Role:     role,
		IsActive: true,
	}
	if label != "" {
		key.Label = &label
	}

	err := r.db.QueryRowContext(ctx,
		`INSERT INTO api_keys (id, tenant_id, key_hash, label, role, is_active)
		 VALUES ($1, $2, $3, $4, $5, $6) RETURNING created_at`,
		key.ID, key.TenantID, key.KeyHash, key.Label, key.Role, key.IsActive,
	).Scan(&key.CreatedAt)
	if err != nil {
		if appErr := dbx.MapPQError(err); appErr != nil {
			return nil, appErr
		}
		return nil, err
	}

	return key, nil
}

// authResult is the row shape returned by the authenticate_api_key
// SECURITY DEFINER function.
type authResult struct {
	ID        string     `db:"id"`
	TenantID  string     `db:"tenant_id"`
	Role      string     `db:"role"`
	IsActive  bool       `db:"is_active"`
	RevokedAt *time.Time `db:"revoked_at"`
}

// ResolveByPlainKey looks up which tenant and role a plaintext API key
// belongs to, without requiring a tenant binding — there is none yet. It
// returns errors.ErrUnauthorized (wrapped) if the key is unknown,
// inactive, or revoked.
func (r *Repository) ResolveByPlainKey(ctx context.Context, plainKey string) (*ApiKey, error) {
	var row authResult
	err := r.db.GetContext(ctx, &row,
		`SELECT id, tenant_id, role, is_active, revoked_at FROM authenticate_api_key($1)`,
		hashKey(plainKey))
	if err == sql.ErrNoRows {
		return nil, errors.Unauthenticated("invalid api key")
	}
	if err != nil {
		return nil, err
	}
	if !row.IsActive || row.RevokedAt != nil {
		return nil, errors.Unauthenticated("invalid api key")
	}

	return &ApiKey{
		ID:        row.ID,
		TenantID:  row.TenantID,
		Role:      row.Role,
		IsActive:  row.IsActive,
		RevokedAt: row.RevokedAt,
	}, nil
}

// TouchLastUsed best-effort updates last_used_at for the presented key.
// Runs tenant-bound since the tenant is already known by this point.
func (r *Repository) TouchLastUsed(ctx context.Context, keyID string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE api_keys SET last_used_at = NOW() WHERE id = $1`, keyID)
	return err
}

// ListApiKeys returns every API key for the tenant bound to ctx, newest
// first.
func (r *Repository) ListApiKeys(ctx context.Context) ([]ApiKey, error) {
	var keys []ApiKey
	err := r.db.SelectContext(ctx, &keys,
		`SELECT id, tenant_id, key_hash, label, role, is_active, created_at, last_used_at, revoked_at
		 FROM api_keys ORDER BY created_at DESC`)
	return keys, err
}

// GetApiKeyByID fetches one API key by id, tenant-bound.
func (r *Repository) GetApiKeyByID(ctx context.Context, id string) (*ApiKey, error) {
	var key ApiKey
	err := r.db.GetContext(ctx, &key,
		`SELECT id, tenant_id, key_hash, label, role, is_active, created_at, last_used_at, revoked_at
		 FROM api_keys WHERE id = $1`, id)
	if err == sql.ErrNoRows {
		return nil, errors.NotFound("api key")
	}
	return &key, err
}

// RevokeApiKey marks a key revoked and inactive, tenant-bound.
func (r *Repository) RevokeApiKey(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE api_keys SET is_active = false, revoked_at = NOW() WHERE id = $1 AND revoked_at IS NULL`, id)
	if err != nil {
		return err
	}
	affected, _ := result.RowsAffected()
	if affected == 0 {
		return errors.NotFound("api key")
	}
	return nil
}

// RotateApiKey inserts a new active key and deactivates every row matching
// the presented key's hash, in one transaction. Both statements run
// through the caller-supplied tenant-bound context, so the underlying
// *sqlx.Tx is whatever pkg/dbx has already bound to this ctx.
func (r *Repository) RotateApiKey(ctx context.Context, tenantID, presentedKeyHash, newPlainKey, role string) (*ApiKey, error) {
	if _, err := r.db.ExecContext(ctx,
		`UPDATE api_keys SET is_active = false, revoked_at = NOW() WHERE key_hash = $1 AND revoked_at IS NULL`,
		presentedKeyHash); err != nil {
		return nil, err
	}

	return r.CreateApiKey(ctx, tenantID, newPlainKey, "rotated key", role)
}
