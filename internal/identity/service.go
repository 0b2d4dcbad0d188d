package identity

import (
	"context"
	"regexp"
	"strings"

	"github.com/mcare/mcare-backend/internal/tenancy"
	"github.com/mcare/mcare-backend/pkg/errors"
)

var slugPattern = regexp.MustCompile(`[^a-z0-9]+`)

// Service implements tenant bootstrap and API key lifecycle management.
// Bootstrap's tenant lookup/creation and Authenticate's key lookup run on
// the raw connection because, by definition, the tenant isn't known yet at
// either point; every read or write of api_keys (including the key that
// Bootstrap mints) runs inside a transaction the tenancy gateway has
// already bound to one tenant.
type Service struct {
	repo           *Repository
	gateway        *tenancy.Gateway
	bootstrapToken string
}

// NewService wires a repository, the tenancy gateway, and the configured
// bootstrap shared secret. An empty bootstrapToken disables Bootstrap
// entirely.
func NewService(repo *Repository, gateway *tenancy.Gateway, bootstrapToken string) *Service {
	return &Service{repo: repo, gateway: gateway, bootstrapToken: bootstrapToken}
}

// BootstrapResult carries the one-time plaintext key back to the caller.
type BootstrapResult struct {
	Tenant   *Tenant
	ApiKey   *ApiKey
	PlainKey string
}

// Bootstrap resolves or creates a tenant by name and mints exactly one new
// API key, returning its plaintext exactly once. presentedToken must match
// the configured shared secret in constant time.
func (s *Service) Bootstrap(ctx context.Context, presentedToken, tenantName string, adminEmail *string) (*BootstrapResult, error) {
	if s.bootstrapToken == "" {
		return nil, errors.Unavailable("bootstrap is disabled")
	}
	if !secretsEqual(presentedToken, s.bootstrapToken) {
		return nil, errors.Unauthenticated("invalid bootstrap token")
	}
	if tenantName == "" {
		return nil, errors.Validation(map[string]string{"tenant_name": "must not be empty"})
	}

	tenant, err := s.repo.FindTenantByName(ctx, tenantName)
	if err != nil {
		return nil, err
	}
	if tenant == nil {
		tenant, err = s.repo.CreateTenant(ctx, tenantName, slugify(tenantName))
		if err != nil {
			return nil, err
		}
	}

	plainKey, err := generatePlainKey()
	if err != nil {
		return nil, errors.Internal("failed to generate api key")
	}

	role := RoleUser
	label := "bootstrap key"
	if adminEmail != nil && *adminEmail != "" {
		role = RoleAdmin
		label = "bootstrap admin key"
	}

	var key *ApiKey
	err = s.gateway.Run(ctx, tenant.ID, func(tenantCtx context.Context) error {
		var createErr error
		key, createErr = s.repo.CreateApiKey(tenantCtx, tenant.ID, plainKey, label, role)
		return createErr
	})
	if err != nil {
		return nil, err
	}

	return &BootstrapResult{Tenant: tenant, ApiKey: key, PlainKey: plainKey}, nil
}

// Authenticate resolves which tenant and role a presented plaintext API
// key belongs to. The key lookup does not run inside a tenant-bound
// transaction, because the tenant isn't known until it returns; the
// last_used_at stamp that follows runs bound to the resolved tenant.
func (s *Service) Authenticate(ctx context.Context, plainKey string) (*ApiKey, error) {
	if plainKey == "" {
		return nil, errors.Unauthenticated("missing api key")
	}
	key, err := s.repo.ResolveByPlainKey(ctx, plainKey)
	if err != nil {
		return nil, err
	}

	_ = s.gateway.Run(ctx, key.TenantID, func(tenantCtx context.Context) error {
		return s.repo.TouchLastUsed(tenantCtx, key.ID)
	})

	return key, nil
}

// Rotate inserts a new active key for the tenant the presented key belongs
// to, and deactivates every row matching the presented key's hash, in one
// tenant-bound transaction. Returns the new plaintext key exactly once.
func (s *Service) Rotate(ctx context.Context, tenantID string, presentedPlainKey string, role string) (*BootstrapResult, error) {
	newPlainKey, err := generatePlainKey()
	if err != nil {
		return nil, errors.Internal("failed to generate api key")
	}

	var key *ApiKey
	err = s.gateway.Run(ctx, tenantID, func(tenantCtx context.Context) error {
		var rotateErr error
		key, rotateErr = s.repo.RotateApiKey(tenantCtx, tenantID, hashKey(presentedPlainKey), newPlainKey, role)
		return rotateErr
	})
	if err != nil {
		return nil, err
	}

	return &BootstrapResult{ApiKey: key, PlainKey: newPlainKey}, nil
}

// ListKeys returns every API key belonging to the tenant bound to ctx.
// Callers must already have authorized the presenting key as admin.
func (s *Service) ListKeys(ctx context.Context, tenantID string) ([]ApiKey, error) {
	var keys []ApiKey
	err := s.gateway.Run(ctx, tenantID, func(tenantCtx context.Context) error {
		var listErr error
		keys, listErr = s.repo.ListApiKeys(tenantCtx)
		return listErr
	})
	return keys, err
}

// Revoke marks the given key id revoked and inactive within the tenant
// bound to ctx.
func (s *Service) Revoke(ctx context.Context, tenantID, keyID string) error {
	return s.gateway.Run(ctx, tenantID, func(tenantCtx context.Context) error {
		return s.repo.RevokeApiKey(tenantCtx, keyID)
	})
}

// TenantBillingStatus resolves a tenant's billing tier by id. Satisfies
// internal/casemgmt's TenantBillingResolver interface.
func (s *Service) TenantBillingStatus(ctx context.Context, tenantID string) (string, error) {
	t, err := s.repo.GetTenantByID(ctx, tenantID)
	if err != nil {
		return "", err
	}
	return t.BillingStatus, nil
}

// RequireAdmin returns errors.Forbidden if the key's role is not admin.
func RequireAdmin(key *ApiKey) error {
	if key.Role != RoleAdmin {
		return errors.Forbidden("admin role required")
	}
	return nil
}

// slugify derives a URL-safe, lowercase slug from a tenant name.
func slugify(name string) string {
	lower := strings.ToLower(name)
	slug := slugPattern.ReplaceAllString(lower, "-")
	return strings.Trim(slug, "-")
}
