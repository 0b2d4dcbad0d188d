package httpapi

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/mcare/mcare-backend/internal/billing"
	"github.com/mcare/mcare-backend/internal/identity"
	"github.com/mcare/mcare-backend/internal/tenancy"
	"github.com/mcare/mcare-backend/pkg/actor"
	"github.com/mcare/mcare-backend/pkg/errors"
	"github.com/mcare/mcare-backend/pkg/logger"
	"github.com/mcare/mcare-backend/pkg/tenant"
)

// identityHandler serves bootstrap, key rotation, and the admin surface.
type identityHandler struct {
	svc     *identity.Service
	billing *billing.Gate
	gateway *tenancy.Gateway
	log     *logger.Logger
}

func newIdentityHandler(svc *identity.Service, billingGate *billing.Gate, gateway *tenancy.Gateway, log *logger.Logger) *identityHandler {
	return &identityHandler{svc: svc, billing: billingGate, gateway: gateway, log: log}
}

type bootstrapRequest struct {
	TenantName string  `json:"tenant_name"`
	AdminEmail *string `json:"admin_email,omitempty"`
}

type bootstrapResponse struct {
	TenantID   string `json:"tenant_id"`
	TenantName string `json:"tenant_name"`
	ApiKey     string `json:"api_key"`
	Role       string `json:"role"`
}

// Bootstrap handles POST /bootstrap. Auth is a single-use bearer token,
// not a resolved tenant, so it runs ahead of the regular auth middleware.
func (h *identityHandler) Bootstrap(w http.ResponseWriter, r *http.Request) {
	var req bootstrapRequest
	if err := decodeJSON(r, &req); err != nil {
		RespondError(h.log, w, r, err)
		return
	}

	token := bearerToken(r)
	result, err := h.svc.Bootstrap(r.Context(), token, req.TenantName, req.AdminEmail)
	if err != nil {
		RespondError(h.log, w, r, err)
		return
	}

	Respond(w, http.StatusCreated, bootstrapResponse{
		TenantID:   result.Tenant.ID,
		TenantName: result.Tenant.Name,
		ApiKey:     result.PlainKey,
		Role:       result.ApiKey.Role,
	})
}

type rotateResponse struct {
	TenantID string `json:"tenant_id"`
	ApiKey   string `json:"api_key"`
	Role     string `json:"role"`
}

// Rotate handles POST /auth/api-keys/rotate. The auth middleware has
// already authenticated the presented key and attached its tenant/role;
// the plaintext itself is read again here since Rotate needs to hash and
// deactivate the exact key that was presented.
func (h *identityHandler) Rotate(w http.ResponseWriter, r *http.Request) {
	act := actor.FromContext(r.Context())
	presented := r.Header.Get("X-API-Key")

	result, err := h.svc.Rotate(r.Context(), act.TenantID, presented, act.RoleName)
	if err != nil {
		RespondError(h.log, w, r, err)
		return
	}

	Respond(w, http.StatusOK, rotateResponse{
		TenantID: act.TenantID,
		ApiKey:   result.PlainKey,
		Role:     result.ApiKey.Role,
	})
}

// AdminUsage handles GET /admin/usage. usage_events carries FORCE ROW LEVEL
// SECURITY, so Stats must run inside the same tenant-bound transaction as
// every other tenant-scoped read — without it, the query runs against the
// raw pool with no SET LOCAL app.tenant_id, and RLS fails closed to zero
// rows rather than leaking cross-tenant data.
func (h *identityHandler) AdminUsage(w http.ResponseWriter, r *http.Request) {
	tenantID, err := tenant.TenantID(r.Context())
	if err != nil {
		RespondError(h.log, w, r, errors.Internal("tenant missing from context"))
		return
	}

	days := 30
	if raw := r.URL.Query().Get("days"); raw != "" {
		if parsed, err := parsePositiveInt(raw); err == nil {
			days = parsed
		}
	}

	var stats *billing.Stats
	err = h.gateway.Run(r.Context(), tenantID, func(tenantCtx context.Context) error {
		var statsErr error
		stats, statsErr = h.billing.Stats(tenantCtx, days)
		return statsErr
	})
	if err != nil {
		RespondError(h.log, w, r, err)
		return
	}
	Respond(w, http.StatusOK, stats)
}

type apiKeyView struct {
	ID         string  `json:"id"`
	Label      *string `json:"label"`
	Role       string  `json:"role"`
	IsActive   bool    `json:"is_active"`
	CreatedAt  string  `json:"created_at"`
	LastUsedAt *string `json:"last_used_at,omitempty"`
}

// AdminListKeys handles GET /admin/api-keys. Plaintext and key hashes are
// never included.
func (h *identityHandler) AdminListKeys(w http.ResponseWriter, r *http.Request) {
	tenantID, err := tenant.TenantID(r.Context())
	if err != nil {
		RespondError(h.log, w, r, errors.Internal("tenant missing from context"))
		return
	}

	keys, err := h.svc.ListKeys(r.Context(), tenantID)
	if err != nil {
		RespondError(h.log, w, r, err)
		return
	}

	out := make([]apiKeyView, len(keys))
	for i, k := range keys {
		view := apiKeyView{ID: k.ID, Label: k.Label, Role: k.Role, IsActive: k.IsActive, CreatedAt: k.CreatedAt.Format(timeLayout)}
		if k.LastUsedAt != nil {
			s := k.LastUsedAt.Format(timeLayout)
			view.LastUsedAt = &s
		}
		out[i] = view
	}

	Respond(w, http.StatusOK, out)
}

// AdminRevokeKey handles POST /admin/api-keys/revoke/{id}.
func (h *identityHandler) AdminRevokeKey(w http.ResponseWriter, r *http.Request) {
	tenantID, err := tenant.TenantID(r.Context())
	if err != nil {
		RespondError(h.log, w, r, errors.Internal("tenant missing from context"))
		return
	}
	keyID := chi.URLParam(r, "id")

	if err := h.svc.Revoke(r.Context(), tenantID, keyID); err != nil {
		RespondError(h.log, w, r, err)
		return
	}

	Respond(w, http.StatusOK, map[string]string{"id": keyID, "status": "revoked"})
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if strings.HasPrefix(header, prefix) {
		return strings.TrimPrefix(header, prefix)
	}
	return ""
}
