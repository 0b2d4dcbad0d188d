package httpapi

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/mcare/mcare-backend/internal/events"
	"github.com/mcare/mcare-backend/internal/identity"
	"github.com/mcare/mcare-backend/internal/ratelimit"
	"github.com/mcare/mcare-backend/pkg/actor"
	"github.com/mcare/mcare-backend/pkg/errors"
	"github.com/mcare/mcare-backend/pkg/logger"
	"github.com/mcare/mcare-backend/pkg/tenant"
)

// parseTenantHeader validates the X-Tenant-ID header against spec §6's
// literal "X-Tenant-ID: UUID" contract before it ever reaches WithTenantID.
// This value is later interpolated directly into a SET LOCAL statement
// (pkg/dbx/tenant.go), so an unvalidated string here is a SQL injection
// into the tenant-isolation boundary itself, not just a bad request.
func parseTenantHeader(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", errors.Unauthenticated("missing X-Tenant-ID header")
	}
	id, err := uuid.Parse(trimmed)
	if err != nil {
		return "", errors.Unauthenticated("X-Tenant-ID must be a UUID")
	}
	return id.String(), nil
}

// auth implements the second step of the fixed middleware order (§9):
// correlation id → auth/tenant resolution → rate gate → tenant-bound
// transaction → handler. Each variant below resolves the caller's tenant
// binding a different way; none of them open a database transaction —
// that happens per-operation inside the service methods the handlers
// call, each already scoped to exactly one tenant-bound gateway.Run.
type auth struct {
	identity  *identity.Service
	publisher events.Publisher
	log       *logger.Logger
}

func newAuth(svc *identity.Service, pub events.Publisher, log *logger.Logger) *auth {
	return &auth{identity: svc, publisher: pub, log: log}
}

// resolveAPIKey authenticates the X-API-Key header, attaches the
// resulting actor and tenant binding to the request context, and fires
// the fire-and-forget usage-event publish spec §4.3 describes.
func (a *auth) resolveAPIKey(r *http.Request, endpoint string) (*http.Request, *identity.ApiKey, error) {
	plainKey := r.Header.Get("X-API-Key")
	if plainKey == "" {
		return r, nil, errors.Unauthenticated("missing X-API-Key header")
	}

	key, err := a.identity.Authenticate(r.Context(), plainKey)
	if err != nil {
		return r, nil, err
	}

	ctx := tenant.WithTenantID(r.Context(), key.TenantID)
	ctx = actor.WithActor(ctx, &actor.Actor{ID: key.ID, TenantID: key.TenantID, RoleName: key.Role})
	r = r.WithContext(ctx)

	if a.publisher != nil {
		if pubErr := events.RecordUsage(r.Context(), a.publisher, key.TenantID, key.ID, endpoint); pubErr != nil {
			a.log.Warn().Err(pubErr).Str("tenant_id", key.TenantID).Msg("failed to publish usage event")
		}
	}

	return r, key, nil
}

// RequireAPIKey accepts only X-API-Key authentication. Used for key
// rotation and the admin surface, per the endpoint table's "API key" auth
// column.
func (a *auth) RequireAPIKey(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		newR, _, err := a.resolveAPIKey(r, r.URL.Path)
		if err != nil {
			RespondError(a.log, w, r, err)
			return
		}
		next(w, newR)
	}
}

// RequireAdmin must run after RequireAPIKey; it rejects callers whose
// resolved role is not admin.
func (a *auth) RequireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		act := actor.FromContext(r.Context())
		if act == nil || act.RoleName != identity.RoleAdmin {
			RespondError(a.log, w, r, errors.Forbidden("admin role required"))
			return
		}
		next(w, r)
	}
}

// RequireTenantHeader accepts only the X-Tenant-ID header, for the case
// endpoints, which the endpoint table gates on "Tenant header" alone.
func (a *auth) RequireTenantHeader(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, err := parseTenantHeader(r.Header.Get("X-Tenant-ID"))
		if err != nil {
			RespondError(a.log, w, r, err)
			return
		}
		ctx := tenant.WithTenantID(r.Context(), tenantID)
		next(w, r.WithContext(ctx))
	}
}

// RequireAPIKeyOrTenantHeader accepts either, preferring the API key when
// both are present since it also resolves an actor identity. Used by the
// feedback endpoints per the endpoint table's "API key or tenant header".
func (a *auth) RequireAPIKeyOrTenantHeader(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-API-Key") != "" {
			newR, _, err := a.resolveAPIKey(r, r.URL.Path)
			if err != nil {
				RespondError(a.log, w, r, err)
				return
			}
			next(w, newR)
			return
		}

		tenantID, err := parseTenantHeader(r.Header.Get("X-Tenant-ID"))
		if err != nil {
			RespondError(a.log, w, r, err)
			return
		}
		ctx := tenant.WithTenantID(r.Context(), tenantID)
		next(w, r.WithContext(ctx))
	}
}

// rateGate implements the third step of the fixed order: a sliding-window
// admission check keyed by the tenant the previous step resolved. It must
// run after auth/tenant resolution, since the bucket key comes from it.
type rateGate struct {
	limiter *ratelimit.Limiter
	log     *logger.Logger
}

func newRateGate(limiter *ratelimit.Limiter, log *logger.Logger) *rateGate {
	return &rateGate{limiter: limiter, log: log}
}

func (g *rateGate) Limit(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, err := tenant.TenantID(r.Context())
		if err != nil {
			// Auth middleware should have rejected this already; fail
			// closed rather than rate-limit by a shared bucket.
			RespondError(g.log, w, r, errors.Internal("rate gate ran before tenant resolution"))
			return
		}
		if !g.limiter.Allow(tenantID) {
			RespondError(g.log, w, r, errors.RateLimited("too many requests"))
			return
		}
		next(w, r)
	}
}
