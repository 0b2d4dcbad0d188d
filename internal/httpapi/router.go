package httpapi

import (
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/mcare/mcare-backend/internal/billing"
	"github.com/mcare/mcare-backend/internal/casemgmt"
	"github.com/mcare/mcare-backend/internal/correlation"
	"github.com/mcare/mcare-backend/internal/events"
	"github.com/mcare/mcare-backend/internal/feedback"
	"github.com/mcare/mcare-backend/internal/identity"
	"github.com/mcare/mcare-backend/internal/ratelimit"
	"github.com/mcare/mcare-backend/internal/tenancy"
	"github.com/mcare/mcare-backend/pkg/dbx"
	"github.com/mcare/mcare-backend/pkg/httputil"
	"github.com/mcare/mcare-backend/pkg/i18n"
	"github.com/mcare/mcare-backend/pkg/logger"
	"github.com/mcare/mcare-backend/pkg/messaging"
)

// Deps collects every collaborator the router wires into handlers.
type Deps struct {
	DB        *dbx.DB
	RMQ       *messaging.RabbitMQ
	Identity  *identity.Service
	Cases     *casemgmt.Service
	Feedback  *feedback.Service
	Billing   *billing.Gate
	Gateway   *tenancy.Gateway
	Limiter   *ratelimit.Limiter
	Publisher events.Publisher
	Logger    *logger.Logger
}

// NewRouter assembles the full mcare-api route table. Middleware order
// within each route group follows the fixed sequence spec §9 mandates:
// correlation id, then auth/tenant resolution, then the rate gate, then
// the handler (which opens its own tenant-bound transaction per
// operation via the service it calls).
func NewRouter(d Deps) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(correlation.Middleware)
	r.Use(i18n.Middleware)
	r.Use(httputil.Logger(d.Logger))
	r.Use(httputil.Recoverer(d.Logger))
	r.Use(middleware.Timeout(60 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-ID", "X-API-Key", "X-Tenant-ID", "Authorization"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	authMw := newAuth(d.Identity, d.Publisher, d.Logger)
	rateMw := newRateGate(d.Limiter, d.Logger)

	identityH := newIdentityHandler(d.Identity, d.Billing, d.Gateway, d.Logger)
	casesH := newCasesHandler(d.Cases, d.Logger)
	feedbackH := newFeedbackHandler(d.Feedback, d.Logger)
	healthH := newHealthHandler(d.DB, d.RMQ)

	r.Get("/health/live", healthH.Live)
	r.Get("/health/ready", healthH.Ready)

	r.Post("/bootstrap", identityH.Bootstrap)

	r.Post("/auth/api-keys/rotate", authMw.RequireAPIKey(rateMw.Limit(identityH.Rotate)))

	// Admin paths are on the rate limiter's bypass list per spec §4.7
	// ("a bypass list of administrative/health paths is excluded"),
	// alongside /health/*.
	r.Route("/admin", func(admin chi.Router) {
		admin.Get("/usage", authMw.RequireAPIKey(authMw.RequireAdmin(identityH.AdminUsage)))
		admin.Get("/api-keys", authMw.RequireAPIKey(authMw.RequireAdmin(identityH.AdminListKeys)))
		admin.Post("/api-keys/revoke/{id}", authMw.RequireAPIKey(authMw.RequireAdmin(identityH.AdminRevokeKey)))
	})

	r.Route("/cases", func(cases chi.Router) {
		cases.Post("/", authMw.RequireTenantHeader(rateMw.Limit(casesH.Create)))
		cases.Post("/{id}/finalize", authMw.RequireTenantHeader(rateMw.Limit(casesH.Finalize)))
		cases.Post("/{id}/verify-replay", authMw.RequireTenantHeader(rateMw.Limit(casesH.VerifyReplay)))
		cases.Get("/{id}", authMw.RequireTenantHeader(rateMw.Limit(casesH.Get)))
	})

	r.Route("/mcare/feedback", func(fb chi.Router) {
		fb.Post("/", authMw.RequireAPIKeyOrTenantHeader(rateMw.Limit(feedbackH.Insert)))
		fb.Get("/summary", authMw.RequireAPIKeyOrTenantHeader(rateMw.Limit(feedbackH.Summary)))
	})

	return r
}
