// Package billing gates case creation against a tenant's free-tier usage
// allowance. It never consults anything outside the database under the
// caller's own tenant binding — no external billing service round-trip.
package billing

import (
	"context"

	"github.com/mcare/mcare-backend/pkg/dbx"
	"github.com/mcare/mcare-backend/pkg/errors"
)

// Billing tiers. Paid and subscription bypass the free-tier usage check
// entirely.
const (
	TierFree         = "free"
	TierPaid         = "paid"
	TierSubscription = "subscription"
)

// Gate checks a tenant's usage against its configured free-tier limit.
type Gate struct {
	db            *dbx.DB
	freeTierLimit int
}

// NewGate wraps a database connection and the configured free-tier event
// limit.
func NewGate(db *dbx.DB, freeTierLimit int) *Gate {
	return &Gate{db: db, freeTierLimit: freeTierLimit}
}

// Check refuses case creation if tenantBillingStatus is free and the
// tenant's all-time usage-event count already meets or exceeds the
// configured limit. Paid and subscription tiers always pass.
func (g *Gate) Check(ctx context.Context, tenantBillingStatus string) error {
	if tenantBillingStatus != TierFree {
		return nil
	}

	var count int
	if err := g.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM usage_events`); err != nil {
		return err
	}

	if count >= g.freeTierLimit {
		return errors.PaymentRequired("free tier usage limit exceeded")
	}
	return nil
}

// EndpointCount is one row of a per-endpoint usage breakdown.
type EndpointCount struct {
	Endpoint string `db:"endpoint" json:"endpoint"`
	Count    int    `db:"count" json:"count"`
}

// Stats aggregates the calling tenant's usage events over the last `days`
// days, for the admin usage surface. Runs under the caller's tenant
// binding, same as Check.
type Stats struct {
	TotalCount    int             `json:"total_count"`
	FreeTierLimit int             `json:"free_tier_limit"`
	ByEndpoint    []EndpointCount `json:"by_endpoint"`
}

// Stats reports usage volume and its breakdown by endpoint for the last
// `days` days.
func (g *Gate) Stats(ctx context.Context, days int) (*Stats, error) {
	var total int
	if err := g.db.GetContext(ctx, &total,
		`SELECT COUNT(*) FROM usage_events WHERE created_at >= NOW() - ($1 || ' days')::interval`, days); err != nil {
		return nil, err
	}

	var byEndpoint []EndpointCount
	if err := g.db.SelectContext(ctx, &byEndpoint,
		`SELECT endpoint, COUNT(*) AS count FROM usage_events
		 WHERE created_at >= NOW() - ($1 || ' days')::interval
		 GROUP BY endpoint ORDER BY count DESC`, days); err != nil {
		return nil, err
	}

	return &Stats{TotalCount: total, FreeTierLimit: g.freeTierLimit, ByEndpoint: byEndpoint}, nil
}
