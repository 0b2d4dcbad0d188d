// Package tenancy binds every tenant-partitioned database operation to
// exactly one tenant for the lifetime of a single transaction. The services
// open their tenant-bound transactions through Gateway.Run; the usage-event
// consumer in internal/events binds its inserts with pkg/dbx.DB.WithTenant
// directly.
package tenancy

import (
	"context"

	"github.com/mcare/mcare-backend/pkg/dbx"
	"github.com/mcare/mcare-backend/pkg/errors"
)

// Gateway runs business logic inside a transaction bound to one tenant.
type Gateway struct {
	db *dbx.DB
}

// NewGateway wraps the given database connection.
func NewGateway(db *dbx.DB) *Gateway {
	return &Gateway{db: db}
}

// Run executes fn inside a transaction with the session-local tenant
// variable set as the first statement. A missing tenant id is a programmer
// error, not a runtime condition to route around: it fails immediately
// rather than silently falling through to the storage layer's fail-closed
// policy.
func (g *Gateway) Run(ctx context.Context, tenantID string, fn func(context.Context) error) error {
	if tenantID == "" {
		return errors.Internal("tenancy: Run called without a tenant id")
	}

	return g.db.WithTenant(ctx, tenantID, fn)
}
