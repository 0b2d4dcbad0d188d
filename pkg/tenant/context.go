// Package tenant carries the resolved tenant id through a request's
// context, separate from the database-session binding in pkg/dbx.
package tenant

import (
	"context"
	"errors"
)

type contextKey string

const tenantIDKey contextKey = "tenant_id"

// ErrNoTenantInContext is returned when tenant context is missing.
var ErrNoTenantInContext = errors.New("no tenant in context")

// WithTenantID adds the tenant id to the context.
func WithTenantID(ctx context.Context, tenantID string) context.Context {
	return context.WithValue(ctx, tenantIDKey, tenantID)
}

// TenantID extracts the tenant id from context.
// Returns ErrNoTenantInContext if not found.
func TenantID(ctx context.Context) (string, error) {
	id, ok := ctx.Value(tenantIDKey).(string)
	if !ok || id == "" {
		return "", ErrNoTenantInContext
	}
	return id, nil
}

// MustTenantID extracts the tenant id and panics if absent.
// Use only where a missing tenant id is a programmer error.
func MustTenantID(ctx context.Context) string {
	id, err := TenantID(ctx)
	if err != nil {
		panic("tenant id not found in context")
	}
	return id
}
