package dbx

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

type txKey struct{}

// WithTenant executes fn inside a transaction bound to tenantID. This is the
// one mechanism by which a request may ever read or write tenant-scoped
// rows — every repository call must happen inside it.
//
// How it works:
//  1. Begins a transaction.
//  2. Sets "SET LOCAL app.tenant_id = '<tenant-uuid>'" for the duration of
//     the transaction.
//  3. Row-level security policies enforce the boundary:
//     USING (tenant_id = current_setting('app.tenant_id', true)::uuid)
//  4. Commits (or rolls back), which discards the session variable.
//
// SET LOCAL cannot be parameterized, so the tenant id is interpolated
// directly; it is safe here because tenantID is always a validated UUID
// resolved upstream (from an API key or tenant-scoped header), never raw
// user input.
func (db *DB) WithTenant(ctx context.Context, tenantID string, fn func(context.Context) error) error {
	return db.Transaction(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, fmt.Sprintf("SET LOCAL app.tenant_id = '%s'", tenantID)); err != nil {
			return fmt.Errorf("failed to set app.tenant_id: %w", err)
		}

		txCtx := context.WithValue(ctx, txKey{}, tx)
		return fn(txCtx)
	})
}

// getTx extracts the transaction from context if present.
func (db *DB) getTx(ctx context.Context) *sqlx.Tx {
	if tx, ok := ctx.Value(txKey{}).(*sqlx.Tx); ok {
		return tx
	}
	return nil
}
