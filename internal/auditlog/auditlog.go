// Package auditlog appends access and audit rows under the caller's
// already tenant-bound transaction. Both writers are best-effort: a
// failure to append is logged and swallowed, never propagated back to
// unwind the surrounding business transaction, per spec §4.5/§7.
package auditlog

import (
	"context"
	"encoding/json"
	"time"

	"github.com/mcare/mcare-backend/pkg/dbx"
	"github.com/mcare/mcare-backend/pkg/logger"
)

// Access action kinds.
const (
	ActionView   = "VIEW"
	ActionVerify = "VERIFY"
)

// Audit action kinds.
const (
	ActionFinalize = "FINALIZE"
)

// Writer appends access-log and audit-log rows.
type Writer struct {
	db     *dbx.DB
	logger *logger.Logger
}

// NewWriter wraps a database connection and logger.
func NewWriter(db *dbx.DB, log *logger.Logger) *Writer {
	return &Writer{db: db, logger: log}
}

// AppendAccess records a read of a sensitive record. Best-effort: errors
// are logged, not returned, so a logging hiccup never fails the read it
// is describing.
func (w *Writer) AppendAccess(ctx context.Context, tenantID, userID, caseID, action string) {
	_, err := w.db.ExecContext(ctx,
		`INSERT INTO access_log (tenant_id, user_id, case_id, action) VALUES ($1, $2, $3, $4)`,
		tenantID, userID, caseID, action)
	if err != nil {
		w.logger.Error().Err(err).
			Str("tenant_id", tenantID).
			Str("action", action).
			Msg("failed to append access log row")
	}
}

// AppendAudit records a write that crosses a lifecycle threshold.
// Best-effort, same swallow-and-log policy as AppendAccess.
func (w *Writer) AppendAudit(ctx context.Context, tenantID, userID, action, tableName, recordID string, metadata map[string]interface{}) {
	meta, err := json.Marshal(metadata)
	if err != nil {
		w.logger.Error().Err(err).Msg("failed to marshal audit log metadata")
		return
	}

	_, err = w.db.ExecContext(ctx,
		`INSERT INTO audit_log (tenant_id, user_id, action, table_name, record_id, metadata) VALUES ($1, $2, $3, $4, $5, $6)`,
		tenantID, userID, action, tableName, recordID, meta)
	if err != nil {
		w.logger.Error().Err(err).
			Str("tenant_id", tenantID).
			Str("action", action).
			Msg("failed to append audit log row")
	}
}

// FinalizeMetadata is the shape of an auto-generated FINALIZE audit row.
func FinalizeMetadata() map[string]interface{} {
	return map[string]interface{}{
		"auto": true,
		"ts":   time.Now().Unix(),
	}
}
