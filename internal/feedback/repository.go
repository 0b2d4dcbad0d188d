package feedback

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"

	"github.com/mcare/mcare-backend/pkg/dbx"
)

// Repository persists and reads feedback records. Every method assumes
// ctx already carries a tenant-bound transaction.
type Repository struct {
	db *dbx.DB
}

// NewRepository wraps a database connection.
func NewRepository(db *dbx.DB) *Repository {
	return &Repository{db: db}
}

// Insert appends a feedback row. Updates and deletes are denied at the
// storage layer even for this same tenant-bound connection.
func (r *Repository) Insert(ctx context.Context, tenantID string, in InsertInput, narrativeHash *string) (*Record, error) {
	top3, err := json.Marshal(in.PredictedTop3)
	if err != nil {
		return nil, err
	}
	metadata, err := json.Marshal(in.Metadata)
	if err != nil {
		return nil, err
	}

	rec := &Record{
		ID:            uuid.New().String(),
		TenantID:      tenantID,
		CaseID:        in.CaseID,
		RequestID:     in.RequestID,
		Locale:        in.Locale,
		NarrativeHash: narrativeHash,
		PredictedTop1: in.PredictedTop1,
		PredictedTop3: top3,
		ChosenRemedy:  in.ChosenRemedy,
		OutcomeType:   in.OutcomeType,
		OutcomeScore:  in.OutcomeScore,
		Notes:         in.Notes,
		Metadata:      metadata,
	}

	err = r.db.QueryRowContext(ctx, `
		INSERT INTO feedback_records
			(id, tenant_id, case_id, request_id, locale, narrative_hash,
			 predicted_top1, predicted_top3, chosen_remedy, outcome_type, outcome_score, notes, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING created_at`,
		rec.ID, rec.TenantID, rec.CaseID, rec.RequestID, rec.Locale, rec.NarrativeHash,
		rec.PredictedTop1, rec.PredictedTop3, rec.ChosenRemedy, rec.OutcomeType, rec.OutcomeScore, rec.Notes, rec.Metadata,
	).Scan(&rec.CreatedAt)
	if err != nil {
		if appErr := dbx.MapPQError(err); appErr != nil {
			return nil, appErr
		}
		return nil, err
	}

	return rec, nil
}

// ListWindow returns every feedback row created within the last `days`
// days for the tenant bound to ctx.
func (r *Repository) ListWindow(ctx context.Context, days int) ([]Record, error) {
	var rows []Record
	err := r.db.SelectContext(ctx, &rows, `
		SELECT id, tenant_id, case_id, request_id, locale, narrative_hash,
		       predicted_top1, predicted_top3, chosen_remedy, outcome_type, outcome_score, notes, metadata, created_at
		FROM feedback_records
		WHERE created_at >= NOW() - ($1 || ' days')::interval
		ORDER BY created_at DESC`, days)
	return rows, err
}
