package casemgmt

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/mcare/mcare-backend/internal/casemgmt/canon"
	"github.com/mcare/mcare-backend/pkg/dbx"
	"github.com/mcare/mcare-backend/pkg/errors"
)

// Repository persists cases and case results. Every method assumes ctx
// already carries a tenant-bound transaction from internal/tenancy.
type Repository struct {
	db *dbx.DB
}

// NewRepository wraps a database connection.
func NewRepository(db *dbx.DB) *Repository {
	return &Repository{db: db}
}

// FindOrCreatePatient resolves a patient by full name within the caller's
// tenant, creating one if none exists yet. There is no standalone patient
// management surface in this service's external interface, so case
// creation is the only place a patient row comes into being.
func (r *Repository) FindOrCreatePatient(ctx context.Context, tenantID, fullName string) (string, error) {
	var id string
	err := r.db.GetContext(ctx, &id,
		`SELECT id FROM patients WHERE tenant_id = $1 AND full_name = $2 LIMIT 1`, tenantID, fullName)
	if err == nil {
		return id, nil
	}
	if err != sql.ErrNoRows {
		return "", err
	}

	id = uuid.New().String()
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO patients (id, tenant_id, full_name) VALUES ($1, $2, $3)`, id, tenantID, fullName)
	if err != nil {
		if appErr := dbx.MapPQError(err); appErr != nil {
			return "", appErr
		}
		return "", err
	}
	return id, nil
}

// Create inserts a new draft case.
func (r *Repository) Create(ctx context.Context, tenantID, patientID string, inputPayload json.RawMessage, randomSeed string) (*Case, error) {
	c := &Case{
		ID:            uuid.New().String(),
		TenantID:      tenantID,
		PatientID:     patientID,
		InputPayload:  inputPayload,
		RandomSeed:    randomSeed,
		Status:        StatusDraft,
		BillingStatus: "free",
	}

	err := r.db.QueryRowContext(ctx,
		`INSERT INTO cases (id, tenant_id, patient_id, input_payload, random_seed, status, billing_status)
		 VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING created_at, updated_at`,
		c.ID, c.TenantID, c.PatientID, c.InputPayload, c.RandomSeed, c.Status, c.BillingStatus,
	).Scan(&c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if appErr := dbx.MapPQError(err); appErr != nil {
			return nil, appErr
		}
		return nil, err
	}

	return c, nil
}

// GetByID fetches a case by id, tenant-bound (RLS makes a cross-tenant id
// indistinguishable from an absent one).
func (r *Repository) GetByID(ctx context.Context, id string) (*Case, error) {
	var c Case
	err := r.db.GetContext(ctx, &c, `
		SELECT id, tenant_id, patient_id, input_payload, random_seed, status,
		       finalized_at, ranking_snapshot, result_signature,
		       replay_verified_at, replay_verification_ok, replay_verification_details,
		       billing_status, api_client_id, created_at, updated_at
		FROM cases WHERE id = $1`, id)
	if err == sql.ErrNoRows {
		return nil, errors.NotFound("case")
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// InsertResults writes the scoring adapter's output as case_results rows.
func (r *Repository) InsertResults(ctx context.Context, caseID string, rows []canon.RankRow) error {
	for _, row := range rows {
		_, err := r.db.ExecContext(ctx,
			`INSERT INTO case_results (id, case_id, rank, remedy_name, raw_score) VALUES ($1, $2, $3, $4, $5)`,
			uuid.New().String(), caseID, row.Rank, row.Remedy, row.Score)
		if err != nil {
			if appErr := dbx.MapPQError(err); appErr != nil {
				return appErr
			}
			return err
		}
	}
	return nil
}

// LoadResults reads back result rows ordered (rank ASC, remedy_name ASC),
// the tie-break order the canonicalization rule requires.
func (r *Repository) LoadResults(ctx context.Context, caseID string) ([]CaseResult, error) {
	var rows []CaseResult
	err := r.db.SelectContext(ctx, &rows,
		`SELECT id, case_id, rank, remedy_name, raw_score, metrics FROM case_results
		 WHERE case_id = $1 ORDER BY rank ASC, remedy_name ASC`, caseID)
	return rows, err
}

// Finalize updates the case to finalized, gated by a WHERE status='draft'
// guard so concurrent finalize attempts linearize: exactly one wins. A
// non-1 row count means this call lost the race.
func (r *Repository) Finalize(ctx context.Context, caseID string, snapshot json.RawMessage, signature string) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE cases
		SET status = $1, finalized_at = NOW(), ranking_snapshot = $2, result_signature = $3
		WHERE id = $4 AND status = $5`,
		StatusFinalized, snapshot, signature, caseID, StatusDraft)
	if err != nil {
		if appErr := dbx.MapPQError(err); appErr != nil {
			return appErr
		}
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected != 1 {
		return errors.Lifecycle("case is not in draft status")
	}
	return nil
}

// UpdateReplayFields stamps the three replay_* columns. The immutability
// trigger permits this on a finalized row because it never touches any
// other column.
func (r *Repository) UpdateReplayFields(ctx context.Context, caseID string, verifiedAt time.Time, ok bool, details json.RawMessage) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE cases
		SET replay_verified_at = $1, replay_verification_ok = $2, replay_verification_details = $3
		WHERE id = $4`,
		verifiedAt, ok, details, caseID)
	return err
}
