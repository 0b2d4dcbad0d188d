package dbx

import (
	"strings"

	"github.com/lib/pq"

	"github.com/mcare/mcare-backend/pkg/errors"
)

// MapPQError converts a PostgreSQL error to an AppError with a meaningful
// message. Returns nil if err is not a *pq.Error, so callers can fall back
// to their own wrapping.
func MapPQError(err error) *errors.AppError {
	pqErr, ok := err.(*pq.Error)
	if !ok {
		return nil
	}

	switch pqErr.Code {
	case "23514": // check_violation
		return mapCheckConstraint(pqErr)

	case "23505": // unique_violation
		return errors.Conflict(formatUniqueConstraintMessage(pqErr))

	case "23503": // foreign_key_violation
		return errors.BadRequest("referenced record does not exist")

	case "23502": // not_null_violation
		col := pqErr.Column
		if col == "" {
			col = "required field"
		}
		return errors.Validation(map[string]string{
			col: "must not be empty",
		})

	default:
		return nil
	}
}

// mapCheckConstraint maps specific CHECK constraint names to field-level
// validation messages. Constraint names must match the DDL in
// internal/schema.
func mapCheckConstraint(pqErr *pq.Error) *errors.AppError {
	constraint := pqErr.Constraint

	switch {
	case strings.Contains(constraint, "cases_status_valid"):
		return errors.Validation(map[string]string{
			"status": "must be one of: draft, finalized, archived",
		})

	case strings.Contains(constraint, "cases_finalized_has_signature"):
		return errors.Validation(map[string]string{
			"result_signature": "finalized cases must carry a result signature",
		})

	case strings.Contains(constraint, "case_results_rank_positive"):
		return errors.Validation(map[string]string{
			"rank": "must be a positive integer",
		})

	case strings.Contains(constraint, "feedback_records_outcome_score_range"):
		return errors.Validation(map[string]string{
			"outcome_score": "must be between 1 and 10",
		})

	case strings.Contains(constraint, "feedback_records_top3_nonempty"):
		return errors.Validation(map[string]string{
			"predicted_top3": "must be a non-empty array",
		})

	case strings.Contains(constraint, "api_keys_role_valid"):
		return errors.Validation(map[string]string{
			"role": "must be one of: user, admin",
		})

	case strings.Contains(constraint, "tenants_billing_status_valid"):
		return errors.Validation(map[string]string{
			"billing_status": "must be one of: free, paid, subscription",
		})

	default:
		return errors.BadRequest("data validation failed: " + constraint)
	}
}

// formatUniqueConstraintMessage creates a friendly message for unique
// constraint violations.
func formatUniqueConstraintMessage(pqErr *pq.Error) string {
	constraint := pqErr.Constraint

	switch {
	case strings.Contains(constraint, "tenants_slug"):
		return "a tenant with this slug already exists"
	case strings.Contains(constraint, "api_keys_key_hash"):
		return "an api key with this value already exists"
	case strings.Contains(constraint, "patients_mrn"):
		return "a patient with this medical record number already exists"
	default:
		return "a record with these values already exists"
	}
}
