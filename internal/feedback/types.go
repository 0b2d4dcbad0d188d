// Package feedback stores clinician feedback on case rankings and
// aggregates it into accuracy and mismatch statistics. Feedback never
// influences scoring: it is observational only.
package feedback

import (
	"encoding/json"
	"time"
)

// Outcome type values.
const (
	OutcomeAgree    = "agree"
	OutcomeDisagree = "disagree"
	OutcomeFollowup = "followup"
	OutcomeAdverse  = "adverse"
	OutcomeUnknown  = "unknown"
)

// Record mirrors the feedback_records table.
type Record struct {
	ID            string          `db:"id"`
	TenantID      string          `db:"tenant_id"`
	CaseID        *string         `db:"case_id"`
	RequestID     *string         `db:"request_id"`
	Locale        *string         `db:"locale"`
	NarrativeHash *string         `db:"narrative_hash"`
	PredictedTop1 string          `db:"predicted_top1"`
	PredictedTop3 json.RawMessage `db:"predicted_top3"`
	ChosenRemedy  string          `db:"chosen_remedy"`
	OutcomeType   string          `db:"outcome_type"`
	OutcomeScore  *int            `db:"outcome_score"`
	Notes         *string         `db:"notes"`
	Metadata      json.RawMessage `db:"metadata"`
	CreatedAt     time.Time       `db:"created_at"`
}

// InsertInput is the shape Insert accepts.
type InsertInput struct {
	CaseID        *string
	RequestID     *string
	Locale        *string
	Narrative     *string
	PredictedTop1 string
	PredictedTop3 []string
	ChosenRemedy  string
	OutcomeType   string
	OutcomeScore  *int
	Notes         *string
	Metadata      map[string]interface{}
}

// InsertResult is what Insert returns: the stored record plus the
// computed (not stored) correctness flag.
type InsertResult struct {
	Record    *Record
	IsCorrect bool
}

// MismatchPair is one row of the top_mismatches aggregate.
type MismatchPair struct {
	PredictedTop1 string `json:"predicted_top1"`
	ChosenRemedy  string `json:"chosen_remedy"`
	Count         int    `json:"count"`
}

// Summary is the windowed aggregate Summary returns.
type Summary struct {
	TotalCount    int            `json:"total_count"`
	Top1Accuracy  float64        `json:"top1_accuracy"`
	Top3Coverage  float64        `json:"top3_coverage"`
	OutcomeCounts map[string]int `json:"outcome_counts"`
	TopMismatches []MismatchPair `json:"top_mismatches"`
}
