// Package casemgmt implements the case lifecycle: create, finalize,
// verify-replay, and read, each under the tenant-bound transaction the
// tenancy gateway provides.
package casemgmt

import (
	"encoding/json"
	"time"
)

// Status values a case can hold.
const (
	StatusDraft     = "draft"
	StatusFinalized = "finalized"
	StatusArchived  = "archived"
)

// Case mirrors the cases table.
type Case struct {
	ID                        string           `db:"id"`
	TenantID                  string           `db:"tenant_id"`
	PatientID                 string           `db:"patient_id"`
	InputPayload              json.RawMessage  `db:"input_payload"`
	RandomSeed                string           `db:"random_seed"`
	Status                    string           `db:"status"`
	FinalizedAt               *time.Time       `db:"finalized_at"`
	RankingSnapshot           *json.RawMessage `db:"ranking_snapshot"`
	ResultSignature           *string          `db:"result_signature"`
	ReplayVerifiedAt          *time.Time       `db:"replay_verified_at"`
	ReplayVerificationOK      *bool            `db:"replay_verification_ok"`
	ReplayVerificationDetails *json.RawMessage `db:"replay_verification_details"`
	BillingStatus             string           `db:"billing_status"`
	ApiClientID               *string          `db:"api_client_id"`
	CreatedAt                 time.Time        `db:"created_at"`
	UpdatedAt                 time.Time        `db:"updated_at"`
}

// CaseResult mirrors one row of case_results.
type CaseResult struct {
	ID         string          `db:"id"`
	CaseID     string          `db:"case_id"`
	Rank       int             `db:"rank"`
	RemedyName string          `db:"remedy_name"`
	RawScore   float64         `db:"raw_score"`
	Metrics    json.RawMessage `db:"metrics"`
}

// ReplayDetails is the JSON shape persisted into
// replay_verification_details.
type ReplayDetails struct {
	Expected string `json:"expected"`
	Computed string `json:"computed"`
	Match    bool   `json:"match"`
}

// VerifyReplayResult is what VerifyReplay returns to its caller.
type VerifyReplayResult struct {
	OK         bool      `json:"ok"`
	Expected   string    `json:"expected"`
	Computed   string    `json:"computed"`
	VerifiedAt time.Time `json:"verified_at"`
}
