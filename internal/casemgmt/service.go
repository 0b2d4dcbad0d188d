package casemgmt

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/mcare/mcare-backend/internal/auditlog"
	"github.com/mcare/mcare-backend/internal/billing"
	"github.com/mcare/mcare-backend/internal/casemgmt/canon"
	"github.com/mcare/mcare-backend/internal/scoring"
	"github.com/mcare/mcare-backend/internal/tenancy"
	"github.com/mcare/mcare-backend/pkg/actor"
	"github.com/mcare/mcare-backend/pkg/errors"
)

// Service implements the case lifecycle: create, finalize, verify-replay,
// and read, each running inside exactly one tenant-bound transaction.
type Service struct {
	repo    *Repository
	gateway *tenancy.Gateway
	audit   *auditlog.Writer
	billing *billing.Gate
	scorer  scoring.Adapter
	tenants TenantBillingResolver
}

// TenantBillingResolver resolves a tenant's billing tier by id. Declared
// narrowly so casemgmt depends only on the one field it needs, not
// identity's whole Tenant type.
type TenantBillingResolver interface {
	TenantBillingStatus(ctx context.Context, tenantID string) (string, error)
}

// NewService wires the case repository against its collaborators.
func NewService(repo *Repository, gateway *tenancy.Gateway, audit *auditlog.Writer, billingGate *billing.Gate, scorer scoring.Adapter, tenants TenantBillingResolver) *Service {
	return &Service{repo: repo, gateway: gateway, audit: audit, billing: billingGate, scorer: scorer, tenants: tenants}
}

// Create inserts a draft case after passing the billing gate. There is no
// standalone patient management surface (spec §6's endpoint table has
// none), so patientFullName resolves or creates the owning patient row in
// the same tenant-bound transaction as the case insert.
func (s *Service) Create(ctx context.Context, tenantID, patientFullName string, inputPayload json.RawMessage, randomSeed string) (*Case, error) {
	if randomSeed == "" {
		randomSeed = "0"
	}
	if patientFullName == "" {
		return nil, errors.Validation(map[string]string{"patient_full_name": "must not be empty"})
	}

	tier, err := s.tenants.TenantBillingStatus(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	var c *Case
	err = s.gateway.Run(ctx, tenantID, func(tenantCtx context.Context) error {
		if err := s.billing.Check(tenantCtx, tier); err != nil {
			return err
		}

		patientID, err := s.repo.FindOrCreatePatient(tenantCtx, tenantID, patientFullName)
		if err != nil {
			return err
		}

		var createErr error
		c, createErr = s.repo.Create(tenantCtx, tenantID, patientID, inputPayload, randomSeed)
		return createErr
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Finalize runs the six-step finalize algorithm: load, score, persist
// results, sign, stamp, audit.
func (s *Service) Finalize(ctx context.Context, tenantID, caseID string) (*Case, error) {
	var result *Case
	err := s.gateway.Run(ctx, tenantID, func(tenantCtx context.Context) error {
		c, err := s.repo.GetByID(tenantCtx, caseID)
		if err != nil {
			return err
		}
		if c.Status != StatusDraft {
			return errors.Lifecycle("case is not in draft status")
		}

		rows, err := s.scorer.Score(tenantCtx, c.ID, c.InputPayload, nil, c.RandomSeed)
		if err != nil {
			return errors.Unavailable("scoring adapter failed")
		}
		if len(rows) == 0 {
			return errors.Lifecycle("scoring adapter returned an empty ranking")
		}

		if err := s.repo.InsertResults(tenantCtx, c.ID, rows); err != nil {
			return err
		}

		loaded, err := s.repo.LoadResults(tenantCtx, c.ID)
		if err != nil {
			return err
		}

		canonical := toRankRows(loaded)
		snapshotBytes := canon.Encode(canonical)
		signature := sha256Hex(snapshotBytes)

		if err := s.repo.Finalize(tenantCtx, c.ID, json.RawMessage(snapshotBytes), signature); err != nil {
			return err
		}

		s.audit.AppendAudit(tenantCtx, tenantID, actorID(tenantCtx),
			auditlog.ActionFinalize, "cases", c.ID, auditlog.FinalizeMetadata())

		result, err = s.repo.GetByID(tenantCtx, c.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// VerifyReplay recomputes the canonical encoding of the stored ranking
// snapshot and compares it against the stored signature. Idempotent:
// repeated calls re-stamp the timestamp but never flip ok for unchanged
// data, because the computation is a pure function of the stored snapshot.
func (s *Service) VerifyReplay(ctx context.Context, tenantID, caseID string) (*VerifyReplayResult, error) {
	var out *VerifyReplayResult
	err := s.gateway.Run(ctx, tenantID, func(tenantCtx context.Context) error {
		c, err := s.repo.GetByID(tenantCtx, caseID)
		if err != nil {
			return err
		}
		if c.Status != StatusFinalized {
			return errors.Lifecycle("case is not finalized")
		}
		if c.RankingSnapshot == nil {
			return errors.Lifecycle("case has no ranking snapshot to verify")
		}

		var stored []canon.RankRow
		if err := json.Unmarshal(*c.RankingSnapshot, &stored); err != nil {
			return err
		}
		computed := sha256Hex(canon.Encode(stored))
		expected := ""
		if c.ResultSignature != nil {
			expected = *c.ResultSignature
		}
		ok := computed == expected
		verifiedAt := time.Now().UTC()

		details := ReplayDetails{Expected: expected, Computed: computed, Match: ok}
		detailBytes, err := json.Marshal(details)
		if err != nil {
			return err
		}

		if err := s.repo.UpdateReplayFields(tenantCtx, c.ID, verifiedAt, ok, detailBytes); err != nil {
			return err
		}

		s.audit.AppendAccess(tenantCtx, tenantID, actorID(tenantCtx), c.ID, auditlog.ActionVerify)

		out = &VerifyReplayResult{OK: ok, Expected: expected, Computed: computed, VerifiedAt: verifiedAt}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Get reads a case and records an AccessLog VIEW row. A missing row and a
// cross-tenant row are indistinguishable: both surface as not_found.
func (s *Service) Get(ctx context.Context, tenantID, caseID string) (*Case, error) {
	var c *Case
	err := s.gateway.Run(ctx, tenantID, func(tenantCtx context.Context) error {
		var getErr error
		c, getErr = s.repo.GetByID(tenantCtx, caseID)
		if getErr != nil {
			return getErr
		}
		s.audit.AppendAccess(tenantCtx, tenantID, actorID(tenantCtx), c.ID, auditlog.ActionView)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

func toRankRows(results []CaseResult) []canon.RankRow {
	rows := make([]canon.RankRow, len(results))
	for i, r := range results {
		rows[i] = canon.RankRow{Rank: r.Rank, Remedy: r.RemedyName, Score: r.RawScore}
	}
	return rows
}

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// actorID resolves the acting user id for audit/access rows, falling
// back to the system sentinel for requests authenticated only by API key
// (no further user identity to record).
func actorID(ctx context.Context) string {
	if a := actor.FromContext(ctx); a != nil {
		return a.ID
	}
	return actor.SystemActor().ID
}
