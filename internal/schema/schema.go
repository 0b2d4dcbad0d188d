// Package schema owns the relational schema: table DDL, row-level
// security policies, and the triggers that enforce case immutability and
// audit-log WORM semantics. Bootstrap is idempotent so it is safe to run
// against both a fresh database and one already at the current schema.
package schema

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// Bootstrap creates every table, trigger, and policy this service needs.
// It is run once at process startup (and again, against a disposable
// container, at the start of every integration test run).
func Bootstrap(ctx context.Context, db *sqlx.DB) error {
	statements := []string{
		extensionDDL,
		tenantsDDL,
		apiKeysDDL,
		patientsDDL,
		casesDDL,
		caseResultsDDL,
		accessLogDDL,
		auditLogDDL,
		usageEventsDDL,
		feedbackRecordsDDL,
		updatedAtTriggerFunctionDDL,
		updatedAtTriggersDDL,
		tenantIsolationPoliciesDDL,
		caseImmutabilityTriggerDDL,
		auditLogWORMTriggerDDL,
		feedbackAppendOnlyPoliciesDDL,
		authenticateApiKeyFunctionDDL,
	}

	for i, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("schema bootstrap statement %d: %w", i, err)
		}
	}

	return nil
}

const extensionDDL = `
CREATE EXTENSION IF NOT EXISTS pgcrypto;
`

const tenantsDDL = `
CREATE TABLE IF NOT EXISTS tenants (
	id              UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	name            VARCHAR(255) NOT NULL,
	slug            VARCHAR(100) NOT NULL,
	billing_status  VARCHAR(20) NOT NULL DEFAULT 'free'
	                CONSTRAINT tenants_billing_status_valid
	                CHECK (billing_status IN ('free', 'paid', 'subscription')),
	created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE UNIQUE INDEX IF NOT EXISTS tenants_slug_key ON tenants (slug);
`

const apiKeysDDL = `
CREATE TABLE IF NOT EXISTS api_keys (
	id            UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	tenant_id     UUID NOT NULL REFERENCES tenants(id),
	key_hash      VARCHAR(64) NOT NULL,
	label         VARCHAR(255),
	role          VARCHAR(20) NOT NULL DEFAULT 'user'
	              CONSTRAINT api_keys_role_valid CHECK (role IN ('user', 'admin')),
	is_active     BOOLEAN NOT NULL DEFAULT TRUE,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	last_used_at  TIMESTAMPTZ,
	revoked_at    TIMESTAMPTZ
);
CREATE UNIQUE INDEX IF NOT EXISTS api_keys_key_hash_key ON api_keys (key_hash);
CREATE INDEX IF NOT EXISTS api_keys_tenant_id_idx ON api_keys (tenant_id);
`

const patientsDDL = `
CREATE TABLE IF NOT EXISTS patients (
	id         UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	tenant_id  UUID NOT NULL REFERENCES tenants(id),
	full_name  VARCHAR(255) NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS patients_tenant_id_idx ON patients (tenant_id);
`

const casesDDL = `
CREATE TABLE IF NOT EXISTS cases (
	id                          UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	tenant_id                   UUID NOT NULL REFERENCES tenants(id),
	patient_id                  UUID NOT NULL REFERENCES patients(id),
	input_payload               JSONB NOT NULL,
	random_seed                 VARCHAR(255) NOT NULL DEFAULT '0',
	status                      VARCHAR(20) NOT NULL DEFAULT 'draft'
	                            CONSTRAINT cases_status_valid
	                            CHECK (status IN ('draft', 'finalized', 'archived')),
	finalized_at                TIMESTAMPTZ,
	ranking_snapshot            JSONB,
	result_signature            VARCHAR(64),
	replay_verified_at          TIMESTAMPTZ,
	replay_verification_ok      BOOLEAN,
	replay_verification_details JSONB,
	billing_status              VARCHAR(20) NOT NULL DEFAULT 'free'
	                            CONSTRAINT cases_billing_status_valid
	                            CHECK (billing_status IN ('free', 'paid', 'subscription')),
	api_client_id               UUID REFERENCES api_keys(id),
	created_at                  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at                  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	CONSTRAINT cases_finalized_has_signature
		CHECK (status <> 'finalized' OR result_signature IS NOT NULL)
);
CREATE INDEX IF NOT EXISTS cases_tenant_id_idx ON cases (tenant_id);
CREATE INDEX IF NOT EXISTS cases_tenant_status_idx ON cases (tenant_id, status);
`

const caseResultsDDL = `
CREATE TABLE IF NOT EXISTS case_results (
	id          UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	case_id     UUID NOT NULL REFERENCES cases(id),
	rank        INTEGER NOT NULL CONSTRAINT case_results_rank_positive CHECK (rank > 0),
	remedy_name VARCHAR(255) NOT NULL,
	raw_score   DOUBLE PRECISION NOT NULL,
	metrics     JSONB
);
CREATE INDEX IF NOT EXISTS case_results_case_id_idx ON case_results (case_id, rank, remedy_name);
`

const accessLogDDL = `
CREATE TABLE IF NOT EXISTS access_log (
	id          BIGSERIAL PRIMARY KEY,
	tenant_id   UUID NOT NULL REFERENCES tenants(id),
	user_id     UUID NOT NULL,
	case_id     UUID REFERENCES cases(id),
	action      VARCHAR(20) NOT NULL,
	accessed_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS access_log_tenant_id_idx ON access_log (tenant_id, accessed_at DESC);
`

const auditLogDDL = `
CREATE TABLE IF NOT EXISTS audit_log (
	id         BIGSERIAL PRIMARY KEY,
	tenant_id  UUID NOT NULL REFERENCES tenants(id),
	user_id    UUID NOT NULL,
	action     VARCHAR(50) NOT NULL,
	table_name VARCHAR(100) NOT NULL,
	record_id  UUID,
	metadata   JSONB,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS audit_log_tenant_id_idx ON audit_log (tenant_id, created_at DESC);
`

const usageEventsDDL = `
CREATE TABLE IF NOT EXISTS usage_events (
	id         BIGSERIAL PRIMARY KEY,
	tenant_id  UUID NOT NULL REFERENCES tenants(id),
	api_key_id UUID REFERENCES api_keys(id),
	endpoint   VARCHAR(255) NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS usage_events_tenant_id_idx ON usage_events (tenant_id, created_at DESC);
`

const feedbackRecordsDDL = `
CREATE TABLE IF NOT EXISTS feedback_records (
	id               UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	tenant_id        UUID NOT NULL REFERENCES tenants(id),
	case_id          UUID REFERENCES cases(id),
	request_id       VARCHAR(64),
	locale           VARCHAR(10),
	narrative_hash   VARCHAR(64),
	predicted_top1   VARCHAR(255) NOT NULL,
	predicted_top3   JSONB NOT NULL
	                 CONSTRAINT feedback_records_top3_nonempty
	                 CHECK (jsonb_typeof(predicted_top3) = 'array' AND jsonb_array_length(predicted_top3) > 0),
	chosen_remedy    VARCHAR(255) NOT NULL,
	outcome_type     VARCHAR(20) NOT NULL
	                 CONSTRAINT feedback_records_outcome_type_valid
	                 CHECK (outcome_type IN ('agree', 'disagree', 'followup', 'adverse', 'unknown')),
	outcome_score    INTEGER
	                 CONSTRAINT feedback_records_outcome_score_range
	                 CHECK (outcome_score IS NULL OR outcome_score BETWEEN 1 AND 10),
	notes            TEXT,
	metadata         JSONB,
	created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	CONSTRAINT feedback_records_predicted_top1_nonempty CHECK (predicted_top1 <> ''),
	CONSTRAINT feedback_records_chosen_remedy_nonempty CHECK (chosen_remedy <> '')
);
CREATE INDEX IF NOT EXISTS feedback_records_tenant_id_idx ON feedback_records (tenant_id, created_at DESC);
`

const updatedAtTriggerFunctionDDL = `
CREATE OR REPLACE FUNCTION update_updated_at()
RETURNS TRIGGER AS $$
BEGIN
	NEW.updated_at = NOW();
	RETURN NEW;
END;
$$ LANGUAGE plpgsql;
`

const updatedAtTriggersDDL = `
DROP TRIGGER IF EXISTS set_updated_at ON tenants;
CREATE TRIGGER set_updated_at BEFORE UPDATE ON tenants
	FOR EACH ROW EXECUTE FUNCTION update_updated_at();

DROP TRIGGER IF EXISTS set_updated_at ON cases;
CREATE TRIGGER set_updated_at BEFORE UPDATE ON cases
	FOR EACH ROW EXECUTE FUNCTION update_updated_at();
`

// tenantIsolationPoliciesDDL enforces the storage-layer invariant that an
// unset session tenant variable matches zero rows (fail-closed), not every
// row. current_setting(..., true) returns NULL rather than raising when the
// variable is unset, and tenant_id = NULL is never true.
const tenantIsolationPoliciesDDL = `
ALTER TABLE api_keys ENABLE ROW LEVEL SECURITY;
ALTER TABLE api_keys FORCE ROW LEVEL SECURITY;
DROP POLICY IF EXISTS tenant_isolation ON api_keys;
CREATE POLICY tenant_isolation ON api_keys FOR ALL
	USING (tenant_id = current_setting('app.tenant_id', true)::uuid)
	WITH CHECK (tenant_id = current_setting('app.tenant_id', true)::uuid);

ALTER TABLE patients ENABLE ROW LEVEL SECURITY;
ALTER TABLE patients FORCE ROW LEVEL SECURITY;
DROP POLICY IF EXISTS tenant_isolation ON patients;
CREATE POLICY tenant_isolation ON patients FOR ALL
	USING (tenant_id = current_setting('app.tenant_id', true)::uuid)
	WITH CHECK (tenant_id = current_setting('app.tenant_id', true)::uuid);

ALTER TABLE cases ENABLE ROW LEVEL SECURITY;
ALTER TABLE cases FORCE ROW LEVEL SECURITY;
DROP POLICY IF EXISTS tenant_isolation ON cases;
CREATE POLICY tenant_isolation ON cases FOR ALL
	USING (tenant_id = current_setting('app.tenant_id', true)::uuid)
	WITH CHECK (tenant_id = current_setting('app.tenant_id', true)::uuid);

ALTER TABLE case_results ENABLE ROW LEVEL SECURITY;
ALTER TABLE case_results FORCE ROW LEVEL SECURITY;
DROP POLICY IF EXISTS tenant_isolation ON case_results;
CREATE POLICY tenant_isolation ON case_results FOR ALL
	USING (case_id IN (SELECT id FROM cases WHERE tenant_id = current_setting('app.tenant_id', true)::uuid))
	WITH CHECK (case_id IN (SELECT id FROM cases WHERE tenant_id = current_setting('app.tenant_id', true)::uuid));

ALTER TABLE access_log ENABLE ROW LEVEL SECURITY;
ALTER TABLE access_log FORCE ROW LEVEL SECURITY;
DROP POLICY IF EXISTS tenant_isolation ON access_log;
CREATE POLICY tenant_isolation ON access_log FOR ALL
	USING (tenant_id = current_setting('app.tenant_id', true)::uuid)
	WITH CHECK (tenant_id = current_setting('app.tenant_id', true)::uuid);

ALTER TABLE audit_log ENABLE ROW LEVEL SECURITY;
ALTER TABLE audit_log FORCE ROW LEVEL SECURITY;
DROP POLICY IF EXISTS tenant_isolation ON audit_log;
CREATE POLICY tenant_isolation ON audit_log FOR ALL
	USING (tenant_id = current_setting('app.tenant_id', true)::uuid)
	WITH CHECK (tenant_id = current_setting('app.tenant_id', true)::uuid);

ALTER TABLE usage_events ENABLE ROW LEVEL SECURITY;
ALTER TABLE usage_events FORCE ROW LEVEL SECURITY;
DROP POLICY IF EXISTS tenant_isolation ON usage_events;
CREATE POLICY tenant_isolation ON usage_events FOR ALL
	USING (tenant_id = current_setting('app.tenant_id', true)::uuid)
	WITH CHECK (tenant_id = current_setting('app.tenant_id', true)::uuid);

ALTER TABLE feedback_records ENABLE ROW LEVEL SECURITY;
ALTER TABLE feedback_records FORCE ROW LEVEL SECURITY;
DROP POLICY IF EXISTS tenant_isolation ON feedback_records;
CREATE POLICY tenant_isolation ON feedback_records FOR ALL
	USING (tenant_id = current_setting('app.tenant_id', true)::uuid)
	WITH CHECK (tenant_id = current_setting('app.tenant_id', true)::uuid);
`

// caseImmutabilityTriggerDDL enforces: once finalized, a case row may only
// have its three replay_* fields change, and none of them may go from
// non-null back to null (re-stamping one non-null value with another is
// allowed).
// Every other column (including status) must stay byte-identical. Deletes
// on a finalized row are refused outright.
const caseImmutabilityTriggerDDL = `
CREATE OR REPLACE FUNCTION enforce_case_immutability()
RETURNS TRIGGER AS $$
BEGIN
	IF TG_OP = 'DELETE' THEN
		IF OLD.status = 'finalized' THEN
			RAISE EXCEPTION 'finalized cases cannot be deleted';
		END IF;
		RETURN OLD;
	END IF;

	IF OLD.status = 'finalized' THEN
		IF NEW.status IS DISTINCT FROM OLD.status
			OR NEW.tenant_id IS DISTINCT FROM OLD.tenant_id
			OR NEW.patient_id IS DISTINCT FROM OLD.patient_id
			OR NEW.input_payload IS DISTINCT FROM OLD.input_payload
			OR NEW.random_seed IS DISTINCT FROM OLD.random_seed
			OR NEW.finalized_at IS DISTINCT FROM OLD.finalized_at
			OR NEW.ranking_snapshot IS DISTINCT FROM OLD.ranking_snapshot
			OR NEW.result_signature IS DISTINCT FROM OLD.result_signature
			OR NEW.billing_status IS DISTINCT FROM OLD.billing_status
			OR NEW.api_client_id IS DISTINCT FROM OLD.api_client_id
			OR NEW.created_at IS DISTINCT FROM OLD.created_at
		THEN
			RAISE EXCEPTION 'finalized cases are immutable except for replay_* fields';
		END IF;

		IF OLD.replay_verified_at IS NOT NULL AND NEW.replay_verified_at IS NULL THEN
			RAISE EXCEPTION 'replay_verified_at cannot be unset once recorded';
		END IF;
		IF OLD.replay_verification_ok IS NOT NULL AND NEW.replay_verification_ok IS NULL THEN
			RAISE EXCEPTION 'replay_verification_ok cannot be unset once recorded';
		END IF;
		IF OLD.replay_verification_details IS NOT NULL AND NEW.replay_verification_details IS NULL THEN
			RAISE EXCEPTION 'replay_verification_details cannot be unset once recorded';
		END IF;
	END IF;

	RETURN NEW;
END;
$$ LANGUAGE plpgsql;

DROP TRIGGER IF EXISTS case_immutability ON cases;
CREATE TRIGGER case_immutability BEFORE UPDATE OR DELETE ON cases
	FOR EACH ROW EXECUTE FUNCTION enforce_case_immutability();
`

const auditLogWORMTriggerDDL = `
CREATE OR REPLACE FUNCTION deny_audit_log_mutation()
RETURNS TRIGGER AS $$
BEGIN
	RAISE EXCEPTION 'audit_log is append-only';
END;
$$ LANGUAGE plpgsql;

DROP TRIGGER IF EXISTS audit_log_worm ON audit_log;
CREATE TRIGGER audit_log_worm BEFORE UPDATE OR DELETE ON audit_log
	FOR EACH ROW EXECUTE FUNCTION deny_audit_log_mutation();
`

// feedbackAppendOnlyPoliciesDDL denies UPDATE and DELETE outright, even to
// the application role bound to the calling tenant — append-only by
// policy, not merely by convention.
const feedbackAppendOnlyPoliciesDDL = `
DROP POLICY IF EXISTS deny_update ON feedback_records;
CREATE POLICY deny_update ON feedback_records FOR UPDATE USING (false);

DROP POLICY IF EXISTS deny_delete ON feedback_records;
CREATE POLICY deny_delete ON feedback_records FOR DELETE USING (false);
`

// authenticateApiKeyFunctionDDL provides the one sanctioned bypass of
// tenant-isolation RLS: resolving which tenant an API key belongs to is, by
// definition, a lookup the caller cannot already be tenant-bound for.
// SECURITY DEFINER runs it as the function's owner rather than the calling
// (RLS-restricted) role; every other operation on api_keys still goes
// through the tenant-bound gateway like any other table.
const authenticateApiKeyFunctionDDL = `
CREATE OR REPLACE FUNCTION authenticate_api_key(p_key_hash VARCHAR(64))
RETURNS TABLE (
	id UUID,
	tenant_id UUID,
	role VARCHAR(20),
	is_active BOOLEAN,
	revoked_at TIMESTAMPTZ
) AS $$
	SELECT id, tenant_id, role, is_active, revoked_at
	FROM api_keys
	WHERE key_hash = p_key_hash;
$$ LANGUAGE sql SECURITY DEFINER;
`
