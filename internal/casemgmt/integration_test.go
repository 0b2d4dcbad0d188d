package casemgmt_test

import (
	"context"
	"encoding/json"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcare/mcare-backend/internal/auditlog"
	"github.com/mcare/mcare-backend/internal/billing"
	"github.com/mcare/mcare-backend/internal/casemgmt"
	"github.com/mcare/mcare-backend/internal/scoring"
	"github.com/mcare/mcare-backend/internal/tenancy"
	"github.com/mcare/mcare-backend/pkg/testutil"
)

var suite *testutil.IntegrationSuite

func TestMain(m *testing.M) {
	ctx := context.Background()
	var err error
	suite, err = testutil.NewIntegrationSuite(ctx)
	if err != nil {
		panic("failed to create integration suite: " + err.Error())
	}
	defer testutil.TerminateContainer(ctx)

	os.Exit(m.Run())
}

// alwaysFreeTier satisfies casemgmt.TenantBillingResolver with a constant
// tier, so these tests exercise the case lifecycle without also standing
// up internal/identity.
type alwaysFreeTier struct{}

func (alwaysFreeTier) TenantBillingStatus(ctx context.Context, tenantID string) (string, error) {
	return billing.TierFree, nil
}

func newService(t *testing.T) *casemgmt.Service {
	t.Helper()
	repo := casemgmt.NewRepository(suite.DB)
	gateway := tenancy.NewGateway(suite.DB)
	audit := auditlog.NewWriter(suite.DB, suite.Logger)
	billingGate := billing.NewGate(suite.DB, 1000)
	return casemgmt.NewService(repo, gateway, audit, billingGate, scoring.NewDeterministicStub(), alwaysFreeTier{})
}

// S1. Cross-tenant invisibility: a patient inserted under tenant A is
// invisible to a read under tenant B, and counts 1 under A itself.
func TestCrossTenantInvisibility(t *testing.T) {
	ctx := context.Background()
	tenantA, _ := suite.SetupTenant(t, ctx)
	tenantB, _ := suite.SetupTenant(t, ctx)

	svc := newService(t)
	_, err := svc.Create(ctx, tenantA.ID, "Alice A", json.RawMessage(`{"symptom_ids":[1,2]}`), "0")
	require.NoError(t, err)

	var countA, countB int
	require.NoError(t, suite.DB.WithTenant(ctx, tenantA.ID, func(tenantCtx context.Context) error {
		return suite.DB.GetContext(tenantCtx, &countA, `SELECT COUNT(*) FROM patients`)
	}))
	require.NoError(t, suite.DB.WithTenant(ctx, tenantB.ID, func(tenantCtx context.Context) error {
		return suite.DB.GetContext(tenantCtx, &countB, `SELECT COUNT(*) FROM patients`)
	}))

	assert.Equal(t, 1, countA)
	assert.Equal(t, 0, countB)
}

// S2/S3/S4/S5: finalize signs, replay verifies, finalize is one-shot,
// tamper is blocked, and the access log records VIEW/VERIFY under the
// owning tenant only.
func TestFinalizeVerifyTamperAndAccessLog(t *testing.T) {
	ctx := context.Background()
	tenantA, _ := suite.SetupTenant(t, ctx)
	tenantB, _ := suite.SetupTenant(t, ctx)

	svc := newService(t)
	c, err := svc.Create(ctx, tenantA.ID, "Bob B", json.RawMessage(`{"symptom_ids":[1,2]}`), "0")
	require.NoError(t, err)

	finalized, err := svc.Finalize(ctx, tenantA.ID, c.ID)
	require.NoError(t, err)
	require.NotNil(t, finalized.ResultSignature)
	assert.Len(t, *finalized.ResultSignature, 64)

	// S2: verify-replay matches.
	verify, err := svc.VerifyReplay(ctx, tenantA.ID, c.ID)
	require.NoError(t, err)
	assert.True(t, verify.OK)
	assert.Equal(t, verify.Expected, verify.Computed)

	// S3: a second finalize is refused.
	_, err = svc.Finalize(ctx, tenantA.ID, c.ID)
	require.Error(t, err)

	// S4: tamper attempt under the owning tenant is refused by the
	// immutability trigger, and a subsequent verify still passes.
	err = suite.DB.WithTenant(ctx, tenantA.ID, func(tenantCtx context.Context) error {
		_, execErr := suite.DB.ExecContext(tenantCtx,
			`UPDATE cases SET random_seed = 'tampered' WHERE id = $1`, c.ID)
		return execErr
	})
	require.Error(t, err, "the immutability trigger must refuse mutation of a finalized case")

	verifyAfterTamperAttempt, err := svc.VerifyReplay(ctx, tenantA.ID, c.ID)
	require.NoError(t, err)
	assert.True(t, verifyAfterTamperAttempt.OK)

	// Get an extra view for the access log.
	_, err = svc.Get(ctx, tenantA.ID, c.ID)
	require.NoError(t, err)

	// S5: access log under the owning tenant has a VIEW and a VERIFY row;
	// the other tenant sees none for this case.
	var ownTenantRows []string
	require.NoError(t, suite.DB.WithTenant(ctx, tenantA.ID, func(tenantCtx context.Context) error {
		return suite.DB.SelectContext(tenantCtx, &ownTenantRows,
			`SELECT action FROM access_log WHERE case_id = $1`, c.ID)
	}))
	assert.Contains(t, ownTenantRows, auditlog.ActionView)
	assert.Contains(t, ownTenantRows, auditlog.ActionVerify)

	var otherTenantCount int
	require.NoError(t, suite.DB.WithTenant(ctx, tenantB.ID, func(tenantCtx context.Context) error {
		return suite.DB.GetContext(tenantCtx, &otherTenantCount,
			`SELECT COUNT(*) FROM access_log WHERE case_id = $1`, c.ID)
	}))
	assert.Equal(t, 0, otherTenantCount)
}

// S7. Free-tier gate: a tenant past its free-tier usage-event allowance
// receives a payment-required error on create.
func TestFreeTierGateRefusesOverLimit(t *testing.T) {
	ctx := context.Background()
	tenantA, _ := suite.SetupTenant(t, ctx)

	repo := casemgmt.NewRepository(suite.DB)
	gateway := tenancy.NewGateway(suite.DB)
	audit := auditlog.NewWriter(suite.DB, suite.Logger)
	billingGate := billing.NewGate(suite.DB, 2)
	svc := casemgmt.NewService(repo, gateway, audit, billingGate, scoring.NewDeterministicStub(), alwaysFreeTier{})

	require.NoError(t, suite.DB.WithTenant(ctx, tenantA.ID, func(tenantCtx context.Context) error {
		for i := 0; i < 2; i++ {
			if _, err := suite.DB.ExecContext(tenantCtx,
				`INSERT INTO usage_events (tenant_id, endpoint) VALUES ($1, $2)`, tenantA.ID, "/cases"); err != nil {
				return err
			}
		}
		return nil
	}))

	_, err := svc.Create(ctx, tenantA.ID, "Over Limit Patient", json.RawMessage(`{}`), "0")
	require.Error(t, err)
}
