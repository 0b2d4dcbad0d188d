package identity_test

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcare/mcare-backend/internal/identity"
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

func newService(bootstrapToken string) *identity.Service {
	repo := identity.NewRepository(suite.DB)
	gateway := tenancy.NewGateway(suite.DB)
	return identity.NewService(repo, gateway, bootstrapToken)
}

// S9. Bootstrap requires the configured shared token: a wrong token is
// refused, and an empty configured token disables bootstrap entirely.
func TestBootstrapRequiresToken(t *testing.T) {
	ctx := context.Background()
	svc := newService("correct-horse-battery-staple")

	_, err := svc.Bootstrap(ctx, "wrong-token", "Wrong Token Clinic", nil)
	require.Error(t, err)

	result, err := svc.Bootstrap(ctx, "correct-horse-battery-staple", "Right Token Clinic", nil)
	require.NoError(t, err)
	assert.NotEmpty(t, result.PlainKey)
	assert.Equal(t, identity.RoleUser, result.ApiKey.Role)

	disabled := newService("")
	_, err = disabled.Bootstrap(ctx, "anything", "Disabled Clinic", nil)
	require.Error(t, err)
}

// S10. Key rotation invalidates the old key: the previous plaintext no
// longer authenticates, while the newly minted plaintext does.
func TestRotationInvalidatesOldKey(t *testing.T) {
	ctx := context.Background()
	svc := newService("rotation-test-token")

	bootstrapped, err := svc.Bootstrap(ctx, "rotation-test-token", "Rotation Clinic", nil)
	require.NoError(t, err)

	oldKey, err := svc.Authenticate(ctx, bootstrapped.PlainKey)
	require.NoError(t, err)
	assert.True(t, oldKey.IsActive)

	rotated, err := svc.Rotate(ctx, bootstrapped.Tenant.ID, bootstrapped.PlainKey, identity.RoleUser)
	require.NoError(t, err)
	assert.NotEqual(t, bootstrapped.PlainKey, rotated.PlainKey)

	_, err = svc.Authenticate(ctx, bootstrapped.PlainKey)
	require.Error(t, err, "a rotated-out plaintext key must no longer authenticate")

	newKey, err := svc.Authenticate(ctx, rotated.PlainKey)
	require.NoError(t, err)
	assert.Equal(t, bootstrapped.Tenant.ID, newKey.TenantID)
}

// Admin-scoped key listing and revocation only ever see the tenant bound
// to the calling context.
func TestListAndRevokeKeysAreTenantScoped(t *testing.T) {
	ctx := context.Background()
	svc := newService("list-revoke-token")

	bootstrapped, err := svc.Bootstrap(ctx, "list-revoke-token", "List Revoke Clinic", nil)
	require.NoError(t, err)

	keys, err := svc.ListKeys(ctx, bootstrapped.Tenant.ID)
	require.NoError(t, err)
	require.Len(t, keys, 1)

	err = svc.Revoke(ctx, bootstrapped.Tenant.ID, keys[0].ID)
	require.NoError(t, err)

	_, err = svc.Authenticate(ctx, bootstrapped.PlainKey)
	require.Error(t, err, "a revoked key must no longer authenticate")
}
