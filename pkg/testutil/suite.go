package testutil

import (
	"context"
	"os"
	"sync"
	"testing"

	"github.com/jmoiron/sqlx"

	"github.com/mcare/mcare-backend/pkg/dbx"
	"github.com/mcare/mcare-backend/pkg/logger"
	"github.com/mcare/mcare-backend/pkg/tenant"
)

var (
	// Global test container (shared across all integration tests)
	globalContainer *PostgresContainer
	globalDB        *sqlx.DB
	containerOnce   sync.Once
	containerErr    error
)

// IntegrationSuite provides a base for integration tests with real PostgreSQL.
type IntegrationSuite struct {
	Container *PostgresContainer
	RawDB     *sqlx.DB
	DB        *dbx.DB
	Fixtures  *FixtureFactory
	Logger    *logger.Logger
}

// NewIntegrationSuite creates a new integration test suite. Call this in
// TestMain to set up shared test infrastructure.
//
// Usage:
//
//	var suite *testutil.IntegrationSuite
//
//	func TestMain(m *testing.M) {
//	    ctx := context.Background()
//	    var err error
//	    suite, err = testutil.NewIntegrationSuite(ctx)
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    defer testutil.TerminateContainer(ctx)
//
//	    os.Exit(m.Run())
//	}
//
//	func TestSomething(t *testing.T) {
//	    ctx := context.Background()
//	    tenant, key := suite.SetupTenant(t, ctx)
//	    // ... run tests against tenant
//	}
func NewIntegrationSuite(ctx context.Context) (*IntegrationSuite, error) {
	container, db, err := getOrCreateContainer(ctx)
	if err != nil {
		return nil, err
	}

	log := logger.New("test", "test")

	if err := container.Bootstrap(ctx, db); err != nil {
		return nil, err
	}
	if err := container.CreateAppRole(ctx, db); err != nil {
		return nil, err
	}

	wrappedDB, err := dbx.NewWithDSN(container.AppRoleDSN, log)
	if err != nil {
		return nil, err
	}

	return &IntegrationSuite{
		Container: container,
		RawDB:     db,
		DB:        wrappedDB,
		Fixtures:  NewFixtureFactory(),
		Logger:    log,
	}, nil
}

// getOrCreateContainer returns the shared test container.
func getOrCreateContainer(ctx context.Context) (*PostgresContainer, *sqlx.DB, error) {
	containerOnce.Do(func() {
		globalContainer, containerErr = NewPostgresContainer(ctx, DefaultPostgresConfig())
		if containerErr != nil {
			return
		}
		globalDB, containerErr = globalContainer.Connect(ctx)
	})

	return globalContainer, globalDB, containerErr
}

// SetupTenant inserts a fresh tenant and an active API key for it, and
// registers cleanup for both. Each test should use its own tenant: row-level
// security means cross-tenant leakage would otherwise be invisible to a test
// sharing a tenant with others.
func (s *IntegrationSuite) SetupTenant(t *testing.T, ctx context.Context) (TenantFixture, ApiKeyFixture) {
	t.Helper()

	tnt := s.Fixtures.Tenant()
	if _, err := s.RawDB.ExecContext(ctx,
		`INSERT INTO tenants (id, name, slug, billing_status) VALUES ($1, $2, $3, $4)`,
		tnt.ID, tnt.Name, tnt.Slug, tnt.BillingStatus,
	); err != nil {
		t.Fatalf("failed to insert test tenant: %v", err)
	}

	key := s.Fixtures.ApiKey(tnt.ID)
	if _, err := s.RawDB.ExecContext(ctx,
		`INSERT INTO api_keys (id, tenant_id, key_hash, label, role, is_active) VALUES ($1, $2, $3, $4, $5, $6)`,
		key.ID, key.TenantID, key.KeyHash, key.Label, key.Role, key.IsActive,
	); err != nil {
		t.Fatalf("failed to insert test api key: %v", err)
	}

	t.Cleanup(func() {
		// Deletion order respects the foreign keys; tenants and their
		// dependents don't otherwise get cleaned up automatically since
		// the container is shared across the whole test binary.
		s.RawDB.ExecContext(ctx, `DELETE FROM feedback_records WHERE tenant_id = $1`, tnt.ID)
		s.RawDB.ExecContext(ctx, `DELETE FROM usage_events WHERE tenant_id = $1`, tnt.ID)
		s.RawDB.ExecContext(ctx, `DELETE FROM access_log WHERE tenant_id = $1`, tnt.ID)
		s.RawDB.ExecContext(ctx, `DELETE FROM case_results WHERE case_id IN (SELECT id FROM cases WHERE tenant_id = $1)`, tnt.ID)
		s.RawDB.ExecContext(ctx, `DELETE FROM cases WHERE tenant_id = $1`, tnt.ID)
		s.RawDB.ExecContext(ctx, `DELETE FROM patients WHERE tenant_id = $1`, tnt.ID)
		s.RawDB.ExecContext(ctx, `DELETE FROM api_keys WHERE tenant_id = $1`, tnt.ID)
		s.RawDB.ExecContext(ctx, `DELETE FROM tenants WHERE id = $1`, tnt.ID)
	})

	return tnt, key
}

// TenantContext returns a context bound to the given tenant id.
func (s *IntegrationSuite) TenantContext(tenantID string) context.Context {
	return tenant.WithTenantID(context.Background(), tenantID)
}

// Cleanup releases suite-held resources. The shared container itself is
// terminated separately via TerminateContainer.
func (s *IntegrationSuite) Cleanup(ctx context.Context) error {
	return nil
}

// TerminateContainer terminates the shared container. Only call this in
// TestMain after all tests have completed.
func TerminateContainer(ctx context.Context) {
	if globalContainer != nil {
		globalContainer.Terminate(ctx)
	}
}

// UnitTestSuite provides a base for unit tests with mocked dependencies.
type UnitTestSuite struct {
	MockDB   *MockDB
	Fixtures *FixtureFactory
	t        *testing.T
}

// NewUnitTestSuite creates a new unit test suite.
func NewUnitTestSuite(t *testing.T) *UnitTestSuite {
	return &UnitTestSuite{
		MockDB:   NewMockDB(t),
		Fixtures: NewFixtureFactory(),
		t:        t,
	}
}

// Cleanup verifies expectations and cleans up.
func (s *UnitTestSuite) Cleanup() {
	s.MockDB.ExpectationsWereMet(s.t)
	s.MockDB.Close()
}

// GetEnvOrDefault returns environment variable or default value.
func GetEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

// IsCI returns true if running in CI environment.
func IsCI() bool {
	ciVars := []string{"CI", "GITHUB_ACTIONS", "GITLAB_CI", "JENKINS_URL"}
	for _, v := range ciVars {
		if os.Getenv(v) != "" {
			return true
		}
	}
	return false
}
