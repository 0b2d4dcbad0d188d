// Package testutil provides testing utilities for the mcare backend. It
// includes a testcontainers-backed PostgreSQL instance, mock factories, and
// common test fixtures.
package testutil

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/mcare/mcare-backend/internal/schema"
)

// PostgresContainer wraps a testcontainers PostgreSQL instance.
type PostgresContainer struct {
	*postgres.PostgresContainer
	DSN        string
	AppRoleDSN string // DSN for mcare_app (non-superuser, RLS enforced)
	database   string
}

// PostgresContainerConfig configures the test PostgreSQL container.
type PostgresContainerConfig struct {
	Database string
	Username string
	Password string
	Image    string // Optional: defaults to postgres:15-alpine
}

// DefaultPostgresConfig returns sensible defaults for test containers.
func DefaultPostgresConfig() PostgresContainerConfig {
	return PostgresContainerConfig{
		Database: "mcare_test",
		Username: "test",
		Password: "test",
		Image:    "postgres:15-alpine",
	}
}

// NewPostgresContainer creates a new PostgreSQL test container. The
// container starts empty; call Bootstrap to apply the schema and
// CreateAppRole to set up the non-superuser role tenant-bound requests run
// as.
//
// Usage:
//
//	func TestMain(m *testing.M) {
//	    ctx := context.Background()
//	    container, err := testutil.NewPostgresContainer(ctx, testutil.DefaultPostgresConfig())
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    defer container.Terminate(ctx)
//
//	    // Run tests
//	    code := m.Run()
//	    os.Exit(code)
//	}
func NewPostgresContainer(ctx context.Context, cfg PostgresContainerConfig) (*PostgresContainer, error) {
	if cfg.Image == "" {
		cfg.Image = "postgres:15-alpine"
	}
	if cfg.Database == "" {
		cfg.Database = "mcare_test"
	}
	if cfg.Username == "" {
		cfg.Username = "test"
	}
	if cfg.Password == "" {
		cfg.Password = "test"
	}

	container, err := postgres.RunContainer(ctx,
		testcontainers.WithImage(cfg.Image),
		postgres.WithDatabase(cfg.Database),
		postgres.WithUsername(cfg.Username),
		postgres.WithPassword(cfg.Password),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to start postgres container: %w", err)
	}

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		container.Terminate(ctx)
		return nil, fmt.Errorf("failed to get connection string: %w", err)
	}

	return &PostgresContainer{
		PostgresContainer: container,
		DSN:               dsn,
		database:          cfg.Database,
	}, nil
}

// Connect returns a sqlx.DB connection to the container.
func (c *PostgresContainer) Connect(ctx context.Context) (*sqlx.DB, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", c.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to test database: %w", err)
	}
	return db, nil
}

// Terminate stops and removes the container.
func (c *PostgresContainer) Terminate(ctx context.Context) error {
	return c.PostgresContainer.Terminate(ctx)
}

// Bootstrap applies the full application schema (tables, triggers, RLS
// policies) using the same code path the production binary runs at
// startup, so integration tests exercise the real schema rather than a
// hand-maintained copy of it.
func (c *PostgresContainer) Bootstrap(ctx context.Context, db *sqlx.DB) error {
	return schema.Bootstrap(ctx, db)
}

// CreateAppRole creates the mcare_app role (non-superuser) and grants it
// just enough to operate under RLS: row access on every table, no bypassrls
// privilege. Call this after Bootstrap.
func (c *PostgresContainer) CreateAppRole(ctx context.Context, db *sqlx.DB) error {
	sql := fmt.Sprintf(`
		DO $$
		BEGIN
			IF NOT EXISTS (SELECT FROM pg_roles WHERE rolname = 'mcare_app') THEN
				CREATE ROLE mcare_app WITH LOGIN PASSWORD 'test' NOSUPERUSER NOCREATEDB NOCREATEROLE;
			END IF;
		END
		$$;

		GRANT CONNECT ON DATABASE %s TO mcare_app;
		GRANT USAGE ON SCHEMA public TO mcare_app;
		GRANT SELECT, INSERT, UPDATE, DELETE ON ALL TABLES IN SCHEMA public TO mcare_app;
		GRANT USAGE, SELECT ON ALL SEQUENCES IN SCHEMA public TO mcare_app;
		ALTER DEFAULT PRIVILEGES IN SCHEMA public GRANT SELECT, INSERT, UPDATE, DELETE ON TABLES TO mcare_app;
		GRANT EXECUTE ON FUNCTION update_updated_at() TO mcare_app;
		GRANT EXECUTE ON FUNCTION enforce_case_immutability() TO mcare_app;
		GRANT EXECUTE ON FUNCTION deny_audit_log_mutation() TO mcare_app;
		GRANT EXECUTE ON FUNCTION authenticate_api_key(VARCHAR) TO mcare_app;
	`, c.database)

	if _, err := db.ExecContext(ctx, sql); err != nil {
		return fmt.Errorf("failed to create app role: %w", err)
	}

	c.AppRoleDSN = replaceUserInDSN(c.DSN, "mcare_app", "test")

	return nil
}

// replaceUserInDSN replaces the user:password in a postgres DSN string.
func replaceUserInDSN(dsn, newUser, newPassword string) string {
	if len(dsn) > 11 && dsn[:11] == "postgres://" {
		atIdx := -1
		for i := 11; i < len(dsn); i++ {
			if dsn[i] == '@' {
				atIdx = i
				break
			}
		}
		if atIdx > 0 {
			return fmt.Sprintf("postgres://%s:%s@%s", newUser, newPassword, dsn[atIdx+1:])
		}
	}
	return dsn
}
