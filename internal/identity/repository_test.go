package identity_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcare/mcare-backend/internal/identity"
	"github.com/mcare/mcare-backend/pkg/dbx"
	"github.com/mcare/mcare-backend/pkg/errors"
	"github.com/mcare/mcare-backend/pkg/testutil"
)

func newMockRepo(t *testing.T) (*identity.Repository, *testutil.MockDB) {
	t.Helper()
	mockDB := testutil.NewMockDB(t)
	db := &dbx.DB{DB: mockDB.DB}
	return identity.NewRepository(db), mockDB
}

func TestResolveByPlainKey_UnknownKeyIsUnauthenticated(t *testing.T) {
	repo, mockDB := newMockRepo(t)
	defer mockDB.Close()

	mockDB.Mock.ExpectQuery("authenticate_api_key").WillReturnError(sql.ErrNoRows)

	_, err := repo.ResolveByPlainKey(context.Background(), "mcare_deadbeef")
	require.Error(t, err)
	var appErr *errors.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, "unauthenticated", appErr.Code)
}

func TestResolveByPlainKey_RevokedKeyIsUnauthenticated(t *testing.T) {
	repo, mockDB := newMockRepo(t)
	defer mockDB.Close()

	revokedAt := time.Now()
	rows := testutil.MockRows("id", "tenant_id", "role", "is_active", "revoked_at").
		AddRow("key-1", "tenant-1", identity.RoleUser, false, revokedAt)
	mockDB.Mock.ExpectQuery("authenticate_api_key").WillReturnRows(rows)

	_, err := repo.ResolveByPlainKey(context.Background(), "mcare_deadbeef")
	require.Error(t, err)
}

func TestResolveByPlainKey_ActiveKeyResolves(t *testing.T) {
	repo, mockDB := newMockRepo(t)
	defer mockDB.Close()

	rows := testutil.MockRows("id", "tenant_id", "role", "is_active", "revoked_at").
		AddRow("key-1", "tenant-1", identity.RoleAdmin, true, nil)
	mockDB.Mock.ExpectQuery("authenticate_api_key").WillReturnRows(rows)

	key, err := repo.ResolveByPlainKey(context.Background(), "mcare_deadbeef")
	require.NoError(t, err)
	assert.Equal(t, "tenant-1", key.TenantID)
	assert.Equal(t, identity.RoleAdmin, key.Role)
}

func TestFindTenantByName_NotFoundReturnsNilNotError(t *testing.T) {
	repo, mockDB := newMockRepo(t)
	defer mockDB.Close()

	mockDB.Mock.ExpectQuery("FROM tenants").WillReturnError(sql.ErrNoRows)

	tenant, err := repo.FindTenantByName(context.Background(), "Nonexistent Clinic")
	require.NoError(t, err)
	assert.Nil(t, tenant)
}
