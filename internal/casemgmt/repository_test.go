package casemgmt_test

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcare/mcare-backend/internal/casemgmt"
	"github.com/mcare/mcare-backend/pkg/dbx"
	"github.com/mcare/mcare-backend/pkg/errors"
	"github.com/mcare/mcare-backend/pkg/testutil"
)

func newMockRepo(t *testing.T) (*casemgmt.Repository, *testutil.MockDB) {
	t.Helper()
	mockDB := testutil.NewMockDB(t)
	db := &dbx.DB{DB: mockDB.DB}
	return casemgmt.NewRepository(db), mockDB
}

func TestFindOrCreatePatient_ExistingPatientIsReused(t *testing.T) {
	repo, mockDB := newMockRepo(t)
	defer mockDB.Close()

	rows := testutil.MockRows("id").AddRow("patient-1")
	mockDB.Mock.ExpectQuery("FROM patients").WillReturnRows(rows)

	id, err := repo.FindOrCreatePatient(context.Background(), "tenant-1", "Alice A")
	require.NoError(t, err)
	assert.Equal(t, "patient-1", id)
}

func TestFindOrCreatePatient_AbsentPatientIsInserted(t *testing.T) {
	repo, mockDB := newMockRepo(t)
	defer mockDB.Close()

	mockDB.Mock.ExpectQuery("FROM patients").WillReturnError(sql.ErrNoRows)
	mockDB.Mock.ExpectExec("INSERT INTO patients").WillReturnResult(sqlmock.NewResult(1, 1))

	id, err := repo.FindOrCreatePatient(context.Background(), "tenant-1", "New Patient")
	require.NoError(t, err)
	assert.NotEmpty(t, id)
}

func TestGetByID_MissingCaseIsNotFound(t *testing.T) {
	repo, mockDB := newMockRepo(t)
	defer mockDB.Close()

	mockDB.Mock.ExpectQuery("FROM cases").WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByID(context.Background(), "case-1")
	require.Error(t, err)
	var appErr *errors.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, "not_found", appErr.Code)
}

func TestFinalize_LostRaceReturnsLifecycleError(t *testing.T) {
	repo, mockDB := newMockRepo(t)
	defer mockDB.Close()

	mockDB.Mock.ExpectExec("UPDATE cases").WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Finalize(context.Background(), "case-1", json.RawMessage(`[]`), "deadbeef")
	require.Error(t, err)
	var appErr *errors.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, "conflict/lifecycle", appErr.Code)
}
