package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/pointsheet/pointsheet-api/internal/models"
)

func newStaffRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestStaffRepositoryFindByEmail(t *testing.T) {
	db, mock, cleanup := newStaffRepoMock(t)
	defer cleanup()
	repo := NewStaffRepository(db)

	rows := sqlmock.NewRows([]string{"uid", "school_id", "email", "password_hash", "full_name", "roles", "claims_version", "created_at", "updated_at"}).
		AddRow("staff-1", "school-1", "t@school.test", "hash", "Pat Teacher", `["teacher"]`, 3, time.Now(), time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("SELECT uid, school_id, email, password_hash, full_name, roles, claims_version, created_at, updated_at FROM staff WHERE LOWER(email) = LOWER($1)")).
		WithArgs("T@school.test").
		WillReturnRows(rows)

	staff, err := repo.FindByEmail(context.Background(), "T@school.test")
	require.NoError(t, err)
	require.Equal(t, "staff-1", staff.UID)
	require.Equal(t, models.RoleList{models.RoleTeacher}, staff.Roles)
	require.Equal(t, 3, staff.ClaimsVersion)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStaffRepositoryUpsertPreservesClaimsVersion(t *testing.T) {
	db, mock, cleanup := newStaffRepoMock(t)
	defer cleanup()
	repo := NewStaffRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO staff")).
		WithArgs("staff-1", "school-1", "t@school.test", "hash", "Pat Teacher", sqlmock.AnyArg(), 0, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	staff := &models.Staff{
		UID:          "staff-1",
		SchoolID:     "school-1",
		Email:        "t@school.test",
		PasswordHash: "hash",
		FullName:     "Pat Teacher",
		Roles:        models.RoleList{models.RoleTeacher},
	}
	require.NoError(t, repo.Upsert(context.Background(), staff))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStaffRepositoryBumpClaimsVersion(t *testing.T) {
	db, mock, cleanup := newStaffRepoMock(t)
	defer cleanup()
	repo := NewStaffRepository(db)

	rows := sqlmock.NewRows([]string{"claims_version"}).AddRow(4)
	mock.ExpectQuery(regexp.QuoteMeta("UPDATE staff SET claims_version = claims_version + 1, updated_at = $2 WHERE uid = $1 RETURNING claims_version")).
		WithArgs("staff-1", sqlmock.AnyArg()).
		WillReturnRows(rows)

	version, err := repo.BumpClaimsVersion(context.Background(), "staff-1")
	require.NoError(t, err)
	require.Equal(t, 4, version)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStaffRepositoryListFiltersByRole(t *testing.T) {
	db, mock, cleanup := newStaffRepoMock(t)
	defer cleanup()
	repo := NewStaffRepository(db)

	rows := sqlmock.NewRows([]string{"uid", "school_id", "email", "password_hash", "full_name", "roles", "claims_version", "created_at", "updated_at"}).
		AddRow("staff-1", "school-1", "t@school.test", "hash", "Pat Teacher", `["teacher"]`, 0, time.Now(), time.Now())
	mock.ExpectQuery(regexp.QuoteMeta(`roles @> $2`)).
		WithArgs("school-1", `["teacher"]`).
		WillReturnRows(rows)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM staff")).
		WithArgs("school-1", `["teacher"]`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	members, total, err := repo.List(context.Background(), "school-1", models.StaffFilter{Role: models.RoleTeacher})
	require.NoError(t, err)
	require.Len(t, members, 1)
	require.Equal(t, 1, total)
	require.NoError(t, mock.ExpectationsWereMet())
}
