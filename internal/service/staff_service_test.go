package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/pointsheet/pointsheet-api/internal/models"
	appErrors "github.com/pointsheet/pointsheet-api/pkg/errors"
)

type mockStaffStore struct {
	existing   *models.Staff
	saved      *models.Staff
	listResult []models.Staff
	listTotal  int
	lastFilter models.StaffFilter
	upsertErr  error
}

func (m *mockStaffStore) FindByUID(ctx context.Context, uid string) (*models.Staff, error) {
	if m.existing == nil || m.existing.UID != uid {
		return nil, sql.ErrNoRows
	}
	return m.existing, nil
}

func (m *mockStaffStore) List(ctx context.Context, schoolID string, filter models.StaffFilter) ([]models.Staff, int, error) {
	m.lastFilter = filter
	return m.listResult, m.listTotal, nil
}

func (m *mockStaffStore) Upsert(ctx context.Context, staff *models.Staff) error {
	if m.upsertErr != nil {
		return m.upsertErr
	}
	m.saved = staff
	return nil
}

type mockClaimsEnqueuer struct {
	uids []string
}

func (m *mockClaimsEnqueuer) EnqueueSync(uid string) {
	m.uids = append(m.uids, uid)
}

func newStaffServiceForTest(existing *models.Staff) (*StaffService, *mockStaffStore, *mockClaimsEnqueuer, *mockAuditAppender) {
	repo := &mockStaffStore{existing: existing}
	claims := &mockClaimsEnqueuer{}
	audit := &mockAuditAppender{}
	svc := NewStaffService(repo, audit, claims, nil, nil)
	return svc, repo, claims, audit
}

func existingTeacher() *models.Staff {
	return &models.Staff{
		UID:           "staff-1",
		SchoolID:      "school-1",
		Email:         "teacher@example.com",
		FullName:      "Dana Whitfield",
		PasswordHash:  "$2a$10$existinghash",
		Roles:         models.RoleList{models.RoleTeacher},
		ClaimsVersion: 7,
	}
}

func adminActing() models.ActingContext {
	return models.ActingAs("admin-1", "school-1", models.RoleList{models.RoleAdmin})
}

func TestStaffUpsertCreatesWithHashedPassword(t *testing.T) {
	svc, repo, claims, audit := newStaffServiceForTest(nil)

	staff, err := svc.Upsert(context.Background(), adminActing(), UpsertStaffRequest{
		SchoolID: "school-1",
		UID:      "staff-9",
		Email:    "new@example.com",
		FullName: "Riley Okafor",
		Roles:    []string{"teacher"},
		Password: "hunter2hunter2",
	})
	require.NoError(t, err)
	require.NotNil(t, repo.saved)
	assert.NotEqual(t, "hunter2hunter2", staff.PasswordHash)
	require.NoError(t, bcrypt.CompareHashAndPassword([]byte(staff.PasswordHash), []byte("hunter2hunter2")))

	// A brand new staff member always gets a claims sync.
	assert.Equal(t, []string{"staff-9"}, claims.uids)

	entries := audit.all()
	require.Len(t, entries, 1)
	assert.Equal(t, models.AuditActionStaffUpdate, entries[0].Action)
	assert.Equal(t, true, entries[0].Details["claims_synced"])
}

func TestStaffUpsertRequiresPasswordForNew(t *testing.T) {
	svc, _, _, _ := newStaffServiceForTest(nil)

	_, err := svc.Upsert(context.Background(), adminActing(), UpsertStaffRequest{
		SchoolID: "school-1",
		UID:      "staff-9",
		Email:    "new@example.com",
		FullName: "Riley Okafor",
		Roles:    []string{"teacher"},
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestStaffUpsertKeepsHashAndVersionWhenUnchanged(t *testing.T) {
	svc, repo, claims, _ := newStaffServiceForTest(existingTeacher())

	staff, err := svc.Upsert(context.Background(), adminActing(), UpsertStaffRequest{
		SchoolID: "school-1",
		UID:      "staff-1",
		Email:    "teacher@example.com",
		FullName: "Dana Whitfield-Reyes",
		Roles:    []string{"teacher"},
	})
	require.NoError(t, err)
	assert.Equal(t, "$2a$10$existinghash", staff.PasswordHash)
	assert.Equal(t, 7, staff.ClaimsVersion)
	assert.Equal(t, "Dana Whitfield-Reyes", repo.saved.FullName)

	// Same roles and school: issued tokens stay valid.
	assert.Empty(t, claims.uids)
}

func TestStaffUpsertRoleChangeEnqueuesSync(t *testing.T) {
	svc, _, claims, audit := newStaffServiceForTest(existingTeacher())

	_, err := svc.Upsert(context.Background(), adminActing(), UpsertStaffRequest{
		SchoolID: "school-1",
		UID:      "staff-1",
		Email:    "teacher@example.com",
		FullName: "Dana Whitfield",
		Roles:    []string{"teacher", "admin"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"staff-1"}, claims.uids)

	entries := audit.all()
	require.Len(t, entries, 1)
	assert.Equal(t, true, entries[0].Details["claims_synced"])
}

func TestStaffUpsertRoleOrderDoesNotTriggerSync(t *testing.T) {
	existing := existingTeacher()
	existing.Roles = models.RoleList{models.RoleTeacher, models.RoleSpecials}
	svc, _, claims, _ := newStaffServiceForTest(existing)

	_, err := svc.Upsert(context.Background(), adminActing(), UpsertStaffRequest{
		SchoolID: "school-1",
		UID:      "staff-1",
		Email:    "teacher@example.com",
		FullName: "Dana Whitfield",
		Roles:    []string{"specials", "teacher"},
	})
	require.NoError(t, err)
	assert.Empty(t, claims.uids)
}

func TestStaffUpsertSchoolChangeEnqueuesSync(t *testing.T) {
	svc, _, claims, _ := newStaffServiceForTest(existingTeacher())

	_, err := svc.Upsert(context.Background(), adminActing(), UpsertStaffRequest{
		SchoolID: "school-2",
		UID:      "staff-1",
		Email:    "teacher@example.com",
		FullName: "Dana Whitfield",
		Roles:    []string{"teacher"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"staff-1"}, claims.uids)
}

func TestStaffUpsertRejectsUnknownRole(t *testing.T) {
	svc, _, _, _ := newStaffServiceForTest(nil)

	_, err := svc.Upsert(context.Background(), adminActing(), UpsertStaffRequest{
		SchoolID: "school-1",
		UID:      "staff-9",
		Email:    "new@example.com",
		FullName: "Riley Okafor",
		Roles:    []string{"janitor"},
		Password: "hunter2hunter2",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestStaffGetScopedToSchool(t *testing.T) {
	svc, _, _, _ := newStaffServiceForTest(existingTeacher())

	_, err := svc.Get(context.Background(), "school-2", "staff-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)

	staff, err := svc.Get(context.Background(), "school-1", "staff-1")
	require.NoError(t, err)
	assert.Equal(t, "staff-1", staff.UID)
}

func TestStaffListClampsPagination(t *testing.T) {
	svc, repo, _, _ := newStaffServiceForTest(nil)
	repo.listResult = []models.Staff{*existingTeacher()}
	repo.listTotal = 1

	members, pagination, err := svc.List(context.Background(), "school-1", ListStaffRequest{})
	require.NoError(t, err)
	assert.Len(t, members, 1)
	assert.Equal(t, 1, pagination.Page)
	assert.Equal(t, 20, pagination.PageSize)
	assert.Equal(t, 1, pagination.TotalCount)
	assert.Equal(t, 1, repo.lastFilter.Page)
	assert.Equal(t, 20, repo.lastFilter.PageSize)
}
