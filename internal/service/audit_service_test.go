package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pointsheet/pointsheet-api/internal/models"
	appErrors "github.com/pointsheet/pointsheet-api/pkg/errors"
)

type mockAuditStore struct {
	entries    []models.AuditEntry
	total      int
	lastFilter models.AuditFilter
	err        error
}

func (m *mockAuditStore) List(ctx context.Context, schoolID string, filter models.AuditFilter) ([]models.AuditEntry, int, error) {
	m.lastFilter = filter
	if m.err != nil {
		return nil, 0, m.err
	}
	return m.entries, m.total, nil
}

func TestAuditListClampsPageSize(t *testing.T) {
	store := &mockAuditStore{total: 500}
	svc := NewAuditService(store, 200, nil)

	_, pagination, err := svc.List(context.Background(), "school-1", AuditListRequest{PageSize: 10000})
	require.NoError(t, err)
	assert.Equal(t, 200, store.lastFilter.PageSize)
	assert.Equal(t, 200, pagination.PageSize)
	assert.Equal(t, 500, pagination.TotalCount)
}

func TestAuditListDefaults(t *testing.T) {
	store := &mockAuditStore{}
	svc := NewAuditService(store, 200, nil)

	_, _, err := svc.List(context.Background(), "school-1", AuditListRequest{})
	require.NoError(t, err)
	assert.Equal(t, 1, store.lastFilter.Page)
	assert.Equal(t, 50, store.lastFilter.PageSize)
}

func TestAuditListRejectsInvertedRange(t *testing.T) {
	store := &mockAuditStore{}
	svc := NewAuditService(store, 200, nil)

	from := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 0, -7)
	_, _, err := svc.List(context.Background(), "school-1", AuditListRequest{From: &from, To: &to})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestAuditListPassesFilters(t *testing.T) {
	store := &mockAuditStore{entries: []models.AuditEntry{{ID: "audit-1", Action: models.AuditActionMatrixCellUpdate}}, total: 1}
	svc := NewAuditService(store, 200, nil)

	entries, _, err := svc.List(context.Background(), "school-1", AuditListRequest{
		Action:  models.AuditActionMatrixCellUpdate,
		ActedBy: "staff-1",
	})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, models.AuditActionMatrixCellUpdate, store.lastFilter.Action)
	assert.Equal(t, "staff-1", store.lastFilter.ActedBy)
}
