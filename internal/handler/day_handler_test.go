package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pointsheet/pointsheet-api/internal/middleware"
	"github.com/pointsheet/pointsheet-api/internal/models"
	"github.com/pointsheet/pointsheet-api/internal/service"
	appErrors "github.com/pointsheet/pointsheet-api/pkg/errors"
)

type fakeDayReader struct {
	day      *models.Day
	cacheHit bool
	err      error
	days     []models.Day
	listErr  error
}

func (f *fakeDayReader) GetDay(context.Context, string, string, string) (*models.Day, bool, error) {
	return f.day, f.cacheHit, f.err
}

func (f *fakeDayReader) ListDays(context.Context, string, string, string, string) ([]models.Day, error) {
	return f.days, f.listErr
}

type fakeScoring struct {
	day         *models.Day
	cellErr     error
	lastCell    service.RecordCellRequest
	commentErr  error
	incident    *models.Incident
	incidentErr error
}

func (f *fakeScoring) RecordCell(_ context.Context, _ models.ActingContext, req service.RecordCellRequest) (*models.Day, error) {
	f.lastCell = req
	return f.day, f.cellErr
}

func (f *fakeScoring) RecordComment(context.Context, models.ActingContext, service.RecordCommentRequest) error {
	return f.commentErr
}

func (f *fakeScoring) LogIncident(context.Context, models.ActingContext, service.LogIncidentRequest) (*models.Incident, error) {
	return f.incident, f.incidentErr
}

type responseEnvelope struct {
	Data map[string]interface{} `json:"data"`
	Meta map[string]interface{} `json:"meta"`
}

func newGinContext(method, path string, body []byte) (*gin.Context, *httptest.ResponseRecorder) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	return c, w
}

func setTeacherActing(c *gin.Context) {
	c.Set(middleware.ContextActingKey, models.ActingAs("staff-1", "school-1", models.RoleList{models.RoleTeacher}))
}

func dayParams(c *gin.Context) {
	c.Params = gin.Params{
		{Key: "schoolId", Value: "school-1"},
		{Key: "planId", Value: "plan-1"},
		{Key: "dayKey", Value: "2026-03-02"},
	}
}

func TestDayHandlerGetReportsCacheHit(t *testing.T) {
	gin.SetMode(gin.TestMode)
	day := models.EmptyDay("plan-1", "2026-03-02")
	handler := NewDayHandler(&fakeDayReader{day: day, cacheHit: true}, &fakeScoring{})

	c, w := newGinContext(http.MethodGet, "/days/2026-03-02", nil)
	dayParams(c)
	setTeacherActing(c)

	handler.Get(c)

	require.Equal(t, http.StatusOK, w.Code)
	var envelope responseEnvelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	assert.Equal(t, true, envelope.Meta["cache_hit"])
	assert.Equal(t, "2026-03-02", envelope.Data["day_key"])
	assert.Contains(t, envelope.Meta, "processing_time_ms")
}

func TestDayHandlerGetRejectsForeignSchool(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewDayHandler(&fakeDayReader{}, &fakeScoring{})

	c, w := newGinContext(http.MethodGet, "/days/2026-03-02", nil)
	c.Params = gin.Params{
		{Key: "schoolId", Value: "school-2"},
		{Key: "planId", Value: "plan-1"},
		{Key: "dayKey", Value: "2026-03-02"},
	}
	setTeacherActing(c)

	handler.Get(c)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDayHandlerGetRequiresActingContext(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewDayHandler(&fakeDayReader{}, &fakeScoring{})

	c, w := newGinContext(http.MethodGet, "/days/2026-03-02", nil)
	dayParams(c)

	handler.Get(c)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestDayHandlerPutCell(t *testing.T) {
	gin.SetMode(gin.TestMode)
	day := models.EmptyDay("plan-1", "2026-03-02")
	day.Totals = models.Totals{Pct: 100, Earned: 2, Possible: 2}
	scoring := &fakeScoring{day: day}
	handler := NewDayHandler(&fakeDayReader{}, scoring)

	payload, _ := json.Marshal(map[string]interface{}{
		"period_id": "p1",
		"goal_id":   "g1",
		"value":     2,
	})
	c, w := newGinContext(http.MethodPut, "/days/2026-03-02/cells", payload)
	dayParams(c)
	setTeacherActing(c)

	handler.PutCell(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "school-1", scoring.lastCell.SchoolID)
	assert.Equal(t, "plan-1", scoring.lastCell.PlanID)
	assert.Equal(t, "2026-03-02", scoring.lastCell.DayKey)
	assert.Equal(t, "p1", scoring.lastCell.PeriodID)
	require.NotNil(t, scoring.lastCell.Value.Int)
	assert.Equal(t, int64(2), *scoring.lastCell.Value.Int)
}

func TestDayHandlerPutCellPassesThroughPartialWrite(t *testing.T) {
	gin.SetMode(gin.TestMode)
	scoring := &fakeScoring{cellErr: appErrors.Clone(appErrors.ErrPartialWrite, "totals update failed after cell commit")}
	handler := NewDayHandler(&fakeDayReader{}, scoring)

	payload, _ := json.Marshal(map[string]interface{}{"period_id": "p1", "goal_id": "g1", "value": 2})
	c, w := newGinContext(http.MethodPut, "/days/2026-03-02/cells", payload)
	dayParams(c)
	setTeacherActing(c)

	handler.PutCell(c)

	require.Equal(t, appErrors.ErrPartialWrite.Status, w.Code)
	assert.Contains(t, w.Body.String(), appErrors.ErrPartialWrite.Code)
}

func TestDayHandlerPutCellRejectsMalformedBody(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewDayHandler(&fakeDayReader{}, &fakeScoring{})

	c, w := newGinContext(http.MethodPut, "/days/2026-03-02/cells", []byte("{not json"))
	dayParams(c)
	setTeacherActing(c)

	handler.PutCell(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDayHandlerPutComment(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewDayHandler(&fakeDayReader{}, &fakeScoring{})

	payload, _ := json.Marshal(map[string]string{"subject": "Teacher", "text": "good morning block"})
	c, w := newGinContext(http.MethodPut, "/days/2026-03-02/comments", payload)
	dayParams(c)
	setTeacherActing(c)

	handler.PutComment(c)

	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestDayHandlerPostIncident(t *testing.T) {
	gin.SetMode(gin.TestMode)
	incident := &models.Incident{
		ID:     "inc-1",
		Label:  "Disruption",
		Source: models.RoleTeacher,
		At:     time.Now().UTC(),
	}
	handler := NewDayHandler(&fakeDayReader{}, &fakeScoring{incident: incident})

	payload, _ := json.Marshal(map[string]string{"button_id": "b1", "note": "shouting"})
	c, w := newGinContext(http.MethodPost, "/days/2026-03-02/incidents", payload)
	dayParams(c)
	setTeacherActing(c)

	handler.PostIncident(c)

	require.Equal(t, http.StatusCreated, w.Code)
	assert.Contains(t, w.Body.String(), "inc-1")
}

func TestDayHandlerListValidationErrorPassesThrough(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewDayHandler(&fakeDayReader{listErr: appErrors.Clone(appErrors.ErrValidation, "from must not be after to")}, &fakeScoring{})

	c, w := newGinContext(http.MethodGet, "/days?from=2026-03-09&to=2026-03-02", nil)
	c.Params = gin.Params{
		{Key: "schoolId", Value: "school-1"},
		{Key: "planId", Value: "plan-1"},
	}
	setTeacherActing(c)

	handler.List(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}
