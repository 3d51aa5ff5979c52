package service

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"net/url"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pointsheet/pointsheet-api/internal/models"
	"github.com/pointsheet/pointsheet-api/internal/repository"
	appErrors "github.com/pointsheet/pointsheet-api/pkg/errors"
	"github.com/pointsheet/pointsheet-api/pkg/jobs"
	"github.com/pointsheet/pointsheet-api/pkg/storage"
)

type mockExportJobStore struct {
	jobs map[string]*models.ExportJob
}

func newMockExportJobStore(existing ...*models.ExportJob) *mockExportJobStore {
	store := &mockExportJobStore{jobs: make(map[string]*models.ExportJob)}
	for _, job := range existing {
		store.jobs[job.ID] = job
	}
	return store
}

func (m *mockExportJobStore) Create(ctx context.Context, job *models.ExportJob) error {
	if job.ID == "" {
		job.ID = "job-1"
	}
	job.CreatedAt = time.Now().UTC()
	m.jobs[job.ID] = job
	return nil
}

func (m *mockExportJobStore) GetByID(ctx context.Context, id string) (*models.ExportJob, error) {
	job, ok := m.jobs[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return job, nil
}

func (m *mockExportJobStore) Update(ctx context.Context, id string, params repository.UpdateExportJobParams) error {
	job, ok := m.jobs[id]
	if !ok {
		return sql.ErrNoRows
	}
	if params.Status != nil {
		job.Status = *params.Status
	}
	if params.Progress != nil {
		job.Progress = *params.Progress
	}
	if params.ResultPath != nil {
		job.ResultPath = params.ResultPath
	}
	if params.ErrorMessage != nil {
		job.ErrorMessage = params.ErrorMessage
	}
	if params.FinishedAt != nil {
		job.FinishedAt = params.FinishedAt
	}
	return nil
}

func (m *mockExportJobStore) ListQueued(ctx context.Context, limit int) ([]models.ExportJob, error) {
	var queued []models.ExportJob
	for _, job := range m.jobs {
		if job.Status == models.ExportStatusQueued {
			queued = append(queued, *job)
		}
	}
	return queued, nil
}

func (m *mockExportJobStore) ListFinishedBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.ExportJob, error) {
	return nil, nil
}

type mockQueue struct {
	enqueued []jobs.Job
	err      error
}

func (m *mockQueue) Enqueue(job jobs.Job) error {
	if m.err != nil {
		return m.err
	}
	m.enqueued = append(m.enqueued, job)
	return nil
}

type mockExportDayStore struct {
	days      map[string]*models.Day
	rangeDays []models.Day
}

func (m *mockExportDayStore) Get(ctx context.Context, planID, dayKey string) (*models.Day, error) {
	day, ok := m.days[planID+"/"+dayKey]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return day, nil
}

func (m *mockExportDayStore) ListRange(ctx context.Context, planID, from, to string) ([]models.Day, error) {
	return m.rangeDays, nil
}

func exportTestPlan() *models.Plan {
	plan := scoringPlan()
	plan.StudentID = "student-1"
	return plan
}

func exportTestStudent() *models.Student {
	return &models.Student{ID: "student-1", SchoolID: "school-1", FullName: "Milo Park"}
}

func scoredDay(planID, dayKey string) *models.Day {
	day := models.EmptyDay(planID, dayKey)
	day.Matrix.SetCell("p1", "g1", models.StepperValue(2))
	day.Matrix.SetCell("p1", "g2", models.CheckboxValue(true))
	day.Totals = models.Totals{Pct: 100, Earned: 3, Possible: 3}
	day.Comments.Teacher = "Strong morning."
	day.Comments.Specials = map[string]string{"Art": "Engaged and calm."}
	day.Incidents = models.IncidentList{
		{ID: "inc-1", Label: "Disruption", At: time.Date(2026, 3, 2, 10, 15, 0, 0, time.UTC)},
	}
	return day
}

func newExportWorkerForTest(t *testing.T, days *mockExportDayStore, repo *mockExportJobStore) (*ExportWorker, *storage.LocalStorage) {
	t.Helper()
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	plans := newMockPlanStore(exportTestPlan())
	students := &mockPlanStudentStore{student: exportTestStudent()}
	worker := NewExportWorker(repo, plans, students, days, store, nil, 2, nil)
	return worker, store
}

func newExportServiceForTest(t *testing.T, repo *mockExportJobStore, queue *mockQueue) (*ExportService, *storage.LocalStorage) {
	t.Helper()
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	signer := storage.NewSignedURLSigner("signing-secret", time.Hour)
	plans := newMockPlanStore(exportTestPlan())
	svc := NewExportService(repo, plans, queue, signer, store, nil, nil, ExportServiceConfig{
		APIPrefix: "/api/v1",
		ResultTTL: time.Hour,
	})
	return svc, store
}

func TestExportWorkerRendersDaySheet(t *testing.T) {
	job := &models.ExportJob{
		ID:       "job-1",
		SchoolID: "school-1",
		PlanID:   "plan-1",
		Type:     models.ExportTypeDaySheet,
		Params:   models.ExportJobParams{DayKey: "2026-03-02"},
		Status:   models.ExportStatusQueued,
	}
	repo := newMockExportJobStore(job)
	days := &mockExportDayStore{days: map[string]*models.Day{"plan-1/2026-03-02": scoredDay("plan-1", "2026-03-02")}}
	worker, store := newExportWorkerForTest(t, days, repo)

	err := worker.Handle(context.Background(), jobs.Job{ID: "job-1", Attempt: 0})
	require.NoError(t, err)

	assert.Equal(t, models.ExportStatusFinished, job.Status)
	assert.Equal(t, 100, job.Progress)
	require.NotNil(t, job.ResultPath)
	assert.True(t, strings.HasSuffix(*job.ResultPath, ".pdf"))

	info, err := os.Stat(store.Path(*job.ResultPath))
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))
}

func TestExportWorkerRendersDaySheetForUnscoredDay(t *testing.T) {
	job := &models.ExportJob{
		ID:       "job-1",
		SchoolID: "school-1",
		PlanID:   "plan-1",
		Type:     models.ExportTypeDaySheet,
		Params:   models.ExportJobParams{DayKey: "2026-03-03"},
		Status:   models.ExportStatusQueued,
	}
	repo := newMockExportJobStore(job)
	worker, _ := newExportWorkerForTest(t, &mockExportDayStore{days: map[string]*models.Day{}}, repo)

	// A day nobody has scored yet still produces a sheet of empty cells.
	err := worker.Handle(context.Background(), jobs.Job{ID: "job-1"})
	require.NoError(t, err)
	assert.Equal(t, models.ExportStatusFinished, job.Status)
}

func TestExportWorkerRendersRangeCSV(t *testing.T) {
	job := &models.ExportJob{
		ID:       "job-2",
		SchoolID: "school-1",
		PlanID:   "plan-1",
		Type:     models.ExportTypeRangeCSV,
		Params:   models.ExportJobParams{From: "2026-03-02", To: "2026-03-06"},
		Status:   models.ExportStatusQueued,
	}
	repo := newMockExportJobStore(job)
	amPct := 100
	pmPct := 50
	days := &mockExportDayStore{rangeDays: []models.Day{
		{PlanID: "plan-1", DayKey: "2026-03-02", Totals: models.Totals{Pct: 75, Earned: 3, Possible: 4, AMPct: &amPct, PMPct: &pmPct}},
		{PlanID: "plan-1", DayKey: "2026-03-04", Totals: models.Totals{Pct: 50, Earned: 2, Possible: 4}},
	}}
	worker, store := newExportWorkerForTest(t, days, repo)

	err := worker.Handle(context.Background(), jobs.Job{ID: "job-2"})
	require.NoError(t, err)
	require.NotNil(t, job.ResultPath)
	assert.True(t, strings.HasSuffix(*job.ResultPath, ".csv"))

	file, err := store.Open(*job.ResultPath)
	require.NoError(t, err)
	defer file.Close()
	content, err := io.ReadAll(file)
	require.NoError(t, err)
	assert.Contains(t, string(content), "2026-03-02")
	assert.Contains(t, string(content), "2026-03-04")
	assert.Contains(t, string(content), "75")
}

func TestExportWorkerRequeuesBeforeFailing(t *testing.T) {
	job := &models.ExportJob{
		ID:       "job-3",
		SchoolID: "school-1",
		PlanID:   "plan-404",
		Type:     models.ExportTypeDaySheet,
		Params:   models.ExportJobParams{DayKey: "2026-03-02"},
		Status:   models.ExportStatusQueued,
	}
	repo := newMockExportJobStore(job)
	worker, _ := newExportWorkerForTest(t, &mockExportDayStore{days: map[string]*models.Day{}}, repo)

	// First attempt fails and goes back to the queue.
	err := worker.Handle(context.Background(), jobs.Job{ID: "job-3", Attempt: 0})
	require.Error(t, err)
	assert.Equal(t, models.ExportStatusQueued, job.Status)
	require.NotNil(t, job.ErrorMessage)

	// The final attempt marks it failed for good.
	err = worker.Handle(context.Background(), jobs.Job{ID: "job-3", Attempt: 2})
	require.Error(t, err)
	assert.Equal(t, models.ExportStatusFailed, job.Status)
	require.NotNil(t, job.FinishedAt)
}

func TestExportCreateJobEnqueues(t *testing.T) {
	repo := newMockExportJobStore()
	queue := &mockQueue{}
	svc, _ := newExportServiceForTest(t, repo, queue)

	job, err := svc.CreateJob(context.Background(), teacherActing(), CreateExportRequest{
		SchoolID: "school-1",
		PlanID:   "plan-1",
		Type:     "day_sheet",
		DayKey:   "2026-03-02",
	})
	require.NoError(t, err)
	assert.Equal(t, models.ExportStatusQueued, job.Status)
	assert.Equal(t, "staff-1", job.CreatedBy)
	require.Len(t, queue.enqueued, 1)
	assert.Equal(t, job.ID, queue.enqueued[0].ID)
}

func TestExportCreateJobValidation(t *testing.T) {
	repo := newMockExportJobStore()
	svc, _ := newExportServiceForTest(t, repo, &mockQueue{})
	ctx := context.Background()
	acting := teacherActing()

	cases := []CreateExportRequest{
		{SchoolID: "school-1", PlanID: "plan-1", Type: "spreadsheet"},
		{SchoolID: "school-1", PlanID: "plan-1", Type: "day_sheet"},
		{SchoolID: "school-1", PlanID: "plan-1", Type: "range_csv", From: "2026-03-09", To: "2026-03-02"},
		{SchoolID: "school-1", PlanID: "plan-1", Type: "range_csv", From: "03/02/2026", To: "2026-03-06"},
	}
	for _, req := range cases {
		_, err := svc.CreateJob(ctx, acting, req)
		require.Error(t, err)
		assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
	}
}

func TestExportCreateJobUnknownPlan(t *testing.T) {
	svc, _ := newExportServiceForTest(t, newMockExportJobStore(), &mockQueue{})

	_, err := svc.CreateJob(context.Background(), teacherActing(), CreateExportRequest{
		SchoolID: "school-1",
		PlanID:   "plan-404",
		Type:     "day_sheet",
		DayKey:   "2026-03-02",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestExportCreateJobMarksFailedWhenEnqueueFails(t *testing.T) {
	repo := newMockExportJobStore()
	svc, _ := newExportServiceForTest(t, repo, &mockQueue{err: errors.New("queue full")})

	_, err := svc.CreateJob(context.Background(), teacherActing(), CreateExportRequest{
		SchoolID: "school-1",
		PlanID:   "plan-1",
		Type:     "day_sheet",
		DayKey:   "2026-03-02",
	})
	require.Error(t, err)

	stored, getErr := repo.GetByID(context.Background(), "job-1")
	require.NoError(t, getErr)
	assert.Equal(t, models.ExportStatusFailed, stored.Status)
}

func TestExportStatusSignsDownloadLink(t *testing.T) {
	resultPath := "day_sheet_milo_park_2026-03-02.pdf"
	job := &models.ExportJob{
		ID:         "job-1",
		SchoolID:   "school-1",
		PlanID:     "plan-1",
		Type:       models.ExportTypeDaySheet,
		Status:     models.ExportStatusFinished,
		ResultPath: &resultPath,
		CreatedBy:  "staff-1",
	}
	svc, _ := newExportServiceForTest(t, newMockExportJobStore(job), &mockQueue{})

	status, err := svc.GetStatus(context.Background(), teacherActing(), "job-1")
	require.NoError(t, err)
	require.NotNil(t, status.DownloadURL)
	assert.Contains(t, *status.DownloadURL, "/api/v1/exports/job-1/download?expires=")
	assert.Contains(t, *status.DownloadURL, "signature=")
	require.NotNil(t, status.ExpiresAt)
	assert.True(t, status.ExpiresAt.After(time.Now()))
}

func TestExportStatusHidesOtherStaffJobs(t *testing.T) {
	job := &models.ExportJob{
		ID:        "job-1",
		SchoolID:  "school-1",
		PlanID:    "plan-1",
		Type:      models.ExportTypeDaySheet,
		Status:    models.ExportStatusQueued,
		CreatedBy: "staff-2",
	}
	svc, _ := newExportServiceForTest(t, newMockExportJobStore(job), &mockQueue{})

	_, err := svc.GetStatus(context.Background(), teacherActing(), "job-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	// Admins can inspect any job in their school.
	_, err = svc.GetStatus(context.Background(), adminActing(), "job-1")
	require.NoError(t, err)
}

func TestExportStatusScopedToSchool(t *testing.T) {
	job := &models.ExportJob{
		ID:        "job-1",
		SchoolID:  "school-2",
		PlanID:    "plan-1",
		Type:      models.ExportTypeDaySheet,
		Status:    models.ExportStatusQueued,
		CreatedBy: "staff-1",
	}
	svc, _ := newExportServiceForTest(t, newMockExportJobStore(job), &mockQueue{})

	_, err := svc.GetStatus(context.Background(), teacherActing(), "job-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestExportResolveDownloadRoundTrip(t *testing.T) {
	repo := newMockExportJobStore()
	svc, store := newExportServiceForTest(t, repo, &mockQueue{})

	relPath, err := store.Save("sheet.pdf", []byte("%PDF-1.4 test"))
	require.NoError(t, err)
	job := &models.ExportJob{
		ID:         "job-1",
		SchoolID:   "school-1",
		PlanID:     "plan-1",
		Type:       models.ExportTypeDaySheet,
		Status:     models.ExportStatusFinished,
		ResultPath: &relPath,
		CreatedBy:  "staff-1",
	}
	require.NoError(t, repo.Create(context.Background(), job))

	status, err := svc.GetStatus(context.Background(), teacherActing(), "job-1")
	require.NoError(t, err)
	require.NotNil(t, status.DownloadURL)

	parsed, err := url.Parse(*status.DownloadURL)
	require.NoError(t, err)
	download, err := svc.ResolveDownload(context.Background(), "job-1",
		parsed.Query().Get("expires"), parsed.Query().Get("signature"))
	require.NoError(t, err)
	defer download.File.Close()

	assert.Equal(t, "application/pdf", download.ContentType)
	assert.Equal(t, int64(len("%PDF-1.4 test")), download.SizeBytes)
	content, err := io.ReadAll(download.File)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4 test", string(content))
}

func TestExportResolveDownloadRejectsMismatchedJob(t *testing.T) {
	repo := newMockExportJobStore()
	svc, store := newExportServiceForTest(t, repo, &mockQueue{})

	relPath, err := store.Save("sheet.pdf", []byte("%PDF-1.4 test"))
	require.NoError(t, err)
	job := &models.ExportJob{
		ID:         "job-1",
		SchoolID:   "school-1",
		PlanID:     "plan-1",
		Type:       models.ExportTypeDaySheet,
		Status:     models.ExportStatusFinished,
		ResultPath: &relPath,
		CreatedBy:  "staff-1",
	}
	require.NoError(t, repo.Create(context.Background(), job))

	status, err := svc.GetStatus(context.Background(), teacherActing(), "job-1")
	require.NoError(t, err)
	parsed, err := url.Parse(*status.DownloadURL)
	require.NoError(t, err)

	// A valid signature for job-1 cannot fetch job-2.
	_, err = svc.ResolveDownload(context.Background(), "job-2",
		parsed.Query().Get("expires"), parsed.Query().Get("signature"))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestExportRecoverPendingJobs(t *testing.T) {
	queued := &models.ExportJob{
		ID:       "job-1",
		SchoolID: "school-1",
		PlanID:   "plan-1",
		Type:     models.ExportTypeDaySheet,
		Status:   models.ExportStatusQueued,
	}
	finished := &models.ExportJob{
		ID:       "job-2",
		SchoolID: "school-1",
		PlanID:   "plan-1",
		Type:     models.ExportTypeDaySheet,
		Status:   models.ExportStatusFinished,
	}
	queue := &mockQueue{}
	svc, _ := newExportServiceForTest(t, newMockExportJobStore(queued, finished), queue)

	svc.RecoverPendingJobs(context.Background())
	require.Len(t, queue.enqueued, 1)
	assert.Equal(t, "job-1", queue.enqueued[0].ID)
}
