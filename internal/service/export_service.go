package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/pointsheet/pointsheet-api/internal/models"
	"github.com/pointsheet/pointsheet-api/internal/repository"
	appErrors "github.com/pointsheet/pointsheet-api/pkg/errors"
	"github.com/pointsheet/pointsheet-api/pkg/export"
	"github.com/pointsheet/pointsheet-api/pkg/jobs"
	"github.com/pointsheet/pointsheet-api/pkg/storage"
)

type exportJobStore interface {
	Create(ctx context.Context, job *models.ExportJob) error
	GetByID(ctx context.Context, id string) (*models.ExportJob, error)
	Update(ctx context.Context, id string, params repository.UpdateExportJobParams) error
	ListQueued(ctx context.Context, limit int) ([]models.ExportJob, error)
	ListFinishedBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.ExportJob, error)
}

type exportPlanStore interface {
	FindByID(ctx context.Context, schoolID, id string) (*models.Plan, error)
}

type exportStudentStore interface {
	FindByID(ctx context.Context, schoolID, id string) (*models.Student, error)
}

type exportDayStore interface {
	Get(ctx context.Context, planID, dayKey string) (*models.Day, error)
	ListRange(ctx context.Context, planID, from, to string) ([]models.Day, error)
}

type exportFileStorage interface {
	Save(filename string, data []byte) (string, error)
	Open(filename string) (*os.File, error)
	Delete(filename string) error
	CleanupOlderThan(ttl time.Duration) ([]string, error)
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type daySheetRenderer interface {
	RenderDaySheet(sheet export.DaySheet) ([]byte, error)
}

// ExportServiceConfig governs links, retention, and cleanup.
type ExportServiceConfig struct {
	APIPrefix       string
	ResultTTL       time.Duration
	CleanupInterval time.Duration
}

// ExportDownload aggregates resolved download data.
type ExportDownload struct {
	File        *os.File
	Filename    string
	ContentType string
	SizeBytes   int64
	ExpiresAt   time.Time
}

// ExportService owns export job lifecycle: create, status, signed download
// links, queue recovery, and retention cleanup. Rendering happens in
// ExportWorker off the request path.
type ExportService struct {
	repo    exportJobStore
	plans   exportPlanStore
	queue   jobDispatcher
	signer  *storage.SignedURLSigner
	storage exportFileStorage
	metrics *MetricsService
	logger  *zap.Logger
	cfg     ExportServiceConfig
}

// NewExportService constructs the service.
func NewExportService(repo exportJobStore, plans exportPlanStore, queue jobDispatcher, signer *storage.SignedURLSigner, store exportFileStorage, metrics *MetricsService, logger *zap.Logger, cfg ExportServiceConfig) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 24 * time.Hour
	}
	if cfg.APIPrefix == "" {
		cfg.APIPrefix = "/api/v1"
	}
	return &ExportService{
		repo:    repo,
		plans:   plans,
		queue:   queue,
		signer:  signer,
		storage: store,
		metrics: metrics,
		logger:  logger,
		cfg:     cfg,
	}
}

// CreateExportRequest describes a new export job.
type CreateExportRequest struct {
	SchoolID string `json:"-" validate:"required"`
	PlanID   string `json:"-" validate:"required"`
	Type     string `json:"type"`
	DayKey   string `json:"day_key"`
	From     string `json:"from"`
	To       string `json:"to"`
}

// CreateJob validates the request, persists the job, and enqueues rendering.
func (s *ExportService) CreateJob(ctx context.Context, acting models.ActingContext, req CreateExportRequest) (*models.ExportJob, error) {
	params, err := s.validateRequest(req)
	if err != nil {
		return nil, err
	}
	if _, err := s.plans.FindByID(ctx, req.SchoolID, req.PlanID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "plan not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load plan")
	}

	job := &models.ExportJob{
		SchoolID:  req.SchoolID,
		PlanID:    req.PlanID,
		Type:      models.ExportType(req.Type),
		Params:    params,
		Status:    models.ExportStatusQueued,
		Progress:  0,
		CreatedBy: acting.AsUserID,
	}
	if err := s.repo.Create(ctx, job); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create export job")
	}
	if err := s.queue.Enqueue(jobs.Job{ID: job.ID, Type: string(job.Type)}); err != nil {
		status := models.ExportStatusFailed
		msg := "failed to enqueue job"
		now := time.Now().UTC()
		progress := 100
		_ = s.repo.Update(ctx, job.ID, repository.UpdateExportJobParams{
			Status:       &status,
			Progress:     &progress,
			ErrorMessage: &msg,
			FinishedAt:   &now,
		})
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to enqueue export job")
	}
	return job, nil
}

// GetStatus exposes job metadata. Non-admins only see their own jobs. A
// finished job carries a freshly signed download link.
func (s *ExportService) GetStatus(ctx context.Context, acting models.ActingContext, id string) (*models.ExportJobStatus, error) {
	job, err := s.loadScopedJob(ctx, acting, id)
	if err != nil {
		return nil, err
	}

	status := &models.ExportJobStatus{ExportJob: *job}
	if job.Status == models.ExportStatusFinished && job.ResultPath != nil {
		token, expiresAt, err := s.signer.Generate(job.ID, *job.ResultPath)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign download link")
		}
		url := fmt.Sprintf("%s/exports/%s/download?expires=%d&signature=%s",
			strings.TrimRight(s.cfg.APIPrefix, "/"), job.ID, expiresAt.Unix(), token)
		status.DownloadURL = &url
		status.ExpiresAt = &expiresAt
	}
	return status, nil
}

// ResolveDownload validates the signed link and opens the stored file. The
// signature alone authorizes the download; possession of a fresh link is the
// capability.
func (s *ExportService) ResolveDownload(ctx context.Context, jobID, expires, signature string) (*ExportDownload, error) {
	tokenJobID, relPath, expiresAt, err := s.signer.Parse(signature, false)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "invalid or expired download link")
	}
	if tokenJobID != jobID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "download link does not match this job")
	}
	if raw, err := strconv.ParseInt(expires, 10, 64); err != nil || raw != expiresAt.Unix() {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "download link expiry mismatch")
	}

	job, err := s.repo.GetByID(ctx, jobID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "export job not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load export job")
	}
	if job.Status != models.ExportStatusFinished || job.ResultPath == nil || *job.ResultPath != relPath {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "export is not ready for download")
	}

	file, err := s.storage.Open(relPath)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open export file")
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to stat export file")
	}
	return &ExportDownload{
		File:        file,
		Filename:    relPath,
		ContentType: contentTypeFor(job.Type),
		SizeBytes:   info.Size(),
		ExpiresAt:   expiresAt,
	}, nil
}

// RecoverPendingJobs replays queued jobs after a process restart.
func (s *ExportService) RecoverPendingJobs(ctx context.Context) {
	pending, err := s.repo.ListQueued(ctx, 50)
	if err != nil {
		s.logger.Warn("failed to recover queued export jobs", zap.Error(err))
		return
	}
	for _, job := range pending {
		if err := s.queue.Enqueue(jobs.Job{ID: job.ID, Type: string(job.Type)}); err != nil {
			s.logger.Warn("failed to requeue export job", zap.String("job_id", job.ID), zap.Error(err))
		}
	}
}

// StartCleanup boots a goroutine that purges expired exports periodically.
func (s *ExportService) StartCleanup(ctx context.Context) {
	if s.cfg.CleanupInterval <= 0 {
		return
	}
	ticker := time.NewTicker(s.cfg.CleanupInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.cleanupExpired(ctx)
			}
		}
	}()
}

func (s *ExportService) cleanupExpired(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-s.cfg.ResultTTL)
	for {
		expired, err := s.repo.ListFinishedBefore(ctx, cutoff, 100)
		if err != nil {
			s.logger.Warn("export cleanup list failed", zap.Error(err))
			return
		}
		if len(expired) == 0 {
			break
		}
		for _, job := range expired {
			if job.ResultPath == nil {
				continue
			}
			if err := s.storage.Delete(*job.ResultPath); err != nil {
				s.logger.Warn("export cleanup delete failed", zap.String("job_id", job.ID), zap.Error(err))
			}
		}
		if len(expired) < 100 {
			break
		}
	}
	if _, err := s.storage.CleanupOlderThan(s.cfg.ResultTTL); err != nil {
		s.logger.Warn("export storage sweep failed", zap.Error(err))
	}
}

func (s *ExportService) loadScopedJob(ctx context.Context, acting models.ActingContext, id string) (*models.ExportJob, error) {
	job, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "export job not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load export job")
	}
	if job.SchoolID != acting.SchoolID {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "export job not found")
	}
	if !acting.IsAdmin() && job.CreatedBy != acting.AsUserID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "export job belongs to another staff member")
	}
	return job, nil
}

func (s *ExportService) validateRequest(req CreateExportRequest) (models.ExportJobParams, error) {
	switch models.ExportType(req.Type) {
	case models.ExportTypeDaySheet:
		if !models.ValidDayKey(req.DayKey) {
			return models.ExportJobParams{}, appErrors.Clone(appErrors.ErrValidation, "day_key must be a YYYY-MM-DD day key")
		}
		return models.ExportJobParams{DayKey: req.DayKey}, nil
	case models.ExportTypeRangeCSV:
		if !models.ValidDayKey(req.From) || !models.ValidDayKey(req.To) {
			return models.ExportJobParams{}, appErrors.Clone(appErrors.ErrValidation, "from and to must be YYYY-MM-DD day keys")
		}
		if req.From > req.To {
			return models.ExportJobParams{}, appErrors.Clone(appErrors.ErrValidation, "from must not be after to")
		}
		return models.ExportJobParams{From: req.From, To: req.To}, nil
	default:
		return models.ExportJobParams{}, appErrors.Clone(appErrors.ErrValidation, "unsupported export type")
	}
}

func contentTypeFor(exportType models.ExportType) string {
	if exportType == models.ExportTypeRangeCSV {
		return "text/csv"
	}
	return "application/pdf"
}

// ExportWorker renders queued export jobs.
type ExportWorker struct {
	repo       exportJobStore
	plans      exportPlanStore
	students   exportStudentStore
	days       exportDayStore
	storage    exportFileStorage
	csv        csvRenderer
	pdf        daySheetRenderer
	metrics    *MetricsService
	logger     *zap.Logger
	maxRetries int
}

// NewExportWorker constructs a worker.
func NewExportWorker(repo exportJobStore, plans exportPlanStore, students exportStudentStore, days exportDayStore, store exportFileStorage, metrics *MetricsService, maxRetries int, logger *zap.Logger) *ExportWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxRetries <= 0 {
		maxRetries = 3
	}
	return &ExportWorker{
		repo:       repo,
		plans:      plans,
		students:   students,
		days:       days,
		storage:    store,
		csv:        export.NewCSVExporter(),
		pdf:        export.NewPDFExporter(),
		metrics:    metrics,
		logger:     logger,
		maxRetries: maxRetries,
	}
}

// Handle processes one queue job.
func (w *ExportWorker) Handle(ctx context.Context, job jobs.Job) error {
	record, err := w.repo.GetByID(ctx, job.ID)
	if err != nil {
		return err
	}
	processing := models.ExportStatusProcessing
	progress := 25
	if err := w.repo.Update(ctx, job.ID, repository.UpdateExportJobParams{
		Status:   &processing,
		Progress: &progress,
	}); err != nil {
		return err
	}

	relPath, err := w.generate(ctx, record)
	if err != nil {
		msg := err.Error()
		if job.Attempt >= w.maxRetries {
			failed := models.ExportStatusFailed
			progress = 100
			now := time.Now().UTC()
			if updateErr := w.repo.Update(ctx, job.ID, repository.UpdateExportJobParams{
				Status:       &failed,
				Progress:     &progress,
				ErrorMessage: &msg,
				FinishedAt:   &now,
			}); updateErr != nil {
				w.logger.Warn("failed to mark export job failed", zap.String("job_id", job.ID), zap.Error(updateErr))
			}
			w.metrics.ObserveExportJob(string(record.Type), string(models.ExportStatusFailed))
		} else {
			queued := models.ExportStatusQueued
			reset := 0
			if updateErr := w.repo.Update(ctx, job.ID, repository.UpdateExportJobParams{
				Status:       &queued,
				Progress:     &reset,
				ErrorMessage: &msg,
			}); updateErr != nil {
				w.logger.Warn("failed to requeue export job", zap.String("job_id", job.ID), zap.Error(updateErr))
			}
		}
		return err
	}

	finished := models.ExportStatusFinished
	progress = 100
	now := time.Now().UTC()
	clear := ""
	if err := w.repo.Update(ctx, job.ID, repository.UpdateExportJobParams{
		Status:       &finished,
		Progress:     &progress,
		ResultPath:   &relPath,
		ErrorMessage: &clear,
		FinishedAt:   &now,
	}); err != nil {
		w.logger.Warn("failed to mark export job finished", zap.String("job_id", job.ID), zap.Error(err))
		return err
	}
	w.metrics.ObserveExportJob(string(record.Type), string(models.ExportStatusFinished))
	return nil
}

func (w *ExportWorker) generate(ctx context.Context, job *models.ExportJob) (string, error) {
	plan, err := w.plans.FindByID(ctx, job.SchoolID, job.PlanID)
	if err != nil {
		return "", fmt.Errorf("load plan: %w", err)
	}
	student, err := w.students.FindByID(ctx, job.SchoolID, plan.StudentID)
	if err != nil {
		return "", fmt.Errorf("load student: %w", err)
	}

	switch job.Type {
	case models.ExportTypeDaySheet:
		return w.renderDaySheet(ctx, job, plan, student)
	case models.ExportTypeRangeCSV:
		return w.renderRangeCSV(ctx, job, plan, student)
	default:
		return "", fmt.Errorf("unsupported export type %s", job.Type)
	}
}

func (w *ExportWorker) renderDaySheet(ctx context.Context, job *models.ExportJob, plan *models.Plan, student *models.Student) (string, error) {
	day, err := w.days.Get(ctx, plan.ID, job.Params.DayKey)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return "", fmt.Errorf("load day: %w", err)
		}
		day = models.EmptyDay(plan.ID, job.Params.DayKey)
	}

	headers := make([]string, 0, len(plan.Goals)+1)
	headers = append(headers, "Period")
	for _, goal := range plan.Goals {
		headers = append(headers, goal.Label)
	}
	rows := make([]map[string]string, 0, len(plan.Schedule))
	for _, period := range plan.Schedule {
		row := map[string]string{"Period": period.Label}
		for _, goal := range plan.Goals {
			cell, _ := day.Matrix.Cell(period.ID, goal.ID)
			row[goal.Label] = displayCell(goal.Kind, cell)
		}
		rows = append(rows, row)
	}

	summary := []string{
		fmt.Sprintf("Score: %d%% (%d/%d)", day.Totals.Pct, day.Totals.Earned, day.Totals.Possible),
	}
	if day.Totals.AMPct != nil && day.Totals.PMPct != nil {
		summary = append(summary, fmt.Sprintf("Morning: %d%% / Afternoon: %d%%", *day.Totals.AMPct, *day.Totals.PMPct))
	}
	if earned := earnedIncentives(plan.Incentives, day.Totals.Pct); len(earned) > 0 {
		summary = append(summary, "Incentives earned: "+strings.Join(earned, ", "))
	}

	comments := make([]export.LabeledText, 0, len(day.Comments.Specials)+1)
	if day.Comments.Teacher != "" {
		comments = append(comments, export.LabeledText{Label: "Teacher", Text: day.Comments.Teacher})
	}
	subjects := make([]string, 0, len(day.Comments.Specials))
	for subject := range day.Comments.Specials {
		subjects = append(subjects, subject)
	}
	sort.Strings(subjects)
	for _, subject := range subjects {
		if text := day.Comments.Specials[subject]; text != "" {
			comments = append(comments, export.LabeledText{Label: subject, Text: text})
		}
	}

	incidents := make([]string, 0, len(day.Incidents))
	for _, incident := range day.Incidents {
		line := fmt.Sprintf("%s  %s", incident.At.Format("15:04"), incident.Label)
		if incident.Note != "" {
			line += " - " + incident.Note
		}
		incidents = append(incidents, line)
	}

	sheet := export.DaySheet{
		Title:     fmt.Sprintf("Point Sheet - %s", student.FullName),
		Subtitle:  fmt.Sprintf("%s (%s)", job.Params.DayKey, plan.PlanType),
		Table:     export.Dataset{Headers: headers, Rows: rows},
		Summary:   summary,
		Comments:  comments,
		Incidents: incidents,
	}
	payload, err := w.pdf.RenderDaySheet(sheet)
	if err != nil {
		return "", fmt.Errorf("render day sheet: %w", err)
	}

	filename := fmt.Sprintf("day_sheet_%s_%s_%s.pdf",
		sanitizeFilename(student.FullName), job.Params.DayKey, time.Now().UTC().Format("20060102_150405"))
	return w.storage.Save(filename, payload)
}

func (w *ExportWorker) renderRangeCSV(ctx context.Context, job *models.ExportJob, plan *models.Plan, student *models.Student) (string, error) {
	days, err := w.days.ListRange(ctx, plan.ID, job.Params.From, job.Params.To)
	if err != nil {
		return "", fmt.Errorf("list days: %w", err)
	}

	rows := make([]map[string]string, 0, len(days))
	for _, day := range days {
		row := map[string]string{
			"Day":       day.DayKey,
			"Score (%)": strconv.Itoa(day.Totals.Pct),
			"Earned":    strconv.Itoa(day.Totals.Earned),
			"Possible":  strconv.Itoa(day.Totals.Possible),
			"AM (%)":    "",
			"PM (%)":    "",
			"Incidents": strconv.Itoa(len(day.Incidents)),
		}
		if day.Totals.AMPct != nil {
			row["AM (%)"] = strconv.Itoa(*day.Totals.AMPct)
		}
		if day.Totals.PMPct != nil {
			row["PM (%)"] = strconv.Itoa(*day.Totals.PMPct)
		}
		rows = append(rows, row)
	}

	dataset := export.Dataset{
		Headers: []string{"Day", "Score (%)", "Earned", "Possible", "AM (%)", "PM (%)", "Incidents"},
		Rows:    rows,
	}
	payload, err := w.csv.Render(dataset)
	if err != nil {
		return "", fmt.Errorf("render csv: %w", err)
	}

	filename := fmt.Sprintf("range_%s_%s_to_%s_%s.csv",
		sanitizeFilename(student.FullName), job.Params.From, job.Params.To, time.Now().UTC().Format("20060102_150405"))
	return w.storage.Save(filename, payload)
}

// displayCell formats a matrix cell for print. Unscored cells show a dash.
func displayCell(kind models.GoalKind, cell models.CellValue) string {
	if cell.IsNull() || !cell.MatchesKind(kind) {
		return "-"
	}
	if kind == models.GoalKindCheckbox {
		if *cell.Bool {
			return "yes"
		}
		return "no"
	}
	return strconv.FormatInt(*cell.Int, 10)
}

func earnedIncentives(thresholds models.IncentiveList, pct int) []string {
	earned := make([]string, 0, len(thresholds))
	for _, threshold := range thresholds {
		if pct >= threshold.MinPct {
			earned = append(earned, threshold.Label)
		}
	}
	return earned
}

func sanitizeFilename(raw string) string {
	if raw == "" {
		return "na"
	}
	replacer := strings.NewReplacer(" ", "_", "/", "-", "\\", "-", ":", "-", "..", ".", "__", "_")
	result := strings.ToLower(replacer.Replace(raw))
	if len(result) > 100 {
		return result[:100]
	}
	return result
}
