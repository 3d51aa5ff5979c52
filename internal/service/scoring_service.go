package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/pointsheet/pointsheet-api/internal/models"
	appErrors "github.com/pointsheet/pointsheet-api/pkg/errors"
)

type scoringDayStore interface {
	Get(ctx context.Context, planID, dayKey string) (*models.Day, error)
	MergeCell(ctx context.Context, planID, dayKey, periodID, goalID string, value models.CellValue) error
	SetTotals(ctx context.Context, planID, dayKey string, totals models.Totals) error
	SetTeacherComment(ctx context.Context, planID, dayKey, text string) error
	SetSpecialsComment(ctx context.Context, planID, dayKey, subject, text string) error
	ReplaceIncidents(ctx context.Context, planID, dayKey string, incidents models.IncidentList) error
}

type scoringPlanStore interface {
	FindByID(ctx context.Context, schoolID, id string) (*models.Plan, error)
}

type auditAppender interface {
	Append(ctx context.Context, entry *models.AuditEntry) error
}

// Pipeline operation labels used in logs and metrics.
const (
	opRecordCell    = "record_cell"
	opRecordComment = "record_comment"
	opLogIncident   = "log_incident"
)

const teacherCommentSubject = "teacher"

// ScoringService runs the write pipeline: persist, re-aggregate, audit, in
// that order. Each call is an independent unit of work; there is no global
// lock or single-writer queue, and nothing here retries on failure.
type ScoringService struct {
	days       scoringDayStore
	plans      scoringPlanStore
	audit      auditAppender
	aggregator *DayAggregator
	cache      *DayCacheService
	metrics    *MetricsService
	validator  *validator.Validate
	logger     *zap.Logger
}

// NewScoringService constructs the service.
func NewScoringService(days scoringDayStore, plans scoringPlanStore, audit auditAppender, cache *DayCacheService, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *ScoringService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := &ScoringService{
		days:       days,
		plans:      plans,
		audit:      audit,
		aggregator: NewDayAggregator(),
		cache:      cache,
		metrics:    metrics,
		validator:  validate,
		logger:     logger,
	}
	svc.validator.RegisterValidation("day_key", func(fl validator.FieldLevel) bool {
		return models.ValidDayKey(fl.Field().String())
	})
	return svc
}

// RecordCellRequest describes a single matrix cell write.
type RecordCellRequest struct {
	SchoolID string           `json:"-" validate:"required"`
	PlanID   string           `json:"-" validate:"required"`
	DayKey   string           `json:"-" validate:"required,day_key"`
	PeriodID string           `json:"period_id" validate:"required"`
	GoalID   string           `json:"goal_id" validate:"required"`
	Value    models.CellValue `json:"value"`
}

// RecordCommentRequest describes a comment write for one subject.
type RecordCommentRequest struct {
	SchoolID string `json:"-" validate:"required"`
	PlanID   string `json:"-" validate:"required"`
	DayKey   string `json:"-" validate:"required,day_key"`
	Subject  string `json:"subject" validate:"required,max=40"`
	Text     string `json:"text" validate:"max=2000"`
}

// LogIncidentRequest describes a quick-log incident entry.
type LogIncidentRequest struct {
	SchoolID string `json:"-" validate:"required"`
	PlanID   string `json:"-" validate:"required"`
	DayKey   string `json:"-" validate:"required,day_key"`
	ButtonID string `json:"button_id" validate:"required"`
	Note     string `json:"note" validate:"max=1000"`
}

// RecordCell validates the cell against the plan, merges it into the day
// matrix, recomputes totals from the full matrix, and appends an audit entry.
// A failure after the merge leaves the cell committed and surfaces as
// PARTIAL_WRITE; replaying the call converges. Returns the day with fresh
// totals.
func (s *ScoringService) RecordCell(ctx context.Context, acting models.ActingContext, req RecordCellRequest) (*models.Day, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid cell payload")
	}
	plan, err := s.loadWritablePlan(ctx, req.SchoolID, req.PlanID)
	if err != nil {
		return nil, err
	}
	if _, ok := plan.PeriodByID(req.PeriodID); !ok {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("plan has no period %q", req.PeriodID))
	}
	goal, ok := plan.GoalByID(req.GoalID)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("plan has no goal %q", req.GoalID))
	}
	if !req.Value.MatchesKind(goal.Kind) {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("cell value does not fit %s goal %q", goal.Kind, req.GoalID))
	}

	if err := s.days.MergeCell(ctx, req.PlanID, req.DayKey, req.PeriodID, req.GoalID, req.Value); err != nil {
		s.metrics.ObservePipelineOperation(opRecordCell, "error")
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to persist cell")
	}

	// The cell is committed from here on; any later failure is partial.
	day, err := s.days.Get(ctx, req.PlanID, req.DayKey)
	if err != nil {
		return nil, s.partial(opRecordCell, "totals recalculation", err,
			zap.String("plan_id", req.PlanID), zap.String("day_key", req.DayKey))
	}
	day.Totals = s.aggregator.Aggregate(plan, day.Matrix)
	if err := s.days.SetTotals(ctx, req.PlanID, req.DayKey, day.Totals); err != nil {
		return nil, s.partial(opRecordCell, "totals write", err,
			zap.String("plan_id", req.PlanID), zap.String("day_key", req.DayKey))
	}

	entry := &models.AuditEntry{
		SchoolID:   req.SchoolID,
		ActedBy:    acting.ActorID,
		AsUserID:   acting.AsUserID,
		AsRole:     acting.AsRole,
		Action:     models.AuditActionMatrixCellUpdate,
		TargetPath: models.DayPath(req.SchoolID, req.PlanID, req.DayKey),
		Details: models.AuditDetails{
			"period_id": req.PeriodID,
			"goal_id":   req.GoalID,
			"value":     req.Value,
			"pct":       day.Totals.Pct,
		},
	}
	if err := s.audit.Append(ctx, entry); err != nil {
		return nil, s.partial(opRecordCell, "audit append", err,
			zap.String("plan_id", req.PlanID), zap.String("day_key", req.DayKey))
	}

	s.cache.InvalidateDay(ctx, req.SchoolID, req.PlanID, req.DayKey)
	s.metrics.ObservePipelineOperation(opRecordCell, "ok")
	return day, nil
}

// RecordComment writes one subject's comment for the day. The teacher
// subject lands in comments.teacher; every other subject lands in
// comments.specials keyed by subject. No aggregation runs, and the audit
// entry records the text length, never the text.
func (s *ScoringService) RecordComment(ctx context.Context, acting models.ActingContext, req RecordCommentRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid comment payload")
	}
	if _, err := s.loadWritablePlan(ctx, req.SchoolID, req.PlanID); err != nil {
		return err
	}

	var writeErr error
	if req.Subject == teacherCommentSubject {
		writeErr = s.days.SetTeacherComment(ctx, req.PlanID, req.DayKey, req.Text)
	} else {
		writeErr = s.days.SetSpecialsComment(ctx, req.PlanID, req.DayKey, req.Subject, req.Text)
	}
	if writeErr != nil {
		s.metrics.ObservePipelineOperation(opRecordComment, "error")
		return appErrors.Wrap(writeErr, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save comment")
	}

	entry := &models.AuditEntry{
		SchoolID:   req.SchoolID,
		ActedBy:    acting.ActorID,
		AsUserID:   acting.AsUserID,
		AsRole:     acting.AsRole,
		Action:     models.AuditActionCommentSave,
		TargetPath: models.DayPath(req.SchoolID, req.PlanID, req.DayKey),
		Details: models.AuditDetails{
			"subject": req.Subject,
			"length":  len(req.Text),
		},
	}
	if err := s.audit.Append(ctx, entry); err != nil {
		return s.partial(opRecordComment, "audit append", err,
			zap.String("plan_id", req.PlanID), zap.String("day_key", req.DayKey))
	}

	s.cache.InvalidateDay(ctx, req.SchoolID, req.PlanID, req.DayKey)
	s.metrics.ObservePipelineOperation(opRecordComment, "ok")
	return nil
}

// LogIncident appends a quick-log incident to the day. The append reads the
// whole list and writes it back; two concurrent loggers can each read the
// same list, and the slower write then drops the faster one's incident.
// TODO: fold the append into the UPDATE (incidents || to_jsonb(...)) so
// concurrent loggers stop racing.
func (s *ScoringService) LogIncident(ctx context.Context, acting models.ActingContext, req LogIncidentRequest) (*models.Incident, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid incident payload")
	}
	plan, err := s.loadWritablePlan(ctx, req.SchoolID, req.PlanID)
	if err != nil {
		return nil, err
	}
	button, ok := plan.QuickButtonByID(req.ButtonID)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("plan has no quick-log button %q", req.ButtonID))
	}

	day, err := s.days.Get(ctx, req.PlanID, req.DayKey)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			day = models.EmptyDay(req.PlanID, req.DayKey)
		} else {
			s.metrics.ObservePipelineOperation(opLogIncident, "error")
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load day")
		}
	}

	now := time.Now().UTC()
	incident := models.Incident{
		ID:     models.NewIncidentID(now),
		Label:  button.Label,
		Color:  button.Color,
		Note:   req.Note,
		Source: acting.AsRole,
		At:     now,
	}
	if err := s.days.ReplaceIncidents(ctx, req.PlanID, req.DayKey, append(day.Incidents, incident)); err != nil {
		s.metrics.ObservePipelineOperation(opLogIncident, "error")
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to append incident")
	}

	entry := &models.AuditEntry{
		SchoolID:   req.SchoolID,
		ActedBy:    acting.ActorID,
		AsUserID:   acting.AsUserID,
		AsRole:     acting.AsRole,
		Action:     models.AuditActionIncidentLog,
		TargetPath: models.DayPath(req.SchoolID, req.PlanID, req.DayKey),
		Details: models.AuditDetails{
			"incident_id": incident.ID,
			"button_id":   req.ButtonID,
			"label":       incident.Label,
			"note_length": len(req.Note),
		},
	}
	if err := s.audit.Append(ctx, entry); err != nil {
		return nil, s.partial(opLogIncident, "audit append", err,
			zap.String("plan_id", req.PlanID), zap.String("day_key", req.DayKey))
	}

	s.cache.InvalidateDay(ctx, req.SchoolID, req.PlanID, req.DayKey)
	s.metrics.ObservePipelineOperation(opLogIncident, "ok")
	return &incident, nil
}

func (s *ScoringService) loadWritablePlan(ctx context.Context, schoolID, planID string) (*models.Plan, error) {
	plan, err := s.plans.FindByID(ctx, schoolID, planID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "plan not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load plan")
	}
	if plan.Archived {
		return nil, appErrors.Clone(appErrors.ErrArchived, "plan is archived and no longer accepts writes")
	}
	return plan, nil
}

// partial reports a pipeline step that failed after the raw write already
// committed. Nothing is rolled back; callers may replay the operation.
func (s *ScoringService) partial(op, step string, err error, fields ...zap.Field) error {
	fields = append(fields,
		zap.String("operation", op),
		zap.String("failed_step", step),
		zap.Error(err),
	)
	s.logger.Error("pipeline step failed after commit", fields...)
	s.metrics.ObservePipelineOperation(op, "partial")
	return appErrors.Wrap(err, appErrors.ErrPartialWrite.Code, appErrors.ErrPartialWrite.Status,
		fmt.Sprintf("write committed but %s failed", step))
}
