package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/pointsheet/pointsheet-api/internal/models"
	appErrors "github.com/pointsheet/pointsheet-api/pkg/errors"
)

type planStore interface {
	FindByID(ctx context.Context, schoolID, id string) (*models.Plan, error)
	ListByStudent(ctx context.Context, schoolID, studentID string) ([]models.Plan, error)
	Create(ctx context.Context, plan *models.Plan) error
	Update(ctx context.Context, plan *models.Plan) error
	Archive(ctx context.Context, schoolID, id string) error
}

type planStudentStore interface {
	FindByID(ctx context.Context, schoolID, id string) (*models.Student, error)
	SetActivePlan(ctx context.Context, schoolID, studentID, planID string) error
}

// PlanService manages point plan lifecycle. Plans are archived, never
// deleted, and definition edits are non-retroactive: days scored under the
// old definition keep their stored totals until a new cell write lands.
type PlanService struct {
	plans     planStore
	students  planStudentStore
	audit     auditAppender
	cache     *DayCacheService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewPlanService constructs the service.
func NewPlanService(plans planStore, students planStudentStore, audit auditAppender, cache *DayCacheService, validate *validator.Validate, logger *zap.Logger) *PlanService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PlanService{plans: plans, students: students, audit: audit, cache: cache, validator: validate, logger: logger}
}

// CreatePlanRequest describes a new plan for a student.
type CreatePlanRequest struct {
	SchoolID       string                      `json:"-" validate:"required"`
	StudentID      string                      `json:"-" validate:"required"`
	PlanType       string                      `json:"plan_type" validate:"required,oneof=percent percent_ampm"`
	Schedule       []models.Period             `json:"schedule"`
	Goals          []models.Goal               `json:"goals"`
	Incentives     []models.IncentiveThreshold `json:"incentives"`
	QuickButtons   []models.IncidentButton     `json:"quick_buttons"`
	Accommodations []string                    `json:"accommodations"`
}

// UpdatePlanRequest describes definition edits to an existing plan.
type UpdatePlanRequest struct {
	SchoolID       string                      `json:"-" validate:"required"`
	PlanID         string                      `json:"-" validate:"required"`
	PlanType       string                      `json:"plan_type" validate:"required,oneof=percent percent_ampm"`
	Schedule       []models.Period             `json:"schedule"`
	Goals          []models.Goal               `json:"goals"`
	Incentives     []models.IncentiveThreshold `json:"incentives"`
	QuickButtons   []models.IncidentButton     `json:"quick_buttons"`
	Accommodations []string                    `json:"accommodations"`
}

// Get returns one plan.
func (s *PlanService) Get(ctx context.Context, schoolID, planID string) (*models.Plan, error) {
	plan, err := s.plans.FindByID(ctx, schoolID, planID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "plan not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load plan")
	}
	return plan, nil
}

// ListByStudent returns every plan for a student, newest first. Archived
// plans are included so history stays viewable.
func (s *PlanService) ListByStudent(ctx context.Context, schoolID, studentID string) ([]models.Plan, error) {
	if _, err := s.students.FindByID(ctx, schoolID, studentID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	plans, err := s.plans.ListByStudent(ctx, schoolID, studentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list plans")
	}
	return plans, nil
}

// Create adds a plan and makes it the student's active one.
func (s *PlanService) Create(ctx context.Context, acting models.ActingContext, req CreatePlanRequest) (*models.Plan, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid plan payload")
	}
	if err := validatePlanDefinition(req.Schedule, req.Goals, req.Incentives, req.QuickButtons); err != nil {
		return nil, err
	}
	if _, err := s.students.FindByID(ctx, req.SchoolID, req.StudentID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}

	plan := &models.Plan{
		SchoolID:       req.SchoolID,
		StudentID:      req.StudentID,
		PlanType:       models.PlanType(req.PlanType),
		Schedule:       models.PeriodList(req.Schedule),
		Goals:          models.GoalList(req.Goals),
		Incentives:     models.IncentiveList(req.Incentives),
		QuickButtons:   models.ButtonList(req.QuickButtons),
		Accommodations: models.StringList(req.Accommodations),
	}
	if err := s.plans.Create(ctx, plan); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create plan")
	}
	if err := s.students.SetActivePlan(ctx, req.SchoolID, req.StudentID, plan.ID); err != nil {
		s.logger.Warn("plan created but activation failed",
			zap.String("plan_id", plan.ID), zap.String("student_id", req.StudentID), zap.Error(err))
	}

	s.appendAudit(ctx, acting, req.SchoolID, plan.ID, models.AuditActionPlanCreate, models.AuditDetails{
		"student_id": req.StudentID,
		"plan_type":  req.PlanType,
	})
	return plan, nil
}

// Update replaces a plan's definition. Archived plans reject edits.
func (s *PlanService) Update(ctx context.Context, acting models.ActingContext, req UpdatePlanRequest) (*models.Plan, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid plan payload")
	}
	if err := validatePlanDefinition(req.Schedule, req.Goals, req.Incentives, req.QuickButtons); err != nil {
		return nil, err
	}

	plan, err := s.Get(ctx, req.SchoolID, req.PlanID)
	if err != nil {
		return nil, err
	}
	if plan.Archived {
		return nil, appErrors.Clone(appErrors.ErrArchived, "plan is archived and no longer accepts edits")
	}

	plan.PlanType = models.PlanType(req.PlanType)
	plan.Schedule = models.PeriodList(req.Schedule)
	plan.Goals = models.GoalList(req.Goals)
	plan.Incentives = models.IncentiveList(req.Incentives)
	plan.QuickButtons = models.ButtonList(req.QuickButtons)
	plan.Accommodations = models.StringList(req.Accommodations)
	if err := s.plans.Update(ctx, plan); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update plan")
	}

	s.cache.InvalidatePlan(ctx, req.SchoolID, req.PlanID)
	s.appendAudit(ctx, acting, req.SchoolID, plan.ID, models.AuditActionPlanUpdate, models.AuditDetails{
		"plan_type": req.PlanType,
		"periods":   len(req.Schedule),
		"goals":     len(req.Goals),
	})
	return plan, nil
}

// Archive retires a plan. Its days stay readable; pipeline writes are
// rejected from here on.
func (s *PlanService) Archive(ctx context.Context, acting models.ActingContext, schoolID, planID string) error {
	if err := s.plans.Archive(ctx, schoolID, planID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "plan not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to archive plan")
	}

	s.appendAudit(ctx, acting, schoolID, planID, models.AuditActionPlanArchive, models.AuditDetails{})
	return nil
}

func (s *PlanService) appendAudit(ctx context.Context, acting models.ActingContext, schoolID, planID, action string, details models.AuditDetails) {
	entry := &models.AuditEntry{
		SchoolID:   schoolID,
		ActedBy:    acting.ActorID,
		AsUserID:   acting.AsUserID,
		AsRole:     acting.AsRole,
		Action:     action,
		TargetPath: models.PlanPath(schoolID, planID),
		Details:    details,
	}
	if err := s.audit.Append(ctx, entry); err != nil {
		s.logger.Warn("failed to record plan audit entry", zap.String("plan_id", planID), zap.Error(err))
	}
}

// validatePlanDefinition checks the cross-field rules struct tags cannot
// express: non-empty unique ids and known goal kinds.
func validatePlanDefinition(schedule []models.Period, goals []models.Goal, incentives []models.IncentiveThreshold, buttons []models.IncidentButton) error {
	if len(schedule) == 0 {
		return appErrors.Clone(appErrors.ErrValidation, "plan needs at least one period")
	}
	if len(goals) == 0 {
		return appErrors.Clone(appErrors.ErrValidation, "plan needs at least one goal")
	}

	periodIDs := make(map[string]struct{}, len(schedule))
	for _, period := range schedule {
		if period.ID == "" || period.Label == "" {
			return appErrors.Clone(appErrors.ErrValidation, "every period needs an id and a label")
		}
		if _, dup := periodIDs[period.ID]; dup {
			return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("duplicate period id %q", period.ID))
		}
		periodIDs[period.ID] = struct{}{}
	}

	goalIDs := make(map[string]struct{}, len(goals))
	for _, goal := range goals {
		if goal.ID == "" || goal.Label == "" {
			return appErrors.Clone(appErrors.ErrValidation, "every goal needs an id and a label")
		}
		if goal.Kind != models.GoalKindStepper && goal.Kind != models.GoalKindCheckbox {
			return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown goal kind %q", goal.Kind))
		}
		if _, dup := goalIDs[goal.ID]; dup {
			return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("duplicate goal id %q", goal.ID))
		}
		goalIDs[goal.ID] = struct{}{}
	}

	for _, threshold := range incentives {
		if threshold.Label == "" {
			return appErrors.Clone(appErrors.ErrValidation, "every incentive needs a label")
		}
		if threshold.MinPct < 0 || threshold.MinPct > 100 {
			return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("incentive %q needs a percentage between 0 and 100", threshold.Label))
		}
	}

	buttonIDs := make(map[string]struct{}, len(buttons))
	for _, button := range buttons {
		if button.ID == "" || button.Label == "" {
			return appErrors.Clone(appErrors.ErrValidation, "every quick-log button needs an id and a label")
		}
		if _, dup := buttonIDs[button.ID]; dup {
			return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("duplicate button id %q", button.ID))
		}
		buttonIDs[button.ID] = struct{}{}
	}

	return nil
}
