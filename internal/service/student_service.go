package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/pointsheet/pointsheet-api/internal/models"
	appErrors "github.com/pointsheet/pointsheet-api/pkg/errors"
)

type studentStore interface {
	List(ctx context.Context, schoolID string, filter models.StudentFilter) ([]models.Student, int, error)
	FindByID(ctx context.Context, schoolID, id string) (*models.Student, error)
	Create(ctx context.Context, student *models.Student) error
	Update(ctx context.Context, student *models.Student) error
}

// StudentService manages the school roster.
type StudentService struct {
	repo      studentStore
	audit     auditAppender
	validator *validator.Validate
	logger    *zap.Logger
}

// NewStudentService constructs the service.
func NewStudentService(repo studentStore, audit auditAppender, validate *validator.Validate, logger *zap.Logger) *StudentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StudentService{repo: repo, audit: audit, validator: validate, logger: logger}
}

// ListStudentsRequest describes roster filters.
type ListStudentsRequest struct {
	TeacherUID string `json:"teacher_uid"`
	GradeLevel string `json:"grade_level"`
	Search     string `json:"search"`
	Page       int    `json:"page"`
	PageSize   int    `json:"page_size"`
}

// CreateStudentRequest describes a new roster entry.
type CreateStudentRequest struct {
	SchoolID   string              `json:"-" validate:"required"`
	FullName   string              `json:"full_name" validate:"required"`
	GradeLevel string              `json:"grade_level"`
	TeacherUID string              `json:"teacher_uid"`
	Guardians  models.GuardianList `json:"guardians"`
}

// UpdateStudentRequest describes roster edits.
type UpdateStudentRequest struct {
	SchoolID   string              `json:"-" validate:"required"`
	StudentID  string              `json:"-" validate:"required"`
	FullName   string              `json:"full_name" validate:"required"`
	GradeLevel string              `json:"grade_level"`
	TeacherUID string              `json:"teacher_uid"`
	Guardians  models.GuardianList `json:"guardians"`
}

// List returns students with pagination.
func (s *StudentService) List(ctx context.Context, schoolID string, req ListStudentsRequest) ([]models.Student, *models.Pagination, error) {
	filter := models.StudentFilter{
		TeacherUID: req.TeacherUID,
		GradeLevel: req.GradeLevel,
		Search:     req.Search,
		Page:       req.Page,
		PageSize:   req.PageSize,
	}
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 {
		filter.PageSize = 20
	}
	students, total, err := s.repo.List(ctx, schoolID, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list students")
	}
	pagination := &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}
	return students, pagination, nil
}

// Get returns one student.
func (s *StudentService) Get(ctx context.Context, schoolID, studentID string) (*models.Student, error) {
	student, err := s.repo.FindByID(ctx, schoolID, studentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	return student, nil
}

// Create adds a student to the roster.
func (s *StudentService) Create(ctx context.Context, acting models.ActingContext, req CreateStudentRequest) (*models.Student, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid student payload")
	}

	student := &models.Student{
		SchoolID:   req.SchoolID,
		FullName:   req.FullName,
		GradeLevel: req.GradeLevel,
		TeacherUID: req.TeacherUID,
		Guardians:  req.Guardians,
	}
	if err := s.repo.Create(ctx, student); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create student")
	}

	s.appendAudit(ctx, acting, req.SchoolID, student.ID, models.AuditActionStudentCreate, models.AuditDetails{
		"full_name": student.FullName,
	})
	return student, nil
}

// Update modifies a roster entry.
func (s *StudentService) Update(ctx context.Context, acting models.ActingContext, req UpdateStudentRequest) (*models.Student, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid student payload")
	}

	student, err := s.Get(ctx, req.SchoolID, req.StudentID)
	if err != nil {
		return nil, err
	}

	student.FullName = req.FullName
	student.GradeLevel = req.GradeLevel
	student.TeacherUID = req.TeacherUID
	student.Guardians = req.Guardians
	if err := s.repo.Update(ctx, student); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update student")
	}

	s.appendAudit(ctx, acting, req.SchoolID, student.ID, models.AuditActionStudentUpdate, models.AuditDetails{
		"full_name": student.FullName,
	})
	return student, nil
}

func (s *StudentService) appendAudit(ctx context.Context, acting models.ActingContext, schoolID, studentID, action string, details models.AuditDetails) {
	entry := &models.AuditEntry{
		SchoolID:   schoolID,
		ActedBy:    acting.ActorID,
		AsUserID:   acting.AsUserID,
		AsRole:     acting.AsRole,
		Action:     action,
		TargetPath: models.StudentPath(schoolID, studentID),
		Details:    details,
	}
	if err := s.audit.Append(ctx, entry); err != nil {
		s.logger.Warn("failed to record student audit entry", zap.String("student_id", studentID), zap.Error(err))
	}
}
