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

type schoolStore interface {
	FindByID(ctx context.Context, id string) (*models.School, error)
	Create(ctx context.Context, school *models.School) error
	UpdateTheme(ctx context.Context, id string, theme models.Theme) error
}

// SchoolService manages the tenant root document and its theme.
type SchoolService struct {
	repo      schoolStore
	audit     auditAppender
	validator *validator.Validate
	logger    *zap.Logger
}

// NewSchoolService constructs the service.
func NewSchoolService(repo schoolStore, audit auditAppender, validate *validator.Validate, logger *zap.Logger) *SchoolService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SchoolService{repo: repo, audit: audit, validator: validate, logger: logger}
}

// CreateSchoolRequest describes a new school.
type CreateSchoolRequest struct {
	Name    string       `json:"name" validate:"required"`
	LogoURL string       `json:"logo_url" validate:"omitempty,url"`
	Theme   models.Theme `json:"theme"`
}

// Get returns one school document.
func (s *SchoolService) Get(ctx context.Context, id string) (*models.School, error) {
	school, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "school not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load school")
	}
	return school, nil
}

// Create provisions a new school.
func (s *SchoolService) Create(ctx context.Context, acting models.ActingContext, req CreateSchoolRequest) (*models.School, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid school payload")
	}

	school := &models.School{
		Name:    req.Name,
		LogoURL: req.LogoURL,
		Theme:   req.Theme,
	}
	if err := s.repo.Create(ctx, school); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create school")
	}

	entry := &models.AuditEntry{
		SchoolID:   school.ID,
		ActedBy:    acting.ActorID,
		AsUserID:   acting.AsUserID,
		AsRole:     acting.AsRole,
		Action:     models.AuditActionSchoolCreate,
		TargetPath: models.SchoolPath(school.ID),
		Details:    models.AuditDetails{"name": school.Name},
	}
	if err := s.audit.Append(ctx, entry); err != nil {
		s.logger.Warn("failed to record school audit entry", zap.String("school_id", school.ID), zap.Error(err))
	}

	return school, nil
}

// UpdateTheme replaces the school theme.
func (s *SchoolService) UpdateTheme(ctx context.Context, acting models.ActingContext, schoolID string, theme models.Theme) (*models.School, error) {
	if err := s.validator.Struct(theme); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid theme payload")
	}

	if err := s.repo.UpdateTheme(ctx, schoolID, theme); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "school not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update theme")
	}

	entry := &models.AuditEntry{
		SchoolID:   schoolID,
		ActedBy:    acting.ActorID,
		AsUserID:   acting.AsUserID,
		AsRole:     acting.AsRole,
		Action:     models.AuditActionThemeUpdate,
		TargetPath: models.SchoolPath(schoolID),
		Details: models.AuditDetails{
			"mode":      theme.Mode,
			"var_count": len(theme.Vars),
		},
	}
	if err := s.audit.Append(ctx, entry); err != nil {
		s.logger.Warn("failed to record theme audit entry", zap.String("school_id", schoolID), zap.Error(err))
	}

	return s.Get(ctx, schoolID)
}
