package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/pointsheet/pointsheet-api/internal/models"
	appErrors "github.com/pointsheet/pointsheet-api/pkg/errors"
)

type staffStore interface {
	FindByUID(ctx context.Context, uid string) (*models.Staff, error)
	List(ctx context.Context, schoolID string, filter models.StaffFilter) ([]models.Staff, int, error)
	Upsert(ctx context.Context, staff *models.Staff) error
}

type claimsSyncEnqueuer interface {
	EnqueueSync(uid string)
}

// StaffService manages staff records. Role or school changes enqueue a
// claims sync; everything else leaves issued tokens alone.
type StaffService struct {
	repo      staffStore
	audit     auditAppender
	claims    claimsSyncEnqueuer
	validator *validator.Validate
	logger    *zap.Logger
}

// NewStaffService constructs the service.
func NewStaffService(repo staffStore, audit auditAppender, claims claimsSyncEnqueuer, validate *validator.Validate, logger *zap.Logger) *StaffService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := &StaffService{repo: repo, audit: audit, claims: claims, validator: validate, logger: logger}
	svc.validator.RegisterValidation("staff_role", func(fl validator.FieldLevel) bool {
		return models.ValidRole(models.StaffRole(fl.Field().String()))
	})
	return svc
}

// ListStaffRequest describes filters for listing staff.
type ListStaffRequest struct {
	Role     string `json:"role" validate:"omitempty,staff_role"`
	Search   string `json:"search"`
	Page     int    `json:"page"`
	PageSize int    `json:"page_size"`
}

// UpsertStaffRequest describes a staff create-or-update payload. The first
// role listed is the primary one used for impersonation and incident
// sourcing.
type UpsertStaffRequest struct {
	SchoolID string   `json:"-" validate:"required"`
	UID      string   `json:"-" validate:"required"`
	Email    string   `json:"email" validate:"required,email"`
	FullName string   `json:"full_name" validate:"required"`
	Roles    []string `json:"roles" validate:"required,min=1,dive,staff_role"`
	Password string   `json:"password" validate:"omitempty,min=8"`
}

// List returns staff in a school with pagination.
func (s *StaffService) List(ctx context.Context, schoolID string, req ListStaffRequest) ([]models.Staff, *models.Pagination, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid staff filter")
	}
	filter := models.StaffFilter{
		Role:     models.StaffRole(req.Role),
		Search:   req.Search,
		Page:     req.Page,
		PageSize: req.PageSize,
	}
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 {
		filter.PageSize = 20
	}
	members, total, err := s.repo.List(ctx, schoolID, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list staff")
	}
	pagination := &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}
	return members, pagination, nil
}

// Get returns one staff member.
func (s *StaffService) Get(ctx context.Context, schoolID, uid string) (*models.Staff, error) {
	staff, err := s.repo.FindByUID(ctx, uid)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "staff member not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load staff member")
	}
	if staff.SchoolID != schoolID {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "staff member not found")
	}
	return staff, nil
}

// Upsert creates or updates a staff record keyed by UID. When the roles set
// or the school changed, the claims synchronizer is enqueued so stale tokens
// stop validating.
func (s *StaffService) Upsert(ctx context.Context, acting models.ActingContext, req UpsertStaffRequest) (*models.Staff, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid staff payload")
	}

	roles := make(models.RoleList, len(req.Roles))
	for i, role := range req.Roles {
		roles[i] = models.StaffRole(role)
	}

	existing, err := s.repo.FindByUID(ctx, req.UID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load staff member")
	}

	staff := &models.Staff{
		UID:      req.UID,
		SchoolID: req.SchoolID,
		Email:    req.Email,
		FullName: req.FullName,
		Roles:    roles,
	}

	claimsChanged := true
	if existing != nil {
		staff.CreatedAt = existing.CreatedAt
		staff.ClaimsVersion = existing.ClaimsVersion
		staff.PasswordHash = existing.PasswordHash
		claimsChanged = !existing.Roles.EqualSet(roles) || existing.SchoolID != req.SchoolID
	}

	if req.Password != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
		}
		staff.PasswordHash = string(hash)
	}
	if staff.PasswordHash == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "password is required for new staff")
	}

	if err := s.repo.Upsert(ctx, staff); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save staff member")
	}

	entry := &models.AuditEntry{
		SchoolID:   req.SchoolID,
		ActedBy:    acting.ActorID,
		AsUserID:   acting.AsUserID,
		AsRole:     acting.AsRole,
		Action:     models.AuditActionStaffUpdate,
		TargetPath: models.StaffPath(req.SchoolID, req.UID),
		Details: models.AuditDetails{
			"roles":         roles,
			"claims_synced": claimsChanged,
		},
	}
	if err := s.audit.Append(ctx, entry); err != nil {
		s.logger.Warn("failed to record staff audit entry", zap.String("uid", req.UID), zap.Error(err))
	}

	if claimsChanged && s.claims != nil {
		s.claims.EnqueueSync(req.UID)
	}

	return staff, nil
}
