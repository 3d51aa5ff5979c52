package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/pointsheet/pointsheet-api/internal/models"
	appErrors "github.com/pointsheet/pointsheet-api/pkg/errors"
)

type auditStore interface {
	List(ctx context.Context, schoolID string, filter models.AuditFilter) ([]models.AuditEntry, int, error)
}

// AuditService serves admin review reads of the append-only audit log.
// Writing stays with the services that own the mutations.
type AuditService struct {
	repo        auditStore
	maxPageSize int
	logger      *zap.Logger
}

// NewAuditService constructs the service.
func NewAuditService(repo auditStore, maxPageSize int, logger *zap.Logger) *AuditService {
	if maxPageSize <= 0 {
		maxPageSize = 200
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuditService{repo: repo, maxPageSize: maxPageSize, logger: logger}
}

// AuditListRequest describes review filters.
type AuditListRequest struct {
	Action   string
	ActedBy  string
	From     *time.Time
	To       *time.Time
	Page     int
	PageSize int
}

// List returns audit entries newest first.
func (s *AuditService) List(ctx context.Context, schoolID string, req AuditListRequest) ([]models.AuditEntry, *models.Pagination, error) {
	if req.From != nil && req.To != nil && req.From.After(*req.To) {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "from must not be after to")
	}

	filter := models.AuditFilter{
		Action:   req.Action,
		ActedBy:  req.ActedBy,
		From:     req.From,
		To:       req.To,
		Page:     req.Page,
		PageSize: req.PageSize,
	}
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 {
		filter.PageSize = 50
	}
	if filter.PageSize > s.maxPageSize {
		filter.PageSize = s.maxPageSize
	}

	entries, total, err := s.repo.List(ctx, schoolID, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list audit entries")
	}
	pagination := &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}
	return entries, pagination, nil
}
