package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/pointsheet/pointsheet-api/internal/models"
)

// AuditRepository is the append-only store for audit entries. There is no
// update or delete path; review queries are the only reads.
type AuditRepository struct {
	db *sqlx.DB
}

// NewAuditRepository constructs an AuditRepository.
func NewAuditRepository(db *sqlx.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

const auditColumns = `id, school_id, acted_by, as_user_id, as_role, action, target_path, details, created_at`

// Append inserts one audit entry.
func (r *AuditRepository) Append(ctx context.Context, entry *models.AuditEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO audit_entries (id, school_id, acted_by, as_user_id, as_role, action, target_path, details, created_at)
        VALUES (:id, :school_id, :acted_by, :as_user_id, :as_role, :action, :target_path, :details, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, entry); err != nil {
		return fmt.Errorf("append audit entry: %w", err)
	}
	return nil
}

// List returns a school's audit entries matching the filter, newest first.
func (r *AuditRepository) List(ctx context.Context, schoolID string, filter models.AuditFilter) ([]models.AuditEntry, int, error) {
	conditions := []string{"school_id = $1"}
	args := []interface{}{schoolID}

	if filter.Action != "" {
		conditions = append(conditions, fmt.Sprintf("action = $%d", len(args)+1))
		args = append(args, filter.Action)
	}
	if filter.ActedBy != "" {
		conditions = append(conditions, fmt.Sprintf("acted_by = $%d", len(args)+1))
		args = append(args, filter.ActedBy)
	}
	if filter.From != nil {
		conditions = append(conditions, fmt.Sprintf("created_at >= $%d", len(args)+1))
		args = append(args, *filter.From)
	}
	if filter.To != nil {
		conditions = append(conditions, fmt.Sprintf("created_at <= $%d", len(args)+1))
		args = append(args, *filter.To)
	}

	where := strings.Join(conditions, " AND ")

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 200 {
		size = 50
	}
	offset := (page - 1) * size

	query := fmt.Sprintf("SELECT %s FROM audit_entries WHERE %s ORDER BY created_at DESC LIMIT %d OFFSET %d",
		auditColumns, where, size, offset)

	var entries []models.AuditEntry
	if err := r.db.SelectContext(ctx, &entries, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list audit entries: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM audit_entries WHERE %s", where)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count audit entries: %w", err)
	}
	return entries, total, nil
}
