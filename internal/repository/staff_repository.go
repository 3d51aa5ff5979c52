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

// StaffRepository manages persistence for staff accounts.
type StaffRepository struct {
	db *sqlx.DB
}

// NewStaffRepository constructs a StaffRepository.
func NewStaffRepository(db *sqlx.DB) *StaffRepository {
	return &StaffRepository{db: db}
}

const staffColumns = `uid, school_id, email, password_hash, full_name, roles, claims_version, created_at, updated_at`

// FindByUID fetches a staff member by UID.
func (r *StaffRepository) FindByUID(ctx context.Context, uid string) (*models.Staff, error) {
	query := fmt.Sprintf("SELECT %s FROM staff WHERE uid = $1", staffColumns)
	var staff models.Staff
	if err := r.db.GetContext(ctx, &staff, query, uid); err != nil {
		return nil, err
	}
	return &staff, nil
}

// FindByEmail fetches a staff member by email (sign-in lookup).
func (r *StaffRepository) FindByEmail(ctx context.Context, email string) (*models.Staff, error) {
	query := fmt.Sprintf("SELECT %s FROM staff WHERE LOWER(email) = LOWER($1)", staffColumns)
	var staff models.Staff
	if err := r.db.GetContext(ctx, &staff, query, email); err != nil {
		return nil, err
	}
	return &staff, nil
}

// List returns staff in a school matching the provided filters.
func (r *StaffRepository) List(ctx context.Context, schoolID string, filter models.StaffFilter) ([]models.Staff, int, error) {
	conditions := []string{"school_id = $1"}
	args := []interface{}{schoolID}

	if filter.Role != "" {
		conditions = append(conditions, fmt.Sprintf("roles @> $%d", len(args)+1))
		args = append(args, fmt.Sprintf(`["%s"]`, filter.Role))
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(LOWER(full_name) LIKE $%d OR LOWER(email) LIKE $%d)", len(args)+1, len(args)+1))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}

	where := strings.Join(conditions, " AND ")

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf("SELECT %s FROM staff WHERE %s ORDER BY full_name ASC LIMIT %d OFFSET %d",
		staffColumns, where, size, offset)

	var members []models.Staff
	if err := r.db.SelectContext(ctx, &members, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list staff: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM staff WHERE %s", where)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count staff: %w", err)
	}
	return members, total, nil
}

// Upsert inserts or updates a staff row keyed by UID. The claims version is
// never written here; only the claims synchronizer advances it.
func (r *StaffRepository) Upsert(ctx context.Context, staff *models.Staff) error {
	if staff.UID == "" {
		staff.UID = uuid.NewString()
	}
	now := time.Now().UTC()
	if staff.CreatedAt.IsZero() {
		staff.CreatedAt = now
	}
	staff.UpdatedAt = now
	const query = `INSERT INTO staff (uid, school_id, email, password_hash, full_name, roles, claims_version, created_at, updated_at)
        VALUES (:uid, :school_id, :email, :password_hash, :full_name, :roles, :claims_version, :created_at, :updated_at)
        ON CONFLICT (uid) DO UPDATE
        SET school_id = EXCLUDED.school_id, email = EXCLUDED.email, password_hash = EXCLUDED.password_hash,
            full_name = EXCLUDED.full_name, roles = EXCLUDED.roles, updated_at = EXCLUDED.updated_at`
	if _, err := r.db.NamedExecContext(ctx, query, staff); err != nil {
		return fmt.Errorf("upsert staff: %w", err)
	}
	return nil
}

// BumpClaimsVersion advances the claims version and returns the new value.
func (r *StaffRepository) BumpClaimsVersion(ctx context.Context, uid string) (int, error) {
	const query = `UPDATE staff SET claims_version = claims_version + 1, updated_at = $2 WHERE uid = $1 RETURNING claims_version`
	var version int
	if err := r.db.GetContext(ctx, &version, query, uid, time.Now().UTC()); err != nil {
		return 0, fmt.Errorf("bump claims version: %w", err)
	}
	return version, nil
}

// ClaimsVersion reads the current claims version for token validation.
func (r *StaffRepository) ClaimsVersion(ctx context.Context, uid string) (int, error) {
	const query = `SELECT claims_version FROM staff WHERE uid = $1`
	var version int
	if err := r.db.GetContext(ctx, &version, query, uid); err != nil {
		return 0, err
	}
	return version, nil
}
