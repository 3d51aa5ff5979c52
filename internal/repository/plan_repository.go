package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/pointsheet/pointsheet-api/internal/models"
)

// PlanRepository manages persistence for point plans.
type PlanRepository struct {
	db *sqlx.DB
}

// NewPlanRepository constructs a PlanRepository.
func NewPlanRepository(db *sqlx.DB) *PlanRepository {
	return &PlanRepository{db: db}
}

const planColumns = `id, school_id, student_id, plan_type, schedule, goals, incentives, quick_buttons, accommodations, archived, created_at, updated_at`

// FindByID fetches a plan by ID, scoped to the school.
func (r *PlanRepository) FindByID(ctx context.Context, schoolID, id string) (*models.Plan, error) {
	query := fmt.Sprintf("SELECT %s FROM plans WHERE school_id = $1 AND id = $2", planColumns)
	var plan models.Plan
	if err := r.db.GetContext(ctx, &plan, query, schoolID, id); err != nil {
		return nil, err
	}
	return &plan, nil
}

// ListByStudent returns all plans for a student, newest first. Archived
// plans are included; history must stay scoreable.
func (r *PlanRepository) ListByStudent(ctx context.Context, schoolID, studentID string) ([]models.Plan, error) {
	query := fmt.Sprintf("SELECT %s FROM plans WHERE school_id = $1 AND student_id = $2 ORDER BY created_at DESC", planColumns)
	var plans []models.Plan
	if err := r.db.SelectContext(ctx, &plans, query, schoolID, studentID); err != nil {
		return nil, fmt.Errorf("list plans: %w", err)
	}
	return plans, nil
}

// Create inserts a new plan record.
func (r *PlanRepository) Create(ctx context.Context, plan *models.Plan) error {
	if plan.ID == "" {
		plan.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if plan.CreatedAt.IsZero() {
		plan.CreatedAt = now
	}
	plan.UpdatedAt = now
	const query = `INSERT INTO plans (id, school_id, student_id, plan_type, schedule, goals, incentives, quick_buttons, accommodations, archived, created_at, updated_at)
        VALUES (:id, :school_id, :student_id, :plan_type, :schedule, :goals, :incentives, :quick_buttons, :accommodations, :archived, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, plan); err != nil {
		return fmt.Errorf("create plan: %w", err)
	}
	return nil
}

// Update modifies an existing plan's definition.
func (r *PlanRepository) Update(ctx context.Context, plan *models.Plan) error {
	plan.UpdatedAt = time.Now().UTC()
	const query = `UPDATE plans SET plan_type = :plan_type, schedule = :schedule, goals = :goals, incentives = :incentives,
        quick_buttons = :quick_buttons, accommodations = :accommodations, updated_at = :updated_at
        WHERE school_id = :school_id AND id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, plan); err != nil {
		return fmt.Errorf("update plan: %w", err)
	}
	return nil
}

// Archive marks a plan as archived. Plans are never deleted.
func (r *PlanRepository) Archive(ctx context.Context, schoolID, id string) error {
	const query = `UPDATE plans SET archived = true, updated_at = $3 WHERE school_id = $1 AND id = $2`
	result, err := r.db.ExecContext(ctx, query, schoolID, id, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("archive plan: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("archive plan: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
