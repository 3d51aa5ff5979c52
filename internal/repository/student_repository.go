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

// StudentRepository manages persistence for student records.
type StudentRepository struct {
	db *sqlx.DB
}

// NewStudentRepository constructs a StudentRepository.
func NewStudentRepository(db *sqlx.DB) *StudentRepository {
	return &StudentRepository{db: db}
}

const studentColumns = `id, school_id, full_name, grade_level, teacher_uid, active_plan_id, guardians, created_at, updated_at`

// List returns students in a school matching the provided filters.
func (r *StudentRepository) List(ctx context.Context, schoolID string, filter models.StudentFilter) ([]models.Student, int, error) {
	conditions := []string{"school_id = $1"}
	args := []interface{}{schoolID}

	if filter.TeacherUID != "" {
		conditions = append(conditions, fmt.Sprintf("teacher_uid = $%d", len(args)+1))
		args = append(args, filter.TeacherUID)
	}
	if filter.GradeLevel != "" {
		conditions = append(conditions, fmt.Sprintf("grade_level = $%d", len(args)+1))
		args = append(args, filter.GradeLevel)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("LOWER(full_name) LIKE $%d", len(args)+1))
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

	query := fmt.Sprintf("SELECT %s FROM students WHERE %s ORDER BY full_name ASC LIMIT %d OFFSET %d",
		studentColumns, where, size, offset)

	var students []models.Student
	if err := r.db.SelectContext(ctx, &students, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list students: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM students WHERE %s", where)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count students: %w", err)
	}
	return students, total, nil
}

// FindByID fetches a student by ID, scoped to the school.
func (r *StudentRepository) FindByID(ctx context.Context, schoolID, id string) (*models.Student, error) {
	query := fmt.Sprintf("SELECT %s FROM students WHERE school_id = $1 AND id = $2", studentColumns)
	var student models.Student
	if err := r.db.GetContext(ctx, &student, query, schoolID, id); err != nil {
		return nil, err
	}
	return &student, nil
}

// Create inserts a new student record.
func (r *StudentRepository) Create(ctx context.Context, student *models.Student) error {
	if student.ID == "" {
		student.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if student.CreatedAt.IsZero() {
		student.CreatedAt = now
	}
	student.UpdatedAt = now
	const query = `INSERT INTO students (id, school_id, full_name, grade_level, teacher_uid, active_plan_id, guardians, created_at, updated_at)
        VALUES (:id, :school_id, :full_name, :grade_level, :teacher_uid, :active_plan_id, :guardians, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, student); err != nil {
		return fmt.Errorf("create student: %w", err)
	}
	return nil
}

// Update modifies an existing student.
func (r *StudentRepository) Update(ctx context.Context, student *models.Student) error {
	student.UpdatedAt = time.Now().UTC()
	const query = `UPDATE students SET full_name = :full_name, grade_level = :grade_level, teacher_uid = :teacher_uid,
        active_plan_id = :active_plan_id, guardians = :guardians, updated_at = :updated_at
        WHERE school_id = :school_id AND id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, student); err != nil {
		return fmt.Errorf("update student: %w", err)
	}
	return nil
}

// SetActivePlan points the student at their current plan.
func (r *StudentRepository) SetActivePlan(ctx context.Context, schoolID, studentID, planID string) error {
	const query = `UPDATE students SET active_plan_id = $3, updated_at = $4 WHERE school_id = $1 AND id = $2`
	if _, err := r.db.ExecContext(ctx, query, schoolID, studentID, planID, time.Now().UTC()); err != nil {
		return fmt.Errorf("set active plan: %w", err)
	}
	return nil
}
