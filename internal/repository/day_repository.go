package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/pointsheet/pointsheet-api/internal/models"
)

// DayRepository persists day documents keyed (plan_id, day_key). The nested
// structures (matrix, totals, comments, incidents) are JSONB columns;
// single-cell and single-comment writes go through jsonb_set so concurrent
// writers touching different fields never clobber each other.
type DayRepository struct {
	db *sqlx.DB
}

// NewDayRepository constructs a DayRepository.
func NewDayRepository(db *sqlx.DB) *DayRepository {
	return &DayRepository{db: db}
}

const dayColumns = `plan_id, day_key, matrix, totals, comments, incidents, updated_at`

// Get returns the stored day document. Callers map sql.ErrNoRows to the
// lazily-created empty day.
func (r *DayRepository) Get(ctx context.Context, planID, dayKey string) (*models.Day, error) {
	const query = `SELECT ` + dayColumns + ` FROM days WHERE plan_id = $1 AND day_key = $2`
	var day models.Day
	if err := r.db.GetContext(ctx, &day, query, planID, dayKey); err != nil {
		return nil, err
	}
	return &day, nil
}

// ListRange returns the existing day documents with day keys in [from, to],
// ordered by day key. Days without writes are absent, never materialized.
func (r *DayRepository) ListRange(ctx context.Context, planID, from, to string) ([]models.Day, error) {
	const query = `SELECT ` + dayColumns + ` FROM days WHERE plan_id = $1 AND day_key >= $2 AND day_key <= $3 ORDER BY day_key ASC`
	var days []models.Day
	if err := r.db.SelectContext(ctx, &days, query, planID, from, to); err != nil {
		return nil, fmt.Errorf("list days: %w", err)
	}
	return days, nil
}

// MergeCell writes a single matrix cell, creating the day row on first
// write. The update path touches only the addressed cell: the inner
// jsonb_set materializes the period object, the outer one sets the goal
// leaf. A null value is stored as JSON null, which reads back as unscored.
func (r *DayRepository) MergeCell(ctx context.Context, planID, dayKey, periodID, goalID string, value models.CellValue) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal cell value: %w", err)
	}

	seed := models.Matrix{}
	seed.SetCell(periodID, goalID, value)

	const query = `INSERT INTO days (plan_id, day_key, matrix, totals, comments, incidents, updated_at)
VALUES ($1, $2, $3, '{}'::jsonb, '{}'::jsonb, '[]'::jsonb, $4)
ON CONFLICT (plan_id, day_key) DO UPDATE
SET matrix = jsonb_set(
        jsonb_set(days.matrix, ARRAY[$5], COALESCE(days.matrix -> $5, '{}'::jsonb), true),
        ARRAY[$5, $6], $7, true),
    updated_at = $4`
	if _, err := r.db.ExecContext(ctx, query, planID, dayKey, seed, time.Now().UTC(), periodID, goalID, raw); err != nil {
		return fmt.Errorf("merge cell: %w", err)
	}
	return nil
}

// SetTotals overwrites the derived totals block. The day row must already
// exist: totals are only ever written right after a cell merge.
func (r *DayRepository) SetTotals(ctx context.Context, planID, dayKey string, totals models.Totals) error {
	const query = `UPDATE days SET totals = $3, updated_at = $4 WHERE plan_id = $1 AND day_key = $2`
	result, err := r.db.ExecContext(ctx, query, planID, dayKey, totals, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("set totals: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("set totals: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// SetTeacherComment merges the homeroom-teacher comment field.
func (r *DayRepository) SetTeacherComment(ctx context.Context, planID, dayKey, text string) error {
	seed := models.Comments{Teacher: text}
	const query = `INSERT INTO days (plan_id, day_key, matrix, totals, comments, incidents, updated_at)
VALUES ($1, $2, '{}'::jsonb, '{}'::jsonb, $3, '[]'::jsonb, $4)
ON CONFLICT (plan_id, day_key) DO UPDATE
SET comments = jsonb_set(days.comments, '{teacher}', to_jsonb($5::text), true),
    updated_at = $4`
	if _, err := r.db.ExecContext(ctx, query, planID, dayKey, seed, time.Now().UTC(), text); err != nil {
		return fmt.Errorf("set teacher comment: %w", err)
	}
	return nil
}

// SetSpecialsComment merges one specials-subject comment field.
func (r *DayRepository) SetSpecialsComment(ctx context.Context, planID, dayKey, subject, text string) error {
	seed := models.Comments{Specials: map[string]string{subject: text}}
	const query = `INSERT INTO days (plan_id, day_key, matrix, totals, comments, incidents, updated_at)
VALUES ($1, $2, '{}'::jsonb, '{}'::jsonb, $3, '[]'::jsonb, $4)
ON CONFLICT (plan_id, day_key) DO UPDATE
SET comments = jsonb_set(
        jsonb_set(days.comments, '{specials}', COALESCE(days.comments -> 'specials', '{}'::jsonb), true),
        ARRAY['specials', $5], to_jsonb($6::text), true),
    updated_at = $4`
	if _, err := r.db.ExecContext(ctx, query, planID, dayKey, seed, time.Now().UTC(), subject, text); err != nil {
		return fmt.Errorf("set specials comment: %w", err)
	}
	return nil
}

// ReplaceIncidents writes the whole incidents list. Callers read the day,
// append in memory and write back; two concurrent appenders can lose one
// write (see ScoringService.LogIncident).
func (r *DayRepository) ReplaceIncidents(ctx context.Context, planID, dayKey string, incidents models.IncidentList) error {
	const query = `INSERT INTO days (plan_id, day_key, matrix, totals, comments, incidents, updated_at)
VALUES ($1, $2, '{}'::jsonb, '{}'::jsonb, '{}'::jsonb, $3, $4)
ON CONFLICT (plan_id, day_key) DO UPDATE
SET incidents = EXCLUDED.incidents,
    updated_at = EXCLUDED.updated_at`
	if _, err := r.db.ExecContext(ctx, query, planID, dayKey, incidents, time.Now().UTC()); err != nil {
		return fmt.Errorf("replace incidents: %w", err)
	}
	return nil
}
