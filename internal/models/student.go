package models

import (
	"database/sql/driver"
	"time"
)

// Guardian is a parent or caregiver contact attached to a student.
type Guardian struct {
	Name     string `json:"name" validate:"required"`
	Email    string `json:"email,omitempty" validate:"omitempty,email"`
	Phone    string `json:"phone,omitempty"`
	Relation string `json:"relation,omitempty"`
}

// GuardianList is a student's guardians stored as a JSONB array.
type GuardianList []Guardian

// Value marshals the guardians for persistence.
func (g GuardianList) Value() (driver.Value, error) {
	if g == nil {
		g = GuardianList{}
	}
	return jsonbValue(g, "student guardians")
}

// Scan unmarshals a JSONB payload into the guardians list.
func (g *GuardianList) Scan(value interface{}) error {
	*g = GuardianList{}
	return jsonbScan(g, value, "student guardians")
}

// Student represents a learner on the daily-point program. The scoring
// pipeline references students but never mutates them.
type Student struct {
	ID           string       `db:"id" json:"id"`
	SchoolID     string       `db:"school_id" json:"school_id"`
	FullName     string       `db:"full_name" json:"full_name"`
	GradeLevel   string       `db:"grade_level" json:"grade_level,omitempty"`
	TeacherUID   string       `db:"teacher_uid" json:"teacher_uid,omitempty"`
	ActivePlanID *string      `db:"active_plan_id" json:"active_plan_id,omitempty"`
	Guardians    GuardianList `db:"guardians" json:"guardians"`
	CreatedAt    time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time    `db:"updated_at" json:"updated_at"`
}

// StudentFilter captures allowed search parameters for listing students.
type StudentFilter struct {
	TeacherUID string
	GradeLevel string
	Search     string
	Page       int
	PageSize   int
}
