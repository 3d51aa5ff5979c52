package models

import (
	"database/sql/driver"
	"time"
)

// Audit action tags. The scoring pipeline writes the first three; the
// management services write the rest.
const (
	AuditActionMatrixCellUpdate = "matrix_cell_update"
	AuditActionCommentSave      = "comment_save"
	AuditActionIncidentLog      = "incident_log"
	AuditActionThemeUpdate      = "theme_update"
	AuditActionSchoolCreate     = "school_create"
	AuditActionStudentCreate    = "student_create"
	AuditActionStudentUpdate    = "student_update"
	AuditActionPlanCreate       = "plan_create"
	AuditActionPlanUpdate       = "plan_update"
	AuditActionPlanArchive      = "plan_archive"
	AuditActionStaffUpdate      = "staff_update"
)

// AuditDetails is the free-form per-action payload stored as JSONB.
type AuditDetails map[string]interface{}

func (d AuditDetails) Value() (driver.Value, error) {
	if d == nil {
		d = AuditDetails{}
	}
	return jsonbValue(d, "audit details")
}

func (d *AuditDetails) Scan(value interface{}) error {
	*d = AuditDetails{}
	return jsonbScan(d, value, "audit details")
}

// AuditEntry is one append-only audit record. ActedBy is always the real
// authenticated actor; AsUserID/AsRole are the effective identity, which
// differs from the actor only under impersonation. The two are never
// collapsed into one field.
type AuditEntry struct {
	ID         string       `db:"id" json:"id"`
	SchoolID   string       `db:"school_id" json:"school_id"`
	ActedBy    string       `db:"acted_by" json:"acted_by"`
	AsUserID   string       `db:"as_user_id" json:"as_user_id"`
	AsRole     StaffRole    `db:"as_role" json:"as_role"`
	Action     string       `db:"action" json:"action"`
	TargetPath string       `db:"target_path" json:"target_path"`
	Details    AuditDetails `db:"details" json:"details,omitempty"`
	CreatedAt  time.Time    `db:"created_at" json:"created_at"`
}

// AuditFilter captures allowed query parameters for audit review listing.
type AuditFilter struct {
	Action   string
	ActedBy  string
	From     *time.Time
	To       *time.Time
	Page     int
	PageSize int
}
