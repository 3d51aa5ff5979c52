package models

import "fmt"

// Canonical document paths. Audit entries record them as target_path and the
// cache layer uses them as keys, so the exact shapes are load-bearing.

// SchoolPath addresses a school document.
func SchoolPath(schoolID string) string {
	return fmt.Sprintf("schools/%s", schoolID)
}

// StudentPath addresses a student within a school.
func StudentPath(schoolID, studentID string) string {
	return fmt.Sprintf("schools/%s/students/%s", schoolID, studentID)
}

// PlanPath addresses a point plan within a school.
func PlanPath(schoolID, planID string) string {
	return fmt.Sprintf("schools/%s/plans/%s", schoolID, planID)
}

// DayPath addresses one scored day under a plan. dayKey is YYYY-MM-DD in the
// school timezone.
func DayPath(schoolID, planID, dayKey string) string {
	return fmt.Sprintf("schools/%s/plans/%s/days/%s", schoolID, planID, dayKey)
}

// StaffPath addresses a staff member within a school.
func StaffPath(schoolID, uid string) string {
	return fmt.Sprintf("schools/%s/staff/%s", schoolID, uid)
}

// AuditLogPath addresses one audit entry within a school.
func AuditLogPath(schoolID, entryID string) string {
	return fmt.Sprintf("schools/%s/audit_logs/%s", schoolID, entryID)
}
