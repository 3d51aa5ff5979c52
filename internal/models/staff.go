package models

import (
	"database/sql/driver"
	"sort"
	"time"
)

// StaffRole represents the available roles for the RBAC system.
type StaffRole string

const (
	RoleAdmin       StaffRole = "admin"
	RoleTeacher     StaffRole = "teacher"
	RoleSpecials    StaffRole = "specials"
	RoleAchievement StaffRole = "achievement"
	RoleParent      StaffRole = "parent"
)

// ValidRole reports whether r is a known role.
func ValidRole(r StaffRole) bool {
	switch r {
	case RoleAdmin, RoleTeacher, RoleSpecials, RoleAchievement, RoleParent:
		return true
	}
	return false
}

// RoleList is a staff member's roles stored as a JSONB array. The first
// entry is the primary role.
type RoleList []StaffRole

// Has reports whether the list contains the role.
func (r RoleList) Has(role StaffRole) bool {
	for _, candidate := range r {
		if candidate == role {
			return true
		}
	}
	return false
}

// Primary returns the first role, or the empty role for an empty list.
func (r RoleList) Primary() StaffRole {
	if len(r) == 0 {
		return ""
	}
	return r[0]
}

// EqualSet reports whether both lists carry the same roles, order ignored.
func (r RoleList) EqualSet(other RoleList) bool {
	if len(r) != len(other) {
		return false
	}
	a := append(RoleList(nil), r...)
	b := append(RoleList(nil), other...)
	sort.Slice(a, func(i, j int) bool { return a[i] < a[j] })
	sort.Slice(b, func(i, j int) bool { return b[i] < b[j] })
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func (r RoleList) Value() (driver.Value, error) {
	if r == nil {
		r = RoleList{}
	}
	return jsonbValue(r, "staff roles")
}

func (r *RoleList) Scan(value interface{}) error {
	*r = RoleList{}
	return jsonbScan(r, value, "staff roles")
}

// Staff is a school employee (or guardian account) that can sign in.
// ClaimsVersion is bumped by the claims synchronizer whenever roles or
// school change; tokens minted against an older version fail validation.
type Staff struct {
	UID           string    `db:"uid" json:"uid"`
	SchoolID      string    `db:"school_id" json:"school_id"`
	Email         string    `db:"email" json:"email"`
	PasswordHash  string    `db:"password_hash" json:"-"`
	FullName      string    `db:"full_name" json:"full_name"`
	Roles         RoleList  `db:"roles" json:"roles"`
	ClaimsVersion int       `db:"claims_version" json:"claims_version"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`
}

// StaffFilter captures allowed search parameters for listing staff.
type StaffFilter struct {
	Role     StaffRole
	Search   string
	Page     int
	PageSize int
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
