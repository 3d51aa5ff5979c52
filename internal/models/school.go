package models

import (
	"database/sql/driver"
	"time"
)

// Theme holds a school's display configuration, stored as a JSONB document.
type Theme struct {
	Mode string            `json:"mode,omitempty" validate:"omitempty,oneof=light dark system"`
	Vars map[string]string `json:"vars,omitempty"`
}

// Value marshals the theme for persistence.
func (t Theme) Value() (driver.Value, error) {
	if t.Vars == nil {
		t.Vars = map[string]string{}
	}
	return jsonbValue(t, "school theme")
}

// Scan unmarshals a JSONB payload into the theme.
func (t *Theme) Scan(value interface{}) error {
	*t = Theme{}
	return jsonbScan(t, value, "school theme")
}

// School is the tenant root; every other document hangs off a school.
type School struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	LogoURL   string    `db:"logo_url" json:"logo_url,omitempty"`
	Theme     Theme     `db:"theme" json:"theme"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}
