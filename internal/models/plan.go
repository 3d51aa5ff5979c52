package models

import (
	"database/sql/driver"
	"time"
)

// PlanType selects how a plan's totals are reported.
type PlanType string

const (
	// PlanTypePercent reports a single whole-day percentage.
	PlanTypePercent PlanType = "percent"
	// PlanTypePercentAMPM additionally partitions the percentage into
	// morning and afternoon figures.
	PlanTypePercentAMPM PlanType = "percent_ampm"
)

// GoalKind selects the wire shape of a matrix cell.
type GoalKind string

const (
	// GoalKindStepper cells hold integers 0, 1 or 2.
	GoalKindStepper GoalKind = "stepper"
	// GoalKindCheckbox cells hold booleans.
	GoalKindCheckbox GoalKind = "checkbox"
)

// Period is one row of the scoring matrix. Morning drives the AM/PM
// partition on percent_ampm plans.
type Period struct {
	ID      string `json:"id" validate:"required"`
	Label   string `json:"label" validate:"required"`
	Morning bool   `json:"morning"`
}

// Goal is one column of the scoring matrix.
type Goal struct {
	ID    string   `json:"id" validate:"required"`
	Label string   `json:"label" validate:"required"`
	Kind  GoalKind `json:"kind" validate:"required,oneof=stepper checkbox"`
}

// IncentiveThreshold maps a daily percentage to a reward tier.
type IncentiveThreshold struct {
	Label  string `json:"label" validate:"required"`
	MinPct int    `json:"min_pct" validate:"min=0,max=100"`
}

// IncidentButton is a preconfigured quick-log button for common incidents.
type IncidentButton struct {
	ID    string `json:"id" validate:"required"`
	Label string `json:"label" validate:"required"`
	Color string `json:"color,omitempty"`
}

// PeriodList is a plan's schedule stored as a JSONB array. Order is the
// display and aggregation order.
type PeriodList []Period

func (p PeriodList) Value() (driver.Value, error) {
	if p == nil {
		p = PeriodList{}
	}
	return jsonbValue(p, "plan schedule")
}

func (p *PeriodList) Scan(value interface{}) error {
	*p = PeriodList{}
	return jsonbScan(p, value, "plan schedule")
}

// GoalList is a plan's goals stored as a JSONB array.
type GoalList []Goal

func (g GoalList) Value() (driver.Value, error) {
	if g == nil {
		g = GoalList{}
	}
	return jsonbValue(g, "plan goals")
}

func (g *GoalList) Scan(value interface{}) error {
	*g = GoalList{}
	return jsonbScan(g, value, "plan goals")
}

// IncentiveList is a plan's reward tiers stored as a JSONB array.
type IncentiveList []IncentiveThreshold

func (i IncentiveList) Value() (driver.Value, error) {
	if i == nil {
		i = IncentiveList{}
	}
	return jsonbValue(i, "plan incentives")
}

func (i *IncentiveList) Scan(value interface{}) error {
	*i = IncentiveList{}
	return jsonbScan(i, value, "plan incentives")
}

// ButtonList is a plan's quick-log buttons stored as a JSONB array.
type ButtonList []IncidentButton

func (b ButtonList) Value() (driver.Value, error) {
	if b == nil {
		b = ButtonList{}
	}
	return jsonbValue(b, "plan quick buttons")
}

func (b *ButtonList) Scan(value interface{}) error {
	*b = ButtonList{}
	return jsonbScan(b, value, "plan quick buttons")
}

// StringList is a JSONB array of free-form strings (accommodations).
type StringList []string

func (s StringList) Value() (driver.Value, error) {
	if s == nil {
		s = StringList{}
	}
	return jsonbValue(s, "string list")
}

func (s *StringList) Scan(value interface{}) error {
	*s = StringList{}
	return jsonbScan(s, value, "string list")
}

// Plan is a student's daily-point plan: the matrix definition (schedule x
// goals) plus incentives and quick-log configuration. Plans are archived,
// never deleted, so historical days keep a valid definition to score
// against.
type Plan struct {
	ID             string        `db:"id" json:"id"`
	SchoolID       string        `db:"school_id" json:"school_id"`
	StudentID      string        `db:"student_id" json:"student_id"`
	PlanType       PlanType      `db:"plan_type" json:"plan_type"`
	Schedule       PeriodList    `db:"schedule" json:"schedule"`
	Goals          GoalList      `db:"goals" json:"goals"`
	Incentives     IncentiveList `db:"incentives" json:"incentives"`
	QuickButtons   ButtonList    `db:"quick_buttons" json:"quick_buttons"`
	Accommodations StringList    `db:"accommodations" json:"accommodations"`
	Archived       bool          `db:"archived" json:"archived"`
	CreatedAt      time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time     `db:"updated_at" json:"updated_at"`
}

// PeriodByID returns the schedule entry with the given id.
func (p *Plan) PeriodByID(id string) (Period, bool) {
	for _, period := range p.Schedule {
		if period.ID == id {
			return period, true
		}
	}
	return Period{}, false
}

// GoalByID returns the goal with the given id.
func (p *Plan) GoalByID(id string) (Goal, bool) {
	for _, goal := range p.Goals {
		if goal.ID == id {
			return goal, true
		}
	}
	return Goal{}, false
}

// QuickButtonByID returns the quick-log button with the given id.
func (p *Plan) QuickButtonByID(id string) (IncidentButton, bool) {
	for _, button := range p.QuickButtons {
		if button.ID == id {
			return button, true
		}
	}
	return IncidentButton{}, false
}
