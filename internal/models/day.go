package models

import (
	"bytes"
	"crypto/rand"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"math/big"
	"strconv"
	"time"
)

// CellValue carries one matrix cell as its raw wire scalar. Stepper cells
// hold integers 0..2, checkbox cells hold booleans; a null or absent cell is
// unscored and excluded from totals.
type CellValue struct {
	Int  *int64
	Bool *bool
}

// StepperValue builds a stepper cell.
func StepperValue(n int64) CellValue {
	return CellValue{Int: &n}
}

// CheckboxValue builds a checkbox cell.
func CheckboxValue(b bool) CellValue {
	return CellValue{Bool: &b}
}

// IsNull reports whether the cell carries no value.
func (v CellValue) IsNull() bool {
	return v.Int == nil && v.Bool == nil
}

// MatchesKind reports whether the cell has the wire shape the goal kind
// requires. Null cells match any kind (they clear the cell).
func (v CellValue) MatchesKind(kind GoalKind) bool {
	if v.IsNull() {
		return true
	}
	switch kind {
	case GoalKindStepper:
		return v.Int != nil && *v.Int >= 0 && *v.Int <= 2
	case GoalKindCheckbox:
		return v.Bool != nil
	}
	return false
}

// MarshalJSON writes the raw scalar (no wrapper object).
func (v CellValue) MarshalJSON() ([]byte, error) {
	switch {
	case v.Int != nil:
		return json.Marshal(*v.Int)
	case v.Bool != nil:
		return json.Marshal(*v.Bool)
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON accepts an integer, a boolean, or null. Anything else
// (floats, strings, objects) is rejected so a shape mismatch fails before it
// reaches storage.
func (v *CellValue) UnmarshalJSON(data []byte) error {
	*v = CellValue{}
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}
	if n, err := strconv.ParseInt(string(trimmed), 10, 64); err == nil {
		v.Int = &n
		return nil
	}
	if b, err := strconv.ParseBool(string(trimmed)); err == nil {
		v.Bool = &b
		return nil
	}
	return fmt.Errorf("cell value must be an integer, boolean or null, got %s", trimmed)
}

// Matrix maps periodID -> goalID -> cell value.
type Matrix map[string]map[string]CellValue

// Cell returns the value at (periodID, goalID), with ok=false when the cell
// was never written.
func (m Matrix) Cell(periodID, goalID string) (CellValue, bool) {
	row, ok := m[periodID]
	if !ok {
		return CellValue{}, false
	}
	value, ok := row[goalID]
	return value, ok
}

// SetCell writes the value at (periodID, goalID), creating the row as needed.
func (m Matrix) SetCell(periodID, goalID string, value CellValue) {
	row, ok := m[periodID]
	if !ok {
		row = map[string]CellValue{}
		m[periodID] = row
	}
	row[goalID] = value
}

func (m Matrix) Value() (driver.Value, error) {
	if m == nil {
		m = Matrix{}
	}
	return jsonbValue(m, "day matrix")
}

func (m *Matrix) Scan(value interface{}) error {
	*m = Matrix{}
	return jsonbScan(m, value, "day matrix")
}

// Totals is the derived score block. It is a pure function of the plan
// definition and the matrix; nothing else may write it.
type Totals struct {
	Pct      int  `json:"pct"`
	Earned   int  `json:"earned"`
	Possible int  `json:"possible"`
	AMPct    *int `json:"am_pct,omitempty"`
	PMPct    *int `json:"pm_pct,omitempty"`
}

func (t Totals) Value() (driver.Value, error) {
	return jsonbValue(t, "day totals")
}

func (t *Totals) Scan(value interface{}) error {
	*t = Totals{}
	return jsonbScan(t, value, "day totals")
}

// Comments holds the day's free-form notes: one homeroom-teacher comment
// plus one per specials subject.
type Comments struct {
	Teacher  string            `json:"teacher,omitempty"`
	Specials map[string]string `json:"specials,omitempty"`
}

func (c Comments) Value() (driver.Value, error) {
	if c.Specials == nil {
		c.Specials = map[string]string{}
	}
	return jsonbValue(c, "day comments")
}

func (c *Comments) Scan(value interface{}) error {
	*c = Comments{}
	return jsonbScan(c, value, "day comments")
}

// Incident is one logged behavior event. Incidents are append-only and
// immutable once written.
type Incident struct {
	ID     string    `json:"id"`
	Label  string    `json:"label"`
	Color  string    `json:"color,omitempty"`
	Note   string    `json:"note,omitempty"`
	Source StaffRole `json:"source"`
	At     time.Time `json:"at"`
}

// IncidentList is a day's incidents stored as a JSONB array.
type IncidentList []Incident

func (l IncidentList) Value() (driver.Value, error) {
	if l == nil {
		l = IncidentList{}
	}
	return jsonbValue(l, "day incidents")
}

func (l *IncidentList) Scan(value interface{}) error {
	*l = IncidentList{}
	return jsonbScan(l, value, "day incidents")
}

// Day is one scored school day under a plan, keyed (plan_id, day_key).
// Day documents are created lazily on first write; a read of a missing day
// returns EmptyDay, never an error.
type Day struct {
	PlanID    string       `db:"plan_id" json:"plan_id"`
	DayKey    string       `db:"day_key" json:"day_key"`
	Matrix    Matrix       `db:"matrix" json:"matrix"`
	Totals    Totals       `db:"totals" json:"totals"`
	Comments  Comments     `db:"comments" json:"comments"`
	Incidents IncidentList `db:"incidents" json:"incidents"`
	UpdatedAt time.Time    `db:"updated_at" json:"updated_at"`
}

// EmptyDay returns the zero document for a day that has no writes yet.
func EmptyDay(planID, dayKey string) *Day {
	return &Day{
		PlanID:    planID,
		DayKey:    dayKey,
		Matrix:    Matrix{},
		Incidents: IncidentList{},
	}
}

const incidentSuffixLen = 8

// NewIncidentID returns a chronologically sortable incident id: the Unix
// millisecond timestamp in base36 joined to a random base36 suffix.
func NewIncidentID(now time.Time) string {
	return strconv.FormatInt(now.UnixMilli(), 36) + "-" + randomBase36(incidentSuffixLen)
}

func randomBase36(length int) string {
	buf := make([]byte, 5)
	if _, err := rand.Read(buf); err != nil {
		return padBase36(strconv.FormatInt(time.Now().UnixNano(), 36), length)
	}
	return padBase36(new(big.Int).SetBytes(buf).Text(36), length)
}

func padBase36(s string, length int) string {
	for len(s) < length {
		s = "0" + s
	}
	if len(s) > length {
		s = s[len(s)-length:]
	}
	return s
}
