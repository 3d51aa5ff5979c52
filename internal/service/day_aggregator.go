package service

import (
	"github.com/pointsheet/pointsheet-api/internal/models"
)

// DayAggregator recomputes a day's totals from the plan definition and the
// raw matrix. It is a pure function of its inputs: no clock, no store, no
// randomness, so identical inputs always produce identical totals. Every
// cell write triggers a full recomputation; the matrix is small enough that
// an incremental path is not worth carrying.
type DayAggregator struct{}

// NewDayAggregator constructs the aggregator.
func NewDayAggregator() *DayAggregator {
	return &DayAggregator{}
}

// Aggregate walks the schedule in plan order and tallies earned and possible
// points. Stepper cells add their raw value out of 2; checkbox cells add 1
// possible and 1 earned when true. Absent or null cells are unscored and
// contribute to neither side. Plans of type percent_ampm also report the
// tally partitioned by period.Morning.
func (a *DayAggregator) Aggregate(plan *models.Plan, matrix models.Matrix) models.Totals {
	var whole, am, pm tally
	for _, period := range plan.Schedule {
		for _, goal := range plan.Goals {
			value, ok := matrix.Cell(period.ID, goal.ID)
			if !ok || value.IsNull() {
				continue
			}
			earned, possible, scored := scoreCell(goal.Kind, value)
			if !scored {
				continue
			}
			whole.add(earned, possible)
			if period.Morning {
				am.add(earned, possible)
			} else {
				pm.add(earned, possible)
			}
		}
	}

	totals := models.Totals{
		Pct:      whole.pct(),
		Earned:   whole.earned,
		Possible: whole.possible,
	}
	if plan.PlanType == models.PlanTypePercentAMPM {
		amPct := am.pct()
		pmPct := pm.pct()
		totals.AMPct = &amPct
		totals.PMPct = &pmPct
	}
	return totals
}

type tally struct {
	earned   int
	possible int
}

func (t *tally) add(earned, possible int) {
	t.earned += earned
	t.possible += possible
}

// pct returns the percentage rounded half-up, and 0 for an empty tally
// (never NaN or a division error).
func (t tally) pct() int {
	if t.possible == 0 {
		return 0
	}
	return (200*t.earned + t.possible) / (2 * t.possible)
}

// scoreCell maps one cell to its earned/possible contribution. A value whose
// shape does not match the goal kind (possible after a plan edit changed a
// goal's kind) is treated as unscored rather than misread.
func scoreCell(kind models.GoalKind, value models.CellValue) (earned, possible int, scored bool) {
	switch kind {
	case models.GoalKindStepper:
		if value.Int == nil {
			return 0, 0, false
		}
		return int(*value.Int), 2, true
	case models.GoalKindCheckbox:
		if value.Bool == nil {
			return 0, 0, false
		}
		if *value.Bool {
			return 1, 1, true
		}
		return 0, 1, true
	}
	return 0, 0, false
}
