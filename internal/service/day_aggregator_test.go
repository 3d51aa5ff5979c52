package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pointsheet/pointsheet-api/internal/models"
)

func aggregatorPlan(planType models.PlanType) *models.Plan {
	return &models.Plan{
		ID:       "plan-1",
		PlanType: planType,
		Schedule: models.PeriodList{
			{ID: "p1", Label: "Morning Work", Morning: true},
			{ID: "p2", Label: "Reading", Morning: true},
			{ID: "p3", Label: "Math", Morning: false},
			{ID: "p4", Label: "Dismissal", Morning: false},
		},
		Goals: models.GoalList{
			{ID: "g1", Label: "Safe Body", Kind: models.GoalKindStepper},
			{ID: "g2", Label: "On Task", Kind: models.GoalKindCheckbox},
		},
	}
}

func TestAggregateIsDeterministic(t *testing.T) {
	agg := NewDayAggregator()
	plan := aggregatorPlan(models.PlanTypePercent)
	matrix := models.Matrix{}
	matrix.SetCell("p1", "g1", models.StepperValue(2))
	matrix.SetCell("p2", "g2", models.CheckboxValue(true))
	matrix.SetCell("p3", "g1", models.StepperValue(1))

	first := agg.Aggregate(plan, matrix)
	second := agg.Aggregate(plan, matrix)
	require.Equal(t, first, second)

	// Inputs are not mutated by aggregation.
	value, ok := matrix.Cell("p1", "g1")
	require.True(t, ok)
	require.EqualValues(t, 2, *value.Int)
}

func TestAggregateEmptyMatrix(t *testing.T) {
	agg := NewDayAggregator()
	totals := agg.Aggregate(aggregatorPlan(models.PlanTypePercent), models.Matrix{})

	assert.Equal(t, 0, totals.Pct)
	assert.Equal(t, 0, totals.Earned)
	assert.Equal(t, 0, totals.Possible)
	assert.Nil(t, totals.AMPct)
	assert.Nil(t, totals.PMPct)
}

func TestAggregateAllStepperTwos(t *testing.T) {
	agg := NewDayAggregator()
	plan := aggregatorPlan(models.PlanTypePercent)
	matrix := models.Matrix{}
	for _, period := range plan.Schedule {
		matrix.SetCell(period.ID, "g1", models.StepperValue(2))
	}

	totals := agg.Aggregate(plan, matrix)
	assert.Equal(t, 100, totals.Pct)
	assert.Equal(t, 8, totals.Earned)
	assert.Equal(t, 8, totals.Possible)
}

func TestAggregateCheckboxUnsetCellsExcluded(t *testing.T) {
	agg := NewDayAggregator()
	plan := aggregatorPlan(models.PlanTypePercent)
	matrix := models.Matrix{}
	// True on half the periods, the rest untouched: a perfect score because
	// unset cells contribute no possible points.
	matrix.SetCell("p1", "g2", models.CheckboxValue(true))
	matrix.SetCell("p2", "g2", models.CheckboxValue(true))

	totals := agg.Aggregate(plan, matrix)
	assert.Equal(t, 100, totals.Pct)
	assert.Equal(t, 2, totals.Earned)
	assert.Equal(t, 2, totals.Possible)
}

func TestAggregateCheckboxFalseCountsAgainst(t *testing.T) {
	agg := NewDayAggregator()
	plan := aggregatorPlan(models.PlanTypePercent)
	matrix := models.Matrix{}
	matrix.SetCell("p1", "g2", models.CheckboxValue(true))
	matrix.SetCell("p2", "g2", models.CheckboxValue(false))

	totals := agg.Aggregate(plan, matrix)
	assert.Equal(t, 50, totals.Pct)
	assert.Equal(t, 1, totals.Earned)
	assert.Equal(t, 2, totals.Possible)
}

func TestAggregateNullCellExcluded(t *testing.T) {
	agg := NewDayAggregator()
	plan := aggregatorPlan(models.PlanTypePercent)
	matrix := models.Matrix{}
	matrix.SetCell("p1", "g1", models.StepperValue(2))
	matrix.SetCell("p2", "g1", models.CellValue{})

	totals := agg.Aggregate(plan, matrix)
	assert.Equal(t, 100, totals.Pct)
	assert.Equal(t, 2, totals.Possible)
}

func TestAggregateAMPMPartition(t *testing.T) {
	agg := NewDayAggregator()
	plan := aggregatorPlan(models.PlanTypePercentAMPM)
	matrix := models.Matrix{}
	matrix.SetCell("p1", "g1", models.StepperValue(2))
	matrix.SetCell("p2", "g1", models.StepperValue(2))
	matrix.SetCell("p3", "g1", models.StepperValue(0))
	matrix.SetCell("p4", "g1", models.StepperValue(1))

	totals := agg.Aggregate(plan, matrix)
	require.NotNil(t, totals.AMPct)
	require.NotNil(t, totals.PMPct)
	assert.Equal(t, 100, *totals.AMPct)
	assert.Equal(t, 25, *totals.PMPct)
	assert.Equal(t, 63, totals.Pct) // 5/8 = 62.5, rounded half-up

	// A PM-only change leaves the AM figure untouched.
	matrix.SetCell("p3", "g1", models.StepperValue(2))
	updated := agg.Aggregate(plan, matrix)
	assert.Equal(t, 100, *updated.AMPct)
	assert.Equal(t, 75, *updated.PMPct)
}

func TestAggregatePercentPlanOmitsPartition(t *testing.T) {
	agg := NewDayAggregator()
	plan := aggregatorPlan(models.PlanTypePercent)
	matrix := models.Matrix{}
	matrix.SetCell("p1", "g1", models.StepperValue(1))

	totals := agg.Aggregate(plan, matrix)
	assert.Nil(t, totals.AMPct)
	assert.Nil(t, totals.PMPct)
}

func TestAggregateRoundsHalfUp(t *testing.T) {
	agg := NewDayAggregator()

	// 1 of 3 checkbox points: 33.33 rounds down.
	thirds := &models.Plan{
		PlanType: models.PlanTypePercent,
		Schedule: models.PeriodList{{ID: "p1"}, {ID: "p2"}, {ID: "p3"}},
		Goals:    models.GoalList{{ID: "g", Kind: models.GoalKindCheckbox}},
	}
	matrix := models.Matrix{}
	matrix.SetCell("p1", "g", models.CheckboxValue(true))
	matrix.SetCell("p2", "g", models.CheckboxValue(false))
	matrix.SetCell("p3", "g", models.CheckboxValue(false))
	assert.Equal(t, 33, agg.Aggregate(thirds, matrix).Pct)

	// 1 of 8 stepper points: exactly 12.5 rounds up.
	eighths := &models.Plan{
		PlanType: models.PlanTypePercent,
		Schedule: models.PeriodList{{ID: "p1"}, {ID: "p2"}, {ID: "p3"}, {ID: "p4"}},
		Goals:    models.GoalList{{ID: "g", Kind: models.GoalKindStepper}},
	}
	matrix = models.Matrix{}
	matrix.SetCell("p1", "g", models.StepperValue(1))
	matrix.SetCell("p2", "g", models.StepperValue(0))
	matrix.SetCell("p3", "g", models.StepperValue(0))
	matrix.SetCell("p4", "g", models.StepperValue(0))
	assert.Equal(t, 13, agg.Aggregate(eighths, matrix).Pct)
}

func TestAggregateIgnoresCellsOutsidePlan(t *testing.T) {
	agg := NewDayAggregator()
	plan := aggregatorPlan(models.PlanTypePercent)
	matrix := models.Matrix{}
	matrix.SetCell("p1", "g1", models.StepperValue(2))
	// Stale cells from a removed period or goal do not score.
	matrix.SetCell("deleted-period", "g1", models.StepperValue(2))
	matrix.SetCell("p1", "deleted-goal", models.StepperValue(2))

	totals := agg.Aggregate(plan, matrix)
	assert.Equal(t, 2, totals.Earned)
	assert.Equal(t, 2, totals.Possible)
}

func TestAggregateSkipsShapeMismatchedCells(t *testing.T) {
	agg := NewDayAggregator()
	plan := aggregatorPlan(models.PlanTypePercent)
	matrix := models.Matrix{}
	// A boolean stored under a stepper goal (plan edited after the write)
	// is unscored instead of misread.
	matrix.SetCell("p1", "g1", models.CheckboxValue(true))
	matrix.SetCell("p2", "g1", models.StepperValue(2))

	totals := agg.Aggregate(plan, matrix)
	assert.Equal(t, 2, totals.Earned)
	assert.Equal(t, 2, totals.Possible)
}
