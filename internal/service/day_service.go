package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/pointsheet/pointsheet-api/internal/models"
	appErrors "github.com/pointsheet/pointsheet-api/pkg/errors"
)

type dayReadStore interface {
	Get(ctx context.Context, planID, dayKey string) (*models.Day, error)
	ListRange(ctx context.Context, planID, from, to string) ([]models.Day, error)
}

type dayPlanStore interface {
	FindByID(ctx context.Context, schoolID, id string) (*models.Plan, error)
}

// DayService serves day document reads. Missing days come back as empty
// documents, never as errors; archived plans stay readable.
type DayService struct {
	days   dayReadStore
	plans  dayPlanStore
	cache  *DayCacheService
	logger *zap.Logger
}

// NewDayService constructs the service.
func NewDayService(days dayReadStore, plans dayPlanStore, cache *DayCacheService, logger *zap.Logger) *DayService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DayService{days: days, plans: plans, cache: cache, logger: logger}
}

// GetDay returns one day document, cache-aside under its canonical path.
// The bool reports whether the cache served the read.
func (s *DayService) GetDay(ctx context.Context, schoolID, planID, dayKey string) (*models.Day, bool, error) {
	if !models.ValidDayKey(dayKey) {
		return nil, false, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("invalid day key %q", dayKey))
	}
	if _, err := s.loadPlan(ctx, schoolID, planID); err != nil {
		return nil, false, err
	}

	if day, ok := s.cache.GetDay(ctx, schoolID, planID, dayKey); ok {
		return day, true, nil
	}

	day, err := s.days.Get(ctx, planID, dayKey)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			day = models.EmptyDay(planID, dayKey)
		} else {
			return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load day")
		}
	}

	s.cache.SetDay(ctx, schoolID, planID, day)
	return day, false, nil
}

// ListDays returns the stored days in [from, to]. Days without writes are
// absent from the result; callers iterate the range themselves.
func (s *DayService) ListDays(ctx context.Context, schoolID, planID, from, to string) ([]models.Day, error) {
	if !models.ValidDayKey(from) || !models.ValidDayKey(to) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "from and to must be YYYY-MM-DD day keys")
	}
	if from > to {
		return nil, appErrors.Clone(appErrors.ErrValidation, "from must not be after to")
	}
	if _, err := s.loadPlan(ctx, schoolID, planID); err != nil {
		return nil, err
	}

	days, err := s.days.ListRange(ctx, planID, from, to)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list days")
	}
	return days, nil
}

func (s *DayService) loadPlan(ctx context.Context, schoolID, planID string) (*models.Plan, error) {
	plan, err := s.plans.FindByID(ctx, schoolID, planID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "plan not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load plan")
	}
	return plan, nil
}
