package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/pointsheet/pointsheet-api/internal/models"
	appErrors "github.com/pointsheet/pointsheet-api/pkg/errors"
)

type dayCacheStore interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	DeleteByPattern(ctx context.Context, pattern string) error
}

// DayCacheService caches day documents under their canonical document paths.
// Misses and backend failures both fall through to Postgres; the cache is
// never authoritative.
type DayCacheService struct {
	store   dayCacheStore
	metrics *MetricsService
	ttl     time.Duration
	logger  *zap.Logger
	enabled bool
}

// NewDayCacheService constructs a day cache.
func NewDayCacheService(store dayCacheStore, metrics *MetricsService, ttl time.Duration, logger *zap.Logger, enabled bool) *DayCacheService {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DayCacheService{store: store, metrics: metrics, ttl: ttl, logger: logger, enabled: enabled}
}

// Enabled indicates whether caching is active.
func (s *DayCacheService) Enabled() bool {
	return s != nil && s.enabled && s.store != nil
}

// GetDay returns the cached day document, reporting whether it was a hit.
func (s *DayCacheService) GetDay(ctx context.Context, schoolID, planID, dayKey string) (*models.Day, bool) {
	if !s.Enabled() {
		return nil, false
	}
	key := models.DayPath(schoolID, planID, dayKey)
	start := time.Now()
	var day models.Day
	err := s.store.Get(ctx, key, &day)
	duration := time.Since(start)
	if err != nil {
		s.metrics.RecordCacheOperation(false, duration)
		if !errors.Is(err, appErrors.ErrCacheMiss) {
			s.logger.Warn("day cache get failed", zap.String("key", key), zap.Error(err))
		}
		return nil, false
	}
	s.metrics.RecordCacheOperation(true, duration)
	return &day, true
}

// SetDay stores the day document under its canonical path.
func (s *DayCacheService) SetDay(ctx context.Context, schoolID, planID string, day *models.Day) {
	if !s.Enabled() || day == nil {
		return
	}
	key := models.DayPath(schoolID, planID, day.DayKey)
	start := time.Now()
	err := s.store.Set(ctx, key, day, s.ttl)
	s.metrics.ObserveCacheWrite(time.Since(start))
	if err != nil {
		s.logger.Warn("day cache set failed", zap.String("key", key), zap.Error(err))
	}
}

// InvalidateDay drops one day's cached document after a pipeline write.
func (s *DayCacheService) InvalidateDay(ctx context.Context, schoolID, planID, dayKey string) {
	if !s.Enabled() {
		return
	}
	key := models.DayPath(schoolID, planID, dayKey)
	if err := s.store.Delete(ctx, key); err != nil {
		s.logger.Warn("day cache invalidate failed", zap.String("key", key), zap.Error(err))
	}
}

// InvalidatePlan drops every cached day under a plan so reads after a
// definition change come from the store.
func (s *DayCacheService) InvalidatePlan(ctx context.Context, schoolID, planID string) {
	if !s.Enabled() {
		return
	}
	pattern := models.DayPath(schoolID, planID, "*")
	if err := s.store.DeleteByPattern(ctx, pattern); err != nil {
		s.logger.Warn("plan cache invalidate failed", zap.String("pattern", pattern), zap.Error(err))
	}
}
