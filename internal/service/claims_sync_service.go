package service

import (
	"context"
	"database/sql"
	"errors"

	"go.uber.org/zap"

	"github.com/pointsheet/pointsheet-api/internal/models"
	"github.com/pointsheet/pointsheet-api/pkg/jobs"
)

type jobDispatcher interface {
	Enqueue(job jobs.Job) error
}

type claimsSyncStaffStore interface {
	FindByUID(ctx context.Context, uid string) (*models.Staff, error)
	BumpClaimsVersion(ctx context.Context, uid string) (int, error)
}

type claimsCacheInvalidator interface {
	Delete(ctx context.Context, key string) error
}

const jobTypeClaimsSync = "claims_sync"

// ClaimsSyncService re-issues a staff member's claims after their roles or
// school changed. Sync is asynchronous and fire-and-forget: writes that
// enqueue it succeed regardless, and tokens minted before the bump keep
// working until validation sees the new version. Re-running a sync is
// harmless.
type ClaimsSyncService struct {
	staff   claimsSyncStaffStore
	cache   claimsCacheInvalidator
	queue   jobDispatcher
	metrics *MetricsService
	logger  *zap.Logger
}

// NewClaimsSyncService constructs the synchronizer.
func NewClaimsSyncService(staff claimsSyncStaffStore, cache claimsCacheInvalidator, metrics *MetricsService, logger *zap.Logger) *ClaimsSyncService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ClaimsSyncService{staff: staff, cache: cache, metrics: metrics, logger: logger}
}

// AttachQueue wires the dispatch queue. The queue's handler is this
// service's Handle method, so the two are constructed in two steps.
func (s *ClaimsSyncService) AttachQueue(queue jobDispatcher) {
	s.queue = queue
}

// EnqueueSync schedules a claims re-issue for the given staff member.
func (s *ClaimsSyncService) EnqueueSync(uid string) {
	if s.queue == nil {
		s.logger.Warn("claims sync requested without a queue", zap.String("uid", uid))
		return
	}
	if err := s.queue.Enqueue(jobs.Job{ID: uid, Type: jobTypeClaimsSync}); err != nil {
		s.logger.Error("failed to enqueue claims sync", zap.String("uid", uid), zap.Error(err))
		s.metrics.ObserveClaimsSync("enqueue_failed")
	}
}

// Handle processes one sync job: bump the stored claims version and drop the
// cached copy so validation picks the new value up immediately.
func (s *ClaimsSyncService) Handle(ctx context.Context, job jobs.Job) error {
	uid := job.ID

	if _, err := s.staff.FindByUID(ctx, uid); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.logger.Info("claims sync skipped, staff row gone", zap.String("uid", uid))
			s.metrics.ObserveClaimsSync("skipped")
			return nil
		}
		s.metrics.ObserveClaimsSync("error")
		return err
	}

	version, err := s.staff.BumpClaimsVersion(ctx, uid)
	if err != nil {
		s.metrics.ObserveClaimsSync("error")
		return err
	}

	if s.cache != nil {
		if err := s.cache.Delete(ctx, claimsVersionKey(uid)); err != nil {
			s.logger.Warn("failed to drop cached claims version", zap.String("uid", uid), zap.Error(err))
		}
	}

	s.logger.Info("claims re-issued",
		zap.String("uid", uid),
		zap.Int("claims_version", version),
	)
	s.metrics.ObserveClaimsSync("ok")
	return nil
}
