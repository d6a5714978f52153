package workers

import (
	"context"
	"errors"
	"time"

	"github.com/benvon/wte-api/internal/database"
	logpkg "github.com/benvon/wte-api/internal/logger"
	"github.com/benvon/wte-api/internal/queue"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultRefreshDelay lets a burst of meal edits settle into one refresh job
const DefaultRefreshDelay = 5 * time.Second

// ChangeNotifier reacts to meal writes: it marks stored snapshots tainted,
// drops cached reports and schedules a refresh
type ChangeNotifier struct {
	tagStatsRepo database.TagStatisticsRepositoryInterface
	cache        CacheInvalidator
	jobQueue     queue.JobQueue
	delay        time.Duration
	logger       *zap.Logger
}

// NewChangeNotifier creates a notifier. jobQueue may be nil, in which case
// snapshots stay tainted until a refresh is requested another way.
func NewChangeNotifier(
	tagStatsRepo database.TagStatisticsRepositoryInterface,
	cache CacheInvalidator,
	jobQueue queue.JobQueue,
	delay time.Duration,
	logger *zap.Logger,
) *ChangeNotifier {
	if delay < 0 {
		delay = 0
	}
	return &ChangeNotifier{
		tagStatsRepo: tagStatsRepo,
		cache:        cache,
		jobQueue:     jobQueue,
		delay:        delay,
		logger:       logger,
	}
}

// OnMealChanged handles one write of the user's meal data. Failures are
// logged and never surface to the writer.
func (n *ChangeNotifier) OnMealChanged(ctx context.Context, userID uuid.UUID) {
	userField := zap.String("user_id", logpkg.SanitizeUserID(userID.String()))

	if n.cache != nil {
		if err := n.cache.Invalidate(ctx, userID); err != nil {
			n.logger.Warn("failed_to_invalidate_stats_cache", userField, zap.String("error", logpkg.SanitizeError(err)))
		}
	}

	schedule, err := n.needsRefresh(ctx, userID)
	if err != nil {
		n.logger.Warn("failed_to_mark_stats_tainted", userField, zap.String("error", logpkg.SanitizeError(err)))
		return
	}
	if !schedule || n.jobQueue == nil {
		return
	}

	job := queue.NewStatsRefreshJob(userID, n.delay)
	if err := n.jobQueue.Enqueue(ctx, job); err != nil {
		n.logger.Warn("failed_to_enqueue_stats_refresh", userField, zap.String("error", logpkg.SanitizeError(err)))
		return
	}
	n.logger.Debug("stats_refresh_scheduled", userField, zap.String("job_id", job.ID.String()))
}

// needsRefresh taints the snapshots. Only the write that turns clean snapshots
// tainted, or the first write of a user without snapshots, schedules a job;
// later writes ride on the pending one.
func (n *ChangeNotifier) needsRefresh(ctx context.Context, userID uuid.UUID) (bool, error) {
	transitioned, err := n.tagStatsRepo.MarkTainted(ctx, userID)
	if err != nil {
		return false, err
	}
	if transitioned {
		return true, nil
	}

	if _, err := n.tagStatsRepo.Get(ctx, userID, DefaultRangeDays[0]); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return true, nil
		}
		return false, err
	}
	return false, nil
}

// RequestRefresh schedules an immediate refresh regardless of snapshot state
func (n *ChangeNotifier) RequestRefresh(ctx context.Context, userID uuid.UUID, rangeDays ...int) error {
	if n.jobQueue == nil {
		return queue.ErrQueueClosed
	}
	return n.jobQueue.Enqueue(ctx, queue.NewStatsRefreshJob(userID, 0, rangeDays...))
}
