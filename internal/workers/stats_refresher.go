package workers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/benvon/wte-api/internal/database"
	logpkg "github.com/benvon/wte-api/internal/logger"
	"github.com/benvon/wte-api/internal/metrics"
	"github.com/benvon/wte-api/internal/queue"
	"github.com/benvon/wte-api/internal/stats"
	"github.com/benvon/wte-api/internal/telemetry"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// DefaultRangeDays are the trailing windows kept as stored snapshots
var DefaultRangeDays = []int{7, 30}

// retryBaseDelay is the delay before the first retry of a failed job
const retryBaseDelay = 5 * time.Second

// maxRefreshAttempts bounds the recomputations of one snapshot within a job
const maxRefreshAttempts = 3

// ErrSnapshotConflict means the snapshot kept changing while it was recomputed.
// The job fails and is retried later.
var ErrSnapshotConflict = errors.New("tag statistics changed during refresh")

// CacheInvalidator drops cached statistics of a user
type CacheInvalidator interface {
	Invalidate(ctx context.Context, userID uuid.UUID) error
}

// StatsRefresher processes tag statistics refresh jobs
type StatsRefresher struct {
	statsRepo    database.StatsRepositoryInterface
	tagStatsRepo database.TagStatisticsRepositoryInterface
	cache        CacheInvalidator
	jobQueue     queue.JobQueue
	logger       *zap.Logger
	registry     map[queue.JobType]processorEntry
	now          func() time.Time
}

// NewStatsRefresher creates a refresher and registers the tag_stats_refresh processor.
// cache and jobQueue may be nil; without a queue failed jobs are dead-lettered.
func NewStatsRefresher(
	statsRepo database.StatsRepositoryInterface,
	tagStatsRepo database.TagStatisticsRepositoryInterface,
	cache CacheInvalidator,
	jobQueue queue.JobQueue,
	logger *zap.Logger,
) *StatsRefresher {
	r := &StatsRefresher{
		statsRepo:    statsRepo,
		tagStatsRepo: tagStatsRepo,
		cache:        cache,
		jobQueue:     jobQueue,
		logger:       logger,
		registry:     make(map[queue.JobType]processorEntry),
		now:          time.Now,
	}
	r.RegisterProcessor(queue.JobTypeTagStatsRefresh, r.ProcessStatsRefreshJob, true)
	return r
}

// RegisterProcessor registers a processor for a job type
func (r *StatsRefresher) RegisterProcessor(typ queue.JobType, proc JobProcessor, retry bool) {
	r.registry[typ] = processorEntry{proc: proc, retry: retry}
}

// ProcessStatsRefreshJob recomputes the user's snapshots for the job's ranges
func (r *StatsRefresher) ProcessStatsRefreshJob(ctx context.Context, job *queue.Job) error {
	if job.UserID == uuid.Nil {
		return fmt.Errorf("user_id is required for stats refresh job")
	}

	ranges := job.RangeDays
	if len(ranges) == 0 {
		ranges = DefaultRangeDays
	}

	userField := zap.String("user_id", logpkg.SanitizeUserID(job.UserID.String()))
	r.logger.Info("processing_stats_refresh_job",
		zap.String("job_id", logpkg.SanitizeUserID(job.ID.String())),
		userField,
		zap.Ints("range_days", ranges),
	)

	now := r.now()
	for _, days := range ranges {
		if err := r.refreshRange(ctx, job.UserID, days, now); err != nil {
			return err
		}
	}

	if r.cache != nil {
		if err := r.cache.Invalidate(ctx, job.UserID); err != nil {
			r.logger.Warn("failed_to_invalidate_stats_cache", userField, zap.String("error", logpkg.SanitizeError(err)))
		}
	}
	return nil
}

// refreshRange recomputes one snapshot. A meal write during the computation
// bumps the snapshot version, so the stale result is discarded and the
// snapshot is recomputed from the newer version.
func (r *StatsRefresher) refreshRange(ctx context.Context, userID uuid.UUID, days int, now time.Time) (err error) {
	ctx, span := telemetry.StartSpan(ctx, "workers.refresh_tag_statistics", attribute.Int("range_days", days))
	defer func() { telemetry.EndSpan(span, err) }()

	userField := zap.String("user_id", logpkg.SanitizeUserID(userID.String()))
	dr := stats.LastDays(now, days)

	for attempt := 1; attempt <= maxRefreshAttempts; attempt++ {
		snap, err := r.tagStatsRepo.GetOrCreate(ctx, userID, days)
		if err != nil {
			return fmt.Errorf("failed to get or create tag statistics: %w", err)
		}

		counts, err := r.statsRepo.CountTags(ctx, userID, dr)
		if err != nil {
			return fmt.Errorf("failed to count tags: %w", err)
		}

		snap.Stats = stats.Aggregate(counts)
		snap.RangeStart = dr.Start
		snap.RangeEnd = dr.End

		updated, err := r.tagStatsRepo.Update(ctx, snap)
		if err != nil {
			return fmt.Errorf("failed to update tag statistics: %w", err)
		}
		if !updated {
			r.logger.Debug("tag_statistics_version_conflict",
				userField,
				zap.Int("range_days", days),
				zap.Int("attempt", attempt),
			)
			continue
		}

		r.logger.Info("tag_statistics_refreshed",
			userField,
			zap.Int("range_days", days),
			zap.Int("unique_tags", len(snap.Stats)),
			zap.Int64("total", stats.Total(snap.Stats)),
		)
		return nil
	}

	return fmt.Errorf("%w: %d day range after %d attempts", ErrSnapshotConflict, days, maxRefreshAttempts)
}

// ProcessJob dispatches a message to its processor and settles it
func (r *StatsRefresher) ProcessJob(ctx context.Context, msg queue.MessageInterface) error {
	job := msg.GetJob()
	jobField := zap.String("job_id", logpkg.SanitizeUserID(job.ID.String()))

	if !job.ShouldProcess() {
		if job.IsExpired() {
			metrics.RecordJob(string(job.Type), "expired")
			return r.nack(msg, jobField, false)
		}
		r.logger.Debug("stats_job_not_ready", jobField)
		return r.nack(msg, jobField, true)
	}

	ent, ok := r.registry[job.Type]
	if !ok {
		metrics.RecordJob(string(job.Type), "unknown")
		_ = r.nack(msg, jobField, false)
		return fmt.Errorf("unknown job type: %s", job.Type)
	}

	if err := ent.proc(ctx, job); err != nil {
		r.logger.Error("stats_job_failed",
			jobField,
			zap.String("user_id", logpkg.SanitizeUserID(job.UserID.String())),
			zap.String("error", logpkg.SanitizeError(err)),
		)
		if ent.retry {
			return r.handleJobError(ctx, msg, job, err)
		}
		metrics.RecordJob(string(job.Type), "failed")
		_ = r.nack(msg, jobField, false)
		return fmt.Errorf("stats job failed: %w", err)
	}

	metrics.RecordJob(string(job.Type), "ok")
	if err := msg.Ack(); err != nil {
		return fmt.Errorf("failed to ack stats job: %w", err)
	}
	return nil
}

// handleJobError re-enqueues a failed job with exponential delay until its retries are used up
func (r *StatsRefresher) handleJobError(ctx context.Context, msg queue.MessageInterface, job *queue.Job, err error) error {
	jobField := zap.String("job_id", logpkg.SanitizeUserID(job.ID.String()))

	if !job.CanRetry() || r.jobQueue == nil {
		metrics.RecordJob(string(job.Type), "dead_lettered")
		_ = r.nack(msg, jobField, false)
		return fmt.Errorf("job failed (max retries): %w", err)
	}

	retry := *job
	retry.IncrementRetry()
	notBefore := r.now().Add(retryBaseDelay << min(job.RetryCount, 6))
	retry.NotBefore = &notBefore

	if enqueueErr := r.jobQueue.Enqueue(ctx, &retry); enqueueErr != nil {
		r.logger.Warn("failed_to_reenqueue_stats_job", jobField, zap.String("error", logpkg.SanitizeError(enqueueErr)))
		_ = r.nack(msg, jobField, true)
		return fmt.Errorf("job failed, re-enqueue failed: %w", errors.Join(err, enqueueErr))
	}

	metrics.RecordJob(string(job.Type), "retried")
	if ackErr := msg.Ack(); ackErr != nil {
		r.logger.Warn("failed_to_ack_retried_job", jobField, zap.String("error", logpkg.SanitizeError(ackErr)))
	}
	r.logger.Info("stats_job_retry_scheduled",
		jobField,
		zap.Int("attempt", retry.RetryCount),
		zap.Time("not_before", notBefore),
	)
	return fmt.Errorf("job failed (will retry): %w", err)
}

func (r *StatsRefresher) nack(msg queue.MessageInterface, jobField zap.Field, requeue bool) error {
	if err := msg.Nack(requeue); err != nil {
		r.logger.Warn("failed_to_nack_job", jobField, zap.Bool("requeue", requeue), zap.String("error", logpkg.SanitizeError(err)))
		return err
	}
	return nil
}

// Run consumes jobs from jobQueue until ctx is cancelled or the delivery stream ends
func (r *StatsRefresher) Run(ctx context.Context, jobQueue queue.JobQueue, prefetch int) error {
	msgChan, errChan, err := jobQueue.Consume(ctx, prefetch)
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err, ok := <-errChan:
			if ok && err != nil {
				return err
			}
			errChan = nil
		case msg, ok := <-msgChan:
			if !ok {
				return nil
			}
			if err := r.ProcessJob(ctx, msg); err != nil {
				r.logger.Warn("failed_to_process_job",
					zap.String("job_id", msg.GetJob().ID.String()),
					zap.String("job_type", string(msg.GetJob().Type)),
					zap.String("error", logpkg.SanitizeError(err)),
				)
			}
		}
	}
}
