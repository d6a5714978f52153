package statistics

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/benvon/wte-api/internal/database"
	"github.com/benvon/wte-api/internal/logger"
	"github.com/benvon/wte-api/internal/metrics"
	"github.com/benvon/wte-api/internal/models"
	"github.com/benvon/wte-api/internal/stats"
	"github.com/benvon/wte-api/internal/telemetry"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Kind selects whether tags or foods are counted
type Kind string

const (
	KindTags  Kind = "tags"
	KindFoods Kind = "foods"
)

// ParseKind validates a kind name. An empty name means tags.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case "", KindTags:
		return KindTags, nil
	case KindFoods:
		return KindFoods, nil
	default:
		return "", fmt.Errorf("unknown statistics kind %q", s)
	}
}

// Cache stores computed reports per user
type Cache interface {
	Get(ctx context.Context, userID uuid.UUID, name string, dst any) (bool, error)
	Set(ctx context.Context, userID uuid.UUID, name string, value any) error
	Invalidate(ctx context.Context, userID uuid.UUID) error
}

// Report is a ranked, percentage-annotated statistics set ready for charting.
//
// Percentages are shares of Total, which counts every occurrence in the range.
// Period reports keep only their top items, so their percentages can sum to
// less than one; Omitted counts the occurrences of the dropped items.
type Report struct {
	Kind        Kind                 `json:"kind"`
	Range       stats.DateRange      `json:"range"`
	RangeClass  stats.RangeClass     `json:"range_class"`
	Period      stats.Period         `json:"period,omitempty"`
	Total       int64                `json:"total"`
	Omitted     int64                `json:"omitted"`
	Items       []stats.TagStatistic `json:"items"`
	Chart       stats.ChartKind      `json:"chart"`
	Summary     stats.Summary        `json:"summary"`
	SummaryText string               `json:"summary_text"`
}

// Overview bundles the tag, food and calendar views of one range
type Overview struct {
	Tags  *Report             `json:"tags"`
	Foods *Report             `json:"foods"`
	Daily []models.DailyFoods `json:"daily"`
}

// Service computes meal statistics for users
type Service struct {
	repo      database.StatsRepositoryInterface
	snapshots database.TagStatisticsRepositoryInterface
	cache     Cache
	logger    *zap.Logger
}

// NewService creates a statistics service. cache may be nil.
func NewService(repo database.StatsRepositoryInterface, cache Cache, logger *zap.Logger) *Service {
	return &Service{repo: repo, cache: cache, logger: logger}
}

// SetSnapshotStore enables reads of the snapshots kept by the refresh worker
func (s *Service) SetSnapshotStore(repo database.TagStatisticsRepositoryInterface) {
	s.snapshots = repo
}

// Snapshots returns the user's stored trailing-window tag statistics. Windows
// that were never computed are left out.
func (s *Service) Snapshots(ctx context.Context, userID uuid.UUID, rangeDays ...int) ([]*models.TagStatisticsSnapshot, error) {
	if s.snapshots == nil {
		return nil, fmt.Errorf("snapshot store: %w", database.ErrNotFound)
	}

	out := make([]*models.TagStatisticsSnapshot, 0, len(rangeDays))
	for _, days := range rangeDays {
		snap, err := s.snapshots.Get(ctx, userID, days)
		if errors.Is(err, database.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to load %d day snapshot: %w", days, err)
		}
		out = append(out, snap)
	}
	return out, nil
}

// Report counts tags or foods of the user between start and end and ranks them
func (s *Service) Report(ctx context.Context, userID uuid.UUID, kind Kind, start, end time.Time) (report *Report, err error) {
	ctx, span := telemetry.StartSpan(ctx, "statistics.report", attribute.String("kind", string(kind)))
	defer func() { telemetry.EndSpan(span, err) }()

	dr, err := stats.NewDateRange(start, end)
	if err != nil {
		return nil, err
	}

	cacheName := fmt.Sprintf("%s:%s", kind, dr.Key())
	if cached, ok := s.cached(ctx, userID, cacheName); ok {
		span.SetAttributes(attribute.Bool("cache_hit", true))
		metrics.RecordStatsReport(string(kind), true, len(cached.Items))
		return cached, nil
	}

	var counts []stats.TagCount
	switch kind {
	case KindFoods:
		counts, err = s.repo.CountFoods(ctx, userID, dr)
	default:
		counts, err = s.repo.CountTags(ctx, userID, dr)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load %s counts: %w", kind, err)
	}

	items := stats.Aggregate(counts)
	report = newReport(kind, dr, items, stats.Total(items))

	metrics.RecordStatsReport(string(kind), false, len(items))
	s.store(ctx, userID, cacheName, report)

	return report, nil
}

// PeriodReport buckets occurrences by week or month and keeps the most frequent
// (bucket, item) pairs: ten for weekly reports, fifteen for monthly ones
func (s *Service) PeriodReport(ctx context.Context, userID uuid.UUID, kind Kind, period stats.Period, start, end time.Time) (*Report, error) {
	dr, err := stats.NewDateRange(start, end)
	if err != nil {
		return nil, err
	}

	cacheName := fmt.Sprintf("%s:%s:%s", kind, period, dr.Key())
	if report, ok := s.cached(ctx, userID, cacheName); ok {
		metrics.RecordStatsReport(string(kind)+"_"+string(period), true, len(report.Items))
		return report, nil
	}

	var events []stats.Event
	switch kind {
	case KindFoods:
		events, err = s.repo.FoodEvents(ctx, userID, dr)
	default:
		events, err = s.repo.TagEvents(ctx, userID, dr)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load %s events: %w", kind, err)
	}

	ranked := stats.Aggregate(stats.BucketCounts(period, events))
	report := newReport(kind, dr, stats.Top(ranked, period.TopLimit()), stats.Total(ranked))
	report.Period = period

	metrics.RecordStatsReport(string(kind)+"_"+string(period), false, len(ranked))
	s.store(ctx, userID, cacheName, report)

	return report, nil
}

// DailyStats lists distinct foods per day for the calendar view
func (s *Service) DailyStats(ctx context.Context, userID uuid.UUID, start, end time.Time) ([]models.DailyFoods, error) {
	dr, err := stats.NewDateRange(start, end)
	if err != nil {
		return nil, err
	}

	days, err := s.repo.DailyFoods(ctx, userID, dr)
	if err != nil {
		return nil, fmt.Errorf("failed to load daily foods: %w", err)
	}
	return days, nil
}

// Overview computes the tag report, the food report and the calendar of a range concurrently
func (s *Service) Overview(ctx context.Context, userID uuid.UUID, start, end time.Time) (*Overview, error) {
	if _, err := stats.NewDateRange(start, end); err != nil {
		return nil, err
	}

	out := &Overview{}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		r, err := s.Report(gctx, userID, KindTags, start, end)
		out.Tags = r
		return err
	})
	g.Go(func() error {
		r, err := s.Report(gctx, userID, KindFoods, start, end)
		out.Foods = r
		return err
	})
	g.Go(func() error {
		d, err := s.DailyStats(gctx, userID, start, end)
		out.Daily = d
		return err
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// Invalidate drops cached reports of the user
func (s *Service) Invalidate(ctx context.Context, userID uuid.UUID) error {
	if s.cache == nil {
		return nil
	}
	return s.cache.Invalidate(ctx, userID)
}

func newReport(kind Kind, dr stats.DateRange, items []stats.TagStatistic, total int64) *Report {
	summary := stats.Summarize(items)
	return &Report{
		Kind:        kind,
		Range:       dr,
		RangeClass:  dr.Class(),
		Total:       total,
		Omitted:     total - stats.Total(items),
		Items:       items,
		Chart:       stats.ChartKindFor(len(items)),
		Summary:     summary,
		SummaryText: summary.String(),
	}
}

func (s *Service) cached(ctx context.Context, userID uuid.UUID, name string) (*Report, bool) {
	if s.cache == nil {
		return nil, false
	}

	var report Report
	hit, err := s.cache.Get(ctx, userID, name, &report)
	if err != nil {
		s.logger.Warn("stats_cache_read_failed",
			zap.String("user_id", logger.SanitizeUserID(userID.String())),
			zap.String("entry", name),
			zap.Error(err),
		)
		return nil, false
	}
	if !hit {
		return nil, false
	}
	return &report, true
}

func (s *Service) store(ctx context.Context, userID uuid.UUID, name string, report *Report) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, userID, name, report); err != nil {
		s.logger.Warn("stats_cache_write_failed",
			zap.String("user_id", logger.SanitizeUserID(userID.String())),
			zap.String("entry", name),
			zap.Error(err),
		)
	}
}
