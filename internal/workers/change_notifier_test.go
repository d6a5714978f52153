package workers

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/benvon/wte-api/internal/database"
	"github.com/benvon/wte-api/internal/models"
	"github.com/benvon/wte-api/internal/queue"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

func TestChangeNotifier_OnMealChanged(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		transitioned bool
		markErr      error
		getErr       error
		wantEnqueued int
		wantGet      bool
	}{
		{
			name:         "clean snapshots turn tainted",
			transitioned: true,
			wantEnqueued: 1,
		},
		{
			name:         "already tainted rides on pending job",
			wantEnqueued: 0,
			wantGet:      true,
		},
		{
			name:         "no snapshots yet",
			getErr:       database.ErrNotFound,
			wantEnqueued: 1,
			wantGet:      true,
		},
		{
			name:    "mark fails",
			markErr: errors.New("db down"),
		},
		{
			name:    "lookup fails",
			getErr:  errors.New("db down"),
			wantGet: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			userID := uuid.New()
			repo := &mockTagStatisticsRepo{
				t: t,
				markTaintedFunc: func(ctx context.Context, uid uuid.UUID) (bool, error) {
					return tt.transitioned, tt.markErr
				},
				getFunc: func(ctx context.Context, uid uuid.UUID, rangeDays int) (*models.TagStatisticsSnapshot, error) {
					if tt.getErr != nil {
						return nil, tt.getErr
					}
					return &models.TagStatisticsSnapshot{UserID: uid, RangeDays: rangeDays, Tainted: true}, nil
				},
			}
			cache := &mockCache{}
			jobs := &recordingQueue{}

			n := NewChangeNotifier(repo, cache, jobs, DefaultRefreshDelay, zap.NewNop())
			before := time.Now()
			n.OnMealChanged(context.Background(), userID)

			if len(cache.calls) != 1 {
				t.Errorf("cache invalidated %d times, want 1", len(cache.calls))
			}
			if len(repo.markTaintedCalls) != 1 {
				t.Errorf("MarkTainted called %d times, want 1", len(repo.markTaintedCalls))
			}
			if got := len(repo.getCalls) > 0; got != tt.wantGet {
				t.Errorf("Get called = %v, want %v", got, tt.wantGet)
			}

			enqueued := jobs.enqueued()
			if len(enqueued) != tt.wantEnqueued {
				t.Fatalf("enqueued %d jobs, want %d", len(enqueued), tt.wantEnqueued)
			}
			if tt.wantEnqueued == 0 {
				return
			}
			job := enqueued[0]
			if job.Type != queue.JobTypeTagStatsRefresh || job.UserID != userID {
				t.Errorf("job = %+v, want refresh for user", job)
			}
			if job.NotBefore == nil || job.NotBefore.Before(before.Add(DefaultRefreshDelay)) {
				t.Errorf("job NotBefore = %v, want at least %v ahead", job.NotBefore, DefaultRefreshDelay)
			}
		})
	}
}

func TestChangeNotifier_OnMealChanged_NoQueue(t *testing.T) {
	t.Parallel()

	repo := &mockTagStatisticsRepo{
		t: t,
		markTaintedFunc: func(ctx context.Context, uid uuid.UUID) (bool, error) {
			return true, nil
		},
	}
	cache := &mockCache{err: errors.New("redis down")}

	n := NewChangeNotifier(repo, cache, nil, 0, zap.NewNop())
	n.OnMealChanged(context.Background(), uuid.New())

	if len(repo.markTaintedCalls) != 1 {
		t.Errorf("MarkTainted called %d times, want 1 even when the cache fails", len(repo.markTaintedCalls))
	}
}

func TestChangeNotifier_RequestRefresh(t *testing.T) {
	t.Parallel()

	userID := uuid.New()
	jobs := &recordingQueue{}
	n := NewChangeNotifier(&mockTagStatisticsRepo{t: t}, nil, jobs, time.Minute, zap.NewNop())

	if err := n.RequestRefresh(context.Background(), userID, 7); err != nil {
		t.Fatalf("RequestRefresh() error: %v", err)
	}
	enqueued := jobs.enqueued()
	if len(enqueued) != 1 {
		t.Fatalf("enqueued %d jobs, want 1", len(enqueued))
	}
	if enqueued[0].NotBefore != nil {
		t.Errorf("explicit refresh should be immediate, NotBefore = %v", enqueued[0].NotBefore)
	}
	if len(enqueued[0].RangeDays) != 1 || enqueued[0].RangeDays[0] != 7 {
		t.Errorf("RangeDays = %v, want [7]", enqueued[0].RangeDays)
	}

	none := NewChangeNotifier(&mockTagStatisticsRepo{t: t}, nil, nil, 0, zap.NewNop())
	if err := none.RequestRefresh(context.Background(), userID); !errors.Is(err, queue.ErrQueueClosed) {
		t.Errorf("RequestRefresh() without queue error = %v, want ErrQueueClosed", err)
	}
}
