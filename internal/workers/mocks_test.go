package workers

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/benvon/wte-api/internal/database"
	"github.com/benvon/wte-api/internal/models"
	"github.com/benvon/wte-api/internal/queue"
	"github.com/benvon/wte-api/internal/stats"
	"github.com/google/uuid"
)

// mockTagStatisticsRepo is a mock for the snapshot repository
type mockTagStatisticsRepo struct {
	t               *testing.T
	getFunc         func(ctx context.Context, userID uuid.UUID, rangeDays int) (*models.TagStatisticsSnapshot, error)
	getOrCreateFunc func(ctx context.Context, userID uuid.UUID, rangeDays int) (*models.TagStatisticsSnapshot, error)
	updateFunc      func(ctx context.Context, snap *models.TagStatisticsSnapshot) (bool, error)
	markTaintedFunc func(ctx context.Context, userID uuid.UUID) (bool, error)

	// Call tracking (protected by mutex for concurrent access)
	mu               sync.Mutex
	getCalls         []int
	getOrCreateCalls []int
	updateCalls      []*models.TagStatisticsSnapshot
	markTaintedCalls []uuid.UUID
}

func (m *mockTagStatisticsRepo) Get(ctx context.Context, userID uuid.UUID, rangeDays int) (*models.TagStatisticsSnapshot, error) {
	m.mu.Lock()
	m.getCalls = append(m.getCalls, rangeDays)
	m.mu.Unlock()
	if m.getFunc == nil {
		m.t.Fatal("Get called but not configured in test")
	}
	return m.getFunc(ctx, userID, rangeDays)
}

func (m *mockTagStatisticsRepo) GetOrCreate(ctx context.Context, userID uuid.UUID, rangeDays int) (*models.TagStatisticsSnapshot, error) {
	m.mu.Lock()
	m.getOrCreateCalls = append(m.getOrCreateCalls, rangeDays)
	m.mu.Unlock()
	if m.getOrCreateFunc == nil {
		m.t.Fatal("GetOrCreate called but not configured in test")
	}
	return m.getOrCreateFunc(ctx, userID, rangeDays)
}

func (m *mockTagStatisticsRepo) Update(ctx context.Context, snap *models.TagStatisticsSnapshot) (bool, error) {
	m.mu.Lock()
	m.updateCalls = append(m.updateCalls, snap)
	m.mu.Unlock()
	if m.updateFunc == nil {
		m.t.Fatal("Update called but not configured in test")
	}
	return m.updateFunc(ctx, snap)
}

func (m *mockTagStatisticsRepo) MarkTainted(ctx context.Context, userID uuid.UUID) (bool, error) {
	m.mu.Lock()
	m.markTaintedCalls = append(m.markTaintedCalls, userID)
	m.mu.Unlock()
	if m.markTaintedFunc == nil {
		m.t.Fatal("MarkTainted called but not configured in test")
	}
	return m.markTaintedFunc(ctx, userID)
}

var _ database.TagStatisticsRepositoryInterface = (*mockTagStatisticsRepo)(nil)

// mockStatsRepo only serves CountTags
type mockStatsRepo struct {
	database.StatsRepositoryInterface
	countTagsFunc  func(ctx context.Context, userID uuid.UUID, dr stats.DateRange) ([]stats.TagCount, error)
	mu             sync.Mutex
	countTagsCalls []stats.DateRange
}

func (m *mockStatsRepo) CountTags(ctx context.Context, userID uuid.UUID, dr stats.DateRange) ([]stats.TagCount, error) {
	m.mu.Lock()
	m.countTagsCalls = append(m.countTagsCalls, dr)
	m.mu.Unlock()
	return m.countTagsFunc(ctx, userID, dr)
}

type mockCache struct {
	mu    sync.Mutex
	calls []uuid.UUID
	err   error
}

func (m *mockCache) Invalidate(ctx context.Context, userID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, userID)
	return m.err
}

// mockMessage records how a message was settled
type mockMessage struct {
	job      *queue.Job
	mu       sync.Mutex
	acked    bool
	nacked   bool
	requeued bool
}

func (m *mockMessage) Ack() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.acked = true
	return nil
}

func (m *mockMessage) Nack(requeue bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nacked = true
	m.requeued = requeue
	return nil
}

func (m *mockMessage) GetJob() *queue.Job {
	return m.job
}

// recordingQueue is a JobQueue that only records enqueued jobs
type recordingQueue struct {
	mu   sync.Mutex
	jobs []*queue.Job
	err  error
}

func (q *recordingQueue) Enqueue(ctx context.Context, job *queue.Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.jobs = append(q.jobs, job)
	return nil
}

func (q *recordingQueue) Consume(ctx context.Context, prefetchCount int) (<-chan *queue.Message, <-chan error, error) {
	return nil, nil, queue.ErrQueueClosed
}

func (q *recordingQueue) Close() error                          { return nil }
func (q *recordingQueue) HealthCheck(ctx context.Context) error { return nil }

func (q *recordingQueue) enqueued() []*queue.Job {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]*queue.Job(nil), q.jobs...)
}

var fixedNow = time.Date(2025, 3, 7, 9, 0, 0, 0, time.UTC)
