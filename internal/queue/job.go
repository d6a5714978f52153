package queue

import (
	"time"

	"github.com/google/uuid"
)

// JobType represents the type of job
type JobType string

const (
	// JobTypeTagStatsRefresh recomputes a user's stored tag statistics snapshots
	JobTypeTagStatsRefresh JobType = "tag_stats_refresh"
)

// DefaultMaxRetries is how often a failed job is retried before it goes to the DLQ
const DefaultMaxRetries = 3

// Job represents a job in the queue
type Job struct {
	ID         uuid.UUID      `json:"id"`
	Type       JobType        `json:"type"`
	UserID     uuid.UUID      `json:"user_id"`
	RangeDays  []int          `json:"range_days,omitempty"` // empty means every snapshot range
	NotBefore  *time.Time     `json:"not_before,omitempty"` // nil = immediate
	NotAfter   *time.Time     `json:"not_after,omitempty"`  // nil = no expiration
	Metadata   map[string]any `json:"metadata,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
	RetryCount int            `json:"retry_count"`
	MaxRetries int            `json:"max_retries"`
}

// NewJob creates a new job
func NewJob(jobType JobType, userID uuid.UUID) *Job {
	return &Job{
		ID:         uuid.New(),
		Type:       jobType,
		UserID:     userID,
		Metadata:   make(map[string]any),
		CreatedAt:  time.Now(),
		MaxRetries: DefaultMaxRetries,
	}
}

// NewStatsRefreshJob creates a refresh job that becomes ready after delay
func NewStatsRefreshJob(userID uuid.UUID, delay time.Duration, rangeDays ...int) *Job {
	job := NewJob(JobTypeTagStatsRefresh, userID)
	job.RangeDays = rangeDays
	if delay > 0 {
		notBefore := job.CreatedAt.Add(delay)
		job.NotBefore = &notBefore
	}
	return job
}

// ShouldProcess checks if the job should be processed now
func (j *Job) ShouldProcess() bool {
	return j.ShouldProcessAt(time.Now())
}

// ShouldProcessAt checks if the job is inside its processing window at now
func (j *Job) ShouldProcessAt(now time.Time) bool {
	if j.NotBefore != nil && now.Before(*j.NotBefore) {
		return false
	}
	return !j.expiredAt(now)
}

// IsExpired checks if the job has expired
func (j *Job) IsExpired() bool {
	return j.expiredAt(time.Now())
}

func (j *Job) expiredAt(now time.Time) bool {
	return j.NotAfter != nil && now.After(*j.NotAfter)
}

// CanRetry checks if the job can be retried
func (j *Job) CanRetry() bool {
	return j.RetryCount < j.MaxRetries
}

// IncrementRetry increments the retry count
func (j *Job) IncrementRetry() {
	j.RetryCount++
}
