package queue

import (
	"context"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// MemoryQueue is an in-process JobQueue used when no broker is configured.
// Jobs are lost on restart. Nacked jobs without requeue are kept as dead
// letters until purged.
type MemoryQueue struct {
	mu       sync.Mutex
	pending  []*Job
	inFlight map[uint64]*Job
	dead     []deadLetter
	nextTag  uint64
	signal   chan struct{}
	closed   bool
	now      func() time.Time
}

type deadLetter struct {
	job *Job
	at  time.Time
}

// NewMemoryQueue creates an empty in-process queue
func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{
		inFlight: make(map[uint64]*Job),
		signal:   make(chan struct{}, 1),
		now:      time.Now,
	}
}

// Enqueue adds a copy of job to the queue
func (q *MemoryQueue) Enqueue(ctx context.Context, job *Job) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrQueueClosed
	}
	cp := *job
	q.pending = append(q.pending, &cp)
	q.wake()
	return nil
}

// Consume delivers ready jobs until ctx is cancelled or the queue is closed
func (q *MemoryQueue) Consume(ctx context.Context, prefetchCount int) (<-chan *Message, <-chan error, error) {
	if prefetchCount < 1 {
		prefetchCount = 1
	}
	msgChan := make(chan *Message, prefetchCount)
	errChan := make(chan error, 1)

	go func() {
		defer close(msgChan)
		defer close(errChan)

		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()

		for {
			msg, closed := q.next()
			if closed {
				errChan <- ErrQueueClosed
				return
			}
			if msg != nil {
				select {
				case msgChan <- msg:
					continue
				case <-ctx.Done():
					_ = q.Nack(msg.DeliveryTag, false, true)
					return
				}
			}

			select {
			case <-ctx.Done():
				return
			case <-q.signal:
			case <-ticker.C:
			}
		}
	}()

	return msgChan, errChan, nil
}

// next pops the first job that is ready, dropping expired ones
func (q *MemoryQueue) next() (*Message, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil, true
	}

	now := q.now()
	for i := 0; i < len(q.pending); i++ {
		job := q.pending[i]
		if job.expiredAt(now) {
			q.pending = append(q.pending[:i], q.pending[i+1:]...)
			q.dead = append(q.dead, deadLetter{job: job, at: now})
			i--
			continue
		}
		if !job.ShouldProcessAt(now) {
			continue
		}
		q.pending = append(q.pending[:i], q.pending[i+1:]...)
		q.nextTag++
		q.inFlight[q.nextTag] = job
		return &Message{Job: job, DeliveryTag: q.nextTag, Acknowledger: q}, false
	}
	return nil, false
}

// Ack removes an in-flight job
func (q *MemoryQueue) Ack(tag uint64, _ bool) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.inFlight, tag)
	return nil
}

// Nack requeues an in-flight job or moves it to the dead letters
func (q *MemoryQueue) Nack(tag uint64, _ bool, requeue bool) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	job, ok := q.inFlight[tag]
	if !ok {
		return nil
	}
	delete(q.inFlight, tag)
	if requeue {
		q.pending = append(q.pending, job)
		q.wake()
		return nil
	}
	q.dead = append(q.dead, deadLetter{job: job, at: q.now()})
	return nil
}

// Reject is Nack for a single message, completing amqp.Acknowledger
func (q *MemoryQueue) Reject(tag uint64, requeue bool) error {
	return q.Nack(tag, false, requeue)
}

// PurgeOlderThan drops dead letters older than retention
func (q *MemoryQueue) PurgeOlderThan(_ context.Context, retention time.Duration) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	cutoff := q.now().Add(-retention)
	kept := q.dead[:0]
	purged := 0
	for _, d := range q.dead {
		if d.at.Before(cutoff) {
			purged++
			continue
		}
		kept = append(kept, d)
	}
	q.dead = kept
	return purged, nil
}

// DeadLetters returns the dead-lettered jobs
func (q *MemoryQueue) DeadLetters() []*Job {
	q.mu.Lock()
	defer q.mu.Unlock()
	jobs := make([]*Job, 0, len(q.dead))
	for _, d := range q.dead {
		jobs = append(jobs, d.job)
	}
	return jobs
}

// Len returns the number of pending jobs
func (q *MemoryQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// HealthCheck fails once the queue is closed
func (q *MemoryQueue) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrQueueClosed
	}
	return nil
}

// Close stops all consumers
func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.wake()
	return nil
}

func (q *MemoryQueue) wake() {
	select {
	case q.signal <- struct{}{}:
	default:
	}
}

var (
	_ JobQueue  = (*MemoryQueue)(nil)
	_ DLQPurger = (*MemoryQueue)(nil)

	_ amqp.Acknowledger = (*MemoryQueue)(nil)
)
