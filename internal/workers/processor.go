package workers

import (
	"context"

	"github.com/benvon/wte-api/internal/queue"
)

// JobProcessor handles one job type
type JobProcessor func(ctx context.Context, job *queue.Job) error

type processorEntry struct {
	proc JobProcessor
	// retry failed jobs with a delay instead of dead-lettering them at once
	retry bool
}
