package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/benvon/wte-api/internal/queue"
	"github.com/benvon/wte-api/internal/workers"
	"github.com/spf13/cobra"
)

// NewQueueCmd creates the queue command with refresh and purge-dlq subcommands
func NewQueueCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Operate the statistics job queue",
		Long:  "Enqueue refresh jobs or clean the dead letter queue. Requires RABBITMQ_URL.",
	}
	cmd.AddCommand(newQueueRefreshCmd())
	cmd.AddCommand(newQueuePurgeCmd())
	return cmd
}

func connectQueue(ctx context.Context, url string, verbose bool) (*queue.RabbitMQQueue, error) {
	if url == "" {
		return nil, fmt.Errorf("RABBITMQ_URL is not set")
	}
	q, err := queue.ConnectWithRetry(ctx, url, 30*time.Second, cliLogger(verbose))
	if err != nil {
		return nil, fmt.Errorf("connect to rabbitmq: %w", err)
	}
	return q, nil
}

func newQueueRefreshCmd() *cobra.Command {
	var username string
	var days []int
	var verbose bool
	cmd := &cobra.Command{
		Use:   "refresh",
		Short: "Schedule a tag statistics refresh for a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, db, closeDB, err := connect()
			if err != nil {
				return err
			}
			defer closeDB()

			ctx := context.Background()
			user, err := lookupUser(ctx, db, username)
			if err != nil {
				return err
			}

			q, err := connectQueue(ctx, cfg.RabbitMQURL, verbose)
			if err != nil {
				return err
			}
			defer func() { _ = q.Close() }()

			job := queue.NewStatsRefreshJob(user.ID, 0, days...)
			if err := q.Enqueue(ctx, job); err != nil {
				return fmt.Errorf("enqueue refresh: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Enqueued job %s for %s\n", job.ID, user.Username)
			return nil
		},
	}
	cmd.Flags().StringVar(&username, "user", "", "Username")
	cmd.Flags().IntSliceVar(&days, "days", workers.DefaultRangeDays, "Trailing windows to recompute")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Log debug output")
	return cmd
}

func newQueuePurgeCmd() *cobra.Command {
	var retention time.Duration
	var verbose bool
	cmd := &cobra.Command{
		Use:   "purge-dlq",
		Short: "Drop dead-lettered jobs older than --retention",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, closeDB, err := connect()
			if err != nil {
				return err
			}
			closeDB()

			if retention <= 0 {
				retention = cfg.DLQRetention
			}

			ctx := context.Background()
			q, err := connectQueue(ctx, cfg.RabbitMQURL, verbose)
			if err != nil {
				return err
			}
			defer func() { _ = q.Close() }()

			n, err := q.PurgeOlderThan(ctx, retention)
			if err != nil {
				return fmt.Errorf("purge dead letter queue: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d dead-lettered jobs older than %s\n", n, retention)
			return nil
		},
	}
	cmd.Flags().DurationVar(&retention, "retention", 0, "Age after which jobs are removed (default: DLQ_RETENTION)")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Log debug output")
	return cmd
}
