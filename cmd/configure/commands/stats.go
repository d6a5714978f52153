package commands

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/benvon/wte-api/internal/charts"
	"github.com/benvon/wte-api/internal/database"
	"github.com/benvon/wte-api/internal/export"
	"github.com/benvon/wte-api/internal/services/statistics"
	"github.com/benvon/wte-api/internal/stats"
	"github.com/benvon/wte-api/internal/workers"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// rangeFlags are the flags shared by every statistics subcommand
type rangeFlags struct {
	user  string
	start string
	end   string
}

func (f *rangeFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.user, "user", "", "Username whose meals are counted")
	cmd.Flags().StringVar(&f.start, "start", "", "First day, yyyy-MM-dd (default: 6 days before --end)")
	cmd.Flags().StringVar(&f.end, "end", "", "Last day, yyyy-MM-dd (default: today)")
}

// NewStatsCmd creates the stats command with report, snapshots, export and chart subcommands
func NewStatsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Inspect meal statistics",
		Long:  "Compute tag and food statistics for a user straight from the database.",
	}
	cmd.AddCommand(newStatsReportCmd())
	cmd.AddCommand(newStatsSnapshotsCmd())
	cmd.AddCommand(newStatsExportCmd())
	cmd.AddCommand(newStatsChartCmd())
	return cmd
}

func newStatsReportCmd() *cobra.Command {
	var rf rangeFlags
	var kind, period, output string
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Print ranked tag or food counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			k, err := statistics.ParseKind(kind)
			if err != nil {
				return err
			}
			if err := validFormat(output); err != nil {
				return err
			}
			start, end, err := dateRange(rf.start, rf.end, time.Now())
			if err != nil {
				return err
			}

			_, db, closeDB, err := connect()
			if err != nil {
				return err
			}
			defer closeDB()

			ctx := context.Background()
			user, err := lookupUser(ctx, db, rf.user)
			if err != nil {
				return err
			}

			svc := statistics.NewService(database.NewStatsRepository(db), nil, zap.NewNop())
			var report *statistics.Report
			if period != "" {
				p, err := stats.ParsePeriod(period)
				if err != nil {
					return err
				}
				report, err = svc.PeriodReport(ctx, user.ID, k, p, start, end)
				if err != nil {
					return fmt.Errorf("compute report: %w", err)
				}
			} else {
				report, err = svc.Report(ctx, user.ID, k, start, end)
				if err != nil {
					return fmt.Errorf("compute report: %w", err)
				}
			}
			return writeReport(cmd.OutOrStdout(), report, output)
		},
	}
	rf.register(cmd)
	cmd.Flags().StringVar(&kind, "kind", "tags", "What to count: tags or foods")
	cmd.Flags().StringVar(&period, "period", "", "Bucket by week or month before ranking")
	cmd.Flags().StringVarP(&output, "output", "o", formatTable, "Output format: table, json or yaml")
	return cmd
}

func newStatsSnapshotsCmd() *cobra.Command {
	var username, output string
	cmd := &cobra.Command{
		Use:   "snapshots",
		Short: "Show the trailing-window statistics kept by the refresh worker",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validFormat(output); err != nil {
				return err
			}
			_, db, closeDB, err := connect()
			if err != nil {
				return err
			}
			defer closeDB()

			ctx := context.Background()
			user, err := lookupUser(ctx, db, username)
			if err != nil {
				return err
			}

			svc := statistics.NewService(database.NewStatsRepository(db), nil, zap.NewNop())
			svc.SetSnapshotStore(database.NewTagStatisticsRepository(db))
			snaps, err := svc.Snapshots(ctx, user.ID, workers.DefaultRangeDays...)
			if err != nil {
				return fmt.Errorf("load snapshots: %w", err)
			}
			return writeSnapshots(cmd.OutOrStdout(), snaps, output)
		},
	}
	cmd.Flags().StringVar(&username, "user", "", "Username")
	cmd.Flags().StringVarP(&output, "output", "o", formatTable, "Output format: table, json or yaml")
	return cmd
}

func newStatsExportCmd() *cobra.Command {
	var rf rangeFlags
	var out string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write tag, food and daily statistics to an xlsx workbook",
		RunE: func(cmd *cobra.Command, args []string) error {
			start, end, err := dateRange(rf.start, rf.end, time.Now())
			if err != nil {
				return err
			}
			if out == "" {
				out = fmt.Sprintf("wte-stats-%s-%s.xlsx", start.Format(dateLayout), end.Format(dateLayout))
			}

			_, db, closeDB, err := connect()
			if err != nil {
				return err
			}
			defer closeDB()

			ctx := context.Background()
			user, err := lookupUser(ctx, db, rf.user)
			if err != nil {
				return err
			}

			svc := statistics.NewService(database.NewStatsRepository(db), nil, zap.NewNop())
			overview, err := svc.Overview(ctx, user.ID, start, end)
			if err != nil {
				return fmt.Errorf("compute statistics: %w", err)
			}

			if err := writeFile(out, func(f *os.File) error { return export.WriteOverview(f, overview) }); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", out)
			return nil
		},
	}
	rf.register(cmd)
	cmd.Flags().StringVar(&out, "out", "", "Output file (default: wte-stats-<start>-<end>.xlsx)")
	return cmd
}

func newStatsChartCmd() *cobra.Command {
	var rf rangeFlags
	var kind, out string
	cmd := &cobra.Command{
		Use:   "chart",
		Short: "Render a report as a standalone HTML chart",
		RunE: func(cmd *cobra.Command, args []string) error {
			k, err := statistics.ParseKind(kind)
			if err != nil {
				return err
			}
			start, end, err := dateRange(rf.start, rf.end, time.Now())
			if err != nil {
				return err
			}
			if out == "" {
				out = fmt.Sprintf("wte-%s-%s-%s.html", k, start.Format(dateLayout), end.Format(dateLayout))
			}

			_, db, closeDB, err := connect()
			if err != nil {
				return err
			}
			defer closeDB()

			ctx := context.Background()
			user, err := lookupUser(ctx, db, rf.user)
			if err != nil {
				return err
			}

			svc := statistics.NewService(database.NewStatsRepository(db), nil, zap.NewNop())
			report, err := svc.Report(ctx, user.ID, k, start, end)
			if err != nil {
				return fmt.Errorf("compute report: %w", err)
			}

			if err := writeFile(out, func(f *os.File) error { return charts.RenderReport(f, report, charts.Title(k)) }); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", out)
			return nil
		},
	}
	rf.register(cmd)
	cmd.Flags().StringVar(&kind, "kind", "tags", "What to chart: tags or foods")
	cmd.Flags().StringVar(&out, "out", "", "Output file (default: wte-<kind>-<start>-<end>.html)")
	return cmd
}

// writeFile creates path and removes it again when write fails
func writeFile(path string, write func(*os.File) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := write(f); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return err
	}
	return f.Close()
}
