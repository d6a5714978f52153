package commands

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/benvon/wte-api/internal/config"
	"github.com/benvon/wte-api/internal/database"
	"github.com/benvon/wte-api/internal/logger"
	"github.com/benvon/wte-api/internal/models"
	"github.com/benvon/wte-api/internal/stats"
	"go.uber.org/zap"
)

const dateLayout = "2006-01-02"

// connect loads configuration and opens the database. Callers must run the
// returned close func.
func connect() (*config.Config, *database.DB, func(), error) {
	if err := config.LoadDotEnv(); err != nil {
		return nil, nil, nil, err
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load config: %w", err)
	}
	db, err := database.New(cfg.DatabaseURL)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("connect to database: %w", err)
	}
	closeFn := func() {
		if err := db.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to close database: %v\n", err)
		}
	}
	return cfg, db, closeFn, nil
}

func cliLogger(verbose bool) *zap.Logger {
	l, err := logger.NewDevelopmentLogger("wte-configure", verbose)
	if err != nil {
		return zap.NewNop()
	}
	return l
}

func lookupUser(ctx context.Context, db *database.DB, username string) (*models.User, error) {
	if username == "" {
		return nil, fmt.Errorf("--user is required")
	}
	user, err := database.NewUserRepository(db).GetByUsername(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("find user %q: %w", username, err)
	}
	return user, nil
}

// dateRange resolves --start/--end, defaulting to the week ending today
func dateRange(start, end string, now time.Time) (time.Time, time.Time, error) {
	def := stats.LastDays(now, 7)
	s, e := def.Start, def.End

	if end != "" {
		t, err := time.ParseInLocation(dateLayout, end, time.UTC)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid --end %q: %w", end, err)
		}
		e = t
		if start == "" {
			s = e.AddDate(0, 0, -6)
		}
	}
	if start != "" {
		t, err := time.ParseInLocation(dateLayout, start, time.UTC)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid --start %q: %w", start, err)
		}
		s = t
	}
	if _, err := stats.NewDateRange(s, e); err != nil {
		return time.Time{}, time.Time{}, err
	}
	return s, e, nil
}
