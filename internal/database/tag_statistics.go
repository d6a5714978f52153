package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/benvon/wte-api/internal/models"
	"github.com/benvon/wte-api/internal/stats"
	"github.com/google/uuid"
)

// TagStatisticsRepository handles persisted tag statistics snapshots
type TagStatisticsRepository struct {
	db *DB
}

// NewTagStatisticsRepository creates a new tag statistics repository
func NewTagStatisticsRepository(db *DB) *TagStatisticsRepository {
	return &TagStatisticsRepository{db: db}
}

// Get retrieves the snapshot for a user and trailing window
func (r *TagStatisticsRepository) Get(ctx context.Context, userID uuid.UUID, rangeDays int) (*models.TagStatisticsSnapshot, error) {
	snap := &models.TagStatisticsSnapshot{}
	var statsJSON []byte
	var rangeStart, rangeEnd, lastComputedAt sql.NullTime

	query := `
		SELECT user_id, range_days, range_start, range_end, stats, tainted, last_computed_at, version, created_at, updated_at
		FROM tag_statistics
		WHERE user_id = $1 AND range_days = $2
	`

	err := r.db.QueryRowContext(ctx, query, userID, rangeDays).Scan(
		&snap.UserID,
		&snap.RangeDays,
		&rangeStart,
		&rangeEnd,
		&statsJSON,
		&snap.Tainted,
		&lastComputedAt,
		&snap.Version,
		&snap.CreatedAt,
		&snap.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("tag statistics for user %s: %w", userID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get tag statistics: %w", err)
	}

	snap.Stats = []stats.TagStatistic{}
	if len(statsJSON) > 0 {
		if err := json.Unmarshal(statsJSON, &snap.Stats); err != nil {
			return nil, fmt.Errorf("failed to unmarshal stats: %w", err)
		}
	}
	if rangeStart.Valid {
		snap.RangeStart = rangeStart.Time
	}
	if rangeEnd.Valid {
		snap.RangeEnd = rangeEnd.Time
	}
	if lastComputedAt.Valid {
		snap.LastComputedAt = &lastComputedAt.Time
	}

	return snap, nil
}

// GetOrCreate retrieves the snapshot or creates an empty tainted one
func (r *TagStatisticsRepository) GetOrCreate(ctx context.Context, userID uuid.UUID, rangeDays int) (*models.TagStatisticsSnapshot, error) {
	snap, err := r.Get(ctx, userID, rangeDays)
	if err == nil {
		return snap, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	query := `
		INSERT INTO tag_statistics (user_id, range_days, stats, tainted, version, created_at, updated_at)
		VALUES ($1, $2, '[]', true, 0, $3, $3)
		ON CONFLICT (user_id, range_days) DO NOTHING
	`
	if _, err := r.db.ExecContext(ctx, query, userID, rangeDays, time.Now()); err != nil {
		return nil, fmt.Errorf("failed to create tag statistics: %w", err)
	}

	return r.Get(ctx, userID, rangeDays)
}

// Update stores freshly computed statistics if nobody else updated the snapshot
// since it was read. Returns false on a version conflict.
func (r *TagStatisticsRepository) Update(ctx context.Context, snap *models.TagStatisticsSnapshot) (bool, error) {
	query := `
		UPDATE tag_statistics
		SET stats = $1, range_start = $2::date, range_end = $3::date, tainted = false,
		    last_computed_at = $4, version = version + 1, updated_at = $4
		WHERE user_id = $5 AND range_days = $6 AND version = $7
		RETURNING version, created_at, updated_at
	`

	statsJSON, err := json.Marshal(snap.Stats)
	if err != nil {
		return false, fmt.Errorf("failed to marshal stats: %w", err)
	}

	now := time.Now()
	var newVersion int
	err = r.db.QueryRowContext(ctx, query,
		statsJSON,
		snap.RangeStart.Format(time.DateOnly),
		snap.RangeEnd.Format(time.DateOnly),
		now,
		snap.UserID,
		snap.RangeDays,
		snap.Version,
	).Scan(&newVersion, &snap.CreatedAt, &snap.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("failed to update tag statistics: %w", err)
	}

	snap.Version = newVersion
	snap.Tainted = false
	snap.LastComputedAt = &now

	return true, nil
}

// MarkTainted flags every snapshot of the user as stale and bumps its version,
// so a refresh computed from the previous version cannot overwrite it.
// Returns true if at least one snapshot transitioned from clean to tainted.
func (r *TagStatisticsRepository) MarkTainted(ctx context.Context, userID uuid.UUID) (bool, error) {
	rows, err := r.db.QueryContext(ctx, `
		WITH prev AS (
			SELECT range_days, tainted FROM tag_statistics
			WHERE user_id = $2
			FOR UPDATE
		)
		UPDATE tag_statistics t
		SET tainted = true, version = t.version + 1, updated_at = $1
		FROM prev
		WHERE t.user_id = $2 AND t.range_days = prev.range_days
		RETURNING prev.tainted
	`, time.Now(), userID)
	if err != nil {
		return false, fmt.Errorf("failed to mark tainted: %w", err)
	}
	defer func() { _ = rows.Close() }()

	transitioned := false
	for rows.Next() {
		var wasTainted bool
		if err := rows.Scan(&wasTainted); err != nil {
			return false, fmt.Errorf("failed to scan tainted flag: %w", err)
		}
		if !wasTainted {
			transitioned = true
		}
	}
	if err := rows.Err(); err != nil {
		return false, fmt.Errorf("error iterating tainted flags: %w", err)
	}
	return transitioned, nil
}
