package models

import (
	"time"

	"github.com/benvon/wte-api/internal/stats"
	"github.com/google/uuid"
)

// TagStatisticsSnapshot is a persisted aggregate of a user's tag statistics over
// the trailing RangeDays days
type TagStatisticsSnapshot struct {
	UserID         uuid.UUID            `json:"user_id"`
	RangeDays      int                  `json:"range_days"`
	RangeStart     time.Time            `json:"range_start"`
	RangeEnd       time.Time            `json:"range_end"`
	Stats          []stats.TagStatistic `json:"stats"`
	Tainted        bool                 `json:"tainted"`
	LastComputedAt *time.Time           `json:"last_computed_at,omitempty"`
	Version        int                  `json:"version"`
	CreatedAt      time.Time            `json:"created_at"`
	UpdatedAt      time.Time            `json:"updated_at"`
}
