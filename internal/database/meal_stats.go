package database

import (
	"context"
	"fmt"
	"time"

	"github.com/benvon/wte-api/internal/models"
	"github.com/benvon/wte-api/internal/stats"
	"github.com/google/uuid"
	"github.com/lib/pq"
)

// StatsRepository runs the group-by queries behind meal statistics
type StatsRepository struct {
	db *DB
}

// NewStatsRepository creates a new statistics repository
func NewStatsRepository(db *DB) *StatsRepository {
	return &StatsRepository{db: db}
}

// CountTags counts tag occurrences across the user's meal foods in the range.
// Rows come in order of first use so equal counts rank deterministically.
func (r *StatsRepository) CountTags(ctx context.Context, userID uuid.UUID, dr stats.DateRange) ([]stats.TagCount, error) {
	query := `
		SELECT t.tag_id, t.tag_name, COUNT(*)::int
		FROM meal_food_tags mft
		JOIN meals m ON m.meal_id = mft.meal_id
		JOIN tags t ON t.tag_id = mft.tag_id
		WHERE m.user_id = $1 AND m.meal_date BETWEEN $2::date AND $3::date
		GROUP BY t.tag_id, t.tag_name
		ORDER BY MIN(m.meal_date), MIN(m.meal_time), t.tag_id
	`
	return r.counts(ctx, "tags", query, userID, dr)
}

// CountFoods counts how often each food was eaten in the range
func (r *StatsRepository) CountFoods(ctx context.Context, userID uuid.UUID, dr stats.DateRange) ([]stats.TagCount, error) {
	query := `
		SELECT f.food_id, f.name, COUNT(*)::int
		FROM meal_food_images mfi
		JOIN meals m ON m.meal_id = mfi.meal_id
		JOIN foods f ON f.food_id = mfi.food_id
		WHERE m.user_id = $1 AND m.meal_date BETWEEN $2::date AND $3::date
		GROUP BY f.food_id, f.name
		ORDER BY MIN(m.meal_date), MIN(m.meal_time), f.food_id
	`
	return r.counts(ctx, "foods", query, userID, dr)
}

// TagEvents lists every tag occurrence in the range with the day it happened
func (r *StatsRepository) TagEvents(ctx context.Context, userID uuid.UUID, dr stats.DateRange) ([]stats.Event, error) {
	query := `
		SELECT m.meal_date, t.tag_id, t.tag_name
		FROM meal_food_tags mft
		JOIN meals m ON m.meal_id = mft.meal_id
		JOIN tags t ON t.tag_id = mft.tag_id
		WHERE m.user_id = $1 AND m.meal_date BETWEEN $2::date AND $3::date
		ORDER BY m.meal_date, m.meal_time, m.meal_id, mft.food_id, t.tag_id
	`
	return r.events(ctx, "tag", query, userID, dr)
}

// FoodEvents lists every food occurrence in the range with the day it happened
func (r *StatsRepository) FoodEvents(ctx context.Context, userID uuid.UUID, dr stats.DateRange) ([]stats.Event, error) {
	query := `
		SELECT m.meal_date, f.food_id, f.name
		FROM meal_food_images mfi
		JOIN meals m ON m.meal_id = mfi.meal_id
		JOIN foods f ON f.food_id = mfi.food_id
		WHERE m.user_id = $1 AND m.meal_date BETWEEN $2::date AND $3::date
		ORDER BY m.meal_date, m.meal_time, m.meal_id, f.food_id
	`
	return r.events(ctx, "food", query, userID, dr)
}

// RecentFoodIDs lists the distinct foods the user ate in the range
func (r *StatsRepository) RecentFoodIDs(ctx context.Context, userID uuid.UUID, dr stats.DateRange) ([]int32, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT DISTINCT mfi.food_id
		FROM meal_food_images mfi
		JOIN meals m ON m.meal_id = mfi.meal_id
		WHERE m.user_id = $1 AND m.meal_date BETWEEN $2::date AND $3::date
		ORDER BY mfi.food_id
	`, userID, dr.Start.Format(time.DateOnly), dr.End.Format(time.DateOnly))
	if err != nil {
		return nil, fmt.Errorf("failed to query recent foods: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var ids []int32
	for rows.Next() {
		var id int32
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan food id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating recent foods: %w", err)
	}

	return ids, nil
}

// FavoriteFoods returns the user's most eaten foods of all time
func (r *StatsRepository) FavoriteFoods(ctx context.Context, userID uuid.UUID, limit int) ([]models.FoodFrequency, error) {
	query := `
		SELECT f.food_id, f.name, COUNT(*)::int AS cnt
		FROM meal_food_images mfi
		JOIN meals m ON m.meal_id = mfi.meal_id
		JOIN foods f ON f.food_id = mfi.food_id
		WHERE m.user_id = $1
		GROUP BY f.food_id, f.name
		ORDER BY cnt DESC, f.name
		LIMIT $2
	`

	rows, err := r.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query favorite foods: %w", err)
	}
	defer func() { _ = rows.Close() }()

	foods := []models.FoodFrequency{}
	for rows.Next() {
		var f models.FoodFrequency
		if err := rows.Scan(&f.FoodID, &f.FoodName, &f.Count); err != nil {
			return nil, fmt.Errorf("failed to scan favorite food: %w", err)
		}
		foods = append(foods, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating favorite foods: %w", err)
	}
	return foods, nil
}

// MealCounts returns the total meal count, the count on today and a count per meal type
func (r *StatsRepository) MealCounts(ctx context.Context, userID uuid.UUID, today time.Time) (*models.MealStats, error) {
	query := `
		SELECT meal_type, COUNT(*)::int, (COUNT(*) FILTER (WHERE meal_date = $2::date))::int
		FROM meals
		WHERE user_id = $1
		GROUP BY meal_type
	`

	rows, err := r.db.QueryContext(ctx, query, userID, today.Format(time.DateOnly))
	if err != nil {
		return nil, fmt.Errorf("failed to query meal counts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	result := &models.MealStats{MealsByType: make(map[models.MealType]int)}
	for rows.Next() {
		var (
			mealType models.MealType
			total    int
			onDay    int
		)
		if err := rows.Scan(&mealType, &total, &onDay); err != nil {
			return nil, fmt.Errorf("failed to scan meal count: %w", err)
		}
		result.MealsByType[mealType] = total
		result.TotalMeals += total
		result.TodayMeals += onDay
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating meal counts: %w", err)
	}
	return result, nil
}

// DailyFoods returns, for each day in the range that has meals, the distinct foods eaten
func (r *StatsRepository) DailyFoods(ctx context.Context, userID uuid.UUID, dr stats.DateRange) ([]models.DailyFoods, error) {
	query := `
		SELECT m.meal_date,
		       COUNT(DISTINCT m.meal_id)::int,
		       COALESCE(array_agg(DISTINCT f.name) FILTER (WHERE f.name IS NOT NULL), '{}')
		FROM meals m
		LEFT JOIN meal_food_images mfi ON mfi.meal_id = m.meal_id
		LEFT JOIN foods f ON f.food_id = mfi.food_id
		WHERE m.user_id = $1 AND m.meal_date BETWEEN $2::date AND $3::date
		GROUP BY m.meal_date
		ORDER BY m.meal_date
	`

	rows, err := r.db.QueryContext(ctx, query, userID, dr.Start.Format(time.DateOnly), dr.End.Format(time.DateOnly))
	if err != nil {
		return nil, fmt.Errorf("failed to query daily foods: %w", err)
	}
	defer func() { _ = rows.Close() }()

	days := []models.DailyFoods{}
	for rows.Next() {
		var d models.DailyFoods
		var names []string
		if err := rows.Scan(&d.Date, &d.MealCount, pq.Array(&names)); err != nil {
			return nil, fmt.Errorf("failed to scan daily foods: %w", err)
		}
		if names == nil {
			names = []string{}
		}
		d.FoodNames = names
		days = append(days, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating daily foods: %w", err)
	}
	return days, nil
}

func (r *StatsRepository) counts(ctx context.Context, what, query string, userID uuid.UUID, dr stats.DateRange) ([]stats.TagCount, error) {
	rows, err := r.db.QueryContext(ctx, query, userID, dr.Start.Format(time.DateOnly), dr.End.Format(time.DateOnly))
	if err != nil {
		return nil, fmt.Errorf("failed to count %s: %w", what, err)
	}
	defer func() { _ = rows.Close() }()

	counts := []stats.TagCount{}
	for rows.Next() {
		var c stats.TagCount
		if err := rows.Scan(&c.TagID, &c.TagName, &c.Count); err != nil {
			return nil, fmt.Errorf("failed to scan %s count: %w", what, err)
		}
		counts = append(counts, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating %s counts: %w", what, err)
	}
	return counts, nil
}

func (r *StatsRepository) events(ctx context.Context, what, query string, userID uuid.UUID, dr stats.DateRange) ([]stats.Event, error) {
	rows, err := r.db.QueryContext(ctx, query, userID, dr.Start.Format(time.DateOnly), dr.End.Format(time.DateOnly))
	if err != nil {
		return nil, fmt.Errorf("failed to query %s events: %w", what, err)
	}
	defer func() { _ = rows.Close() }()

	var events []stats.Event
	for rows.Next() {
		var e stats.Event
		if err := rows.Scan(&e.Date, &e.ID, &e.Name); err != nil {
			return nil, fmt.Errorf("failed to scan %s event: %w", what, err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating %s events: %w", what, err)
	}
	return events, nil
}
