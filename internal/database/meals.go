package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/benvon/wte-api/internal/models"
	"github.com/benvon/wte-api/internal/stats"
	"github.com/google/uuid"
	"github.com/lib/pq"
)

const foreignKeyViolation = "23503"

// MealRepository handles meal database operations
type MealRepository struct {
	db *DB
}

// NewMealRepository creates a new meal repository
func NewMealRepository(db *DB) *MealRepository {
	return &MealRepository{db: db}
}

const mealColumns = `meal_id, user_id, meal_type, meal_date, to_char(meal_time, 'HH24:MI'), created_at, updated_at`

// Create inserts a meal without foods
func (r *MealRepository) Create(ctx context.Context, meal *models.Meal) error {
	query := `
		INSERT INTO meals (user_id, meal_type, meal_date, meal_time, created_at, updated_at)
		VALUES ($1, $2, $3::date, $4::time, $5, $5)
		RETURNING meal_id, created_at, updated_at
	`

	err := r.db.QueryRowContext(ctx, query,
		meal.UserID,
		meal.MealType,
		meal.MealDate.Format(time.DateOnly),
		meal.MealTime,
		time.Now(),
	).Scan(&meal.ID, &meal.CreatedAt, &meal.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create meal: %w", err)
	}

	if meal.Foods == nil {
		meal.Foods = []models.MealFood{}
	}
	return nil
}

// GetByID retrieves a meal with its foods. Meals of other users are reported as not found.
func (r *MealRepository) GetByID(ctx context.Context, userID uuid.UUID, mealID int64) (*models.Meal, error) {
	query := `SELECT ` + mealColumns + ` FROM meals WHERE meal_id = $1 AND user_id = $2`

	meal := &models.Meal{}
	err := r.db.QueryRowContext(ctx, query, mealID, userID).Scan(
		&meal.ID,
		&meal.UserID,
		&meal.MealType,
		&meal.MealDate,
		&meal.MealTime,
		&meal.CreatedAt,
		&meal.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("meal %d: %w", mealID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get meal: %w", err)
	}

	meals := []models.Meal{*meal}
	if err := r.loadFoods(ctx, meals); err != nil {
		return nil, err
	}
	return &meals[0], nil
}

// Update changes the type, date and time of a meal
func (r *MealRepository) Update(ctx context.Context, meal *models.Meal) error {
	query := `
		UPDATE meals
		SET meal_type = $1, meal_date = $2::date, meal_time = $3::time, updated_at = $4
		WHERE meal_id = $5 AND user_id = $6
		RETURNING updated_at
	`

	err := r.db.QueryRowContext(ctx, query,
		meal.MealType,
		meal.MealDate.Format(time.DateOnly),
		meal.MealTime,
		time.Now(),
		meal.ID,
		meal.UserID,
	).Scan(&meal.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("meal %d: %w", meal.ID, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to update meal: %w", err)
	}
	return nil
}

// Delete removes a meal and, by cascade, its foods and tags
func (r *MealRepository) Delete(ctx context.Context, userID uuid.UUID, mealID int64) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM meals WHERE meal_id = $1 AND user_id = $2`, mealID, userID)
	if err != nil {
		return fmt.Errorf("failed to delete meal: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("meal %d: %w", mealID, ErrNotFound)
	}
	return nil
}

// QueryMeals returns the user's meals within the inclusive date range, oldest first
func (r *MealRepository) QueryMeals(ctx context.Context, userID uuid.UUID, dr stats.DateRange) ([]models.Meal, error) {
	query := `SELECT ` + mealColumns + `
		FROM meals
		WHERE user_id = $1 AND meal_date BETWEEN $2::date AND $3::date
		ORDER BY meal_date, meal_time, meal_id
	`
	return r.list(ctx, query, userID, dr.Start.Format(time.DateOnly), dr.End.Format(time.DateOnly))
}

// ListByDate returns the user's meals on one day
func (r *MealRepository) ListByDate(ctx context.Context, userID uuid.UUID, date time.Time) ([]models.Meal, error) {
	return r.QueryMeals(ctx, userID, stats.DateRange{Start: date, End: date})
}

// ListByType returns the user's meals of one type, newest first
func (r *MealRepository) ListByType(ctx context.Context, userID uuid.UUID, mealType models.MealType) ([]models.Meal, error) {
	query := `SELECT ` + mealColumns + `
		FROM meals
		WHERE user_id = $1 AND meal_type = $2
		ORDER BY meal_date DESC, meal_time DESC, meal_id DESC
	`
	return r.list(ctx, query, userID, mealType)
}

// AddFood associates a food with a meal. Adding a food twice replaces its image
// when a new one is given.
func (r *MealRepository) AddFood(ctx context.Context, mealID int64, foodID int32, imagePath string) error {
	query := `
		INSERT INTO meal_food_images (meal_id, food_id, image_path)
		VALUES ($1, $2, $3)
		ON CONFLICT (meal_id, food_id) DO UPDATE
		SET image_path = CASE WHEN EXCLUDED.image_path <> '' THEN EXCLUDED.image_path ELSE meal_food_images.image_path END
	`

	if _, err := r.db.ExecContext(ctx, query, mealID, foodID, imagePath); err != nil {
		if isForeignKeyViolation(err) {
			return fmt.Errorf("meal %d or food %d: %w", mealID, foodID, ErrNotFound)
		}
		return fmt.Errorf("failed to add food to meal: %w", err)
	}
	return nil
}

// SetFoodImage replaces the stored image path of a food in a meal
func (r *MealRepository) SetFoodImage(ctx context.Context, mealID int64, foodID int32, imagePath string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE meal_food_images SET image_path = $1 WHERE meal_id = $2 AND food_id = $3`,
		imagePath, mealID, foodID)
	if err != nil {
		return fmt.Errorf("failed to set food image: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("food %d in meal %d: %w", foodID, mealID, ErrNotFound)
	}
	return nil
}

// RemoveFood detaches a food and its tags from a meal and returns the image path it had
func (r *MealRepository) RemoveFood(ctx context.Context, mealID int64, foodID int32) (string, error) {
	var imagePath string
	err := r.db.QueryRowContext(ctx,
		`DELETE FROM meal_food_images WHERE meal_id = $1 AND food_id = $2 RETURNING image_path`,
		mealID, foodID).Scan(&imagePath)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("food %d in meal %d: %w", foodID, mealID, ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("failed to remove food from meal: %w", err)
	}
	return imagePath, nil
}

// AddTag attaches a tag to a food in a meal
func (r *MealRepository) AddTag(ctx context.Context, mealID int64, foodID, tagID int32) error {
	query := `
		INSERT INTO meal_food_tags (meal_id, food_id, tag_id)
		VALUES ($1, $2, $3)
		ON CONFLICT DO NOTHING
		RETURNING tag_id
	`

	var inserted int32
	err := r.db.QueryRowContext(ctx, query, mealID, foodID, tagID).Scan(&inserted)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrDuplicateTag
	}
	if err != nil {
		if isForeignKeyViolation(err) {
			return fmt.Errorf("food %d in meal %d: %w", foodID, mealID, ErrNotFound)
		}
		return fmt.Errorf("failed to add tag: %w", err)
	}
	return nil
}

// ImagePaths lists the non-empty image paths stored for a meal
func (r *MealRepository) ImagePaths(ctx context.Context, mealID int64) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT image_path FROM meal_food_images WHERE meal_id = $1 AND image_path <> ''`, mealID)
	if err != nil {
		return nil, fmt.Errorf("failed to list image paths: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var paths []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("failed to scan image path: %w", err)
		}
		paths = append(paths, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating image paths: %w", err)
	}
	return paths, nil
}

func (r *MealRepository) list(ctx context.Context, query string, args ...any) ([]models.Meal, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query meals: %w", err)
	}
	defer func() { _ = rows.Close() }()

	meals := []models.Meal{}
	for rows.Next() {
		var m models.Meal
		if err := rows.Scan(
			&m.ID,
			&m.UserID,
			&m.MealType,
			&m.MealDate,
			&m.MealTime,
			&m.CreatedAt,
			&m.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan meal: %w", err)
		}
		meals = append(meals, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating meals: %w", err)
	}

	if err := r.loadFoods(ctx, meals); err != nil {
		return nil, err
	}
	return meals, nil
}

// loadFoods fills the Foods of every meal with one query
func (r *MealRepository) loadFoods(ctx context.Context, meals []models.Meal) error {
	if len(meals) == 0 {
		return nil
	}

	ids := make([]int64, len(meals))
	byID := make(map[int64]int, len(meals))
	for i := range meals {
		ids[i] = meals[i].ID
		byID[meals[i].ID] = i
		meals[i].Foods = []models.MealFood{}
	}

	query := `
		SELECT mfi.meal_id, mfi.food_id, f.name, mfi.image_path, t.tag_id, t.tag_name
		FROM meal_food_images mfi
		JOIN foods f ON f.food_id = mfi.food_id
		LEFT JOIN meal_food_tags mft ON mft.meal_id = mfi.meal_id AND mft.food_id = mfi.food_id
		LEFT JOIN tags t ON t.tag_id = mft.tag_id
		WHERE mfi.meal_id = ANY($1)
		ORDER BY mfi.meal_id, mfi.food_id, t.tag_id
	`

	rows, err := r.db.QueryContext(ctx, query, pq.Array(ids))
	if err != nil {
		return fmt.Errorf("failed to load meal foods: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var (
			mealID  int64
			food    models.MealFood
			tagID   sql.NullInt32
			tagName sql.NullString
		)
		if err := rows.Scan(&mealID, &food.FoodID, &food.FoodName, &food.ImagePath, &tagID, &tagName); err != nil {
			return fmt.Errorf("failed to scan meal food: %w", err)
		}

		meal := &meals[byID[mealID]]
		n := len(meal.Foods)
		if n == 0 || meal.Foods[n-1].FoodID != food.FoodID {
			food.MealID = mealID
			food.Tags = []models.Tag{}
			meal.Foods = append(meal.Foods, food)
			n++
		}
		if tagID.Valid {
			meal.Foods[n-1].Tags = append(meal.Foods[n-1].Tags, models.Tag{ID: tagID.Int32, Name: tagName.String})
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating meal foods: %w", err)
	}
	return nil
}

func isForeignKeyViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == foreignKeyViolation
}
