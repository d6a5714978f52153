package database

import (
	"context"
	"time"

	"github.com/benvon/wte-api/internal/models"
	"github.com/benvon/wte-api/internal/stats"
	"github.com/google/uuid"
)

// UserRepositoryInterface defines the interface for user repository operations
type UserRepositoryInterface interface {
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetByUsername(ctx context.Context, username string) (*models.User, error)
	UpdateProfile(ctx context.Context, user *models.User) error
}

// MealRepositoryInterface defines the interface for meal repository operations
type MealRepositoryInterface interface {
	Create(ctx context.Context, meal *models.Meal) error
	GetByID(ctx context.Context, userID uuid.UUID, mealID int64) (*models.Meal, error)
	Update(ctx context.Context, meal *models.Meal) error
	Delete(ctx context.Context, userID uuid.UUID, mealID int64) error
	QueryMeals(ctx context.Context, userID uuid.UUID, dr stats.DateRange) ([]models.Meal, error)
	ListByDate(ctx context.Context, userID uuid.UUID, date time.Time) ([]models.Meal, error)
	ListByType(ctx context.Context, userID uuid.UUID, mealType models.MealType) ([]models.Meal, error)
	AddFood(ctx context.Context, mealID int64, foodID int32, imagePath string) error
	SetFoodImage(ctx context.Context, mealID int64, foodID int32, imagePath string) error
	RemoveFood(ctx context.Context, mealID int64, foodID int32) (string, error)
	AddTag(ctx context.Context, mealID int64, foodID, tagID int32) error
	ImagePaths(ctx context.Context, mealID int64) ([]string, error)
}

// CatalogRepositoryInterface is the name-to-id upsert shared by foods and tags
type CatalogRepositoryInterface interface {
	Upsert(ctx context.Context, name string) (int32, error)
}

// StatsRepositoryInterface defines the group-by queries behind statistics
type StatsRepositoryInterface interface {
	CountTags(ctx context.Context, userID uuid.UUID, dr stats.DateRange) ([]stats.TagCount, error)
	CountFoods(ctx context.Context, userID uuid.UUID, dr stats.DateRange) ([]stats.TagCount, error)
	TagEvents(ctx context.Context, userID uuid.UUID, dr stats.DateRange) ([]stats.Event, error)
	FoodEvents(ctx context.Context, userID uuid.UUID, dr stats.DateRange) ([]stats.Event, error)
	FavoriteFoods(ctx context.Context, userID uuid.UUID, limit int) ([]models.FoodFrequency, error)
	MealCounts(ctx context.Context, userID uuid.UUID, today time.Time) (*models.MealStats, error)
	DailyFoods(ctx context.Context, userID uuid.UUID, dr stats.DateRange) ([]models.DailyFoods, error)
}

// TagStatisticsRepositoryInterface defines snapshot persistence used by the refresh worker
type TagStatisticsRepositoryInterface interface {
	Get(ctx context.Context, userID uuid.UUID, rangeDays int) (*models.TagStatisticsSnapshot, error)
	GetOrCreate(ctx context.Context, userID uuid.UUID, rangeDays int) (*models.TagStatisticsSnapshot, error)
	Update(ctx context.Context, snap *models.TagStatisticsSnapshot) (bool, error)
	MarkTainted(ctx context.Context, userID uuid.UUID) (bool, error)
}

// Ensure concrete types implement the interfaces
var (
	_ UserRepositoryInterface          = (*UserRepository)(nil)
	_ MealRepositoryInterface          = (*MealRepository)(nil)
	_ CatalogRepositoryInterface       = (*FoodRepository)(nil)
	_ CatalogRepositoryInterface       = (*TagRepository)(nil)
	_ StatsRepositoryInterface         = (*StatsRepository)(nil)
	_ TagStatisticsRepositoryInterface = (*TagStatisticsRepository)(nil)
)
