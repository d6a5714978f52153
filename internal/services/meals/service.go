package meals

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/benvon/wte-api/internal/database"
	"github.com/benvon/wte-api/internal/logger"
	"github.com/benvon/wte-api/internal/models"
	"github.com/benvon/wte-api/internal/stats"
	"github.com/benvon/wte-api/internal/storage"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	// MaxImageSize is the largest accepted meal photo
	MaxImageSize = 10 << 20
	// DefaultHistoryDays is how far back the history export looks by default
	DefaultHistoryDays = 7
	// DefaultFavoriteLimit is how many favorite foods are returned by default
	DefaultFavoriteLimit = 5
	// DefaultImageURLTTL is how long signed image URLs stay valid
	DefaultImageURLTTL = time.Hour
)

// ErrInvalidMeal is returned for meals with an unknown type, a malformed time or a missing date
var ErrInvalidMeal = errors.New("invalid meal")

// ChangeHandler is called after a user's meal data changed
type ChangeHandler func(ctx context.Context, userID uuid.UUID)

// MealInput holds the editable fields of a meal
type MealInput struct {
	MealType models.MealType
	MealDate time.Time
	MealTime string
}

// Image is an uploaded meal photo
type Image struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Service implements meal logging on top of the repositories and object storage
type Service struct {
	meals    database.MealRepositoryInterface
	foods    database.CatalogRepositoryInterface
	tags     database.CatalogRepositoryInterface
	stats    database.StatsRepositoryInterface
	images   storage.ObjectStore
	logger   *zap.Logger
	onChange ChangeHandler
	urlTTL   time.Duration
	now      func() time.Time
}

// NewService creates a meal service
func NewService(
	meals database.MealRepositoryInterface,
	foods database.CatalogRepositoryInterface,
	tags database.CatalogRepositoryInterface,
	statsRepo database.StatsRepositoryInterface,
	images storage.ObjectStore,
	logger *zap.Logger,
) *Service {
	return &Service{
		meals:  meals,
		foods:  foods,
		tags:   tags,
		stats:  statsRepo,
		images: images,
		logger: logger,
		urlTTL: DefaultImageURLTTL,
		now:    time.Now,
	}
}

// SetChangeHandler registers the callback run after every successful write
func (s *Service) SetChangeHandler(h ChangeHandler) {
	s.onChange = h
}

// SetImageURLTTL overrides how long signed image URLs stay valid
func (s *Service) SetImageURLTTL(ttl time.Duration) {
	if ttl > 0 {
		s.urlTTL = ttl
	}
}

// AddMeal records a new meal without foods
func (s *Service) AddMeal(ctx context.Context, userID uuid.UUID, in MealInput) (*models.Meal, error) {
	if err := validateMeal(in); err != nil {
		return nil, err
	}

	meal := &models.Meal{
		UserID:   userID,
		MealType: in.MealType,
		MealDate: in.MealDate,
		MealTime: in.MealTime,
	}
	if err := s.meals.Create(ctx, meal); err != nil {
		return nil, err
	}

	s.changed(ctx, userID)
	return meal, nil
}

// UpdateMeal changes the type, date and time of a meal
func (s *Service) UpdateMeal(ctx context.Context, userID uuid.UUID, mealID int64, in MealInput) (*models.Meal, error) {
	if err := validateMeal(in); err != nil {
		return nil, err
	}

	meal, err := s.meals.GetByID(ctx, userID, mealID)
	if err != nil {
		return nil, err
	}

	meal.MealType = in.MealType
	meal.MealDate = in.MealDate
	meal.MealTime = in.MealTime
	if err := s.meals.Update(ctx, meal); err != nil {
		return nil, err
	}

	s.changed(ctx, userID)
	return meal, nil
}

// DeleteMeal removes a meal with its foods, tags and stored photos
func (s *Service) DeleteMeal(ctx context.Context, userID uuid.UUID, mealID int64) error {
	if _, err := s.meals.GetByID(ctx, userID, mealID); err != nil {
		return err
	}

	paths, err := s.meals.ImagePaths(ctx, mealID)
	if err != nil {
		return err
	}

	if err := s.meals.Delete(ctx, userID, mealID); err != nil {
		return err
	}

	for _, p := range paths {
		s.deleteImage(ctx, p)
	}

	s.changed(ctx, userID)
	return nil
}

// AddFood adds a food, and optionally its photo, to a meal
func (s *Service) AddFood(ctx context.Context, userID uuid.UUID, mealID int64, foodName string, img *Image) (*models.MealFood, error) {
	meal, err := s.meals.GetByID(ctx, userID, mealID)
	if err != nil {
		return nil, err
	}

	foodID, err := s.foods.Upsert(ctx, foodName)
	if err != nil {
		return nil, err
	}

	var previousImage string
	if existing, ok := meal.FoodByID(foodID); ok {
		previousImage = existing.ImagePath
	}

	var imagePath string
	if img != nil && len(img.Data) > 0 {
		if len(img.Data) > MaxImageSize {
			return nil, fmt.Errorf("%w: image larger than %d bytes", ErrInvalidMeal, MaxImageSize)
		}
		imagePath = storage.MealImageKey(userID, mealID, foodID, s.now(), img.Filename)
		contentType := img.ContentType
		if contentType == "" {
			contentType = storage.ContentTypeFor(imagePath)
		}
		if err := s.images.Put(ctx, imagePath, img.Data, contentType); err != nil {
			return nil, fmt.Errorf("failed to upload meal image: %w", err)
		}
	}

	if err := s.meals.AddFood(ctx, mealID, foodID, imagePath); err != nil {
		if imagePath != "" {
			s.deleteImage(ctx, imagePath)
		}
		return nil, err
	}

	if imagePath != "" && previousImage != "" && previousImage != imagePath {
		s.deleteImage(ctx, previousImage)
	}

	food := &models.MealFood{MealID: mealID, FoodID: foodID, Tags: []models.Tag{}}
	if existing, ok := meal.FoodByID(foodID); ok {
		food.FoodName = existing.FoodName
		food.Tags = existing.Tags
		food.ImagePath = existing.ImagePath
	} else {
		food.FoodName, _ = database.NormalizeName(foodName)
	}
	if imagePath != "" {
		food.ImagePath = imagePath
	}

	s.changed(ctx, userID)
	return food, nil
}

// RemoveFood removes a food and its tags from a meal and deletes its photo
func (s *Service) RemoveFood(ctx context.Context, userID uuid.UUID, mealID int64, foodID int32) error {
	if _, err := s.meals.GetByID(ctx, userID, mealID); err != nil {
		return err
	}

	imagePath, err := s.meals.RemoveFood(ctx, mealID, foodID)
	if err != nil {
		return err
	}
	if imagePath != "" {
		s.deleteImage(ctx, imagePath)
	}

	s.changed(ctx, userID)
	return nil
}

// AddTag attaches a tag to a food of a meal. Attaching the same tag twice
// returns database.ErrDuplicateTag.
func (s *Service) AddTag(ctx context.Context, userID uuid.UUID, mealID int64, foodID int32, tagName string) (*models.Tag, error) {
	meal, err := s.meals.GetByID(ctx, userID, mealID)
	if err != nil {
		return nil, err
	}
	food, ok := meal.FoodByID(foodID)
	if !ok {
		return nil, fmt.Errorf("food %d in meal %d: %w", foodID, mealID, database.ErrNotFound)
	}

	tagID, err := s.tags.Upsert(ctx, tagName)
	if err != nil {
		return nil, err
	}
	if food.HasTag(tagID) {
		return nil, fmt.Errorf("tag %d on food %d: %w", tagID, foodID, database.ErrDuplicateTag)
	}

	if err := s.meals.AddTag(ctx, mealID, foodID, tagID); err != nil {
		return nil, err
	}

	name, _ := database.NormalizeName(tagName)
	s.logger.Debug("tag_added",
		zap.Int64("meal_id", mealID),
		zap.Int32("food_id", foodID),
		zap.String("tag", logger.SanitizeName(name)),
	)
	s.changed(ctx, userID)
	return &models.Tag{ID: tagID, Name: name}, nil
}

// Meal returns one meal of the user
func (s *Service) Meal(ctx context.Context, userID uuid.UUID, mealID int64) (*models.Meal, error) {
	return s.meals.GetByID(ctx, userID, mealID)
}

// MealsByDate returns the user's meals on a day
func (s *Service) MealsByDate(ctx context.Context, userID uuid.UUID, date time.Time) ([]models.Meal, error) {
	return s.meals.ListByDate(ctx, userID, date)
}

// MealsByRange returns the user's meals between two days inclusive
func (s *Service) MealsByRange(ctx context.Context, userID uuid.UUID, start, end time.Time) ([]models.Meal, error) {
	dr, err := stats.NewDateRange(start, end)
	if err != nil {
		return nil, err
	}
	return s.meals.QueryMeals(ctx, userID, dr)
}

// MealsByType returns the user's meals of one type, newest first
func (s *Service) MealsByType(ctx context.Context, userID uuid.UUID, mealType models.MealType) ([]models.Meal, error) {
	if !mealType.IsValid() {
		return nil, fmt.Errorf("%w: unknown meal type %q", ErrInvalidMeal, mealType)
	}
	return s.meals.ListByType(ctx, userID, mealType)
}

// ImageURL returns a signed URL of the photo of a food in a meal
func (s *Service) ImageURL(ctx context.Context, userID uuid.UUID, mealID int64, foodID int32) (string, error) {
	meal, err := s.meals.GetByID(ctx, userID, mealID)
	if err != nil {
		return "", err
	}

	food, ok := meal.FoodByID(foodID)
	if !ok || food.ImagePath == "" {
		return "", fmt.Errorf("image of food %d in meal %d: %w", foodID, mealID, database.ErrNotFound)
	}

	return s.images.SignURL(ctx, food.ImagePath, s.urlTTL)
}

// History returns the compact meal history of the last days, oldest first
func (s *Service) History(ctx context.Context, userID uuid.UUID, days int) ([]models.MealHistoryEntry, error) {
	if days <= 0 {
		days = DefaultHistoryDays
	}

	meals, err := s.meals.QueryMeals(ctx, userID, stats.LastDays(s.now(), days))
	if err != nil {
		return nil, err
	}

	entries := make([]models.MealHistoryEntry, 0, len(meals))
	for _, m := range meals {
		entry := models.MealHistoryEntry{
			MealType: m.MealType,
			MealDate: m.MealDate.Format(time.DateOnly),
			MealTime: m.MealTime,
			Foods:    make([]models.FoodHistoryEntry, 0, len(m.Foods)),
		}
		for _, f := range m.Foods {
			tags := make([]string, 0, len(f.Tags))
			for _, t := range f.Tags {
				tags = append(tags, t.Name)
			}
			entry.Foods = append(entry.Foods, models.FoodHistoryEntry{FoodName: f.FoodName, Tags: tags})
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// HistoryJSON returns History serialized as JSON, the format used in advice prompts
func (s *Service) HistoryJSON(ctx context.Context, userID uuid.UUID, days int) (string, error) {
	entries, err := s.History(ctx, userID, days)
	if err != nil {
		return "", err
	}

	data, err := json.Marshal(entries)
	if err != nil {
		return "", fmt.Errorf("failed to marshal meal history: %w", err)
	}
	return string(data), nil
}

// MealStats returns total, today's and per-type meal counts
func (s *Service) MealStats(ctx context.Context, userID uuid.UUID) (*models.MealStats, error) {
	result, err := s.stats.MealCounts(ctx, userID, s.now())
	if err != nil {
		return nil, err
	}
	for _, t := range models.AllMealTypes {
		if _, ok := result.MealsByType[t]; !ok {
			result.MealsByType[t] = 0
		}
	}
	return result, nil
}

// FavoriteFoods returns the user's most eaten foods
func (s *Service) FavoriteFoods(ctx context.Context, userID uuid.UUID, limit int) ([]models.FoodFrequency, error) {
	if limit <= 0 {
		limit = DefaultFavoriteLimit
	}
	return s.stats.FavoriteFoods(ctx, userID, limit)
}

func (s *Service) changed(ctx context.Context, userID uuid.UUID) {
	if s.onChange != nil {
		s.onChange(ctx, userID)
	}
}

func (s *Service) deleteImage(ctx context.Context, key string) {
	if err := s.images.Delete(ctx, key); err != nil && !errors.Is(err, storage.ErrObjectNotFound) {
		s.logger.Warn("failed_to_delete_meal_image",
			zap.String("key", logger.SanitizePath(key)),
			zap.Error(err),
		)
	}
}

func validateMeal(in MealInput) error {
	if !in.MealType.IsValid() {
		return fmt.Errorf("%w: unknown meal type %q", ErrInvalidMeal, in.MealType)
	}
	if in.MealDate.IsZero() {
		return fmt.Errorf("%w: meal date is required", ErrInvalidMeal)
	}
	if _, err := time.Parse(models.MealTimeLayout, in.MealTime); err != nil {
		return fmt.Errorf("%w: meal time must be HH:MM", ErrInvalidMeal)
	}
	return nil
}
