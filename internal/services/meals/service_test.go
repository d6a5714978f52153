package meals

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/benvon/wte-api/internal/database"
	"github.com/benvon/wte-api/internal/models"
	"github.com/benvon/wte-api/internal/stats"
	"github.com/benvon/wte-api/internal/storage"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// fakeMealRepo keeps meals in memory and mirrors the ownership and duplicate rules of MealRepository
type fakeMealRepo struct {
	mu     sync.Mutex
	nextID int64
	meals  map[int64]*models.Meal
}

func newFakeMealRepo() *fakeMealRepo {
	return &fakeMealRepo{meals: make(map[int64]*models.Meal)}
}

func (r *fakeMealRepo) Create(_ context.Context, meal *models.Meal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	meal.ID = r.nextID
	meal.Foods = []models.MealFood{}
	stored := *meal
	r.meals[meal.ID] = &stored
	return nil
}

func (r *fakeMealRepo) GetByID(_ context.Context, userID uuid.UUID, mealID int64) (*models.Meal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.meals[mealID]
	if !ok || m.UserID != userID {
		return nil, database.ErrNotFound
	}
	cp := *m
	cp.Foods = append([]models.MealFood(nil), m.Foods...)
	return &cp, nil
}

func (r *fakeMealRepo) Update(_ context.Context, meal *models.Meal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.meals[meal.ID]
	if !ok || m.UserID != meal.UserID {
		return database.ErrNotFound
	}
	m.MealType, m.MealDate, m.MealTime = meal.MealType, meal.MealDate, meal.MealTime
	return nil
}

func (r *fakeMealRepo) Delete(_ context.Context, userID uuid.UUID, mealID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.meals[mealID]
	if !ok || m.UserID != userID {
		return database.ErrNotFound
	}
	delete(r.meals, mealID)
	return nil
}

func (r *fakeMealRepo) QueryMeals(_ context.Context, userID uuid.UUID, dr stats.DateRange) ([]models.Meal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Meal
	for _, m := range r.meals {
		if m.UserID == userID && dr.Contains(m.MealDate) {
			out = append(out, *m)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].MealDate.Equal(out[j].MealDate) {
			return out[i].MealDate.Before(out[j].MealDate)
		}
		return out[i].MealTime < out[j].MealTime
	})
	return out, nil
}

func (r *fakeMealRepo) ListByDate(ctx context.Context, userID uuid.UUID, date time.Time) ([]models.Meal, error) {
	return r.QueryMeals(ctx, userID, stats.DateRange{Start: date, End: date})
}

func (r *fakeMealRepo) ListByType(_ context.Context, userID uuid.UUID, mealType models.MealType) ([]models.Meal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Meal
	for _, m := range r.meals {
		if m.UserID == userID && m.MealType == mealType {
			out = append(out, *m)
		}
	}
	return out, nil
}

func (r *fakeMealRepo) AddFood(_ context.Context, mealID int64, foodID int32, imagePath string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.meals[mealID]
	if !ok {
		return database.ErrNotFound
	}
	for i := range m.Foods {
		if m.Foods[i].FoodID == foodID {
			if imagePath != "" {
				m.Foods[i].ImagePath = imagePath
			}
			return nil
		}
	}
	m.Foods = append(m.Foods, models.MealFood{MealID: mealID, FoodID: foodID, FoodName: foodNames[foodID], ImagePath: imagePath, Tags: []models.Tag{}})
	return nil
}

func (r *fakeMealRepo) SetFoodImage(_ context.Context, mealID int64, foodID int32, imagePath string) error {
	return errors.New("not used")
}

func (r *fakeMealRepo) RemoveFood(_ context.Context, mealID int64, foodID int32) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.meals[mealID]
	if !ok {
		return "", database.ErrNotFound
	}
	for i, f := range m.Foods {
		if f.FoodID == foodID {
			m.Foods = append(m.Foods[:i], m.Foods[i+1:]...)
			return f.ImagePath, nil
		}
	}
	return "", database.ErrNotFound
}

func (r *fakeMealRepo) AddTag(_ context.Context, mealID int64, foodID, tagID int32) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m := r.meals[mealID]
	for i := range m.Foods {
		if m.Foods[i].FoodID == foodID {
			if m.Foods[i].HasTag(tagID) {
				return database.ErrDuplicateTag
			}
			m.Foods[i].Tags = append(m.Foods[i].Tags, models.Tag{ID: tagID, Name: tagNames[tagID]})
			return nil
		}
	}
	return database.ErrNotFound
}

func (r *fakeMealRepo) ImagePaths(_ context.Context, mealID int64) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var paths []string
	for _, f := range r.meals[mealID].Foods {
		if f.ImagePath != "" {
			paths = append(paths, f.ImagePath)
		}
	}
	return paths, nil
}

var _ database.MealRepositoryInterface = (*fakeMealRepo)(nil)

var (
	foodNames = map[int32]string{1: "米饭", 2: "鸡蛋"}
	tagNames  = map[int32]string{10: "蔬菜", 11: "肉类"}
)

// fakeCatalog resolves names from a fixed map
type fakeCatalog struct {
	ids map[string]int32
}

func (c *fakeCatalog) Upsert(_ context.Context, name string) (int32, error) {
	name, err := database.NormalizeName(name)
	if err != nil {
		return 0, err
	}
	id, ok := c.ids[name]
	if !ok {
		return 0, errors.New("unexpected name " + name)
	}
	return id, nil
}

type fakeStatsRepo struct {
	database.StatsRepositoryInterface
	mealCounts *models.MealStats
	favorites  []models.FoodFrequency
	lastLimit  int
}

func (r *fakeStatsRepo) MealCounts(_ context.Context, _ uuid.UUID, _ time.Time) (*models.MealStats, error) {
	return r.mealCounts, nil
}

func (r *fakeStatsRepo) FavoriteFoods(_ context.Context, _ uuid.UUID, limit int) ([]models.FoodFrequency, error) {
	r.lastLimit = limit
	return r.favorites, nil
}

type testEnv struct {
	svc     *Service
	repo    *fakeMealRepo
	images  *storage.MemoryStore
	stats   *fakeStatsRepo
	changes *[]uuid.UUID
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()

	repo := newFakeMealRepo()
	images := storage.NewMemoryStore("http://img.local")
	statsRepo := &fakeStatsRepo{}
	svc := NewService(
		repo,
		&fakeCatalog{ids: map[string]int32{"米饭": 1, "鸡蛋": 2}},
		&fakeCatalog{ids: map[string]int32{"蔬菜": 10, "肉类": 11}},
		statsRepo,
		images,
		zap.NewNop(),
	)
	svc.now = func() time.Time { return time.Date(2025, 3, 7, 20, 15, 30, 0, time.UTC) }

	var mu sync.Mutex
	changes := &[]uuid.UUID{}
	svc.SetChangeHandler(func(ctx context.Context, userID uuid.UUID) {
		mu.Lock()
		*changes = append(*changes, userID)
		mu.Unlock()
	})

	return testEnv{svc: svc, repo: repo, images: images, stats: statsRepo, changes: changes}
}

func lunch(d int) MealInput {
	return MealInput{MealType: models.MealTypeLunch, MealDate: time.Date(2025, 3, d, 0, 0, 0, 0, time.UTC), MealTime: "12:30"}
}

func TestService_AddMeal_Validation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		input   MealInput
		wantErr bool
	}{
		{name: "valid", input: lunch(1)},
		{name: "unknown type", input: MealInput{MealType: "brunch", MealDate: lunch(1).MealDate, MealTime: "10:00"}, wantErr: true},
		{name: "missing date", input: MealInput{MealType: models.MealTypeSnack, MealTime: "10:00"}, wantErr: true},
		{name: "bad time", input: MealInput{MealType: models.MealTypeSnack, MealDate: lunch(1).MealDate, MealTime: "25:99"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			env := newTestEnv(t)
			userID := uuid.New()
			meal, err := env.svc.AddMeal(context.Background(), userID, tt.input)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidMeal) {
					t.Fatalf("AddMeal() error = %v, want ErrInvalidMeal", err)
				}
				if len(*env.changes) != 0 {
					t.Error("change handler called for rejected meal")
				}
				return
			}
			if err != nil {
				t.Fatalf("AddMeal() unexpected error: %v", err)
			}
			if meal.ID == 0 || meal.UserID != userID {
				t.Errorf("AddMeal() = %+v", meal)
			}
			if len(*env.changes) != 1 || (*env.changes)[0] != userID {
				t.Errorf("change handler calls = %v", *env.changes)
			}
		})
	}
}

func TestService_AddFoodWithImage(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()
	userID := uuid.New()

	meal, err := env.svc.AddMeal(ctx, userID, lunch(7))
	if err != nil {
		t.Fatalf("AddMeal() error: %v", err)
	}

	food, err := env.svc.AddFood(ctx, userID, meal.ID, " 米饭 ", &Image{Filename: "IMG.PNG", Data: []byte("png")})
	if err != nil {
		t.Fatalf("AddFood() error: %v", err)
	}

	wantKey := "meals/" + userID.String() + "/1/1_20250307201530.png"
	if food.ImagePath != wantKey {
		t.Errorf("ImagePath = %s, want %s", food.ImagePath, wantKey)
	}
	if food.FoodName != "米饭" {
		t.Errorf("FoodName = %q", food.FoodName)
	}
	if data, err := env.images.Get(ctx, wantKey); err != nil || string(data) != "png" {
		t.Errorf("stored image = %q, %v", data, err)
	}

	url, err := env.svc.ImageURL(ctx, userID, meal.ID, food.FoodID)
	if err != nil || !strings.HasPrefix(url, "http://img.local/"+wantKey) {
		t.Errorf("ImageURL() = %q, %v", url, err)
	}

	if _, err := env.svc.AddFood(ctx, uuid.New(), meal.ID, "米饭", nil); !errors.Is(err, database.ErrNotFound) {
		t.Errorf("AddFood() for another user error = %v, want ErrNotFound", err)
	}

	tooBig := &Image{Filename: "a.jpg", Data: make([]byte, MaxImageSize+1)}
	if _, err := env.svc.AddFood(ctx, userID, meal.ID, "鸡蛋", tooBig); !errors.Is(err, ErrInvalidMeal) {
		t.Errorf("AddFood() oversized image error = %v, want ErrInvalidMeal", err)
	}
}

func TestService_AddTag(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()
	userID := uuid.New()

	meal, _ := env.svc.AddMeal(ctx, userID, lunch(7))
	food, _ := env.svc.AddFood(ctx, userID, meal.ID, "鸡蛋", nil)

	tag, err := env.svc.AddTag(ctx, userID, meal.ID, food.FoodID, "蔬菜")
	if err != nil {
		t.Fatalf("AddTag() error: %v", err)
	}
	if tag.ID != 10 || tag.Name != "蔬菜" {
		t.Errorf("AddTag() = %+v", tag)
	}

	if _, err := env.svc.AddTag(ctx, userID, meal.ID, food.FoodID, "蔬菜"); !errors.Is(err, database.ErrDuplicateTag) {
		t.Errorf("AddTag() twice error = %v, want ErrDuplicateTag", err)
	}

	if _, err := env.svc.AddTag(ctx, userID, meal.ID, 99, "蔬菜"); !errors.Is(err, database.ErrNotFound) {
		t.Errorf("AddTag() on missing food error = %v, want ErrNotFound", err)
	}
}

func TestService_DeleteMealRemovesImages(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()
	userID := uuid.New()

	meal, _ := env.svc.AddMeal(ctx, userID, lunch(7))
	if _, err := env.svc.AddFood(ctx, userID, meal.ID, "米饭", &Image{Filename: "a.jpg", Data: []byte("a")}); err != nil {
		t.Fatalf("AddFood() error: %v", err)
	}
	if _, err := env.svc.AddFood(ctx, userID, meal.ID, "鸡蛋", &Image{Filename: "b.jpg", Data: []byte("b")}); err != nil {
		t.Fatalf("AddFood() error: %v", err)
	}
	if env.images.Len() != 2 {
		t.Fatalf("images stored = %d, want 2", env.images.Len())
	}

	if err := env.svc.DeleteMeal(ctx, uuid.New(), meal.ID); !errors.Is(err, database.ErrNotFound) {
		t.Errorf("DeleteMeal() by another user error = %v, want ErrNotFound", err)
	}

	if err := env.svc.DeleteMeal(ctx, userID, meal.ID); err != nil {
		t.Fatalf("DeleteMeal() error: %v", err)
	}
	if env.images.Len() != 0 {
		t.Errorf("images left after delete = %d, want 0", env.images.Len())
	}
}

func TestService_RemoveFood(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()
	userID := uuid.New()

	meal, _ := env.svc.AddMeal(ctx, userID, lunch(7))
	food, _ := env.svc.AddFood(ctx, userID, meal.ID, "米饭", &Image{Filename: "a.jpg", Data: []byte("a")})

	if err := env.svc.RemoveFood(ctx, userID, meal.ID, food.FoodID); err != nil {
		t.Fatalf("RemoveFood() error: %v", err)
	}
	if env.images.Len() != 0 {
		t.Errorf("image not deleted with food")
	}
	if err := env.svc.RemoveFood(ctx, userID, meal.ID, food.FoodID); !errors.Is(err, database.ErrNotFound) {
		t.Errorf("RemoveFood() twice error = %v, want ErrNotFound", err)
	}
}

func TestService_HistoryJSON(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()
	userID := uuid.New()

	old, _ := env.svc.AddMeal(ctx, userID, lunch(1))
	_, _ = env.svc.AddFood(ctx, userID, old.ID, "米饭", nil)

	meal, _ := env.svc.AddMeal(ctx, userID, lunch(6))
	food, _ := env.svc.AddFood(ctx, userID, meal.ID, "鸡蛋", nil)
	_, _ = env.svc.AddTag(ctx, userID, meal.ID, food.FoodID, "肉类")

	got, err := env.svc.HistoryJSON(ctx, userID, 3)
	if err != nil {
		t.Fatalf("HistoryJSON() error: %v", err)
	}

	want := `[{"mealType":"午饭","mealDate":"2025-03-06","mealTime":"12:30","foods":[{"foodName":"鸡蛋","tags":["肉类"]}]}]`
	if got != want {
		t.Errorf("HistoryJSON() = %s, want %s", got, want)
	}

	all, err := env.svc.History(ctx, userID, 0)
	if err != nil || len(all) != 2 {
		t.Errorf("History(default days) = %d entries, %v; want 2", len(all), err)
	}
}

func TestService_MealStatsAndFavorites(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.stats.mealCounts = &models.MealStats{
		TotalMeals:  3,
		TodayMeals:  1,
		MealsByType: map[models.MealType]int{models.MealTypeLunch: 3},
	}
	env.stats.favorites = []models.FoodFrequency{{FoodID: 1, FoodName: "米饭", Count: 3}}

	got, err := env.svc.MealStats(context.Background(), uuid.New())
	if err != nil {
		t.Fatalf("MealStats() error: %v", err)
	}
	if len(got.MealsByType) != len(models.AllMealTypes) || got.MealsByType[models.MealTypeBreakfast] != 0 {
		t.Errorf("MealsByType = %v, want every meal type present", got.MealsByType)
	}

	if _, err := env.svc.FavoriteFoods(context.Background(), uuid.New(), 0); err != nil {
		t.Fatalf("FavoriteFoods() error: %v", err)
	}
	if env.stats.lastLimit != DefaultFavoriteLimit {
		t.Errorf("FavoriteFoods limit = %d, want %d", env.stats.lastLimit, DefaultFavoriteLimit)
	}
}

func TestService_MealsByRange_InvalidRange(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	_, err := env.svc.MealsByRange(context.Background(), uuid.New(), lunch(7).MealDate, lunch(1).MealDate)
	if !errors.Is(err, stats.ErrInvalidRange) {
		t.Errorf("MealsByRange() error = %v, want ErrInvalidRange", err)
	}
}
