package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/benvon/wte-api/internal/models"
	"github.com/benvon/wte-api/internal/request"
	"github.com/benvon/wte-api/internal/services/ai"
	"github.com/benvon/wte-api/internal/services/auth"
	"github.com/benvon/wte-api/internal/services/meals"
	"github.com/benvon/wte-api/internal/services/statistics"
	"github.com/benvon/wte-api/internal/stats"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

var testUser = &models.User{
	ID:       uuid.MustParse("7f0c1c52-9a55-4a4f-8a8e-3d6b1f2f4c11"),
	Username: "alice",
	Email:    "alice@example.com",
}

// serve routes req through a router built by register, as the user when set
func serve(t *testing.T, register func(*mux.Router), req *http.Request, user *models.User) *httptest.ResponseRecorder {
	t.Helper()
	r := mux.NewRouter()
	register(r)
	if user != nil {
		req = req.WithContext(request.WithUser(req.Context(), user))
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

// newTestRequest builds a request whose body is body encoded as JSON
func newTestRequest(method, path string, body any) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req
}

// envelope decodes the standard response wrapper
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
	Message string          `json:"message"`
}

func decodeEnvelope(t *testing.T, body io.Reader) envelope {
	t.Helper()
	var env envelope
	if err := json.NewDecoder(body).Decode(&env); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return env
}

type mockAuthService struct {
	registerFunc func(ctx context.Context, username, email, password string) (*auth.Session, error)
	loginFunc    func(ctx context.Context, username, password string) (*auth.Session, error)
}

func (m *mockAuthService) Register(ctx context.Context, username, email, password string) (*auth.Session, error) {
	return m.registerFunc(ctx, username, email, password)
}

func (m *mockAuthService) Login(ctx context.Context, username, password string) (*auth.Session, error) {
	return m.loginFunc(ctx, username, password)
}

type mockProfileStore struct {
	mu      sync.Mutex
	updated []*models.User
	err     error
}

func (m *mockProfileStore) UpdateProfile(_ context.Context, user *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updated = append(m.updated, user)
	return m.err
}

type mockMealService struct {
	addMealFunc       func(ctx context.Context, userID uuid.UUID, in meals.MealInput) (*models.Meal, error)
	updateMealFunc    func(ctx context.Context, userID uuid.UUID, mealID int64, in meals.MealInput) (*models.Meal, error)
	deleteMealFunc    func(ctx context.Context, userID uuid.UUID, mealID int64) error
	addFoodFunc       func(ctx context.Context, userID uuid.UUID, mealID int64, foodName string, img *meals.Image) (*models.MealFood, error)
	removeFoodFunc    func(ctx context.Context, userID uuid.UUID, mealID int64, foodID int32) error
	addTagFunc        func(ctx context.Context, userID uuid.UUID, mealID int64, foodID int32, tagName string) (*models.Tag, error)
	mealFunc          func(ctx context.Context, userID uuid.UUID, mealID int64) (*models.Meal, error)
	mealsByDateFunc   func(ctx context.Context, userID uuid.UUID, date time.Time) ([]models.Meal, error)
	mealsByRangeFunc  func(ctx context.Context, userID uuid.UUID, start, end time.Time) ([]models.Meal, error)
	mealsByTypeFunc   func(ctx context.Context, userID uuid.UUID, mealType models.MealType) ([]models.Meal, error)
	imageURLFunc      func(ctx context.Context, userID uuid.UUID, mealID int64, foodID int32) (string, error)
	historyFunc       func(ctx context.Context, userID uuid.UUID, days int) ([]models.MealHistoryEntry, error)
	mealStatsFunc     func(ctx context.Context, userID uuid.UUID) (*models.MealStats, error)
	favoriteFoodsFunc func(ctx context.Context, userID uuid.UUID, limit int) ([]models.FoodFrequency, error)
}

func (m *mockMealService) AddMeal(ctx context.Context, userID uuid.UUID, in meals.MealInput) (*models.Meal, error) {
	return m.addMealFunc(ctx, userID, in)
}

func (m *mockMealService) UpdateMeal(ctx context.Context, userID uuid.UUID, mealID int64, in meals.MealInput) (*models.Meal, error) {
	return m.updateMealFunc(ctx, userID, mealID, in)
}

func (m *mockMealService) DeleteMeal(ctx context.Context, userID uuid.UUID, mealID int64) error {
	return m.deleteMealFunc(ctx, userID, mealID)
}

func (m *mockMealService) AddFood(ctx context.Context, userID uuid.UUID, mealID int64, foodName string, img *meals.Image) (*models.MealFood, error) {
	return m.addFoodFunc(ctx, userID, mealID, foodName, img)
}

func (m *mockMealService) RemoveFood(ctx context.Context, userID uuid.UUID, mealID int64, foodID int32) error {
	return m.removeFoodFunc(ctx, userID, mealID, foodID)
}

func (m *mockMealService) AddTag(ctx context.Context, userID uuid.UUID, mealID int64, foodID int32, tagName string) (*models.Tag, error) {
	return m.addTagFunc(ctx, userID, mealID, foodID, tagName)
}

func (m *mockMealService) Meal(ctx context.Context, userID uuid.UUID, mealID int64) (*models.Meal, error) {
	return m.mealFunc(ctx, userID, mealID)
}

func (m *mockMealService) MealsByDate(ctx context.Context, userID uuid.UUID, date time.Time) ([]models.Meal, error) {
	return m.mealsByDateFunc(ctx, userID, date)
}

func (m *mockMealService) MealsByRange(ctx context.Context, userID uuid.UUID, start, end time.Time) ([]models.Meal, error) {
	return m.mealsByRangeFunc(ctx, userID, start, end)
}

func (m *mockMealService) MealsByType(ctx context.Context, userID uuid.UUID, mealType models.MealType) ([]models.Meal, error) {
	return m.mealsByTypeFunc(ctx, userID, mealType)
}

func (m *mockMealService) ImageURL(ctx context.Context, userID uuid.UUID, mealID int64, foodID int32) (string, error) {
	return m.imageURLFunc(ctx, userID, mealID, foodID)
}

func (m *mockMealService) History(ctx context.Context, userID uuid.UUID, days int) ([]models.MealHistoryEntry, error) {
	return m.historyFunc(ctx, userID, days)
}

func (m *mockMealService) MealStats(ctx context.Context, userID uuid.UUID) (*models.MealStats, error) {
	return m.mealStatsFunc(ctx, userID)
}

func (m *mockMealService) FavoriteFoods(ctx context.Context, userID uuid.UUID, limit int) ([]models.FoodFrequency, error) {
	return m.favoriteFoodsFunc(ctx, userID, limit)
}

type mockStatsService struct {
	reportFunc       func(ctx context.Context, userID uuid.UUID, kind statistics.Kind, start, end time.Time) (*statistics.Report, error)
	periodReportFunc func(ctx context.Context, userID uuid.UUID, kind statistics.Kind, period stats.Period, start, end time.Time) (*statistics.Report, error)
	dailyStatsFunc   func(ctx context.Context, userID uuid.UUID, start, end time.Time) ([]models.DailyFoods, error)
	overviewFunc     func(ctx context.Context, userID uuid.UUID, start, end time.Time) (*statistics.Overview, error)
	snapshotsFunc    func(ctx context.Context, userID uuid.UUID, rangeDays ...int) ([]*models.TagStatisticsSnapshot, error)
}

func (m *mockStatsService) Report(ctx context.Context, userID uuid.UUID, kind statistics.Kind, start, end time.Time) (*statistics.Report, error) {
	return m.reportFunc(ctx, userID, kind, start, end)
}

func (m *mockStatsService) PeriodReport(ctx context.Context, userID uuid.UUID, kind statistics.Kind, period stats.Period, start, end time.Time) (*statistics.Report, error) {
	return m.periodReportFunc(ctx, userID, kind, period, start, end)
}

func (m *mockStatsService) DailyStats(ctx context.Context, userID uuid.UUID, start, end time.Time) ([]models.DailyFoods, error) {
	return m.dailyStatsFunc(ctx, userID, start, end)
}

func (m *mockStatsService) Overview(ctx context.Context, userID uuid.UUID, start, end time.Time) (*statistics.Overview, error) {
	return m.overviewFunc(ctx, userID, start, end)
}

func (m *mockStatsService) Snapshots(ctx context.Context, userID uuid.UUID, rangeDays ...int) ([]*models.TagStatisticsSnapshot, error) {
	return m.snapshotsFunc(ctx, userID, rangeDays...)
}

type mockRefresher struct {
	mu    sync.Mutex
	calls [][]int
	err   error
}

func (m *mockRefresher) RequestRefresh(_ context.Context, _ uuid.UUID, rangeDays ...int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, rangeDays)
	return m.err
}

type mockHistory struct {
	history string
	err     error
	days    []int
}

func (m *mockHistory) HistoryJSON(_ context.Context, _ uuid.UUID, days int) (string, error) {
	m.days = append(m.days, days)
	return m.history, m.err
}

type mockAdvisor struct {
	analyzeFunc func(ctx context.Context, history string, profile *models.HealthProfile) (string, error)
	chunks      []string
	streamErr   error
}

func (m *mockAdvisor) AnalyzeMealTime(ctx context.Context, history string, profile *models.HealthProfile) (string, error) {
	return m.analyzeFunc(ctx, history, profile)
}

func (m *mockAdvisor) AnalyzeDietHealth(ctx context.Context, history string, profile *models.HealthProfile) (string, error) {
	return m.analyzeFunc(ctx, history, profile)
}

func (m *mockAdvisor) StreamMealTime(context.Context, string, *models.HealthProfile) (<-chan string, <-chan error) {
	return m.stream()
}

func (m *mockAdvisor) StreamDietHealth(context.Context, string, *models.HealthProfile) (<-chan string, <-chan error) {
	return m.stream()
}

func (m *mockAdvisor) stream() (<-chan string, <-chan error) {
	chunks := make(chan string, len(m.chunks))
	errs := make(chan error, 1)
	for _, c := range m.chunks {
		chunks <- c
	}
	close(chunks)
	if m.streamErr != nil {
		errs <- m.streamErr
	}
	close(errs)
	return chunks, errs
}

type mockRecommender struct {
	rec *ai.Recommendation
	err error
}

func (m *mockRecommender) Recommend(context.Context, string, *models.HealthProfile) (*ai.Recommendation, error) {
	return m.rec, m.err
}
