package suggest

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"slices"
	"strings"
	"sync"
	"time"

	logpkg "github.com/benvon/wte-api/internal/logger"
	"github.com/benvon/wte-api/internal/models"
	"github.com/benvon/wte-api/internal/stats"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Errors returned by the picker
var (
	ErrNoFoods      = errors.New("no foods to choose from")
	ErrEmptyChoices = errors.New("choice list is empty")
)

// HealthyKeywords mark catalog foods preferred by HealthyFood
var HealthyKeywords = []string{"蔬菜", "水果"}

// MaxExcludeDays bounds how far back recently eaten foods are excluded
const MaxExcludeDays = 90

// FoodCatalog lists every known food
type FoodCatalog interface {
	List(ctx context.Context) ([]models.Food, error)
}

// RecentFoods lists the foods a user ate within a range
type RecentFoods interface {
	RecentFoodIDs(ctx context.Context, userID uuid.UUID, dr stats.DateRange) ([]int32, error)
}

// Service picks foods at random from the shared catalog
type Service struct {
	catalog FoodCatalog
	recent  RecentFoods
	logger  *zap.Logger
	now     func() time.Time

	mu  sync.Mutex
	rng *rand.Rand
}

// NewService creates a picker seeded from the clock
func NewService(catalog FoodCatalog, recent RecentFoods, logger *zap.Logger) *Service {
	seed := uint64(time.Now().UnixNano())
	return NewSeededService(catalog, recent, logger, seed)
}

// NewSeededService creates a picker whose choices are reproducible for a seed
func NewSeededService(catalog FoodCatalog, recent RecentFoods, logger *zap.Logger, seed uint64) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		catalog: catalog,
		recent:  recent,
		logger:  logger,
		now:     time.Now,
		rng:     rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}
}

// RandomFood picks any catalog food, skipping foods the user ate in the
// last excludeDays days. Zero excludes nothing.
func (s *Service) RandomFood(ctx context.Context, userID uuid.UUID, excludeDays int) (*models.Food, error) {
	foods, err := s.catalog.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list foods: %w", err)
	}

	if excludeDays > 0 {
		dr := stats.LastDays(s.now(), min(excludeDays, MaxExcludeDays))
		recent, err := s.recent.RecentFoodIDs(ctx, userID, dr)
		if err != nil {
			return nil, fmt.Errorf("failed to load recent foods: %w", err)
		}
		foods = slices.DeleteFunc(foods, func(f models.Food) bool {
			return slices.Contains(recent, f.ID)
		})
	}

	if len(foods) == 0 {
		return nil, ErrNoFoods
	}
	food := foods[s.intN(len(foods))]

	s.logger.Debug("random_food_picked",
		zap.String("user_id", logpkg.SanitizeUserID(userID.String())),
		zap.Int("candidates", len(foods)),
		zap.String("food", logpkg.SanitizeName(food.Name)),
	)
	return &food, nil
}

// HealthyFood picks among foods named after a healthy category, falling back
// to the first catalog food when none matches
func (s *Service) HealthyFood(ctx context.Context) (*models.Food, error) {
	foods, err := s.catalog.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list foods: %w", err)
	}
	if len(foods) == 0 {
		return nil, ErrNoFoods
	}

	var healthy []models.Food
	for _, f := range foods {
		if isHealthy(f.Name) {
			healthy = append(healthy, f)
		}
	}
	if len(healthy) == 0 {
		food := foods[0]
		return &food, nil
	}
	food := healthy[s.intN(len(healthy))]
	return &food, nil
}

// Pick returns one of the given names at random. Blank names are ignored.
func (s *Service) Pick(names []string) (string, error) {
	choices := make([]string, 0, len(names))
	for _, n := range names {
		if n = strings.TrimSpace(n); n != "" {
			choices = append(choices, n)
		}
	}
	if len(choices) == 0 {
		return "", ErrEmptyChoices
	}
	return choices[s.intN(len(choices))], nil
}

func (s *Service) intN(n int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.IntN(n)
}

func isHealthy(name string) bool {
	for _, kw := range HealthyKeywords {
		if strings.Contains(name, kw) {
			return true
		}
	}
	return false
}
