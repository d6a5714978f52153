package handlers

import (
	"context"
	"net/http"

	"github.com/benvon/wte-api/internal/models"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

const (
	defaultCatalogLimit = 20
	maxCatalogLimit     = 100
)

// FoodSearcher looks up foods by name fragment
type FoodSearcher interface {
	Search(ctx context.Context, query string, limit int) ([]models.Food, error)
}

// TagLister lists the known tags
type TagLister interface {
	List(ctx context.Context) ([]models.Tag, error)
}

// CatalogHandler serves the shared food and tag catalog used for autocompletion
type CatalogHandler struct {
	foods  FoodSearcher
	tags   TagLister
	logger *zap.Logger
}

// NewCatalogHandler creates a new catalog handler
func NewCatalogHandler(foods FoodSearcher, tags TagLister, logger *zap.Logger) *CatalogHandler {
	return &CatalogHandler{foods: foods, tags: tags, logger: logger}
}

// RegisterRoutes registers catalog routes.
// The router should already have the /api/v1/catalog prefix.
func (h *CatalogHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/foods", h.SearchFoods).Methods("GET")
	r.HandleFunc("/tags", h.ListTags).Methods("GET")
}

// SearchFoods handles GET /api/v1/catalog/foods?q=&limit=
func (h *CatalogHandler) SearchFoods(w http.ResponseWriter, r *http.Request) {
	if _, ok := currentUser(w, r); !ok {
		return
	}
	limit := queryInt(r, "limit", defaultCatalogLimit, maxCatalogLimit)

	foods, err := h.foods.Search(r.Context(), r.URL.Query().Get("q"), limit)
	if err != nil {
		respondServiceError(w, r, h.logger, err, "search foods")
		return
	}
	if foods == nil {
		foods = []models.Food{}
	}
	respondJSON(w, http.StatusOK, foods)
}

// ListTags handles GET /api/v1/catalog/tags
func (h *CatalogHandler) ListTags(w http.ResponseWriter, r *http.Request) {
	if _, ok := currentUser(w, r); !ok {
		return
	}

	tags, err := h.tags.List(r.Context())
	if err != nil {
		respondServiceError(w, r, h.logger, err, "list tags")
		return
	}
	if tags == nil {
		tags = []models.Tag{}
	}
	respondJSON(w, http.StatusOK, tags)
}
