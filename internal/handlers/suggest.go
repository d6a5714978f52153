package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/benvon/wte-api/internal/models"
	"github.com/benvon/wte-api/internal/services/suggest"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// FoodPicker chooses foods at random
type FoodPicker interface {
	RandomFood(ctx context.Context, userID uuid.UUID, excludeDays int) (*models.Food, error)
	HealthyFood(ctx context.Context) (*models.Food, error)
	Pick(names []string) (string, error)
}

// SuggestHandler answers "what should I eat" without asking the LLM
type SuggestHandler struct {
	picker FoodPicker
	logger *zap.Logger
}

// NewSuggestHandler creates a new suggestion handler
func NewSuggestHandler(picker FoodPicker, logger *zap.Logger) *SuggestHandler {
	return &SuggestHandler{picker: picker, logger: logger}
}

// RegisterRoutes registers suggestion routes.
// The router should already have the /api/v1/advice prefix.
func (h *SuggestHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/random", h.RandomFood).Methods("GET")
	r.HandleFunc("/healthy", h.HealthyFood).Methods("GET")
	r.HandleFunc("/pick", h.Pick).Methods("POST")
}

// PickRequest lists the candidates the user is deciding between
type PickRequest struct {
	Choices []string `json:"choices" validate:"required,min=1,max=100,dive,max=100"`
}

// PickResponse is the chosen candidate
type PickResponse struct {
	Choice string `json:"choice"`
}

// RandomFood handles GET /api/v1/advice/random?exclude_recent=
func (h *SuggestHandler) RandomFood(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	excludeDays := 0
	if v := r.URL.Query().Get("exclude_recent"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 || n > suggest.MaxExcludeDays {
			respondJSONError(w, http.StatusBadRequest, "Bad Request",
				"exclude_recent must be a number of days between 0 and "+strconv.Itoa(suggest.MaxExcludeDays))
			return
		}
		excludeDays = n
	}

	food, err := h.picker.RandomFood(r.Context(), user.ID, excludeDays)
	if err != nil {
		respondServiceError(w, r, h.logger, err, "pick food")
		return
	}
	respondJSON(w, http.StatusOK, food)
}

// HealthyFood handles GET /api/v1/advice/healthy
func (h *SuggestHandler) HealthyFood(w http.ResponseWriter, r *http.Request) {
	if _, ok := currentUser(w, r); !ok {
		return
	}

	food, err := h.picker.HealthyFood(r.Context())
	if err != nil {
		respondServiceError(w, r, h.logger, err, "pick healthy food")
		return
	}
	respondJSON(w, http.StatusOK, food)
}

// Pick handles POST /api/v1/advice/pick
func (h *SuggestHandler) Pick(w http.ResponseWriter, r *http.Request) {
	if _, ok := currentUser(w, r); !ok {
		return
	}
	var req PickRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	choice, err := h.picker.Pick(req.Choices)
	if err != nil {
		respondServiceError(w, r, h.logger, err, "pick")
		return
	}
	respondJSON(w, http.StatusOK, PickResponse{Choice: choice})
}
