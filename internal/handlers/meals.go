package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/benvon/wte-api/internal/models"
	"github.com/benvon/wte-api/internal/services/meals"
	"github.com/benvon/wte-api/internal/storage"
	"github.com/benvon/wte-api/internal/validation"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

const (
	maxHistoryDays    = 90
	maxFavoriteFoods  = 50
	imageFormField    = "image"
	foodNameFormField = "food_name"
)

// MealService records meals and answers meal queries
type MealService interface {
	AddMeal(ctx context.Context, userID uuid.UUID, in meals.MealInput) (*models.Meal, error)
	UpdateMeal(ctx context.Context, userID uuid.UUID, mealID int64, in meals.MealInput) (*models.Meal, error)
	DeleteMeal(ctx context.Context, userID uuid.UUID, mealID int64) error
	AddFood(ctx context.Context, userID uuid.UUID, mealID int64, foodName string, img *meals.Image) (*models.MealFood, error)
	RemoveFood(ctx context.Context, userID uuid.UUID, mealID int64, foodID int32) error
	AddTag(ctx context.Context, userID uuid.UUID, mealID int64, foodID int32, tagName string) (*models.Tag, error)
	Meal(ctx context.Context, userID uuid.UUID, mealID int64) (*models.Meal, error)
	MealsByDate(ctx context.Context, userID uuid.UUID, date time.Time) ([]models.Meal, error)
	MealsByRange(ctx context.Context, userID uuid.UUID, start, end time.Time) ([]models.Meal, error)
	MealsByType(ctx context.Context, userID uuid.UUID, mealType models.MealType) ([]models.Meal, error)
	ImageURL(ctx context.Context, userID uuid.UUID, mealID int64, foodID int32) (string, error)
	History(ctx context.Context, userID uuid.UUID, days int) ([]models.MealHistoryEntry, error)
	MealStats(ctx context.Context, userID uuid.UUID) (*models.MealStats, error)
	FavoriteFoods(ctx context.Context, userID uuid.UUID, limit int) ([]models.FoodFrequency, error)
}

// MealHandler handles meal-related HTTP requests
type MealHandler struct {
	meals  MealService
	logger *zap.Logger
}

// NewMealHandler creates a new meal handler
func NewMealHandler(mealService MealService, logger *zap.Logger) *MealHandler {
	return &MealHandler{meals: mealService, logger: logger}
}

// RegisterRoutes registers meal routes.
// The router should already have the /api/v1/meals prefix.
func (h *MealHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("", h.ListMeals).Methods("GET")
	r.HandleFunc("", h.CreateMeal).Methods("POST")
	r.HandleFunc("/stats", h.GetMealStats).Methods("GET")
	r.HandleFunc("/favorites", h.GetFavoriteFoods).Methods("GET")
	r.HandleFunc("/history", h.GetHistory).Methods("GET")
	r.HandleFunc("/{id:[0-9]+}", h.GetMeal).Methods("GET")
	r.HandleFunc("/{id:[0-9]+}", h.UpdateMeal).Methods("PUT")
	r.HandleFunc("/{id:[0-9]+}", h.DeleteMeal).Methods("DELETE")
	r.HandleFunc("/{id:[0-9]+}/foods/{foodId:[0-9]+}", h.RemoveFood).Methods("DELETE")
	r.HandleFunc("/{id:[0-9]+}/foods/{foodId:[0-9]+}/tags", h.AddTag).Methods("POST")
	r.HandleFunc("/{id:[0-9]+}/foods/{foodId:[0-9]+}/image", h.GetFoodImage).Methods("GET")
}

// RegisterUploadRoutes registers the food creation route, which accepts
// multipart photo uploads and needs a larger body limit than the rest.
func (h *MealHandler) RegisterUploadRoutes(r *mux.Router) {
	r.HandleFunc("/{id:[0-9]+}/foods", h.AddFood).Methods("POST")
}

// MealRequest represents a create or update meal request
type MealRequest struct {
	MealType string `json:"meal_type" validate:"required,meal_type"`
	MealDate string `json:"meal_date" validate:"required,datetime=2006-01-02"`
	MealTime string `json:"meal_time" validate:"required,meal_time"`
}

// AddFoodRequest represents a JSON add food request
type AddFoodRequest struct {
	FoodName string `json:"food_name" validate:"required,max=100"`
}

// AddTagRequest represents an add tag request
type AddTagRequest struct {
	TagName string `json:"tag_name" validate:"required,max=50"`
}

// ImageURLResponse carries a time-limited link to a food photo
type ImageURLResponse struct {
	URL string `json:"url"`
}

func (req MealRequest) input() (meals.MealInput, error) {
	date, err := parseDate(req.MealDate)
	if err != nil {
		return meals.MealInput{}, err
	}
	return meals.MealInput{
		MealType: models.MealType(req.MealType),
		MealDate: date,
		MealTime: req.MealTime,
	}, nil
}

// CreateMeal records a new meal
func (h *MealHandler) CreateMeal(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	var req MealRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	in, err := req.input()
	if err != nil {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}

	meal, err := h.meals.AddMeal(r.Context(), user.ID, in)
	if err != nil {
		respondServiceError(w, r, h.logger, err, "create meal")
		return
	}

	respondJSON(w, http.StatusCreated, meal)
}

// ListMeals lists meals by date, date range or meal type. Without filters it
// returns the meals of the last seven days.
func (h *MealHandler) ListMeals(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	var (
		list []models.Meal
		err  error
	)
	switch {
	case q.Get("date") != "":
		date, perr := parseDate(q.Get("date"))
		if perr != nil {
			respondJSONError(w, http.StatusBadRequest, "Bad Request", perr.Error())
			return
		}
		list, err = h.meals.MealsByDate(r.Context(), user.ID, date)
	case q.Get("type") != "":
		if verr := validation.ValidateMealType(q.Get("type")); verr != nil {
			respondJSONError(w, http.StatusBadRequest, "Bad Request", verr.Error())
			return
		}
		list, err = h.meals.MealsByType(r.Context(), user.ID, models.MealType(q.Get("type")))
	default:
		start, end, perr := parseRange(r, time.Now())
		if perr != nil {
			respondJSONError(w, http.StatusBadRequest, "Bad Request", perr.Error())
			return
		}
		list, err = h.meals.MealsByRange(r.Context(), user.ID, start, end)
	}
	if err != nil {
		respondServiceError(w, r, h.logger, err, "list meals")
		return
	}
	if list == nil {
		list = []models.Meal{}
	}

	respondJSON(w, http.StatusOK, list)
}

// GetMeal returns a single meal with its foods and tags
func (h *MealHandler) GetMeal(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	mealID, err := pathInt64(r, "id")
	if err != nil {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}

	meal, err := h.meals.Meal(r.Context(), user.ID, mealID)
	if err != nil {
		respondServiceError(w, r, h.logger, err, "get meal")
		return
	}

	respondJSON(w, http.StatusOK, meal)
}

// UpdateMeal changes the type, date and time of a meal
func (h *MealHandler) UpdateMeal(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	mealID, err := pathInt64(r, "id")
	if err != nil {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}

	var req MealRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	in, err := req.input()
	if err != nil {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}

	meal, err := h.meals.UpdateMeal(r.Context(), user.ID, mealID, in)
	if err != nil {
		respondServiceError(w, r, h.logger, err, "update meal")
		return
	}

	respondJSON(w, http.StatusOK, meal)
}

// DeleteMeal removes a meal and everything recorded in it
func (h *MealHandler) DeleteMeal(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	mealID, err := pathInt64(r, "id")
	if err != nil {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}

	if err := h.meals.DeleteMeal(r.Context(), user.ID, mealID); err != nil {
		respondServiceError(w, r, h.logger, err, "delete meal")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// AddFood adds a food to a meal. The body is either JSON or a multipart form
// with a food_name field and an optional image file.
func (h *MealHandler) AddFood(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	mealID, err := pathInt64(r, "id")
	if err != nil {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}

	var (
		foodName string
		img      *meals.Image
	)
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		foodName, img, err = readFoodForm(r)
		if bodyTooLarge(err) {
			respondJSONError(w, http.StatusRequestEntityTooLarge, "Request Entity Too Large", "image too large")
			return
		}
		if err != nil {
			respondJSONError(w, http.StatusBadRequest, "Bad Request", err.Error())
			return
		}
	} else {
		var req AddFoodRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		foodName = req.FoodName
	}

	food, err := h.meals.AddFood(r.Context(), user.ID, mealID, validation.SanitizeText(foodName), img)
	if err != nil {
		respondServiceError(w, r, h.logger, err, "add food")
		return
	}

	respondJSON(w, http.StatusCreated, food)
}

// readFoodForm reads the food name and optional photo of a multipart request
func readFoodForm(r *http.Request) (string, *meals.Image, error) {
	if err := r.ParseMultipartForm(meals.MaxImageSize); err != nil {
		if bodyTooLarge(err) {
			return "", nil, err
		}
		return "", nil, errors.New("invalid multipart form")
	}

	foodName := strings.TrimSpace(r.FormValue(foodNameFormField))
	if foodName == "" {
		return "", nil, errors.New("food_name is required")
	}

	file, header, err := r.FormFile(imageFormField)
	if errors.Is(err, http.ErrMissingFile) {
		return foodName, nil, nil
	}
	if err != nil {
		return "", nil, errors.New("invalid image upload")
	}
	defer func() { _ = file.Close() }()

	data, err := io.ReadAll(io.LimitReader(file, meals.MaxImageSize+1))
	if err != nil {
		return "", nil, errors.New("failed to read image")
	}

	contentType := header.Header.Get("Content-Type")
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = storage.ContentTypeFor(header.Filename)
	}

	return foodName, &meals.Image{
		Filename:    header.Filename,
		ContentType: contentType,
		Data:        data,
	}, nil
}

// RemoveFood deletes a food from a meal
func (h *MealHandler) RemoveFood(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	mealID, foodID, ok := mealAndFoodIDs(w, r)
	if !ok {
		return
	}

	if err := h.meals.RemoveFood(r.Context(), user.ID, mealID, foodID); err != nil {
		respondServiceError(w, r, h.logger, err, "remove food")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// AddTag attaches a tag to a food, creating the tag if needed
func (h *MealHandler) AddTag(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	mealID, foodID, ok := mealAndFoodIDs(w, r)
	if !ok {
		return
	}

	var req AddTagRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	tag, err := h.meals.AddTag(r.Context(), user.ID, mealID, foodID, validation.SanitizeText(req.TagName))
	if err != nil {
		respondServiceError(w, r, h.logger, err, "add tag")
		return
	}

	respondJSON(w, http.StatusCreated, tag)
}

// GetFoodImage returns a signed URL of the food photo, or redirects to it
// when redirect=true
func (h *MealHandler) GetFoodImage(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	mealID, foodID, ok := mealAndFoodIDs(w, r)
	if !ok {
		return
	}

	url, err := h.meals.ImageURL(r.Context(), user.ID, mealID, foodID)
	if err != nil {
		respondServiceError(w, r, h.logger, err, "get food image")
		return
	}

	if r.URL.Query().Get("redirect") == "true" {
		http.Redirect(w, r, url, http.StatusFound)
		return
	}
	respondJSON(w, http.StatusOK, ImageURLResponse{URL: url})
}

// GetMealStats returns meal counts of the current user
func (h *MealHandler) GetMealStats(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	result, err := h.meals.MealStats(r.Context(), user.ID)
	if err != nil {
		respondServiceError(w, r, h.logger, err, "get meal stats")
		return
	}

	respondJSON(w, http.StatusOK, result)
}

// GetFavoriteFoods returns the most frequently eaten foods
func (h *MealHandler) GetFavoriteFoods(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	limit := queryInt(r, "limit", meals.DefaultFavoriteLimit, maxFavoriteFoods)
	foods, err := h.meals.FavoriteFoods(r.Context(), user.ID, limit)
	if err != nil {
		respondServiceError(w, r, h.logger, err, "get favorite foods")
		return
	}
	if foods == nil {
		foods = []models.FoodFrequency{}
	}

	respondJSON(w, http.StatusOK, foods)
}

// GetHistory returns the compact meal history used for dietary advice
func (h *MealHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	days := queryInt(r, "days", meals.DefaultHistoryDays, maxHistoryDays)
	entries, err := h.meals.History(r.Context(), user.ID, days)
	if err != nil {
		respondServiceError(w, r, h.logger, err, "get meal history")
		return
	}

	respondJSON(w, http.StatusOK, entries)
}

func mealAndFoodIDs(w http.ResponseWriter, r *http.Request) (int64, int32, bool) {
	mealID, err := pathInt64(r, "id")
	if err != nil {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", err.Error())
		return 0, 0, false
	}
	foodID, err := pathInt32(r, "foodId")
	if err != nil {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", err.Error())
		return 0, 0, false
	}
	return mealID, foodID, true
}
