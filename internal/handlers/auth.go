package handlers

import (
	"context"
	"net/http"

	"github.com/benvon/wte-api/internal/models"
	"github.com/benvon/wte-api/internal/services/auth"
	"github.com/benvon/wte-api/internal/validation"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// AuthService registers users and issues sessions
type AuthService interface {
	Register(ctx context.Context, username, email, password string) (*auth.Session, error)
	Login(ctx context.Context, username, password string) (*auth.Session, error)
}

// ProfileStore persists the health profile of a user
type ProfileStore interface {
	UpdateProfile(ctx context.Context, user *models.User) error
}

// AuthHandler handles authentication and profile requests
type AuthHandler struct {
	auth     AuthService
	profiles ProfileStore
	logger   *zap.Logger
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(authService AuthService, profiles ProfileStore, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{auth: authService, profiles: profiles, logger: logger}
}

// RegisterRoutes registers the public auth routes.
// The router should already have the /api/v1/auth prefix.
func (h *AuthHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/register", h.Register).Methods("POST")
	r.HandleFunc("/login", h.Login).Methods("POST")
}

// RegisterUserRoutes registers the authenticated profile routes.
// The router should already have the /api/v1/users prefix.
func (h *AuthHandler) RegisterUserRoutes(r *mux.Router) {
	r.HandleFunc("/me", h.GetMe).Methods("GET")
	r.HandleFunc("/me", h.UpdateMe).Methods("PUT")
}

// RegisterRequest represents a registration request
type RegisterRequest struct {
	Username string `json:"username" validate:"required,min=3,max=50"`
	Email    string `json:"email" validate:"required,email,max=255"`
	Password string `json:"password" validate:"required,min=8,max=128"`
}

// LoginRequest represents a login request
type LoginRequest struct {
	Username string `json:"username" validate:"required,max=50"`
	Password string `json:"password" validate:"required,max=128"`
}

// UpdateProfileRequest represents a health profile update
type UpdateProfileRequest struct {
	Height     *float64 `json:"height,omitempty" validate:"omitempty,gt=0,lt=300"`
	Weight     *float64 `json:"weight,omitempty" validate:"omitempty,gt=0,lt=500"`
	HealthGoal *string  `json:"health_goal,omitempty" validate:"omitempty,max=500"`
	Allergies  *string  `json:"allergies,omitempty" validate:"omitempty,max=500"`
}

// Register creates an account and returns a session
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	session, err := h.auth.Register(r.Context(), validation.SanitizeText(req.Username), req.Email, req.Password)
	if err != nil {
		respondServiceError(w, r, h.logger, err, "register")
		return
	}

	respondJSON(w, http.StatusCreated, session)
}

// Login verifies credentials and returns a session
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	session, err := h.auth.Login(r.Context(), validation.SanitizeText(req.Username), req.Password)
	if err != nil {
		respondServiceError(w, r, h.logger, err, "log in")
		return
	}

	respondJSON(w, http.StatusOK, session)
}

// GetMe returns current user information
func (h *AuthHandler) GetMe(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	respondJSON(w, http.StatusOK, user)
}

// UpdateMe updates the health profile of the current user. Omitted fields keep their value.
func (h *AuthHandler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	var req UpdateProfileRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	updated := *user
	if req.Height != nil {
		updated.Height = req.Height
	}
	if req.Weight != nil {
		updated.Weight = req.Weight
	}
	if req.HealthGoal != nil {
		goal := validation.SanitizeText(*req.HealthGoal)
		updated.HealthGoal = &goal
	}
	if req.Allergies != nil {
		allergies := validation.SanitizeText(*req.Allergies)
		updated.Allergies = &allergies
	}

	if err := h.profiles.UpdateProfile(r.Context(), &updated); err != nil {
		respondServiceError(w, r, h.logger, err, "update profile")
		return
	}

	respondJSON(w, http.StatusOK, &updated)
}
