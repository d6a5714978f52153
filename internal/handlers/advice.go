package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/benvon/wte-api/internal/models"
	"github.com/benvon/wte-api/internal/services/ai"
	"github.com/benvon/wte-api/internal/services/meals"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// HistorySource exports the meal history passed to advice prompts
type HistorySource interface {
	HistoryJSON(ctx context.Context, userID uuid.UUID, days int) (string, error)
}

// Advisor produces dietary advice from a meal history
type Advisor interface {
	AnalyzeMealTime(ctx context.Context, history string, profile *models.HealthProfile) (string, error)
	AnalyzeDietHealth(ctx context.Context, history string, profile *models.HealthProfile) (string, error)
	StreamMealTime(ctx context.Context, history string, profile *models.HealthProfile) (<-chan string, <-chan error)
	StreamDietHealth(ctx context.Context, history string, profile *models.HealthProfile) (<-chan string, <-chan error)
}

// Recommender suggests a food to eat next
type Recommender interface {
	Recommend(ctx context.Context, history string, profile *models.HealthProfile) (*ai.Recommendation, error)
}

type (
	analyzeFunc func(context.Context, string, *models.HealthProfile) (string, error)
	streamFunc  func(context.Context, string, *models.HealthProfile) (<-chan string, <-chan error)
)

// AdviceHandler handles dietary advice requests
type AdviceHandler struct {
	history     HistorySource
	advisor     Advisor
	recommender Recommender
	logger      *zap.Logger
}

// NewAdviceHandler creates a new advice handler
func NewAdviceHandler(history HistorySource, advisor Advisor, recommender Recommender, logger *zap.Logger) *AdviceHandler {
	return &AdviceHandler{
		history:     history,
		advisor:     advisor,
		recommender: recommender,
		logger:      logger,
	}
}

// RegisterRoutes registers advice routes.
// The router should already have the /api/v1/advice prefix.
func (h *AdviceHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/meal-time", h.advise(h.advisor.AnalyzeMealTime, h.advisor.StreamMealTime)).Methods("POST")
	r.HandleFunc("/health", h.advise(h.advisor.AnalyzeDietHealth, h.advisor.StreamDietHealth)).Methods("POST")
	r.HandleFunc("/recommendation", h.Recommend).Methods("POST")
}

// AdviceResponse is the complete advice text
type AdviceResponse struct {
	Advice string `json:"advice"`
}

// advise answers with the whole advice, or streams it as server-sent events when stream=true
func (h *AdviceHandler) advise(analyze analyzeFunc, stream streamFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := currentUser(w, r)
		if !ok {
			return
		}
		history, ok := h.loadHistory(w, r, user)
		if !ok {
			return
		}
		profile := user.Profile()

		if r.URL.Query().Get("stream") == "true" {
			chunks, errs := stream(r.Context(), history, &profile)
			h.streamAdvice(w, r, chunks, errs)
			return
		}

		advice, err := analyze(r.Context(), history, &profile)
		if err != nil {
			respondServiceError(w, r, h.logger, err, "get advice")
			return
		}
		respondJSON(w, http.StatusOK, AdviceResponse{Advice: advice})
	}
}

// Recommend suggests one healthy food based on the meal history
func (h *AdviceHandler) Recommend(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	history, ok := h.loadHistory(w, r, user)
	if !ok {
		return
	}
	profile := user.Profile()

	rec, err := h.recommender.Recommend(r.Context(), history, &profile)
	if err != nil {
		respondServiceError(w, r, h.logger, err, "get recommendation")
		return
	}
	respondJSON(w, http.StatusOK, rec)
}

func (h *AdviceHandler) loadHistory(w http.ResponseWriter, r *http.Request, user *models.User) (string, bool) {
	days := queryInt(r, "days", meals.DefaultHistoryDays, maxHistoryDays)
	history, err := h.history.HistoryJSON(r.Context(), user.ID, days)
	if err != nil {
		respondServiceError(w, r, h.logger, err, "load meal history")
		return "", false
	}
	return history, true
}

// streamAdvice relays chunks as SSE messages until the stream ends or the client leaves
func (h *AdviceHandler) streamAdvice(w http.ResponseWriter, r *http.Request, chunks <-chan string, errs <-chan error) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	rc := http.NewResponseController(w)
	send := func(event string, data any) bool {
		if _, err := fmt.Fprintf(w, "data: %s\n\n", formatSSEMessage(event, data)); err != nil {
			return false
		}
		_ = rc.Flush()
		return true
	}

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case chunk, ok := <-chunks:
			if !ok {
				if err := <-errs; err != nil {
					h.logger.Warn("advice_stream_error", zap.Error(err))
					send("error", map[string]string{"message": streamErrorMessage(err)})
					return
				}
				send("done", map[string]string{})
				return
			}
			if !send("chunk", map[string]string{"content": chunk}) {
				return
			}
		}
	}
}

func streamErrorMessage(err error) string {
	switch {
	case ai.IsRateLimitError(err), ai.IsQuotaError(err):
		return "AI service is busy, try again later"
	case errors.Is(err, ai.ErrNotConfigured):
		return "AI advice is not configured"
	default:
		return "Failed to get advice"
	}
}

// formatSSEMessage formats a message for SSE
func formatSSEMessage(event string, data any) string {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return ""
	}
	return fmt.Sprintf(`{"event":"%s","data":%s}`, event, string(jsonData))
}
