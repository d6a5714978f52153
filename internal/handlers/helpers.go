package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/benvon/wte-api/internal/database"
	logpkg "github.com/benvon/wte-api/internal/logger"
	"github.com/benvon/wte-api/internal/models"
	"github.com/benvon/wte-api/internal/request"
	"github.com/benvon/wte-api/internal/services/ai"
	"github.com/benvon/wte-api/internal/services/auth"
	"github.com/benvon/wte-api/internal/services/meals"
	"github.com/benvon/wte-api/internal/services/suggest"
	"github.com/benvon/wte-api/internal/stats"
	"github.com/benvon/wte-api/internal/validation"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// dateLayout is the layout of every date query and path parameter
const dateLayout = "2006-01-02"

const (
	// defaultRangeDays is the window used when a request names no range
	defaultRangeDays = 7
	// maxRangeDays bounds how many calendar days one range query may span
	maxRangeDays = 366
)

// respondJSON sends a JSON response
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	response := map[string]any{
		"success":   true,
		"data":      data,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}

	if err := json.NewEncoder(w).Encode(response); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}

// sanitizeErrorMessage removes internal details from error messages
func sanitizeErrorMessage(message string) string {
	return logpkg.SanitizeString(message, logpkg.MaxErrorMessageLength)
}

// respondJSONError sends an error JSON response with sanitized error messages
func respondJSONError(w http.ResponseWriter, status int, errorType, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	response := map[string]any{
		"success":   false,
		"error":     errorType,
		"message":   sanitizeErrorMessage(message),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}

	if err := json.NewEncoder(w).Encode(response); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}

// respondServiceError maps a service error to its HTTP status. Unexpected
// errors are logged and answered with a generic message.
func respondServiceError(w http.ResponseWriter, r *http.Request, logger *zap.Logger, err error, action string) {
	switch {
	case errors.Is(err, database.ErrNotFound):
		respondJSONError(w, http.StatusNotFound, "Not Found", action+": not found")
	case errors.Is(err, suggest.ErrNoFoods):
		respondJSONError(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ai.ErrUnrecognized):
		respondJSONError(w, http.StatusUnprocessableEntity, "Unprocessable Entity", "No food recognized in the image")
	case errors.Is(err, meals.ErrInvalidMeal),
		errors.Is(err, suggest.ErrEmptyChoices),
		errors.Is(err, stats.ErrInvalidRange),
		errors.Is(err, database.ErrInvalidName),
		errors.Is(err, auth.ErrWeakPassword):
		respondJSONError(w, http.StatusBadRequest, "Bad Request", err.Error())
	case errors.Is(err, database.ErrDuplicateTag), errors.Is(err, database.ErrUserExists):
		respondJSONError(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, auth.ErrInvalidCredentials):
		respondJSONError(w, http.StatusUnauthorized, "Unauthorized", "Invalid username or password")
	case errors.Is(err, ai.ErrNotConfigured):
		respondJSONError(w, http.StatusServiceUnavailable, "Service Unavailable", "AI advice is not configured")
	case ai.IsRateLimitError(err), ai.IsQuotaError(err):
		w.Header().Set("Retry-After", strconv.Itoa(int(ai.GetRetryDelay(err, 0).Seconds())))
		respondJSONError(w, http.StatusTooManyRequests, "Too Many Requests", "AI service is busy, try again later")
	default:
		logger.Error("request_failed",
			zap.String("action", action),
			zap.String("path", logpkg.SanitizePath(r.URL.Path)),
			zap.String("request_id", request.RequestID(r.Context())),
			zap.String("error", logpkg.SanitizeError(err)),
		)
		respondJSONError(w, http.StatusInternalServerError, "Internal Server Error", "Failed to "+action)
	}
}

// currentUser returns the authenticated user or answers 401
func currentUser(w http.ResponseWriter, r *http.Request) (*models.User, bool) {
	user := request.UserFromContext(r)
	if user == nil {
		respondJSONError(w, http.StatusUnauthorized, "Unauthorized", "User not found in context")
		return nil, false
	}
	return user, true
}

// decodeJSON decodes and validates a JSON request body into dst
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		if bodyTooLarge(err) {
			respondJSONError(w, http.StatusRequestEntityTooLarge, "Request Entity Too Large", "Request body too large")
			return false
		}
		respondJSONError(w, http.StatusBadRequest, "Bad Request", "Invalid request body")
		return false
	}
	if err := validation.Validate.Struct(dst); err != nil {
		respondJSONError(w, http.StatusBadRequest, "Validation Error", err.Error())
		return false
	}
	return true
}

// bodyTooLarge reports whether err comes from a body cut off by the request size limit
func bodyTooLarge(err error) bool {
	var mbe *http.MaxBytesError
	return errors.As(err, &mbe)
}

// parseDate parses a yyyy-MM-dd value in UTC
func parseDate(value string) (time.Time, error) {
	t, err := time.ParseInLocation(dateLayout, value, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q (want yyyy-MM-dd)", value)
	}
	return t, nil
}

// parseRange reads start and end query parameters. Missing bounds default to
// the last seven days ending today. Ranges longer than maxRangeDays are rejected.
func parseRange(r *http.Request, now time.Time) (time.Time, time.Time, error) {
	q := r.URL.Query()
	def := stats.LastDays(now, defaultRangeDays)
	start, end := def.Start, def.End

	if v := q.Get("end"); v != "" {
		t, err := parseDate(v)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		end = t
		if q.Get("start") == "" {
			start = end.AddDate(0, 0, -(defaultRangeDays - 1))
		}
	}
	if v := q.Get("start"); v != "" {
		t, err := parseDate(v)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		start = t
	}
	if days := int(end.Sub(start).Hours()/24) + 1; days > maxRangeDays {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: range spans %d days, at most %d allowed",
			stats.ErrInvalidRange, days, maxRangeDays)
	}
	return start, end, nil
}

// pathInt64 reads a positive integer path variable
func pathInt64(r *http.Request, name string) (int64, error) {
	v, err := strconv.ParseInt(mux.Vars(r)[name], 10, 64)
	if err != nil || v <= 0 {
		return 0, fmt.Errorf("invalid %s", name)
	}
	return v, nil
}

// pathInt32 reads a positive 32-bit integer path variable
func pathInt32(r *http.Request, name string) (int32, error) {
	v, err := strconv.ParseInt(mux.Vars(r)[name], 10, 32)
	if err != nil || v <= 0 {
		return 0, fmt.Errorf("invalid %s", name)
	}
	return int32(v), nil
}

// queryInt reads an integer query parameter bounded to [1, max]
func queryInt(r *http.Request, name string, def, max int) int {
	v, err := strconv.Atoi(r.URL.Query().Get(name))
	if err != nil || v < 1 {
		return def
	}
	if v > max {
		return max
	}
	return v
}
