package middleware

import (
	"net/http"

	logpkg "github.com/benvon/wte-api/internal/logger"
	"github.com/benvon/wte-api/internal/request"
	"github.com/google/uuid"
)

// RequestID propagates the caller's X-Request-ID or assigns a new one
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := logpkg.SanitizeString(r.Header.Get(request.RequestIDHeader), 64)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(request.RequestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(request.WithRequestID(r.Context(), id)))
	})
}
