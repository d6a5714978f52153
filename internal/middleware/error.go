package middleware

import (
	"encoding/json"
	"net/http"
	"time"

	logpkg "github.com/benvon/wte-api/internal/logger"
	"github.com/benvon/wte-api/internal/request"
	"go.uber.org/zap"
)

// ErrorResponse is the error envelope written by middleware. It carries the
// handlers' fields plus the path and request ID so clients can quote them.
type ErrorResponse struct {
	Success   bool   `json:"success"`
	Error     string `json:"error"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
	Path      string `json:"path"`
	RequestID string `json:"request_id,omitempty"`
}

// ErrorHandler recovers handler panics. The panic is logged with its stack and
// answered with a JSON 500 unless the handler had already started its response,
// as a streamed advice reply has. http.ErrAbortHandler is re-raised so the
// server drops the connection.
func ErrorHandler(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rec := newStatusRecorder(w)
			defer func() {
				p := recover()
				if p == nil {
					return
				}
				if p == http.ErrAbortHandler {
					panic(p)
				}

				logger.Error("handler_panic",
					zap.Any("panic", p),
					zap.String("method", r.Method),
					zap.String("path", logpkg.SanitizePath(r.URL.Path)),
					zap.String("request_id", request.RequestID(r.Context())),
					zap.Bool("response_started", rec.wroteHeader),
					zap.Stack("stack"),
				)
				if rec.wroteHeader {
					return
				}
				writeError(w, r, http.StatusInternalServerError, "Internal Server Error", "An unexpected error occurred")
			}()

			next.ServeHTTP(rec, r)
		})
	}
}

// writeError answers with an ErrorResponse
func writeError(w http.ResponseWriter, r *http.Request, status int, errorType, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	_ = json.NewEncoder(w).Encode(ErrorResponse{
		Success:   false,
		Error:     errorType,
		Message:   message,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Path:      logpkg.SanitizePath(r.URL.Path),
		RequestID: request.RequestID(r.Context()),
	})
}
