package middleware

import (
	"net/http"
	"strings"
)

// ContentType validates Content-Type headers for requests with bodies.
// JSON is accepted everywhere; multipart/form-data only where allowMultipart is set.
func ContentType(allowMultipart bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Only validate Content-Type for methods that typically have bodies
			if (r.Method == http.MethodPost || r.Method == http.MethodPut || r.Method == http.MethodPatch) && r.ContentLength != 0 {
				contentType := strings.ToLower(r.Header.Get("Content-Type"))

				if contentType == "" {
					writeError(w, r, http.StatusBadRequest, "Bad Request", "Content-Type header is required")
					return
				}

				isJSON := strings.HasPrefix(contentType, "application/json")
				isMultipart := allowMultipart && strings.HasPrefix(contentType, "multipart/form-data")
				if !isJSON && !isMultipart {
					writeError(w, r, http.StatusUnsupportedMediaType, "Unsupported Media Type", "Content-Type must be application/json")
					return
				}
			}

			next.ServeHTTP(w, r)
		})
	}
}
