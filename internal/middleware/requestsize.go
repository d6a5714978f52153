package middleware

import (
	"fmt"
	"net/http"
)

const (
	// DefaultMaxRequestSize bounds JSON bodies
	DefaultMaxRequestSize int64 = 1 << 20
	// MaxUploadSize bounds multipart requests: a 10MB food photo plus form fields
	MaxUploadSize int64 = 11 << 20
)

// MaxRequestSize caps request bodies at maxBytes. A declared Content-Length
// over the cap is refused with a JSON 413 before the handler runs. Bodies sent
// without one are cut off by http.MaxBytesReader, whose *http.MaxBytesError the
// handler sees on read.
func MaxRequestSize(maxBytes int64) func(http.Handler) http.Handler {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxRequestSize
	}
	message := "Request body exceeds the " + formatSize(maxBytes) + " limit"

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength > maxBytes {
				w.Header().Set("Connection", "close")
				writeError(w, r, http.StatusRequestEntityTooLarge, "Request Entity Too Large", message)
				return
			}
			if r.Body != nil && r.Body != http.NoBody {
				r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			}

			next.ServeHTTP(w, r)
		})
	}
}

func formatSize(n int64) string {
	if n >= 1<<20 && n%(1<<20) == 0 {
		return fmt.Sprintf("%dMB", n>>20)
	}
	return fmt.Sprintf("%d bytes", n)
}
