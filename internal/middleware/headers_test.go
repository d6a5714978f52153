package middleware

import (
	"context"
	"crypto/tls"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/benvon/wte-api/internal/request"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func TestSecurityHeaders(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		hsts     bool
		tls      bool
		wantHSTS bool
	}{
		{"plain http", true, false, false},
		{"tls with hsts", true, true, true},
		{"tls without hsts", false, true, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			req := httptest.NewRequest("GET", "/", nil)
			if tt.tls {
				req.TLS = &tls.ConnectionState{}
			}
			w := httptest.NewRecorder()
			SecurityHeaders(tt.hsts)(okHandler).ServeHTTP(w, req)

			if w.Header().Get("X-Content-Type-Options") != "nosniff" {
				t.Error("Expected X-Content-Type-Options nosniff")
			}
			if w.Header().Get("Content-Security-Policy") != APIContentSecurityPolicy {
				t.Errorf("Expected CSP %q, got %q", APIContentSecurityPolicy, w.Header().Get("Content-Security-Policy"))
			}
			if got := w.Header().Get("Strict-Transport-Security") != ""; got != tt.wantHSTS {
				t.Errorf("HSTS set = %v, want %v", got, tt.wantHSTS)
			}
		})
	}
}

func TestContentType(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name           string
		method         string
		contentType    string
		body           string
		allowMultipart bool
		wantStatus     int
	}{
		{"get without header", "GET", "", "", false, http.StatusOK},
		{"json post", "POST", "application/json; charset=utf-8", `{}`, false, http.StatusOK},
		{"empty post", "POST", "", "", false, http.StatusOK},
		{"missing header", "POST", "", `{}`, false, http.StatusBadRequest},
		{"form post", "PUT", "application/x-www-form-urlencoded", "a=b", false, http.StatusUnsupportedMediaType},
		{"multipart rejected", "POST", "multipart/form-data; boundary=x", "--x--", false, http.StatusUnsupportedMediaType},
		{"multipart allowed", "POST", "multipart/form-data; boundary=x", "--x--", true, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			req := httptest.NewRequest(tt.method, "/api/v1/meals", strings.NewReader(tt.body))
			if tt.contentType != "" {
				req.Header.Set("Content-Type", tt.contentType)
			}
			w := httptest.NewRecorder()
			ContentType(tt.allowMultipart)(okHandler).ServeHTTP(w, req)
			if w.Code != tt.wantStatus {
				t.Errorf("Expected status %d, got %d", tt.wantStatus, w.Code)
			}
		})
	}
}

func TestMaxRequestSize(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest("POST", "/", strings.NewReader(strings.Repeat("x", 64)))
	w := httptest.NewRecorder()
	MaxRequestSize(16)(okHandler).ServeHTTP(w, req)
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("Expected status 413, got %d", w.Code)
	}

	req = httptest.NewRequest("POST", "/", strings.NewReader("small"))
	w = httptest.NewRecorder()
	MaxRequestSize(16)(okHandler).ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}
}

func TestRequestID(t *testing.T) {
	t.Parallel()

	var seen string
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = request.RequestID(r.Context())
	}))

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set(request.RequestIDHeader, "caller-id")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	if seen != "caller-id" || w.Header().Get(request.RequestIDHeader) != "caller-id" {
		t.Errorf("Expected caller request ID to propagate, got ctx=%q header=%q", seen, w.Header().Get(request.RequestIDHeader))
	}

	w = httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest("GET", "/", nil))
	if len(seen) != 36 || w.Header().Get(request.RequestIDHeader) != seen {
		t.Errorf("Expected generated UUID request ID, got ctx=%q header=%q", seen, w.Header().Get(request.RequestIDHeader))
	}
}

func TestContextTimeout(t *testing.T) {
	t.Parallel()

	var deadline time.Time
	var ok bool
	handler := ContextTimeout(time.Minute)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		deadline, ok = r.Context().Deadline()
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/", nil))

	if !ok || time.Until(deadline) > time.Minute {
		t.Errorf("Expected a deadline within a minute, got %v (set=%v)", deadline, ok)
	}
}

func TestTimeout(t *testing.T) {
	t.Parallel()

	slow := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	})
	req := httptest.NewRequest("GET", "/", nil).WithContext(context.Background())
	w := httptest.NewRecorder()
	Timeout(20*time.Millisecond)(slow).ServeHTTP(w, req)
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected status 503, got %d", w.Code)
	}
}
