package middleware

import (
	"net/http"
	"net/http/httptest"
	"slices"
	"testing"
)

func TestParseOrigins(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{"empty keeps default", "", []string{"http://localhost:3000"}},
		{"adds trimmed origins", " https://wte.example.com , https://app.example.com", []string{"http://localhost:3000", "https://wte.example.com", "https://app.example.com"}},
		{"skips duplicates", "http://localhost:3000,https://a.example.com,https://a.example.com", []string{"http://localhost:3000", "https://a.example.com"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := ParseOrigins(tt.input); !slices.Equal(got, tt.want) {
				t.Errorf("ParseOrigins(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestCORS(t *testing.T) {
	t.Parallel()

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	handler := CORSFromEnv("https://wte.example.com")(next)

	t.Run("allowed origin", func(t *testing.T) {
		t.Parallel()
		req := httptest.NewRequest("GET", "/api/v1/meals", nil)
		req.Header.Set("Origin", "https://wte.example.com")
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		if got := w.Header().Get("Access-Control-Allow-Origin"); got != "https://wte.example.com" {
			t.Errorf("Expected allow-origin header, got %q", got)
		}
		if got := w.Header().Get("Access-Control-Allow-Credentials"); got != "true" {
			t.Errorf("Expected allow-credentials true, got %q", got)
		}
	})

	t.Run("disallowed origin", func(t *testing.T) {
		t.Parallel()
		req := httptest.NewRequest("GET", "/api/v1/meals", nil)
		req.Header.Set("Origin", "https://evil.example.com")
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
			t.Errorf("Expected no allow-origin header, got %q", got)
		}
	})

	t.Run("preflight", func(t *testing.T) {
		t.Parallel()
		req := httptest.NewRequest(http.MethodOptions, "/api/v1/meals", nil)
		req.Header.Set("Origin", "https://wte.example.com")
		req.Header.Set("Access-Control-Request-Method", http.MethodPut)
		req.Header.Set("Access-Control-Request-Headers", "Authorization")
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		if w.Code != http.StatusNoContent {
			t.Errorf("Expected preflight status 204, got %d", w.Code)
		}
		if got := w.Header().Get("Access-Control-Allow-Methods"); got != http.MethodPut {
			t.Errorf("Expected allow-methods PUT, got %q", got)
		}
	})
}
