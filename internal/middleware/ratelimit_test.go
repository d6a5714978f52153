package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestRateLimit(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	tests := []struct {
		name   string
		client *redis.Client
	}{
		{name: "redis store", client: client},
		{name: "memory store", client: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			mw, err := RateLimit(tt.client, "2-M")
			if err != nil {
				t.Fatalf("RateLimit() error: %v", err)
			}
			handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			}))

			ip := "203.0.113.7"
			if tt.client == nil {
				ip = "203.0.113.8"
			}
			statuses := make([]int, 0, 3)
			for range 3 {
				req := httptest.NewRequest("GET", "/api/v1/meals", nil)
				req.Header.Set("X-Forwarded-For", ip)
				w := httptest.NewRecorder()
				handler.ServeHTTP(w, req)
				statuses = append(statuses, w.Code)
				if w.Header().Get("X-RateLimit-Limit") != "2" {
					t.Errorf("Expected X-RateLimit-Limit 2, got %q", w.Header().Get("X-RateLimit-Limit"))
				}
			}

			want := []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}
			for i := range want {
				if statuses[i] != want[i] {
					t.Errorf("request %d: expected status %d, got %d", i+1, want[i], statuses[i])
				}
			}

			// A different client keeps its own budget
			req := httptest.NewRequest("GET", "/api/v1/meals", nil)
			req.Header.Set("X-Forwarded-For", "198.51.100.1")
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)
			if w.Code != http.StatusOK {
				t.Errorf("Expected other client to pass, got %d", w.Code)
			}
		})
	}
}

func TestRateLimit_InvalidRate(t *testing.T) {
	t.Parallel()

	if _, err := RateLimit(nil, "lots"); err == nil {
		t.Error("Expected error for invalid rate")
	}
}
