package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestHealthChecker(t *testing.T) {
	t.Parallel()

	healthy := PingFunc(func(context.Context) error { return nil })
	broken := PingFunc(func(context.Context) error { return errors.New("connection refused") })

	tests := []struct {
		name       string
		mode       string
		checks     map[string]Pinger
		wantStatus int
		wantState  string
		wantChecks map[string]string
	}{
		{
			name:       "basic mode skips checks",
			checks:     map[string]Pinger{"database": broken},
			wantStatus: http.StatusOK,
			wantState:  "healthy",
		},
		{
			name:       "extended mode all healthy",
			mode:       "extended",
			checks:     map[string]Pinger{"database": healthy, "redis": healthy},
			wantStatus: http.StatusOK,
			wantState:  "healthy",
			wantChecks: map[string]string{"database": "healthy", "redis": "healthy"},
		},
		{
			name:       "extended mode with failing dependency",
			mode:       "extended",
			checks:     map[string]Pinger{"database": healthy, "storage": broken},
			wantStatus: http.StatusServiceUnavailable,
			wantState:  "unhealthy",
			wantChecks: map[string]string{"database": "healthy", "storage": "unhealthy: connection refused"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			h := NewHealthChecker()
			for name, p := range tt.checks {
				h.AddCheck(name, p)
			}

			path := "/healthz"
			if tt.mode != "" {
				path += "?mode=" + tt.mode
			}
			w := httptest.NewRecorder()
			h.HealthCheck(w, httptest.NewRequest(http.MethodGet, path, nil))

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}

			var resp HealthResponse
			if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if resp.Status != tt.wantState {
				t.Errorf("status field = %q, want %q", resp.Status, tt.wantState)
			}
			if len(resp.Checks) != len(tt.wantChecks) {
				t.Fatalf("checks = %v, want %v", resp.Checks, tt.wantChecks)
			}
			for name, want := range tt.wantChecks {
				if resp.Checks[name] != want {
					t.Errorf("check %s = %q, want %q", name, resp.Checks[name], want)
				}
			}
		})
	}
}

func TestVersionHandler(t *testing.T) {
	t.Parallel()

	w := httptest.NewRecorder()
	VersionHandler(VersionInfo{Version: "1.2.3", GitCommit: "abc123"})(w, httptest.NewRequest(http.MethodGet, "/version", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"version":"1.2.3"`) {
		t.Errorf("body %s does not contain the version", w.Body.String())
	}
}
