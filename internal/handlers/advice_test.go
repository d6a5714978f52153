package handlers

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/benvon/wte-api/internal/models"
	"github.com/benvon/wte-api/internal/services/ai"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

func adviceRoutes(h *AdviceHandler) func(*mux.Router) {
	return func(r *mux.Router) {
		h.RegisterRoutes(r.PathPrefix("/advice").Subrouter())
	}
}

func TestAdviceHandler_Analyze(t *testing.T) {
	t.Parallel()

	goal := "gain muscle"
	user := *testUser
	user.HealthGoal = &goal

	tests := []struct {
		name       string
		path       string
		err        error
		wantStatus int
	}{
		{"meal time", "/advice/meal-time", nil, http.StatusOK},
		{"diet health", "/advice/health?days=14", nil, http.StatusOK},
		{"not configured", "/advice/health", ai.ErrNotConfigured, http.StatusServiceUnavailable},
		{"rate limited", "/advice/meal-time", fmt.Errorf("advice: %w", ai.ErrRateLimited), http.StatusTooManyRequests},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			history := &mockHistory{history: `[{"mealType":"午饭"}]`}
			advisor := &mockAdvisor{
				analyzeFunc: func(_ context.Context, h string, profile *models.HealthProfile) (string, error) {
					if h != history.history {
						t.Errorf("history = %q", h)
					}
					if profile == nil || profile.HealthGoal != goal {
						t.Errorf("profile = %+v", profile)
					}
					if tt.err != nil {
						return "", tt.err
					}
					return "多吃蔬菜", nil
				},
			}
			h := NewAdviceHandler(history, advisor, &mockRecommender{}, zap.NewNop())

			w := serve(t, adviceRoutes(h), httptest.NewRequest(http.MethodPost, tt.path, nil), &user)
			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d: %s", w.Code, tt.wantStatus, w.Body.String())
			}
			if tt.wantStatus == http.StatusTooManyRequests && w.Header().Get("Retry-After") == "" {
				t.Error("missing Retry-After header")
			}
			if tt.wantStatus != http.StatusOK {
				return
			}

			var resp AdviceResponse
			if err := json.Unmarshal(decodeEnvelope(t, w.Body).Data, &resp); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if resp.Advice != "多吃蔬菜" {
				t.Errorf("advice = %q", resp.Advice)
			}
		})
	}
}

func TestAdviceHandler_HistoryDays(t *testing.T) {
	t.Parallel()

	history := &mockHistory{history: "[]"}
	advisor := &mockAdvisor{
		analyzeFunc: func(context.Context, string, *models.HealthProfile) (string, error) { return "ok", nil },
	}
	h := NewAdviceHandler(history, advisor, &mockRecommender{}, zap.NewNop())

	serve(t, adviceRoutes(h), httptest.NewRequest(http.MethodPost, "/advice/meal-time", nil), testUser)
	serve(t, adviceRoutes(h), httptest.NewRequest(http.MethodPost, "/advice/meal-time?days=30", nil), testUser)

	if len(history.days) != 2 || history.days[0] != 7 || history.days[1] != 30 {
		t.Errorf("history days = %v, want [7 30]", history.days)
	}
}

func TestAdviceHandler_HistoryFailure(t *testing.T) {
	t.Parallel()

	history := &mockHistory{err: errors.New("database unavailable")}
	h := NewAdviceHandler(history, &mockAdvisor{}, &mockRecommender{}, zap.NewNop())

	w := serve(t, adviceRoutes(h), httptest.NewRequest(http.MethodPost, "/advice/health", nil), testUser)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", w.Code)
	}
}

// sseEvents parses the event names and payloads of an SSE body
func sseEvents(t *testing.T, body string) []map[string]any {
	t.Helper()

	var events []map[string]any
	scanner := bufio.NewScanner(strings.NewReader(body))
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var ev map[string]any
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev); err != nil {
			t.Fatalf("decode event %q: %v", line, err)
		}
		events = append(events, ev)
	}
	return events
}

func TestAdviceHandler_Stream(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		chunks     []string
		err        error
		wantEvents []string
		wantText   string
	}{
		{
			name:       "complete stream",
			chunks:     []string{"早餐", "要吃\n好"},
			wantEvents: []string{"chunk", "chunk", "done"},
			wantText:   "早餐要吃\n好",
		},
		{
			name:       "stream error",
			chunks:     []string{"早餐"},
			err:        ai.ErrQuotaExceeded,
			wantEvents: []string{"chunk", "error"},
			wantText:   "早餐",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			advisor := &mockAdvisor{chunks: tt.chunks, streamErr: tt.err}
			h := NewAdviceHandler(&mockHistory{history: "[]"}, advisor, &mockRecommender{}, zap.NewNop())

			w := serve(t, adviceRoutes(h), httptest.NewRequest(http.MethodPost, "/advice/health?stream=true", nil), testUser)
			if w.Code != http.StatusOK {
				t.Fatalf("status = %d, want 200", w.Code)
			}
			if got := w.Header().Get("Content-Type"); got != "text/event-stream" {
				t.Errorf("Content-Type = %q", got)
			}

			events := sseEvents(t, w.Body.String())
			if len(events) != len(tt.wantEvents) {
				t.Fatalf("events = %v, want %v", events, tt.wantEvents)
			}
			var text strings.Builder
			for i, ev := range events {
				if ev["event"] != tt.wantEvents[i] {
					t.Errorf("event %d = %v, want %s", i, ev["event"], tt.wantEvents[i])
				}
				if data, ok := ev["data"].(map[string]any); ok && ev["event"] == "chunk" {
					text.WriteString(data["content"].(string))
				}
			}
			if text.String() != tt.wantText {
				t.Errorf("text = %q, want %q", text.String(), tt.wantText)
			}
		})
	}
}

func TestAdviceHandler_Recommend(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		rec        *ai.Recommendation
		err        error
		wantStatus int
	}{
		{"recommendation", &ai.Recommendation{FoodName: "西兰花", Reason: "富含维生素"}, nil, http.StatusOK},
		{"not configured", nil, ai.ErrNotConfigured, http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			h := NewAdviceHandler(&mockHistory{history: "[]"}, &mockAdvisor{}, &mockRecommender{rec: tt.rec, err: tt.err}, zap.NewNop())
			w := serve(t, adviceRoutes(h), httptest.NewRequest(http.MethodPost, "/advice/recommendation", nil), testUser)
			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if tt.rec == nil {
				return
			}

			var got ai.Recommendation
			if err := json.Unmarshal(decodeEnvelope(t, w.Body).Data, &got); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if got != *tt.rec {
				t.Errorf("recommendation = %+v, want %+v", got, *tt.rec)
			}
		})
	}
}
