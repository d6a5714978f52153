package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/benvon/wte-api/internal/models"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

type mockCatalog struct {
	foods     []models.Food
	tags      []models.Tag
	err       error
	lastQuery string
	lastLimit int
}

func (m *mockCatalog) Search(_ context.Context, query string, limit int) ([]models.Food, error) {
	m.lastQuery, m.lastLimit = query, limit
	return m.foods, m.err
}

func (m *mockCatalog) List(context.Context) ([]models.Tag, error) {
	return m.tags, m.err
}

func catalogRoutes(h *CatalogHandler) func(*mux.Router) {
	return func(r *mux.Router) {
		h.RegisterRoutes(r.PathPrefix("/catalog").Subrouter())
	}
}

func TestCatalogHandler_SearchFoods(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		path       string
		foods      []models.Food
		err        error
		user       *models.User
		wantStatus int
		wantLimit  int
		wantCount  int
	}{
		{"default limit", "/catalog/foods?q=%E7%B1%B3", []models.Food{{ID: 1, Name: "米饭"}}, nil, testUser, http.StatusOK, 20, 1},
		{"clamped limit", "/catalog/foods?q=a&limit=500", nil, nil, testUser, http.StatusOK, 100, 0},
		{"repository failure", "/catalog/foods?q=a", nil, errors.New("db down"), testUser, http.StatusInternalServerError, 20, 0},
		{"unauthenticated", "/catalog/foods", nil, nil, nil, http.StatusUnauthorized, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			catalog := &mockCatalog{foods: tt.foods, err: tt.err}
			h := NewCatalogHandler(catalog, catalog, zap.NewNop())

			w := serve(t, catalogRoutes(h), httptest.NewRequest(http.MethodGet, tt.path, nil), tt.user)
			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d: %s", w.Code, tt.wantStatus, w.Body.String())
			}
			if catalog.lastLimit != tt.wantLimit {
				t.Errorf("limit = %d, want %d", catalog.lastLimit, tt.wantLimit)
			}
			if tt.wantStatus != http.StatusOK {
				return
			}

			var got []models.Food
			if err := json.Unmarshal(decodeEnvelope(t, w.Body).Data, &got); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if got == nil || len(got) != tt.wantCount {
				t.Errorf("foods = %v, want %d entries", got, tt.wantCount)
			}
		})
	}
}

func TestCatalogHandler_ListTags(t *testing.T) {
	t.Parallel()

	catalog := &mockCatalog{tags: []models.Tag{{ID: 1, Name: "辣"}, {ID: 2, Name: "甜"}}}
	h := NewCatalogHandler(catalog, catalog, zap.NewNop())

	w := serve(t, catalogRoutes(h), httptest.NewRequest(http.MethodGet, "/catalog/tags", nil), testUser)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var got []models.Tag
	if err := json.Unmarshal(decodeEnvelope(t, w.Body).Data, &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != 2 || got[0].Name != "辣" {
		t.Errorf("tags = %v", got)
	}
}
