package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"path"
	"strings"

	"github.com/benvon/wte-api/internal/services/ai"
	"github.com/benvon/wte-api/internal/services/meals"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// FoodRecognizer names the food in a photo
type FoodRecognizer interface {
	RecognizeFood(ctx context.Context, image []byte, format string) (*ai.Recognition, error)
}

// RecognitionHandler identifies foods from uploaded photos
type RecognitionHandler struct {
	recognizer FoodRecognizer
	logger     *zap.Logger
}

// NewRecognitionHandler creates a new recognition handler
func NewRecognitionHandler(recognizer FoodRecognizer, logger *zap.Logger) *RecognitionHandler {
	return &RecognitionHandler{recognizer: recognizer, logger: logger}
}

// RegisterRoutes registers the recognition route on the multipart meals router.
// The router should already have the /api/v1/meals prefix.
func (h *RecognitionHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/recognize", h.Recognize).Methods("POST")
}

// Recognize handles POST /api/v1/meals/recognize with a multipart "image" field
func (h *RecognitionHandler) Recognize(w http.ResponseWriter, r *http.Request) {
	if _, ok := currentUser(w, r); !ok {
		return
	}
	if err := r.ParseMultipartForm(meals.MaxImageSize); err != nil {
		if bodyTooLarge(err) {
			respondJSONError(w, http.StatusRequestEntityTooLarge, "Request Entity Too Large", "image too large")
			return
		}
		respondJSONError(w, http.StatusBadRequest, "Bad Request", "invalid multipart form")
		return
	}

	file, header, err := r.FormFile(imageFormField)
	if errors.Is(err, http.ErrMissingFile) {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", "image is required")
		return
	}
	if err != nil {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", "invalid image upload")
		return
	}
	defer func() { _ = file.Close() }()

	data, err := io.ReadAll(io.LimitReader(file, meals.MaxImageSize+1))
	if err != nil {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", "failed to read image")
		return
	}
	if len(data) == 0 {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", "image is empty")
		return
	}
	if len(data) > meals.MaxImageSize {
		respondJSONError(w, http.StatusRequestEntityTooLarge, "Request Entity Too Large", "image too large")
		return
	}

	rec, err := h.recognizer.RecognizeFood(r.Context(), data, imageFormat(header.Header.Get("Content-Type"), header.Filename))
	if err != nil {
		respondServiceError(w, r, h.logger, err, "recognize food")
		return
	}
	respondJSON(w, http.StatusOK, rec)
}

// imageFormat derives the image subtype from the part's content type, falling
// back to the file extension
func imageFormat(contentType, filename string) string {
	if sub, ok := strings.CutPrefix(contentType, "image/"); ok && sub != "" {
		return sub
	}
	if ext := strings.TrimPrefix(strings.ToLower(path.Ext(filename)), "."); ext != "" {
		return ext
	}
	return "jpeg"
}
