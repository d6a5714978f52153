package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/benvon/wte-api/internal/logger"
	"github.com/benvon/wte-api/internal/metrics"
	"go.uber.org/zap"
)

const (
	recognitionSystemPrompt = "You are a helpful assistant that identifies food items."
	recognitionPrompt       = "这是什么食物？请你直接给出他的名字和分类，不要有多余的解释。示例回答：【苹果/水果】或【西红柿炒鸡蛋/炒菜】"
)

// ErrUnrecognized is returned when the reply names no food
var ErrUnrecognized = errors.New("food not recognized")

// Recognition is the food identified in a photo
type Recognition struct {
	Name     string `json:"name"`
	Category string `json:"category"`
}

// Recognizer identifies the food in a meal photo
type Recognizer struct {
	provider VisionProvider
	logger   *zap.Logger
}

// NewRecognizer creates a recognizer. A nil provider makes every call fail with ErrNotConfigured.
func NewRecognizer(provider VisionProvider, logger *zap.Logger) *Recognizer {
	return &Recognizer{provider: provider, logger: logger}
}

// RecognizeFood asks the vision model what the pictured food is. format is the
// image subtype such as "png" or "jpeg".
func (r *Recognizer) RecognizeFood(ctx context.Context, image []byte, format string) (*Recognition, error) {
	if r.provider == nil {
		return nil, ErrNotConfigured
	}

	reply, err := r.provider.CompleteImage(ctx, recognitionSystemPrompt, recognitionPrompt, image, imageContentType(format))
	metrics.RecordLLM("recognition", err)
	if err != nil {
		return nil, fmt.Errorf("failed to recognize food: %w", err)
	}

	rec, ok := ParseRecognition(reply)
	if !ok {
		r.logger.Warn("recognition_reply_unparsed",
			zap.String("reply", logger.SanitizeString(reply, previewLength)),
		)
		return nil, ErrUnrecognized
	}
	return rec, nil
}

// ParseRecognition reads a "【name/category】" reply. Brackets are optional and a
// reply without a category yields only the name.
func ParseRecognition(reply string) (*Recognition, bool) {
	s := strings.TrimSpace(reply)
	if i := strings.Index(s, "【"); i >= 0 {
		s = s[i+len("【"):]
		if j := strings.Index(s, "】"); j >= 0 {
			s = s[:j]
		}
	}
	s = strings.Trim(s, "[]「」 \t\r\n。.")
	if line, _, found := strings.Cut(s, "\n"); found {
		s = line
	}

	name, category, _ := strings.Cut(strings.ReplaceAll(s, "／", "/"), "/")
	rec := &Recognition{Name: strings.TrimSpace(name), Category: strings.TrimSpace(category)}
	if rec.Name == "" {
		return nil, false
	}
	return rec, true
}

// imageContentType maps an image format or extension to its MIME type
func imageContentType(format string) string {
	format = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(format), "."))
	switch format {
	case "", "jpg", "jpeg":
		return "image/jpeg"
	default:
		if strings.Contains(format, "/") {
			return format
		}
		return "image/" + format
	}
}
