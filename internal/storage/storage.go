package storage

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrObjectNotFound is returned when a key does not exist
var ErrObjectNotFound = errors.New("object not found")

// ObjectStore stores meal photos
type ObjectStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
	SignURL(ctx context.Context, key string, ttl time.Duration) (string, error)
}

var allowedImageExts = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".webp": true,
	".heic": true,
}

// MealImageKey builds the object key of a meal food photo:
// meals/{userID}/{mealID}/{foodID}_{yyyyMMddHHmmss}{ext}
func MealImageKey(userID uuid.UUID, mealID int64, foodID int32, uploadedAt time.Time, filename string) string {
	ext := strings.ToLower(path.Ext(filename))
	if !allowedImageExts[ext] {
		ext = ".jpg"
	}
	return fmt.Sprintf("meals/%s/%d/%d_%s%s", userID, mealID, foodID, uploadedAt.Format("20060102150405"), ext)
}

// ContentTypeFor guesses the content type of an image key from its extension
func ContentTypeFor(key string) string {
	switch strings.ToLower(path.Ext(key)) {
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".webp":
		return "image/webp"
	case ".heic":
		return "image/heic"
	default:
		return "image/jpeg"
	}
}
