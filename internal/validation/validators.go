package validation

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/benvon/wte-api/internal/models"
	"github.com/go-playground/validator/v10"
)

var (
	// Validate is a shared validator instance
	Validate *validator.Validate

	mealTimePattern = regexp.MustCompile(`^([01]\d|2[0-3]):[0-5]\d$`)
)

func init() {
	Validate = validator.New()

	// Register custom validators for enums
	// These should never fail in normal operation, but log if they do
	if err := Validate.RegisterValidation("meal_type", validateMealType); err != nil {
		panic(fmt.Sprintf("failed to register meal_type validator: %v", err))
	}
	if err := Validate.RegisterValidation("meal_time", validateMealTime); err != nil {
		panic(fmt.Sprintf("failed to register meal_time validator: %v", err))
	}
}

// validateMealType validates that a string is a valid MealType enum value
func validateMealType(fl validator.FieldLevel) bool {
	return models.MealType(fl.Field().String()).IsValid()
}

// validateMealTime validates an "HH:MM" clock time
func validateMealTime(fl validator.FieldLevel) bool {
	return ValidateMealTime(fl.Field().String()) == nil
}

// SanitizeText sanitizes text input by trimming whitespace and removing control characters
func SanitizeText(text string) string {
	// Trim whitespace
	text = strings.TrimSpace(text)

	// Remove control characters except newline and tab
	var sanitized strings.Builder
	for _, r := range text {
		if unicode.IsControl(r) && r != '\n' && r != '\t' {
			continue
		}
		sanitized.WriteRune(r)
	}

	return sanitized.String()
}

// ValidateMealType validates a MealType string value
func ValidateMealType(value string) error {
	if models.MealType(value).IsValid() {
		return nil
	}
	return fmt.Errorf("invalid meal_type: %s (must be one of %s)", value, strings.Join(mealTypeNames(), ", "))
}

// ValidateMealTime validates an "HH:MM" clock time
func ValidateMealTime(value string) error {
	if mealTimePattern.MatchString(value) {
		return nil
	}
	return fmt.Errorf("invalid meal_time: %s (must be HH:MM)", value)
}

func mealTypeNames() []string {
	names := make([]string, 0, len(models.AllMealTypes))
	for _, t := range models.AllMealTypes {
		names = append(names, string(t))
	}
	return names
}
