package models

import (
	"time"

	"github.com/google/uuid"
)

// MealType is the kind of eating event
type MealType string

const (
	MealTypeBreakfast MealType = "早饭"
	MealTypeLunch     MealType = "午饭"
	MealTypeDinner    MealType = "晚饭"
	MealTypeSnack     MealType = "零食"
)

// MealTimeLayout is the wall-clock format of Meal.MealTime
const MealTimeLayout = "15:04"

// AllMealTypes lists meal types in display order
var AllMealTypes = []MealType{MealTypeBreakfast, MealTypeLunch, MealTypeDinner, MealTypeSnack}

// IsValid reports whether t is a known meal type
func (t MealType) IsValid() bool {
	for _, known := range AllMealTypes {
		if t == known {
			return true
		}
	}
	return false
}

// Meal is one recorded eating event belonging to a user
type Meal struct {
	ID        int64      `json:"id"`
	UserID    uuid.UUID  `json:"user_id"`
	MealType  MealType   `json:"meal_type"`
	MealDate  time.Time  `json:"meal_date"`
	MealTime  string     `json:"meal_time"`
	Foods     []MealFood `json:"foods"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// MealFood is a food eaten as part of a meal, with its photo and tags
type MealFood struct {
	MealID    int64  `json:"meal_id"`
	FoodID    int32  `json:"food_id"`
	FoodName  string `json:"food_name"`
	ImagePath string `json:"image_path,omitempty"`
	Tags      []Tag  `json:"tags"`
}

// HasTag reports whether the food already carries the tag
func (f MealFood) HasTag(tagID int32) bool {
	for _, t := range f.Tags {
		if t.ID == tagID {
			return true
		}
	}
	return false
}

// FoodByID returns the meal's food with the given id
func (m *Meal) FoodByID(foodID int32) (*MealFood, bool) {
	for i := range m.Foods {
		if m.Foods[i].FoodID == foodID {
			return &m.Foods[i], true
		}
	}
	return nil, false
}

// MealStats summarizes a user's meal counts
type MealStats struct {
	TotalMeals  int              `json:"total_meals"`
	TodayMeals  int              `json:"today_meals"`
	MealsByType map[MealType]int `json:"meals_by_type"`
}

// FoodFrequency is how often a user ate a food
type FoodFrequency struct {
	FoodID   int32  `json:"food_id"`
	FoodName string `json:"food_name"`
	Count    int    `json:"count"`
}

// DailyFoods lists the distinct foods eaten on one day
type DailyFoods struct {
	Date      time.Time `json:"date"`
	FoodNames []string  `json:"food_names"`
	MealCount int       `json:"meal_count"`
}

// MealHistoryEntry is the compact export of a meal used as LLM context
type MealHistoryEntry struct {
	MealType MealType           `json:"mealType"`
	MealDate string             `json:"mealDate"`
	MealTime string             `json:"mealTime"`
	Foods    []FoodHistoryEntry `json:"foods"`
}

// FoodHistoryEntry is a food within a MealHistoryEntry
type FoodHistoryEntry struct {
	FoodName string   `json:"foodName"`
	Tags     []string `json:"tags"`
}
