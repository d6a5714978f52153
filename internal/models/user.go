package models

import (
	"time"

	"github.com/google/uuid"
)

// User represents a user in the system
type User struct {
	ID           uuid.UUID `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Height       *float64  `json:"height,omitempty"`
	Weight       *float64  `json:"weight,omitempty"`
	HealthGoal   *string   `json:"health_goal,omitempty"`
	Allergies    *string   `json:"allergies,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// HealthProfile is the part of the user record passed to dietary advice prompts
type HealthProfile struct {
	Height     *float64 `json:"height,omitempty"`
	Weight     *float64 `json:"weight,omitempty"`
	HealthGoal string   `json:"healthGoal,omitempty"`
	Allergies  string   `json:"allergies,omitempty"`
}

// Profile extracts the health profile of the user
func (u *User) Profile() HealthProfile {
	p := HealthProfile{Height: u.Height, Weight: u.Weight}
	if u.HealthGoal != nil {
		p.HealthGoal = *u.HealthGoal
	}
	if u.Allergies != nil {
		p.Allergies = *u.Allergies
	}
	return p
}
