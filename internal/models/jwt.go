package models

import (
	"time"

	"github.com/google/uuid"
)

// JWTClaims represents the claims of an access token issued by the API
type JWTClaims struct {
	UserID    uuid.UUID `json:"sub"`
	Username  string    `json:"username"`
	Issuer    string    `json:"iss"`
	IssuedAt  time.Time `json:"iat"`
	ExpiresAt time.Time `json:"exp"`
}
