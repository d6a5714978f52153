package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/benvon/wte-api/internal/database"
	logpkg "github.com/benvon/wte-api/internal/logger"
	"github.com/benvon/wte-api/internal/models"
	"github.com/benvon/wte-api/internal/request"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// TokenVerifier validates bearer tokens
type TokenVerifier interface {
	Verify(token string) (*models.JWTClaims, error)
}

// UserLookup loads the user a token was issued to
type UserLookup interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

// UserFromContext extracts the user from the request context
func UserFromContext(r *http.Request) *models.User {
	return request.UserFromContext(r)
}

// Auth creates authentication middleware that validates JWT tokens
func Auth(tokens TokenVerifier, users UserLookup, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				writeError(w, r, http.StatusUnauthorized, "Unauthorized", "Missing Authorization header")
				return
			}

			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || parts[0] != "Bearer" {
				writeError(w, r, http.StatusUnauthorized, "Unauthorized", "Invalid Authorization header format")
				return
			}

			claims, err := tokens.Verify(parts[1])
			if err != nil {
				logger.Debug("token_verification_failed",
					zap.String("path", logpkg.SanitizePath(r.URL.Path)),
					zap.String("error", logpkg.SanitizeError(err)),
				)
				writeError(w, r, http.StatusUnauthorized, "Unauthorized", "Invalid or expired token")
				return
			}

			ctx := r.Context()
			user, err := users.GetByID(ctx, claims.UserID)
			if err != nil {
				if errors.Is(err, database.ErrNotFound) {
					writeError(w, r, http.StatusUnauthorized, "Unauthorized", "User no longer exists")
					return
				}
				logger.Error("failed_to_load_user",
					zap.String("user_id", logpkg.SanitizeUserID(claims.UserID.String())),
					zap.String("error", logpkg.SanitizeError(err)),
				)
				writeError(w, r, http.StatusInternalServerError, "Internal Server Error", "Database error")
				return
			}

			next.ServeHTTP(w, r.WithContext(request.WithUser(ctx, user)))
		})
	}
}
