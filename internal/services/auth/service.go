package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/benvon/wte-api/internal/database"
	"github.com/benvon/wte-api/internal/logger"
	"github.com/benvon/wte-api/internal/models"
	"go.uber.org/zap"
)

// ErrInvalidCredentials is returned when the username or password is wrong
var ErrInvalidCredentials = errors.New("invalid username or password")

// Session is the result of a successful login or registration
type Session struct {
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expires_at"`
	User      *models.User `json:"user"`
}

// Service registers users and logs them in
type Service struct {
	users  database.UserRepositoryInterface
	tokens *TokenIssuer
	logger *zap.Logger
}

// NewService creates an auth service
func NewService(users database.UserRepositoryInterface, tokens *TokenIssuer, logger *zap.Logger) *Service {
	return &Service{users: users, tokens: tokens, logger: logger}
}

// Register creates a user and returns a session for it
func (s *Service) Register(ctx context.Context, username, email, password string) (*Session, error) {
	hash, err := HashPassword(password)
	if err != nil {
		return nil, err
	}

	user := &models.User{
		Username:     strings.TrimSpace(username),
		Email:        strings.TrimSpace(email),
		PasswordHash: hash,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}

	s.logger.Info("user_registered", zap.String("user_id", logger.SanitizeUserID(user.ID.String())))
	return s.session(user)
}

// Login verifies the credentials and returns a new session
func (s *Service) Login(ctx context.Context, username, password string) (*Session, error) {
	user, err := s.users.GetByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to load user: %w", err)
	}

	if !CheckPassword(user.PasswordHash, password) {
		s.logger.Info("login_failed", zap.String("user_id", logger.SanitizeUserID(user.ID.String())))
		return nil, ErrInvalidCredentials
	}

	return s.session(user)
}

func (s *Service) session(user *models.User) (*Session, error) {
	token, expiresAt, err := s.tokens.Issue(user)
	if err != nil {
		return nil, err
	}
	return &Session{Token: token, ExpiresAt: expiresAt, User: user}, nil
}
