package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/benvon/wte-api/internal/models"
	"github.com/google/uuid"
	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

const (
	// DefaultIssuer is the iss claim of issued tokens
	DefaultIssuer = "wte-api"
	// DefaultTokenTTL is how long issued tokens stay valid
	DefaultTokenTTL = 24 * time.Hour
	// MinSecretLength is the shortest accepted signing secret
	MinSecretLength = 32

	usernameClaim = "username"
)

var (
	// ErrInvalidToken is returned for tokens that fail parsing, signature or claim validation
	ErrInvalidToken = errors.New("invalid token")
	// ErrWeakSecret is returned when the signing secret is too short
	ErrWeakSecret = errors.New("jwt secret too short")
)

// TokenIssuer issues and verifies HS256 access tokens. Tokens carry the key
// id of the secret that signed them, so secrets retired with
// AddVerificationSecret keep verifying until their tokens expire.
type TokenIssuer struct {
	signKey jwk.Key
	keys    jwk.Set
	issuer  string
	ttl     time.Duration
	now     func() time.Time
}

// NewTokenIssuer creates an issuer signing with secret
func NewTokenIssuer(secret string, ttl time.Duration) (*TokenIssuer, error) {
	key, err := symmetricKey(secret)
	if err != nil {
		return nil, err
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}

	keys := jwk.NewSet()
	if err := keys.AddKey(key); err != nil {
		return nil, fmt.Errorf("failed to add signing key: %w", err)
	}

	return &TokenIssuer{
		signKey: key,
		keys:    keys,
		issuer:  DefaultIssuer,
		ttl:     ttl,
		now:     time.Now,
	}, nil
}

// AddVerificationSecret accepts tokens signed with a previous secret
func (i *TokenIssuer) AddVerificationSecret(secret string) error {
	key, err := symmetricKey(secret)
	if err != nil {
		return err
	}

	if _, ok := i.keys.LookupKeyID(key.KeyID()); ok {
		return nil
	}
	if err := i.keys.AddKey(key); err != nil {
		return fmt.Errorf("failed to add verification key: %w", err)
	}
	return nil
}

// KeyID returns the key id written into the header of issued tokens
func (i *TokenIssuer) KeyID() string {
	return i.signKey.KeyID()
}

// symmetricKey wraps secret as an HS256 JWK whose id is a digest of the secret
func symmetricKey(secret string) (jwk.Key, error) {
	if len(secret) < MinSecretLength {
		return nil, fmt.Errorf("%w: need at least %d bytes", ErrWeakSecret, MinSecretLength)
	}

	key, err := jwk.FromRaw([]byte(secret))
	if err != nil {
		return nil, fmt.Errorf("failed to create signing key: %w", err)
	}
	sum := sha256.Sum256([]byte(secret))
	if err := key.Set(jwk.KeyIDKey, hex.EncodeToString(sum[:8])); err != nil {
		return nil, fmt.Errorf("failed to set key id: %w", err)
	}
	if err := key.Set(jwk.AlgorithmKey, jwa.HS256); err != nil {
		return nil, fmt.Errorf("failed to set key algorithm: %w", err)
	}
	return key, nil
}

// TTL returns the lifetime of issued tokens
func (i *TokenIssuer) TTL() time.Duration {
	return i.ttl
}

// Issue creates a signed token for the user
func (i *TokenIssuer) Issue(user *models.User) (string, time.Time, error) {
	now := i.now().UTC().Truncate(time.Second)
	expiresAt := now.Add(i.ttl)

	token, err := jwt.NewBuilder().
		Issuer(i.issuer).
		Subject(user.ID.String()).
		IssuedAt(now).
		Expiration(expiresAt).
		JwtID(uuid.NewString()).
		Claim(usernameClaim, user.Username).
		Build()
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to build token: %w", err)
	}

	signed, err := jwt.Sign(token, jwt.WithKey(jwa.HS256, i.signKey))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}

	return string(signed), expiresAt, nil
}

// Verify checks the signature, issuer and expiry of a token and extracts its claims
func (i *TokenIssuer) Verify(tokenString string) (*models.JWTClaims, error) {
	token, err := jwt.Parse([]byte(tokenString),
		jwt.WithKeySet(i.keys),
		jwt.WithValidate(true),
		jwt.WithIssuer(i.issuer),
		jwt.WithClock(jwt.ClockFunc(i.now)),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	userID, err := uuid.Parse(token.Subject())
	if err != nil {
		return nil, fmt.Errorf("%w: subject is not a user id", ErrInvalidToken)
	}

	claims := &models.JWTClaims{
		UserID:    userID,
		Issuer:    token.Issuer(),
		IssuedAt:  token.IssuedAt(),
		ExpiresAt: token.Expiration(),
	}
	if v, ok := token.Get(usernameClaim); ok {
		if s, ok := v.(string); ok {
			claims.Username = s
		}
	}

	return claims, nil
}
