package auth

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/c-pro/geche"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	DefaultTokenExpiry = 12 * time.Hour
	issuer             = "proptalk"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenRevoked = errors.New("token revoked")
)

type Config struct {
	Secret      string        `json:"secret"`
	secretBytes []byte        `json:"-"`
	TokenExpiry time.Duration `json:"tokenExpiry"`
}

func (c *Config) Validate() error {
	if c.Secret == "" {
		return errors.New("secret is required")
	}

	var err error
	c.secretBytes, err = base64.StdEncoding.DecodeString(c.Secret)
	if err != nil {
		return fmt.Errorf("auth secret is not a valid base64: %w", err)
	}

	if c.TokenExpiry == 0 {
		c.TokenExpiry = DefaultTokenExpiry
	}

	return nil
}

type Claims struct {
	UserID string `json:"uid"`
	jwt.RegisteredClaims
}

// AuthService issues and verifies HS256 bearer tokens.
// Tokens are stateless; revoked token ids are remembered until they would have expired anyway.
type AuthService struct {
	Config
	revoked geche.Geche[string, struct{}]
	now     func() time.Time
}

func NewAuthService(ctx context.Context, config Config) (*AuthService, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &AuthService{
		Config:  config,
		revoked: geche.NewMapTTLCache[string, struct{}](ctx, config.TokenExpiry, time.Minute),
		now:     time.Now,
	}, nil
}

// IssueToken returns a signed token for userID and its expiry as a Unix timestamp.
func (as *AuthService) IssueToken(userID string) (string, int64, error) {
	if userID == "" {
		return "", 0, errors.New("user id is required")
	}

	now := as.now()
	expiresAt := now.Add(as.TokenExpiry)
	claims := Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    issuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(as.secretBytes)
	if err != nil {
		return "", 0, fmt.Errorf("failed to sign token: %w", err)
	}

	return token, expiresAt.Unix(), nil
}

func (as *AuthService) parse(token string) (*Claims, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return as.secretBytes, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(as.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if !parsed.Valid || claims.UserID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// GetUserID returns the identity a token was issued for.
func (as *AuthService) GetUserID(token string) (string, error) {
	claims, err := as.parse(token)
	if err != nil {
		return "", err
	}
	if _, err := as.revoked.Get(claims.ID); err == nil {
		return "", ErrTokenRevoked
	}
	return claims.UserID, nil
}

// Logoff revokes the token. Revoking an invalid token is an error.
func (as *AuthService) Logoff(token string) error {
	claims, err := as.parse(token)
	if err != nil {
		return err
	}
	as.revoked.Set(claims.ID, struct{}{})
	return nil
}
