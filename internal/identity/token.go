package identity

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"futurehub/internal/hub"
	"futurehub/internal/model"
)

// sessionClaims is the payload of a session token.
type sessionClaims struct {
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// TokenIssuer signs and verifies HS256 session tokens.
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
	clock  hub.Clock
}

// NewTokenIssuer creates an issuer. secret must not be empty.
func NewTokenIssuer(secret string, ttl time.Duration, clock hub.Clock) (*TokenIssuer, error) {
	if secret == "" {
		return nil, fmt.Errorf("token secret is required")
	}
	if clock == nil {
		clock = hub.RealClock{}
	}
	return &TokenIssuer{secret: []byte(secret), ttl: ttl, clock: clock}, nil
}

// Issue returns a signed token for user.
func (t *TokenIssuer) Issue(user *model.User) (string, error) {
	now := t.clock.Now()
	claims := sessionClaims{
		Email: user.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.UID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("signing session token: %w", err)
	}
	return signed, nil
}

// Verify checks the signature and expiry of token and returns the user it names.
func (t *TokenIssuer) Verify(token string) (*model.User, error) {
	var claims sessionClaims
	_, err := jwt.ParseWithClaims(token, &claims,
		func(*jwt.Token) (any, error) { return t.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(t.clock.Now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("verifying session token: %w", err)
	}
	if claims.Subject == "" {
		return nil, errors.New("verifying session token: missing subject")
	}
	return &model.User{UID: claims.Subject, Email: claims.Email}, nil
}
