// Package auth mints and verifies the per-user tokens that accompany
// tool invocations. Tokens are HS256 signed JWTs carrying the
// username and the user's task namespace.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/toddbot/todd/internal/backend"
)

// Token errors.
var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
	ErrMissingClaim = errors.New("missing required claim")
	ErrWeakSecret   = errors.New("signing secret too short")
)

// minSecretLen guards against trivially brute-forceable HMAC keys.
const minSecretLen = 32

// defaultTTL is the token lifetime when the caller passes zero.
const defaultTTL = 24 * time.Hour

// Provider mints and verifies user tokens.
type Provider struct {
	secret []byte
}

// NewProvider creates a token provider with the given signing secret.
func NewProvider(secret []byte) (*Provider, error) {
	if len(secret) < minSecretLen {
		return nil, fmt.Errorf("%w: need at least %d bytes", ErrWeakSecret, minSecretLen)
	}
	return &Provider{secret: secret}, nil
}

// Mint creates a signed token for the given user and returns the
// ready-to-use UserContext.
func (p *Provider) Mint(username, database string, expiresIn time.Duration) (*backend.UserContext, error) {
	if username == "" {
		return nil, fmt.Errorf("%w: sub", ErrMissingClaim)
	}
	if database == "" {
		return nil, fmt.Errorf("%w: db", ErrMissingClaim)
	}
	if expiresIn <= 0 {
		expiresIn = defaultTTL
	}

	now := time.Now()
	claims := jwt.MapClaims{
		"sub": username,
		"db":  database,
		"iat": now.Unix(),
		"exp": now.Add(expiresIn).Unix(),
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(p.secret)
	if err != nil {
		return nil, fmt.Errorf("signing token: %w", err)
	}

	return &backend.UserContext{
		Username: username,
		Database: database,
		Token:    token,
	}, nil
}

// Verify validates a token and reconstructs the user context it was
// minted for.
func (p *Provider) Verify(tokenString string) (*backend.UserContext, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return p.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrInvalidToken
	}
	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return nil, fmt.Errorf("%w: sub", ErrMissingClaim)
	}
	db, ok := claims["db"].(string)
	if !ok || db == "" {
		return nil, fmt.Errorf("%w: db", ErrMissingClaim)
	}

	return &backend.UserContext{
		Username: sub,
		Database: db,
		Token:    tokenString,
	}, nil
}
