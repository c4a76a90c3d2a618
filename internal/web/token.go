// Package web provides the HTTP API: session tokens, handlers, and the
// JSON response envelope.
package web

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/nscott/gridlock/internal/config"
)

// ErrInvalidToken is returned when a session token fails verification for
// any reason: bad signature, expiry, or malformed claims.
var ErrInvalidToken = errors.New("invalid session token")

// sessionClaims is the JWT claims payload for a player session.
type sessionClaims struct {
	jwt.RegisteredClaims
	PlayerID int64  `json:"player_id"`
	Username string `json:"username"`
}

// Session identifies an authenticated player extracted from a verified token.
type Session struct {
	PlayerID int64
	Username string
}

// TokenManager issues and verifies HMAC-SHA256 session tokens.
type TokenManager struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenManager creates a TokenManager from the auth configuration.
//
// Precondition: cfg has passed config validation.
func NewTokenManager(cfg config.AuthConfig) *TokenManager {
	return &TokenManager{
		secret: []byte(cfg.JWTSecret),
		ttl:    cfg.TokenTTL,
		now:    time.Now,
	}
}

// Issue creates a signed session token for the player.
//
// Postcondition: the token verifies with this manager until the TTL elapses.
func (m *TokenManager) Issue(playerID int64, username string) (string, error) {
	now := m.now()
	claims := sessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
		},
		PlayerID: playerID,
		Username: username,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("signing session token: %w", err)
	}
	return signed, nil
}

// Verify parses and validates a session token.
//
// Postcondition: returns ErrInvalidToken for any token this manager would
// not have issued, including expired ones.
func (m *TokenManager) Verify(token string) (Session, error) {
	var claims sessionClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		return m.secret, nil
	},
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		return Session{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.PlayerID <= 0 {
		return Session{}, fmt.Errorf("%w: missing player id", ErrInvalidToken)
	}
	return Session{PlayerID: claims.PlayerID, Username: claims.Username}, nil
}
