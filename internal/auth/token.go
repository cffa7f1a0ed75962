// Package auth issues and verifies the signed tokens that identify user
// accounts, for both the REST layer and the socket upgrade handshake. The
// token travels in the user-token cookie.
package auth

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/parley/chat-app/internal/realtime"
)

// CookieName is the cookie that carries the signed token.
const CookieName = "user-token"

// TokenManager signs and verifies user tokens with HMAC-SHA256.
type TokenManager struct {
	secret []byte
	ttl    time.Duration
}

// NewTokenManager creates a TokenManager with the given signing secret and
// token lifetime.
func NewTokenManager(secret string, ttl time.Duration) *TokenManager {
	return &TokenManager{secret: []byte(secret), ttl: ttl}
}

// Issue creates a signed token for the given user id.
func (tm *TokenManager) Issue(userID string) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(tm.ttl)),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(tm.secret)
	if err != nil {
		return "", fmt.Errorf("auth: failed to sign token: %w", err)
	}
	return signed, nil
}

// Verify parses and validates a signed token and returns the user id it
// was issued for.
func (tm *TokenManager) Verify(tokenString string) (string, error) {
	token, err := jwt.ParseWithClaims(tokenString, &jwt.RegisteredClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("auth: unexpected signing method %q", t.Method.Alg())
		}
		return tm.secret, nil
	})
	if err != nil {
		return "", fmt.Errorf("auth: invalid token: %w", err)
	}

	claims, ok := token.Claims.(*jwt.RegisteredClaims)
	if !ok || claims.Subject == "" {
		return "", fmt.Errorf("auth: token has no subject")
	}
	return claims.Subject, nil
}

// UserResolver looks up the account behind a verified token. Implemented by
// the user store.
type UserResolver interface {
	ResolveUser(ctx context.Context, userID string) (realtime.User, error)
}

// SocketAuthenticator authenticates WebSocket upgrade requests: cookie ->
// token -> account. It implements ws.Authenticator.
type SocketAuthenticator struct {
	tokens *TokenManager
	users  UserResolver
}

// NewSocketAuthenticator wires a SocketAuthenticator.
func NewSocketAuthenticator(tokens *TokenManager, users UserResolver) *SocketAuthenticator {
	return &SocketAuthenticator{tokens: tokens, users: users}
}

// AuthenticateRequest resolves the upgrade request's cookie to a user. Any
// failure rejects the connection attempt before state is created.
func (a *SocketAuthenticator) AuthenticateRequest(r *http.Request) (realtime.User, error) {
	cookie, err := r.Cookie(CookieName)
	if err != nil {
		return realtime.User{}, fmt.Errorf("auth: missing %s cookie", CookieName)
	}

	userID, err := a.tokens.Verify(cookie.Value)
	if err != nil {
		return realtime.User{}, err
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	user, err := a.users.ResolveUser(ctx, userID)
	if err != nil {
		return realtime.User{}, fmt.Errorf("auth: failed to resolve user %s: %w", userID, err)
	}
	return user, nil
}
