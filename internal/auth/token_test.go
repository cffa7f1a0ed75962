package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/parley/chat-app/internal/realtime"
)

func TestTokenManager_IssueAndVerify(t *testing.T) {
	tm := NewTokenManager("test-secret", time.Hour)

	token, err := tm.Issue("u1")
	if err != nil {
		t.Fatalf("Issue() error: %v", err)
	}

	userID, err := tm.Verify(token)
	if err != nil {
		t.Fatalf("Verify() error: %v", err)
	}
	if userID != "u1" {
		t.Errorf("expected subject u1, got %q", userID)
	}
}

func TestTokenManager_RejectsWrongSecret(t *testing.T) {
	token, err := NewTokenManager("secret-a", time.Hour).Issue("u1")
	if err != nil {
		t.Fatalf("Issue() error: %v", err)
	}

	if _, err := NewTokenManager("secret-b", time.Hour).Verify(token); err == nil {
		t.Fatal("expected verification failure with wrong secret")
	}
}

func TestTokenManager_RejectsExpiredToken(t *testing.T) {
	token, err := NewTokenManager("test-secret", -time.Minute).Issue("u1")
	if err != nil {
		t.Fatalf("Issue() error: %v", err)
	}

	if _, err := NewTokenManager("test-secret", -time.Minute).Verify(token); err == nil {
		t.Fatal("expected verification failure for expired token")
	}
}

func TestTokenManager_RejectsGarbage(t *testing.T) {
	if _, err := NewTokenManager("test-secret", time.Hour).Verify("not-a-token"); err == nil {
		t.Fatal("expected verification failure for malformed token")
	}
}

type staticResolver struct {
	user realtime.User
	err  error
}

func (r staticResolver) ResolveUser(ctx context.Context, userID string) (realtime.User, error) {
	if r.err != nil {
		return realtime.User{}, r.err
	}
	if userID != r.user.ID {
		return realtime.User{}, errors.New("user not found")
	}
	return r.user, nil
}

func TestSocketAuthenticator_AcceptsValidCookie(t *testing.T) {
	tm := NewTokenManager("test-secret", time.Hour)
	sa := NewSocketAuthenticator(tm, staticResolver{user: realtime.User{ID: "u1", Name: "Aisha"}})

	token, _ := tm.Issue("u1")
	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	req.AddCookie(&http.Cookie{Name: CookieName, Value: token})

	user, err := sa.AuthenticateRequest(req)
	if err != nil {
		t.Fatalf("AuthenticateRequest() error: %v", err)
	}
	if user.ID != "u1" || user.Name != "Aisha" {
		t.Errorf("unexpected user: %+v", user)
	}
}

func TestSocketAuthenticator_RejectsMissingCookie(t *testing.T) {
	tm := NewTokenManager("test-secret", time.Hour)
	sa := NewSocketAuthenticator(tm, staticResolver{user: realtime.User{ID: "u1"}})

	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	if _, err := sa.AuthenticateRequest(req); err == nil {
		t.Fatal("expected rejection without cookie")
	}
}

func TestSocketAuthenticator_RejectsUnknownUser(t *testing.T) {
	tm := NewTokenManager("test-secret", time.Hour)
	sa := NewSocketAuthenticator(tm, staticResolver{err: errors.New("not found")})

	token, _ := tm.Issue("u1")
	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	req.AddCookie(&http.Cookie{Name: CookieName, Value: token})

	if _, err := sa.AuthenticateRequest(req); err == nil {
		t.Fatal("expected rejection for unresolvable user")
	}
}

func TestHashAndCheckPassword(t *testing.T) {
	hash, err := HashPassword("hunter2")
	if err != nil {
		t.Fatalf("HashPassword() error: %v", err)
	}
	if !CheckPassword(hash, "hunter2") {
		t.Error("expected matching password to verify")
	}
	if CheckPassword(hash, "wrong") {
		t.Error("expected mismatched password to fail")
	}
}
