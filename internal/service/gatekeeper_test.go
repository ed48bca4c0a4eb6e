package service

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"messenger/internal/config"
	apperrors "messenger/pkg/errors"
	"messenger/pkg/jwt"
	"messenger/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testJWT = config.JWTConfig{
	AccessSecret: "test-secret",
	AccessTTL:    time.Minute,
	Issuer:       "messenger",
}

func newTestGatekeeper(t *testing.T) (Gatekeeper, *memDB) {
	t.Helper()
	db := newMemDB()
	db.addUser(userA, "alice")
	db.addUser(userB, "bob")
	return NewGatekeeper(memUsers{db}, testJWT, logger.Nop()), db
}

func issue(t *testing.T, username string, userID int64, ttl time.Duration) string {
	t.Helper()
	token, err := jwt.GenerateAccessToken(username, userID, testJWT.AccessSecret, testJWT.Issuer, ttl)
	require.NoError(t, err)
	return token
}

func TestGatekeeper_Authenticate(t *testing.T) {
	gk, _ := newTestGatekeeper(t)
	token := issue(t, "alice", 0, time.Minute)

	identity, err := gk.Authenticate(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, userA, identity.UserID)
	assert.Equal(t, "alice", identity.Username)
	assert.Equal(t, token, identity.Token)
	assert.True(t, identity.ExpiresAt.After(time.Now()))
}

func TestGatekeeper_Rejects(t *testing.T) {
	gk, db := newTestGatekeeper(t)
	db.mu.Lock()
	db.users[userB].IsActive = false
	db.mu.Unlock()

	foreign, err := jwt.GenerateAccessToken("alice", userA, "other-secret", testJWT.Issuer, time.Minute)
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
	}{
		{"missing", ""},
		{"malformed", "not-a-jwt"},
		{"expired", issue(t, "alice", userA, -time.Minute)},
		{"wrong signature", foreign},
		{"unknown user", issue(t, "mallory", 0, time.Minute)},
		{"inactive user", issue(t, "bob", userB, time.Minute)},
		{"mismatched id", issue(t, "alice", userB, time.Minute)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := gk.Authenticate(context.Background(), tt.token)
			assert.ErrorIs(t, err, apperrors.ErrUnauthorized)
		})
	}
}

func TestGatekeeper_ReverifyDetectsExpiry(t *testing.T) {
	gk, _ := newTestGatekeeper(t)

	_, err := gk.Reverify(issue(t, "alice", userA, time.Minute))
	assert.NoError(t, err)

	_, err = gk.Reverify(issue(t, "alice", userA, -time.Second))
	assert.ErrorIs(t, err, apperrors.ErrTokenExpired)
}

func TestExtractBearer(t *testing.T) {
	tests := []struct {
		name    string
		prepare func(r *http.Request)
		want    string
	}{
		{"header", func(r *http.Request) { r.Header.Set("Authorization", "Bearer abc") }, "abc"},
		{"header lowercase scheme", func(r *http.Request) { r.Header.Set("Authorization", "bearer abc") }, "abc"},
		{"header other scheme", func(r *http.Request) { r.Header.Set("Authorization", "Basic dXNlcjpwYXNz") }, ""},
		{"query", func(r *http.Request) {
			q := r.URL.Query()
			q.Set("access_token", "from-query")
			r.URL.RawQuery = q.Encode()
		}, "from-query"},
		{"cookie", func(r *http.Request) { r.AddCookie(&http.Cookie{Name: "access_token", Value: "from-cookie"}) }, "from-cookie"},
		{"header wins", func(r *http.Request) {
			r.Header.Set("Authorization", "Bearer from-header")
			r.AddCookie(&http.Cookie{Name: "access_token", Value: "from-cookie"})
		}, "from-header"},
		{"none", func(r *http.Request) {}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/ws", nil)
			tt.prepare(r)
			assert.Equal(t, tt.want, ExtractBearer(r))
		})
	}
}

func TestBearerFromHeader(t *testing.T) {
	assert.Equal(t, "tok", BearerFromHeader("Bearer tok"))
	assert.Equal(t, "tok", BearerFromHeader("  BEARER   tok "))
	assert.Equal(t, "tok", BearerFromHeader("tok"))
	assert.Equal(t, "", BearerFromHeader("Basic tok"))
	assert.Equal(t, "", BearerFromHeader(""))
}
