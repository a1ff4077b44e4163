package auth

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sakif/gifteo/internal/apperror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeResolver map[string]string

func (f fakeResolver) ResolveSession(_ context.Context, token string) (string, error) {
	if token == "store-down" {
		return "", errors.New("database is locked")
	}
	if id, ok := f[token]; ok {
		return id, nil
	}
	return "", apperror.Unauthenticated()
}

func TestRequireAuth(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	resolver := fakeResolver{"good": "user-1"}

	var seen string
	h := RequireAuth(resolver, logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = UserIDFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	tests := []struct {
		name     string
		prepare  func(r *http.Request)
		want     int
		wantUser string
	}{
		{"no token", func(r *http.Request) {}, http.StatusUnauthorized, ""},
		{"cookie", func(r *http.Request) { r.AddCookie(&http.Cookie{Name: SessionCookie, Value: "good"}) }, http.StatusNoContent, "user-1"},
		{"bearer header", func(r *http.Request) { r.Header.Set("Authorization", "Bearer good") }, http.StatusNoContent, "user-1"},
		{"unknown token", func(r *http.Request) { r.AddCookie(&http.Cookie{Name: SessionCookie, Value: "stale"}) }, http.StatusUnauthorized, ""},
		{"store failure", func(r *http.Request) { r.AddCookie(&http.Cookie{Name: SessionCookie, Value: "store-down"}) }, http.StatusInternalServerError, ""},
	}

	var unauthorizedBodies []string
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seen = ""
			req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
			tt.prepare(req)
			rr := httptest.NewRecorder()

			h.ServeHTTP(rr, req)

			assert.Equal(t, tt.want, rr.Code)
			assert.Equal(t, tt.wantUser, seen)
			if rr.Code == http.StatusUnauthorized {
				unauthorizedBodies = append(unauthorizedBodies, rr.Body.String())
			}
		})
	}

	require.Len(t, unauthorizedBodies, 2)
	assert.Equal(t, unauthorizedBodies[0], unauthorizedBodies[1], "every 401 must look the same")
}

func TestSessionTokens(t *testing.T) {
	token, digest, err := NewSessionToken()
	require.NoError(t, err)

	assert.True(t, WellFormedToken(token))
	assert.Equal(t, digest, HashSessionToken(token))
	assert.NotEqual(t, token, digest, "the stored value must not be the token")
	assert.Len(t, digest, 64)

	other, _, err := NewSessionToken()
	require.NoError(t, err)
	assert.NotEqual(t, token, other)

	assert.False(t, WellFormedToken(""))
	assert.False(t, WellFormedToken("short"))
	assert.False(t, WellFormedToken(token[:len(token)-1]+"!"))
}
