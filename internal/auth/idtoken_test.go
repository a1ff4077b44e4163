package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testClientID = "client-123.apps.googleusercontent.com"

// fakeGoogle serves a JWKS with one RSA key and signs tokens with it.
type fakeGoogle struct {
	key     *rsa.PrivateKey
	kid     string
	server  *httptest.Server
	fetches atomic.Int32
}

func newFakeGoogle(t *testing.T) *fakeGoogle {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	g := &fakeGoogle{key: key, kid: "test-kid"}
	g.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		g.fetches.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"keys": []map[string]string{{
				"kty": "RSA",
				"kid": g.kid,
				"alg": "RS256",
				"n":   base64.RawURLEncoding.EncodeToString(key.PublicKey.N.Bytes()),
				"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.PublicKey.E)).Bytes()),
			}},
		})
	}))
	t.Cleanup(g.server.Close)
	return g
}

func (g *fakeGoogle) sign(t *testing.T, mutate func(c *googleClaims)) string {
	t.Helper()
	now := time.Now()
	c := googleClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "https://accounts.google.com",
			Subject:   "google-sub-1",
			Audience:  jwt.ClaimStrings{testClientID},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
		Email:         "ana@example.com",
		EmailVerified: true,
		Name:          "Ana",
		Picture:       "https://lh3.googleusercontent.com/a/ana",
		Locale:        "cs-CZ",
	}
	if mutate != nil {
		mutate(&c)
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, c)
	tok.Header["kid"] = g.kid
	signed, err := tok.SignedString(g.key)
	require.NoError(t, err)
	return signed
}

func TestVerify_ValidToken(t *testing.T) {
	g := newFakeGoogle(t)
	v := NewIDTokenVerifier(testClientID, g.server.URL, g.server.Client())

	id, err := v.Verify(context.Background(), g.sign(t, nil))
	require.NoError(t, err)
	assert.Equal(t, "google-sub-1", id.Subject)
	assert.Equal(t, "ana@example.com", id.Email)
	assert.Equal(t, "Ana", id.Name)
	assert.Equal(t, "cs-CZ", id.Locale)
}

func TestVerify_Rejections(t *testing.T) {
	g := newFakeGoogle(t)
	v := NewIDTokenVerifier(testClientID, g.server.URL, g.server.Client())

	other, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	forged := jwt.NewWithClaims(jwt.SigningMethodRS256, googleClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "accounts.google.com",
			Subject:   "x",
			Audience:  jwt.ClaimStrings{testClientID},
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Email:         "x@example.com",
		EmailVerified: true,
	})
	forged.Header["kid"] = g.kid
	forgedStr, err := forged.SignedString(other)
	require.NoError(t, err)

	hs := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{Subject: "x"})
	hsStr, err := hs.SignedString([]byte("not-a-google-key"))
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
	}{
		{"garbage", "not.a.jwt"},
		{"wrong audience", g.sign(t, func(c *googleClaims) { c.Audience = jwt.ClaimStrings{"someone-else"} })},
		{"wrong issuer", g.sign(t, func(c *googleClaims) { c.Issuer = "https://evil.example" })},
		{"expired", g.sign(t, func(c *googleClaims) { c.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Hour)) })},
		{"unverified email", g.sign(t, func(c *googleClaims) { c.EmailVerified = false })},
		{"missing email", g.sign(t, func(c *googleClaims) { c.Email = "" })},
		{"signed by another key", forgedStr},
		{"HMAC algorithm", hsStr},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := v.Verify(context.Background(), tt.token)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidIDToken), "got %v", err)
		})
	}
}

func TestVerify_CachesKeys(t *testing.T) {
	g := newFakeGoogle(t)
	v := NewIDTokenVerifier(testClientID, g.server.URL, g.server.Client())

	for i := 0; i < 5; i++ {
		_, err := v.Verify(context.Background(), g.sign(t, nil))
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), g.fetches.Load(), "keys should be fetched once and cached")
}

func TestVerify_RefreshesAfterTTL(t *testing.T) {
	g := newFakeGoogle(t)
	v := NewIDTokenVerifier(testClientID, g.server.URL, g.server.Client())

	clock := time.Now()
	v.now = func() time.Time { return clock }

	_, err := v.Verify(context.Background(), g.sign(t, nil))
	require.NoError(t, err)

	clock = clock.Add(2 * time.Hour)
	// The token itself is still checked against the shifted clock, so sign
	// one that is valid then.
	_, err = v.Verify(context.Background(), g.sign(t, func(c *googleClaims) {
		c.ExpiresAt = jwt.NewNumericDate(clock.Add(time.Hour))
	}))
	require.NoError(t, err)
	assert.Equal(t, int32(2), g.fetches.Load())
}
