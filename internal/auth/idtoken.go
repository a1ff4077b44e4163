// Package auth verifies Google identities and manages opaque session tokens.
//
// AUTHENTICATION FLOW OVERVIEW:
//  1. The client obtains a Google ID token, either from Google Identity
//     Services in the browser (POST /api/auth/google) or through the server
//     side code flow (/auth/google/login → /auth/google/callback).
//  2. The server verifies the ID token's RS256 signature against Google's
//     published keys and checks issuer, audience and expiry.
//  3. The server creates (or finds) the user and issues a random session
//     token in an HttpOnly cookie. Only a digest of the token is stored.
//  4. On every protected request the middleware resolves the cookie to a
//     user id through the sessions table.
//
// WHY SESSIONS AND NOT A SELF-CONTAINED JWT?
// Logout has to invalidate the session server-side. A signed token stays
// valid until it expires; a row in the sessions table can be deleted.
package auth

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/sakif/gifteo/internal/model"
	"golang.org/x/sync/singleflight"
)

// GoogleCertsURL serves Google's current ID token signing keys as a JWKS.
const GoogleCertsURL = "https://www.googleapis.com/oauth2/v3/certs"

// Google issues ID tokens with either issuer spelling.
var googleIssuers = map[string]bool{
	"accounts.google.com":         true,
	"https://accounts.google.com": true,
}

// ErrInvalidIDToken covers every reason a credential is rejected. Callers
// map it to a uniform 401.
var ErrInvalidIDToken = errors.New("auth: invalid ID token")

// googleClaims is the ID token payload. RegisteredClaims carries sub, aud,
// iss and exp; the rest are Google's profile claims.
type googleClaims struct {
	jwt.RegisteredClaims
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
	Picture       string `json:"picture"`
	Locale        string `json:"locale"`
}

// IDTokenVerifier checks Google ID tokens.
//
// KEY CACHING:
// Google rotates its signing keys every few days and publishes them with a
// Cache-Control max-age. Keys are cached for keyTTL; an unknown kid forces
// a refresh. Concurrent refreshes collapse into one HTTP request through
// singleflight, so a burst of logins right after a rotation costs one fetch.
type IDTokenVerifier struct {
	clientID string
	certsURL string
	client   *http.Client
	keyTTL   time.Duration
	now      func() time.Time

	mu        sync.RWMutex
	keys      map[string]*rsa.PublicKey
	fetchedAt time.Time

	group singleflight.Group
}

// NewIDTokenVerifier returns a verifier for tokens issued to clientID.
// certsURL is GoogleCertsURL in production and an httptest server in tests.
func NewIDTokenVerifier(clientID, certsURL string, client *http.Client) *IDTokenVerifier {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &IDTokenVerifier{
		clientID: clientID,
		certsURL: certsURL,
		client:   client,
		keyTTL:   time.Hour,
		now:      time.Now,
	}
}

// Verify validates raw and returns the identity it asserts.
//
// VALIDATION CHECKS:
//   - signature is RS256 by a currently published Google key
//   - aud is our client id, iss is Google, exp is in the future
//   - the email is present and verified by Google
func (v *IDTokenVerifier) Verify(ctx context.Context, raw string) (model.Identity, error) {
	var c googleClaims
	_, err := jwt.ParseWithClaims(raw, &c,
		func(token *jwt.Token) (any, error) {
			kid, _ := token.Header["kid"].(string)
			return v.key(ctx, kid)
		},
		jwt.WithValidMethods([]string{"RS256"}),
		jwt.WithAudience(v.clientID),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.now),
		jwt.WithLeeway(30*time.Second),
	)
	if err != nil {
		return model.Identity{}, fmt.Errorf("%w: %w", ErrInvalidIDToken, err)
	}

	if !googleIssuers[c.Issuer] {
		return model.Identity{}, fmt.Errorf("%w: unexpected issuer %q", ErrInvalidIDToken, c.Issuer)
	}
	if c.Subject == "" || c.Email == "" {
		return model.Identity{}, fmt.Errorf("%w: missing subject or email", ErrInvalidIDToken)
	}
	if !c.EmailVerified {
		return model.Identity{}, fmt.Errorf("%w: email not verified", ErrInvalidIDToken)
	}

	return model.Identity{
		Subject:   c.Subject,
		Email:     c.Email,
		Name:      c.Name,
		AvatarURL: c.Picture,
		Locale:    c.Locale,
	}, nil
}

// key returns the public key for kid, refreshing the cache when the key is
// unknown or the cache is stale.
func (v *IDTokenVerifier) key(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	v.mu.RLock()
	k, ok := v.keys[kid]
	fresh := v.now().Sub(v.fetchedAt) < v.keyTTL
	v.mu.RUnlock()
	if ok && fresh {
		return k, nil
	}

	if err := v.refresh(ctx); err != nil {
		if ok {
			// Google being unreachable should not log everyone out.
			return k, nil
		}
		return nil, err
	}

	v.mu.RLock()
	defer v.mu.RUnlock()
	k, ok = v.keys[kid]
	if !ok {
		return nil, fmt.Errorf("auth: no signing key with kid %q", kid)
	}
	return k, nil
}

func (v *IDTokenVerifier) refresh(ctx context.Context) error {
	_, err, _ := v.group.Do("jwks", func() (any, error) {
		keys, err := fetchJWKS(ctx, v.client, v.certsURL)
		if err != nil {
			return nil, err
		}
		v.mu.Lock()
		v.keys = keys
		v.fetchedAt = v.now()
		v.mu.Unlock()
		return nil, nil
	})
	return err
}

type jwks struct {
	Keys []struct {
		Kty string `json:"kty"`
		Kid string `json:"kid"`
		N   string `json:"n"`
		E   string `json:"e"`
	} `json:"keys"`
}

func fetchJWKS(ctx context.Context, client *http.Client, url string) (map[string]*rsa.PublicKey, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("auth: building JWKS request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("auth: fetching JWKS: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("auth: JWKS endpoint returned status %d", resp.StatusCode)
	}

	var set jwks
	if err := json.NewDecoder(resp.Body).Decode(&set); err != nil {
		return nil, fmt.Errorf("auth: decoding JWKS: %w", err)
	}

	keys := make(map[string]*rsa.PublicKey, len(set.Keys))
	for _, k := range set.Keys {
		if k.Kty != "RSA" {
			continue
		}
		n, err := base64.RawURLEncoding.DecodeString(k.N)
		if err != nil {
			return nil, fmt.Errorf("auth: decoding modulus of key %s: %w", k.Kid, err)
		}
		e, err := base64.RawURLEncoding.DecodeString(k.E)
		if err != nil {
			return nil, fmt.Errorf("auth: decoding exponent of key %s: %w", k.Kid, err)
		}
		keys[k.Kid] = &rsa.PublicKey{
			N: new(big.Int).SetBytes(n),
			E: int(new(big.Int).SetBytes(e).Int64()),
		}
	}
	if len(keys) == 0 {
		return nil, errors.New("auth: JWKS contains no RSA keys")
	}
	return keys, nil
}
