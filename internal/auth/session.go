package auth

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/blake2b"
)

// SessionCookie is the name of the HttpOnly cookie carrying the token.
const SessionCookie = "gifteo_session"

// tokenBytes of randomness give a 43-character base64url token.
const tokenBytes = 32

// NewSessionToken returns a fresh opaque token and the digest to store.
//
// The token itself is only ever held by the client. The database keeps
// BLAKE2b-256(token), so reading the sessions table does not yield cookies
// that could be replayed.
func NewSessionToken() (token, digest string, err error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", "", fmt.Errorf("auth: generating session token: %w", err)
	}
	token = base64.RawURLEncoding.EncodeToString(b)
	return token, HashSessionToken(token), nil
}

// HashSessionToken is the lookup key for a presented token.
func HashSessionToken(token string) string {
	sum := blake2b.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// WellFormedToken rejects values that could not have been issued by
// NewSessionToken without touching the database. The caller must still
// treat a false result exactly like an unknown token.
func WellFormedToken(token string) bool {
	if len(token) != base64.RawURLEncoding.EncodedLen(tokenBytes) {
		return false
	}
	_, err := base64.RawURLEncoding.DecodeString(token)
	return err == nil
}
