// Package model defines the data structures used throughout the application.
// In Go, we use structs to represent our data. They are similar to classes in other languages,
// but without inheritance. Go favours composition over inheritance.
package model

import "time"

// User represents a registered account.
//
// Google is the only identity provider, so GoogleSub (the "sub" claim of a
// verified Google ID token) is the stable external identifier. We still
// generate our own internal string ID (xid) so primary keys are not tied to
// a third-party numbering scheme.
//
// A user is created once and only CountryCode changes afterwards; it drives
// which global holidays the user is reminded about.
type User struct {
	ID          string    `json:"id"          db:"id"`
	Email       string    `json:"email"       db:"email"`
	GoogleSub   string    `json:"-"           db:"google_sub"`
	CountryCode string    `json:"countryCode" db:"country_code"`
	CreatedAt   time.Time `json:"createdAt"   db:"created_at"`
}

// Profile is the public face of a user, one-to-one with User.
// Birthdate is optional; when present it feeds automatic birthday events
// on every connected user's calendar.
type Profile struct {
	ID          string `json:"id"          db:"id"`
	UserID      string `json:"userId"      db:"user_id"`
	PersonID    string `json:"personId"    db:"person_id"`
	DisplayName string `json:"displayName" db:"display_name"`
	AvatarURL   string `json:"avatarUrl"   db:"avatar_url"`
	Bio         string `json:"bio"         db:"bio"`
	Birthdate   *Date  `json:"birthdate,omitempty" db:"birthdate"`
}

// Identity is the verified result of an external sign-in. It is the input
// to user creation; nothing else in the app trusts client-supplied identity.
type Identity struct {
	Subject   string
	Email     string
	Name      string
	AvatarURL string
	Locale    string
}

// Session is a server-side login record. Only a digest of the opaque token
// is stored, so a leaked database does not leak usable cookies.
type Session struct {
	TokenHash string    `db:"token_hash"`
	UserID    string    `db:"user_id"`
	CreatedAt time.Time `db:"created_at"`
	ExpiresAt time.Time `db:"expires_at"`
}
