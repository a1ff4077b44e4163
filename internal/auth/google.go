package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/sakif/gifteo/internal/model"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"
)

// GoogleProvider wraps golang.org/x/oauth2 for the Google Authorization
// Code flow.
//
// OAUTH 2.0 AUTHORIZATION CODE FLOW WITH PKCE:
//  1. The server redirects the browser to Google with our client id, a
//     random state and a PKCE challenge.
//  2. Google redirects back to the callback with a short-lived code.
//  3. The server exchanges code + verifier for tokens (server-to-server).
//  4. The token response carries an id_token, which is verified exactly
//     like a credential posted by the browser.
//
// The access token is never used: everything we need is in the ID token.
type GoogleProvider struct {
	config   *oauth2.Config
	verifier *IDTokenVerifier
}

// NewGoogleProvider creates a provider. callbackURL must match an
// authorised redirect URI of the OAuth client exactly.
func NewGoogleProvider(clientID, clientSecret, callbackURL string, verifier *IDTokenVerifier) *GoogleProvider {
	return &GoogleProvider{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  callbackURL,
			Scopes:       []string{"openid", "email", "profile"},
			Endpoint:     endpoints.Google,
		},
		verifier: verifier,
	}
}

// AuthURL returns the Google consent URL for the given state and PKCE
// verifier. Both are stored by the handler in short-lived cookies.
func (p *GoogleProvider) AuthURL(state, pkceVerifier string) string {
	return p.config.AuthCodeURL(state,
		oauth2.AccessTypeOnline,
		oauth2.S256ChallengeOption(pkceVerifier),
	)
}

// NewPKCEVerifier returns a fresh code verifier.
func NewPKCEVerifier() string {
	return oauth2.GenerateVerifier()
}

// Exchange trades the authorization code for a verified identity.
func (p *GoogleProvider) Exchange(ctx context.Context, code, pkceVerifier string) (model.Identity, error) {
	tok, err := p.config.Exchange(ctx, code, oauth2.VerifierOption(pkceVerifier))
	if err != nil {
		return model.Identity{}, fmt.Errorf("auth: exchanging OAuth code: %w", err)
	}

	raw, ok := tok.Extra("id_token").(string)
	if !ok || raw == "" {
		return model.Identity{}, errors.New("auth: token response has no id_token")
	}

	return p.verifier.Verify(ctx, raw)
}
