package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sakif/gifteo/internal/apperror"
	"github.com/sakif/gifteo/internal/auth"
	"github.com/sakif/gifteo/internal/model"
	"github.com/sakif/gifteo/internal/repository"
)

// DefaultSessionTTL is used when NewAuthService gets a zero TTL.
const DefaultSessionTTL = time.Hour

// IdentityVerifier checks a Google ID token. *auth.IDTokenVerifier
// satisfies it; tests substitute a fake.
type IdentityVerifier interface {
	Verify(ctx context.Context, rawIDToken string) (model.Identity, error)
}

// AuthService handles sign-in, session resolution and sign-out.
//
// FLOW:
//
//	AuthHandler → AuthService.LoginWithCredential → IdentityVerifier (Google)
//	                                              → UserRepository.CreateFromIdentity
//	                                              → SessionRepository.CreateSession
//
// The service never sees cookies. It hands the raw session token back to
// the handler, which is the only place that knows about HTTP.
type AuthService struct {
	users          repository.UserRepository
	sessions       repository.SessionRepository
	verifier       IdentityVerifier
	ttl            time.Duration
	defaultCountry string
	now            Clock
	logger         *slog.Logger
}

func NewAuthService(
	users repository.UserRepository,
	sessions repository.SessionRepository,
	verifier IdentityVerifier,
	ttl time.Duration,
	defaultCountry string,
	logger *slog.Logger,
) *AuthService {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &AuthService{
		users:          users,
		sessions:       sessions,
		verifier:       verifier,
		ttl:            ttl,
		defaultCountry: strings.ToUpper(defaultCountry),
		now:            time.Now,
		logger:         logger,
	}
}

// AuthResult bundles what the handler needs to set the cookie and reply.
type AuthResult struct {
	User      *model.User
	Token     string
	ExpiresAt time.Time
	// Created is true on the user's first sign-in.
	Created bool
}

// LoginWithCredential verifies a Google ID token posted by the browser
// (the One Tap / Sign-In button flow) and opens a session.
func (s *AuthService) LoginWithCredential(ctx context.Context, credential string) (*AuthResult, error) {
	if strings.TrimSpace(credential) == "" {
		return nil, apperror.ValidationFailed("credential", "credential is required")
	}

	id, err := s.verifier.Verify(ctx, credential)
	if err != nil {
		s.logger.Warn("rejected google credential", slog.String("error", err.Error()))
		return nil, apperror.Unauthenticated()
	}

	return s.LoginWithIdentity(ctx, id)
}

// LoginWithIdentity opens a session for an already verified identity. The
// redirect flow calls it after the code exchange verified the ID token.
func (s *AuthService) LoginWithIdentity(ctx context.Context, id model.Identity) (*AuthResult, error) {
	user, created, err := s.users.CreateFromIdentity(ctx, id, s.countryFor(id.Locale))
	if err != nil {
		return nil, fmt.Errorf("service/auth: resolving user (sub=%s): %w", id.Subject, err)
	}

	token, digest, err := auth.NewSessionToken()
	if err != nil {
		return nil, fmt.Errorf("service/auth: %w", err)
	}

	now := s.now().UTC()
	session := &model.Session{
		TokenHash: digest,
		UserID:    user.ID,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}
	if err := s.sessions.CreateSession(ctx, session); err != nil {
		return nil, fmt.Errorf("service/auth: %w", err)
	}

	if created {
		s.logger.Info("user registered", slog.String("userID", user.ID), slog.String("country", user.CountryCode))
	}
	s.logger.Info("user signed in", slog.String("userID", user.ID))

	return &AuthResult{User: user, Token: token, ExpiresAt: session.ExpiresAt, Created: created}, nil
}

// countryFor takes the region subtag of a BCP 47 locale ("cs-CZ" → "CZ")
// and falls back to the configured default.
func (s *AuthService) countryFor(locale string) string {
	locale = strings.ReplaceAll(locale, "_", "-")
	parts := strings.Split(locale, "-")
	for _, p := range parts[1:] {
		if len(p) == 2 && isASCIIAlpha(p) {
			return strings.ToUpper(p)
		}
	}
	return s.defaultCountry
}

func isASCIIAlpha(s string) bool {
	for _, r := range s {
		if (r < 'a' || r > 'z') && (r < 'A' || r > 'Z') {
			return false
		}
	}
	return true
}

// ResolveSession implements auth.SessionResolver.
//
// Every way a token can be wrong collapses into apperror.Unauthenticated.
// Only a failing store is reported as something else.
func (s *AuthService) ResolveSession(ctx context.Context, token string) (string, error) {
	if !auth.WellFormedToken(token) {
		return "", apperror.Unauthenticated()
	}

	session, err := s.sessions.GetActiveSession(ctx, auth.HashSessionToken(token), s.now())
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return "", apperror.Unauthenticated()
		}
		return "", fmt.Errorf("service/auth: resolving session: %w", err)
	}
	return session.UserID, nil
}

// Logout revokes the session behind token. Unknown tokens are ignored so
// logging out twice is harmless.
func (s *AuthService) Logout(ctx context.Context, token string) error {
	if !auth.WellFormedToken(token) {
		return nil
	}
	if err := s.sessions.DeleteSession(ctx, auth.HashSessionToken(token)); err != nil {
		return fmt.Errorf("service/auth: %w", err)
	}
	return nil
}

// GetUser returns the user record for /api/me.
func (s *AuthService) GetUser(ctx context.Context, id string) (*model.User, error) {
	user, err := s.users.GetUserByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("service/auth: fetching user %s: %w", id, err)
	}
	return user, nil
}

// PurgeExpiredSessions deletes sessions that can no longer resolve.
func (s *AuthService) PurgeExpiredSessions(ctx context.Context) (int64, error) {
	n, err := s.sessions.DeleteExpiredSessions(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("service/auth: %w", err)
	}
	if n > 0 {
		s.logger.Info("purged expired sessions", slog.Int64("count", n))
	}
	return n, nil
}
