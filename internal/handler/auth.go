package handler

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/gifteo/internal/auth"
	"github.com/sakif/gifteo/internal/model"
	"github.com/sakif/gifteo/internal/service"
)

const (
	stateCookie    = "gifteo_oauth_state"
	pkceCookie     = "gifteo_oauth_pkce"
	oauthCookieTTL = 10 * time.Minute
)

// OAuthProvider runs the redirect-based Google sign-in. *auth.GoogleProvider
// implements it.
type OAuthProvider interface {
	AuthURL(state, pkceVerifier string) string
	Exchange(ctx context.Context, code, pkceVerifier string) (model.Identity, error)
}

// CookieOptions controls how the session cookie is issued.
//
// CROSS-SITE COOKIES:
// In production the web client and the API live on different sites, so the
// browser only sends the cookie with SameSite=None, which in turn requires
// Secure. Locally everything is http://localhost and Lax is enough.
type CookieOptions struct {
	Secure   bool
	SameSite http.SameSite
}

// CookieOptionsFor returns the cookie settings for the environment.
func CookieOptionsFor(production bool) CookieOptions {
	if production {
		return CookieOptions{Secure: true, SameSite: http.SameSiteNoneMode}
	}
	return CookieOptions{SameSite: http.SameSiteLaxMode}
}

// AuthHandler signs users in and out.
//
// HANDLER RESPONSIBILITIES:
//   - HandleGoogleCredential → verify a browser-posted ID token, set the session cookie
//   - HandleGoogleLogin      → redirect to Google's consent page (code flow)
//   - HandleGoogleCallback   → exchange the code, set the session cookie, redirect home
//   - HandleLogout           → revoke the session and clear the cookie
//   - HandleMe               → the signed-in user and their profile
type AuthHandler struct {
	auth         *service.AuthService
	profiles     *service.ProfileService
	google       OAuthProvider // nil when the code flow is not configured
	cookies      CookieOptions
	clientOrigin string
	logger       *slog.Logger
}

func NewAuthHandler(
	authService *service.AuthService,
	profiles *service.ProfileService,
	google OAuthProvider,
	cookies CookieOptions,
	clientOrigin string,
	logger *slog.Logger,
) *AuthHandler {
	return &AuthHandler{
		auth:         authService,
		profiles:     profiles,
		google:       google,
		cookies:      cookies,
		clientOrigin: clientOrigin,
		logger:       logger,
	}
}

type credentialRequest struct {
	Credential string `json:"credential" validate:"required"`
}

// HandleGoogleCredential signs in with an ID token from Google Identity
// Services.
//
// HTTP: POST /api/auth/google
// REQUEST BODY: {"credential": "<google id token>"}
func (h *AuthHandler) HandleGoogleCredential(w http.ResponseWriter, r *http.Request) {
	var req credentialRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	res, err := h.auth.LoginWithCredential(r.Context(), req.Credential)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	h.setSession(w, res.Token, res.ExpiresAt)
	writeSuccess(w, http.StatusOK, envelope{
		"user":      res.User,
		"created":   res.Created,
		"expiresAt": res.ExpiresAt,
	})
}

// HandleGoogleLogin starts the authorization code flow.
//
// HTTP: GET /auth/google/login
//
// CSRF PROTECTION VIA STATE:
// A random state goes into a short-lived cookie and into the Google URL.
// The callback only proceeds when both match, proving this server started
// the flow. The PKCE verifier travels the same way so a stolen code is
// useless without the browser that asked for it.
func (h *AuthHandler) HandleGoogleLogin(w http.ResponseWriter, r *http.Request) {
	if h.google == nil {
		writeJSON(w, http.StatusNotFound, ErrorResponse{Message: "Google redirect sign-in is not configured", Error: "not_found"})
		return
	}

	state := xid.New().String()
	verifier := auth.NewPKCEVerifier()
	h.setTemporary(w, stateCookie, state)
	h.setTemporary(w, pkceCookie, verifier)

	http.Redirect(w, r, h.google.AuthURL(state, verifier), http.StatusTemporaryRedirect)
}

// HandleGoogleCallback completes the code flow and redirects to the client.
//
// HTTP: GET /auth/google/callback?code=xxx&state=yyy
func (h *AuthHandler) HandleGoogleCallback(w http.ResponseWriter, r *http.Request) {
	if h.google == nil {
		writeJSON(w, http.StatusNotFound, ErrorResponse{Message: "Google redirect sign-in is not configured", Error: "not_found"})
		return
	}

	q := r.URL.Query()
	state, stateErr := r.Cookie(stateCookie)
	verifier, pkceErr := r.Cookie(pkceCookie)
	h.clearTemporary(w, stateCookie)
	h.clearTemporary(w, pkceCookie)

	if stateErr != nil || pkceErr != nil || state.Value == "" || q.Get("state") != state.Value {
		h.logger.Warn("oauth callback: state mismatch")
		h.redirectToClient(w, r, "invalid_state")
		return
	}
	if e := q.Get("error"); e != "" {
		h.logger.Info("oauth callback: user denied authorization", slog.String("error", e))
		h.redirectToClient(w, r, "access_denied")
		return
	}

	id, err := h.google.Exchange(r.Context(), q.Get("code"), verifier.Value)
	if err != nil {
		h.logger.Warn("oauth callback: exchange failed", slog.String("error", err.Error()))
		h.redirectToClient(w, r, "exchange_failed")
		return
	}

	res, err := h.auth.LoginWithIdentity(r.Context(), id)
	if err != nil {
		h.logger.Error("oauth callback: login failed", slog.String("error", err.Error()))
		h.redirectToClient(w, r, "login_failed")
		return
	}

	h.setSession(w, res.Token, res.ExpiresAt)
	h.redirectToClient(w, r, "")
}

// HandleLogout revokes the presented session. It succeeds even without
// one, so a client can always get back to a clean state.
//
// HTTP: POST /api/auth/logout
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	if token := auth.TokenFromRequest(r); token != "" {
		if err := h.auth.Logout(r.Context(), token); err != nil {
			writeError(w, h.logger, err)
			return
		}
	}
	http.SetCookie(w, &http.Cookie{
		Name:     auth.SessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.cookies.Secure,
		SameSite: h.cookies.SameSite,
	})
	writeSuccess(w, http.StatusOK, nil)
}

// HandleMe returns the signed-in user with their own profile.
//
// HTTP: GET /api/me
func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	userID := currentUser(r)
	user, err := h.auth.GetUser(r.Context(), userID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	profile, err := h.profiles.GetOwnProfile(r.Context(), userID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeSuccess(w, http.StatusOK, envelope{"user": user, "profile": profile})
}

func (h *AuthHandler) setSession(w http.ResponseWriter, token string, expires time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     auth.SessionCookie,
		Value:    token,
		Path:     "/",
		Expires:  expires,
		MaxAge:   int(time.Until(expires).Seconds()),
		HttpOnly: true,
		Secure:   h.cookies.Secure,
		SameSite: h.cookies.SameSite,
	})
}

// setTemporary issues a cookie for the OAuth round trip. Google redirects
// back with a top-level GET, which Lax cookies survive.
func (h *AuthHandler) setTemporary(w http.ResponseWriter, name, value string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/auth/google",
		MaxAge:   int(oauthCookieTTL.Seconds()),
		HttpOnly: true,
		Secure:   h.cookies.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *AuthHandler) clearTemporary(w http.ResponseWriter, name string) {
	http.SetCookie(w, &http.Cookie{Name: name, Value: "", Path: "/auth/google", MaxAge: -1})
}

func (h *AuthHandler) redirectToClient(w http.ResponseWriter, r *http.Request, loginError string) {
	target := h.clientOrigin + "/"
	if loginError != "" {
		target = h.clientOrigin + "/login?error=" + url.QueryEscape(loginError)
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}
