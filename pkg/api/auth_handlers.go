package api

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"golang.org/x/oauth2"

	"github.com/hallwayhq/console/pkg/apperr"
	"github.com/hallwayhq/console/pkg/config"
	"github.com/hallwayhq/console/pkg/httputil"
	"github.com/hallwayhq/console/pkg/middleware"
	"github.com/hallwayhq/console/pkg/observability"
	"github.com/hallwayhq/console/pkg/session"
)

const (
	stateCookieName = "console_oidc_state"
	stateCookieTTL  = 10 * time.Minute
)

// AuthHandlers implements the OIDC login flow and session introspection
type AuthHandlers struct {
	sessions   *session.Store
	auth       *middleware.Auth
	translator *middleware.Translator
	logger     *observability.Logger

	idpConfig     config.IdPConfig
	sessionConfig config.SessionConfig
	publicURL     string

	mu       sync.Mutex
	provider *oidc.Provider
	oauth    *oauth2.Config
}

// NewAuthHandlers creates the login/logout handler group
func NewAuthHandlers(sessions *session.Store, auth *middleware.Auth, translator *middleware.Translator, logger *observability.Logger, idpCfg config.IdPConfig, sessionCfg config.SessionConfig, publicURL string) *AuthHandlers {
	return &AuthHandlers{
		sessions:      sessions,
		auth:          auth,
		translator:    translator,
		logger:        logger,
		idpConfig:     idpCfg,
		sessionConfig: sessionCfg,
		publicURL:     publicURL,
	}
}

// RegisterRoutes registers authentication routes
func (h *AuthHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/auth/login", h.translator.Translate(h.Login)).Methods("GET")
	router.HandleFunc("/auth/callback", h.translator.Translate(h.Callback)).Methods("GET")
	router.HandleFunc("/auth/logout", h.translator.Translate(h.Logout)).Methods("POST")
	router.HandleFunc("/api/session", h.translator.Translate(h.auth.WithSession(h.GetSession))).Methods("GET")
}

// Login redirects the browser to the identity provider's authorize endpoint
func (h *AuthHandlers) Login(w http.ResponseWriter, r *http.Request) error {
	oauthConfig, _, err := h.ensureProvider(r.Context())
	if err != nil {
		return err
	}

	state := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    state,
		Path:     "/auth",
		MaxAge:   int(stateCookieTTL.Seconds()),
		HttpOnly: true,
		Secure:   h.sessionConfig.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, oauthConfig.AuthCodeURL(state), http.StatusFound)
	return nil
}

// Callback completes the code exchange, verifies the ID token, and opens a
// session for the authenticated user.
func (h *AuthHandlers) Callback(w http.ResponseWriter, r *http.Request) error {
	oauthConfig, provider, err := h.ensureProvider(r.Context())
	if err != nil {
		return err
	}

	stateCookie, err := r.Cookie(stateCookieName)
	if err != nil || stateCookie.Value == "" || stateCookie.Value != r.URL.Query().Get("state") {
		return apperr.BadRequest("login state mismatch")
	}

	code := r.URL.Query().Get("code")
	if code == "" {
		return apperr.BadRequest("missing authorization code")
	}

	token, err := oauthConfig.Exchange(r.Context(), code)
	if err != nil {
		return apperr.Wrap(apperr.KindUnauthorized, "code exchange failed", err)
	}

	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok {
		return apperr.Unauthorized("identity provider returned no id token")
	}

	verifier := provider.Verifier(&oidc.Config{ClientID: h.idpConfig.AppClientID})
	idToken, err := verifier.Verify(r.Context(), rawIDToken)
	if err != nil {
		return apperr.Wrap(apperr.KindUnauthorized, "id token verification failed", err)
	}

	record, err := h.sessions.Create(r.Context(), idToken.Subject)
	if err != nil {
		return err
	}

	h.clearCookie(w, stateCookieName, "/auth")
	http.SetCookie(w, &http.Cookie{
		Name:     h.sessionConfig.CookieName,
		Value:    record.ID,
		Path:     "/",
		Domain:   h.sessionConfig.CookieDomain,
		MaxAge:   int(h.sessionConfig.TTL.Seconds()),
		HttpOnly: true,
		Secure:   h.sessionConfig.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})

	h.logger.FromContext(r.Context()).WithField("user_id", idToken.Subject).Info("user logged in")
	http.Redirect(w, r, "/", http.StatusFound)
	return nil
}

// Logout destroys the caller's session. Safe to call without one.
func (h *AuthHandlers) Logout(w http.ResponseWriter, r *http.Request) error {
	if cookie, err := r.Cookie(h.sessionConfig.CookieName); err == nil && cookie.Value != "" {
		if err := h.sessions.Destroy(r.Context(), cookie.Value); err != nil {
			h.logger.FromContext(r.Context()).WithError(err).Warn("session destroy failed")
		}
	}

	h.clearCookie(w, h.sessionConfig.CookieName, "/")
	h.clearCookie(w, h.sessionConfig.OrgCookieName, "/")
	httputil.WriteNoContent(w)
	return nil
}

// GetSession returns the resolved session for the dashboard shell
func (h *AuthHandlers) GetSession(w http.ResponseWriter, r *http.Request) error {
	httputil.WriteData(w, http.StatusOK, middleware.SessionFrom(r))
	return nil
}

// ensureProvider performs OIDC discovery once and caches the result
func (h *AuthHandlers) ensureProvider(ctx context.Context) (*oauth2.Config, *oidc.Provider, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.provider == nil {
		provider, err := oidc.NewProvider(ctx, h.idpConfig.Endpoint+"/oidc")
		if err != nil {
			return nil, nil, apperr.Wrap(apperr.KindServiceUnavailable, "identity provider discovery failed", err)
		}
		h.provider = provider
		h.oauth = &oauth2.Config{
			ClientID:     h.idpConfig.AppClientID,
			ClientSecret: h.idpConfig.AppClientSecret,
			Endpoint:     provider.Endpoint(),
			RedirectURL:  h.publicURL + "/auth/callback",
			Scopes:       []string{oidc.ScopeOpenID, "profile", "email"},
		}
	}
	return h.oauth, h.provider, nil
}

func (h *AuthHandlers) clearCookie(w http.ResponseWriter, name, path string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     path,
		Domain:   h.sessionConfig.CookieDomain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.sessionConfig.CookieSecure,
	})
}
