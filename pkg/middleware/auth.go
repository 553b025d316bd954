package middleware

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/hallwayhq/console/pkg/apikeys"
	"github.com/hallwayhq/console/pkg/apperr"
	"github.com/hallwayhq/console/pkg/config"
	"github.com/hallwayhq/console/pkg/contextkeys"
	"github.com/hallwayhq/console/pkg/httputil"
	"github.com/hallwayhq/console/pkg/roles"
	"github.com/hallwayhq/console/pkg/session"
)

// Auth builds the two authentication wrappers: cookie sessions for the
// dashboard API and bearer API keys for the external API.
type Auth struct {
	sessions  *session.Store
	resolver  *session.Resolver
	validator *apikeys.Validator
	config    config.SessionConfig
}

// NewAuth creates the authentication middleware
func NewAuth(sessions *session.Store, resolver *session.Resolver, validator *apikeys.Validator, cfg config.SessionConfig) *Auth {
	return &Auth{
		sessions:  sessions,
		resolver:  resolver,
		validator: validator,
		config:    cfg,
	}
}

// WithSession resolves the caller's session and enforces the required
// permissions before the handler runs. Routes with a workspace path parameter
// are resolved against that workspace; a workspace the caller does not belong
// to reads as not found. Permission failures name the first missing
// permission.
func (a *Auth) WithSession(h Handler, required ...roles.Permission) Handler {
	return func(w http.ResponseWriter, r *http.Request) error {
		record, err := a.sessionRecord(r)
		if err != nil {
			return err
		}

		workspaceID := mux.Vars(r)["id"]
		selector := workspaceID
		if selector == "" {
			selector = a.stickyOrgID(r)
		}

		sess, err := a.resolver.Resolve(r.Context(), record.UserID, selector)
		if err != nil {
			return err
		}

		if workspaceID != "" && (sess.CurrentOrganization == nil || sess.CurrentOrganization.ID != workspaceID) {
			return apperr.NotFound("workspace not found")
		}

		for _, perm := range required {
			if !sess.HasPermission(perm) {
				return apperr.Forbidden("requires permission: " + string(perm))
			}
		}

		ctx := contextkeys.WithSession(r.Context(), sess)
		ctx = contextkeys.WithUserID(ctx, sess.User.ID)
		return h(w, r.WithContext(ctx))
	}
}

// WithAPIKey authenticates a bearer API key and enforces required scopes.
// Scope failures list every missing scope.
func (a *Auth) WithAPIKey(h Handler, required ...apikeys.Scope) Handler {
	return func(w http.ResponseWriter, r *http.Request) error {
		bearer := httputil.BearerToken(r)
		if bearer == "" {
			return apperr.Unauthorized("missing API key")
		}

		key, err := a.validator.Authenticate(r.Context(), bearer)
		if err != nil {
			return err
		}

		if err := apikeys.RequireScopes(key, required...); err != nil {
			return err
		}

		return h(w, r.WithContext(contextkeys.WithAPIKey(r.Context(), key)))
	}
}

// sessionRecord loads the session named by the cookie, or fails unauthorized
func (a *Auth) sessionRecord(r *http.Request) (*session.Record, error) {
	cookie, err := r.Cookie(a.config.CookieName)
	if err != nil || cookie.Value == "" {
		return nil, apperr.Unauthorized("not authenticated")
	}

	record, err := a.sessions.Get(r.Context(), cookie.Value)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "session lookup failed", err)
	}
	if record == nil {
		return nil, apperr.Unauthorized("session expired")
	}
	return record, nil
}

// stickyOrgID reads the workspace selector cookie, if present
func (a *Auth) stickyOrgID(r *http.Request) string {
	cookie, err := r.Cookie(a.config.OrgCookieName)
	if err != nil {
		return ""
	}
	return cookie.Value
}
