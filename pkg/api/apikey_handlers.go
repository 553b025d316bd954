package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/hallwayhq/console/pkg/apikeys"
	"github.com/hallwayhq/console/pkg/apperr"
	"github.com/hallwayhq/console/pkg/contextkeys"
	"github.com/hallwayhq/console/pkg/httputil"
	"github.com/hallwayhq/console/pkg/middleware"
	"github.com/hallwayhq/console/pkg/roles"
)

// APIKeyHandlers handles API key issuance and the external verify endpoint
type APIKeyHandlers struct {
	store      *apikeys.Store
	validator  *apikeys.Validator
	auth       *middleware.Auth
	translator *middleware.Translator
}

// NewAPIKeyHandlers creates the API key handler group
func NewAPIKeyHandlers(store *apikeys.Store, validator *apikeys.Validator, auth *middleware.Auth, translator *middleware.Translator) *APIKeyHandlers {
	return &APIKeyHandlers{
		store:      store,
		validator:  validator,
		auth:       auth,
		translator: translator,
	}
}

// RegisterRoutes registers API key routes
func (h *APIKeyHandlers) RegisterRoutes(router *mux.Router) {
	session := func(handler middleware.Handler, required ...roles.Permission) http.HandlerFunc {
		return h.translator.Translate(h.auth.WithSession(handler, required...))
	}

	router.HandleFunc("/api/workspaces/{id}/api-keys", session(h.Create, roles.PermissionWriteAPIKeys)).Methods("POST")
	router.HandleFunc("/api/workspaces/{id}/api-keys", session(h.List, roles.PermissionReadAPIKeys)).Methods("GET")
	router.HandleFunc("/api/workspaces/{id}/api-keys/{keyID}", session(h.Delete, roles.PermissionWriteAPIKeys)).Methods("DELETE")

	// External surface: the key itself is the credential.
	router.HandleFunc("/v1/api-keys/verify", h.translator.Translate(h.auth.WithAPIKey(h.Verify))).Methods("GET")
	router.HandleFunc("/v1/api-keys/{keyID}", h.translator.Translate(h.auth.WithAPIKey(h.DeleteExternal, roles.PermissionWriteAPIKeys))).Methods("DELETE")
}

// Create issues a new API key. The plaintext is returned exactly once.
func (h *APIKeyHandlers) Create(w http.ResponseWriter, r *http.Request) error {
	var req CreateAPIKeyRequest
	if err := httputil.ParseJSON(r, &req); err != nil {
		return err
	}
	if fieldErrors := req.Validate(); len(fieldErrors) > 0 {
		return apperr.Validation(fieldErrors)
	}

	created, err := h.store.Create(r.Context(), apikeys.CreateKeyRequest{
		OrganizationID: httputil.PathString(r, "id"),
		Name:           req.Name,
		Scopes:         req.ScopePermissions(),
		CreatedBy:      contextkeys.UserID(r.Context()),
		ExpiresAt:      req.ExpiresAt,
	})
	if err != nil {
		return err
	}

	httputil.WriteData(w, http.StatusCreated, created)
	return nil
}

// List returns the workspace's keys. Hashes never leave the store; previews
// identify keys to the dashboard.
func (h *APIKeyHandlers) List(w http.ResponseWriter, r *http.Request) error {
	keys, err := h.store.List(r.Context(), httputil.PathString(r, "id"))
	if err != nil {
		return err
	}
	httputil.WriteData(w, http.StatusOK, keys)
	return nil
}

// Delete revokes an API key from the dashboard
func (h *APIKeyHandlers) Delete(w http.ResponseWriter, r *http.Request) error {
	if err := h.deleteKey(r, httputil.PathString(r, "id"), httputil.PathString(r, "keyID")); err != nil {
		return err
	}
	httputil.WriteNoContent(w)
	return nil
}

// DeleteExternal revokes a key in the authenticating key's workspace. The key
// that authenticated the current request can never delete itself.
func (h *APIKeyHandlers) DeleteExternal(w http.ResponseWriter, r *http.Request) error {
	authKey := middleware.APIKeyFrom(r)
	if err := h.deleteKey(r, authKey.OrganizationID, httputil.PathString(r, "keyID")); err != nil {
		return err
	}
	httputil.WriteNoContent(w)
	return nil
}

func (h *APIKeyHandlers) deleteKey(r *http.Request, workspaceID, keyID string) error {
	if authKey := middleware.APIKeyFrom(r); authKey != nil && authKey.ID == keyID {
		return apperr.BadRequest("cannot delete the API key used to authenticate this request")
	}

	key, err := h.store.Get(r.Context(), workspaceID, keyID)
	if err != nil {
		return err
	}

	if err := h.store.Delete(r.Context(), key.OrganizationID, key.ID); err != nil {
		return err
	}
	h.validator.Invalidate(key.KeyHash)
	return nil
}

// Verify introspects the authenticating key for external callers
func (h *APIKeyHandlers) Verify(w http.ResponseWriter, r *http.Request) error {
	key := middleware.APIKeyFrom(r)

	scopes := make([]string, 0, len(key.Scopes))
	for _, scope := range key.Scopes {
		scopes = append(scopes, string(scope))
	}

	httputil.WriteData(w, http.StatusOK, VerifyKeyResponse{
		Valid:       true,
		WorkspaceID: key.OrganizationID,
		Name:        key.Name,
		Scopes:      scopes,
	})
	return nil
}
