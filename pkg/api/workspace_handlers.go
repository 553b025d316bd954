package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/hallwayhq/console/pkg/apperr"
	"github.com/hallwayhq/console/pkg/contextkeys"
	"github.com/hallwayhq/console/pkg/httputil"
	"github.com/hallwayhq/console/pkg/middleware"
	"github.com/hallwayhq/console/pkg/roles"
	"github.com/hallwayhq/console/pkg/workspaces"
)

// maxLogoBytes bounds logo uploads
const maxLogoBytes = 2 << 20

// WorkspaceHandlers handles workspace, member, and invitation requests
type WorkspaceHandlers struct {
	service    *workspaces.Service
	auth       *middleware.Auth
	translator *middleware.Translator
}

// NewWorkspaceHandlers creates the workspace handler group
func NewWorkspaceHandlers(service *workspaces.Service, auth *middleware.Auth, translator *middleware.Translator) *WorkspaceHandlers {
	return &WorkspaceHandlers{
		service:    service,
		auth:       auth,
		translator: translator,
	}
}

// RegisterRoutes registers workspace routes
func (h *WorkspaceHandlers) RegisterRoutes(router *mux.Router) {
	session := func(handler middleware.Handler, required ...roles.Permission) http.HandlerFunc {
		return h.translator.Translate(h.auth.WithSession(handler, required...))
	}

	router.HandleFunc("/api/workspaces", session(h.Create)).Methods("POST")
	router.HandleFunc("/api/workspaces", session(h.List)).Methods("GET")
	router.HandleFunc("/api/workspaces/{id}", session(h.Get, roles.PermissionReadWorkspace)).Methods("GET")
	router.HandleFunc("/api/workspaces/{id}", session(h.Update, roles.PermissionManageWorkspace)).Methods("PATCH")
	router.HandleFunc("/api/workspaces/{id}", session(h.Delete, roles.PermissionDeleteWorkspace)).Methods("DELETE")
	router.HandleFunc("/api/workspaces/{id}/logo", session(h.UploadLogo, roles.PermissionManageWorkspace)).Methods("PUT")

	router.HandleFunc("/api/workspaces/{id}/members", session(h.ListMembers, roles.PermissionReadMembers)).Methods("GET")
	router.HandleFunc("/api/workspaces/{id}/members/{userID}", session(h.RemoveMember, roles.PermissionManageMembers)).Methods("DELETE")
	router.HandleFunc("/api/workspaces/{id}/members/{userID}/roles", session(h.UpdateMemberRoles, roles.PermissionManageMembers)).Methods("PUT")

	router.HandleFunc("/api/workspaces/{id}/invitations", session(h.Invite, roles.PermissionInviteMembers)).Methods("POST")
	router.HandleFunc("/api/workspaces/{id}/invitations", session(h.ListInvitations, roles.PermissionReadMembers)).Methods("GET")
	router.HandleFunc("/api/workspaces/{id}/invitations/{invitationID}", session(h.RevokeInvitation, roles.PermissionInviteMembers)).Methods("DELETE")
	router.HandleFunc("/api/workspaces/{id}/invitations/{invitationID}/resend", session(h.ResendInvitation, roles.PermissionInviteMembers)).Methods("POST")
}

// Create makes a new workspace with the caller as owner
func (h *WorkspaceHandlers) Create(w http.ResponseWriter, r *http.Request) error {
	var req CreateWorkspaceRequest
	if err := httputil.ParseJSON(r, &req); err != nil {
		return err
	}
	if fieldErrors := req.Validate(); len(fieldErrors) > 0 {
		return apperr.Validation(fieldErrors)
	}

	org, err := h.service.Create(r.Context(), contextkeys.UserID(r.Context()), workspaces.CreateWorkspaceRequest{
		Name:        req.Name,
		Description: req.Description,
	})
	if err != nil {
		return err
	}

	httputil.WriteData(w, http.StatusCreated, org)
	return nil
}

// List returns the caller's workspace memberships
func (h *WorkspaceHandlers) List(w http.ResponseWriter, r *http.Request) error {
	httputil.WriteData(w, http.StatusOK, middleware.SessionFrom(r).Organizations)
	return nil
}

// Get retrieves one workspace
func (h *WorkspaceHandlers) Get(w http.ResponseWriter, r *http.Request) error {
	org, err := h.service.Get(r.Context(), httputil.PathString(r, "id"))
	if err != nil {
		return err
	}
	httputil.WriteData(w, http.StatusOK, org)
	return nil
}

// Update changes workspace attributes
func (h *WorkspaceHandlers) Update(w http.ResponseWriter, r *http.Request) error {
	var req UpdateWorkspaceRequest
	if err := httputil.ParseJSON(r, &req); err != nil {
		return err
	}
	if fieldErrors := req.Validate(); len(fieldErrors) > 0 {
		return apperr.Validation(fieldErrors)
	}

	org, err := h.service.Update(r.Context(), httputil.PathString(r, "id"), workspaces.UpdateWorkspaceRequest{
		Name:        req.Name,
		Description: req.Description,
	})
	if err != nil {
		return err
	}

	httputil.WriteData(w, http.StatusOK, org)
	return nil
}

// Delete removes a workspace
func (h *WorkspaceHandlers) Delete(w http.ResponseWriter, r *http.Request) error {
	if err := h.service.Delete(r.Context(), httputil.PathString(r, "id"), contextkeys.UserID(r.Context())); err != nil {
		return err
	}
	httputil.WriteNoContent(w)
	return nil
}

// UploadLogo stores a workspace logo and updates branding
func (h *WorkspaceHandlers) UploadLogo(w http.ResponseWriter, r *http.Request) error {
	body := http.MaxBytesReader(w, r.Body, maxLogoBytes)
	org, err := h.service.UploadLogo(r.Context(), httputil.PathString(r, "id"), body, r.Header.Get("Content-Type"))
	if err != nil {
		return err
	}
	httputil.WriteData(w, http.StatusOK, org)
	return nil
}

// ListMembers lists workspace members with their roles
func (h *WorkspaceHandlers) ListMembers(w http.ResponseWriter, r *http.Request) error {
	members, err := h.service.ListMembers(r.Context(), httputil.PathString(r, "id"))
	if err != nil {
		return err
	}
	httputil.WriteData(w, http.StatusOK, members)
	return nil
}

// RemoveMember removes a member from the workspace
func (h *WorkspaceHandlers) RemoveMember(w http.ResponseWriter, r *http.Request) error {
	userID := httputil.PathString(r, "userID")
	if userID == contextkeys.UserID(r.Context()) {
		return apperr.BadRequest("cannot remove yourself from a workspace")
	}

	if err := h.service.RemoveMember(r.Context(), httputil.PathString(r, "id"), userID); err != nil {
		return err
	}
	httputil.WriteNoContent(w)
	return nil
}

// UpdateMemberRoles replaces a member's role assignments
func (h *WorkspaceHandlers) UpdateMemberRoles(w http.ResponseWriter, r *http.Request) error {
	var req UpdateMemberRolesRequest
	if err := httputil.ParseJSON(r, &req); err != nil {
		return err
	}
	if fieldErrors := req.Validate(); len(fieldErrors) > 0 {
		return apperr.Validation(fieldErrors)
	}

	if err := h.service.UpdateMemberRoles(r.Context(), httputil.PathString(r, "id"), httputil.PathString(r, "userID"), req.RoleNames); err != nil {
		return err
	}
	httputil.WriteNoContent(w)
	return nil
}

// Invite sends one or more workspace invitations. Invitees that cannot be
// invited (for example a duplicate pending invitation) are reported as
// skipped rather than failing the batch.
func (h *WorkspaceHandlers) Invite(w http.ResponseWriter, r *http.Request) error {
	var req InviteMembersRequest
	if err := httputil.ParseJSON(r, &req); err != nil {
		return err
	}
	if fieldErrors := req.Validate(); len(fieldErrors) > 0 {
		return apperr.Validation(fieldErrors)
	}

	requests := make([]workspaces.InviteRequest, 0, len(req.Invitations))
	for _, entry := range req.Invitations {
		requests = append(requests, workspaces.InviteRequest{Email: entry.Email, RoleName: entry.Role})
	}

	outcomes, err := h.service.Invite(r.Context(), httputil.PathString(r, "id"), contextkeys.UserID(r.Context()), requests)
	if err != nil {
		return err
	}

	resp := InviteResponse{Invited: []*workspaces.ShadowInvitation{}, Skipped: []SkippedInvitation{}}
	for _, outcome := range outcomes {
		if outcome.Accepted() {
			resp.Invited = append(resp.Invited, outcome.Invitation)
		} else {
			resp.Skipped = append(resp.Skipped, SkippedInvitation{Email: outcome.Email, Reason: outcome.Reason})
		}
	}

	httputil.WriteData(w, http.StatusCreated, resp)
	return nil
}

// ListInvitations lists the workspace's invitation records
func (h *WorkspaceHandlers) ListInvitations(w http.ResponseWriter, r *http.Request) error {
	invitations, err := h.service.ListInvitations(r.Context(), httputil.PathString(r, "id"))
	if err != nil {
		return err
	}
	httputil.WriteData(w, http.StatusOK, invitations)
	return nil
}

// RevokeInvitation cancels a pending invitation
func (h *WorkspaceHandlers) RevokeInvitation(w http.ResponseWriter, r *http.Request) error {
	if err := h.service.RevokeInvitation(r.Context(), httputil.PathString(r, "id"), httputil.PathString(r, "invitationID")); err != nil {
		return err
	}
	httputil.WriteNoContent(w)
	return nil
}

// ResendInvitation reissues a pending or expired invitation
func (h *WorkspaceHandlers) ResendInvitation(w http.ResponseWriter, r *http.Request) error {
	invitation, err := h.service.ResendInvitation(r.Context(), httputil.PathString(r, "id"), httputil.PathString(r, "invitationID"))
	if err != nil {
		return err
	}
	httputil.WriteData(w, http.StatusOK, invitation)
	return nil
}
