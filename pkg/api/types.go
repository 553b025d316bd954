package api

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/hallwayhq/console/pkg/roles"
	"github.com/hallwayhq/console/pkg/workspaces"
)

const maxNameLength = 128

// CreateWorkspaceRequest is the body for creating a workspace
type CreateWorkspaceRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Validate checks the request and returns field errors keyed by field name
func (r CreateWorkspaceRequest) Validate() map[string][]string {
	fieldErrors := map[string][]string{}
	if strings.TrimSpace(r.Name) == "" {
		fieldErrors["name"] = append(fieldErrors["name"], "name is required")
	}
	if len(r.Name) > maxNameLength {
		fieldErrors["name"] = append(fieldErrors["name"], "name must be at most 128 characters")
	}
	return fieldErrors
}

// UpdateWorkspaceRequest is the body for updating workspace attributes.
// Absent fields are left unchanged.
type UpdateWorkspaceRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
}

func (r UpdateWorkspaceRequest) Validate() map[string][]string {
	fieldErrors := map[string][]string{}
	if r.Name != nil {
		if strings.TrimSpace(*r.Name) == "" {
			fieldErrors["name"] = append(fieldErrors["name"], "name cannot be empty")
		}
		if len(*r.Name) > maxNameLength {
			fieldErrors["name"] = append(fieldErrors["name"], "name must be at most 128 characters")
		}
	}
	return fieldErrors
}

// InviteMembersRequest carries one or more invitations for a workspace
type InviteMembersRequest struct {
	Invitations []InvitationEntry `json:"invitations"`
}

// InvitationEntry is a single invitee
type InvitationEntry struct {
	Email string `json:"email"`
	Role  string `json:"role"`
}

func (r InviteMembersRequest) Validate() map[string][]string {
	fieldErrors := map[string][]string{}
	if len(r.Invitations) == 0 {
		fieldErrors["invitations"] = append(fieldErrors["invitations"], "at least one invitation is required")
	}
	for _, entry := range r.Invitations {
		if !strings.Contains(entry.Email, "@") {
			fieldErrors["email"] = append(fieldErrors["email"], "invalid email address: "+entry.Email)
		}
		if strings.TrimSpace(entry.Role) == "" {
			fieldErrors["role"] = append(fieldErrors["role"], "role is required")
		}
	}
	return fieldErrors
}

// UpdateMemberRolesRequest replaces a member's role assignments
type UpdateMemberRolesRequest struct {
	RoleNames []string `json:"roleNames"`
}

func (r UpdateMemberRolesRequest) Validate() map[string][]string {
	fieldErrors := map[string][]string{}
	if len(r.RoleNames) == 0 {
		fieldErrors["roleNames"] = append(fieldErrors["roleNames"], "at least one role is required")
	}
	for _, name := range r.RoleNames {
		if strings.TrimSpace(name) == "" {
			fieldErrors["roleNames"] = append(fieldErrors["roleNames"], "role names cannot be empty")
		}
	}
	return fieldErrors
}

// CreateAPIKeyRequest is the body for issuing an API key
type CreateAPIKeyRequest struct {
	Name      string     `json:"name"`
	Scopes    []string   `json:"scopes"`
	ExpiresAt *time.Time `json:"expiresAt"`
}

func (r CreateAPIKeyRequest) Validate() map[string][]string {
	fieldErrors := map[string][]string{}
	if strings.TrimSpace(r.Name) == "" {
		fieldErrors["name"] = append(fieldErrors["name"], "name is required")
	}
	if len(r.Name) > maxNameLength {
		fieldErrors["name"] = append(fieldErrors["name"], "name must be at most 128 characters")
	}
	if len(r.Scopes) == 0 {
		fieldErrors["scopes"] = append(fieldErrors["scopes"], "at least one scope is required")
	}
	for _, scope := range r.Scopes {
		if !roles.KnownPermission(roles.Permission(scope)) {
			fieldErrors["scopes"] = append(fieldErrors["scopes"], "unknown scope: "+scope)
		}
	}
	if r.ExpiresAt != nil && r.ExpiresAt.Before(time.Now()) {
		fieldErrors["expiresAt"] = append(fieldErrors["expiresAt"], "expiry must be in the future")
	}
	return fieldErrors
}

// ScopePermissions returns the requested scopes as permissions
func (r CreateAPIKeyRequest) ScopePermissions() []roles.Permission {
	perms := make([]roles.Permission, 0, len(r.Scopes))
	for _, scope := range r.Scopes {
		perms = append(perms, roles.Permission(scope))
	}
	return perms
}

// CreateDestinationRequest is the body for registering a webhook destination
type CreateDestinationRequest struct {
	Type   string            `json:"type"`
	Topics []string          `json:"topics"`
	Config map[string]string `json:"config"`
}

func (r CreateDestinationRequest) Validate() map[string][]string {
	fieldErrors := map[string][]string{}
	if strings.TrimSpace(r.Type) == "" {
		fieldErrors["type"] = append(fieldErrors["type"], "type is required")
	}
	return fieldErrors
}

// UpdateDestinationRequest is the body for updating a webhook destination
type UpdateDestinationRequest struct {
	Topics []string          `json:"topics"`
	Config map[string]string `json:"config"`
}

// RetryDeliveryRequest names the destination to retry an event against
type RetryDeliveryRequest struct {
	DestinationID string `json:"destinationId"`
}

func (r RetryDeliveryRequest) Validate() map[string][]string {
	fieldErrors := map[string][]string{}
	if strings.TrimSpace(r.DestinationID) == "" {
		fieldErrors["destinationId"] = append(fieldErrors["destinationId"], "destinationId is required")
	}
	return fieldErrors
}

// PublishEventRequest is the external-API body for publishing an event.
// The tenant is always the workspace of the authenticating API key. Callers
// that retry can pin an idempotency key; one is generated otherwise.
type PublishEventRequest struct {
	Topic          string            `json:"topic"`
	Metadata       map[string]string `json:"metadata"`
	Data           json.RawMessage   `json:"data"`
	IdempotencyKey string            `json:"idempotencyKey"`
}

func (r PublishEventRequest) Validate() map[string][]string {
	fieldErrors := map[string][]string{}
	if strings.TrimSpace(r.Topic) == "" {
		fieldErrors["topic"] = append(fieldErrors["topic"], "topic is required")
	}
	if len(r.Data) == 0 {
		fieldErrors["data"] = append(fieldErrors["data"], "data is required")
	}
	return fieldErrors
}

// InviteResponse reports per-invitee outcomes for a batch invite
type InviteResponse struct {
	Invited []*workspaces.ShadowInvitation `json:"invited"`
	Skipped []SkippedInvitation            `json:"skipped"`
}

// SkippedInvitation explains why an invitee was not invited
type SkippedInvitation struct {
	Email  string `json:"email"`
	Reason string `json:"reason"`
}

// VerifyKeyResponse is the external key-introspection payload
type VerifyKeyResponse struct {
	Valid       bool     `json:"valid"`
	WorkspaceID string   `json:"workspaceId"`
	Name        string   `json:"name"`
	Scopes      []string `json:"scopes"`
}

// PublishResponse acknowledges an accepted event
type PublishResponse struct {
	EventID string `json:"eventId"`
}
