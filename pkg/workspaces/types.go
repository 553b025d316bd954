// Package workspaces implements workspace management: CRUD proxied to the
// identity provider, member and invitation lifecycle, and branding uploads.
package workspaces

import (
	"time"
)

// ShadowInvitationStatus tracks the local copy of a provider invitation.
type ShadowInvitationStatus string

const (
	ShadowPending  ShadowInvitationStatus = "pending"
	ShadowAccepted ShadowInvitationStatus = "accepted"
	ShadowExpired  ShadowInvitationStatus = "expired"
	ShadowRevoked  ShadowInvitationStatus = "revoked"
)

// ShadowInvitation is the locally persisted record of an invitation. The
// identity provider owns the invitation lifecycle; shadow records exist so
// duplicate invites can be rejected cheaply and terminal states reconciled
// in the background.
type ShadowInvitation struct {
	ID             string                 `json:"id"`
	OrganizationID string                 `json:"organizationId"`
	InvitationID   string                 `json:"invitationId"`
	Email          string                 `json:"email"`
	RoleName       string                 `json:"roleName"`
	Status         ShadowInvitationStatus `json:"status"`
	InvitedBy      string                 `json:"invitedBy"`
	ExpiresAt      time.Time              `json:"expiresAt"`
	CreatedAt      time.Time              `json:"createdAt"`
	UpdatedAt      time.Time              `json:"updatedAt"`
}

// CreateWorkspaceRequest creates a new workspace
type CreateWorkspaceRequest struct {
	Name        string
	Description string
}

// UpdateWorkspaceRequest patches a workspace. Nil fields are untouched.
type UpdateWorkspaceRequest struct {
	Name        *string
	Description *string
}

// InviteRequest invites one email address with one role
type InviteRequest struct {
	Email    string
	RoleName string
}

// InviteOutcome is the per-email result of a multi-invite. A soft failure
// (duplicate pending invitation, provider rejection) is reported in Reason
// rather than failing the whole batch.
type InviteOutcome struct {
	Email      string            `json:"email"`
	Invitation *ShadowInvitation `json:"invitation,omitempty"`
	Reason     string            `json:"reason,omitempty"`
}

// Accepted reports whether this outcome carries a created invitation
func (o InviteOutcome) Accepted() bool {
	return o.Invitation != nil
}
