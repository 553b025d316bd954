package idp

import "time"

// User is a user record as returned by the identity provider. The provider
// is the source of truth; the cache layer stores these with a fixed TTL.
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	PrimaryEmail string    `json:"primary_email"`
	Name         string    `json:"name,omitempty"`
	AvatarURL    string    `json:"avatar_url,omitempty"`
	IsSuspended  bool      `json:"is_suspended"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Branding holds optional workspace logo URLs.
type Branding struct {
	LogoURL     string `json:"logo_url,omitempty"`
	DarkLogoURL string `json:"dark_logo_url,omitempty"`
}

// Organization is a workspace record held by the identity provider. Cached
// independently of memberships so users sharing a workspace reuse one entry.
type Organization struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Branding    *Branding `json:"branding,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// UserOrganization is one membership edge between a user and a workspace.
// The full list for a user is rebuilt wholesale on invalidation; there is no
// partial update.
type UserOrganization struct {
	OrganizationID string   `json:"organization_id"`
	RoleIDs        []string `json:"role_ids"`
	RoleNames      []string `json:"role_names"`
}

// Member is a user together with the roles they hold in one workspace.
type Member struct {
	User      User     `json:"user"`
	RoleNames []string `json:"role_names"`
}

// InvitationStatus mirrors the provider's invitation lifecycle.
type InvitationStatus string

const (
	InvitationPending  InvitationStatus = "Pending"
	InvitationAccepted InvitationStatus = "Accepted"
	InvitationExpired  InvitationStatus = "Expired"
	InvitationRevoked  InvitationStatus = "Revoked"
)

// Invitation is a provider-side invitation record.
type Invitation struct {
	ID             string           `json:"id"`
	OrganizationID string           `json:"organization_id"`
	InviterID      string           `json:"inviter_id,omitempty"`
	Invitee        string           `json:"invitee"`
	RoleNames      []string         `json:"role_names"`
	Status         InvitationStatus `json:"status"`
	CreatedAt      time.Time        `json:"created_at"`
	ExpiresAt      time.Time        `json:"expires_at"`
}

// CreateOrganizationRequest creates a workspace.
type CreateOrganizationRequest struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// UpdateOrganizationRequest patches a workspace. Nil fields are untouched.
type UpdateOrganizationRequest struct {
	Name        *string   `json:"name,omitempty"`
	Description *string   `json:"description,omitempty"`
	Branding    *Branding `json:"branding,omitempty"`
}

// CreateInvitationRequest creates a provider-side invitation.
type CreateInvitationRequest struct {
	OrganizationID string    `json:"organization_id"`
	InviterID      string    `json:"inviter_id,omitempty"`
	Invitee        string    `json:"invitee"`
	RoleNames      []string  `json:"role_names"`
	ExpiresAt      time.Time `json:"expires_at"`
}
