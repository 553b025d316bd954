// Package apikeys implements workspace API keys: generation, storage, and
// bearer authentication for the external API surface.
package apikeys

import (
	"time"

	"github.com/hallwayhq/console/pkg/roles"
)

// Scope is a permission granted to a machine credential. Scopes share the
// verb:resource vocabulary with user-facing permissions.
type Scope = roles.Permission

// Key is a stored API key record. The plaintext key is never persisted; only
// its SHA-256 hash and a short preview for display.
type Key struct {
	ID             string             `json:"id"`
	OrganizationID string             `json:"organizationId"`
	Name           string             `json:"name"`
	KeyHash        string             `json:"-"`
	KeyPreview     string             `json:"keyPreview"`
	Scopes         []roles.Permission `json:"scopes"`
	CreatedBy      string             `json:"createdBy"`
	LastUsedAt     *time.Time         `json:"lastUsedAt,omitempty"`
	ExpiresAt      *time.Time         `json:"expiresAt,omitempty"`
	CreatedAt      time.Time          `json:"createdAt"`
	UpdatedAt      time.Time          `json:"updatedAt"`
}

// Expired reports whether the key has an expiry in the past
func (k *Key) Expired(now time.Time) bool {
	return k.ExpiresAt != nil && k.ExpiresAt.Before(now)
}

// HasScope reports whether the key grants the given scope
func (k *Key) HasScope(scope roles.Permission) bool {
	return roles.HasPermission(k.Scopes, scope)
}

// MissingScopes returns every required scope the key does not grant, in the
// order required. Callers report the full list, not just the first.
func (k *Key) MissingScopes(required []roles.Permission) []roles.Permission {
	var missing []roles.Permission
	for _, scope := range required {
		if !k.HasScope(scope) {
			missing = append(missing, scope)
		}
	}
	return missing
}

// CreateKeyRequest is the input for issuing a new key
type CreateKeyRequest struct {
	OrganizationID string
	Name           string
	Scopes         []roles.Permission
	CreatedBy      string
	ExpiresAt      *time.Time
}

// CreatedKey pairs the stored record with the plaintext key. The plaintext is
// returned exactly once, at creation time.
type CreatedKey struct {
	Key       *Key   `json:"key"`
	Plaintext string `json:"plaintext"`
}
