// Package roles defines the static role template shared by all workspaces.
//
// Roles are configuration, not data: every workspace uses the same table,
// compiled into the binary and loaded once at startup. There is no per-tenant
// override. Effective permissions are always computed at read time from the
// caller's role names in the current workspace; they are never persisted.
package roles

import "sort"

// Permission is a "<verb>:<resource>" tag, e.g. "manage:members".
type Permission string

const (
	PermissionReadWorkspace   Permission = "read:workspace"
	PermissionManageWorkspace Permission = "manage:workspace"
	PermissionDeleteWorkspace Permission = "delete:workspace"
	PermissionReadMembers     Permission = "read:members"
	PermissionManageMembers   Permission = "manage:members"
	PermissionInviteMembers   Permission = "invite:members"
	PermissionReadAPIKeys     Permission = "read:api-keys"
	PermissionWriteAPIKeys    Permission = "write:api-keys"
	PermissionReadWebhooks    Permission = "read:webhooks"
	PermissionManageWebhooks  Permission = "manage:webhooks"
)

// allPermissions indexes every defined permission for validity checks.
var allPermissions = map[Permission]struct{}{
	PermissionReadWorkspace:   {},
	PermissionManageWorkspace: {},
	PermissionDeleteWorkspace: {},
	PermissionReadMembers:     {},
	PermissionManageMembers:   {},
	PermissionInviteMembers:   {},
	PermissionReadAPIKeys:     {},
	PermissionWriteAPIKeys:    {},
	PermissionReadWebhooks:    {},
	PermissionManageWebhooks:  {},
}

// KnownPermission reports whether p is a defined permission.
func KnownPermission(p Permission) bool {
	_, ok := allPermissions[p]
	return ok
}

// RoleType distinguishes built-in roles from machine-to-machine ones.
type RoleType string

const (
	RoleTypeUser    RoleType = "user"
	RoleTypeMachine RoleType = "machine"
)

// Role is a named permission bundle.
type Role struct {
	Name        string       `json:"name"`
	DisplayName string       `json:"display_name"`
	Description string       `json:"description"`
	Permissions []Permission `json:"permissions"`
	Type        RoleType     `json:"type"`
}

// Built-in role names.
const (
	RoleOwner  = "owner"
	RoleAdmin  = "admin"
	RoleMember = "member"
)

// Table is an immutable role-name lookup. Construct with NewTable once at
// startup and inject wherever permissions are computed.
type Table struct {
	byName map[string]Role
}

// NewTable builds a lookup table from a role list. Later duplicates win,
// matching last-write-wins semantics elsewhere in the system.
func NewTable(roleList []Role) *Table {
	byName := make(map[string]Role, len(roleList))
	for _, r := range roleList {
		byName[r.Name] = r
	}
	return &Table{byName: byName}
}

// Default returns the table of built-in roles.
func Default() *Table {
	return NewTable([]Role{
		{
			Name:        RoleOwner,
			DisplayName: "Owner",
			Description: "Full control over the workspace, including deletion",
			Type:        RoleTypeUser,
			Permissions: []Permission{
				PermissionReadWorkspace,
				PermissionManageWorkspace,
				PermissionDeleteWorkspace,
				PermissionReadMembers,
				PermissionManageMembers,
				PermissionInviteMembers,
				PermissionReadAPIKeys,
				PermissionWriteAPIKeys,
				PermissionReadWebhooks,
				PermissionManageWebhooks,
			},
		},
		{
			Name:        RoleAdmin,
			DisplayName: "Admin",
			Description: "Manage members, API keys, and webhooks",
			Type:        RoleTypeUser,
			Permissions: []Permission{
				PermissionReadWorkspace,
				PermissionManageWorkspace,
				PermissionReadMembers,
				PermissionManageMembers,
				PermissionInviteMembers,
				PermissionReadAPIKeys,
				PermissionWriteAPIKeys,
				PermissionReadWebhooks,
				PermissionManageWebhooks,
			},
		},
		{
			Name:        RoleMember,
			DisplayName: "Member",
			Description: "Read-only access to the workspace",
			Type:        RoleTypeUser,
			Permissions: []Permission{
				PermissionReadWorkspace,
				PermissionReadMembers,
			},
		},
	})
}

// Get looks up a role by name.
func (t *Table) Get(name string) (Role, bool) {
	r, ok := t.byName[name]
	return r, ok
}

// Names returns all role names in the table, sorted.
func (t *Table) Names() []string {
	names := make([]string, 0, len(t.byName))
	for name := range t.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// List returns all roles sorted by name.
func (t *Table) List() []Role {
	list := make([]Role, 0, len(t.byName))
	for _, name := range t.Names() {
		list = append(list, t.byName[name])
	}
	return list
}

// PermissionsFor computes the deduplicated union of permissions granted by the
// given role names. Unknown role names are ignored. The result is sorted so it
// is stable regardless of role-processing order.
func (t *Table) PermissionsFor(roleNames []string) []Permission {
	seen := make(map[Permission]struct{})
	for _, name := range roleNames {
		role, ok := t.byName[name]
		if !ok {
			continue
		}
		for _, p := range role.Permissions {
			seen[p] = struct{}{}
		}
	}

	perms := make([]Permission, 0, len(seen))
	for p := range seen {
		perms = append(perms, p)
	}
	sort.Slice(perms, func(i, j int) bool { return perms[i] < perms[j] })
	return perms
}

// HasPermission reports whether the permission set contains p.
func HasPermission(perms []Permission, p Permission) bool {
	for _, have := range perms {
		if have == p {
			return true
		}
	}
	return false
}
