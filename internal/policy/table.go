package policy

import (
	"fmt"

	"github.com/ppiankov/toolgate/internal/model"
)

// PermissionSet is an immutable set of permissions.
type PermissionSet struct {
	bits uint8
}

func permBit(p model.Permission) uint8 {
	for i, known := range model.Permissions {
		if p == known {
			return 1 << i
		}
	}
	return 0
}

func newPermissionSet(perms ...model.Permission) PermissionSet {
	var s PermissionSet
	for _, p := range perms {
		s.bits |= permBit(p)
	}
	return s
}

// Has reports whether p is in the set.
func (s PermissionSet) Has(p model.Permission) bool {
	b := permBit(p)
	return b != 0 && s.bits&b != 0
}

// Len returns the number of permissions in the set.
func (s PermissionSet) Len() int {
	n := 0
	for _, p := range model.Permissions {
		if s.Has(p) {
			n++
		}
	}
	return n
}

// Slice returns the permissions in enumeration order.
func (s PermissionSet) Slice() []model.Permission {
	out := make([]model.Permission, 0, len(model.Permissions))
	for _, p := range model.Permissions {
		if s.Has(p) {
			out = append(out, p)
		}
	}
	return out
}

// permissionTable is the build-time role to permission mapping.
// It is never mutated after package initialization.
var permissionTable = map[model.Role]PermissionSet{
	model.RoleAdministrator: newPermissionSet(model.Permissions...),
	model.RoleRedTeam: newPermissionSet(
		model.PermExecuteTools,
		model.PermRegisterTools,
		model.PermViewAudit,
	),
	model.RoleBlueTeam: newPermissionSet(
		model.PermExecuteTools,
		model.PermViewAudit,
	),
	model.RoleAnalyst: newPermissionSet(
		model.PermExecuteTools,
		model.PermViewAudit,
	),
	model.RoleReadOnly: newPermissionSet(model.PermViewAudit),
	model.RoleGuest:    newPermissionSet(),
}

// PermissionsOf returns the permissions held by role.
// An unknown role is a programming error and panics.
func PermissionsOf(role model.Role) PermissionSet {
	set, ok := permissionTable[role]
	if !ok {
		panic(fmt.Sprintf("policy: unknown role %q", string(role)))
	}
	return set
}

// HasPermission reports whether role holds permission.
func HasPermission(role model.Role, permission model.Permission) bool {
	return PermissionsOf(role).Has(permission)
}
