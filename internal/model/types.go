package model

import (
	"fmt"
	"strings"
)

// Role is the category assigned to an authenticated actor.
// The set is closed: values outside the constants below are invalid.
type Role string

const (
	RoleGuest         Role = "guest"
	RoleReadOnly      Role = "read_only"
	RoleAnalyst       Role = "analyst"
	RoleBlueTeam      Role = "blue_team"
	RoleRedTeam       Role = "red_team"
	RoleAdministrator Role = "administrator"
)

// Roles lists every role in ascending risk tier order.
// Administrator is last but is exempt from the role risk increment.
var Roles = []Role{
	RoleGuest,
	RoleReadOnly,
	RoleAnalyst,
	RoleBlueTeam,
	RoleRedTeam,
	RoleAdministrator,
}

// RoleTier maps a role to its comparable risk tier.
var RoleTier = map[Role]int{
	RoleGuest:         0,
	RoleReadOnly:      1,
	RoleAnalyst:       2,
	RoleBlueTeam:      3,
	RoleRedTeam:       4,
	RoleAdministrator: 5,
}

// Valid reports whether r is one of the enumerated roles.
func (r Role) Valid() bool {
	_, ok := RoleTier[r]
	return ok
}

// ParseRole converts a boundary string to a Role. Matching is case-insensitive
// and accepts dashes in place of underscores ("red-team").
func ParseRole(s string) (Role, error) {
	r := Role(strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_"))
	if !r.Valid() {
		return "", &ValidationError{Field: "role", Value: s, Reason: "unknown role"}
	}
	return r, nil
}

// Permission is a named capability a role may hold.
type Permission string

const (
	PermExecuteTools        Permission = "execute_tools"
	PermRegisterTools       Permission = "register_tools"
	PermRegisterAgents      Permission = "register_agents"
	PermViewAudit           Permission = "view_audit"
	PermManageUsers         Permission = "manage_users"
	PermModifyRiskThreshold Permission = "modify_risk_threshold"
)

// Permissions lists every permission.
var Permissions = []Permission{
	PermExecuteTools,
	PermRegisterTools,
	PermRegisterAgents,
	PermViewAudit,
	PermManageUsers,
	PermModifyRiskThreshold,
}

// Valid reports whether p is one of the enumerated permissions.
func (p Permission) Valid() bool {
	for _, known := range Permissions {
		if p == known {
			return true
		}
	}
	return false
}

// ActionKind is the kind of action an actor requests.
type ActionKind string

const (
	ActionExecute       ActionKind = "execute"
	ActionRegisterTool  ActionKind = "register_tool"
	ActionRegisterAgent ActionKind = "register_agent"

	// Audit-only kinds. They describe gateway administration and are never scored.
	ActionSetThreshold ActionKind = "set_threshold"
	ActionReloadPolicy ActionKind = "reload_policy"
)

// ParseActionKind converts a boundary string to a scoreable ActionKind.
// "register" is accepted as shorthand for register_tool.
func ParseActionKind(s string) (ActionKind, error) {
	k := ActionKind(strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_"))
	switch k {
	case ActionExecute, "execute_tool":
		return ActionExecute, nil
	case ActionRegisterTool, "register":
		return ActionRegisterTool, nil
	case ActionRegisterAgent:
		return ActionRegisterAgent, nil
	}
	return "", &ValidationError{Field: "action", Value: s, Reason: "unknown action kind"}
}

// IsRegistration reports whether the action registers a tool or agent.
func (k ActionKind) IsRegistration() bool {
	return k == ActionRegisterTool || k == ActionRegisterAgent
}

// Scoreable reports whether the risk scorer accepts this kind.
func (k ActionKind) Scoreable() bool {
	return k == ActionExecute || k.IsRegistration()
}

// RequiredPermission returns the permission an actor needs for the action.
func (k ActionKind) RequiredPermission() (Permission, bool) {
	switch k {
	case ActionExecute:
		return PermExecuteTools, true
	case ActionRegisterTool:
		return PermRegisterTools, true
	case ActionRegisterAgent:
		return PermRegisterAgents, true
	case ActionSetThreshold, ActionReloadPolicy:
		return PermModifyRiskThreshold, true
	default:
		return "", false
	}
}

// Decision is the outcome recorded for an action.
type Decision string

const (
	Approved        Decision = "APPROVED"
	Denied          Decision = "DENIED"
	PendingApproval Decision = "PENDING_APPROVAL"
)

// Terminal reports whether no further decision follows d for the same action.
func (d Decision) Terminal() bool {
	return d == Approved || d == Denied
}

// ValidationError reports input that was rejected before any state changed.
type ValidationError struct {
	Field  string
	Value  any
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s %v: %s", e.Field, e.Value, e.Reason)
}
