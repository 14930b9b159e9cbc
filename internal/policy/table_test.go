package policy

import (
	"testing"

	"github.com/ppiankov/toolgate/internal/model"
)

func TestPermissionTableMatchesConfiguration(t *testing.T) {
	want := map[model.Role][]model.Permission{
		model.RoleAdministrator: model.Permissions,
		model.RoleRedTeam:       {model.PermExecuteTools, model.PermRegisterTools, model.PermViewAudit},
		model.RoleBlueTeam:      {model.PermExecuteTools, model.PermViewAudit},
		model.RoleAnalyst:       {model.PermExecuteTools, model.PermViewAudit},
		model.RoleReadOnly:      {model.PermViewAudit},
		model.RoleGuest:         {},
	}

	for role, perms := range want {
		held := make(map[model.Permission]bool)
		for _, p := range perms {
			held[p] = true
		}
		for _, p := range model.Permissions {
			if got := HasPermission(role, p); got != held[p] {
				t.Errorf("HasPermission(%s, %s) = %v, want %v", role, p, got, held[p])
			}
		}
		if n := PermissionsOf(role).Len(); n != len(perms) {
			t.Errorf("%s: expected %d permissions, got %d", role, len(perms), n)
		}
	}
}

func TestPermissionsOfIsTotalAndDeterministic(t *testing.T) {
	for _, role := range model.Roles {
		first := PermissionsOf(role).Slice()
		for i := 0; i < 10; i++ {
			again := PermissionsOf(role).Slice()
			if len(again) != len(first) {
				t.Fatalf("%s: permission set changed between calls", role)
			}
			for j := range first {
				if first[j] != again[j] {
					t.Fatalf("%s: permission order changed between calls", role)
				}
			}
		}
	}
}

func TestGuestHoldsNothing(t *testing.T) {
	set := PermissionsOf(model.RoleGuest)
	if set.Len() != 0 {
		t.Fatalf("expected empty set for guest, got %v", set.Slice())
	}
	if set.Slice() == nil {
		t.Fatal("expected non-nil empty slice")
	}
}

func TestUnknownRolePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for unknown role")
		}
	}()
	HasPermission(model.Role("root"), model.PermExecuteTools)
}

func TestUnknownPermissionIsNotHeld(t *testing.T) {
	if HasPermission(model.RoleAdministrator, model.Permission("launch_missiles")) {
		t.Fatal("unknown permission must never be held")
	}
}
