package rbac

import "testing"

func TestCan(t *testing.T) {
	cases := []struct {
		name   string
		role   Role
		action Action
		allow  bool
	}{
		{name: "creator edits any", role: RoleCreator, action: ActionEditAnyEntry, allow: true},
		{name: "manager edits any", role: RoleManager, action: ActionEditAnyEntry, allow: true},
		{name: "curator edits any", role: RoleCurator, action: ActionEditAnyEntry, allow: true},
		{name: "collector edits any", role: RoleCollector, action: ActionEditAnyEntry, allow: false},
		{name: "collector edits own", role: RoleCollector, action: ActionEditOwnEntry, allow: true},
		{name: "no role edits own", role: RoleNone, action: ActionEditOwnEntry, allow: true},
		{name: "viewer uploads", role: RoleViewer, action: ActionUpload, allow: false},
		{name: "viewer views", role: RoleViewer, action: ActionViewEntries, allow: true},
		{name: "no role views", role: RoleNone, action: ActionViewEntries, allow: false},
		{name: "curator manages roles", role: RoleCurator, action: ActionManageRoles, allow: false},
		{name: "manager manages roles", role: RoleManager, action: ActionManageRoles, allow: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Can(tc.role, tc.action); got != tc.allow {
				t.Fatalf("Can(%q, %q) = %v, want %v", tc.role, tc.action, got, tc.allow)
			}
		})
	}
}

func TestRankOrdering(t *testing.T) {
	ordered := []Role{RoleNone, RoleViewer, RoleCollector, RoleCurator, RoleManager, RoleCreator}
	for i := 1; i < len(ordered); i++ {
		if Rank(ordered[i]) <= Rank(ordered[i-1]) {
			t.Fatalf("expected %q to outrank %q", ordered[i], ordered[i-1])
		}
	}
}

func TestNormalize(t *testing.T) {
	if got := Normalize("manager"); got != RoleManager {
		t.Fatalf("Normalize(manager) = %q", got)
	}
	if got := Normalize("admin"); got != RoleNone {
		t.Fatalf("Normalize(admin) = %q, want none", got)
	}
}
