package rbac

// Role is a per-project role assignment. The zero value RoleNone means the
// user holds no role in the project.
type Role string

type Action string

const (
	RoleNone      Role = ""
	RoleViewer    Role = "viewer"
	RoleCollector Role = "collector"
	RoleCurator   Role = "curator"
	RoleManager   Role = "manager"
	RoleCreator   Role = "creator"
)

const (
	ActionUpload       Action = "upload"
	ActionEditOwnEntry Action = "edit_own_entry"
	ActionEditAnyEntry Action = "edit_any_entry"
	ActionViewEntries  Action = "view_entries"
	ActionManageRoles  Action = "manage_roles"
)

// Rank orders roles by authority: creator > manager > curator > collector > viewer > none.
func Rank(role Role) int {
	switch role {
	case RoleCreator:
		return 5
	case RoleManager:
		return 4
	case RoleCurator:
		return 3
	case RoleCollector:
		return 2
	case RoleViewer:
		return 1
	default:
		return 0
	}
}

// AtLeast reports whether role carries at least the authority of min.
func AtLeast(role, min Role) bool {
	return Rank(role) >= Rank(min)
}

// CanEditAnyEntry is true for the privileged roles, which may edit every entry
// of their project regardless of who uploaded it.
func CanEditAnyEntry(role Role) bool {
	return AtLeast(role, RoleCurator)
}

// CanEditOwnEntry reports whether an identity match is enough to edit an entry.
// Users without a role (public projects) upload and re-edit their own entries.
func CanEditOwnEntry(role Role) bool {
	return role != RoleViewer
}

func Can(role Role, action Action) bool {
	switch action {
	case ActionUpload, ActionEditOwnEntry:
		return CanEditOwnEntry(role)
	case ActionEditAnyEntry:
		return CanEditAnyEntry(role)
	case ActionViewEntries:
		return role != RoleNone
	case ActionManageRoles:
		return AtLeast(role, RoleManager)
	default:
		return false
	}
}

func Normalize(role string) Role {
	switch Role(role) {
	case RoleViewer, RoleCollector, RoleCurator, RoleManager, RoleCreator:
		return Role(role)
	default:
		return RoleNone
	}
}
