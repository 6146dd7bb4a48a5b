package rbac

import "github.com/casetrack/casetrack/internal/domain"

// Permission is a named capability granted to a role.
type Permission string

const (
	ViewAllCases         Permission = "view_all_cases"
	ViewOwnCases         Permission = "view_own_cases"
	ViewAssignedCases    Permission = "view_assigned_cases"
	CreateCase           Permission = "create_case"
	EditOwnCases         Permission = "edit_own_cases"
	EditAllCases         Permission = "edit_all_cases"
	DeleteOwnCases       Permission = "delete_own_cases"
	DeleteAllCases       Permission = "delete_all_cases"
	AssignCases          Permission = "assign_cases"
	UpdateStatusOwn      Permission = "update_status_own"
	UpdateStatusAssigned Permission = "update_status_assigned"
	UpdateStatusAll      Permission = "update_status_all"
	ManageUsers          Permission = "manage_users"
	ViewAuditLogs        Permission = "view_audit_logs"
)

// Scope restricts a permission to a subset of cases.
type Scope int

const (
	ScopeAll Scope = iota
	ScopeOwn
	ScopeAssigned
)

func (s Scope) String() string {
	switch s {
	case ScopeOwn:
		return "own"
	case ScopeAssigned:
		return "assigned"
	default:
		return "all"
	}
}

// Permissions without an entry are ScopeAll.
var scopes = map[Permission]Scope{
	ViewOwnCases:         ScopeOwn,
	ViewAssignedCases:    ScopeAssigned,
	EditOwnCases:         ScopeOwn,
	DeleteOwnCases:       ScopeOwn,
	UpdateStatusOwn:      ScopeOwn,
	UpdateStatusAssigned: ScopeAssigned,
}

// ScopeOf returns the resource scope attached to p.
func ScopeOf(p Permission) Scope {
	return scopes[p]
}

// Family groups the scoped variants of one capability.
type Family struct {
	Name     string
	All      Permission
	Own      Permission
	Assigned Permission
}

// Variants returns the non-empty permissions in the family, widest first.
func (f Family) Variants() []Permission {
	out := make([]Permission, 0, 3)
	for _, p := range []Permission{f.All, f.Own, f.Assigned} {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

var (
	FamilyView         = Family{Name: "view", All: ViewAllCases, Own: ViewOwnCases, Assigned: ViewAssignedCases}
	FamilyEdit         = Family{Name: "edit", All: EditAllCases, Own: EditOwnCases}
	FamilyDelete       = Family{Name: "delete", All: DeleteAllCases, Own: DeleteOwnCases}
	FamilyUpdateStatus = Family{Name: "update_status", All: UpdateStatusAll, Own: UpdateStatusOwn, Assigned: UpdateStatusAssigned}
)

var rolePermissions = map[domain.Role][]Permission{
	domain.RoleAdmin: {
		ViewAllCases,
		CreateCase,
		EditAllCases,
		DeleteAllCases,
		AssignCases,
		UpdateStatusAll,
		ManageUsers,
		ViewAuditLogs,
	},
	domain.RoleUser: {
		ViewOwnCases,
		ViewAssignedCases,
		CreateCase,
		EditOwnCases,
		DeleteOwnCases,
		UpdateStatusOwn,
		UpdateStatusAssigned,
	},
	domain.RoleManager: {
		ViewAllCases,
		CreateCase,
		EditAllCases,
		AssignCases,
		UpdateStatusAll,
	},
	domain.RoleViewer: {
		ViewOwnCases,
		ViewAssignedCases,
	},
}

var roleIndex = buildIndex()

func buildIndex() map[domain.Role]map[Permission]struct{} {
	idx := make(map[domain.Role]map[Permission]struct{}, len(rolePermissions))
	for role, perms := range rolePermissions {
		set := make(map[Permission]struct{}, len(perms))
		for _, p := range perms {
			set[p] = struct{}{}
		}
		idx[role] = set
	}
	return idx
}

// AllPermissions lists every known capability in table order.
func AllPermissions() []Permission {
	return []Permission{
		ViewAllCases, ViewOwnCases, ViewAssignedCases,
		CreateCase,
		EditOwnCases, EditAllCases,
		DeleteOwnCases, DeleteAllCases,
		AssignCases,
		UpdateStatusOwn, UpdateStatusAssigned, UpdateStatusAll,
		ManageUsers, ViewAuditLogs,
	}
}

// PermissionsFor returns a copy of the capabilities granted to role.
// Unknown roles grant nothing.
func PermissionsFor(role domain.Role) []Permission {
	perms := rolePermissions[role]
	out := make([]Permission, len(perms))
	copy(out, perms)
	return out
}

// RoleGrants reports whether role holds p, ignoring resource scope.
func RoleGrants(role domain.Role, p Permission) bool {
	_, ok := roleIndex[role][p]
	return ok
}

// Strings renders permissions for JSON responses.
func Strings(perms []Permission) []string {
	out := make([]string, len(perms))
	for i, p := range perms {
		out[i] = string(p)
	}
	return out
}
