// Package rbac evaluates role capabilities against cases.
//
// Every function here is total and side-effect free: a missing grant is
// reported as false, never as an error.
package rbac

import "github.com/casetrack/casetrack/internal/domain"

// HasPermission decides whether actor holds p, optionally against case c.
// A nil c is a role-level check.
func HasPermission(actor *domain.User, p Permission, c *domain.Case) bool {
	if actor == nil || !actor.IsActive {
		return false
	}
	if !RoleGrants(actor.Role, p) {
		return false
	}
	if c == nil {
		return true
	}
	switch ScopeOf(p) {
	case ScopeOwn:
		return c.CreatedBy == actor.ID
	case ScopeAssigned:
		return c.IsAssignedTo(actor.ID)
	default:
		return true
	}
}

// HasAny reports whether any variant of f grants access to c.
func HasAny(actor *domain.User, f Family, c *domain.Case) bool {
	for _, p := range f.Variants() {
		if HasPermission(actor, p, c) {
			return true
		}
	}
	return false
}

// HasAllScope reports whether actor holds the unrestricted variant of f.
func HasAllScope(actor *domain.User, f Family) bool {
	return f.All != "" && HasPermission(actor, f.All, nil)
}

func CanView(actor *domain.User, c *domain.Case) bool {
	return HasAny(actor, FamilyView, c)
}

func CanEdit(actor *domain.User, c *domain.Case) bool {
	return HasAny(actor, FamilyEdit, c)
}

func CanDelete(actor *domain.User, c *domain.Case) bool {
	return HasAny(actor, FamilyDelete, c)
}

func CanUpdateStatus(actor *domain.User, c *domain.Case) bool {
	return HasAny(actor, FamilyUpdateStatus, c)
}

// CanAssign reports whether actor may set the assignee to someone else.
func CanAssign(actor *domain.User) bool {
	return HasPermission(actor, AssignCases, nil)
}

// CanOverrideStatus reports whether actor may bypass the status table.
// Only admins holding update_status_all qualify; managers share the
// capability but not the override.
func CanOverrideStatus(actor *domain.User) bool {
	return actor != nil && actor.Role == domain.RoleAdmin && HasPermission(actor, UpdateStatusAll, nil)
}

var generalFields = []domain.CaseField{
	domain.FieldTitle,
	domain.FieldDescription,
	domain.FieldPriority,
	domain.FieldDueDate,
	domain.FieldStatus,
}

// EditableFields returns the fields actor may change on c.
func EditableFields(actor *domain.User, c *domain.Case) []domain.CaseField {
	if CanEdit(actor, c) {
		fields := make([]domain.CaseField, len(generalFields), len(generalFields)+1)
		copy(fields, generalFields)
		if CanAssign(actor) {
			fields = append(fields, domain.FieldAssignedTo)
		}
		return fields
	}
	if CanUpdateStatus(actor, c) {
		return []domain.CaseField{domain.FieldStatus}
	}
	return []domain.CaseField{}
}

// CanModifyClosed reports whether actor may touch a closed case at all.
func CanModifyClosed(actor *domain.User) bool {
	return HasAllScope(actor, FamilyEdit) || HasAllScope(actor, FamilyUpdateStatus)
}

// CanDeleteClosed reports whether actor may delete a closed case.
func CanDeleteClosed(actor *domain.User) bool {
	return HasAllScope(actor, FamilyDelete)
}

// Grants lists the capabilities of actor's role, or nothing for an
// inactive or missing actor.
func Grants(actor *domain.User) []Permission {
	if actor == nil || !actor.IsActive {
		return []Permission{}
	}
	return PermissionsFor(actor.Role)
}
