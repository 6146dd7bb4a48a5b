package service

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/casetrack/casetrack/internal/audit"
	"github.com/casetrack/casetrack/internal/domain"
	"github.com/casetrack/casetrack/internal/rbac"
	"github.com/casetrack/casetrack/internal/repository"
	apperrors "github.com/casetrack/casetrack/pkg/util"
)

const (
	resourceUser        = "user"
	defaultAuditPerPage = 50
)

// UserService exposes account listings and administration.
type UserService struct {
	users  repository.UserRepository
	audits repository.AuditRepository
	audit  audit.Recorder
}

// UserDependencies bundles collaborators for the user service.
type UserDependencies struct {
	UserRepo  repository.UserRepository
	AuditRepo repository.AuditRepository
	Audit     audit.Recorder
}

// NewUserService wires the service.
func NewUserService(deps UserDependencies) *UserService {
	return &UserService{users: deps.UserRepo, audits: deps.AuditRepo, audit: deps.Audit}
}

// UserPermissions is the capability listing of one account.
type UserPermissions struct {
	User        *domain.User
	Permissions []rbac.Permission
}

// AuditLogFilter narrows the admin audit listing.
type AuditLogFilter struct {
	UserID  string
	Action  string
	Result  string
	Page    int
	PerPage int
}

// AuditLogPage is one page of audit entries.
type AuditLogPage struct {
	Items   []domain.AuditEntry
	Total   int
	Page    int
	PerPage int
}

// ListAssignable returns the users actor may pick as an assignee. Actors
// without assign_cases only ever see themselves.
func (s *UserService) ListAssignable(ctx context.Context, actor *domain.User) ([]domain.User, error) {
	if actor == nil {
		return nil, apperrors.NewUnauthorized("authentication required")
	}
	if !rbac.CanAssign(actor) {
		return []domain.User{*actor}, nil
	}
	users, err := s.users.List(ctx, true)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return users, nil
}

// ListUsers returns every account, active or not.
func (s *UserService) ListUsers(ctx context.Context, actor *domain.User) ([]domain.User, error) {
	if err := s.requireAdmin(ctx, actor, "list_users"); err != nil {
		return nil, err
	}
	users, err := s.users.List(ctx, false)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return users, nil
}

// Permissions reports the capabilities held by the account with id.
func (s *UserService) Permissions(ctx context.Context, actor *domain.User, id string) (*UserPermissions, error) {
	if err := s.requireAdmin(ctx, actor, "view_permissions"); err != nil {
		return nil, err
	}
	u, err := s.loadUser(ctx, id)
	if err != nil {
		return nil, err
	}
	return &UserPermissions{User: u, Permissions: rbac.Grants(u)}, nil
}

// DeactivateUser soft-disables an account. Administrators cannot
// deactivate themselves.
func (s *UserService) DeactivateUser(ctx context.Context, actor *domain.User, id string) (*domain.User, error) {
	const action = "deactivate_user"
	if err := s.requireAdmin(ctx, actor, action); err != nil {
		return nil, err
	}
	if actor.ID == id {
		return nil, apperrors.NewValidationError("cannot deactivate your own account", map[string]any{"id": id})
	}

	u, err := s.loadUser(ctx, id)
	if err != nil {
		return nil, err
	}
	if !u.IsActive {
		return u, nil
	}
	if err := s.users.Deactivate(ctx, id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("user", map[string]any{"id": id})
		}
		return nil, apperrors.MapError(err)
	}
	u.IsActive = false
	s.record(ctx, actor, action, id, domain.AuditSuccess, "deactivated "+u.Username)
	return u, nil
}

// ListAuditLogs pages through the audit trail.
func (s *UserService) ListAuditLogs(ctx context.Context, actor *domain.User, filter AuditLogFilter) (*AuditLogPage, error) {
	if !rbac.HasPermission(actor, rbac.ViewAuditLogs, nil) {
		s.record(ctx, actor, "view_audit_logs", "", domain.AuditForbidden, "missing view_audit_logs")
		return nil, apperrors.NewForbidden("insufficient permissions to view audit logs")
	}

	page, perPage := filter.Page, filter.PerPage
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = defaultAuditPerPage
	}
	if perPage > maxPerPage {
		perPage = maxPerPage
	}

	repoFilter := repository.AuditFilter{
		Action: filter.Action,
		Limit:  perPage,
		Offset: (page - 1) * perPage,
	}
	if filter.UserID != "" {
		if _, err := uuid.Parse(filter.UserID); err != nil {
			return &AuditLogPage{Items: []domain.AuditEntry{}, Page: page, PerPage: perPage}, nil
		}
		id := filter.UserID
		repoFilter.UserID = &id
	}
	if filter.Result != "" {
		result := domain.AuditResult(filter.Result)
		repoFilter.Result = &result
	}

	items, total, err := s.audits.List(ctx, repoFilter)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return &AuditLogPage{Items: items, Total: total, Page: page, PerPage: perPage}, nil
}

func (s *UserService) requireAdmin(ctx context.Context, actor *domain.User, action string) error {
	if rbac.HasPermission(actor, rbac.ManageUsers, nil) {
		return nil
	}
	s.record(ctx, actor, action, "", domain.AuditForbidden, "missing manage_users")
	return apperrors.NewForbidden("admin access required")
}

func (s *UserService) loadUser(ctx context.Context, id string) (*domain.User, error) {
	notFound := apperrors.NewNotFound("user", map[string]any{"id": id})
	if _, err := uuid.Parse(id); err != nil {
		return nil, notFound
	}
	u, err := s.users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFound
		}
		return nil, apperrors.MapError(err)
	}
	return u, nil
}

func (s *UserService) record(ctx context.Context, actor *domain.User, action, userID string, result domain.AuditResult, details string) {
	if s.audit == nil {
		return
	}
	s.audit.Record(ctx, audit.Entry{
		Actor:        actor,
		Action:       action,
		ResourceType: resourceUser,
		ResourceID:   userID,
		Result:       result,
		Details:      details,
	})
}
