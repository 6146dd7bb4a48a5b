package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/casetrack/casetrack/internal/domain"
	"github.com/casetrack/casetrack/internal/rbac"
	"github.com/casetrack/casetrack/internal/repository/memory"
	apperrors "github.com/casetrack/casetrack/pkg/util"
)

func newUserFixture(users ...*domain.User) (*UserService, *memory.UserRepository, *memory.AuditRepository, *memoryAuditRecorder) {
	repo := memory.NewUserRepository(users...)
	audits := memory.NewAuditRepository()
	recorder := &memoryAuditRecorder{}
	svc := NewUserService(UserDependencies{UserRepo: repo, AuditRepo: audits, Audit: recorder})
	return svc, repo, audits, recorder
}

func TestListAssignable(t *testing.T) {
	admin := newUser(domain.RoleAdmin)
	user := newUser(domain.RoleUser)
	gone := newUser(domain.RoleUser)
	gone.IsActive = false
	svc, _, _, _ := newUserFixture(admin, user, gone)

	users, err := svc.ListAssignable(context.Background(), admin)
	require.NoError(t, err)
	assert.Len(t, users, 2)

	users, err = svc.ListAssignable(context.Background(), user)
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, user.ID, users[0].ID)

	_, err = svc.ListAssignable(context.Background(), nil)
	requireCode(t, err, apperrors.CodeUnauthorized)
}

func TestListUsers_AdminOnly(t *testing.T) {
	admin := newUser(domain.RoleAdmin)
	manager := newUser(domain.RoleManager)
	gone := newUser(domain.RoleUser)
	gone.IsActive = false
	svc, _, _, recorder := newUserFixture(admin, manager, gone)

	users, err := svc.ListUsers(context.Background(), admin)
	require.NoError(t, err)
	assert.Len(t, users, 3)

	_, err = svc.ListUsers(context.Background(), manager)
	requireCode(t, err, apperrors.CodeForbidden)
	assert.Equal(t, []domain.AuditResult{domain.AuditForbidden}, recorder.results())
}

func TestPermissions(t *testing.T) {
	admin := newUser(domain.RoleAdmin)
	manager := newUser(domain.RoleManager)
	svc, _, _, _ := newUserFixture(admin, manager)

	got, err := svc.Permissions(context.Background(), admin, manager.ID)
	require.NoError(t, err)
	assert.Equal(t, manager.ID, got.User.ID)
	assert.ElementsMatch(t, rbac.PermissionsFor(domain.RoleManager), got.Permissions)

	_, err = svc.Permissions(context.Background(), admin, "missing")
	requireCode(t, err, apperrors.CodeNotFound)
}

func TestDeactivateUser(t *testing.T) {
	admin := newUser(domain.RoleAdmin)
	target := newUser(domain.RoleUser)
	svc, repo, _, recorder := newUserFixture(admin, target)

	_, err := svc.DeactivateUser(context.Background(), admin, admin.ID)
	requireCode(t, err, apperrors.CodeValidation)

	u, err := svc.DeactivateUser(context.Background(), admin, target.ID)
	require.NoError(t, err)
	assert.False(t, u.IsActive)
	stored, err := repo.GetByID(context.Background(), target.ID)
	require.NoError(t, err)
	assert.False(t, stored.IsActive)
	assert.Equal(t, []domain.AuditResult{domain.AuditSuccess}, recorder.results())

	again, err := svc.DeactivateUser(context.Background(), admin, target.ID)
	require.NoError(t, err)
	assert.False(t, again.IsActive)
	assert.Len(t, recorder.results(), 1, "already inactive account is left alone")

	_, err = svc.DeactivateUser(context.Background(), target, admin.ID)
	requireCode(t, err, apperrors.CodeForbidden)
}

func TestListAuditLogs(t *testing.T) {
	admin := newUser(domain.RoleAdmin)
	manager := newUser(domain.RoleManager)
	svc, _, audits, _ := newUserFixture(admin, manager)
	adminID := admin.ID
	require.NoError(t, audits.Create(context.Background(), &domain.AuditEntry{ID: "01J0", UserID: &adminID, Action: "login", Result: domain.AuditForbidden}))
	require.NoError(t, audits.Create(context.Background(), &domain.AuditEntry{ID: "01J1", Action: "login", Result: domain.AuditSuccess}))

	page, err := svc.ListAuditLogs(context.Background(), admin, AuditLogFilter{UserID: admin.ID, Result: "FORBIDDEN", PerPage: 500})
	require.NoError(t, err)
	assert.Equal(t, 1, page.Total)
	assert.Equal(t, 100, page.PerPage)
	require.NotNil(t, audits.LastFilter().UserID)
	assert.Equal(t, admin.ID, *audits.LastFilter().UserID)
	require.NotNil(t, audits.LastFilter().Result)
	assert.Equal(t, domain.AuditForbidden, *audits.LastFilter().Result)

	page, err = svc.ListAuditLogs(context.Background(), admin, AuditLogFilter{Page: 3})
	require.NoError(t, err)
	assert.Equal(t, defaultAuditPerPage, page.PerPage)
	assert.Equal(t, 2*defaultAuditPerPage, audits.LastFilter().Offset)

	_, err = svc.ListAuditLogs(context.Background(), manager, AuditLogFilter{})
	requireCode(t, err, apperrors.CodeForbidden)
}
