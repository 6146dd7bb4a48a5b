package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/casetrack/casetrack/internal/api/dto"
	"github.com/casetrack/casetrack/internal/service"
)

// UsersHandler serves user listings and administration.
type UsersHandler struct {
	users *service.UserService
	cases *service.CaseService
}

// NewUsersHandler constructs handler.
func NewUsersHandler(userService *service.UserService, caseService *service.CaseService) *UsersHandler {
	return &UsersHandler{users: userService, cases: caseService}
}

// ListAssignable handles GET /users.
func (h *UsersHandler) ListAssignable(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	users, err := h.users.ListAssignable(c.UserContext(), user)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"users": dto.AssigneeResponses(users)})
}

// ListUsers handles GET /admin/users.
func (h *UsersHandler) ListUsers(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	users, err := h.users.ListUsers(c.UserContext(), user)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"users": dto.UserResponses(users)})
}

// DeactivateUser handles DELETE /admin/users/:id.
func (h *UsersHandler) DeactivateUser(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	deactivated, err := h.users.DeactivateUser(c.UserContext(), user, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"message": "user deactivated",
		"data":    dto.NewUserResponse(deactivated),
	})
}

// Permissions handles GET /admin/permissions/:id.
func (h *UsersHandler) Permissions(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	perms, err := h.users.Permissions(c.UserContext(), user, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewUserPermissionsResponse(perms)})
}

// ListAllCases handles GET /admin/cases.
func (h *UsersHandler) ListAllCases(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	list, err := h.cases.ListAllCases(c.UserContext(), user, service.AdminCaseFilter{
		Status:  c.Query("status"),
		Active:  parseBool(c.Query("is_active")),
		Page:    parseInt(c.Query("page"), 1),
		PerPage: parseInt(c.Query("per_page"), 0),
	})
	if err != nil {
		return err
	}
	return c.JSON(caseListResponse(list))
}

// ListAuditLogs handles GET /admin/audit-logs.
func (h *UsersHandler) ListAuditLogs(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	page, err := h.users.ListAuditLogs(c.UserContext(), user, service.AuditLogFilter{
		UserID:  c.Query("user_id"),
		Action:  c.Query("action"),
		Result:  c.Query("result"),
		Page:    parseInt(c.Query("page"), 1),
		PerPage: parseInt(c.Query("per_page"), 0),
	})
	if err != nil {
		return err
	}
	return c.JSON(dto.ListResponse[dto.AuditLogResponse]{
		Items:      dto.AuditLogResponses(page.Items),
		Pagination: dto.NewPagination(page.Page, page.PerPage, page.Total),
	})
}
