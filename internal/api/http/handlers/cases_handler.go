package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/casetrack/casetrack/internal/api/dto"
	"github.com/casetrack/casetrack/internal/service"
)

// CasesHandler serves the case endpoints.
type CasesHandler struct {
	service *service.CaseService
}

// NewCasesHandler constructs handler.
func NewCasesHandler(caseService *service.CaseService) *CasesHandler {
	return &CasesHandler{service: caseService}
}

// ListCases GET /cases.
func (h *CasesHandler) ListCases(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	list, err := h.service.ListCases(c.UserContext(), user, service.CaseListFilter{
		Status:     c.Query("status"),
		Priority:   c.Query("priority"),
		Search:     c.Query("search"),
		AssignedTo: c.Query("assigned_to"),
		CreatedBy:  c.Query("created_by"),
		Page:       parseInt(c.Query("page"), 1),
		PerPage:    parseInt(c.Query("per_page"), 0),
	})
	if err != nil {
		return err
	}
	return c.JSON(caseListResponse(list))
}

// CreateCase POST /cases.
func (h *CasesHandler) CreateCase(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	var req dto.CreateCaseRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	input, err := req.ToInput()
	if err != nil {
		return err
	}
	created, err := h.service.CreateCase(c.UserContext(), user, input)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{
		"message": "case created",
		"data":    dto.NewCaseResponse(created),
	})
}

// GetCase GET /cases/:id.
func (h *CasesHandler) GetCase(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	view, err := h.service.GetCase(c.UserContext(), user, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(dto.CaseDetailResponse{
		Data:   dto.NewCaseResponse(view.Case),
		Access: dto.NewAccessResponse(view.Access),
	})
}

// UpdateCase PATCH /cases/:id.
func (h *CasesHandler) UpdateCase(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	patch, err := dto.ParseCasePatch(c.Body())
	if err != nil {
		return err
	}
	updated, err := h.service.UpdateCase(c.UserContext(), user, c.Params("id"), patch)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"message": "case updated",
		"data":    dto.NewCaseResponse(updated),
	})
}

// DeleteCase DELETE /cases/:id.
func (h *CasesHandler) DeleteCase(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	if err := h.service.DeleteCase(c.UserContext(), user, c.Params("id")); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"message": "case deleted"})
}

func caseListResponse(list *service.CaseList) dto.ListResponse[dto.CaseResponse] {
	return dto.ListResponse[dto.CaseResponse]{
		Items:      dto.CaseResponses(list.Items),
		Pagination: dto.NewPagination(list.Page, list.PerPage, list.Total),
	}
}
