package dto

import (
	"bytes"
	"encoding/json"
	"sort"
	"strings"
	"time"

	"github.com/casetrack/casetrack/internal/domain"
	"github.com/casetrack/casetrack/internal/service"
	apperrors "github.com/casetrack/casetrack/pkg/util"
)

// CreateCaseRequest payload.
type CreateCaseRequest struct {
	Title       string              `json:"title"`
	Description string              `json:"description"`
	Priority    domain.CasePriority `json:"priority"`
	DueDate     *string             `json:"due_date"`
	AssignedTo  *string             `json:"assigned_to"`
}

// ToInput converts the request into service input.
func (r CreateCaseRequest) ToInput() (service.CaseCreateInput, error) {
	input := service.CaseCreateInput{
		Title:       r.Title,
		Description: r.Description,
		Priority:    r.Priority,
	}
	if r.DueDate != nil && strings.TrimSpace(*r.DueDate) != "" {
		due, err := ParseDueDate(*r.DueDate)
		if err != nil {
			return input, apperrors.NewFieldValidationError(map[string]string{"due_date": "must be an ISO 8601 date or datetime"})
		}
		input.DueDate = &due
	}
	if r.AssignedTo != nil && strings.TrimSpace(*r.AssignedTo) != "" {
		id := strings.TrimSpace(*r.AssignedTo)
		input.AssignedTo = &id
	}
	return input, nil
}

var dueDateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
}

// ParseDueDate accepts RFC 3339 timestamps as well as naive datetimes and
// plain dates, which are read as UTC.
func ParseDueDate(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	var lastErr error
	for _, layout := range dueDateLayouts {
		t, err := time.Parse(layout, value)
		if err == nil {
			return t.UTC(), nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}

// ParseCasePatch decodes a PATCH body. Absent keys are left untouched, an
// explicit null on due_date or assigned_to clears the value, and unknown
// keys are rejected.
func ParseCasePatch(body []byte) (service.CasePatch, error) {
	var patch service.CasePatch
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil || raw == nil {
		return patch, apperrors.NewValidationError("request body must be a JSON object", nil)
	}

	fields := map[string]string{}
	var unknown []string
	for key, val := range raw {
		null := bytes.Equal(bytes.TrimSpace(val), []byte("null"))
		switch key {
		case "title", "description", "status", "priority":
			if null {
				fields[key] = "cannot be null"
				continue
			}
			var s string
			if err := json.Unmarshal(val, &s); err != nil {
				fields[key] = "must be a string"
				continue
			}
			switch key {
			case "title":
				patch.Title = &s
			case "description":
				patch.Description = &s
			case "status":
				st := domain.CaseStatus(s)
				patch.Status = &st
			case "priority":
				pr := domain.CasePriority(s)
				patch.Priority = &pr
			}
		case "due_date":
			if null {
				patch.ClearDueDate = true
				continue
			}
			var s string
			if err := json.Unmarshal(val, &s); err != nil {
				fields[key] = "must be a string"
				continue
			}
			if strings.TrimSpace(s) == "" {
				patch.ClearDueDate = true
				continue
			}
			due, err := ParseDueDate(s)
			if err != nil {
				fields[key] = "must be an ISO 8601 date or datetime"
				continue
			}
			patch.DueDate = &due
		case "assigned_to":
			if null {
				patch.ClearAssignee = true
				continue
			}
			var s string
			if err := json.Unmarshal(val, &s); err != nil {
				fields[key] = "must be a string"
				continue
			}
			if s = strings.TrimSpace(s); s == "" {
				patch.ClearAssignee = true
				continue
			}
			patch.AssignedTo = &s
		case "status_override":
			if null {
				continue
			}
			if err := json.Unmarshal(val, &patch.StatusOverride); err != nil {
				fields[key] = "must be a boolean"
			}
		default:
			unknown = append(unknown, key)
		}
	}

	if len(unknown) > 0 {
		sort.Strings(unknown)
		return patch, apperrors.NewValidationError("unknown fields in request", map[string]any{"unknown_fields": unknown})
	}
	if len(fields) > 0 {
		return patch, apperrors.NewFieldValidationError(fields)
	}
	return patch, nil
}

// CaseResponse is the public representation of a case.
type CaseResponse struct {
	ID          string              `json:"id"`
	Title       string              `json:"title"`
	Description string              `json:"description"`
	Status      domain.CaseStatus   `json:"status"`
	Priority    domain.CasePriority `json:"priority"`
	DueDate     *time.Time          `json:"due_date"`
	CreatedBy   string              `json:"created_by"`
	AssignedTo  *string             `json:"assigned_to"`
	IsActive    bool                `json:"is_active"`
	CreatedAt   time.Time           `json:"created_at"`
	UpdatedAt   time.Time           `json:"updated_at"`
}

// NewCaseResponse maps a domain case.
func NewCaseResponse(c *domain.Case) CaseResponse {
	return CaseResponse{
		ID:          c.ID,
		Title:       c.Title,
		Description: c.Description,
		Status:      c.Status,
		Priority:    c.Priority,
		DueDate:     c.DueDate,
		CreatedBy:   c.CreatedBy,
		AssignedTo:  c.AssignedTo,
		IsActive:    c.IsActive,
		CreatedAt:   c.CreatedAt,
		UpdatedAt:   c.UpdatedAt,
	}
}

// CaseResponses maps a slice of cases.
func CaseResponses(cases []domain.Case) []CaseResponse {
	out := make([]CaseResponse, 0, len(cases))
	for i := range cases {
		out = append(out, NewCaseResponse(&cases[i]))
	}
	return out
}

// AccessResponse tells a client which controls to offer for a case.
type AccessResponse struct {
	CanEdit          bool                `json:"can_edit"`
	CanDelete        bool                `json:"can_delete"`
	CanUpdateStatus  bool                `json:"can_update_status"`
	EditableFields   []domain.CaseField  `json:"editable_fields"`
	ValidTransitions []domain.CaseStatus `json:"valid_transitions"`
}

// NewAccessResponse maps the service access summary.
func NewAccessResponse(a service.CaseAccess) AccessResponse {
	resp := AccessResponse{
		CanEdit:          a.CanEdit,
		CanDelete:        a.CanDelete,
		CanUpdateStatus:  a.CanUpdateStatus,
		EditableFields:   a.EditableFields,
		ValidTransitions: a.ValidTransitions,
	}
	if resp.EditableFields == nil {
		resp.EditableFields = []domain.CaseField{}
	}
	if resp.ValidTransitions == nil {
		resp.ValidTransitions = []domain.CaseStatus{}
	}
	return resp
}

// CaseDetailResponse wraps GET /cases/:id.
type CaseDetailResponse struct {
	Data   CaseResponse   `json:"data"`
	Access AccessResponse `json:"access"`
}
