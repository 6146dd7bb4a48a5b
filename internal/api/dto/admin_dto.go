package dto

import (
	"time"

	"github.com/casetrack/casetrack/internal/domain"
	"github.com/casetrack/casetrack/internal/rbac"
	"github.com/casetrack/casetrack/internal/service"
)

// AuditLogResponse is one audit trail entry.
type AuditLogResponse struct {
	ID           string             `json:"id"`
	UserID       *string            `json:"user_id"`
	Action       string             `json:"action"`
	ResourceType string             `json:"resource_type"`
	ResourceID   *string            `json:"resource_id"`
	Result       domain.AuditResult `json:"result"`
	Details      string             `json:"details"`
	IPAddress    string             `json:"ip_address"`
	UserAgent    string             `json:"user_agent"`
	Timestamp    time.Time          `json:"timestamp"`
}

// AuditLogResponses maps audit entries.
func AuditLogResponses(entries []domain.AuditEntry) []AuditLogResponse {
	out := make([]AuditLogResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, AuditLogResponse{
			ID:           e.ID,
			UserID:       e.UserID,
			Action:       e.Action,
			ResourceType: e.ResourceType,
			ResourceID:   e.ResourceID,
			Result:       e.Result,
			Details:      e.Details,
			IPAddress:    e.IPAddress,
			UserAgent:    e.UserAgent,
			Timestamp:    e.Timestamp,
		})
	}
	return out
}

// UserPermissionsResponse lists the capabilities of one account.
type UserPermissionsResponse struct {
	User        UserResponse `json:"user"`
	Permissions []string     `json:"permissions"`
}

// NewUserPermissionsResponse maps the service result.
func NewUserPermissionsResponse(p *service.UserPermissions) UserPermissionsResponse {
	return UserPermissionsResponse{
		User:        NewUserResponse(p.User),
		Permissions: rbac.Strings(p.Permissions),
	}
}
