package domain

import "time"

// AuditResult captures the outcome recorded for an audited action.
type AuditResult string

const (
	AuditSuccess           AuditResult = "SUCCESS"
	AuditForbidden         AuditResult = "FORBIDDEN"
	AuditNotFound          AuditResult = "NOT_FOUND"
	AuditValidationError   AuditResult = "VALIDATION_ERROR"
	AuditInvalidTransition AuditResult = "INVALID_TRANSITION"
	AuditOverride          AuditResult = "OVERRIDE"
	AuditCorrected         AuditResult = "CORRECTED"
	AuditError             AuditResult = "ERROR"
)

// AuditEntry is an immutable record of an action taken against a resource.
type AuditEntry struct {
	ID           string
	UserID       *string
	Action       string
	ResourceType string
	ResourceID   *string
	Result       AuditResult
	Details      string
	IPAddress    string
	UserAgent    string
	Timestamp    time.Time
}
