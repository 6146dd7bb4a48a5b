package domain

import "time"

// CaseStatus enumerates workflow states for cases.
type CaseStatus string

const (
	CaseStatusOpen       CaseStatus = "open"
	CaseStatusInProgress CaseStatus = "in_progress"
	CaseStatusClosed     CaseStatus = "closed"
)

// Valid reports whether s is a known status.
func (s CaseStatus) Valid() bool {
	switch s {
	case CaseStatusOpen, CaseStatusInProgress, CaseStatusClosed:
		return true
	}
	return false
}

// CasePriority enumerates urgency levels.
type CasePriority string

const (
	CasePriorityLow    CasePriority = "low"
	CasePriorityMedium CasePriority = "medium"
	CasePriorityHigh   CasePriority = "high"
)

// Valid reports whether p is a known priority.
func (p CasePriority) Valid() bool {
	switch p {
	case CasePriorityLow, CasePriorityMedium, CasePriorityHigh:
		return true
	}
	return false
}

// CaseField names a mutable attribute of a case.
type CaseField string

const (
	FieldTitle       CaseField = "title"
	FieldDescription CaseField = "description"
	FieldStatus      CaseField = "status"
	FieldPriority    CaseField = "priority"
	FieldDueDate     CaseField = "due_date"
	FieldAssignedTo  CaseField = "assigned_to"
)

// Case is the tracked work item.
type Case struct {
	ID          string
	Title       string
	Description string
	Status      CaseStatus
	Priority    CasePriority
	DueDate     *time.Time
	CreatedBy   string
	AssignedTo  *string
	IsActive    bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// IsClosed reports whether the case reached the terminal status.
func (c *Case) IsClosed() bool {
	return c.Status == CaseStatusClosed
}

// IsAssignedTo reports whether userID is the case assignee.
func (c *Case) IsAssignedTo(userID string) bool {
	return c.AssignedTo != nil && *c.AssignedTo == userID
}
