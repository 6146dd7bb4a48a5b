// Package workflow holds the case status state machine.
package workflow

import (
	"github.com/casetrack/casetrack/internal/domain"
	apperrors "github.com/casetrack/casetrack/pkg/util"
)

// InitialStatus is the status every new case starts in.
const InitialStatus = domain.CaseStatusOpen

// Self-loops are listed so that re-sending the current status is accepted.
var transitions = map[domain.CaseStatus][]domain.CaseStatus{
	domain.CaseStatusOpen:       {domain.CaseStatusOpen, domain.CaseStatusInProgress},
	domain.CaseStatusInProgress: {domain.CaseStatusInProgress, domain.CaseStatusClosed},
	domain.CaseStatusClosed:     {domain.CaseStatusClosed},
}

// AllowedNext returns the statuses reachable from current without override.
func AllowedNext(current domain.CaseStatus) []domain.CaseStatus {
	next := transitions[current]
	out := make([]domain.CaseStatus, len(next))
	copy(out, next)
	return out
}

// CanTransition reports whether current -> next is in the table.
func CanTransition(current, next domain.CaseStatus) bool {
	for _, s := range transitions[current] {
		if s == next {
			return true
		}
	}
	return false
}

// Validate checks a requested status change. With override set, any known
// target status is accepted; the caller decides who may override.
func Validate(current, next domain.CaseStatus, override bool) error {
	if !next.Valid() {
		return apperrors.NewFieldValidationError(map[string]string{
			string(domain.FieldStatus): "must be one of open, in_progress, closed",
		})
	}
	if override || CanTransition(current, next) {
		return nil
	}
	return apperrors.NewInvalidTransition(string(current), string(next), Strings(AllowedNext(current)))
}

// IsOverride reports whether current -> next would need the privileged bypass.
func IsOverride(current, next domain.CaseStatus) bool {
	return current != next && !CanTransition(current, next)
}

// Strings renders statuses for JSON payloads.
func Strings(statuses []domain.CaseStatus) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}
