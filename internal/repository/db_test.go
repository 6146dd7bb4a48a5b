package repository

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"

	"github.com/casetrack/casetrack/internal/domain"
)

func TestTranslate_UniqueViolation(t *testing.T) {
	err := fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505", ConstraintName: "users_email_key"})
	assert.ErrorIs(t, translate(err), ErrDuplicate)
}

func TestTranslate_PassesOtherErrors(t *testing.T) {
	cause := errors.New("connection reset")
	assert.Equal(t, cause, translate(cause))
	assert.Nil(t, translate(nil))
}

func TestNormalizePage(t *testing.T) {
	limit, offset := normalizePage(0, -5, 10)
	assert.Equal(t, 10, limit)
	assert.Equal(t, 0, offset)

	limit, offset = normalizePage(25, 50, 10)
	assert.Equal(t, 25, limit)
	assert.Equal(t, 50, offset)
}

func TestCaseFilter_WhereClause(t *testing.T) {
	status := domain.CaseStatusOpen
	assignee := "u-2"
	where, args := caseFilterClauses(CaseFilter{
		Scope:      CaseScope{OwnerID: "u-1", AssigneeID: "u-1"},
		Status:     &status,
		AssignedTo: &assignee,
		Search:     " Printer ",
	})

	assert.Equal(t,
		`is_active = TRUE AND (created_by=$1 OR assigned_to=$2) AND status=$3 AND assigned_to=$4 AND (LOWER(title) LIKE $5 ESCAPE '\' OR LOWER(description) LIKE $5 ESCAPE '\')`,
		where)
	assert.Equal(t, []any{"u-1", "u-1", "open", "u-2", "%printer%"}, args)
}

func TestCaseFilter_AllScopeIncludeInactive(t *testing.T) {
	where, args := caseFilterClauses(CaseFilter{Scope: CaseScope{All: true}, IncludeInactive: true})
	assert.Equal(t, "1=1", where)
	assert.Empty(t, args)
}

func TestCaseFilter_ExplicitActive(t *testing.T) {
	inactive := false
	where, args := caseFilterClauses(CaseFilter{Scope: CaseScope{All: true}, Active: &inactive})
	assert.Equal(t, "is_active=$1", where)
	assert.Equal(t, []any{false}, args)
}

func TestCaseScope_Empty(t *testing.T) {
	assert.True(t, CaseScope{}.Empty())
	assert.False(t, CaseScope{AssigneeID: "u"}.Empty())
	assert.False(t, CaseScope{All: true}.Empty())
}

func TestCaseFilter_SearchWildcardsAreLiteral(t *testing.T) {
	_, args := caseFilterClauses(CaseFilter{Scope: CaseScope{All: true}, Search: `100%_Done\`})
	assert.Equal(t, []any{`%100\%\_done\\%`}, args)
}

func TestContainsPattern(t *testing.T) {
	assert.Equal(t, "%printer%", containsPattern("printer"))
	assert.Equal(t, `%a\_b\%c%`, containsPattern("a_b%c"))
}

func TestAuditFilter_WhereClause(t *testing.T) {
	user := "u-1"
	result := domain.AuditForbidden
	where, args := auditFilterClauses(AuditFilter{UserID: &user, Action: " Delete_Case ", Result: &result})

	assert.Equal(t, `1=1 AND user_id=$1 AND action ILIKE $2 ESCAPE '\' AND result=$3`, where)
	assert.Equal(t, []any{"u-1", `%Delete\_Case%`, "FORBIDDEN"}, args)
}
