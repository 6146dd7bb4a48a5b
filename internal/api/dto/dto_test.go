package dto

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/casetrack/casetrack/internal/domain"
	apperrors "github.com/casetrack/casetrack/pkg/util"
)

func TestNewPagination(t *testing.T) {
	tests := []struct {
		name                 string
		page, perPage, total int
		want                 Pagination
	}{
		{"empty", 1, 10, 0, Pagination{Page: 1, PerPage: 10, Total: 0, Pages: 0}},
		{"single page", 1, 10, 7, Pagination{Page: 1, PerPage: 10, Total: 7, Pages: 1}},
		{"first of many", 1, 10, 25, Pagination{Page: 1, PerPage: 10, Total: 25, Pages: 3, HasNext: true}},
		{"middle", 2, 10, 25, Pagination{Page: 2, PerPage: 10, Total: 25, Pages: 3, HasNext: true, HasPrev: true}},
		{"last", 3, 10, 25, Pagination{Page: 3, PerPage: 10, Total: 25, Pages: 3, HasPrev: true}},
		{"past the end", 5, 10, 25, Pagination{Page: 5, PerPage: 10, Total: 25, Pages: 3, HasPrev: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NewPagination(tt.page, tt.perPage, tt.total))
		})
	}
}

func TestParseCasePatch(t *testing.T) {
	patch, err := ParseCasePatch([]byte(`{"title":"New","status":"closed","due_date":null,"assigned_to":null,"status_override":true}`))
	require.NoError(t, err)
	require.NotNil(t, patch.Title)
	assert.Equal(t, "New", *patch.Title)
	require.NotNil(t, patch.Status)
	assert.Equal(t, domain.CaseStatusClosed, *patch.Status)
	assert.True(t, patch.ClearDueDate)
	assert.True(t, patch.ClearAssignee)
	assert.True(t, patch.StatusOverride)
	assert.Nil(t, patch.Description)

	patch, err = ParseCasePatch([]byte(`{"due_date":"2030-01-02","assigned_to":"abc"}`))
	require.NoError(t, err)
	require.NotNil(t, patch.DueDate)
	assert.Equal(t, time.Date(2030, 1, 2, 0, 0, 0, 0, time.UTC), *patch.DueDate)
	assert.Equal(t, "abc", *patch.AssignedTo)
}

func TestParseCasePatch_Rejects(t *testing.T) {
	_, err := ParseCasePatch([]byte(`{"title":"x","owner":"me","id":"1"}`))
	de := apperrors.ToDomainError(err)
	require.NotNil(t, de)
	assert.Equal(t, apperrors.CodeValidation, de.Code)
	assert.Equal(t, []string{"id", "owner"}, de.Details["unknown_fields"])

	_, err = ParseCasePatch([]byte(`{"title":null,"priority":3,"due_date":"tomorrow"}`))
	de = apperrors.ToDomainError(err)
	require.NotNil(t, de)
	assert.Equal(t, map[string]string{
		"title":    "cannot be null",
		"priority": "must be a string",
		"due_date": "must be an ISO 8601 date or datetime",
	}, de.Details["fields"])

	_, err = ParseCasePatch([]byte(`[1,2]`))
	assert.Equal(t, apperrors.CodeValidation, apperrors.CodeOf(err))
}

func TestParseDueDate(t *testing.T) {
	got, err := ParseDueDate("2030-06-01T10:30:00+02:00")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2030, 6, 1, 8, 30, 0, 0, time.UTC), got)

	got, err = ParseDueDate("2030-06-01T10:30:00")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2030, 6, 1, 10, 30, 0, 0, time.UTC), got)

	_, err = ParseDueDate("06/01/2030")
	assert.Error(t, err)
}

func TestCreateCaseRequest_ToInput(t *testing.T) {
	due := "2030-01-01"
	blank := "  "
	in, err := CreateCaseRequest{Title: "t", DueDate: &due, AssignedTo: &blank}.ToInput()
	require.NoError(t, err)
	require.NotNil(t, in.DueDate)
	assert.Nil(t, in.AssignedTo)

	bad := "soon"
	_, err = CreateCaseRequest{Title: "t", DueDate: &bad}.ToInput()
	assert.Equal(t, apperrors.CodeValidation, apperrors.CodeOf(err))
}
