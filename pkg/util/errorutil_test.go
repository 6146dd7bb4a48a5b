package util

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToDomainError_PassesThroughDomainErrors(t *testing.T) {
	original := NewForbidden("nope")
	wrapped := fmt.Errorf("handler: %w", original)

	got := ToDomainError(wrapped)
	require.NotNil(t, got)
	assert.Equal(t, CodeForbidden, got.Code)
	assert.Equal(t, http.StatusForbidden, got.HTTPStatus)
}

func TestToDomainError_NoRowsBecomesNotFound(t *testing.T) {
	got := ToDomainError(pgx.ErrNoRows)
	assert.Equal(t, CodeNotFound, got.Code)
	assert.Equal(t, http.StatusNotFound, got.HTTPStatus)
}

func TestToDomainError_UnknownBecomesInternal(t *testing.T) {
	cause := errors.New("boom")
	got := ToDomainError(cause)
	assert.Equal(t, CodeInternal, got.Code)
	assert.ErrorIs(t, got, cause)
}

func TestNewInvalidTransition_Details(t *testing.T) {
	err := NewInvalidTransition("open", "closed", []string{"open", "in_progress"})
	de := ToDomainError(err)
	assert.Equal(t, CodeInvalidTransition, de.Code)
	assert.Equal(t, http.StatusBadRequest, de.HTTPStatus)
	assert.Equal(t, "open", de.Details["from"])
	assert.Equal(t, "closed", de.Details["to"])
	assert.Equal(t, []string{"open", "in_progress"}, de.Details["valid_transitions"])
}

func TestCodeOf(t *testing.T) {
	assert.Equal(t, CodeValidation, CodeOf(NewFieldValidationError(map[string]string{"title": "required"})))
	assert.Equal(t, "", CodeOf(errors.New("plain")))
	assert.Equal(t, "", CodeOf(nil))
}
