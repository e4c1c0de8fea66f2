package apperror

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAsAppError_WrappedChain(t *testing.T) {
	base := NewTypeMismatch("active", "bool", "maybe")
	wrapped := fmt.Errorf("create record: %w", base)

	appErr, ok := AsAppError(wrapped)
	require.True(t, ok)
	assert.Equal(t, CodeTypeMismatch, appErr.Code)
	assert.Equal(t, http.StatusBadRequest, GetHTTPStatus(wrapped))
	assert.True(t, HasCode(wrapped, CodeTypeMismatch))
}

func TestCascadeDeleteFailed_KeepsCause(t *testing.T) {
	cause := errors.New("fk violation")
	err := NewCascadeDeleteFailed("b-1", cause)

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, http.StatusConflict, err.HTTPStatus)
	assert.Equal(t, "b-1", err.Details["company_directory_id"])
}

func TestGetHTTPStatus_PlainError(t *testing.T) {
	assert.Equal(t, http.StatusInternalServerError, GetHTTPStatus(errors.New("boom")))
	assert.False(t, IsNotFound(errors.New("boom")))
	assert.True(t, IsNotFound(NewNotFound("directory", "x")))
}

func TestNewRuleViolation_DefaultMessage(t *testing.T) {
	err := NewRuleViolation("qty", "value > 0", "")
	assert.Contains(t, err.Message, "qty")

	err = NewRuleViolation("qty", "value > 0", "quantity must be positive")
	assert.Equal(t, "quantity must be positive", err.Message)
}
