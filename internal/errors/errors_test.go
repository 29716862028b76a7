package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnifiedError_Creation(t *testing.T) {
	tests := []struct {
		name      string
		err       *UnifiedError
		errType   ErrorType
		severity  ErrorSeverity
		retryable bool
	}{
		{"validation", Validation("EMPTY_NAME", "name is empty").Build(), ErrorTypeValidation, SeverityLow, false},
		{"not found", NotFound("SCOPE_NOT_FOUND", "scope not found").Build(), ErrorTypeNotFound, SeverityLow, false},
		{"conflict", Conflict("DUPLICATE_NAME", "duplicate").Build(), ErrorTypeConflict, SeverityMedium, false},
		{"circular", CircularReference("CIRCULAR_REFERENCE", "cycle").Build(), ErrorTypeCircularReference, SeverityCritical, false},
		{"unsupported", UnsupportedExpression("UNSUPPORTED", "nope").Build(), ErrorTypeUnsupportedExpression, SeverityLow, false},
		{"unavailable", Unavailable("CIRCUIT_OPEN", "open").Build(), ErrorTypeUnavailable, SeverityHigh, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.errType, tt.err.Type)
			assert.Equal(t, tt.severity, tt.err.Severity)
			assert.Equal(t, tt.retryable, tt.err.Retryable)
			assert.True(t, IsType(tt.err, tt.errType))
			assert.NotEmpty(t, tt.err.File)
		})
	}
}

func TestUnifiedError_Error(t *testing.T) {
	err := NotFound("CATEGORY_NOT_FOUND", "category not found").WithDetails("id=42").Build()
	assert.Equal(t, "[NOT_FOUND:CATEGORY_NOT_FOUND] category not found: id=42", err.Error())

	err = Validation("EMPTY_ID", "id is empty").Build()
	assert.Equal(t, "[VALIDATION:EMPTY_ID] id is empty", err.Error())
	assert.Contains(t, err.String(), "Severity: LOW")
}

func TestClassification_ThroughWrapping(t *testing.T) {
	base := CircularReference("CIRCULAR_REFERENCE", "cycle detected").Build()
	wrapped := fmt.Errorf("walking ancestors: %w", base)

	assert.True(t, IsCircularReference(wrapped))
	assert.False(t, IsNotFound(wrapped))
	assert.Equal(t, ErrorTypeCircularReference, TypeOf(wrapped))
	assert.Equal(t, ErrorTypeInternal, TypeOf(errors.New("plain")))
}

func TestWrap(t *testing.T) {
	t.Run("nil", func(t *testing.T) {
		assert.Nil(t, Wrap(nil, "op", "msg"))
	})

	t.Run("preserves unified type", func(t *testing.T) {
		original := Conflict("SCOPE_IN_USE", "scope still in use").WithResource("scope").Build()
		wrapped := Wrap(original, "DeleteScopes", "delete failed")

		require.NotNil(t, wrapped)
		assert.Equal(t, ErrorTypeConflict, wrapped.Type)
		assert.Equal(t, "SCOPE_IN_USE", wrapped.Code)
		assert.Equal(t, "scope still in use", wrapped.Details)
		assert.Equal(t, "DeleteScopes", wrapped.Operation)
		assert.Equal(t, "scope", wrapped.Resource)
		assert.True(t, errors.Is(wrapped, original))
	})

	t.Run("plain error becomes internal", func(t *testing.T) {
		cause := errors.New("disk on fire")
		wrapped := Wrap(cause, "Read", "read failed")

		assert.Equal(t, ErrorTypeInternal, wrapped.Type)
		assert.Equal(t, "disk on fire", wrapped.Details)
		assert.ErrorIs(t, wrapped, cause)
	})
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(Unavailable("CIRCUIT_OPEN", "open").Build()))
	assert.False(t, IsRetryable(NotFound("X", "y").Build()))
	assert.False(t, IsRetryable(errors.New("plain")))
}
