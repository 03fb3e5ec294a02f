package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestError_Format(t *testing.T) {
	err := NewConfigError(ErrCodeInvalidPort, "port out of range")
	assert.Equal(t, "[ERR_INVALID_PORT] port out of range", err.Error())

	cause := stderrors.New("unexpected EOF")
	wrapped := NewIngestError(ErrCodeMalformedEvent, "decoding event", cause)
	assert.Equal(t, "[ERR_MALFORMED_EVENT] decoding event: unexpected EOF", wrapped.Error())
}

func TestError_Unwrap(t *testing.T) {
	cause := stderrors.New("disk full")
	err := NewIOError(ErrCodeSessionWrite, "appending session log", cause)

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, cause, stderrors.Unwrap(err))
}

func TestError_IsMatchesTypeAndCode(t *testing.T) {
	a := NewIngestError(ErrCodeMalformedEvent, "bad line 12", nil)
	b := NewIngestError(ErrCodeMalformedEvent, "bad line 99", nil)
	c := NewIngestError(ErrCodeUnknownOp, "op \"rename\"", nil)

	assert.ErrorIs(t, a, b, "same type and code match regardless of message")
	assert.NotErrorIs(t, a, c)

	// Matching survives wrapping.
	wrapped := fmt.Errorf("applying batch: %w", a)
	assert.ErrorIs(t, wrapped, b)
}

func TestError_WithContext(t *testing.T) {
	err := NewIngestError(ErrCodeMalformedEvent, "decoding event", nil).
		WithContext("line", 42).
		WithContext("file", "session.jsonl")

	require.NotNil(t, err.Context)
	assert.Equal(t, 42, err.Context["line"])
	assert.Equal(t, "session.jsonl", err.Context["file"])
}

func TestIsRecoverable(t *testing.T) {
	assert.True(t, IsRecoverable(NewIngestError(ErrCodeMalformedEvent, "m", nil)))
	assert.True(t, IsRecoverable(NewValidationError(ErrCodeInvalidConfig, "m")))
	assert.False(t, IsRecoverable(NewIOError(ErrCodeSessionRead, "m", nil)))
	assert.False(t, IsRecoverable(stderrors.New("plain")))
	assert.False(t, IsRecoverable(nil))
}

func TestIsType(t *testing.T) {
	err := fmt.Errorf("outer: %w", NewNetworkError(ErrCodeOriginRejected, "origin", nil))
	assert.True(t, IsType(err, ErrorTypeNetwork))
	assert.False(t, IsType(err, ErrorTypeConfig))
	assert.False(t, IsType(stderrors.New("plain"), ErrorTypeNetwork))
}
