package types

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorFormat(t *testing.T) {
	err := NewError(ErrMalformedGraph, "duplicate node id")
	assert.Equal(t, "[MALFORMED_GRAPH] duplicate node id", err.Error())

	cause := errors.New("boom")
	err = NewError(ErrNodeExecution, "tool failed").WithCause(cause)
	assert.Equal(t, "[NODE_EXECUTION] tool failed: boom", err.Error())
}

func TestErrorUnwrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := NewError(ErrCapabilityUnavailable, "tool provider unreachable").WithCause(cause)

	require.ErrorIs(t, err, cause)
	assert.Equal(t, cause, errors.Unwrap(err))
}

func TestErrorBuilders(t *testing.T) {
	err := NewError(ErrRunFinished, "run already finished").
		WithHTTPStatus(409).
		WithRetryable(false).
		WithNodeID("node-1")

	assert.Equal(t, 409, err.HTTPStatus)
	assert.False(t, err.Retryable)
	assert.Equal(t, "node-1", err.NodeID)
}

func TestIsRetryable(t *testing.T) {
	assert.False(t, IsRetryable(nil))
	assert.False(t, IsRetryable(errors.New("plain")))
	assert.False(t, IsRetryable(NewError(ErrRunNotFound, "nope")))
	assert.True(t, IsRetryable(NewError(ErrCapabilityUnavailable, "down").WithRetryable(true)))
}

func TestGetErrorCode(t *testing.T) {
	assert.Equal(t, ErrorCode(""), GetErrorCode(fmt.Errorf("wrapped: %w", errors.New("x"))))
	assert.Equal(t, ErrRunNotFound, GetErrorCode(NewError(ErrRunNotFound, "missing")))
}
