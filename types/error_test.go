package types

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *Error
		want string
	}{
		{
			name: "without cause",
			err:  NewError(ErrTimeout, "step deadline exceeded"),
			want: "[TIMEOUT] step deadline exceeded",
		},
		{
			name: "with cause",
			err:  NewError(ErrProviderError, "upstream failed").WithCause(errors.New("boom")),
			want: "[PROVIDER_ERROR] upstream failed: boom",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("connection reset")
	err := NewProviderError("openai", "request failed").WithCause(cause)

	assert.ErrorIs(t, err, cause)
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(NewRateLimitError("openai")))
	assert.False(t, IsRetryable(NewTimeoutError("deadline")))
	assert.False(t, IsRetryable(errors.New("plain error")))
	assert.False(t, IsRetryable(nil))
}

func TestIsRetryable_Wrapped(t *testing.T) {
	err := fmt.Errorf("step reply_generation: %w", NewRateLimitError("openai"))
	assert.True(t, IsRetryable(err))
}

func TestGetErrorCode(t *testing.T) {
	require.Equal(t, ErrInvalidRequest, GetErrorCode(NewInvalidRequestError("bad")))
	require.Equal(t, ErrorCode(""), GetErrorCode(errors.New("plain")))

	wrapped := fmt.Errorf("wrap: %w", NewTimeoutError("deadline"))
	assert.Equal(t, ErrTimeout, GetErrorCode(wrapped))
	assert.True(t, IsErrorCode(wrapped, ErrTimeout))
	assert.False(t, IsErrorCode(wrapped, ErrStepFailed))
}
