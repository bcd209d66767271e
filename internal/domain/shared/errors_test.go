package shared

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDomainError_Is(t *testing.T) {
	cause := errors.New("403 Forbidden")
	err := WrapError("telegram", "Send", ErrInvalidState, ErrChatUnreachable.Message, cause)

	assert.ErrorIs(t, err, ErrChatUnreachable)
	assert.ErrorIs(t, err, ErrInvalidState)
	assert.ErrorIs(t, err, cause)
	assert.NotErrorIs(t, err, ErrTelegramAPIFailed)

	wrapped := fmt.Errorf("notify 42: %w", err)
	assert.ErrorIs(t, wrapped, ErrChatUnreachable)
}

func TestDomainError_Error(t *testing.T) {
	assert.Equal(t, "timetable.FindBlock: group not found in document", ErrBlockNotFound.Error())

	err := WrapError("document", "Fetch", ErrServiceUnavailable, "document could not be fetched", errors.New("status 502"))
	assert.Equal(t, "document.Fetch: document could not be fetched: status 502", err.Error())
}

func TestDomainError_Unwrap(t *testing.T) {
	assert.Equal(t, ErrNotFound, errors.Unwrap(ErrSubscriberNotFound))

	cause := errors.New("eof")
	assert.Equal(t, cause, errors.Unwrap(WrapError("document", "Extract", ErrInvalidFormat, "bad", cause)))
}

func TestClassification(t *testing.T) {
	tests := []struct {
		name                               string
		err                                error
		notFound, validation, ext, retries bool
	}{
		{"block not found", ErrBlockNotFound, true, false, false, false},
		{"group code", ErrInvalidGroupCode, false, true, false, false},
		{"fetch failed", ErrDocumentFetchFailed, false, false, true, true},
		{"telegram", ErrTelegramAPIFailed, false, false, true, false},
		{"wrapped timeout", fmt.Errorf("refresh: %w", ErrTimeout), false, false, true, true},
		{"plain", errors.New("x"), false, false, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.notFound, IsNotFound(tt.err))
			assert.Equal(t, tt.validation, IsValidation(tt.err))
			assert.Equal(t, tt.ext, IsExternalService(tt.err))
			assert.Equal(t, tt.retries, IsRetryable(tt.err))
		})
	}
	assert.True(t, IsAlreadyExists(WrapError("document", "Save", ErrAlreadyExists, "dup", nil)))
}
