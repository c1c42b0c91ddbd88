package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppError_Unwrap_PreservesOriginalError(t *testing.T) {
	// Given: an original error
	originalErr := errors.New("original error")

	// When: wrapping with AppError
	appErr := New(ErrCodeFileNotFound, "file not found: notes.txt", originalErr)

	// Then: unwrapping returns original error
	require.NotNil(t, appErr)
	assert.Equal(t, originalErr, errors.Unwrap(appErr))
	assert.True(t, errors.Is(appErr, originalErr))
}

func TestAppError_Error_ReturnsFormattedMessage(t *testing.T) {
	tests := []struct {
		name     string
		code     string
		message  string
		expected string
	}{
		{
			name:     "config error",
			code:     ErrCodeConfigNotFound,
			message:  "config file not found",
			expected: "[ERR_101_CONFIG_NOT_FOUND] config file not found",
		},
		{
			name:     "unsupported file",
			code:     ErrCodeUnsupportedFile,
			message:  "unsupported file type: .xls",
			expected: "[ERR_407_UNSUPPORTED_FILE] unsupported file type: .xls",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := New(tt.code, tt.message, nil)
			assert.Equal(t, tt.expected, err.Error())
		})
	}
}

func TestAppError_Is_MatchesByCode(t *testing.T) {
	err1 := New(ErrCodeDocumentNotFound, "document a not found", nil)
	err2 := New(ErrCodeDocumentNotFound, "document b not found", nil)
	err3 := New(ErrCodeQueryEmpty, "query is empty", nil)

	assert.True(t, errors.Is(err1, err2))
	assert.False(t, errors.Is(err1, err3))
}

func TestAppError_WithDetailAndSuggestion(t *testing.T) {
	err := New(ErrCodeGenerationUnavailable, "generation backend unreachable", nil).
		WithDetail("model", "gemma3:1b").
		WithSuggestion("Start Ollama with 'ollama serve'")

	assert.Equal(t, "gemma3:1b", err.Details["model"])
	assert.Equal(t, "Start Ollama with 'ollama serve'", err.Suggestion)
}

func TestAppError_CategoryFromCode(t *testing.T) {
	tests := []struct {
		code         string
		wantCategory Category
	}{
		{ErrCodeConfigInvalid, CategoryConfig},
		{ErrCodePersistFailed, CategoryIO},
		{ErrCodeCorruptIndex, CategoryIO},
		{ErrCodeGenerationUnavailable, CategoryNetwork},
		{ErrCodeNoActiveDocument, CategoryValidation},
		{ErrCodeDocumentNotFound, CategoryValidation},
		{ErrCodeEmbeddingFailed, CategoryInternal},
		{"BAD", CategoryInternal},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			err := New(tt.code, "test message", nil)
			assert.Equal(t, tt.wantCategory, err.Category)
		})
	}
}

func TestAppError_SeverityAndRetryable(t *testing.T) {
	tests := []struct {
		code          string
		wantSeverity  Severity
		wantRetryable bool
	}{
		{ErrCodeDiskFull, SeverityFatal, false},
		{ErrCodePersistFailed, SeverityError, false},
		{ErrCodeNetworkTimeout, SeverityWarning, true},
		{ErrCodeGenerationUnavailable, SeverityWarning, true},
		{ErrCodeQueryEmpty, SeverityError, false},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			err := New(tt.code, "test message", nil)
			assert.Equal(t, tt.wantSeverity, err.Severity)
			assert.Equal(t, tt.wantRetryable, err.Retryable)
		})
	}
}

func TestWrap_NilReturnsNil(t *testing.T) {
	assert.Nil(t, Wrap(ErrCodeInternal, nil))
}

func TestHelpers_FindAppErrorThroughWrapping(t *testing.T) {
	// Given: an AppError wrapped by fmt.Errorf
	base := NetworkError("ollama unreachable", nil)
	wrapped := fmt.Errorf("failed to embed query: %w", base)

	// Then: helpers see through the wrapping
	assert.True(t, IsRetryable(wrapped))
	assert.False(t, IsFatal(wrapped))
	assert.Equal(t, ErrCodeNetworkUnavailable, GetCode(wrapped))
	assert.Equal(t, CategoryNetwork, GetCategory(wrapped))
}

func TestHelpers_PlainError(t *testing.T) {
	err := errors.New("plain")

	assert.False(t, IsRetryable(err))
	assert.Equal(t, "", GetCode(err))
	assert.Equal(t, Category(""), GetCategory(err))
}
