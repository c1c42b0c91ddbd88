package mcp

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/lphhien112-gif/NOTEBOOKLM/internal/errors"
)

func TestMapError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
	}{
		{"no active document", apperrors.New(apperrors.ErrCodeNoActiveDocument, "none", nil), ErrCodeDocumentNotFound},
		{"document not found", apperrors.New(apperrors.ErrCodeDocumentNotFound, "gone", nil), ErrCodeDocumentNotFound},
		{"file not found", apperrors.New(apperrors.ErrCodeFileNotFound, "missing", nil), ErrCodeFileNotFound},
		{"file too large", apperrors.New(apperrors.ErrCodeFileTooLarge, "big", nil), ErrCodeFileTooLarge},
		{"network timeout", apperrors.New(apperrors.ErrCodeNetworkTimeout, "slow", nil), ErrCodeTimeout},
		{"embedding failed", apperrors.New(apperrors.ErrCodeEmbeddingFailed, "down", nil), ErrCodeBackendUnavailable},
		{"network category", apperrors.NetworkError("refused", nil), ErrCodeBackendUnavailable},
		{"validation category", apperrors.ValidationError("bad", nil), ErrCodeInvalidParams},
		{"internal", apperrors.InternalError("boom", nil), ErrCodeInternalError},
		{"deadline", context.DeadlineExceeded, ErrCodeTimeout},
		{"wrapped cancel", fmt.Errorf("search: %w", context.Canceled), ErrCodeTimeout},
		{"plain error", errors.New("plain"), ErrCodeInternalError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MapError(tt.err)
			require.NotNil(t, got)
			assert.Equal(t, tt.code, got.Code)
		})
	}
}

func TestMapError_PassesThroughMCPError(t *testing.T) {
	orig := NewInvalidParamsError("limit must be positive")

	got := MapError(fmt.Errorf("wrapped: %w", orig))

	assert.Same(t, orig, got)
}

func TestMapError_AppendsSuggestion(t *testing.T) {
	err := apperrors.New(apperrors.ErrCodeNoActiveDocument, "no active document", nil).
		WithSuggestion("Ingest a document first")

	got := MapError(err)

	assert.Contains(t, got.Message, "no active document")
	assert.Contains(t, got.Message, "Ingest a document first")
}

func TestMCPError_Error(t *testing.T) {
	err := NewMethodNotFoundError("search_code")

	assert.Equal(t, ErrCodeMethodNotFound, err.Code)
	assert.Contains(t, err.Error(), "search_code")
}
