package store

import (
	"errors"
	"fmt"
	"os"
	"syscall"

	apperrors "github.com/lphhien112-gif/NOTEBOOKLM/internal/errors"
)

// writeFileAtomic writes data to a sibling temp file, fsyncs it and renames
// it over path, so readers see either the old or the new content.
func writeFileAtomic(path string, data []byte) error {
	tmpPath := path + ".tmp"

	file, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}

	if _, err := file.Write(data); err != nil {
		_ = file.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to write: %w", err)
	}
	if err := file.Sync(); err != nil {
		_ = file.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to sync: %w", err)
	}
	if err := file.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to close: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to rename: %w", err)
	}
	return nil
}

// persistError reports a failed durable write, as ERR_203 when the disk is
// full.
func persistError(msg string, err error) *apperrors.AppError {
	if errors.Is(err, syscall.ENOSPC) {
		return apperrors.New(apperrors.ErrCodeDiskFull, msg+": disk full", err).
			WithSuggestion("Free disk space and retry")
	}
	return apperrors.New(apperrors.ErrCodePersistFailed, msg, err)
}
