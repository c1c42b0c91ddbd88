package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	apperrors "github.com/lphhien112-gif/NOTEBOOKLM/internal/errors"
)

// errorResponse is the body of every non-2xx response.
type errorResponse struct {
	Detail     string `json:"detail"`
	Code       string `json:"code,omitempty"`
	Suggestion string `json:"suggestion,omitempty"`
}

// statusFor maps an error to an HTTP status by its code and category.
func statusFor(err error) int {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return http.StatusRequestEntityTooLarge
	}

	switch apperrors.GetCode(err) {
	case apperrors.ErrCodeDocumentNotFound, apperrors.ErrCodeFileNotFound:
		return http.StatusNotFound
	case apperrors.ErrCodeFileTooLarge:
		return http.StatusRequestEntityTooLarge
	}

	switch apperrors.GetCategory(err) {
	case apperrors.CategoryValidation:
		return http.StatusBadRequest
	case apperrors.CategoryNetwork:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes err with the status statusFor picks.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		slog.Error("request_failed",
			slog.String("path", r.URL.Path),
			slog.Int("status", status),
			slog.String("error", err.Error()))
	}
	writeError(w, status, err)
}

func writeError(w http.ResponseWriter, status int, err error) {
	body := errorResponse{Detail: err.Error()}
	if appErr, ok := apperrors.As(err); ok {
		body.Detail = appErr.Message
		body.Code = appErr.Code
		body.Suggestion = appErr.Suggestion
	}
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		slog.Debug("response_write_failed", slog.String("error", err.Error()))
	}
}
