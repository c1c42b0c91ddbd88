package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/lphhien112-gif/NOTEBOOKLM/internal/async"
	apperrors "github.com/lphhien112-gif/NOTEBOOKLM/internal/errors"
	"github.com/lphhien112-gif/NOTEBOOKLM/internal/lifecycle"
	"github.com/lphhien112-gif/NOTEBOOKLM/internal/rag"
	"github.com/lphhien112-gif/NOTEBOOKLM/pkg/version"
)

// User-facing messages.
const (
	msgWelcome      = "Chào mừng đến với API RAG Offline!"
	msgEmptyQuery   = "Câu hỏi không được để trống."
	msgUploadQueued = "Tệp đã được chấp nhận và đang được xử lý trong nền."
	msgDeleted      = "Tài liệu đã được xóa thành công."
	msgCleared      = "Toàn bộ dữ liệu đã được xóa thành công."
	multipartMemory = 8 << 20
	uploadFormField = "file"
)

type chatRequest struct {
	Query      string `json:"query"`
	DocumentID string `json:"document_id,omitempty"`
}

type uploadResponse struct {
	Message    string `json:"message"`
	DocumentID string `json:"document_id"`
	Filename   string `json:"filename"`
}

type deleteResponse struct {
	Message    string `json:"message"`
	DocumentID string `json:"document_id"`
}

type clearResponse struct {
	Message            string `json:"message"`
	DeletedCollections int    `json:"deleted_collections"`
	DeletedFiles       int    `json:"deleted_files"`
}

type taskRequest struct {
	DocumentID   string `json:"document_id,omitempty"`
	NumQuestions *int   `json:"num_questions,omitempty"`
}

type taskResponse struct {
	Result string `json:"result"`
}

// documentView is a stored document plus its ingestion progress, if the
// queue still tracks it.
type documentView struct {
	lifecycle.DocumentInfo
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

func (s *Server) handleRoot(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": msgWelcome})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	active, _ := s.manager.ActiveDocument()
	pending := 0
	for _, p := range s.queue.Snapshot() {
		if p.Status == string(async.StatusQueued) || p.Status == string(async.StatusProcessing) {
			pending++
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":          "ok",
		"version":         version.Short(),
		"active_document": active,
		"pending_ingests": pending,
	})
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := decodeJSON(r, &req, false); err != nil {
		respondError(w, r, err)
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeError(w, http.StatusBadRequest, apperrors.New(apperrors.ErrCodeQueryEmpty, msgEmptyQuery, nil))
		return
	}

	answer, err := s.pipeline.Ask(r.Context(), req.Query, req.DocumentID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, answer)
}

// handleUpload stores the file and queues it for ingestion. The active
// document changes only once ingestion has stored fragments.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, int64(s.cfg.MaxUploadMB)<<20)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		respondError(w, r, uploadFormError(err))
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, header, err := r.FormFile(uploadFormField)
	if err != nil {
		writeError(w, http.StatusBadRequest, apperrors.ValidationError("missing file field", err))
		return
	}
	defer func() { _ = file.Close() }()

	upload, err := s.manager.AddUpload(r.Context(), header.Filename, file)
	if err != nil {
		respondError(w, r, err)
		return
	}

	job := async.Job{DocumentID: upload.DocumentID, Path: upload.Path, Filename: upload.Filename}
	if err := s.queue.Submit(job); err != nil {
		if _, rmErr := s.manager.Uploads().Remove(upload.DocumentID); rmErr != nil {
			slog.Warn("upload_cleanup_failed",
				slog.String("document_id", upload.DocumentID),
				slog.String("error", rmErr.Error()))
		}
		writeError(w, http.StatusServiceUnavailable,
			apperrors.NetworkError("ingestion queue unavailable", err).
				WithSuggestion("Retry the upload in a moment"))
		return
	}

	slog.Info("document_uploaded",
		slog.String("document_id", upload.DocumentID),
		slog.String("filename", upload.Filename),
		slog.Int64("size", upload.Size))
	writeJSON(w, http.StatusAccepted, uploadResponse{
		Message:    msgUploadQueued,
		DocumentID: upload.DocumentID,
		Filename:   upload.Filename,
	})
}

func uploadFormError(err error) error {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return apperrors.New(apperrors.ErrCodeFileTooLarge, "upload exceeds the size limit", err)
	}
	return apperrors.ValidationError("expected a multipart form with a file field", err)
}

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := s.manager.Documents(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}

	views := make([]documentView, 0, len(docs))
	for _, d := range docs {
		views = append(views, s.view(d))
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleDocumentStatus(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	docs, err := s.manager.Documents(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	for _, d := range docs {
		if d.DocumentID == id {
			writeJSON(w, http.StatusOK, s.view(d))
			return
		}
	}
	// Deleted from disk while still tracked by the queue.
	if p, ok := s.queue.Status(id); ok {
		writeJSON(w, http.StatusOK, documentView{
			DocumentInfo: lifecycle.DocumentInfo{DocumentID: id, Filename: p.Filename, Fragments: p.Fragments},
			Status:       p.Status,
			Error:        p.ErrorMessage,
		})
		return
	}

	respondError(w, r, apperrors.New(apperrors.ErrCodeDocumentNotFound, "document not found: "+id, nil).
		WithDetail("document_id", id))
}

// view attaches queue progress to d. Documents the queue never saw are
// reported ready when they have fragments.
func (s *Server) view(d lifecycle.DocumentInfo) documentView {
	v := documentView{DocumentInfo: d}
	if p, ok := s.queue.Status(d.DocumentID); ok {
		v.Status = p.Status
		v.Error = p.ErrorMessage
		return v
	}
	if d.Fragments > 0 {
		v.Status = string(async.StatusReady)
	} else {
		v.Status = "stored"
	}
	return v
}

func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := s.manager.Delete(r.Context(), id); err != nil {
		respondError(w, r, err)
		return
	}
	s.queue.Forget(id)
	writeJSON(w, http.StatusOK, deleteResponse{Message: msgDeleted, DocumentID: id})
}

func (s *Server) handleClearAll(w http.ResponseWriter, r *http.Request) {
	result, err := s.manager.ClearAll(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	s.queue.Reset()
	writeJSON(w, http.StatusOK, clearResponse{
		Message:            msgCleared,
		DeletedCollections: result.DeletedCollections,
		DeletedFiles:       result.DeletedFiles,
	})
}

func (s *Server) handleSummarize(w http.ResponseWriter, r *http.Request) {
	s.runTask(w, r, func(req taskRequest) (string, error) {
		return s.pipeline.Summarize(r.Context(), req.DocumentID)
	})
}

func (s *Server) handleGenerateQuestions(w http.ResponseWriter, r *http.Request) {
	s.runTask(w, r, func(req taskRequest) (string, error) {
		n := rag.DefaultQuestionCount
		if req.NumQuestions != nil {
			n = *req.NumQuestions
			if n < 1 {
				return "", apperrors.ValidationError("num_questions must be greater than 0", nil)
			}
		}
		return s.pipeline.GenerateQuestions(r.Context(), n, req.DocumentID)
	})
}

func (s *Server) handleExtractKeywords(w http.ResponseWriter, r *http.Request) {
	s.runTask(w, r, func(req taskRequest) (string, error) {
		return s.pipeline.ExtractKeywords(r.Context(), req.DocumentID)
	})
}

func (s *Server) runTask(w http.ResponseWriter, r *http.Request, task func(taskRequest) (string, error)) {
	var req taskRequest
	if err := decodeJSON(r, &req, true); err != nil {
		respondError(w, r, err)
		return
	}
	result, err := task(req)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, taskResponse{Result: result})
}

// decodeJSON reads a JSON body into v. With allowEmpty an empty body
// leaves v at its zero value.
func decodeJSON(r *http.Request, v any, allowEmpty bool) error {
	err := json.NewDecoder(r.Body).Decode(v)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, io.EOF) && allowEmpty:
		return nil
	default:
		return apperrors.ValidationError("invalid JSON body", err)
	}
}
