package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lphhien112-gif/NOTEBOOKLM/internal/async"
	"github.com/lphhien112-gif/NOTEBOOKLM/internal/embed"
	apperrors "github.com/lphhien112-gif/NOTEBOOKLM/internal/errors"
	"github.com/lphhien112-gif/NOTEBOOKLM/internal/lifecycle"
	"github.com/lphhien112-gif/NOTEBOOKLM/internal/llm"
	"github.com/lphhien112-gif/NOTEBOOKLM/internal/rag"
	"github.com/lphhien112-gif/NOTEBOOKLM/internal/search"
	"github.com/lphhien112-gif/NOTEBOOKLM/internal/session"
	"github.com/lphhien112-gif/NOTEBOOKLM/internal/store"
)

const bioText = "Photosynthesis converts sunlight into chemical energy.\n\nChlorophyll absorbs light in plant leaves."

type stubGenerator struct {
	mu       sync.Mutex
	reply    string
	requests []llm.Request
}

func (g *stubGenerator) Generate(_ context.Context, req llm.Request) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.requests = append(g.requests, req)
	return g.reply, nil
}

func (g *stubGenerator) Model() string { return "stub" }

type testServer struct {
	server  *Server
	manager *lifecycle.Manager
	queue   *async.IngestQueue
	gen     *stubGenerator
}

func newTestServer(t *testing.T, configure func(*Config)) *testServer {
	t.Helper()
	ctx := context.Background()
	dir := t.TempDir()

	fragments, err := store.OpenFragmentStore(ctx, store.FragmentStoreConfig{}, embed.NewStaticEmbedder(128))
	require.NoError(t, err)
	t.Cleanup(func() { _ = fragments.Close() })

	lexical := store.OpenLexicalIndex(filepath.Join(dir, "keyword_index.json"), store.DefaultBM25Params())
	state := session.Open(filepath.Join(dir, "state.json"))
	uploads, err := lifecycle.NewUploadStore(filepath.Join(dir, "uploaded_docs"))
	require.NoError(t, err)

	manager := lifecycle.NewManager(lifecycle.ManagerConfig{
		Fragments: fragments,
		Lexical:   lexical,
		State:     state,
		Uploads:   uploads,
	})

	queue := async.NewIngestQueue(async.QueueConfig{Workers: 1}, func(ctx context.Context, job async.Job) (int, error) {
		res, err := manager.IngestFile(ctx, job.Path, job.DocumentID)
		return res.Fragments, err
	})
	queue.Start(ctx)
	t.Cleanup(queue.Stop)

	gen := &stubGenerator{reply: "generated"}
	pipeline := rag.NewPipeline(rag.Config{
		Retriever: search.NewRetriever(fragments, lexical, search.DefaultOptions()),
		Documents: fragments,
		Active:    state,
		Generator: gen,
	})

	cfg := Config{Manager: manager, Queue: queue, Pipeline: pipeline}
	if configure != nil {
		configure(&cfg)
	}
	return &testServer{server: New(cfg), manager: manager, queue: queue, gen: gen}
}

func (ts *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	ts.server.Handler().ServeHTTP(rec, req)
	return rec
}

func (ts *testServer) upload(t *testing.T, filename string, content []byte) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = fw.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, Prefix+"/documents", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	ts.server.Handler().ServeHTTP(rec, req)
	return rec
}

// ingest uploads a file and waits for the queue to finish it.
func (ts *testServer) ingest(t *testing.T, filename, content string) string {
	t.Helper()
	rec := ts.upload(t, filename, []byte(content))
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	var resp uploadResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, ts.queue.Wait(ctx))
	return resp.DocumentID
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestRootAndHealth(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(t, http.MethodGet, "/", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, msgWelcome, decode[map[string]string](t, rec)["message"])

	rec = ts.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	health := decode[map[string]any](t, rec)
	assert.Equal(t, "ok", health["status"])
	assert.EqualValues(t, 0, health["pending_ingests"])
}

func TestUnknownRoute_NotFound(t *testing.T) {
	ts := newTestServer(t, nil)
	rec := ts.do(t, http.MethodGet, "/api/v1/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestChat_EmptyQuery(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(t, http.MethodPost, Prefix+"/chat", chatRequest{Query: "   "})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	body := decode[errorResponse](t, rec)
	assert.Equal(t, msgEmptyQuery, body.Detail)
	assert.Equal(t, apperrors.ErrCodeQueryEmpty, body.Code)
	assert.Empty(t, ts.gen.requests)
}

func TestChat_InvalidJSON(t *testing.T) {
	ts := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodPost, Prefix+"/chat", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	ts.server.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestChat_NoDocumentsAnswersWithoutGenerator(t *testing.T) {
	// Given: an empty corpus
	ts := newTestServer(t, nil)

	// When: asking a question
	rec := ts.do(t, http.MethodPost, Prefix+"/chat", chatRequest{Query: "What is photosynthesis?"})

	// Then: the fixed no-context answer comes back with no sources
	require.Equal(t, http.StatusOK, rec.Code)
	ans := decode[rag.Answer](t, rec)
	assert.Equal(t, rag.NoContextAnswer, ans.Answer)
	assert.Empty(t, ans.Sources)
	assert.Empty(t, ts.gen.requests)
}

func TestUploadThenChat(t *testing.T) {
	// Given: an uploaded and ingested text file
	ts := newTestServer(t, nil)
	docID := ts.ingest(t, "bio.txt", bioText)

	// Then: it is listed as ready and has become the active document
	rec := ts.do(t, http.MethodGet, Prefix+"/documents/"+docID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	view := decode[documentView](t, rec)
	assert.Equal(t, string(async.StatusReady), view.Status)
	assert.Equal(t, "bio.txt", view.Filename)
	assert.Equal(t, 1, view.Fragments)
	assert.True(t, view.Active)

	active, ok := ts.manager.ActiveDocument()
	require.True(t, ok)
	assert.Equal(t, docID, active)

	// When: asking without a document id
	rec = ts.do(t, http.MethodPost, Prefix+"/chat", chatRequest{Query: "chlorophyll light"})

	// Then: the answer is generated from the active document's fragment
	require.Equal(t, http.StatusOK, rec.Code)
	ans := decode[rag.Answer](t, rec)
	assert.Equal(t, "generated", ans.Answer)
	require.Len(t, ans.Sources, 1)
	assert.Equal(t, docID+"_0", ans.Sources[0].FragmentID)
	assert.Equal(t, docID, ans.DocumentID)
}

func TestUpload_ResponseShape(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.upload(t, "Report.docx.docx", []byte("not really a docx"))

	require.Equal(t, http.StatusAccepted, rec.Code)
	resp := decode[uploadResponse](t, rec)
	assert.Equal(t, msgUploadQueued, resp.Message)
	assert.Equal(t, "Report.docx", resp.Filename)
	assert.NotEmpty(t, resp.DocumentID)
}

func TestUpload_FailedIngestReportsError(t *testing.T) {
	// Given: a .docx upload that is not a zip archive
	ts := newTestServer(t, nil)
	docID := ts.ingest(t, "broken.docx", "plain text")

	// Then: the document reports the ingestion error and is not active
	rec := ts.do(t, http.MethodGet, Prefix+"/documents/"+docID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	view := decode[documentView](t, rec)
	assert.Equal(t, string(async.StatusError), view.Status)
	assert.NotEmpty(t, view.Error)
	assert.False(t, view.Active)
}

func TestUpload_UnsupportedType(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.upload(t, "tool.exe", []byte("MZ"))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, apperrors.ErrCodeUnsupportedFile, decode[errorResponse](t, rec).Code)
}

func TestUpload_MissingFileField(t *testing.T) {
	ts := newTestServer(t, nil)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("other", "value"))
	require.NoError(t, mw.Close())
	req := httptest.NewRequest(http.MethodPost, Prefix+"/documents", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	ts.server.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUpload_TooLarge(t *testing.T) {
	ts := newTestServer(t, func(c *Config) { c.MaxUploadMB = 1 })

	rec := ts.upload(t, "big.txt", bytes.Repeat([]byte("a"), 2<<20))

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Equal(t, apperrors.ErrCodeFileTooLarge, decode[errorResponse](t, rec).Code)
}

func TestUpload_RateLimited(t *testing.T) {
	// Given: one upload allowed, refilling very slowly
	ts := newTestServer(t, func(c *Config) {
		c.UploadRate = 0.001
		c.UploadBurst = 1
	})

	// When: uploading twice
	first := ts.upload(t, "a.txt", []byte("alpha"))
	second := ts.upload(t, "b.txt", []byte("beta"))

	// Then: the second is rejected with a retry hint
	assert.Equal(t, http.StatusAccepted, first.Code)
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
	assert.NotEmpty(t, second.Header().Get("Retry-After"))
}

func TestListDocuments(t *testing.T) {
	ts := newTestServer(t, nil)
	first := ts.ingest(t, "bio.txt", bioText)
	second := ts.ingest(t, "fin.txt", "Bond prices fall when interest rates rise.")

	rec := ts.do(t, http.MethodGet, Prefix+"/documents", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	views := decode[[]documentView](t, rec)
	require.Len(t, views, 2)
	ids := []string{views[0].DocumentID, views[1].DocumentID}
	assert.ElementsMatch(t, []string{first, second}, ids)
	for _, v := range views {
		assert.Equal(t, string(async.StatusReady), v.Status)
		assert.Equal(t, v.DocumentID == second, v.Active)
	}
}

func TestDeleteDocument(t *testing.T) {
	// Given: an ingested document
	ts := newTestServer(t, nil)
	docID := ts.ingest(t, "bio.txt", bioText)

	// When: deleting it
	rec := ts.do(t, http.MethodDelete, Prefix+"/documents/"+docID, nil)

	// Then: it is gone from the listing and from the queue
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[deleteResponse](t, rec)
	assert.Equal(t, msgDeleted, resp.Message)
	assert.Equal(t, docID, resp.DocumentID)

	rec = ts.do(t, http.MethodGet, Prefix+"/documents/"+docID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, apperrors.ErrCodeDocumentNotFound, decode[errorResponse](t, rec).Code)

	_, tracked := ts.queue.Status(docID)
	assert.False(t, tracked)
}

func TestDeleteDocument_UnknownSucceeds(t *testing.T) {
	ts := newTestServer(t, nil)
	rec := ts.do(t, http.MethodDelete, Prefix+"/documents/missing", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestClearAll_Idempotent(t *testing.T) {
	// Given: one ingested document
	ts := newTestServer(t, nil)
	ts.ingest(t, "bio.txt", bioText)

	// When: clearing twice
	first := ts.do(t, http.MethodDelete, Prefix+"/clear-all", nil)
	second := ts.do(t, http.MethodDelete, Prefix+"/clear-all", nil)

	// Then: only the first call removes anything
	require.Equal(t, http.StatusOK, first.Code)
	got := decode[clearResponse](t, first)
	assert.Equal(t, msgCleared, got.Message)
	assert.Equal(t, 1, got.DeletedCollections)
	assert.Equal(t, 1, got.DeletedFiles)

	require.Equal(t, http.StatusOK, second.Code)
	got = decode[clearResponse](t, second)
	assert.Equal(t, 0, got.DeletedCollections)
	assert.Equal(t, 0, got.DeletedFiles)

	_, active := ts.manager.ActiveDocument()
	assert.False(t, active)
	assert.Empty(t, ts.queue.Snapshot())
}

func TestTasks_NoActiveDocument(t *testing.T) {
	ts := newTestServer(t, nil)

	for _, path := range []string{"/tasks/summarize", "/tasks/generate-questions", "/tasks/extract-keywords"} {
		rec := ts.do(t, http.MethodPost, Prefix+path, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code, path)
		assert.Equal(t, apperrors.ErrCodeNoActiveDocument, decode[errorResponse](t, rec).Code, path)
	}
}

func TestTasks_UnknownDocument(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(t, http.MethodPost, Prefix+"/tasks/summarize", taskRequest{DocumentID: "ghost"})

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTasks_OnActiveDocument(t *testing.T) {
	// Given: an ingested document
	ts := newTestServer(t, nil)
	ts.ingest(t, "bio.txt", bioText)

	// When: running every task with an empty body
	for _, path := range []string{"/tasks/summarize", "/tasks/generate-questions", "/tasks/extract-keywords"} {
		rec := ts.do(t, http.MethodPost, Prefix+path, nil)

		// Then: each returns the generated text
		require.Equal(t, http.StatusOK, rec.Code, path)
		assert.Equal(t, "generated", decode[taskResponse](t, rec).Result, path)
	}

	require.Len(t, ts.gen.requests, 3)
	assert.Contains(t, ts.gen.requests[0].Prompt, "Chlorophyll absorbs light")
	assert.Contains(t, ts.gen.requests[1].Prompt, fmt.Sprint(rag.DefaultQuestionCount))
}

func TestGenerateQuestions_Bounds(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.ingest(t, "bio.txt", bioText)

	for _, n := range []int{0, -1, 21} {
		rec := ts.do(t, http.MethodPost, Prefix+"/tasks/generate-questions", taskRequest{NumQuestions: &n})
		assert.Equal(t, http.StatusBadRequest, rec.Code, "n=%d", n)
	}

	n := 3
	rec := ts.do(t, http.MethodPost, Prefix+"/tasks/generate-questions", taskRequest{NumQuestions: &n})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCORS_Preflight(t *testing.T) {
	ts := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodOptions, Prefix+"/chat", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", "POST")
	req.Header.Set("Access-Control-Request-Headers", "content-type")
	rec := httptest.NewRecorder()
	ts.server.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), "DELETE")
	assert.Equal(t, "content-type", rec.Header().Get("Access-Control-Allow-Headers"))
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"validation", apperrors.ValidationError("bad", nil), http.StatusBadRequest},
		{"unsupported", apperrors.New(apperrors.ErrCodeUnsupportedFile, "x", nil), http.StatusBadRequest},
		{"document not found", apperrors.New(apperrors.ErrCodeDocumentNotFound, "x", nil), http.StatusNotFound},
		{"file not found", apperrors.New(apperrors.ErrCodeFileNotFound, "x", nil), http.StatusNotFound},
		{"generation down", apperrors.New(apperrors.ErrCodeGenerationUnavailable, "x", nil), http.StatusServiceUnavailable},
		{"persist", apperrors.New(apperrors.ErrCodePersistFailed, "x", nil), http.StatusInternalServerError},
		{"plain", errors.New("boom"), http.StatusInternalServerError},
		{"wrapped", fmt.Errorf("outer: %w", apperrors.ValidationError("bad", nil)), http.StatusBadRequest},
		{"body too large", &http.MaxBytesError{Limit: 1}, http.StatusRequestEntityTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, statusFor(tt.err))
		})
	}
}

func TestServe_ShutsDownOnCancel(t *testing.T) {
	// Given: a server on an ephemeral port
	ts := newTestServer(t, nil)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- ts.server.Serve(ctx, ln) }()

	// When: a request succeeds and the context is cancelled
	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + ln.Addr().String() + "/health")
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)
	cancel()

	// Then: Serve returns cleanly
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
