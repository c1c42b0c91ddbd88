package mcp

// SearchInput defines the input schema for the search tool.
type SearchInput struct {
	Query      string `json:"query" jsonschema:"the search query to execute"`
	Limit      int    `json:"limit,omitempty" jsonschema:"maximum number of fragments, default 5, max 50"`
	DocumentID string `json:"document_id,omitempty" jsonschema:"restrict the search to one document; empty searches every document"`
}

// SearchOutput defines the output schema for the search tool.
type SearchOutput struct {
	Results []FragmentOutput `json:"results" jsonschema:"fused fragments, best first"`
	Count   int              `json:"count"`
}

// FragmentOutput is one retrieved fragment.
type FragmentOutput struct {
	FragmentID string  `json:"fragment_id" jsonschema:"fragment id, {document_id}_{seq}"`
	DocumentID string  `json:"document_id"`
	Source     string  `json:"source,omitempty" jsonschema:"original filename"`
	Page       *int    `json:"page,omitempty" jsonschema:"0-based page number for PDF documents"`
	Content    string  `json:"content"`
	Score      float64 `json:"score" jsonschema:"reciprocal rank fusion score"`

	MatchReason string `json:"match_reason,omitempty" jsonschema:"which ranked lists the fragment appeared in"`
}

// AskInput defines the input schema for the ask tool.
type AskInput struct {
	Query      string `json:"query" jsonschema:"the question to answer"`
	DocumentID string `json:"document_id,omitempty" jsonschema:"document to answer from; defaults to the active document"`
}

// AskOutput defines the output schema for the ask tool.
type AskOutput struct {
	Answer     string           `json:"answer"`
	DocumentID string           `json:"document_id,omitempty"`
	Sources    []FragmentOutput `json:"sources"`
}

// DocumentInput selects a document for whole-document tasks.
type DocumentInput struct {
	DocumentID string `json:"document_id,omitempty" jsonschema:"document to process; defaults to the active document"`
}

// QuestionsInput defines the input schema for the generate_questions tool.
type QuestionsInput struct {
	DocumentID   string `json:"document_id,omitempty" jsonschema:"document to process; defaults to the active document"`
	NumQuestions int    `json:"num_questions,omitempty" jsonschema:"number of review questions, 1 to 20, default 5"`
}

// TaskOutput is the result of a whole-document task.
type TaskOutput struct {
	Result string `json:"result"`
}

// ListDocumentsInput defines the input schema for the list_documents tool (no parameters).
type ListDocumentsInput struct{}

// ListDocumentsOutput defines the output schema for the list_documents tool.
type ListDocumentsOutput struct {
	Documents      []DocumentOutput `json:"documents"`
	ActiveDocument string           `json:"active_document,omitempty"`
}

// DocumentOutput describes one stored document.
type DocumentOutput struct {
	DocumentID string `json:"document_id"`
	Filename   string `json:"filename"`
	MIMEType   string `json:"mime_type"`
	Fragments  int    `json:"fragments"`
	Active     bool   `json:"active"`
	Status     string `json:"status,omitempty" jsonschema:"ingestion status: queued, processing, ready or error"`
}

// IndexStatusInput defines the input schema for the index_status tool (no parameters).
type IndexStatusInput struct{}

// IndexStatusOutput defines the output schema for the index_status tool.
type IndexStatusOutput struct {
	Stats          IndexStats      `json:"stats"`
	Embeddings     EmbeddingInfo   `json:"embeddings"`
	Generation     GenerationInfo  `json:"generation"`
	ActiveDocument string          `json:"active_document,omitempty"`
	Ingesting      []IngestingInfo `json:"ingesting,omitempty"`
}

// IndexStats summarises both stores.
type IndexStats struct {
	Documents  int    `json:"documents"`
	Fragments  int    `json:"fragments"`
	Consistent bool   `json:"consistent" jsonschema:"true when both stores hold the same fragment ids"`
	CheckedAt  string `json:"checked_at"`
}

// EmbeddingInfo contains information about the embedding backend.
type EmbeddingInfo struct {
	Provider   string `json:"provider"`
	Model      string `json:"model"`
	Dimensions int    `json:"dimensions"`
	Status     string `json:"status"` // "ready" or "unavailable"
}

// GenerationInfo contains information about the generation backend.
type GenerationInfo struct {
	Model   string `json:"model"`
	BaseURL string `json:"base_url"`
}

// IngestingInfo is one document still being ingested in the background.
type IngestingInfo struct {
	DocumentID     string  `json:"document_id"`
	Filename       string  `json:"filename"`
	Status         string  `json:"status"`
	ElapsedSeconds float64 `json:"elapsed_seconds"`
}
