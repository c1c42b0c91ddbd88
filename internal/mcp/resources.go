package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const (
	uriScheme        = "notebooklm://"
	documentsURI     = uriScheme + "documents"
	documentURIRoot  = documentsURI + "/"
	documentTemplate = documentURIRoot + "{documentId}"
)

// registerResources registers the document list and the per-document
// full text.
func (s *Server) registerResources() {
	s.mcp.AddResource(&mcp.Resource{
		URI:         documentsURI,
		Name:        "documents",
		Description: "Stored documents with fragment counts and the active document",
		MIMEType:    "application/json",
	}, s.handleDocumentsResource)

	s.mcp.AddResourceTemplate(&mcp.ResourceTemplate{
		URITemplate: documentTemplate,
		Name:        "document-text",
		Description: "Full indexed text of one document, fragments joined in order",
		MIMEType:    "text/plain",
	}, s.handleDocumentTextResource)
}

func (s *Server) handleDocumentsResource(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	out, err := s.listDocuments(ctx)
	if err != nil {
		return nil, err
	}
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal documents: %w", err)
	}
	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:      req.Params.URI,
			MIMEType: "application/json",
			Text:     string(data),
		}},
	}, nil
}

func (s *Server) handleDocumentTextResource(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	documentID := documentIDFromURI(req.Params.URI)
	if documentID == "" {
		return nil, mcp.ResourceNotFoundError(req.Params.URI)
	}

	text, _, err := s.pipeline.FullText(ctx, documentID)
	if err != nil {
		if code := MapError(err).Code; code == ErrCodeDocumentNotFound {
			return nil, mcp.ResourceNotFoundError(req.Params.URI)
		}
		return nil, MapError(err)
	}

	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:      req.Params.URI,
			MIMEType: "text/plain",
			Text:     text,
		}},
	}, nil
}

// documentIDFromURI extracts the id from notebooklm://documents/{id}.
func documentIDFromURI(uri string) string {
	id, ok := strings.CutPrefix(uri, documentURIRoot)
	if !ok || strings.Contains(id, "/") {
		return ""
	}
	return id
}
