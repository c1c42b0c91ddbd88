package extract

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"io"
	"strings"

	apperrors "github.com/lphhien112-gif/NOTEBOOKLM/internal/errors"
)

const documentPart = "word/document.xml"

// loadDOCX returns the paragraph text of a Word document as one Page.
func loadDOCX(path, source string) ([]Page, error) {
	reader, err := zip.OpenReader(path)
	if err != nil {
		return nil, apperrors.New(apperrors.ErrCodeFileCorrupt, "failed to open docx "+source, err)
	}
	defer func() { _ = reader.Close() }()

	for _, file := range reader.File {
		if file.Name != documentPart {
			continue
		}
		rc, err := file.Open()
		if err != nil {
			return nil, apperrors.New(apperrors.ErrCodeFileCorrupt, "failed to read "+documentPart, err)
		}
		content, err := io.ReadAll(rc)
		_ = rc.Close()
		if err != nil {
			return nil, apperrors.New(apperrors.ErrCodeFileCorrupt, "failed to read "+documentPart, err)
		}

		text, err := parseDocumentXML(content)
		if err != nil {
			return nil, apperrors.New(apperrors.ErrCodeFileCorrupt, "malformed "+documentPart+" in "+source, err)
		}
		if text == "" {
			return []Page{}, nil
		}
		return []Page{{Text: text, Source: source}}, nil
	}
	return nil, apperrors.New(apperrors.ErrCodeFileCorrupt, source+" has no "+documentPart, nil)
}

// parseDocumentXML walks the WordprocessingML body. Paragraphs are
// separated by a blank line, tabs and breaks are kept.
func parseDocumentXML(content []byte) (string, error) {
	dec := xml.NewDecoder(bytes.NewReader(content))

	var out strings.Builder
	inText := false
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", err
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "t":
				inText = true
			case "tab":
				out.WriteByte('\t')
			case "br", "cr":
				out.WriteByte('\n')
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				out.WriteString("\n\n")
			}
		case xml.CharData:
			if inText {
				out.Write(t)
			}
		}
	}
	return strings.TrimSpace(out.String()), nil
}
