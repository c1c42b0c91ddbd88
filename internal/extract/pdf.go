package extract

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/ledongthuc/pdf"

	apperrors "github.com/lphhien112-gif/NOTEBOOKLM/internal/errors"
)

// loadPDF returns one Page per PDF page that carries text. The parser
// panics on some malformed input; that is reported as a corrupt file.
func loadPDF(path, source string) (pages []Page, err error) {
	defer func() {
		if r := recover(); r != nil {
			pages = nil
			err = apperrors.New(apperrors.ErrCodeFileCorrupt, "failed to parse pdf "+source, fmt.Errorf("%v", r))
		}
	}()

	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, apperrors.New(apperrors.ErrCodeFileCorrupt, "failed to open pdf "+source, err)
	}
	defer func() { _ = f.Close() }()

	pages = make([]Page, 0, r.NumPage())
	for i := 1; i <= r.NumPage(); i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		text, err := p.GetPlainText(nil)
		if err != nil {
			slog.Warn("pdf_page_unreadable",
				slog.String("source", source),
				slog.Int("page", i-1),
				slog.String("error", err.Error()))
			continue
		}
		if strings.TrimSpace(text) == "" {
			continue
		}
		idx := i - 1
		pages = append(pages, Page{Text: text, Source: source, Page: &idx})
	}
	return pages, nil
}
