package chunk

import (
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/lphhien112-gif/NOTEBOOKLM/internal/extract"
)

// SplitterOptions configures the recursive splitter.
type SplitterOptions struct {
	ChunkSize    int      // Maximum characters per chunk (default: DefaultChunkSize)
	ChunkOverlap int      // Characters carried into the next chunk
	Separators   []string // Split points, coarsest first (default: DefaultSeparators)
}

// Splitter breaks text at the coarsest separator that yields pieces under
// the chunk size, recursing into finer separators for pieces that are
// still too large, then greedily merges pieces back up to the chunk size
// with overlap. A separator stays attached to the start of the piece
// that follows it.
type Splitter struct {
	options SplitterOptions
}

// NewSplitter creates a splitter with the default size and overlap.
func NewSplitter() *Splitter {
	return NewSplitterWithOptions(SplitterOptions{
		ChunkSize:    DefaultChunkSize,
		ChunkOverlap: DefaultChunkOverlap,
	})
}

// NewSplitterWithOptions creates a splitter with custom options. An
// overlap that is negative or not smaller than the chunk size is clamped.
func NewSplitterWithOptions(opts SplitterOptions) *Splitter {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = DefaultChunkSize
	}
	if opts.ChunkOverlap < 0 {
		opts.ChunkOverlap = 0
	}
	if opts.ChunkOverlap >= opts.ChunkSize {
		opts.ChunkOverlap = opts.ChunkSize - 1
	}
	if len(opts.Separators) == 0 {
		opts.Separators = DefaultSeparators
	}
	return &Splitter{options: opts}
}

// Options returns the effective options.
func (s *Splitter) Options() SplitterOptions {
	return s.options
}

// SplitText splits one text into trimmed, non-empty chunks.
func (s *Splitter) SplitText(text string) []string {
	return s.split(text, s.options.Separators)
}

// SplitPages splits every page and tags each chunk with its page origin.
func (s *Splitter) SplitPages(pages []extract.Page) []Chunk {
	var chunks []Chunk
	for _, p := range pages {
		for _, text := range s.SplitText(p.Text) {
			chunks = append(chunks, Chunk{Content: text, Source: p.Source, Page: p.Page})
		}
	}
	return chunks
}

func (s *Splitter) split(text string, separators []string) []string {
	separator := separators[len(separators)-1]
	var finer []string
	for i, sep := range separators {
		if sep == "" {
			separator = sep
			break
		}
		if strings.Contains(text, sep) {
			separator = sep
			finer = separators[i+1:]
			break
		}
	}

	var out, good []string
	for _, piece := range splitKeepingSeparator(text, separator) {
		if runeLen(piece) < s.options.ChunkSize {
			good = append(good, piece)
			continue
		}
		if len(good) > 0 {
			out = append(out, s.merge(good)...)
			good = nil
		}
		if len(finer) == 0 {
			out = append(out, piece)
		} else {
			out = append(out, s.split(piece, finer)...)
		}
	}
	if len(good) > 0 {
		out = append(out, s.merge(good)...)
	}
	return out
}

// merge joins consecutive pieces into chunks no longer than the chunk
// size, starting each new chunk with up to ChunkOverlap characters of
// trailing pieces from the previous one.
func (s *Splitter) merge(pieces []string) []string {
	size, overlap := s.options.ChunkSize, s.options.ChunkOverlap

	var docs, current []string
	total := 0
	for _, piece := range pieces {
		n := runeLen(piece)
		if total+n > size {
			if total > size {
				slog.Debug("chunk_exceeds_size", slog.Int("length", total), slog.Int("chunk_size", size))
			}
			if len(current) > 0 {
				if doc := joinTrimmed(current); doc != "" {
					docs = append(docs, doc)
				}
				for total > overlap || (total+n > size && total > 0) {
					total -= runeLen(current[0])
					current = current[1:]
				}
			}
		}
		current = append(current, piece)
		total += n
	}
	if doc := joinTrimmed(current); doc != "" {
		docs = append(docs, doc)
	}
	return docs
}

// splitKeepingSeparator splits text on sep and prefixes every piece but
// the first with sep. An empty sep splits into characters. Empty pieces
// are dropped.
func splitKeepingSeparator(text, sep string) []string {
	if sep == "" {
		out := make([]string, 0, utf8.RuneCountInString(text))
		for _, r := range text {
			out = append(out, string(r))
		}
		return out
	}

	parts := strings.Split(text, sep)
	out := make([]string, 0, len(parts))
	for i, p := range parts {
		if i > 0 {
			p = sep + p
		}
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func joinTrimmed(pieces []string) string {
	return strings.TrimSpace(strings.Join(pieces, ""))
}

func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}
