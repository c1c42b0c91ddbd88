package chunk

// Chunk size defaults, measured in characters (runes).
const (
	DefaultChunkSize    = 2000
	DefaultChunkOverlap = 400
)

// DefaultSeparators are tried in order, coarsest first. The empty
// separator splits between individual characters.
var DefaultSeparators = []string{"\n\n", "\n", " ", ""}

// Chunk is one retrievable span of text with its origin.
type Chunk struct {
	Content string
	Source  string
	Page    *int
}
