package mcp

import (
	"fmt"
	"strings"

	"github.com/lphhien112-gif/NOTEBOOKLM/internal/rag"
	"github.com/lphhien112-gif/NOTEBOOKLM/internal/search"
)

// FormatSearchResults formats fused fragments as markdown.
func FormatSearchResults(query string, results []search.Result) string {
	if len(results) == 0 {
		return fmt.Sprintf("No results found for \"%s\"", query)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "## Search Results for \"%s\"\n\n", query)
	fmt.Fprintf(&sb, "Found %d result", len(results))
	if len(results) != 1 {
		sb.WriteString("s")
	}
	sb.WriteString("\n\n")

	for i, r := range results {
		fmt.Fprintf(&sb, "### %d. %s (score: %.4f)\n", i+1, location(r.Fragment.Metadata.Source, r.Fragment.Metadata.Page), r.Score)
		fmt.Fprintf(&sb, "*%s, %s*\n\n", r.Fragment.ID, matchReason(r))
		fmt.Fprintf(&sb, "```\n%s\n```\n\n", r.Fragment.Content)
	}
	return sb.String()
}

// FormatAnswer formats an answer followed by its numbered sources.
func FormatAnswer(ans *rag.Answer) string {
	var sb strings.Builder
	sb.WriteString(ans.Answer)
	if len(ans.Sources) == 0 {
		return sb.String()
	}

	sb.WriteString("\n\n---\n**Sources:**\n")
	for i, src := range ans.Sources {
		fmt.Fprintf(&sb, "%d. %s (`%s`)\n", i+1, location(src.Source, src.Page), src.FragmentID)
	}
	return sb.String()
}

// location renders a source filename with its 1-based page, if any.
func location(source string, page *int) string {
	if source == "" {
		source = "unknown source"
	}
	if page == nil {
		return source
	}
	return fmt.Sprintf("%s, page %d", source, *page+1)
}

// clampLimit ensures limit is within bounds.
func clampLimit(limit, defaultVal, min, max int) int {
	if limit <= 0 {
		return defaultVal
	}
	if limit < min {
		return min
	}
	if limit > max {
		return max
	}
	return limit
}

// ToFragmentOutput converts a fused result to the tool output format.
func ToFragmentOutput(r search.Result) FragmentOutput {
	return FragmentOutput{
		FragmentID:  r.Fragment.ID,
		DocumentID:  r.Fragment.Metadata.DocumentID,
		Source:      r.Fragment.Metadata.Source,
		Page:        r.Fragment.Metadata.Page,
		Content:     r.Fragment.Content,
		Score:       r.Score,
		MatchReason: matchReason(r),
	}
}

func sourceOutputs(sources []rag.Source) []FragmentOutput {
	out := make([]FragmentOutput, len(sources))
	for i, s := range sources {
		out[i] = FragmentOutput{
			FragmentID: s.FragmentID,
			DocumentID: s.DocumentID,
			Source:     s.Source,
			Page:       s.Page,
			Content:    s.Content,
			Score:      s.Score,
		}
	}
	return out
}

// matchReason explains which ranked lists contributed to a result.
func matchReason(r search.Result) string {
	var parts []string
	if r.SemanticRank >= 0 {
		parts = append(parts, fmt.Sprintf("semantic #%d", r.SemanticRank+1))
	}
	if r.LexicalRank >= 0 {
		parts = append(parts, fmt.Sprintf("keyword #%d", r.LexicalRank+1))
	}
	switch len(parts) {
	case 0:
		return "matched content"
	case 2:
		return strings.Join(parts, " + ") + " (found in both)"
	default:
		return parts[0]
	}
}
