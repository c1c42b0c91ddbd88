package lifecycle

import (
	"context"
	"log/slog"
	"sort"
	"time"
)

// DocumentIssue lists the fragments of one document that exist in only
// one of the two stores.
type DocumentIssue struct {
	DocumentID string `json:"document_id"`
	// MissingLexical ids are in the Fragment Store but not the Lexical Index.
	MissingLexical []string `json:"missing_lexical,omitempty"`
	// MissingSemantic ids are in the Lexical Index but not the Fragment Store.
	MissingSemantic []string `json:"missing_semantic,omitempty"`
}

// AuditReport is the outcome of a consistency check.
type AuditReport struct {
	Documents int             `json:"documents"`
	Fragments int             `json:"fragments"`
	Issues    []DocumentIssue `json:"issues"`
	Duration  time.Duration   `json:"duration"`
}

// Consistent reports whether both stores hold the same fragments.
func (r *AuditReport) Consistent() bool {
	return len(r.Issues) == 0
}

// Audit compares the fragment ids of every document across both stores.
func (m *Manager) Audit(ctx context.Context) (*AuditReport, error) {
	start := time.Now()

	m.mu.RLock()
	defer m.mu.RUnlock()

	semantic, err := m.fragments.IDsByDocument(ctx)
	if err != nil {
		return nil, err
	}
	lexical := m.lexical.IDsByDocument()

	docs := make(map[string]struct{}, len(semantic)+len(lexical))
	for d := range semantic {
		docs[d] = struct{}{}
	}
	for d := range lexical {
		docs[d] = struct{}{}
	}

	report := &AuditReport{Documents: len(docs), Issues: []DocumentIssue{}}
	for doc := range docs {
		semSet := toSet(semantic[doc])
		lexSet := toSet(lexical[doc])
		report.Fragments += len(semSet)

		issue := DocumentIssue{DocumentID: doc}
		for id := range semSet {
			if _, ok := lexSet[id]; !ok {
				issue.MissingLexical = append(issue.MissingLexical, id)
			}
		}
		for id := range lexSet {
			if _, ok := semSet[id]; !ok {
				issue.MissingSemantic = append(issue.MissingSemantic, id)
			}
		}
		if len(issue.MissingLexical)+len(issue.MissingSemantic) == 0 {
			continue
		}
		sort.Strings(issue.MissingLexical)
		sort.Strings(issue.MissingSemantic)
		report.Issues = append(report.Issues, issue)
	}
	sort.Slice(report.Issues, func(i, j int) bool {
		return report.Issues[i].DocumentID < report.Issues[j].DocumentID
	})

	report.Duration = time.Since(start)
	if !report.Consistent() {
		slog.Warn("stores_inconsistent",
			slog.Int("documents", len(report.Issues)),
			slog.Int("checked", report.Documents))
	}
	return report, nil
}

// Repair removes every document named in report from both stores so it
// can be ingested again, and returns how many documents were removed.
// Missing fragments are never recreated.
func (m *Manager) Repair(ctx context.Context, report *AuditReport) (int, error) {
	if report == nil || report.Consistent() {
		return 0, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	repaired := 0
	for _, issue := range report.Issues {
		if _, err := m.fragments.RemoveByDocument(ctx, issue.DocumentID); err != nil {
			return repaired, err
		}
		if _, err := m.lexical.RemoveByDocument(issue.DocumentID); err != nil {
			return repaired, err
		}
		repaired++
		slog.Info("inconsistent_document_removed", slog.String("document_id", issue.DocumentID))
	}
	return repaired, nil
}

func toSet(ids []string) map[string]struct{} {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}
