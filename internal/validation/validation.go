// Package validation measures retrieval quality against a query set.
//
// A query set is a YAML file with tier1, tier2 and negative sections. Each
// query names what should (or, for negative queries, should not) appear
// among the top results. An expectation matches a result by fragment id,
// by document id, or by source file name prefix.
package validation

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/lphhien112-gif/NOTEBOOKLM/internal/search"
)

// DefaultLimit is the number of results inspected per query.
const DefaultLimit = 10

// Tier identifies a section of the query set.
type Tier int

const (
	TierNegative Tier = 0
	Tier1        Tier = 1
	Tier2        Tier = 2
)

// QuerySpec is one query with its expectations.
type QuerySpec struct {
	ID       string   `yaml:"id" json:"id"`
	Name     string   `yaml:"name" json:"name,omitempty"`
	Query    string   `yaml:"query" json:"query"`
	Document string   `yaml:"document" json:"document,omitempty"` // optional document filter
	Expected []string `yaml:"expected" json:"expected"`
	Notes    string   `yaml:"notes" json:"notes,omitempty"`
	Tier     Tier     `yaml:"-" json:"tier"`
}

// QueryConfig is a parsed query set.
type QueryConfig struct {
	Limit    int         `yaml:"limit"`
	Tier1    []QuerySpec `yaml:"tier1"`
	Tier2    []QuerySpec `yaml:"tier2"`
	Negative []QuerySpec `yaml:"negative"`
}

// ParseQueries parses a YAML query set and assigns tiers.
func ParseQueries(data []byte) (*QueryConfig, error) {
	var cfg QueryConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse queries YAML: %w", err)
	}

	sections := []struct {
		specs []QuerySpec
		tier  Tier
	}{
		{cfg.Tier1, Tier1},
		{cfg.Tier2, Tier2},
		{cfg.Negative, TierNegative},
	}
	for _, sec := range sections {
		for i := range sec.specs {
			sec.specs[i].Tier = sec.tier
			if strings.TrimSpace(sec.specs[i].Query) == "" {
				return nil, fmt.Errorf("query %q has no query text", sec.specs[i].ID)
			}
			if sec.specs[i].ID == "" {
				sec.specs[i].ID = fmt.Sprintf("T%d-Q%d", sec.tier, i+1)
			}
		}
	}
	if cfg.Limit <= 0 {
		cfg.Limit = DefaultLimit
	}
	return &cfg, nil
}

// LoadQueries reads and parses the query set at path.
func LoadQueries(path string) (*QueryConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read queries file %s: %w", path, err)
	}
	return ParseQueries(data)
}

// TestResult is the outcome of one query.
type TestResult struct {
	Spec       QuerySpec     `json:"spec"`
	Passed     bool          `json:"passed"`
	Duration   time.Duration `json:"duration_ns"`
	TopResults []string      `json:"top_results"`
	MatchedAt  int           `json:"matched_at"` // 0-based, -1 if no expectation matched
	Error      string        `json:"error,omitempty"`
}

// TierSummary aggregates one tier.
type TierSummary struct {
	Passed int `json:"passed"`
	Total  int `json:"total"`

	// MRR is the mean reciprocal rank of the first match; misses count as 0.
	MRR float64 `json:"mrr"`
}

// PassRate returns Passed/Total as a percentage; an empty tier is 100.
func (s TierSummary) PassRate() float64 {
	if s.Total == 0 {
		return 100
	}
	return float64(s.Passed) * 100 / float64(s.Total)
}

// ValidationResult is a full run.
type ValidationResult struct {
	Timestamp time.Time    `json:"timestamp"`
	Limit     int          `json:"limit"`
	Results   []TestResult `json:"results"`
	Tier1     TierSummary  `json:"tier1"`
	Tier2     TierSummary  `json:"tier2"`
	Negative  TierSummary  `json:"negative"`
}

// Failed returns the results that did not pass.
func (r *ValidationResult) Failed() []TestResult {
	var failed []TestResult
	for _, tr := range r.Results {
		if !tr.Passed {
			failed = append(failed, tr)
		}
	}
	return failed
}

// Searcher is the retrieval under test.
type Searcher interface {
	Retrieve(ctx context.Context, query string, k int, documentID string) ([]search.Result, error)
}

// Validator runs query sets against a Searcher.
type Validator struct {
	searcher Searcher
}

// NewValidator creates a Validator.
func NewValidator(searcher Searcher) *Validator {
	return &Validator{searcher: searcher}
}

// RunQuery executes one query with the given result limit.
func (v *Validator) RunQuery(ctx context.Context, spec QuerySpec, limit int) TestResult {
	if limit <= 0 {
		limit = DefaultLimit
	}
	result := TestResult{Spec: spec, MatchedAt: -1}

	start := time.Now()
	results, err := v.searcher.Retrieve(ctx, spec.Query, limit, spec.Document)
	result.Duration = time.Since(start)
	if err != nil {
		result.Error = err.Error()
		return result
	}

	for _, r := range results {
		result.TopResults = append(result.TopResults, label(r))
	}
	result.MatchedAt = firstMatch(results, spec.Expected)

	if spec.Tier == TierNegative {
		// negative queries pass when nothing they name was retrieved
		result.Passed = result.MatchedAt < 0
	} else {
		result.Passed = result.MatchedAt >= 0
	}
	return result
}

// RunAll executes every query of cfg in tier order.
func (v *Validator) RunAll(ctx context.Context, cfg *QueryConfig) *ValidationResult {
	run := &ValidationResult{Timestamp: time.Now(), Limit: cfg.Limit}

	sections := []struct {
		specs   []QuerySpec
		summary *TierSummary
	}{
		{cfg.Tier1, &run.Tier1},
		{cfg.Tier2, &run.Tier2},
		{cfg.Negative, &run.Negative},
	}
	for _, sec := range sections {
		var rr float64
		for _, spec := range sec.specs {
			if ctx.Err() != nil {
				return run
			}
			tr := v.RunQuery(ctx, spec, cfg.Limit)
			run.Results = append(run.Results, tr)
			sec.summary.Total++
			if tr.Passed {
				sec.summary.Passed++
			}
			if tr.MatchedAt >= 0 {
				rr += 1 / float64(tr.MatchedAt+1)
			}
		}
		if sec.summary.Total > 0 {
			sec.summary.MRR = rr / float64(sec.summary.Total)
		}
	}
	return run
}

// label renders a result as "source#fragment_id".
func label(r search.Result) string {
	source := filepath.Base(r.Fragment.Metadata.Source)
	if r.Fragment.Metadata.Source == "" {
		source = r.Fragment.DocumentID()
	}
	return source + "#" + r.Fragment.ID
}

// firstMatch returns the rank of the first result matched by any
// expectation, or -1.
func firstMatch(results []search.Result, expected []string) int {
	for i, r := range results {
		for _, exp := range expected {
			if matches(r, exp) {
				return i
			}
		}
	}
	return -1
}

func matches(r search.Result, exp string) bool {
	exp = strings.TrimSpace(exp)
	if exp == "" {
		return false
	}
	if r.Fragment.ID == exp || r.Fragment.DocumentID() == exp {
		return true
	}
	source := r.Fragment.Metadata.Source
	return source != "" && strings.HasPrefix(strings.ToLower(filepath.Base(source)), strings.ToLower(exp))
}
