// Package validation runs golden queries against an index and reports
// which of them found the files they should.
//
// Queries live in a YAML (or TOML) file with three sections. Tier 1
// queries must pass. Tier 2 queries are tracked but do not fail a run.
// Negative queries only need to return without crashing; an error such as
// an invalid query counts as a pass.
package validation

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/Aman-CERP/fusesearch/internal/search"
)

// DefaultLimit is the result depth a query is checked against.
const DefaultLimit = 10

// QuerySpec is one golden query.
type QuerySpec struct {
	ID       string   `yaml:"id" toml:"id" json:"id"`
	Name     string   `yaml:"name" toml:"name" json:"name"`
	Query    string   `yaml:"query" toml:"query" json:"query"`
	Backends []string `yaml:"backends,omitempty" toml:"backends,omitempty" json:"backends,omitempty"`
	Limit    int      `yaml:"limit,omitempty" toml:"limit,omitempty" json:"limit,omitempty"`

	// Expected holds paths or path prefixes; any of them in the results
	// passes the query.
	Expected []string `yaml:"expected" toml:"expected" json:"expected,omitempty"`
	Notes    string   `yaml:"notes,omitempty" toml:"notes,omitempty" json:"notes,omitempty"`

	// Tier is 1 or 2, or 0 for negative queries. It is set by section.
	Tier int `yaml:"-" toml:"-" json:"tier"`
}

// QueryConfig is a query file.
type QueryConfig struct {
	Tier1    []QuerySpec `yaml:"tier1" toml:"tier1"`
	Tier2    []QuerySpec `yaml:"tier2" toml:"tier2"`
	Negative []QuerySpec `yaml:"negative" toml:"negative"`
}

// LoadQueries reads a query file. Files ending in .toml are TOML,
// anything else YAML.
func LoadQueries(path string) (*QueryConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read queries file %s: %w", path, err)
	}

	var cfg QueryConfig
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		err = toml.Unmarshal(data, &cfg)
	} else {
		err = yaml.Unmarshal(data, &cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse queries file %s: %w", path, err)
	}

	for i := range cfg.Tier1 {
		cfg.Tier1[i].Tier = 1
	}
	for i := range cfg.Tier2 {
		cfg.Tier2[i].Tier = 2
	}
	for i := range cfg.Negative {
		cfg.Negative[i].Tier = 0
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &cfg, nil
}

// Validate checks that every positive query names a query text and an
// expectation, that IDs are unique and that backends are known.
func (c *QueryConfig) Validate() error {
	seen := make(map[string]bool)
	for _, spec := range c.All() {
		if spec.ID == "" {
			return fmt.Errorf("query %q has no id", spec.Query)
		}
		if seen[spec.ID] {
			return fmt.Errorf("duplicate query id %s", spec.ID)
		}
		seen[spec.ID] = true
		if spec.Tier > 0 && strings.TrimSpace(spec.Query) == "" {
			return fmt.Errorf("%s: query is required", spec.ID)
		}
		if spec.Tier > 0 && len(spec.Expected) == 0 {
			return fmt.Errorf("%s: expected is required", spec.ID)
		}
		if _, err := spec.matchTypes(); err != nil {
			return fmt.Errorf("%s: %w", spec.ID, err)
		}
	}
	return nil
}

// All returns every query, tier 1 first and negatives last.
func (c *QueryConfig) All() []QuerySpec {
	all := make([]QuerySpec, 0, len(c.Tier1)+len(c.Tier2)+len(c.Negative))
	all = append(all, c.Tier1...)
	all = append(all, c.Tier2...)
	return append(all, c.Negative...)
}

func (s QuerySpec) matchTypes() ([]search.MatchType, error) {
	var out []search.MatchType
	for _, name := range s.Backends {
		t, err := search.ParseMatchType(name)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

// Searcher answers queries. *searcher.Engine and the daemon client
// adapter both satisfy it.
type Searcher interface {
	Search(ctx context.Context, query string, opts search.SearchOptions) ([]search.FusedResult, error)
}

// TestResult is the outcome of one query.
type TestResult struct {
	Spec       QuerySpec     `json:"spec"`
	Passed     bool          `json:"passed"`
	Duration   time.Duration `json:"duration_ns"`
	TopResults []string      `json:"top_results"`
	MatchedAt  int           `json:"matched_at"` // rank of the first expected path, 0 if none
	Error      string        `json:"error,omitempty"`
}

// Result is a full run.
type Result struct {
	Timestamp time.Time    `json:"timestamp"`
	Tier1     []TestResult `json:"tier1"`
	Tier2     []TestResult `json:"tier2"`
	Negative  []TestResult `json:"negative"`

	Tier1Pass int `json:"tier1_pass"`
	Tier2Pass int `json:"tier2_pass"`
	NegPass   int `json:"negative_pass"`
}

// Passed reports whether every tier 1 and negative query passed.
func (r *Result) Passed() bool {
	return r.Tier1Pass == len(r.Tier1) && r.NegPass == len(r.Negative)
}

// Validator runs queries through a Searcher.
type Validator struct {
	searcher Searcher
	limit    int
	timeout  time.Duration
}

// Option configures a Validator.
type Option func(*Validator)

// WithLimit sets the default result depth.
func WithLimit(n int) Option {
	return func(v *Validator) {
		if n > 0 {
			v.limit = n
		}
	}
}

// WithTimeout bounds each query.
func WithTimeout(d time.Duration) Option {
	return func(v *Validator) { v.timeout = d }
}

// NewValidator creates a validator.
func NewValidator(s Searcher, opts ...Option) *Validator {
	v := &Validator{searcher: s, limit: DefaultLimit}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// RunQuery executes one query.
func (v *Validator) RunQuery(ctx context.Context, spec QuerySpec) TestResult {
	result := TestResult{Spec: spec}

	limit := spec.Limit
	if limit <= 0 {
		limit = v.limit
	}
	backends, err := spec.matchTypes()
	if err != nil {
		result.Error = err.Error()
		result.Passed = spec.Tier == 0
		return result
	}
	if v.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, v.timeout)
		defer cancel()
	}

	start := time.Now()
	results, err := v.searcher.Search(ctx, spec.Query, search.SearchOptions{Limit: limit, Backends: backends})
	result.Duration = time.Since(start)
	if err != nil {
		result.Error = err.Error()
		result.Passed = spec.Tier == 0
		return result
	}

	for _, r := range results {
		result.TopResults = append(result.TopResults, r.Path)
	}
	if len(spec.Expected) == 0 {
		result.Passed = true
		return result
	}
	result.MatchedAt = matchRank(result.TopResults, spec.Expected)
	result.Passed = result.MatchedAt > 0
	return result
}

// Run executes every query of cfg in order. It stops early only when ctx
// is done.
func (v *Validator) Run(ctx context.Context, cfg *QueryConfig) *Result {
	res := &Result{Timestamp: time.Now()}
	for _, spec := range cfg.All() {
		if ctx.Err() != nil {
			break
		}
		tr := v.RunQuery(ctx, spec)
		switch spec.Tier {
		case 1:
			res.Tier1 = append(res.Tier1, tr)
			if tr.Passed {
				res.Tier1Pass++
			}
		case 2:
			res.Tier2 = append(res.Tier2, tr)
			if tr.Passed {
				res.Tier2Pass++
			}
		default:
			res.Negative = append(res.Negative, tr)
			if tr.Passed {
				res.NegPass++
			}
		}
	}
	return res
}

// matchRank returns the 1-based rank of the first result whose path is,
// or lies under, one of expected. 0 means no match.
func matchRank(paths, expected []string) int {
	for i, p := range paths {
		for _, exp := range expected {
			if p == exp || strings.HasPrefix(p, strings.TrimSuffix(exp, "/")+"/") {
				return i + 1
			}
		}
	}
	return 0
}
