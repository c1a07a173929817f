package preflight

import (
	"context"
	"io"
	"os"
	"strings"

	"github.com/Aman-CERP/fusesearch/internal/output"
)

// CheckStatus is the outcome of one check.
type CheckStatus int

const (
	StatusPass CheckStatus = iota
	StatusWarn
	StatusFail
)

func (s CheckStatus) String() string {
	switch s {
	case StatusPass:
		return "PASS"
	case StatusWarn:
		return "WARN"
	case StatusFail:
		return "FAIL"
	}
	return "UNKNOWN"
}

// MarshalText writes the status in lower case for JSON.
func (s CheckStatus) MarshalText() ([]byte, error) {
	return []byte(strings.ToLower(s.String())), nil
}

// CheckResult is one check's outcome. Details carries the remedy or the
// underlying error.
type CheckResult struct {
	Name     string      `json:"name"`
	Status   CheckStatus `json:"status"`
	Message  string      `json:"message"`
	Details  string      `json:"details,omitempty"`
	Required bool        `json:"required"`
}

// IsCritical reports a failed required check.
func (r CheckResult) IsCritical() bool {
	return r.Required && r.Status == StatusFail
}

// Summary values returned by SummaryStatus.
const (
	SummaryReady    = "ready"
	SummaryWarnings = "ready_with_warnings"
	SummaryFailed   = "failed"
)

// Checker runs the checks and prints their results.
type Checker struct {
	w       io.Writer
	noColor bool
	verbose bool
}

// Option configures a Checker.
type Option func(*Checker)

// WithOutput sets where PrintResults writes. The default is stdout.
func WithOutput(w io.Writer) Option {
	return func(c *Checker) { c.w = w }
}

// WithVerbose also prints the details of passing checks.
func WithVerbose(verbose bool) Option {
	return func(c *Checker) { c.verbose = verbose }
}

// WithNoColor prints without styling.
func WithNoColor(noColor bool) Option {
	return func(c *Checker) { c.noColor = noColor }
}

// New creates a Checker.
func New(opts ...Option) *Checker {
	c := &Checker{w: os.Stdout}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RunAll runs every check against the project at root, in the order they
// are printed. The index check needs a valid config and is skipped without
// one.
func (c *Checker) RunAll(_ context.Context, root string) []CheckResult {
	results := []CheckResult{
		c.CheckDiskSpace(root),
		c.CheckWritePermissions(root),
		c.CheckFileDescriptors(root),
	}
	cfgResult, cfg := c.CheckConfig(root)
	results = append(results, cfgResult)
	if cfg != nil {
		results = append(results, c.CheckIndex(root, cfg.Embeddings.Dimensions))
	}
	return append(results, c.CheckLock(root))
}

// HasCriticalFailures reports whether any required check failed.
func (c *Checker) HasCriticalFailures(results []CheckResult) bool {
	return c.SummaryStatus(results) == SummaryFailed
}

func (c *Checker) SummaryStatus(results []CheckResult) string {
	summary := SummaryReady
	for _, r := range results {
		if r.IsCritical() {
			return SummaryFailed
		}
		if r.Status != StatusPass {
			summary = SummaryWarnings
		}
	}
	return summary
}

// PrintResults writes one status line per check followed by a verdict.
func (c *Checker) PrintResults(results []CheckResult) {
	out := output.New(c.w, c.noColor)
	out.Info("fusesearch system check")
	out.Newline()

	warnings, failures := 0, 0
	for _, r := range results {
		line := r.Name + ": " + r.Message
		switch {
		case r.Status == StatusPass:
			out.Success(line)
		case r.IsCritical():
			failures++
			out.Error(line)
		default:
			warnings++
			out.Warning(line)
		}
		if r.Details != "" && (c.verbose || r.Status != StatusPass) {
			out.Hint(r.Details)
		}
	}

	out.Newline()
	switch {
	case failures > 0:
		out.Errorf("Not ready: %d required %s failed", failures, plural(failures, "check"))
	case warnings > 0:
		out.Warningf("Ready with %d %s", warnings, plural(warnings, "warning"))
	default:
		out.Success("Ready")
	}
}

func plural(n int, word string) string {
	if n == 1 {
		return word
	}
	return word + "s"
}
