// Package ui renders terminal output: indexing progress (a bubbletea TUI on
// interactive terminals, plain lines elsewhere), search result listings and
// index status.
package ui

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/mattn/go-isatty"
)

// Stage is a step of an index build.
type Stage int

const (
	// StageScanning walks the project.
	StageScanning Stage = iota
	// StageChunking splits files into fixed-size chunks.
	StageChunking
	// StageEmbedding computes chunk vectors.
	StageEmbedding
	// StageIndexing writes the three indexes.
	StageIndexing
	// StageComplete marks the end of a build.
	StageComplete
)

var stageNames = [...]struct{ name, icon string }{
	StageScanning:  {"Scanning", "SCAN"},
	StageChunking:  {"Chunking", "CHUNK"},
	StageEmbedding: {"Embedding", "EMBED"},
	StageIndexing:  {"Indexing", "INDEX"},
	StageComplete:  {"Complete", "DONE"},
}

// String returns the human-readable stage name.
func (s Stage) String() string {
	if s < 0 || int(s) >= len(stageNames) {
		return "Unknown"
	}
	return stageNames[s].name
}

// Icon returns the short tag used by plain output.
func (s Stage) Icon() string {
	if s < 0 || int(s) >= len(stageNames) {
		return "???"
	}
	return stageNames[s].icon
}

// ProgressEvent is a progress update.
type ProgressEvent struct {
	Stage       Stage
	Current     int
	Total       int
	CurrentFile string
	Message     string
}

// ErrorEvent is a per-file failure. Warnings do not fail the build.
type ErrorEvent struct {
	File   string
	Err    error
	IsWarn bool
}

// StageTimings is the duration of each build stage.
type StageTimings struct {
	Scan  time.Duration
	Chunk time.Duration
	Embed time.Duration
	Index time.Duration
}

// EmbedderInfo describes the embedder used for a build.
type EmbedderInfo struct {
	Model      string
	Dimensions int
}

// CompletionStats summarizes a finished build.
type CompletionStats struct {
	Files    int
	Chunks   int
	Duration time.Duration
	Errors   int
	Warnings int
	Stages   StageTimings
	Embedder EmbedderInfo
}

// Renderer displays build progress.
type Renderer interface {
	// Start initializes the renderer.
	Start(ctx context.Context) error

	// UpdateProgress updates the progress display.
	UpdateProgress(event ProgressEvent)

	// AddError records a failure.
	AddError(event ErrorEvent)

	// Complete shows the summary.
	Complete(stats CompletionStats)

	// Stop releases the terminal.
	Stop() error
}

// NopRenderer discards everything. It is used for incremental updates
// and in tests.
type NopRenderer struct{}

func (NopRenderer) Start(context.Context) error  { return nil }
func (NopRenderer) UpdateProgress(ProgressEvent) {}
func (NopRenderer) AddError(ErrorEvent)          {}
func (NopRenderer) Complete(CompletionStats)     {}
func (NopRenderer) Stop() error                  { return nil }

// Config configures a renderer.
type Config struct {
	Output     io.Writer
	ForcePlain bool
	NoColor    bool
	ProjectDir string // shown in the TUI header
}

// ConfigOption modifies a Config.
type ConfigOption func(*Config)

// WithForcePlain forces plain text output.
func WithForcePlain(force bool) ConfigOption {
	return func(c *Config) { c.ForcePlain = force }
}

// WithNoColor disables color output.
func WithNoColor(noColor bool) ConfigOption {
	return func(c *Config) { c.NoColor = noColor }
}

// WithProjectDir sets the project shown in the TUI header.
func WithProjectDir(dir string) ConfigOption {
	return func(c *Config) { c.ProjectDir = dir }
}

// NewConfig creates a Config writing to output.
func NewConfig(output io.Writer, opts ...ConfigOption) Config {
	cfg := Config{Output: output, NoColor: DetectNoColor()}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// NewRenderer returns the TUI renderer on interactive terminals and the
// plain renderer for pipes, CI or when plain output is forced.
func NewRenderer(cfg Config) Renderer {
	if cfg.ForcePlain || !IsTTY(cfg.Output) || DetectCI() {
		return NewPlainRenderer(cfg)
	}
	tui, err := NewTUIRenderer(cfg)
	if err != nil {
		return NewPlainRenderer(cfg)
	}
	return tui
}

// IsTTY reports whether w is a terminal.
func IsTTY(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok || f == nil {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// DetectNoColor reports whether NO_COLOR is set.
func DetectNoColor() bool {
	_, exists := os.LookupEnv("NO_COLOR")
	return exists
}

// DetectCI reports whether a common CI variable is set.
func DetectCI() bool {
	for _, v := range []string{"CI", "GITHUB_ACTIONS", "GITLAB_CI", "JENKINS_URL", "BUILDKITE"} {
		if _, exists := os.LookupEnv(v); exists {
			return true
		}
	}
	return false
}

var _ Renderer = NopRenderer{}
