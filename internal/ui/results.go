package ui

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/Aman-CERP/fusesearch/internal/search"
)

// DefaultSnippetLines is the number of content lines shown per result.
const DefaultSnippetLines = 8

// ResultRenderer prints ranked search results.
type ResultRenderer struct {
	out          io.Writer
	styles       Styles
	snippetLines int
	window       bool
}

// ResultOption configures a ResultRenderer.
type ResultOption func(*ResultRenderer)

// WithSnippetLines limits the content shown per result; 0 hides it.
func WithSnippetLines(n int) ResultOption {
	return func(r *ResultRenderer) { r.snippetLines = n }
}

// WithWindow also prints the neighboring chunks.
func WithWindow(show bool) ResultOption {
	return func(r *ResultRenderer) { r.window = show }
}

// NewResultRenderer creates a result renderer.
func NewResultRenderer(out io.Writer, noColor bool, opts ...ResultOption) *ResultRenderer {
	r := &ResultRenderer{out: out, styles: GetStyles(noColor), snippetLines: DefaultSnippetLines}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Render writes one block per result.
func (r *ResultRenderer) Render(query string, results []search.FusedResult) error {
	w := &errWriter{w: r.out}
	if len(results) == 0 {
		w.printf("%s\n", r.styles.Dim.Render(fmt.Sprintf("No results for %q", query)))
		return w.err
	}
	for i, res := range results {
		if i > 0 {
			w.printf("\n")
		}
		w.printf("%s %s  %s  %s\n",
			r.styles.Label.Render(fmt.Sprintf("%2d.", res.Rank)),
			r.styles.Path.Render(res.Path)+r.styles.Lines.Render(lineSuffix(res)),
			r.styles.Score.Render(fmt.Sprintf("%.3f", res.Score)),
			r.styles.Backend.Render("["+matchTypes(res.MatchTypes)+"]"))

		if r.window && res.Window != nil && res.Window.Previous != "" {
			r.snippet(w, res.Window.Previous, r.styles.Context)
		}
		r.snippet(w, content(res), lipgloss.NewStyle())
		if r.window && res.Window != nil && res.Window.Next != "" {
			r.snippet(w, res.Window.Next, r.styles.Context)
		}
	}
	return w.err
}

func (r *ResultRenderer) snippet(w *errWriter, text string, style lipgloss.Style) {
	if r.snippetLines <= 0 || text == "" {
		return
	}
	lines := strings.Split(strings.TrimRight(text, "\n"), "\n")
	more := 0
	if len(lines) > r.snippetLines {
		more = len(lines) - r.snippetLines
		lines = lines[:r.snippetLines]
	}
	for _, l := range lines {
		w.printf("    %s\n", style.Render(l))
	}
	if more > 0 {
		w.printf("    %s\n", r.styles.Dim.Render(fmt.Sprintf("… %d more lines", more)))
	}
}

// content prefers the expanded chunk over the raw match snippet.
func content(res search.FusedResult) string {
	if res.Window != nil && res.Window.Current != "" {
		return res.Window.Current
	}
	return res.Content
}

func lineSuffix(res search.FusedResult) string {
	start, end := res.Location.StartLine, res.Location.EndLine
	if res.Window != nil && res.Window.StartLine > 0 {
		start, end = res.Window.StartLine, res.Window.EndLine
	}
	switch {
	case start <= 0:
		return ""
	case end <= start:
		return fmt.Sprintf(":%d", start)
	default:
		return fmt.Sprintf(":%d-%d", start, end)
	}
}

func matchTypes(types []search.MatchType) string {
	names := make([]string, len(types))
	for i, t := range types {
		names[i] = t.String()
	}
	return strings.Join(names, ", ")
}
