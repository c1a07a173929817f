package ui

import (
	"encoding/json"
	"fmt"
	"io"
	"time"
)

// BackendStatus is the health of one search backend.
type BackendStatus struct {
	Name     string `json:"name"`
	Enabled  bool   `json:"enabled"`
	Breaker  string `json:"breaker"` // closed, open or half-open
	Failures int    `json:"failures"`
}

// StatusInfo describes a project's index.
type StatusInfo struct {
	Root       string    `json:"root"`
	Files      int       `json:"files"`
	Chunks     int       `json:"chunks"`
	IndexedAt  time.Time `json:"indexed_at"`
	UpdatedAt  time.Time `json:"updated_at"`
	Model      string    `json:"model"`
	Dimensions int       `json:"dimensions"`
	ChunkLines int       `json:"chunk_lines"`

	FullTextSize int64 `json:"fulltext_size"`
	TermsSize    int64 `json:"terms_size"`
	VectorSize   int64 `json:"vector_size"`

	Orphans         int  `json:"orphans"`
	Inconsistencies int  `json:"inconsistencies"`
	Repaired        int  `json:"repaired,omitempty"`
	Locked          bool `json:"locked"`
	Interrupted     bool `json:"interrupted,omitempty"`

	// ServerPID is the process of a running 'fusesearch serve', if any.
	ServerPID int `json:"server_pid,omitempty"`

	Backends []BackendStatus `json:"backends,omitempty"`
}

// TotalSize is the on-disk size of all indexes.
func (s StatusInfo) TotalSize() int64 {
	return s.FullTextSize + s.TermsSize + s.VectorSize
}

// StatusRenderer prints StatusInfo.
type StatusRenderer struct {
	out    io.Writer
	styles Styles
	now    func() time.Time
}

// NewStatusRenderer creates a status renderer.
func NewStatusRenderer(out io.Writer, noColor bool) *StatusRenderer {
	return &StatusRenderer{out: out, styles: GetStyles(noColor), now: time.Now}
}

// Render writes a human-readable report.
func (r *StatusRenderer) Render(info StatusInfo) error {
	w := &errWriter{w: r.out}
	w.printf("%s\n\n", r.styles.Header.Render("Index: "+info.Root))

	w.printf("  Files:        %d\n", info.Files)
	w.printf("  Chunks:       %d (%d lines each)\n", info.Chunks, info.ChunkLines)
	if !info.IndexedAt.IsZero() {
		w.printf("  Built:        %s\n", r.ago(info.IndexedAt))
	}
	if !info.UpdatedAt.IsZero() && !info.UpdatedAt.Equal(info.IndexedAt) {
		w.printf("  Updated:      %s\n", r.ago(info.UpdatedAt))
	}
	w.printf("  Embedder:     %s (%d dims)\n\n", info.Model, info.Dimensions)

	w.printf("  Storage:\n")
	w.printf("    Full-text:  %s\n", FormatBytes(info.FullTextSize))
	w.printf("    Terms:      %s\n", FormatBytes(info.TermsSize))
	w.printf("    Vectors:    %s\n", FormatBytes(info.VectorSize))
	w.printf("    Total:      %s\n\n", FormatBytes(info.TotalSize()))

	health := r.styles.Success.Render("consistent")
	if info.Inconsistencies > 0 {
		health = r.styles.Warning.Render(fmt.Sprintf("%d inconsistencies (run 'fusesearch index')", info.Inconsistencies))
	}
	w.printf("  Health:       %s\n", health)
	if info.Repaired > 0 {
		w.printf("  Repaired:     %d orphaned entries removed\n", info.Repaired)
	}
	if info.Orphans > 0 {
		w.printf("  Orphans:      %d vectors awaiting rebuild\n", info.Orphans)
	}
	if info.Locked {
		w.printf("  Lock:         %s\n", r.styles.Warning.Render("held by a running writer"))
	}
	if info.Interrupted {
		w.printf("  Build:        %s\n", r.styles.Warning.Render("interrupted (run 'fusesearch index')"))
	}
	if info.ServerPID > 0 {
		w.printf("  Server:       running (pid %d)\n", info.ServerPID)
	}

	if len(info.Backends) > 0 {
		w.printf("\n  Backends:\n")
		for _, b := range info.Backends {
			w.printf("    %-10s %s\n", b.Name, r.breaker(b))
		}
	}
	return w.err
}

// RenderJSON writes info as indented JSON.
func (r *StatusRenderer) RenderJSON(info StatusInfo) error {
	enc := json.NewEncoder(r.out)
	enc.SetIndent("", "  ")
	return enc.Encode(info)
}

func (r *StatusRenderer) breaker(b BackendStatus) string {
	if !b.Enabled {
		return r.styles.Dim.Render("disabled")
	}
	switch b.Breaker {
	case "", "closed":
		return r.styles.Success.Render("ready")
	case "half-open":
		return r.styles.Warning.Render("probing")
	default:
		return r.styles.Error.Render(fmt.Sprintf("%s (%d failures)", b.Breaker, b.Failures))
	}
}

func (r *StatusRenderer) ago(t time.Time) string {
	return formatAgo(r.now().Sub(t), t)
}

// formatAgo renders d as "just now", "5 minutes ago" and so on, falling
// back to the timestamp after a week.
func formatAgo(d time.Duration, t time.Time) string {
	unit := func(n int, name string) string {
		if n == 1 {
			return "1 " + name + " ago"
		}
		return fmt.Sprintf("%d %ss ago", n, name)
	}
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return unit(int(d.Minutes()), "minute")
	case d < 24*time.Hour:
		return unit(int(d.Hours()), "hour")
	case d < 7*24*time.Hour:
		return unit(int(d.Hours()/24), "day")
	default:
		return t.Format("2006-01-02 15:04")
	}
}

// FormatBytes formats a size as B, KB, MB or GB.
func FormatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	value, suffix := float64(n)/unit, "KB"
	for _, s := range []string{"MB", "GB"} {
		if value < unit {
			break
		}
		value, suffix = value/unit, s
	}
	return fmt.Sprintf("%.1f %s", value, suffix)
}

// errWriter keeps the first write error.
type errWriter struct {
	w   io.Writer
	err error
}

func (e *errWriter) printf(format string, args ...any) {
	if e.err != nil {
		return
	}
	_, e.err = fmt.Fprintf(e.w, format, args...)
}
