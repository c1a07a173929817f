// Package output writes the short status lines of CLI commands.
package output

import (
	"fmt"
	"io"
	"strings"

	"github.com/Aman-CERP/fusesearch/internal/ui"
)

// Icons prefix status lines.
const (
	IconSuccess = "✓"
	IconWarning = "!"
	IconError   = "✗"
	IconInfo    = "•"
)

// Writer prints status lines styled with the ui palette. Write errors are
// ignored; this is console output.
type Writer struct {
	out    io.Writer
	styles ui.Styles
}

// New creates a Writer. noColor selects the plain palette.
func New(out io.Writer, noColor bool) *Writer {
	return &Writer{out: out, styles: ui.GetStyles(noColor)}
}

// Status prints msg after icon, or indented under the previous line when
// icon is empty.
func (w *Writer) Status(icon, msg string) {
	if icon == "" {
		_, _ = fmt.Fprintf(w.out, "  %s\n", msg)
		return
	}
	_, _ = fmt.Fprintf(w.out, "%s %s\n", icon, msg)
}

// Statusf is Status with formatting.
func (w *Writer) Statusf(icon, format string, args ...any) {
	w.Status(icon, fmt.Sprintf(format, args...))
}

// Success prints a line marked as done.
func (w *Writer) Success(msg string) {
	w.Status(w.styles.Success.Render(IconSuccess), msg)
}

// Successf is Success with formatting.
func (w *Writer) Successf(format string, args ...any) {
	w.Success(fmt.Sprintf(format, args...))
}

// Warning prints a line that needs attention.
func (w *Writer) Warning(msg string) {
	w.Status(w.styles.Warning.Render(IconWarning), msg)
}

// Warningf is Warning with formatting.
func (w *Writer) Warningf(format string, args ...any) {
	w.Warning(fmt.Sprintf(format, args...))
}

// Error prints a failed line.
func (w *Writer) Error(msg string) {
	w.Status(w.styles.Error.Render(IconError), msg)
}

// Errorf is Error with formatting.
func (w *Writer) Errorf(format string, args ...any) {
	w.Error(fmt.Sprintf(format, args...))
}

// Info prints a neutral line.
func (w *Writer) Info(msg string) {
	w.Status(w.styles.Dim.Render(IconInfo), msg)
}

// Infof is Info with formatting.
func (w *Writer) Infof(format string, args ...any) {
	w.Info(fmt.Sprintf(format, args...))
}

// Hint prints a dimmed, indented follow-up such as a command to run.
func (w *Writer) Hint(msg string) {
	w.Status("", w.styles.Dim.Render(msg))
}

// Code prints content indented between blank lines.
func (w *Writer) Code(content string) {
	_, _ = fmt.Fprintln(w.out)
	for _, line := range strings.Split(strings.TrimRight(content, "\n"), "\n") {
		_, _ = fmt.Fprintf(w.out, "    %s\n", line)
	}
	_, _ = fmt.Fprintln(w.out)
}

// Newline prints an empty line.
func (w *Writer) Newline() {
	_, _ = fmt.Fprintln(w.out)
}
