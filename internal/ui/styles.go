package ui

import "github.com/charmbracelet/lipgloss"

// 256-color palette: one lime accent over grays.
const (
	ColorAccent    = "154"
	ColorAccentDim = "106"
	ColorWhite     = "255"
	ColorGray      = "245"
	ColorDarkGray  = "238"
	ColorRed       = "196"
	ColorYellow    = "220"
	ColorCyan      = "44"
)

// Styles holds every style used by the renderers.
type Styles struct {
	Header  lipgloss.Style
	Success lipgloss.Style
	Warning lipgloss.Style
	Error   lipgloss.Style
	Dim     lipgloss.Style
	Active  lipgloss.Style
	Label   lipgloss.Style
	Border  lipgloss.Style

	// Search results
	Path    lipgloss.Style
	Lines   lipgloss.Style
	Score   lipgloss.Style
	Backend lipgloss.Style
	Context lipgloss.Style
}

// DefaultStyles returns the colored styles.
func DefaultStyles() Styles {
	fg := func(c string) lipgloss.Style { return lipgloss.NewStyle().Foreground(lipgloss.Color(c)) }
	return Styles{
		Header:  fg(ColorAccent).Bold(true),
		Success: fg(ColorAccent),
		Warning: fg(ColorYellow),
		Error:   fg(ColorRed),
		Dim:     fg(ColorDarkGray),
		Active:  fg(ColorAccent).Bold(true),
		Label:   fg(ColorGray),
		Border:  fg(ColorDarkGray),

		Path:    fg(ColorWhite).Bold(true),
		Lines:   fg(ColorGray),
		Score:   fg(ColorAccent),
		Backend: fg(ColorCyan),
		Context: fg(ColorGray),
	}
}

// NoColorStyles returns unstyled components.
func NoColorStyles() Styles {
	plain := lipgloss.NewStyle()
	return Styles{
		Header: plain, Success: plain, Warning: plain, Error: plain,
		Dim: plain, Active: plain, Label: plain, Border: plain,
		Path: plain, Lines: plain, Score: plain, Backend: plain, Context: plain,
	}
}

// GetStyles picks the styles for a color preference.
func GetStyles(noColor bool) Styles {
	if noColor {
		return NoColorStyles()
	}
	return DefaultStyles()
}
