package tui

import (
	"github.com/charmbracelet/lipgloss"
)

// Pane borders
var (
	StyleFocusedBorder = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(lipgloss.Color("62"))

	StyleUnfocusedBorder = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(lipgloss.Color("240"))
)

// Task status colors, ANSI 256
var (
	StyleStatusRunning  = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	StyleStatusComplete = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true)
	StyleStatusFailed   = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	StyleStatusSkipped  = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	StyleStatusPending  = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
)

var statusGlyphs = map[string]struct {
	glyph string
	style lipgloss.Style
}{
	"running": {"●", StyleStatusRunning},
	"done":    {"✓", StyleStatusComplete},
	"failed":  {"✗", StyleStatusFailed},
	"skipped": {"-", StyleStatusSkipped},
}

// StatusIcon returns the styled glyph of a task status.
func StatusIcon(status string) string {
	if g, ok := statusGlyphs[status]; ok {
		return g.style.Render(g.glyph)
	}
	return StyleStatusPending.Render("○")
}

// Chrome
var (
	StyleTitle    = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	StyleHelp     = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	StyleSelected = lipgloss.NewStyle().Background(lipgloss.Color("62")).Foreground(lipgloss.Color("0"))
	StyleBanner   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("62"))
)
