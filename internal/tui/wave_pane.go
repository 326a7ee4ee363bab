package tui

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/aristath/waverunner/internal/events"
)

// WavePaneModel shows overall progress and the waves finished so far.
type WavePaneModel struct {
	progress events.ProgressEvent
	wave     int      // Wave in progress, 0 when none
	history  []string // One line per completed wave
	width    int
	height   int
	focused  bool
}

// NewWavePaneModel creates a new wave pane model.
func NewWavePaneModel() WavePaneModel {
	return WavePaneModel{}
}

// Update handles messages for the wave pane.
func (m WavePaneModel) Update(msg tea.Msg) (WavePaneModel, tea.Cmd) {
	switch msg := msg.(type) {
	case events.ProgressEvent:
		m.progress = msg

	case events.WaveStartedEvent:
		m.wave = msg.Wave

	case events.WaveCompletedEvent:
		m.wave = 0
		m.history = append(m.history, fmt.Sprintf("wave %d: %d done, %d failed, %d skipped in %s",
			msg.Wave, msg.Done, msg.Failed, msg.Skipped, msg.Duration.Round(time.Millisecond)))
	}
	return m, nil
}

// View renders the wave pane.
func (m WavePaneModel) View() string {
	if m.width == 0 || m.height == 0 {
		return ""
	}

	var b strings.Builder
	title := StyleTitle.Render("Waves")
	b.WriteString(title)
	b.WriteString("\n")
	b.WriteString(strings.Repeat("=", lipgloss.Width(title)))
	b.WriteString("\n\n")

	if m.wave > 0 {
		fmt.Fprintf(&b, "Running wave %d\n\n", m.wave)
	}

	p := m.progress
	fmt.Fprintf(&b, "Total:   %d\n", p.Total)
	fmt.Fprintf(&b, "Done:    %s\n", StyleStatusComplete.Render(fmt.Sprint(p.Done)))
	fmt.Fprintf(&b, "Failed:  %s\n", StyleStatusFailed.Render(fmt.Sprint(p.Failed)))
	fmt.Fprintf(&b, "Skipped: %s\n", StyleStatusSkipped.Render(fmt.Sprint(p.Skipped)))
	fmt.Fprintf(&b, "Pending: %s\n", StyleStatusPending.Render(fmt.Sprint(p.Pending+p.Running)))
	b.WriteString("\n")

	if p.Total > 0 {
		barWidth := min(m.width-4, 40)
		doneWidth := (p.Done * barWidth) / p.Total
		failedWidth := (p.Failed * barWidth) / p.Total
		skippedWidth := (p.Skipped * barWidth) / p.Total
		pendingWidth := barWidth - doneWidth - failedWidth - skippedWidth

		bar := StyleStatusComplete.Render(strings.Repeat("=", max(0, doneWidth)))
		bar += StyleStatusFailed.Render(strings.Repeat("!", max(0, failedWidth)))
		bar += StyleStatusSkipped.Render(strings.Repeat("-", max(0, skippedWidth)))
		bar += StyleStatusPending.Render(strings.Repeat(".", max(0, pendingWidth)))

		fmt.Fprintf(&b, "[%s]  %d/%d\n\n", bar, p.Done+p.Failed+p.Skipped, p.Total)
	}

	for _, line := range m.history {
		b.WriteString(line)
		b.WriteString("\n")
	}

	style := StyleUnfocusedBorder
	if m.focused {
		style = StyleFocusedBorder
	}
	return style.
		Width(m.width - 2).
		Height(m.height - 2).
		Render(b.String())
}

// SetSize updates the pane dimensions.
func (m *WavePaneModel) SetSize(w, h int) {
	m.width = w
	m.height = h
}

// SetFocused updates the focus state.
func (m *WavePaneModel) SetFocused(focused bool) {
	m.focused = focused
}
