package tui

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"
)

// Run shows the live view until the user quits. The model subscribes in New,
// so build it before the run starts publishing.
func Run(ctx context.Context, m Model) error {
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	return err
}
