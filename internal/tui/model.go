// Package tui renders a live view of a run from its events.
package tui

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/aristath/waverunner/internal/events"
)

// PaneID identifies which pane is focused.
type PaneID int

const (
	PaneTasks PaneID = iota
	PaneWaves
	paneCount
)

// Model is the root Bubble Tea model for the TUI.
type Model struct {
	taskPane    TaskPaneModel
	wavePane    WavePaneModel
	focusedPane PaneID
	eventSub    <-chan events.Event
	title       string
	width       int
	height      int
	quitting    bool
	finished    *events.RunCompletedEvent
	onQuit      func()
}

// New creates a new TUI model subscribed to every topic of the bus. onQuit is
// called when the user quits before the run is over.
func New(eventBus *events.EventBus, title string, onQuit func()) Model {
	m := Model{
		taskPane:    NewTaskPaneModel(),
		wavePane:    NewWavePaneModel(),
		focusedPane: PaneTasks,
		eventSub:    eventBus.SubscribeAll(1024),
		title:       title,
		onQuit:      onQuit,
	}
	m.updateFocusStates()
	return m
}

// Init initializes the model and returns the initial command.
func (m Model) Init() tea.Cmd {
	return waitForEvent(m.eventSub)
}

// waitForEvent returns a command that waits for the next event from the event bus.
func waitForEvent(sub <-chan events.Event) tea.Cmd {
	return func() tea.Msg {
		event, ok := <-sub
		if !ok {
			return nil // bus closed
		}
		return event
	}
}

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case KeyQuit, KeyCtrlC:
			if m.finished == nil && m.onQuit != nil {
				m.onQuit()
			}
			m.quitting = true
			return m, tea.Quit

		case KeyTab:
			m.focusedPane = (m.focusedPane + 1) % paneCount
			m.updateFocusStates()

		case KeyShiftTab:
			m.focusedPane = (m.focusedPane + paneCount - 1) % paneCount
			m.updateFocusStates()

		case KeyPane1:
			m.focusedPane = PaneTasks
			m.updateFocusStates()

		case KeyPane2:
			m.focusedPane = PaneWaves
			m.updateFocusStates()

		default:
			if m.focusedPane == PaneTasks {
				var cmd tea.Cmd
				m.taskPane, cmd = m.taskPane.Update(msg)
				cmds = append(cmds, cmd)
			}
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.computeLayout()

	case events.RunCompletedEvent:
		m.finished = &msg

	case events.Event:
		switch msg.Topic() {
		case events.TopicTask:
			var cmd tea.Cmd
			m.taskPane, cmd = m.taskPane.Update(msg)
			cmds = append(cmds, cmd)
		default:
			var cmd tea.Cmd
			m.wavePane, cmd = m.wavePane.Update(msg)
			cmds = append(cmds, cmd)
		}
		cmds = append(cmds, waitForEvent(m.eventSub))
	}

	return m, tea.Batch(cmds...)
}

// Finished reports whether the run-completed event has arrived.
func (m Model) Finished() bool {
	return m.finished != nil
}

// View renders the TUI.
func (m Model) View() string {
	if m.quitting {
		return ""
	}
	if m.width == 0 || m.height == 0 {
		return "Initializing..."
	}

	banner := m.title
	if m.finished != nil {
		status := "completed"
		if m.finished.Aborted {
			status = fmt.Sprintf("aborted: %v", m.finished.Err)
		}
		banner = fmt.Sprintf("%s: run %s", m.title, status)
	}

	main := lipgloss.JoinHorizontal(lipgloss.Top, m.taskPane.View(), m.wavePane.View())
	return lipgloss.JoinVertical(lipgloss.Left, StyleBanner.Render(banner), main, HelpView(m.finished != nil))
}

// computeLayout calculates pane dimensions and updates all child models.
func (m *Model) computeLayout() {
	leftWidth := (m.width * 65) / 100
	rightWidth := m.width - leftWidth
	availableHeight := m.height - 2 // banner and help bar

	m.taskPane.SetSize(leftWidth, availableHeight)
	m.wavePane.SetSize(rightWidth, availableHeight)
	m.updateFocusStates()
}

func (m *Model) updateFocusStates() {
	m.taskPane.SetFocused(m.focusedPane == PaneTasks)
	m.wavePane.SetFocused(m.focusedPane == PaneWaves)
}
