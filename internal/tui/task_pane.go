package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/aristath/waverunner/internal/events"
)

// TaskState is what the view knows about one task.
type TaskState struct {
	ID       string
	Title    string
	Wave     int
	Skill    string
	Status   string // "running", "done", "failed", "skipped"
	Attempt  int
	Log      []string
	Started  time.Time
	Duration time.Duration
}

// TaskPaneModel lists tasks as they start and shows the log of the selected one.
type TaskPaneModel struct {
	tasks       map[string]*TaskState // taskID -> state
	taskOrder   []string              // insertion order for display
	selectedIdx int
	viewport    viewport.Model
	width       int
	height      int
	focused     bool
}

const taskListWidth = 28

// NewTaskPaneModel creates a new task pane model.
func NewTaskPaneModel() TaskPaneModel {
	return TaskPaneModel{
		tasks:    make(map[string]*TaskState),
		viewport: viewport.New(0, 0),
	}
}

// Update handles messages for the task pane.
func (m TaskPaneModel) Update(msg tea.Msg) (TaskPaneModel, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		if !m.focused {
			break
		}
		switch msg.String() {
		case KeyJ, KeyDown:
			if m.selectedIdx < len(m.taskOrder)-1 {
				m.selectedIdx++
				m.updateViewportContent()
			}
		case KeyK, KeyUp:
			if m.selectedIdx > 0 {
				m.selectedIdx--
				m.updateViewportContent()
			}
		default:
			m.viewport, cmd = m.viewport.Update(msg)
		}

	case events.TaskStartedEvent:
		task := m.task(msg.ID)
		task.Title = msg.Title
		task.Wave = msg.Wave
		task.Skill = msg.Skill
		task.Status = "running"
		task.Attempt = msg.Attempt
		if task.Started.IsZero() {
			task.Started = msg.Timestamp
		}
		task.Log = append(task.Log, fmt.Sprintf("attempt %d started (%s)", msg.Attempt, msg.Skill))
		m.refresh(msg.ID)

	case events.TaskRetryingEvent:
		task := m.task(msg.ID)
		task.Log = append(task.Log, fmt.Sprintf("attempt %d failed: %s", msg.Attempt, msg.Reason))
		m.refresh(msg.ID)

	case events.TaskCompletedEvent:
		task := m.task(msg.ID)
		task.Status = "done"
		task.Duration = msg.Duration
		if out := strings.TrimSpace(msg.Output); out != "" {
			task.Log = append(task.Log, strings.Split(out, "\n")...)
		}
		task.Log = append(task.Log, fmt.Sprintf("[done in %s after %d attempts]", msg.Duration.Round(time.Millisecond), msg.Attempts))
		m.refresh(msg.ID)

	case events.TaskFailedEvent:
		task := m.task(msg.ID)
		task.Status = "failed"
		task.Duration = msg.Duration
		task.Log = append(task.Log, fmt.Sprintf("[failed after %d attempts: %s]", msg.Attempts, msg.Reason))
		m.refresh(msg.ID)

	case events.TaskSkippedEvent:
		task := m.task(msg.ID)
		task.Status = "skipped"
		task.Log = append(task.Log, msg.Reason)
		m.refresh(msg.ID)

	case events.ResolutionWarningEvent:
		task := m.task(msg.ID)
		task.Log = append(task.Log, "warning: "+msg.Message)
		m.refresh(msg.ID)
	}

	return m, cmd
}

// task returns the state for id, adding it to the list on first sight.
func (m *TaskPaneModel) task(id string) *TaskState {
	if t, ok := m.tasks[id]; ok {
		return t
	}
	t := &TaskState{ID: id, Status: "pending"}
	m.tasks[id] = t
	m.taskOrder = append(m.taskOrder, id)
	return t
}

func (m *TaskPaneModel) refresh(id string) {
	if len(m.taskOrder) == 1 || m.SelectedTaskID() == id {
		m.updateViewportContent()
	}
}

// Task returns the state of a task, if seen.
func (m TaskPaneModel) Task(id string) (TaskState, bool) {
	t, ok := m.tasks[id]
	if !ok {
		return TaskState{}, false
	}
	return *t, true
}

// View renders the task pane.
func (m TaskPaneModel) View() string {
	if m.width == 0 || m.height == 0 {
		return ""
	}

	viewportWidth := m.width - taskListWidth - 4
	content := lipgloss.JoinHorizontal(
		lipgloss.Top,
		m.renderTaskList(taskListWidth),
		lipgloss.NewStyle().
			Width(viewportWidth).
			Height(m.height-2).
			Render(m.viewport.View()),
	)

	style := StyleUnfocusedBorder
	if m.focused {
		style = StyleFocusedBorder
	}
	return style.
		Width(m.width - 2).
		Height(m.height - 2).
		Render(content)
}

func (m TaskPaneModel) renderTaskList(width int) string {
	var b strings.Builder

	title := StyleTitle.Render("Tasks")
	b.WriteString(title)
	b.WriteString("\n")
	b.WriteString(strings.Repeat("=", min(width, lipgloss.Width(title))))
	b.WriteString("\n\n")

	if len(m.taskOrder) == 0 {
		b.WriteString(StyleStatusPending.Render("Waiting..."))
	}
	for i, id := range m.taskOrder {
		task := m.tasks[id]
		name := id
		if task.Title != "" {
			name = id + " " + task.Title
		}
		if len(name) > width-4 {
			name = name[:width-7] + "..."
		}

		line := fmt.Sprintf("%s %s", StatusIcon(task.Status), name)
		if i == m.selectedIdx {
			line = StyleSelected.Render(line)
		}
		b.WriteString(line)
		b.WriteString("\n")
	}

	return lipgloss.NewStyle().
		Width(width).
		Height(m.height - 2).
		Render(b.String())
}

// SelectedTaskID returns the task ID of the currently selected task.
func (m TaskPaneModel) SelectedTaskID() string {
	if m.selectedIdx >= 0 && m.selectedIdx < len(m.taskOrder) {
		return m.taskOrder[m.selectedIdx]
	}
	return ""
}

func (m *TaskPaneModel) updateViewportContent() {
	task, ok := m.tasks[m.SelectedTaskID()]
	if !ok {
		m.viewport.SetContent("Waiting for tasks...")
		return
	}
	m.viewport.SetContent(strings.Join(task.Log, "\n"))
	m.viewport.GotoBottom()
}

func (m *TaskPaneModel) resizeViewport() {
	m.viewport.Width = max(m.width-taskListWidth-4, 10)
	m.viewport.Height = max(m.height-4, 5)
}

// SetSize updates the pane dimensions.
func (m *TaskPaneModel) SetSize(w, h int) {
	m.width = w
	m.height = h
	m.resizeViewport()
}

// SetFocused updates the focus state.
func (m *TaskPaneModel) SetFocused(focused bool) {
	m.focused = focused
}
