package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

// Output formats.
const (
	FormatText = "text"
	FormatJSON = "json"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true)
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	statusColor = map[string]lipgloss.Color{
		"done":    lipgloss.Color("42"),
		"failed":  lipgloss.Color("196"),
		"skipped": lipgloss.Color("214"),
		"pending": lipgloss.Color("240"),
		"running": lipgloss.Color("39"),
	}
)

// Render writes the report in the given format.
func (r *Report) Render(w io.Writer, format string) error {
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	case FormatText, "":
		_, err := io.WriteString(w, r.Text())
		return err
	}
	return fmt.Errorf("unknown report format %q", format)
}

// Text renders the report as tables for a terminal.
func (r *Report) Text() string {
	var b strings.Builder

	heading := fmt.Sprintf("Run %s %s in %s", r.RunID, r.State, time.Duration(r.DurationMs)*time.Millisecond)
	if r.Title != "" {
		heading = r.Title + ": " + heading
	}
	b.WriteString(titleStyle.Render(heading))
	b.WriteString("\n")
	fmt.Fprintf(&b, "%d tasks: %d done, %d failed, %d skipped", r.Counts.Total, r.Counts.Done, r.Counts.Failed, r.Counts.Skipped)
	if open := r.Counts.Pending + r.Counts.Running; open > 0 {
		fmt.Fprintf(&b, ", %d not finished", open)
	}
	b.WriteString("\n\n")

	rows := make([][]string, 0, len(r.Tasks))
	for _, t := range r.Tasks {
		reason := t.Reason
		if t.TimedOut && t.Status == "failed" {
			reason = strings.TrimSpace(reason + " (timed out)")
		}
		rows = append(rows, []string{
			t.ID,
			strconv.Itoa(t.Wave),
			t.Status,
			strconv.Itoa(t.Attempts),
			(time.Duration(t.DurationMs) * time.Millisecond).String(),
			t.Skill,
			reason,
		})
	}
	tasks := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("ID", "WAVE", "STATUS", "ATTEMPTS", "DURATION", "SKILL", "REASON").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			if col == 2 && row >= 0 && row < len(rows) {
				return cellStyle.Foreground(statusColor[rows[row][2]])
			}
			return cellStyle
		})
	b.WriteString(tasks.String())
	b.WriteString("\n")

	if len(r.Skills) > 0 {
		skillRows := make([][]string, 0, len(r.Skills))
		for _, s := range r.Skills {
			skillRows = append(skillRows, []string{s.Skill, strconv.Itoa(s.Tasks)})
		}
		skills := table.New().
			Border(lipgloss.NormalBorder()).
			Headers("SKILL", "TASKS").
			Rows(skillRows...).
			StyleFunc(func(row, col int) lipgloss.Style {
				if row == table.HeaderRow {
					return headerStyle
				}
				return cellStyle
			})
		b.WriteString("\n")
		b.WriteString(skills.String())
		b.WriteString("\n")
	}
	return b.String()
}
