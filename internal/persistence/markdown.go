package persistence

import (
	"bufio"
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aristath/waverunner/internal/scheduler"
)

// MarkdownCodec reads and writes the human-readable backing document:
//
//	# Plan title
//
//	Free notes, kept verbatim.
//
//	## Wave 1
//
//	### [x] T1: Create schema
//	- effort: 5m
//	- skill: database
//	- paths: db/schema.sql
//	- attempts: 1
//
//	Task description.
//
//	### [ ] T2: Seed data
//	- blocked_by: T1
//
// Property bullets must directly follow the task heading; the first blank line
// ends them and the rest of the section is the description.
type MarkdownCodec struct{}

var markerStatus = map[byte]scheduler.TaskStatus{
	' ': scheduler.TaskPending,
	'~': scheduler.TaskRunning,
	'x': scheduler.TaskDone,
	'X': scheduler.TaskDone,
	'!': scheduler.TaskFailed,
	'-': scheduler.TaskSkipped,
}

var statusMarker = map[scheduler.TaskStatus]byte{
	scheduler.TaskPending: ' ',
	scheduler.TaskRunning: '~',
	scheduler.TaskDone:    'x',
	scheduler.TaskFailed:  '!',
	scheduler.TaskSkipped: '-',
}

const (
	waveHeadingPrefix = "## Wave "
	taskHeadingPrefix = "### ["
)

func (MarkdownCodec) Name() string { return "markdown" }

// Encode renders the plan. Tasks are grouped under a wave heading whenever the
// wave number changes.
func (MarkdownCodec) Encode(plan *scheduler.Plan) ([]byte, error) {
	var b bytes.Buffer

	if plan.Title != "" {
		fmt.Fprintf(&b, "# %s\n\n", plan.Title)
	}
	if notes := strings.TrimSpace(plan.Notes); notes != "" {
		if plan.Title == "" && strings.HasPrefix(notes, "# ") {
			return nil, fmt.Errorf("notes of an untitled plan cannot start with a title heading")
		}
		if err := checkFreeText(notes); err != nil {
			return nil, fmt.Errorf("notes: %w", err)
		}
		b.WriteString(notes)
		b.WriteString("\n\n")
	}

	wave := 0
	for _, task := range plan.Tasks {
		if task.Wave != wave {
			wave = task.Wave
			fmt.Fprintf(&b, "%s%d\n\n", waveHeadingPrefix, wave)
		}

		marker, ok := statusMarker[task.Status]
		if !ok {
			return nil, fmt.Errorf("task %s has unknown status %d", task.ID, task.Status)
		}
		if strings.ContainsAny(task.ID, ": \t\n") || task.ID == "" {
			return nil, fmt.Errorf("task id %q cannot be written to a markdown heading", task.ID)
		}

		fmt.Fprintf(&b, "### [%c] %s", marker, task.ID)
		if task.Title != "" {
			fmt.Fprintf(&b, ": %s", singleLine(task.Title))
		}
		b.WriteString("\n")

		writeProp := func(key, value string) {
			if value != "" {
				fmt.Fprintf(&b, "- %s: %s\n", key, value)
			}
		}
		writeProp("blocked_by", strings.Join(task.DependsOn, ", "))
		if task.Effort > 0 {
			writeProp("effort", formatEffort(task.Effort))
		}
		writeProp("skill", task.Skill)
		writeProp("paths", strings.Join(task.Paths, ", "))
		writeProp("rollback", singleLine(task.Rollback))
		if task.Attempts > 0 {
			writeProp("attempts", strconv.Itoa(task.Attempts))
		}
		writeProp("reason", singleLine(task.Reason))

		if desc := strings.TrimSpace(task.Description); desc != "" {
			if err := checkFreeText(desc); err != nil {
				return nil, fmt.Errorf("task %s description: %w", task.ID, err)
			}
			b.WriteString("\n")
			b.WriteString(desc)
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	return append(bytes.TrimRight(b.Bytes(), "\n"), '\n'), nil
}

// checkFreeText rejects notes or description lines that Decode would read as
// a wave or task heading.
func checkFreeText(text string) error {
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimRight(line, " \t\r")
		if strings.HasPrefix(line, waveHeadingPrefix) || strings.HasPrefix(line, taskHeadingPrefix) {
			return fmt.Errorf("line %q would be read as a heading", line)
		}
	}
	return nil
}

// Decode parses a markdown document. Errors carry the 1-based line number.
func (MarkdownCodec) Decode(data []byte) (*scheduler.Plan, error) {
	plan := &scheduler.Plan{}

	var (
		notes    []string
		desc     []string
		current  *scheduler.Task
		inProps  bool
		wave     int
		lineNo   int
		seenWave bool
	)

	flushTask := func() {
		if current != nil {
			current.Description = strings.TrimSpace(strings.Join(desc, "\n"))
			plan.Tasks = append(plan.Tasks, current)
		}
		current = nil
		desc = nil
	}
	fail := func(format string, args ...any) error {
		return &ParseError{Line: lineNo, Err: fmt.Errorf(format, args...)}
	}

	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 10*1024*1024)
	for scanner.Scan() {
		lineNo++
		line := strings.TrimRight(scanner.Text(), " \t\r")

		switch {
		case strings.HasPrefix(line, waveHeadingPrefix):
			flushTask()
			n, err := strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(line, waveHeadingPrefix)))
			if err != nil {
				return nil, fail("invalid wave heading %q", line)
			}
			wave = n
			seenWave = true
			inProps = false

		case strings.HasPrefix(line, taskHeadingPrefix):
			if !seenWave {
				return nil, fail("task heading before the first wave heading")
			}
			flushTask()
			task, err := parseTaskHeading(line)
			if err != nil {
				return nil, fail("%v", err)
			}
			task.Wave = wave
			current = task
			inProps = true

		case current != nil && inProps:
			if line == "" {
				inProps = false
				continue
			}
			if !strings.HasPrefix(line, "- ") {
				// Description starting right under the properties
				inProps = false
				desc = append(desc, line)
				continue
			}
			if err := applyProperty(current, strings.TrimPrefix(line, "- ")); err != nil {
				return nil, fail("task %s: %v", current.ID, err)
			}

		case current != nil:
			desc = append(desc, line)

		case seenWave:
			if line != "" {
				return nil, fail("unexpected text between wave heading and first task: %q", line)
			}

		case plan.Title == "" && strings.TrimSpace(strings.Join(notes, "")) == "" && strings.HasPrefix(line, "# "):
			plan.Title = strings.TrimSpace(strings.TrimPrefix(line, "# "))
			notes = nil

		default:
			notes = append(notes, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, &ParseError{Line: lineNo, Err: err}
	}
	flushTask()

	plan.Notes = strings.TrimSpace(strings.Join(notes, "\n"))
	return plan, nil
}

// parseTaskHeading parses "### [m] ID: Title".
func parseTaskHeading(line string) (*scheduler.Task, error) {
	rest := strings.TrimPrefix(line, taskHeadingPrefix)
	if len(rest) < 2 || rest[1] != ']' {
		return nil, fmt.Errorf("malformed task heading %q", line)
	}
	status, ok := markerStatus[rest[0]]
	if !ok {
		return nil, fmt.Errorf("unknown status marker %q", rest[0])
	}

	rest = strings.TrimSpace(rest[2:])
	id, title, _ := strings.Cut(rest, ":")
	id = strings.TrimSpace(id)
	if id == "" || strings.ContainsAny(id, " \t") {
		return nil, fmt.Errorf("malformed task id in heading %q", line)
	}
	return &scheduler.Task{ID: id, Title: strings.TrimSpace(title), Status: status}, nil
}

func applyProperty(task *scheduler.Task, prop string) error {
	key, value, ok := strings.Cut(prop, ":")
	if !ok {
		return fmt.Errorf("property %q is not key: value", prop)
	}
	key = strings.ToLower(strings.TrimSpace(key))
	value = strings.TrimSpace(value)

	switch key {
	case "blocked_by", "depends_on":
		task.DependsOn = splitList(value)
	case "effort":
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid effort %q: %w", value, err)
		}
		if d < 0 {
			return fmt.Errorf("effort %q is negative", value)
		}
		task.Effort = d
	case "skill":
		task.Skill = value
	case "paths":
		task.Paths = splitList(value)
	case "rollback":
		task.Rollback = value
	case "attempts":
		n, err := strconv.Atoi(value)
		if err != nil || n < 0 {
			return fmt.Errorf("invalid attempts %q", value)
		}
		task.Attempts = n
	case "reason":
		task.Reason = value
	default:
		return fmt.Errorf("unknown property %q", key)
	}
	return nil
}

func splitList(value string) []string {
	var items []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}
