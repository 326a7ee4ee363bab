package backend

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
)

// codexEvent is one line of `codex exec --json`. Only the fields of the
// events read below are decoded.
type codexEvent struct {
	Type     string `json:"type"`
	ThreadID string `json:"thread_id"`
	Content  string `json:"content"`
	Error    string `json:"error"`
}

// Codex has no system prompt flag, so the system prompt leads the prompt.
// Threads are named by codex itself.
var codexDialect = dialect{
	name:    "codex",
	binary:  "codex",
	session: func() string { return "" },
	args: func(cfg Config, prompt, system, _ string) []string {
		if system != "" {
			prompt = system + "\n\n" + prompt
		}
		args := []string{"exec", prompt, "--json"}
		if cfg.Model != "" {
			args = append(args, "--model", cfg.Model)
		}
		return args
	},
	parse: parseCodexEvents,
}

// parseCodexEvents reads the event stream. The last TurnCompleted content is
// the answer; a TurnFailed event ends the stream with an error.
func parseCodexEvents(data []byte) (Response, error) {
	var resp Response

	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 10*1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var evt codexEvent
		if err := json.Unmarshal(line, &evt); err != nil {
			return resp, fmt.Errorf("failed to parse event: %w", err)
		}
		switch evt.Type {
		case "ThreadStarted":
			resp.SessionID = evt.ThreadID
		case "TurnCompleted":
			resp.Content = evt.Content
		case "TurnFailed":
			return resp, fmt.Errorf("turn failed: %s", evt.Error)
		}
	}
	if err := scanner.Err(); err != nil {
		return resp, fmt.Errorf("error reading events: %w", err)
	}
	return resp, nil
}
