package backend

import (
	"encoding/json"
	"fmt"
)

// claudeResult is the single JSON object printed by `claude -p --output-format json`.
type claudeResult struct {
	SessionID string `json:"session_id"`
	Result    string `json:"result"`
	IsError   bool   `json:"is_error"`
}

var claudeDialect = dialect{
	name:    "claude",
	binary:  "claude",
	session: newSessionID,
	args: func(cfg Config, prompt, system, session string) []string {
		args := []string{"-p", prompt, "--output-format", "json", "--session-id", session}
		if cfg.Model != "" {
			args = append(args, "--model", cfg.Model)
		}
		if system != "" {
			args = append(args, "--system-prompt", system)
		}
		return args
	},
	parse: parseClaudeResult,
}

// parseClaudeResult reads the result object. A result flagged as an error is
// returned as an error carrying its text.
func parseClaudeResult(data []byte) (Response, error) {
	var res claudeResult
	if err := json.Unmarshal(data, &res); err != nil {
		return Response{}, fmt.Errorf("failed to unmarshal response JSON: %w", err)
	}
	if res.IsError {
		return Response{SessionID: res.SessionID}, fmt.Errorf("claude reported an error: %s", res.Result)
	}
	return Response{Content: res.Result, SessionID: res.SessionID}, nil
}
