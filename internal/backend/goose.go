package backend

import (
	"bufio"
	"bytes"
	"encoding/json"
	"strings"
)

type gooseMessage struct {
	Content string `json:"content"`
}

// Goose reaches local LLM servers (ollama, lmstudio, llama.cpp) through
// --provider and --model.
var gooseDialect = dialect{
	name:    "goose",
	binary:  "goose",
	session: func() string { return "waverunner-" + newSessionID()[:8] },
	args: func(cfg Config, prompt, system, session string) []string {
		args := []string{"run", "--text", prompt, "--output-format", "json", "--name", session}
		if cfg.Provider != "" {
			args = append(args, "--provider", cfg.Provider)
		}
		if cfg.Model != "" {
			args = append(args, "--model", cfg.Model)
		}
		if system != "" {
			args = append(args, "--system", system)
		}
		return args
	},
	parse: parseGooseOutput,
}

// parseGooseOutput accepts a single JSON object, a stream of them, or plain
// text from versions that ignore --output-format.
func parseGooseOutput(data []byte) (Response, error) {
	var msg gooseMessage
	if err := json.Unmarshal(data, &msg); err == nil {
		return Response{Content: msg.Content}, nil
	}

	var parts []string
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 10*1024*1024)
	for scanner.Scan() {
		var line gooseMessage
		if json.Unmarshal(bytes.TrimSpace(scanner.Bytes()), &line) == nil && line.Content != "" {
			parts = append(parts, line.Content)
		}
	}
	if len(parts) > 0 {
		return Response{Content: strings.Join(parts, "\n")}, nil
	}
	return Response{Content: string(data)}, nil
}
