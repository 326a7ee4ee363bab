package persistence

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/aristath/waverunner/internal/scheduler"
)

// Codec converts a plan to and from the bytes of a backing document.
type Codec interface {
	Name() string
	Encode(plan *scheduler.Plan) ([]byte, error)
	Decode(data []byte) (*scheduler.Plan, error)
}

// CodecByName returns the codec for a document format name.
func CodecByName(name string) (Codec, error) {
	switch strings.ToLower(name) {
	case "markdown", "md":
		return MarkdownCodec{}, nil
	case "yaml", "yml":
		return YAMLCodec{}, nil
	}
	return nil, fmt.Errorf("unknown document format %q", name)
}

// CodecForPath picks a codec from the file extension, falling back to the named default.
func CodecForPath(path, fallback string) (Codec, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return YAMLCodec{}, nil
	case ".md", ".markdown":
		return MarkdownCodec{}, nil
	}
	return CodecByName(fallback)
}

// formatEffort renders a duration without trailing zero units ("1h", "2h30m", "90s").
func formatEffort(d time.Duration) string {
	s := d.String()
	if strings.HasSuffix(s, "m0s") {
		s = s[:len(s)-2]
	}
	if strings.HasSuffix(s, "h0m") {
		s = s[:len(s)-2]
	}
	return s
}

var newlines = strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ")

// singleLine folds a multi-line value into one line.
func singleLine(s string) string {
	return strings.TrimSpace(newlines.Replace(s))
}
