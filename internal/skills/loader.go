package skills

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

// skillFrontmatter is the YAML frontmatter structure for skill files.
type skillFrontmatter struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	Keywords    []string `yaml:"keywords"`
	Paths       []string `yaml:"paths"`
	Agent       string   `yaml:"agent"`
}

// skillFileName is the file looked up inside a per-skill directory.
const skillFileName = "SKILL.md"

// LoadDirectory reads skill files from dir into providers. Both layouts are
// accepted: <dir>/<id>.md and <dir>/<id>/SKILL.md. A missing directory yields
// no providers.
func LoadDirectory(dir string) ([]Provider, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil // no skill dir is fine
		}
		return nil, fmt.Errorf("skills: read dir %q: %w", dir, err)
	}

	var providers []Provider
	for _, entry := range entries {
		var id, fpath string
		switch {
		case entry.IsDir():
			id = entry.Name()
			fpath = filepath.Join(dir, id, skillFileName)
			if _, err := os.Stat(fpath); err != nil {
				continue
			}
		case strings.HasSuffix(entry.Name(), ".md"):
			id = strings.TrimSuffix(entry.Name(), ".md")
			fpath = filepath.Join(dir, entry.Name())
		default:
			continue
		}

		data, err := os.ReadFile(fpath)
		if err != nil {
			return nil, fmt.Errorf("skills: read file %q: %w", fpath, err)
		}
		p, err := parseSkillFile(id, data)
		if err != nil {
			return nil, fmt.Errorf("skills: parse %q: %w", fpath, err)
		}
		providers = append(providers, *p)
	}
	return providers, nil
}

// parseSkillFile parses a markdown file with YAML frontmatter into a Provider.
func parseSkillFile(id string, data []byte) (*Provider, error) {
	content := strings.TrimSpace(string(data))

	var fm skillFrontmatter
	body := content

	// Frontmatter is delimited by --- lines
	if strings.HasPrefix(content, "---") {
		parts := strings.SplitN(content, "---", 3)
		// parts[0] is empty (before first ---), parts[1] is YAML, parts[2] is body
		if len(parts) >= 3 {
			if err := yaml.Unmarshal([]byte(parts[1]), &fm); err != nil {
				return nil, fmt.Errorf("parse frontmatter: %w", err)
			}
			body = strings.TrimSpace(parts[2])
		}
	}

	name := fm.Name
	if name == "" {
		// Fall back to an id-based name
		name = strings.NewReplacer("-", " ", "_", " ").Replace(id)
		name = cases.Title(language.English).String(name)
	}

	return &Provider{
		ID:          id,
		Name:        name,
		Description: fm.Description,
		Keywords:    fm.Keywords,
		Paths:       fm.Paths,
		Agent:       fm.Agent,
		Content:     body,
	}, nil
}
