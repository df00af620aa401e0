// Package agent parses and validates Claude sub-agent markdown definitions:
// a YAML frontmatter block describing the agent, then the prompt body.
package agent

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

var namePattern = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)

// Agent is a parsed sub-agent definition.
type Agent struct {
	Name        string
	Description string
	Tools       []string
	Model       string
	Color       string
	Priority    int
	Triggers    []string
	Path        string
	Body        string
}

// Limits bounds frontmatter field sizes during validation.
type Limits struct {
	MaxNameLength        int
	MaxDescriptionLength int
}

// DefaultLimits returns the validation limits used when no config is loaded.
func DefaultLimits() Limits {
	return Limits{MaxNameLength: 64, MaxDescriptionLength: 1024}
}

// toolsField accepts both YAML forms seen in the wild: a comma-separated
// scalar ("Read, Grep, Bash") and a proper sequence.
type toolsField []string

func (t *toolsField) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		var raw string
		if err := value.Decode(&raw); err != nil {
			return err
		}
		*t = splitCommaList(raw)
		return nil
	case yaml.SequenceNode:
		var list []string
		if err := value.Decode(&list); err != nil {
			return err
		}
		out := make([]string, 0, len(list))
		for _, item := range list {
			if item = strings.TrimSpace(item); item != "" {
				out = append(out, item)
			}
		}
		*t = out
		return nil
	default:
		return fmt.Errorf("tools must be a string or a list")
	}
}

type frontmatter struct {
	Name        string     `yaml:"name"`
	Description string     `yaml:"description"`
	Tools       toolsField `yaml:"tools"`
	Model       string     `yaml:"model"`
	Color       string     `yaml:"color"`
	Priority    int        `yaml:"priority"`
	Triggers    []string   `yaml:"triggers"`
}

// ParseFile reads, parses, and validates one agent definition.
func ParseFile(path string, limits Limits) (*Agent, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read agent file %s: %w", path, err)
	}
	a, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse agent file %s: %w", path, err)
	}
	a.Path = path
	if err := a.Validate(limits); err != nil {
		return nil, fmt.Errorf("invalid agent file %s: %w", path, err)
	}
	return a, nil
}

// Parse decodes frontmatter and prompt body from agent markdown.
func Parse(data []byte) (*Agent, error) {
	fmBytes, body, err := splitFrontmatter(data)
	if err != nil {
		return nil, err
	}

	var fm frontmatter
	if err := yaml.Unmarshal(fmBytes, &fm); err != nil {
		return nil, fmt.Errorf("failed to parse frontmatter: %w", err)
	}

	triggers := make([]string, 0, len(fm.Triggers))
	for _, tr := range fm.Triggers {
		if tr = strings.TrimSpace(strings.ToLower(tr)); tr != "" {
			triggers = append(triggers, tr)
		}
	}

	return &Agent{
		Name:        strings.TrimSpace(fm.Name),
		Description: strings.TrimSpace(fm.Description),
		Tools:       []string(fm.Tools),
		Model:       strings.TrimSpace(fm.Model),
		Color:       strings.TrimSpace(fm.Color),
		Priority:    fm.Priority,
		Triggers:    triggers,
		Body:        body,
	}, nil
}

// Validate enforces naming and field rules. Path, when set, must agree with
// the declared name so routing and file lookup never diverge.
func (a *Agent) Validate(limits Limits) error {
	if a.Name == "" {
		return fmt.Errorf("agent name is required")
	}
	if len(a.Name) > limits.MaxNameLength {
		return fmt.Errorf("agent name exceeds %d characters", limits.MaxNameLength)
	}
	if !namePattern.MatchString(a.Name) {
		return fmt.Errorf("agent name %q must be lowercase kebab-case", a.Name)
	}

	if a.Description == "" {
		return fmt.Errorf("agent description is required")
	}
	if len(a.Description) > limits.MaxDescriptionLength {
		return fmt.Errorf("agent description exceeds %d characters", limits.MaxDescriptionLength)
	}

	if a.Priority < 0 {
		return fmt.Errorf("agent priority must be non-negative, got %d", a.Priority)
	}

	if a.Path != "" {
		base := strings.TrimSuffix(filepath.Base(a.Path), ".md")
		if base != a.Name {
			return fmt.Errorf("agent name %q does not match file %q", a.Name, filepath.Base(a.Path))
		}
	}

	return nil
}

// Lint reports non-fatal findings about an agent definition.
func (a *Agent) Lint() []string {
	var notes []string
	if strings.TrimSpace(a.Body) == "" {
		notes = append(notes, "prompt body is empty")
	}
	if strings.Contains(a.Body, "UltraThink") {
		notes = append(notes, "prompt references the UltraThink directive")
	}
	if len(a.Triggers) == 0 && a.Description == "" {
		notes = append(notes, "no triggers or description for routing")
	}
	return notes
}

// splitFrontmatter separates the leading --- block from the body. Line
// endings are normalized so files written on Windows parse the same.
func splitFrontmatter(data []byte) ([]byte, string, error) {
	text := strings.ReplaceAll(string(data), "\r\n", "\n")
	if !strings.HasPrefix(text, "---\n") {
		return nil, "", fmt.Errorf("missing frontmatter delimiter")
	}

	lines := strings.Split(text, "\n")
	end := -1
	for i := 1; i < len(lines); i++ {
		if strings.TrimRight(lines[i], " \t") == "---" {
			end = i
			break
		}
	}
	if end == -1 {
		return nil, "", fmt.Errorf("missing closing frontmatter delimiter")
	}

	fmBlock := strings.Join(lines[1:end], "\n")
	body := strings.Join(lines[end+1:], "\n")
	body = strings.TrimPrefix(body, "\n")
	return []byte(fmBlock), body, nil
}

func splitCommaList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
