// Package memory models the .claude memory bank: markdown notes that agents
// read and write between sessions, and the health rules steward holds them to.
package memory

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"
)

// Health classifies a memory file.
type Health string

const (
	HealthOK       Health = "ok"
	HealthWarn     Health = "warn"
	HealthCritical Health = "critical"
)

// Issue is a single validation finding.
type Issue struct {
	Level   Health `json:"level"`
	Message string `json:"message"`
}

// File is an inspected memory bank file.
type File struct {
	Path     string    `json:"path"`
	Name     string    `json:"name"`
	Size     int64     `json:"size"`
	Lines    int       `json:"lines"`
	Modified time.Time `json:"modified"`
	SHA256   string    `json:"sha256"`
	Title    string    `json:"title,omitempty"`
	Issues   []Issue   `json:"issues,omitempty"`
	Health   Health    `json:"health"`
}

// Rules bounds what counts as a healthy memory file. Zero thresholds
// disable the corresponding check.
type Rules struct {
	MaxFileBytes  int64
	WarnFileBytes int64
	WarnFileLines int
	StaleAfter    time.Duration
	RequireTitle  bool
	Now           func() time.Time
}

// DefaultRules returns the rules used when no config is loaded.
func DefaultRules() Rules {
	return Rules{
		MaxFileBytes:  96 * 1024,
		WarnFileBytes: 48 * 1024,
		WarnFileLines: 600,
		StaleAfter:    14 * 24 * time.Hour,
		RequireTitle:  true,
	}
}

func (r Rules) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

var linkPattern = regexp.MustCompile(`\[[^\]]*\]\(([^)\s]+)\)`)

// Inspect reads one memory file and applies the health rules to it.
func Inspect(path string, rules Rules) (File, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return File{}, fmt.Errorf("failed to stat memory file: %w", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return File{}, fmt.Errorf("failed to read memory file: %w", err)
	}

	sum := sha256.Sum256(data)
	f := File{
		Path:     path,
		Name:     filepath.Base(path),
		Size:     int64(len(data)),
		Lines:    countLines(data),
		Modified: fi.ModTime(),
		SHA256:   hex.EncodeToString(sum[:]),
		Title:    firstTitle(data),
	}

	f.Issues = validate(f, data, rules)
	f.Health = worst(f.Issues)
	return f, nil
}

// IssueMessages flattens findings for index rows and log fields.
func (f File) IssueMessages() []string {
	if len(f.Issues) == 0 {
		return nil
	}
	msgs := make([]string, len(f.Issues))
	for i, issue := range f.Issues {
		msgs[i] = issue.Message
	}
	return msgs
}

// validate applies every rule and returns the findings.
func validate(f File, data []byte, rules Rules) []Issue {
	var issues []Issue
	add := func(level Health, format string, args ...interface{}) {
		issues = append(issues, Issue{Level: level, Message: fmt.Sprintf(format, args...)})
	}

	if len(data) == 0 {
		add(HealthCritical, "file is empty")
		return issues
	}
	if !utf8.Valid(data) {
		add(HealthCritical, "file is not valid UTF-8")
		return issues
	}

	if rules.MaxFileBytes > 0 && f.Size > rules.MaxFileBytes {
		add(HealthCritical, "file is %d bytes, above the %d byte limit", f.Size, rules.MaxFileBytes)
	} else if rules.WarnFileBytes > 0 && f.Size > rules.WarnFileBytes {
		add(HealthWarn, "file is %d bytes, above the %d byte advisory threshold", f.Size, rules.WarnFileBytes)
	}

	if rules.WarnFileLines > 0 && f.Lines > rules.WarnFileLines {
		add(HealthWarn, "file has %d lines, above the %d line advisory threshold", f.Lines, rules.WarnFileLines)
	}

	if rules.RequireTitle && f.Title == "" {
		add(HealthWarn, "missing leading H1 title")
	}

	if rules.StaleAfter > 0 {
		if age := rules.now().Sub(f.Modified); age > rules.StaleAfter {
			add(HealthWarn, "not updated in %s", age.Round(time.Hour))
		}
	}

	for _, target := range brokenLinks(f.Path, data) {
		add(HealthWarn, "broken link: %s", target)
	}

	return issues
}

// brokenLinks returns relative markdown link targets that do not resolve
// next to the file. External and anchor links are ignored.
func brokenLinks(path string, data []byte) []string {
	dir := filepath.Dir(path)
	var broken []string
	for _, m := range linkPattern.FindAllSubmatch(data, -1) {
		target := string(m[1])
		if strings.Contains(target, "://") || strings.HasPrefix(target, "#") || strings.HasPrefix(target, "mailto:") {
			continue
		}
		// Drop any fragment before resolving
		if i := strings.IndexByte(target, '#'); i >= 0 {
			target = target[:i]
		}
		if target == "" {
			continue
		}
		resolved := target
		if !filepath.IsAbs(resolved) {
			resolved = filepath.Join(dir, resolved)
		}
		if _, err := os.Stat(resolved); err != nil {
			broken = append(broken, target)
		}
	}
	return broken
}

func worst(issues []Issue) Health {
	health := HealthOK
	for _, issue := range issues {
		if issue.Level == HealthCritical {
			return HealthCritical
		}
		if issue.Level == HealthWarn {
			health = HealthWarn
		}
	}
	return health
}

func countLines(data []byte) int {
	if len(data) == 0 {
		return 0
	}
	n := strings.Count(string(data), "\n")
	if data[len(data)-1] != '\n' {
		n++
	}
	return n
}

// firstTitle returns the first H1 heading, if the file starts with one
// before any other content.
func firstTitle(data []byte) string {
	for _, line := range strings.Split(string(data), "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if strings.HasPrefix(trimmed, "# ") {
			return strings.TrimSpace(trimmed[2:])
		}
		return ""
	}
	return ""
}
