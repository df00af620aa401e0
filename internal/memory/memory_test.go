package memory

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeFile(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	return path
}

func freshRules() Rules {
	r := DefaultRules()
	// Pin the clock far enough ahead of file mtimes that nothing is stale
	r.Now = func() time.Time { return time.Now() }
	return r
}

func TestInspect_HealthyFile(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "project-brief.md", []byte("# Project Brief\n\nAll good here.\n"))

	f, err := Inspect(path, freshRules())
	if err != nil {
		t.Fatalf("Inspect failed: %v", err)
	}

	if f.Health != HealthOK {
		t.Errorf("expected ok health, got %s (issues: %v)", f.Health, f.Issues)
	}
	if f.Title != "Project Brief" {
		t.Errorf("expected title extraction, got %q", f.Title)
	}
	if f.Lines != 3 {
		t.Errorf("expected 3 lines, got %d", f.Lines)
	}
	if len(f.SHA256) != 64 {
		t.Errorf("expected hex sha256, got %q", f.SHA256)
	}
}

func TestInspect_EmptyFileCritical(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "empty.md", nil)

	f, err := Inspect(path, freshRules())
	if err != nil {
		t.Fatalf("Inspect failed: %v", err)
	}
	if f.Health != HealthCritical {
		t.Errorf("empty file should be critical, got %s", f.Health)
	}
}

func TestInspect_InvalidUTF8Critical(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "binary.md", []byte{0xff, 0xfe, 0x00, 0x41})

	f, err := Inspect(path, freshRules())
	if err != nil {
		t.Fatalf("Inspect failed: %v", err)
	}
	if f.Health != HealthCritical {
		t.Errorf("invalid utf-8 should be critical, got %s", f.Health)
	}
}

func TestInspect_SizeThresholds(t *testing.T) {
	dir := t.TempDir()
	rules := freshRules()
	rules.WarnFileBytes = 64
	rules.MaxFileBytes = 128
	rules.WarnFileLines = 0

	warn := writeFile(t, dir, "warn.md", append([]byte("# T\n"), bytes.Repeat([]byte("a"), 70)...))
	f, err := Inspect(warn, rules)
	if err != nil {
		t.Fatalf("Inspect failed: %v", err)
	}
	if f.Health != HealthWarn {
		t.Errorf("oversized file should warn, got %s", f.Health)
	}

	crit := writeFile(t, dir, "crit.md", append([]byte("# T\n"), bytes.Repeat([]byte("a"), 200)...))
	f, err = Inspect(crit, rules)
	if err != nil {
		t.Fatalf("Inspect failed: %v", err)
	}
	if f.Health != HealthCritical {
		t.Errorf("file above max should be critical, got %s", f.Health)
	}
}

func TestInspect_LineThreshold(t *testing.T) {
	dir := t.TempDir()
	rules := freshRules()
	rules.WarnFileLines = 5

	content := "# T\n" + strings.Repeat("line\n", 10)
	path := writeFile(t, dir, "long.md", []byte(content))

	f, err := Inspect(path, rules)
	if err != nil {
		t.Fatalf("Inspect failed: %v", err)
	}
	if f.Health != HealthWarn {
		t.Errorf("long file should warn, got %s", f.Health)
	}
}

func TestInspect_MissingTitle(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "untitled.md", []byte("just some text\n"))

	f, err := Inspect(path, freshRules())
	if err != nil {
		t.Fatalf("Inspect failed: %v", err)
	}
	if f.Health != HealthWarn {
		t.Errorf("missing title should warn, got %s", f.Health)
	}

	rules := freshRules()
	rules.RequireTitle = false
	f, err = Inspect(path, rules)
	if err != nil {
		t.Fatalf("Inspect failed: %v", err)
	}
	if f.Health != HealthOK {
		t.Errorf("title check disabled should be ok, got %s (issues: %v)", f.Health, f.Issues)
	}
}

func TestInspect_Staleness(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "old.md", []byte("# Old\n\ncontent\n"))
	old := time.Now().Add(-30 * 24 * time.Hour)
	if err := os.Chtimes(path, old, old); err != nil {
		t.Fatalf("chtimes failed: %v", err)
	}

	f, err := Inspect(path, freshRules())
	if err != nil {
		t.Fatalf("Inspect failed: %v", err)
	}
	if f.Health != HealthWarn {
		t.Errorf("stale file should warn, got %s", f.Health)
	}

	rules := freshRules()
	rules.StaleAfter = 0
	f, err = Inspect(path, rules)
	if err != nil {
		t.Fatalf("Inspect failed: %v", err)
	}
	if f.Health != HealthOK {
		t.Errorf("staleness disabled should be ok, got %s (issues: %v)", f.Health, f.Issues)
	}
}

func TestInspect_BrokenLinks(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "other.md", []byte("# Other\n"))
	content := "# Links\n\nGood: [other](other.md)\nBad: [gone](missing.md)\nExternal: [site](https://example.com)\nAnchor: [sec](#section)\n"
	path := writeFile(t, dir, "links.md", []byte(content))

	f, err := Inspect(path, freshRules())
	if err != nil {
		t.Fatalf("Inspect failed: %v", err)
	}

	brokenCount := 0
	for _, issue := range f.Issues {
		if strings.Contains(issue.Message, "broken link") {
			brokenCount++
			if !strings.Contains(issue.Message, "missing.md") {
				t.Errorf("unexpected broken link issue: %s", issue.Message)
			}
		}
	}
	if brokenCount != 1 {
		t.Errorf("expected exactly 1 broken link, got %d (issues: %v)", brokenCount, f.Issues)
	}
}

func TestFirstTitle(t *testing.T) {
	if got := firstTitle([]byte("\n\n# Hello World\n")); got != "Hello World" {
		t.Errorf("expected Hello World, got %q", got)
	}
	if got := firstTitle([]byte("text first\n# Later\n")); got != "" {
		t.Errorf("title after content should not count, got %q", got)
	}
	if got := firstTitle([]byte("## Subheading\n")); got != "" {
		t.Errorf("H2 is not a title, got %q", got)
	}
}

func TestCountLines(t *testing.T) {
	if got := countLines([]byte("a\nb\nc\n")); got != 3 {
		t.Errorf("expected 3, got %d", got)
	}
	if got := countLines([]byte("a\nb")); got != 2 {
		t.Errorf("no trailing newline should still count, got %d", got)
	}
	if got := countLines(nil); got != 0 {
		t.Errorf("expected 0, got %d", got)
	}
}
