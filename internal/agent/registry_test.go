package agent

import (
	"os"
	"path/filepath"
	"testing"
)

func writeAgent(t *testing.T, dir, name, description string) string {
	t.Helper()
	content := "---\nname: " + name + "\ndescription: " + description + "\n---\n\nPrompt body for " + name + ".\n"
	path := filepath.Join(dir, name+".md")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	return path
}

func TestLoadRegistry_SortedNames(t *testing.T) {
	dir := t.TempDir()
	writeAgent(t, dir, "zebra-handler", "handles zebras")
	writeAgent(t, dir, "api-designer", "designs apis")
	writeAgent(t, dir, "code-reviewer", "reviews code")

	reg, err := LoadRegistry(DefaultLimits(), dir)
	if err != nil {
		t.Fatalf("LoadRegistry failed: %v", err)
	}

	want := []string{"api-designer", "code-reviewer", "zebra-handler"}
	got := reg.Names()
	if len(got) != len(want) {
		t.Fatalf("expected %d agents, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("names[%d]: expected %s, got %s", i, want[i], got[i])
		}
	}
}

func TestLoadRegistry_ProjectShadowsUser(t *testing.T) {
	projectDir := t.TempDir()
	userDir := t.TempDir()

	writeAgent(t, projectDir, "code-reviewer", "project-level reviewer")
	writeAgent(t, userDir, "code-reviewer", "user-level reviewer")
	writeAgent(t, userDir, "test-writer", "writes tests")

	reg, err := LoadRegistry(DefaultLimits(), projectDir, userDir)
	if err != nil {
		t.Fatalf("LoadRegistry failed: %v", err)
	}

	if reg.Len() != 2 {
		t.Errorf("expected 2 agents, got %d", reg.Len())
	}
	a, ok := reg.Get("code-reviewer")
	if !ok {
		t.Fatal("code-reviewer missing")
	}
	if a.Description != "project-level reviewer" {
		t.Errorf("project definition should win, got %q", a.Description)
	}
	if len(reg.Shadowed()) != 1 {
		t.Errorf("expected 1 shadowed file, got %d", len(reg.Shadowed()))
	}
}

func TestLoadRegistry_RecordsProblems(t *testing.T) {
	dir := t.TempDir()
	writeAgent(t, dir, "good-agent", "fine")
	bad := filepath.Join(dir, "broken.md")
	if err := os.WriteFile(bad, []byte("no frontmatter here\n"), 0644); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	reg, err := LoadRegistry(DefaultLimits(), dir)
	if err != nil {
		t.Fatalf("LoadRegistry failed: %v", err)
	}

	if reg.Len() != 1 {
		t.Errorf("expected 1 good agent, got %d", reg.Len())
	}
	if len(reg.Problems()) != 1 {
		t.Fatalf("expected 1 problem, got %d", len(reg.Problems()))
	}
	if reg.Problems()[0].Path != bad {
		t.Errorf("problem path mismatch: %s", reg.Problems()[0].Path)
	}
}

func TestLoadRegistry_MissingDirSkipped(t *testing.T) {
	dir := t.TempDir()
	writeAgent(t, dir, "solo-agent", "alone")

	reg, err := LoadRegistry(DefaultLimits(), dir, filepath.Join(dir, "nope"))
	if err != nil {
		t.Fatalf("LoadRegistry failed: %v", err)
	}
	if reg.Len() != 1 {
		t.Errorf("expected 1 agent, got %d", reg.Len())
	}
}

func TestLoadRegistry_IgnoresNonMarkdown(t *testing.T) {
	dir := t.TempDir()
	writeAgent(t, dir, "real-agent", "real")
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0644); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	if err := os.MkdirAll(filepath.Join(dir, "subdir"), 0755); err != nil {
		t.Fatalf("mkdir failed: %v", err)
	}

	reg, err := LoadRegistry(DefaultLimits(), dir)
	if err != nil {
		t.Fatalf("LoadRegistry failed: %v", err)
	}
	if reg.Len() != 1 || len(reg.Problems()) != 0 {
		t.Errorf("expected 1 agent and no problems, got %d/%d", reg.Len(), len(reg.Problems()))
	}
}
