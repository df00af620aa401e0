package memory

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestScan_SortedAndFiltered(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "progress.md", []byte("# Progress\n\nfine\n"))
	writeFile(t, dir, "active-context.md", []byte("# Active Context\n\nfine\n"))
	writeFile(t, dir, "notes.txt", []byte("not markdown"))

	hidden := filepath.Join(dir, ".snapshots")
	if err := os.MkdirAll(hidden, 0755); err != nil {
		t.Fatalf("mkdir failed: %v", err)
	}
	writeFile(t, hidden, "stale-copy.md", []byte("# Copy\n"))

	files, err := Scan(context.Background(), dir, freshRules())
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}

	if len(files) != 2 {
		t.Fatalf("expected 2 files, got %d", len(files))
	}
	if files[0].Name != "active-context.md" || files[1].Name != "progress.md" {
		t.Errorf("files not sorted by name: %s, %s", files[0].Name, files[1].Name)
	}
}

func TestScan_MissingDirIsEmpty(t *testing.T) {
	files, err := Scan(context.Background(), filepath.Join(t.TempDir(), "nope"), freshRules())
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	if len(files) != 0 {
		t.Errorf("expected empty scan, got %d files", len(files))
	}
}

func TestScan_NestedDirs(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "decisions")
	if err := os.MkdirAll(sub, 0755); err != nil {
		t.Fatalf("mkdir failed: %v", err)
	}
	writeFile(t, dir, "top.md", []byte("# Top\n\nx\n"))
	writeFile(t, sub, "adr-001.md", []byte("# ADR 001\n\nx\n"))

	files, err := Scan(context.Background(), dir, freshRules())
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	if len(files) != 2 {
		t.Errorf("expected nested files to be scanned, got %d", len(files))
	}
}

func TestScan_CancelledContext(t *testing.T) {
	dir := t.TempDir()
	for i := 0; i < 20; i++ {
		writeFile(t, dir, string(rune('a'+i))+".md", []byte("# F\n\nx\n"))
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := Scan(ctx, dir, freshRules()); err == nil {
		t.Error("expected error from cancelled context")
	}
}

func TestSummarize(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "big.md", []byte("# Big\n\nplenty of content here\n"))
	writeFile(t, dir, "empty.md", nil)

	files, err := Scan(context.Background(), dir, freshRules())
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}

	s := Summarize(files)
	if s.Files != 2 {
		t.Errorf("expected 2 files, got %d", s.Files)
	}
	if s.ByHealth[HealthCritical] != 1 {
		t.Errorf("expected 1 critical, got %d", s.ByHealth[HealthCritical])
	}
	if s.Largest != "big.md" {
		t.Errorf("expected big.md largest, got %s", s.Largest)
	}
	if s.IssueCount == 0 {
		t.Error("expected at least one issue counted")
	}
}

func TestSummarize_Empty(t *testing.T) {
	s := Summarize(nil)
	if s.Files != 0 || s.Largest != "" {
		t.Errorf("empty summary should be zero, got %+v", s)
	}
}
