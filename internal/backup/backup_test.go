package backup

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func seedMemory(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		path := filepath.Join(dir, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			t.Fatalf("mkdir failed: %v", err)
		}
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatalf("write failed: %v", err)
		}
	}
}

func TestCreate_SnapshotWithManifest(t *testing.T) {
	memoryDir := t.TempDir()
	backupsDir := t.TempDir()
	seedMemory(t, memoryDir, map[string]string{
		"project-brief.md":     "# Brief\n\ncontent\n",
		"decisions/adr-001.md": "# ADR 001\n\ndecision\n",
		"scratch.txt":          "not markdown",
	})

	m, err := Create(context.Background(), memoryDir, backupsDir)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if m.FileCount != 2 {
		t.Errorf("expected 2 files in snapshot, got %d", m.FileCount)
	}
	if m.ID == "" {
		t.Error("snapshot id missing")
	}

	copied := filepath.Join(backupsDir, m.ID, "files", "decisions", "adr-001.md")
	if _, err := os.Stat(copied); err != nil {
		t.Errorf("nested file not copied: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(backupsDir, m.ID, "manifest.json"))
	if err != nil {
		t.Fatalf("manifest missing: %v", err)
	}
	var loaded Manifest
	if err := json.Unmarshal(data, &loaded); err != nil {
		t.Fatalf("manifest unparseable: %v", err)
	}
	if loaded.TotalBytes != m.TotalBytes {
		t.Errorf("manifest bytes mismatch: %d vs %d", loaded.TotalBytes, m.TotalBytes)
	}
}

func TestCreate_IDsSortChronologically(t *testing.T) {
	memoryDir := t.TempDir()
	backupsDir := t.TempDir()
	seedMemory(t, memoryDir, map[string]string{"a.md": "# A\n"})

	first, err := Create(context.Background(), memoryDir, backupsDir)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	time.Sleep(2 * time.Millisecond)
	second, err := Create(context.Background(), memoryDir, backupsDir)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if !(second.ID > first.ID) {
		t.Errorf("later snapshot should sort after earlier: %s vs %s", first.ID, second.ID)
	}

	list, err := List(backupsDir)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(list) != 2 || list[0].ID != second.ID {
		t.Errorf("List should return newest first, got %+v", list)
	}
}

func TestList_EmptyDir(t *testing.T) {
	list, err := List(filepath.Join(t.TempDir(), "nope"))
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(list) != 0 {
		t.Errorf("expected no snapshots, got %d", len(list))
	}
}

func TestPrune_KeepsNewest(t *testing.T) {
	memoryDir := t.TempDir()
	backupsDir := t.TempDir()
	seedMemory(t, memoryDir, map[string]string{"a.md": "# A\n"})

	var ids []string
	for i := 0; i < 4; i++ {
		m, err := Create(context.Background(), memoryDir, backupsDir)
		if err != nil {
			t.Fatalf("Create failed: %v", err)
		}
		ids = append(ids, m.ID)
		time.Sleep(2 * time.Millisecond)
	}

	result, err := Prune(backupsDir, 2, 0)
	if err != nil {
		t.Fatalf("Prune failed: %v", err)
	}
	if len(result.Removed) != 2 {
		t.Errorf("expected 2 removed, got %v", result.Removed)
	}

	list, err := List(backupsDir)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 remaining, got %d", len(list))
	}
	if list[0].ID != ids[3] || list[1].ID != ids[2] {
		t.Errorf("newest snapshots should survive, got %s, %s", list[0].ID, list[1].ID)
	}
}

func TestPrune_AgeBased(t *testing.T) {
	memoryDir := t.TempDir()
	backupsDir := t.TempDir()
	seedMemory(t, memoryDir, map[string]string{"a.md": "# A\n"})

	old, err := Create(context.Background(), memoryDir, backupsDir)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	// Age the first snapshot by rewriting its manifest timestamp
	agedManifest := filepath.Join(backupsDir, old.ID, "manifest.json")
	old.CreatedAt = time.Now().UTC().Add(-40 * 24 * time.Hour)
	data, _ := json.MarshalIndent(old, "", "  ")
	if err := os.WriteFile(agedManifest, data, 0644); err != nil {
		t.Fatalf("rewrite failed: %v", err)
	}

	time.Sleep(2 * time.Millisecond)
	fresh, err := Create(context.Background(), memoryDir, backupsDir)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	result, err := Prune(backupsDir, 10, 30*24*time.Hour)
	if err != nil {
		t.Fatalf("Prune failed: %v", err)
	}
	if len(result.Removed) != 1 || result.Removed[0] != old.ID {
		t.Errorf("expected aged snapshot pruned, got %v", result.Removed)
	}

	list, _ := List(backupsDir)
	if len(list) != 1 || list[0].ID != fresh.ID {
		t.Errorf("fresh snapshot should survive, got %+v", list)
	}
}

func TestPrune_SoleSnapshotSurvivesAnyAge(t *testing.T) {
	memoryDir := t.TempDir()
	backupsDir := t.TempDir()
	seedMemory(t, memoryDir, map[string]string{"a.md": "# A\n"})

	m, err := Create(context.Background(), memoryDir, backupsDir)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	manifest := filepath.Join(backupsDir, m.ID, "manifest.json")
	m.CreatedAt = time.Now().UTC().Add(-100 * 24 * time.Hour)
	data, _ := json.MarshalIndent(m, "", "  ")
	if err := os.WriteFile(manifest, data, 0644); err != nil {
		t.Fatalf("rewrite failed: %v", err)
	}

	result, err := Prune(backupsDir, 1, 24*time.Hour)
	if err != nil {
		t.Fatalf("Prune failed: %v", err)
	}
	if len(result.Removed) != 0 {
		t.Errorf("sole snapshot must never be pruned, got %v", result.Removed)
	}
}
