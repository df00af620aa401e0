package backup

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestVerify_CleanSnapshot(t *testing.T) {
	memoryDir := t.TempDir()
	backupsDir := t.TempDir()
	seedMemory(t, memoryDir, map[string]string{
		"a.md":     "# A\n\naaa\n",
		"sub/b.md": "# B\n\nbbb\n",
	})

	m, err := Create(context.Background(), memoryDir, backupsDir)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	result, err := Verify(backupsDir, m.ID)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if !result.OK {
		t.Errorf("fresh snapshot should verify clean: %+v", result)
	}
	if result.Checked != 2 {
		t.Errorf("expected 2 checked, got %d", result.Checked)
	}
}

func TestVerify_DetectsCorruption(t *testing.T) {
	memoryDir := t.TempDir()
	backupsDir := t.TempDir()
	seedMemory(t, memoryDir, map[string]string{"a.md": "# A\n", "b.md": "# B\n"})

	m, err := Create(context.Background(), memoryDir, backupsDir)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	filesDir := filepath.Join(backupsDir, m.ID, "files")
	if err := os.WriteFile(filepath.Join(filesDir, "a.md"), []byte("tampered"), 0644); err != nil {
		t.Fatalf("tamper failed: %v", err)
	}
	if err := os.Remove(filepath.Join(filesDir, "b.md")); err != nil {
		t.Fatalf("remove failed: %v", err)
	}
	if err := os.WriteFile(filepath.Join(filesDir, "extra.md"), []byte("surprise"), 0644); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	result, err := Verify(backupsDir, m.ID)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if result.OK {
		t.Error("tampered snapshot should not verify")
	}
	if len(result.Corrupt) != 1 || result.Corrupt[0] != "a.md" {
		t.Errorf("expected a.md corrupt, got %v", result.Corrupt)
	}
	if len(result.Missing) != 1 || result.Missing[0] != "b.md" {
		t.Errorf("expected b.md missing, got %v", result.Missing)
	}
	if len(result.Extra) != 1 || result.Extra[0] != "extra.md" {
		t.Errorf("expected extra.md extra, got %v", result.Extra)
	}
}

func TestVerify_UnknownSnapshot(t *testing.T) {
	if _, err := Verify(t.TempDir(), "01JUNKSNAPSHOTID"); err == nil {
		t.Error("expected error for unknown snapshot")
	}
}

func TestRestore_RoundTrip(t *testing.T) {
	memoryDir := t.TempDir()
	backupsDir := t.TempDir()
	seedMemory(t, memoryDir, map[string]string{
		"a.md":     "# A\n\noriginal\n",
		"sub/b.md": "# B\n\noriginal\n",
	})

	m, err := Create(context.Background(), memoryDir, backupsDir)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	// Damage the live bank
	if err := os.WriteFile(filepath.Join(memoryDir, "a.md"), []byte("# A\n\nclobbered\n"), 0644); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	if err := os.RemoveAll(filepath.Join(memoryDir, "sub")); err != nil {
		t.Fatalf("remove failed: %v", err)
	}

	result, err := Restore(context.Background(), backupsDir, m.ID, memoryDir)
	if err != nil {
		t.Fatalf("Restore failed: %v", err)
	}
	if result.Restored != 2 {
		t.Errorf("expected 2 restored, got %d", result.Restored)
	}
	if result.SafetyID == "" || result.SafetyID == m.ID {
		t.Errorf("expected distinct safety snapshot, got %q", result.SafetyID)
	}

	data, err := os.ReadFile(filepath.Join(memoryDir, "a.md"))
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if string(data) != "# A\n\noriginal\n" {
		t.Errorf("content not restored, got %q", string(data))
	}
	if _, err := os.Stat(filepath.Join(memoryDir, "sub", "b.md")); err != nil {
		t.Errorf("nested file not restored: %v", err)
	}

	// The safety snapshot preserves the clobbered state
	safety, err := Verify(backupsDir, result.SafetyID)
	if err != nil {
		t.Fatalf("safety Verify failed: %v", err)
	}
	if !safety.OK {
		t.Errorf("safety snapshot should verify: %+v", safety)
	}
}

func TestRestore_RefusesCorruptSnapshot(t *testing.T) {
	memoryDir := t.TempDir()
	backupsDir := t.TempDir()
	seedMemory(t, memoryDir, map[string]string{"a.md": "# A\n"})

	m, err := Create(context.Background(), memoryDir, backupsDir)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := os.WriteFile(filepath.Join(backupsDir, m.ID, "files", "a.md"), []byte("bad"), 0644); err != nil {
		t.Fatalf("tamper failed: %v", err)
	}

	if _, err := Restore(context.Background(), backupsDir, m.ID, memoryDir); err == nil {
		t.Error("expected restore of corrupt snapshot to fail")
	}
}
