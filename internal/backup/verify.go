package backup

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
)

// VerifyResult classifies every file in a snapshot against its manifest.
type VerifyResult struct {
	ID      string   `json:"id"`
	OK      bool     `json:"ok"`
	Checked int      `json:"checked"`
	Missing []string `json:"missing,omitempty"`
	Corrupt []string `json:"corrupt,omitempty"`
	Extra   []string `json:"extra,omitempty"`
}

// Verify recomputes checksums for a snapshot. Files listed in the manifest
// but absent are missing; files with a different hash are corrupt; files on
// disk the manifest never recorded are extra.
func Verify(backupsDir, id string) (*VerifyResult, error) {
	m, err := Load(backupsDir, id)
	if err != nil {
		return nil, err
	}

	filesDir := filepath.Join(backupsDir, id, "files")
	result := &VerifyResult{ID: id}
	expected := make(map[string]ManifestFile, len(m.Files))
	for _, f := range m.Files {
		expected[f.Name] = f
	}

	for name, want := range expected {
		data, err := os.ReadFile(filepath.Join(filesDir, filepath.FromSlash(name)))
		if err != nil {
			result.Missing = append(result.Missing, name)
			continue
		}
		sum := sha256.Sum256(data)
		if hex.EncodeToString(sum[:]) != want.SHA256 {
			result.Corrupt = append(result.Corrupt, name)
			continue
		}
		result.Checked++
	}

	err = filepath.WalkDir(filesDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		rel, err := filepath.Rel(filesDir, path)
		if err != nil {
			return err
		}
		if _, ok := expected[filepath.ToSlash(rel)]; !ok {
			result.Extra = append(result.Extra, filepath.ToSlash(rel))
		}
		return nil
	})
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to walk snapshot files: %w", err)
	}

	sort.Strings(result.Missing)
	sort.Strings(result.Corrupt)
	sort.Strings(result.Extra)
	result.OK = len(result.Missing) == 0 && len(result.Corrupt) == 0 && len(result.Extra) == 0
	return result, nil
}

// RestoreResult reports a completed restore.
type RestoreResult struct {
	ID       string `json:"id"`
	SafetyID string `json:"safety_id"`
	Restored int    `json:"restored"`
}

// Restore copies a verified snapshot back over the memory bank. A safety
// snapshot of the current state is taken first so a bad restore can itself
// be rolled back.
func Restore(ctx context.Context, backupsDir, id, memoryDir string) (*RestoreResult, error) {
	verify, err := Verify(backupsDir, id)
	if err != nil {
		return nil, err
	}
	if !verify.OK {
		return nil, fmt.Errorf("snapshot %s failed verification (%d missing, %d corrupt, %d extra)",
			id, len(verify.Missing), len(verify.Corrupt), len(verify.Extra))
	}

	safety, err := Create(ctx, memoryDir, backupsDir)
	if err != nil {
		return nil, fmt.Errorf("failed to take pre-restore snapshot: %w", err)
	}

	m, err := Load(backupsDir, id)
	if err != nil {
		return nil, err
	}

	filesDir := filepath.Join(backupsDir, id, "files")
	result := &RestoreResult{ID: id, SafetyID: safety.ID}
	for _, f := range m.Files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		data, err := os.ReadFile(filepath.Join(filesDir, filepath.FromSlash(f.Name)))
		if err != nil {
			return nil, fmt.Errorf("failed to read snapshot file %s: %w", f.Name, err)
		}
		dst := filepath.Join(memoryDir, filepath.FromSlash(f.Name))
		if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
			return nil, fmt.Errorf("failed to create memory subdirectory: %w", err)
		}
		if err := os.WriteFile(dst, data, 0644); err != nil {
			return nil, fmt.Errorf("failed to restore %s: %w", f.Name, err)
		}
		result.Restored++
	}
	return result, nil
}
