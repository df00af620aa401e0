// Package backup snapshots the memory bank into .claude/steward/backups and
// rotates old snapshots out. Every snapshot carries a checksum manifest so
// restores can refuse corrupt sources.
package backup

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

const manifestName = "manifest.json"

// ManifestFile is one file recorded in a snapshot manifest.
type ManifestFile struct {
	Name   string `json:"name"` // slash-separated path relative to the memory dir
	Size   int64  `json:"size"`
	SHA256 string `json:"sha256"`
}

// Manifest describes a snapshot.
type Manifest struct {
	ID         string         `json:"id"`
	CreatedAt  time.Time      `json:"created_at"`
	Source     string         `json:"source"`
	FileCount  int            `json:"file_count"`
	TotalBytes int64          `json:"total_bytes"`
	Files      []ManifestFile `json:"files"`
}

// newSnapshotID returns a ULID: sortable by creation time, safe as a
// directory name.
func newSnapshotID(now time.Time) string {
	id, err := ulid.New(ulid.Timestamp(now), ulid.Monotonic(rand.Reader, 0))
	if err != nil {
		return fmt.Sprintf("%d", now.UnixNano())
	}
	return id.String()
}

// Create snapshots every markdown file under memoryDir into a new snapshot
// directory. The snapshot appears atomically: files land in a temp dir that
// is renamed into place once the manifest is written.
func Create(ctx context.Context, memoryDir, backupsDir string) (*Manifest, error) {
	now := time.Now().UTC()
	id := newSnapshotID(now)

	var relPaths []string
	err := filepath.WalkDir(memoryDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if strings.HasPrefix(d.Name(), ".") && path != memoryDir {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(d.Name(), ".md") {
			return nil
		}
		rel, err := filepath.Rel(memoryDir, path)
		if err != nil {
			return err
		}
		relPaths = append(relPaths, rel)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk memory directory: %w", err)
	}
	sort.Strings(relPaths)

	if err := os.MkdirAll(backupsDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create backups directory: %w", err)
	}

	tmpDir := filepath.Join(backupsDir, ".tmp-"+id)
	filesDir := filepath.Join(tmpDir, "files")
	if err := os.MkdirAll(filesDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create snapshot directory: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	manifest := &Manifest{
		ID:        id,
		CreatedAt: now,
		Source:    memoryDir,
	}

	for _, rel := range relPaths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		data, err := os.ReadFile(filepath.Join(memoryDir, rel))
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", rel, err)
		}

		dst := filepath.Join(filesDir, rel)
		if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
			return nil, fmt.Errorf("failed to create snapshot subdirectory: %w", err)
		}
		if err := os.WriteFile(dst, data, 0644); err != nil {
			return nil, fmt.Errorf("failed to copy %s: %w", rel, err)
		}

		sum := sha256.Sum256(data)
		manifest.Files = append(manifest.Files, ManifestFile{
			Name:   filepath.ToSlash(rel),
			Size:   int64(len(data)),
			SHA256: hex.EncodeToString(sum[:]),
		})
		manifest.TotalBytes += int64(len(data))
	}
	manifest.FileCount = len(manifest.Files)

	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal manifest: %w", err)
	}
	if err := os.WriteFile(filepath.Join(tmpDir, manifestName), data, 0644); err != nil {
		return nil, fmt.Errorf("failed to write manifest: %w", err)
	}

	finalDir := filepath.Join(backupsDir, id)
	if err := os.Rename(tmpDir, finalDir); err != nil {
		return nil, fmt.Errorf("failed to finalize snapshot: %w", err)
	}
	return manifest, nil
}

// List returns manifests for all snapshots, newest first. Snapshot IDs are
// ULIDs, so lexicographic order is creation order.
func List(backupsDir string) ([]Manifest, error) {
	entries, err := os.ReadDir(backupsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read backups directory: %w", err)
	}

	var manifests []Manifest
	for _, entry := range entries {
		if !entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		m, err := Load(backupsDir, entry.Name())
		if err != nil {
			// A half-deleted snapshot should not hide the rest
			continue
		}
		manifests = append(manifests, *m)
	}

	sort.Slice(manifests, func(i, j int) bool { return manifests[i].ID > manifests[j].ID })
	return manifests, nil
}

// Load reads one snapshot's manifest.
func Load(backupsDir, id string) (*Manifest, error) {
	data, err := os.ReadFile(filepath.Join(backupsDir, id, manifestName))
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest for %s: %w", id, err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest for %s: %w", id, err)
	}
	return &m, nil
}

// PruneResult reports what Prune removed.
type PruneResult struct {
	Removed    []string `json:"removed"`
	FreedBytes int64    `json:"freed_bytes"`
}

// Prune removes snapshots beyond keep and snapshots older than maxAge.
// The newest snapshot always survives, whatever its age. maxAge <= 0
// disables age-based pruning.
func Prune(backupsDir string, keep int, maxAge time.Duration) (*PruneResult, error) {
	if keep < 1 {
		keep = 1
	}

	manifests, err := List(backupsDir)
	if err != nil {
		return nil, err
	}

	result := &PruneResult{}
	now := time.Now().UTC()
	for i, m := range manifests {
		if i == 0 {
			continue
		}
		tooMany := i >= keep
		tooOld := maxAge > 0 && now.Sub(m.CreatedAt) > maxAge
		if !tooMany && !tooOld {
			continue
		}
		if err := os.RemoveAll(filepath.Join(backupsDir, m.ID)); err != nil {
			return result, fmt.Errorf("failed to remove snapshot %s: %w", m.ID, err)
		}
		result.Removed = append(result.Removed, m.ID)
		result.FreedBytes += m.TotalBytes
	}
	return result, nil
}
