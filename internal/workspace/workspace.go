// Package workspace locates, scaffolds, and guards the .claude directory
// steward maintains.
package workspace

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

const (
	// ClaudeDirName is the dotdir that marks a workspace root.
	ClaudeDirName = ".claude"

	// stateDirName is steward's own subdirectory inside .claude/.
	stateDirName = "steward"

	configFileName = "steward.yaml"
	dbFileName     = "index.db"
	lockFileName   = "maintenance.lock"
)

// ErrNotFound indicates no .claude directory exists here or in any parent.
var ErrNotFound = errors.New("no .claude workspace found")

// Root is a resolved workspace: the directory that contains .claude/.
type Root struct {
	Path string
}

// Find walks from start up the directory tree until it finds a .claude dir,
// the same way git discovers its repository root.
func Find(start string) (*Root, error) {
	dir, err := filepath.Abs(start)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve workspace path: %w", err)
	}

	for {
		candidate := filepath.Join(dir, ClaudeDirName)
		if fi, err := os.Stat(candidate); err == nil && fi.IsDir() {
			return &Root{Path: dir}, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return nil, ErrNotFound
		}
		dir = parent
	}
}

// ClaudeDir returns the .claude directory.
func (r *Root) ClaudeDir() string {
	return filepath.Join(r.Path, ClaudeDirName)
}

// AgentsDir returns the sub-agent definitions directory for the configured
// directory name.
func (r *Root) AgentsDir(name string) string {
	return filepath.Join(r.ClaudeDir(), name)
}

// MemoryDir returns the memory bank directory for the configured name.
func (r *Root) MemoryDir(name string) string {
	return filepath.Join(r.ClaudeDir(), name)
}

// StateDir returns steward's own state directory.
func (r *Root) StateDir() string {
	return filepath.Join(r.ClaudeDir(), stateDirName)
}

// BackupsDir returns the snapshot directory.
func (r *Root) BackupsDir() string {
	return filepath.Join(r.StateDir(), "backups")
}

// LogsDir returns the log directory.
func (r *Root) LogsDir() string {
	return filepath.Join(r.StateDir(), "logs")
}

// ReportsDir returns the generated dashboard directory.
func (r *Root) ReportsDir() string {
	return filepath.Join(r.StateDir(), "reports")
}

// ConfigPath returns the steward.yaml location.
func (r *Root) ConfigPath() string {
	return filepath.Join(r.StateDir(), configFileName)
}

// DBPath returns the sqlite index location.
func (r *Root) DBPath() string {
	return filepath.Join(r.StateDir(), dbFileName)
}

// LockPath returns the maintenance lock location.
func (r *Root) LockPath() string {
	return filepath.Join(r.StateDir(), lockFileName)
}
