package workspace

import (
	"fmt"
	"os"
	"path/filepath"

	"steward/internal/config"
)

// InitResult reports what Init created and what it left alone.
type InitResult struct {
	Root        string
	CreatedDirs []string
	SeededFiles []string
	WroteConfig bool
}

// starterMemory seeds an empty memory bank so agents have somewhere to
// write from the first session on.
var starterMemory = map[string]string{
	"project-brief.md": `# Project Brief

Describe what this project is and why it exists. Agents read this file
first when orienting in the workspace.
`,
	"active-context.md": `# Active Context

Current focus, recent decisions, and open threads. Keep this short; move
finished work into progress.md.
`,
	"progress.md": `# Progress

What works, what remains, and known issues.
`,
}

// Init scaffolds the .claude workspace layout in dir. Existing files and
// directories are left untouched, so re-running is safe.
func Init(dir string) (*InitResult, error) {
	root := &Root{Path: dir}
	result := &InitResult{Root: dir}

	cfg, err := config.Load(root.ConfigPath())
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	dirs := []string{
		root.ClaudeDir(),
		root.AgentsDir(cfg.Agents.Dir), // sub-agent markdown definitions
		root.MemoryDir(cfg.Memory.Dir), // memory bank notes
		root.StateDir(),
		root.BackupsDir(), // snapshot backups
		root.LogsDir(),    // rotated steward logs
		root.ReportsDir(), // generated dashboards
	}

	for _, d := range dirs {
		if _, err := os.Stat(d); err == nil {
			continue
		}
		if err := os.MkdirAll(d, 0755); err != nil {
			return nil, fmt.Errorf("failed to create %s: %w", d, err)
		}
		result.CreatedDirs = append(result.CreatedDirs, d)
	}

	if _, err := os.Stat(root.ConfigPath()); os.IsNotExist(err) {
		if err := cfg.Save(root.ConfigPath()); err != nil {
			return nil, fmt.Errorf("failed to write default config: %w", err)
		}
		result.WroteConfig = true
	}

	// Keep steward's state out of version control
	gitignorePath := filepath.Join(root.StateDir(), ".gitignore")
	if _, err := os.Stat(gitignorePath); os.IsNotExist(err) {
		gitignoreContent := `# steward local state
backups/
logs/
reports/
index.db
index.db-journal
*.lock
`
		if err := os.WriteFile(gitignorePath, []byte(gitignoreContent), 0644); err != nil {
			return nil, fmt.Errorf("failed to create .gitignore: %w", err)
		}
	}

	memoryDir := root.MemoryDir(cfg.Memory.Dir)
	for name, content := range starterMemory {
		path := filepath.Join(memoryDir, name)
		if _, err := os.Stat(path); err == nil {
			continue
		}
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			return nil, fmt.Errorf("failed to seed %s: %w", name, err)
		}
		result.SeededFiles = append(result.SeededFiles, name)
	}

	return result, nil
}
