package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"steward/internal/workspace"
)

// initCmd scaffolds the .claude workspace layout
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a steward workspace in the current directory",
	Long: `Creates the .claude workspace layout:

  .claude/
    agents/            sub-agent markdown definitions
    memory/            memory bank notes
    steward/           steward state (config, backups, logs, reports, index)

Writes a default steward.yaml and seeds starter memory files. Existing
files are never touched, so re-running is safe.`,
	RunE: runInit,
}

func init() {
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	dir := workspaceFlag
	if dir == "" {
		var err error
		dir, err = os.Getwd()
		if err != nil {
			return fmt.Errorf("failed to resolve working directory: %w", err)
		}
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("failed to resolve workspace path: %w", err)
	}

	result, err := workspace.Init(abs)
	if err != nil {
		return err
	}

	fmt.Println("🧹 steward init")
	fmt.Println(strings.Repeat("─", 50))
	if len(result.CreatedDirs) == 0 && len(result.SeededFiles) == 0 && !result.WroteConfig {
		fmt.Println("Workspace already initialized, nothing to do.")
		return nil
	}

	for _, d := range result.CreatedDirs {
		fmt.Printf("  ✓ created %s\n", relTo(abs, d))
	}
	if result.WroteConfig {
		fmt.Printf("  ✓ wrote default config\n")
	}
	for _, f := range result.SeededFiles {
		fmt.Printf("  ✓ seeded memory/%s\n", f)
	}
	fmt.Println(strings.Repeat("─", 50))
	fmt.Println("Next: drop agent definitions into .claude/agents/ and run 'steward doctor'.")
	return nil
}

// relTo shortens absolute paths in output when they sit under base.
func relTo(base, path string) string {
	rel, err := filepath.Rel(base, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return path
	}
	return rel
}
