package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"steward/internal/memory"
	"steward/internal/store"
)

// memoryCmd manages the memory bank
var memoryCmd = &cobra.Command{
	Use:   "memory",
	Short: "Inspect and validate the memory bank",
	Long: `Works with the markdown notes under .claude/memory/.

Subcommands:
  status    - Bank totals and health rollup (default)
  validate  - Per-file findings; exits non-zero on critical files
  show      - Show one memory file with its health record`,
	RunE: runMemoryStatus,
}

var memoryStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show memory bank totals and health",
	RunE:  runMemoryStatus,
}

var memoryValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate every memory file",
	RunE:  runMemoryValidate,
}

var memoryShowCmd = &cobra.Command{
	Use:   "show <file>",
	Short: "Show one memory file",
	Args:  cobra.ExactArgs(1),
	RunE:  runMemoryShow,
}

func init() {
	memoryCmd.AddCommand(memoryStatusCmd, memoryValidateCmd, memoryShowCmd)
	rootCmd.AddCommand(memoryCmd)
}

func healthMark(h memory.Health) string {
	switch h {
	case memory.HealthCritical:
		return "✗"
	case memory.HealthWarn:
		return "⚠"
	default:
		return "✓"
	}
}

func runMemoryStatus(cmd *cobra.Command, args []string) error {
	root, cfg, err := loadWorkspace()
	if err != nil {
		return err
	}
	files, err := memory.Scan(cmd.Context(), root.MemoryDir(cfg.Memory.Dir), memoryRules(cfg))
	if err != nil {
		return err
	}
	summary := memory.Summarize(files)

	fmt.Println("🧠 Memory Bank")
	fmt.Println(strings.Repeat("─", 50))
	if summary.Files == 0 {
		fmt.Println("No memory files found.")
		fmt.Printf("Seed the bank with 'steward init' or add notes under %s\n",
			root.MemoryDir(cfg.Memory.Dir))
		return nil
	}

	fmt.Printf("  %-10s %d files, %s, %d lines\n", "size",
		summary.Files, humanize.Bytes(uint64(summary.TotalBytes)), summary.TotalLines)
	fmt.Printf("  %-10s %d ok, %d warn, %d critical (%d findings)\n", "health",
		summary.ByHealth[memory.HealthOK],
		summary.ByHealth[memory.HealthWarn],
		summary.ByHealth[memory.HealthCritical],
		summary.IssueCount)
	if summary.Largest != "" {
		fmt.Printf("  %-10s %s\n", "largest", summary.Largest)
	}
	if summary.Stalest != "" {
		fmt.Printf("  %-10s %s\n", "stalest", summary.Stalest)
	}
	fmt.Println(strings.Repeat("─", 50))

	for _, f := range files {
		fmt.Printf("  %s %-28s %8s  %s\n", healthMark(f.Health), f.Name,
			humanize.Bytes(uint64(f.Size)), humanize.Time(f.Modified))
	}
	return nil
}

func runMemoryValidate(cmd *cobra.Command, args []string) error {
	root, cfg, err := loadWorkspace()
	if err != nil {
		return err
	}
	return withStore(root, func(st *store.Store) error {
		return runRecorded(st, "validate", func() error {
			files, err := memory.Scan(cmd.Context(), root.MemoryDir(cfg.Memory.Dir), memoryRules(cfg))
			if err != nil {
				return err
			}

			fmt.Println("🔎 Memory validation")
			fmt.Println(strings.Repeat("─", 50))

			critical := 0
			for _, f := range files {
				fmt.Printf("  %s %s\n", healthMark(f.Health), f.Name)
				for _, issue := range f.Issues {
					fmt.Printf("      [%s] %s\n", issue.Level, issue.Message)
				}
				if f.Health == memory.HealthCritical {
					critical++
				}
			}
			if len(files) == 0 {
				fmt.Println("No memory files found.")
			}

			fmt.Println(strings.Repeat("─", 50))
			summary := memory.Summarize(files)
			fmt.Printf("%d files, %d findings\n", summary.Files, summary.IssueCount)

			if critical > 0 {
				return fmt.Errorf("%d memory files in critical state", critical)
			}
			return nil
		})
	})
}

func runMemoryShow(cmd *cobra.Command, args []string) error {
	root, cfg, err := loadWorkspace()
	if err != nil {
		return err
	}

	// Accept either a bare file name in the bank or a real path
	path := args[0]
	if !strings.ContainsRune(path, os.PathSeparator) {
		path = filepath.Join(root.MemoryDir(cfg.Memory.Dir), path)
	}

	f, err := memory.Inspect(path, memoryRules(cfg))
	if err != nil {
		return err
	}

	fmt.Printf("🧠 %s\n", f.Name)
	fmt.Println(strings.Repeat("─", 50))
	fmt.Printf("  %-10s %s (%s)\n", "health", f.Health, healthMark(f.Health))
	fmt.Printf("  %-10s %s, %d lines\n", "size", humanize.Bytes(uint64(f.Size)), f.Lines)
	fmt.Printf("  %-10s %s\n", "modified", humanize.Time(f.Modified))
	fmt.Printf("  %-10s %s\n", "sha256", f.SHA256[:16])

	// The index keys rows by bank-relative path, same as the watcher
	rel, relErr := filepath.Rel(root.MemoryDir(cfg.Memory.Dir), path)
	if relErr != nil {
		rel = f.Name
	}
	rel = filepath.ToSlash(rel)
	if err := withStore(root, func(st *store.Store) error {
		points, err := st.FileTrend(rel, 5)
		if err != nil {
			return err
		}
		for i, p := range points {
			label := ""
			if i == 0 {
				label = "history"
			}
			fmt.Printf("  %-10s %s, %d lines, %s (%s)\n", label,
				humanize.Bytes(uint64(p.Size)), p.Lines, p.Health, humanize.Time(p.IndexedAt))
		}
		return nil
	}); err != nil {
		logger.Warn("failed to load file history", zap.Error(err))
	}

	for _, issue := range f.Issues {
		fmt.Printf("  ⚠ [%s] %s\n", issue.Level, issue.Message)
	}
	fmt.Println(strings.Repeat("─", 50))

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read memory file: %w", err)
	}
	fmt.Print(renderMarkdown(string(data)))
	return nil
}
