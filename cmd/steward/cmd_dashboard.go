package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"steward/internal/backup"
	"steward/internal/config"
	"steward/internal/memory"
	"steward/internal/report"
	"steward/internal/store"
	"steward/internal/workspace"
)

var (
	dashboardFormatFlag string
	dashboardOutputFlag string
)

// dashboardCmd renders the workspace dashboard
var dashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Show workspace health at a glance",
	Long: `Gathers agent, memory, backup, and run state into one dashboard.
Formats: terminal (styled, default), markdown, json. Use 'steward top'
for the live full-screen view.`,
	RunE: runDashboard,
}

func init() {
	dashboardCmd.Flags().StringVar(&dashboardFormatFlag, "format", "terminal", "Output format: terminal, markdown, json")
	dashboardCmd.Flags().StringVarP(&dashboardOutputFlag, "output", "o", "", "Write to file instead of stdout")
	rootCmd.AddCommand(dashboardCmd)
}

// gatherReport assembles a dashboard snapshot from live workspace state.
// Partial inputs degrade to empty sections rather than failing the whole
// dashboard; only a broken memory scan is fatal.
func gatherReport(cmd *cobra.Command, root *workspace.Root, cfg *config.Config, st *store.Store) (*report.Report, error) {
	files, err := memory.Scan(cmd.Context(), root.MemoryDir(cfg.Memory.Dir), memoryRules(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to scan memory bank: %w", err)
	}

	reg, err := loadRegistry(root, cfg)
	if err != nil {
		logger.Warn("failed to load agent registry", zap.Error(err))
		reg = nil
	}

	backups, err := backup.List(root.BackupsDir())
	if err != nil {
		logger.Warn("failed to list snapshots", zap.Error(err))
	}

	var runs []store.Run
	if st != nil {
		runs, err = st.RecentRuns(10)
		if err != nil {
			logger.Warn("failed to load run history", zap.Error(err))
		}
	}

	return report.Build(report.Input{
		Workspace: root.Path,
		Registry:  reg,
		Memory:    files,
		Backups:   backups,
		Runs:      runs,
	}), nil
}

func runDashboard(cmd *cobra.Command, args []string) error {
	root, cfg, err := loadWorkspace()
	if err != nil {
		return err
	}

	return withStore(root, func(st *store.Store) error {
		rep, err := gatherReport(cmd, root, cfg, st)
		if err != nil {
			return err
		}

		var out []byte
		switch dashboardFormatFlag {
		case "terminal":
			out = []byte(rep.Terminal(noColor))
		case "markdown":
			out = []byte(rep.Markdown())
		case "json":
			out, err = rep.JSON()
			if err != nil {
				return err
			}
			out = append(out, '\n')
		default:
			return fmt.Errorf("unknown format %q (want terminal, markdown, or json)", dashboardFormatFlag)
		}

		if dashboardOutputFlag != "" {
			if err := os.WriteFile(dashboardOutputFlag, out, 0644); err != nil {
				return fmt.Errorf("failed to write dashboard: %w", err)
			}
			fmt.Printf("✓ dashboard written to %s\n", dashboardOutputFlag)
			return nil
		}
		os.Stdout.Write(out)
		return nil
	})
}
