package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"steward/internal/maintain"
	"steward/internal/store"
	"steward/internal/workspace"
)

var maintainSkipBackupFlag bool

// maintainCmd runs the full maintenance pipeline
var maintainCmd = &cobra.Command{
	Use:   "maintain",
	Short: "Run the full maintenance pipeline",
	Long: `Runs every maintenance stage in order: scan the memory bank,
reconcile the file index, reload agents, snapshot, prune old snapshots,
rotate logs, and rewrite the dashboard reports. A failing stage is
recorded and the remaining stages still run. Concurrent runs are
excluded by a workspace lock.`,
	RunE: runMaintain,
}

func init() {
	maintainCmd.Flags().BoolVar(&maintainSkipBackupFlag, "skip-backup", false, "Skip the snapshot stage")
	rootCmd.AddCommand(maintainCmd)
}

func runMaintain(cmd *cobra.Command, args []string) error {
	root, cfg, err := loadWorkspace()
	if err != nil {
		return err
	}

	wsLogger, closeLog := workspaceLogger(root, cfg)
	defer closeLog()

	return withStore(root, func(st *store.Store) error {
		result, err := maintain.Run(cmd.Context(), maintain.Options{
			Root:       root,
			Config:     cfg,
			Store:      st,
			Logger:     wsLogger,
			SkipBackup: maintainSkipBackupFlag,
		})
		if err != nil {
			var locked *workspace.ErrLocked
			if errors.As(err, &locked) && locked.Info != nil {
				return fmt.Errorf("another steward run holds the lock (pid %d, %s); try again shortly",
					locked.Info.PID, locked.Info.Cmd)
			}
			return err
		}

		fmt.Println("🔧 Maintenance")
		fmt.Println(strings.Repeat("─", 50))
		for _, s := range result.Stages {
			mark := "✓"
			detail := s.Detail
			if s.Err != nil {
				mark = "✗"
				detail = s.Err.Error()
			}
			fmt.Printf("  %s %-10s %-38s %s\n", mark, s.Name, detail, s.Duration.Round(time.Millisecond))
		}
		fmt.Println(strings.Repeat("─", 50))
		fmt.Printf("Run %s finished in %s\n", result.RunID, result.Elapsed.Round(time.Millisecond))

		return result.Err()
	})
}
