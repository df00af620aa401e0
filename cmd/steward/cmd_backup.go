package main

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"steward/internal/backup"
	"steward/internal/store"
	"steward/internal/workspace"
)

var (
	backupKeepFlag int
	backupYesFlag  bool
)

// backupCmd manages memory bank snapshots
var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Snapshot and restore the memory bank",
	Long: `Snapshots live under .claude/steward/backups/<id>/ with checksum
manifests. IDs are ULIDs, so snapshot order is creation order.

Subcommands:
  create   - Take a snapshot now
  list     - List snapshots, newest first (default)
  verify   - Recompute checksums for a snapshot
  prune    - Drop snapshots beyond the retention policy
  restore  - Copy a verified snapshot back over the memory bank`,
	RunE: runBackupList,
}

var backupCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Snapshot the memory bank",
	RunE:  runBackupCreate,
}

var backupListCmd = &cobra.Command{
	Use:   "list",
	Short: "List snapshots",
	RunE:  runBackupList,
}

var backupVerifyCmd = &cobra.Command{
	Use:   "verify <id|latest>",
	Short: "Verify a snapshot against its manifest",
	Args:  cobra.ExactArgs(1),
	RunE:  runBackupVerify,
}

var backupPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Remove old snapshots",
	RunE:  runBackupPrune,
}

var backupRestoreCmd = &cobra.Command{
	Use:   "restore <id|latest>",
	Short: "Restore a snapshot over the memory bank",
	Long: `Verifies the snapshot, takes a safety snapshot of the current
memory bank, then copies the snapshot files back. Refuses corrupt
sources. Requires --yes because it overwrites live memory files.`,
	Args: cobra.ExactArgs(1),
	RunE: runBackupRestore,
}

func init() {
	backupPruneCmd.Flags().IntVar(&backupKeepFlag, "keep", 0, "Snapshots to keep (default: config)")
	backupRestoreCmd.Flags().BoolVar(&backupYesFlag, "yes", false, "Confirm overwriting the live memory bank")

	backupCmd.AddCommand(backupCreateCmd, backupListCmd, backupVerifyCmd, backupPruneCmd, backupRestoreCmd)
	rootCmd.AddCommand(backupCmd)
}

// resolveSnapshotID expands the "latest" alias.
func resolveSnapshotID(root *workspace.Root, arg string) (string, error) {
	if arg != "latest" {
		return arg, nil
	}
	list, err := backup.List(root.BackupsDir())
	if err != nil {
		return "", err
	}
	if len(list) == 0 {
		return "", fmt.Errorf("no snapshots exist yet")
	}
	return list[0].ID, nil
}

func runBackupCreate(cmd *cobra.Command, args []string) error {
	root, cfg, err := loadWorkspace()
	if err != nil {
		return err
	}
	return withStore(root, func(st *store.Store) error {
		return runRecorded(st, "backup", func() error {
			manifest, err := backup.Create(cmd.Context(), root.MemoryDir(cfg.Memory.Dir), root.BackupsDir())
			if err != nil {
				return err
			}

			status := "ok"
			if cfg.Backup.VerifyAfterCreate {
				verify, err := backup.Verify(root.BackupsDir(), manifest.ID)
				if err != nil {
					return fmt.Errorf("failed to verify new snapshot: %w", err)
				}
				if !verify.OK {
					status = "corrupt"
				}
			}
			if err := st.RecordBackup(store.BackupRecord{
				ID:        manifest.ID,
				CreatedAt: manifest.CreatedAt,
				Files:     manifest.FileCount,
				Bytes:     manifest.TotalBytes,
				Status:    status,
			}); err != nil {
				logger.Warn("failed to record snapshot", zap.Error(err))
			}

			fmt.Printf("📦 Snapshot %s\n", manifest.ID)
			fmt.Printf("  %d files, %s\n", manifest.FileCount, humanize.Bytes(uint64(manifest.TotalBytes)))
			if status != "ok" {
				return fmt.Errorf("snapshot failed post-create verification")
			}
			fmt.Println("  ✓ verified")
			return nil
		})
	})
}

func runBackupList(cmd *cobra.Command, args []string) error {
	root, _, err := loadWorkspace()
	if err != nil {
		return err
	}
	list, err := backup.List(root.BackupsDir())
	if err != nil {
		return err
	}

	fmt.Println("📦 Snapshots")
	fmt.Println(strings.Repeat("─", 50))
	if len(list) == 0 {
		fmt.Println("No snapshots yet. Run 'steward backup create'.")
		return nil
	}
	var total int64
	for _, m := range list {
		fmt.Printf("  %s  %3d files  %8s  %s\n",
			m.ID, m.FileCount, humanize.Bytes(uint64(m.TotalBytes)), humanize.Time(m.CreatedAt))
		total += m.TotalBytes
	}
	fmt.Println(strings.Repeat("─", 50))
	fmt.Printf("Total: %d snapshots, %s\n", len(list), humanize.Bytes(uint64(total)))
	return nil
}

func runBackupVerify(cmd *cobra.Command, args []string) error {
	root, _, err := loadWorkspace()
	if err != nil {
		return err
	}
	id, err := resolveSnapshotID(root, args[0])
	if err != nil {
		return err
	}

	result, err := backup.Verify(root.BackupsDir(), id)
	if err != nil {
		return err
	}

	fmt.Printf("🔎 Verify %s\n", id)
	fmt.Println(strings.Repeat("─", 50))
	fmt.Printf("  %d files checked\n", result.Checked)
	for _, name := range result.Missing {
		fmt.Printf("  ✗ missing: %s\n", name)
	}
	for _, name := range result.Corrupt {
		fmt.Printf("  ✗ corrupt: %s\n", name)
	}
	for _, name := range result.Extra {
		fmt.Printf("  ⚠ extra: %s\n", name)
	}
	if result.OK {
		fmt.Println("  ✓ snapshot intact")
		return nil
	}
	return fmt.Errorf("snapshot %s failed verification", id)
}

func runBackupPrune(cmd *cobra.Command, args []string) error {
	root, cfg, err := loadWorkspace()
	if err != nil {
		return err
	}
	keep := cfg.Backup.Keep
	if backupKeepFlag > 0 {
		keep = backupKeepFlag
	}

	return withStore(root, func(st *store.Store) error {
		return runRecorded(st, "prune", func() error {
			result, err := backup.Prune(root.BackupsDir(), keep, cfg.GetBackupMaxAge())
			if err != nil {
				return err
			}
			for _, id := range result.Removed {
				if err := st.DeleteBackup(id); err != nil {
					logger.Warn("failed to drop snapshot record", zap.Error(err))
				}
			}

			fmt.Println("🧹 Prune")
			fmt.Println(strings.Repeat("─", 50))
			if len(result.Removed) == 0 {
				fmt.Println("Nothing to prune.")
				return nil
			}
			for _, id := range result.Removed {
				fmt.Printf("  ✓ removed %s\n", id)
			}
			fmt.Printf("Freed %s\n", humanize.Bytes(uint64(result.FreedBytes)))
			return nil
		})
	})
}

func runBackupRestore(cmd *cobra.Command, args []string) error {
	root, cfg, err := loadWorkspace()
	if err != nil {
		return err
	}
	id, err := resolveSnapshotID(root, args[0])
	if err != nil {
		return err
	}
	if !backupYesFlag {
		return fmt.Errorf("restore overwrites the live memory bank; re-run with --yes to confirm")
	}

	return withStore(root, func(st *store.Store) error {
		return runRecorded(st, "restore", func() error {
			result, err := backup.Restore(cmd.Context(), root.BackupsDir(), id, root.MemoryDir(cfg.Memory.Dir))
			if err != nil {
				return err
			}

			fmt.Printf("📦 Restored %s\n", id)
			fmt.Printf("  %d files copied back\n", result.Restored)
			fmt.Printf("  safety snapshot: %s\n", result.SafetyID)
			return nil
		})
	})
}
