package main

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"steward/internal/store"
	"steward/internal/watch"
)

// watchCmd keeps the index fresh while files change
var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch the workspace and revalidate on change",
	Long: `Watches the memory bank and agent directories. Edited memory files
are revalidated and re-indexed once they settle; edited agent
definitions are re-parsed. Runs until interrupted.`,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	root, cfg, err := loadWorkspace()
	if err != nil {
		return err
	}

	wsLogger, closeLog := workspaceLogger(root, cfg)
	defer closeLog()

	return withStore(root, func(st *store.Store) error {
		agentDirs := []string{root.AgentsDir(cfg.Agents.Dir)}
		if userDir := cfg.GetUserAgentsDir(); userDir != "" {
			agentDirs = append(agentDirs, userDir)
		}
		w, err := watch.New(st, wsLogger, watch.Options{
			MemoryDir:       root.MemoryDir(cfg.Memory.Dir),
			AgentDirs:       agentDirs,
			Rules:           memoryRules(cfg),
			Limits:          agentLimits(cfg),
			Debounce:        cfg.GetWatchDebounce(),
			MaxEventsPerSec: cfg.Watch.MaxEventsPerSec,
		})
		if err != nil {
			return err
		}
		defer w.Stop()

		// Catch up on anything that changed while nobody was watching.
		if err := w.TriggerSync(cmd.Context()); err != nil {
			wsLogger.Warn("initial sync failed", zap.Error(err))
		}
		if err := w.Start(cmd.Context()); err != nil {
			return err
		}

		fmt.Println("👁  Watching workspace. Ctrl-C to stop.")
		fmt.Printf("  memory: %s\n", root.MemoryDir(cfg.Memory.Dir))
		for _, dir := range agentDirs {
			if _, err := os.Stat(dir); err == nil {
				fmt.Printf("  agents: %s\n", dir)
			}
		}

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		select {
		case <-sigCh:
		case <-cmd.Context().Done():
		}
		w.Stop()

		stats := w.Stats()
		fmt.Println()
		fmt.Println(strings.Repeat("─", 50))
		fmt.Printf("Events: %d seen, %d dropped\n", stats.EventsSeen, stats.Dropped)
		fmt.Printf("Work: %d validations, %d index updates, %d removals, %d failures\n",
			stats.Validations, stats.IndexUpdates, stats.Removals, stats.Failures)
		return nil
	})
}
