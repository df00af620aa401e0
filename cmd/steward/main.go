// Package main is the steward CLI entry point: maintenance tooling for
// Claude-style agent workspaces (.claude directories).
package main

import (
	"fmt"
	"os"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"steward/internal/agent"
	"steward/internal/config"
	"steward/internal/logging"
	"steward/internal/memory"
	"steward/internal/store"
	"steward/internal/workspace"
)

const version = "0.3.0"

var (
	// Global flags
	workspaceFlag string
	verbose       bool
	noColor       bool

	// Logger
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:     "steward",
	Short:   "steward - maintenance for Claude agent workspaces",
	Version: version,
	Long: `steward keeps a .claude workspace healthy.

It validates sub-agent definitions and memory bank files, snapshots the
memory bank with checksum manifests, rotates backups and logs, records
run history in sqlite, routes tasks to agents with a transparent keyword
scorer, and renders dashboards of all of it.

Start with 'steward init' in a project, then 'steward maintain' from cron
or by hand.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// The TUI manages its own output; a stderr logger would paint
		// over it
		if cmd.Name() == "top" {
			logger = zap.NewNop()
			return nil
		}

		var err error
		logger, err = logging.New("info", verbose)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&workspaceFlag, "workspace", "w", "", "Workspace directory (default: current, searching upward)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// resolveRoot locates the workspace for the current invocation.
func resolveRoot() (*workspace.Root, error) {
	start := workspaceFlag
	if start == "" {
		start = "."
	}
	root, err := workspace.Find(start)
	if err != nil {
		return nil, fmt.Errorf("%w (run 'steward init' to create one)", err)
	}
	return root, nil
}

// loadWorkspace resolves the root and its config in one step.
func loadWorkspace() (*workspace.Root, *config.Config, error) {
	root, err := resolveRoot()
	if err != nil {
		return nil, nil, err
	}
	cfg, err := config.Load(root.ConfigPath())
	if err != nil {
		return nil, nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid config %s: %w", root.ConfigPath(), err)
	}
	return root, cfg, nil
}

// workspaceLogger upgrades the stderr logger to one that also writes the
// workspace log file. Used by the long-running and mutating commands.
func workspaceLogger(root *workspace.Root, cfg *config.Config) (*zap.Logger, func()) {
	wsLogger, closeFn, err := logging.NewWorkspace(root.LogsDir(), logOptions(cfg), verbose)
	if err != nil {
		logger.Warn("failed to open workspace log, continuing on stderr", zap.Error(err))
		return logger, func() {}
	}
	return wsLogger, closeFn
}

func logOptions(cfg *config.Config) logging.Options {
	return logging.Options{
		Level:    cfg.Logging.Level,
		File:     cfg.Logging.File,
		MaxBytes: cfg.Logging.MaxBytes,
		Keep:     cfg.Logging.Keep,
		Compress: cfg.Logging.Compress,
	}
}

func memoryRules(cfg *config.Config) memory.Rules {
	return memory.Rules{
		MaxFileBytes:  cfg.Memory.MaxFileBytes,
		WarnFileBytes: cfg.Memory.WarnFileBytes,
		WarnFileLines: cfg.Memory.WarnFileLines,
		StaleAfter:    cfg.GetStaleAfter(),
		RequireTitle:  cfg.Memory.RequireTitle,
	}
}

func agentLimits(cfg *config.Config) agent.Limits {
	return agent.Limits{
		MaxNameLength:        cfg.Agents.MaxNameLength,
		MaxDescriptionLength: cfg.Agents.MaxDescriptionLength,
	}
}

// loadRegistry loads the agent registry with the configured directories.
func loadRegistry(root *workspace.Root, cfg *config.Config) (*agent.Registry, error) {
	return agent.LoadRegistry(agentLimits(cfg),
		root.AgentsDir(cfg.Agents.Dir), cfg.GetUserAgentsDir())
}

// withStore opens the workspace index for the duration of fn.
func withStore(root *workspace.Root, fn func(st *store.Store) error) error {
	st, err := store.New(root.DBPath())
	if err != nil {
		return fmt.Errorf("failed to open workspace index: %w", err)
	}
	defer st.Close()
	return fn(st)
}

// runRecorded wraps fn with a run-history row so the dashboard can show
// when this kind of work last ran and how it went.
func runRecorded(st *store.Store, kind string, fn func() error) error {
	id, err := st.StartRun(kind)
	if err != nil {
		logger.Warn("failed to record run start", zap.Error(err))
		return fn()
	}
	runErr := fn()
	status, detail := store.RunOK, ""
	if runErr != nil {
		status, detail = store.RunFailed, runErr.Error()
	}
	if err := st.FinishRun(id, status, detail); err != nil {
		logger.Warn("failed to record run finish", zap.Error(err))
	}
	return runErr
}

// renderMarkdown pretty-prints markdown for the terminal, falling back to
// the raw text when color is off or the renderer cannot be built.
func renderMarkdown(md string) string {
	if noColor {
		return md
	}
	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(100),
	)
	if err != nil {
		return md
	}
	out, err := renderer.Render(md)
	if err != nil {
		return md
	}
	return out
}
