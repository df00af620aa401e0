package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"steward/internal/config"
	"steward/internal/router"
	"steward/internal/store"
)

var (
	routeExplainFlag bool
	routeJSONFlag    bool
	routeTopFlag     int
)

// routeCmd routes a task description to an agent
var routeCmd = &cobra.Command{
	Use:   "route <task description>",
	Short: "Pick the agent best suited to a task",
	Long: `Scores the task against every registered agent using weighted
keyword matching over triggers, names, and descriptions. The same
registry and task always produce the same answer, and --explain shows
exactly which words scored.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRoute,
}

func init() {
	routeCmd.Flags().BoolVar(&routeExplainFlag, "explain", false, "Show per-candidate score breakdown")
	routeCmd.Flags().BoolVar(&routeJSONFlag, "json", false, "Emit the decision as JSON")
	routeCmd.Flags().IntVar(&routeTopFlag, "top", 3, "Candidates to show with --explain")
	rootCmd.AddCommand(routeCmd)
}

// routerOptions maps workspace config onto router options.
func routerOptions(cfg *config.Config) router.Options {
	return router.Options{
		Weights: router.Weights{
			Trigger:     cfg.Router.WeightTrigger,
			Name:        cfg.Router.WeightName,
			Description: cfg.Router.WeightDescription,
		},
		MinScore:     cfg.Router.MinScore,
		DefaultAgent: cfg.Router.DefaultAgent,
	}
}

func runRoute(cmd *cobra.Command, args []string) error {
	root, cfg, err := loadWorkspace()
	if err != nil {
		return err
	}
	reg, err := loadRegistry(root, cfg)
	if err != nil {
		return err
	}

	task := strings.Join(args, " ")
	r := router.New(reg, routerOptions(cfg))
	decision := r.Route(task)

	// Decision history feeds the dashboard; losing a row is not worth
	// failing the route over.
	if err := withStore(root, func(st *store.Store) error {
		return st.RecordDecision(decision.Task, decision.Agent, decision.Score, decision.Elapsed)
	}); err != nil {
		logger.Warn("failed to record routing decision", zap.Error(err))
	}

	if routeJSONFlag {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(decision)
	}

	fmt.Println("🎯 Route")
	fmt.Println(strings.Repeat("─", 50))
	switch {
	case decision.Agent == "":
		fmt.Println("  ✗ no agent matched and no default is configured")
	case decision.Fallback:
		fmt.Printf("  ⚠ %s (fallback, nothing scored above %.1f)\n", decision.Agent, cfg.Router.MinScore)
	default:
		fmt.Printf("  ✓ %s  score %.1f  confidence %.0f%%\n",
			decision.Agent, decision.Score, decision.Confidence*100)
	}

	if routeExplainFlag {
		fmt.Println()
		candidates := r.Explain(task)
		if len(candidates) == 0 {
			fmt.Println("  No agent scored against this task.")
		}
		top := routeTopFlag
		if top < 1 || top > len(candidates) {
			top = len(candidates)
		}
		for _, c := range candidates[:top] {
			fmt.Printf("  %-24s %6.1f\n", c.Agent, c.Score)
			for _, m := range c.Matched {
				fmt.Printf("    %-12s %q +%.1f\n", m.Field, m.Token, m.Score)
			}
		}
	}

	if decision.Agent == "" {
		return fmt.Errorf("no agent matched task %q", task)
	}
	return nil
}
