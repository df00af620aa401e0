package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"steward/internal/bench"
	"steward/internal/router"
	"steward/internal/store"
)

var (
	benchFixturesFlag   string
	benchIterationsFlag int
	benchJSONFlag       bool
)

// benchCmd benchmarks the router against a fixture suite
var benchCmd = &cobra.Command{
	Use:   "bench",
	Short: "Measure routing latency and accuracy",
	Long: `Routes a suite of tasks repeatedly and reports latency percentiles
plus accuracy against expected agents. Without --fixtures a synthetic
suite is derived from the registry's own trigger phrases. Reports land
in .claude/steward/reports/.`,
	RunE: runBench,
}

func init() {
	benchCmd.Flags().StringVar(&benchFixturesFlag, "fixtures", "", "YAML suite file (default: config, else synthetic)")
	benchCmd.Flags().IntVar(&benchIterationsFlag, "iterations", 0, "Routing passes per case (default: config)")
	benchCmd.Flags().BoolVar(&benchJSONFlag, "json", false, "Emit the full result as JSON")
	rootCmd.AddCommand(benchCmd)
}

func runBench(cmd *cobra.Command, args []string) error {
	root, cfg, err := loadWorkspace()
	if err != nil {
		return err
	}
	reg, err := loadRegistry(root, cfg)
	if err != nil {
		return err
	}
	if len(reg.All()) == 0 {
		return fmt.Errorf("no agents registered, nothing to benchmark")
	}

	fixtures := benchFixturesFlag
	if fixtures == "" {
		fixtures = cfg.Bench.Fixtures
	}
	var suite *bench.Suite
	if fixtures != "" {
		suite, err = bench.LoadSuite(fixtures)
		if err != nil {
			return fmt.Errorf("failed to load bench suite: %w", err)
		}
	} else {
		suite = bench.SyntheticSuite(reg)
	}

	opts := bench.Options{Iterations: cfg.Bench.Iterations, Warmup: cfg.Bench.Warmup}
	if benchIterationsFlag > 0 {
		opts.Iterations = benchIterationsFlag
	}

	return withStore(root, func(st *store.Store) error {
		return runRecorded(st, "bench", func() error {
			r := router.New(reg, routerOptions(cfg))
			result := bench.Run(r, suite, opts)

			if err := bench.WriteReports(root.ReportsDir(), result); err != nil {
				return fmt.Errorf("failed to write bench reports: %w", err)
			}

			if benchJSONFlag {
				data, err := result.JSON()
				if err != nil {
					return err
				}
				os.Stdout.Write(data)
				fmt.Println()
				return nil
			}

			fmt.Println("⏱  Bench")
			fmt.Println(strings.Repeat("─", 50))
			fmt.Printf("  %-12s %d cases × %d iterations (%d samples)\n",
				"workload", result.Cases, result.Iterations, result.Samples)
			fmt.Printf("  %-12s p50 %s  p95 %s  p99 %s  max %s\n", "latency",
				time.Duration(result.Latency.P50), time.Duration(result.Latency.P95),
				time.Duration(result.Latency.P99), time.Duration(result.Latency.Max))
			if result.Scored > 0 {
				fmt.Printf("  %-12s %d/%d (%.0f%%)\n", "accuracy",
					result.Matched, result.Scored, result.Accuracy*100)
			}
			for _, m := range result.Mismatches {
				fmt.Printf("  ✗ %q routed to %q, want %q\n", m.Task, m.Got, m.Want)
			}
			fmt.Println(strings.Repeat("─", 50))
			fmt.Printf("Reports written to %s\n", root.ReportsDir())
			return nil
		})
	})
}
