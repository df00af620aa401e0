package workspace

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"steward/internal/config"
)

// CheckStatus classifies a doctor check result.
type CheckStatus string

const (
	CheckOK   CheckStatus = "ok"
	CheckWarn CheckStatus = "warn"
	CheckFail CheckStatus = "fail"
)

// Check is a single doctor finding.
type Check struct {
	Name   string      `json:"name"`
	Status CheckStatus `json:"status"`
	Detail string      `json:"detail,omitempty"`
}

// Doctor validates the workspace layout, config, and lock state. It never
// mutates anything; callers decide what to do with warnings.
func Doctor(root *Root) []Check {
	var checks []Check

	add := func(name string, status CheckStatus, detail string) {
		checks = append(checks, Check{Name: name, Status: status, Detail: detail})
	}

	if fi, err := os.Stat(root.ClaudeDir()); err != nil || !fi.IsDir() {
		add("claude dir", CheckFail, root.ClaudeDir()+" missing")
		return checks
	}
	add("claude dir", CheckOK, root.ClaudeDir())

	cfg, err := config.Load(root.ConfigPath())
	if err != nil {
		add("config", CheckFail, err.Error())
		cfg = config.DefaultConfig()
	} else if verr := cfg.Validate(); verr != nil {
		add("config", CheckWarn, verr.Error())
	} else {
		add("config", CheckOK, root.ConfigPath())
	}

	checkDir := func(name, path string, countGlob string) {
		fi, err := os.Stat(path)
		if err != nil || !fi.IsDir() {
			add(name, CheckWarn, path+" missing (run steward init)")
			return
		}
		matches, _ := filepath.Glob(filepath.Join(path, countGlob))
		add(name, CheckOK, fmt.Sprintf("%d files", len(matches)))
	}

	checkDir("agents dir", root.AgentsDir(cfg.Agents.Dir), "*.md")
	checkDir("memory dir", root.MemoryDir(cfg.Memory.Dir), "*.md")

	// State dir must be writable for backups, logs, and the index
	if err := checkWritable(root.StateDir()); err != nil {
		add("state dir", CheckFail, err.Error())
	} else {
		add("state dir", CheckOK, root.StateDir())
	}

	locker := NewLocker(root.LockPath())
	info, err := locker.Holder()
	switch {
	case os.IsNotExist(err):
		add("maintenance lock", CheckOK, "not held")
	case err != nil:
		add("maintenance lock", CheckWarn, "lock file unreadable: "+err.Error())
	case locker.stale(info):
		add("maintenance lock", CheckWarn, fmt.Sprintf("stale lock from pid %d", info.PID))
	default:
		add("maintenance lock", CheckWarn, fmt.Sprintf("held by pid %d", info.PID))
	}

	return checks
}

// Healthy reports whether no check failed outright.
func Healthy(checks []Check) bool {
	for _, c := range checks {
		if c.Status == CheckFail {
			return false
		}
	}
	return true
}

// Summarize renders a one-line rollup like "6 ok, 1 warn".
func Summarize(checks []Check) string {
	counts := map[CheckStatus]int{}
	for _, c := range checks {
		counts[c.Status]++
	}
	var parts []string
	for _, s := range []CheckStatus{CheckOK, CheckWarn, CheckFail} {
		if counts[s] > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", counts[s], s))
		}
	}
	if len(parts) == 0 {
		return "no checks"
	}
	return strings.Join(parts, ", ")
}

func checkWritable(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}
	probe := filepath.Join(dir, ".doctor-probe")
	if err := os.WriteFile(probe, []byte("ok"), 0644); err != nil {
		return fmt.Errorf("%s not writable: %w", dir, err)
	}
	return os.Remove(probe)
}
