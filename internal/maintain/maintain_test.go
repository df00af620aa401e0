package maintain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"steward/internal/backup"
	"steward/internal/config"
	"steward/internal/store"
	"steward/internal/workspace"
)

type fixture struct {
	root *workspace.Root
	cfg  *config.Config
	st   *store.Store
}

// newFixture scaffolds a workspace with two memory files and one agent.
func newFixture(t *testing.T) fixture {
	t.Helper()
	dir := t.TempDir()

	memoryDir := filepath.Join(dir, ".claude", "memory")
	agentsDir := filepath.Join(dir, ".claude", "agents")
	for _, d := range []string{memoryDir, agentsDir} {
		if err := os.MkdirAll(d, 0755); err != nil {
			t.Fatalf("mkdir failed: %v", err)
		}
	}
	seed := map[string]string{
		filepath.Join(memoryDir, "project-brief.md"): "# Project Brief\n\nGoals and scope.\n",
		filepath.Join(memoryDir, "progress.md"):      "# Progress\n\nDone so far.\n",
		filepath.Join(agentsDir, "debugger.md"): "---\n" +
			"name: debugger\n" +
			"description: Tracks down runtime panics\n" +
			"triggers:\n  - stack trace\n" +
			"---\n\nYou are debugger.\n",
	}
	for path, content := range seed {
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatalf("write failed: %v", err)
		}
	}

	root := &workspace.Root{Path: dir}
	st, err := store.New(root.DBPath())
	if err != nil {
		t.Fatalf("store.New failed: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	cfg := config.DefaultConfig()
	cfg.Agents.UserDir = "" // keep the pipeline inside the temp dir

	return fixture{root: root, cfg: cfg, st: st}
}

func stageNames(r *Result) []string {
	names := make([]string, len(r.Stages))
	for i, s := range r.Stages {
		names[i] = s.Name
	}
	return names
}

func TestRun_FullPipeline(t *testing.T) {
	f := newFixture(t)

	result, err := Run(context.Background(), Options{Root: f.root, Config: f.cfg, Store: f.st})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if result.Status != store.RunOK {
		t.Errorf("Status = %q, want ok (stage errors: %v)", result.Status, result.Err())
	}
	want := []string{"scan", "index", "agents", "backup", "prune", "logs", "report"}
	got := stageNames(result)
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("stages = %v, want %v", got, want)
	}

	// Index mirrors the scan
	rows, err := f.st.Files()
	if err != nil {
		t.Fatalf("Files failed: %v", err)
	}
	if len(rows) != 2 {
		t.Errorf("expected 2 index rows, got %d", len(rows))
	}

	// Snapshot exists on disk and in the store
	list, err := backup.List(f.root.BackupsDir())
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("expected 1 snapshot, got %d", len(list))
	}
	recorded, err := f.st.Backups(0)
	if err != nil {
		t.Fatalf("Backups failed: %v", err)
	}
	if len(recorded) != 1 || recorded[0].ID != list[0].ID {
		t.Errorf("store should record snapshot %s, got %+v", list[0].ID, recorded)
	}
	if recorded[0].Status != "ok" {
		t.Errorf("snapshot status = %q, want ok", recorded[0].Status)
	}

	// Run row finished
	run, err := f.st.LastRun("maintain")
	if err != nil {
		t.Fatalf("LastRun failed: %v", err)
	}
	if run == nil || run.ID != result.RunID {
		t.Fatalf("run row missing: %+v", run)
	}
	if run.Status != store.RunOK || run.FinishedAt == nil {
		t.Errorf("run not finished cleanly: %+v", run)
	}

	// Dashboards written
	for _, name := range []string{"dashboard.json", "dashboard.md"} {
		if _, err := os.Stat(filepath.Join(f.root.ReportsDir(), name)); err != nil {
			t.Errorf("%s not written: %v", name, err)
		}
	}

	// Lock released
	if _, err := os.Stat(f.root.LockPath()); !os.IsNotExist(err) {
		t.Errorf("lock file should be gone, stat err = %v", err)
	}
}

func TestRun_EmptyMemoryBank(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, ".claude"), 0755); err != nil {
		t.Fatalf("mkdir failed: %v", err)
	}
	root := &workspace.Root{Path: dir}
	st, err := store.New(root.DBPath())
	if err != nil {
		t.Fatalf("store.New failed: %v", err)
	}
	defer st.Close()

	cfg := config.DefaultConfig()
	cfg.Agents.UserDir = ""

	result, err := Run(context.Background(), Options{Root: root, Config: cfg, Store: st})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if result.Status != store.RunOK {
		t.Errorf("empty bank should still pass, got %q (%v)", result.Status, result.Err())
	}

	for _, s := range result.Stages {
		if s.Name == "backup" && s.Detail != "no memory files, skipped" {
			t.Errorf("backup stage detail = %q, want skip notice", s.Detail)
		}
	}
	list, _ := backup.List(root.BackupsDir())
	if len(list) != 0 {
		t.Errorf("no snapshot expected for empty bank, got %d", len(list))
	}
}

func TestRun_LockHeld(t *testing.T) {
	f := newFixture(t)

	if err := os.MkdirAll(f.root.StateDir(), 0755); err != nil {
		t.Fatalf("mkdir failed: %v", err)
	}
	info := workspace.LockInfo{PID: os.Getpid(), CreatedAt: time.Now(), Cmd: "other"}
	data, _ := json.Marshal(info)
	if err := os.WriteFile(f.root.LockPath(), data, 0600); err != nil {
		t.Fatalf("write lock failed: %v", err)
	}

	_, err := Run(context.Background(), Options{Root: f.root, Store: f.st})
	var locked *workspace.ErrLocked
	if !errors.As(err, &locked) {
		t.Fatalf("expected ErrLocked, got %v", err)
	}

	// The held lock must survive the refused run
	if _, statErr := os.Stat(f.root.LockPath()); statErr != nil {
		t.Errorf("foreign lock removed: %v", statErr)
	}
}

func TestRun_RequiresRootAndStore(t *testing.T) {
	f := newFixture(t)

	if _, err := Run(context.Background(), Options{Store: f.st}); err == nil {
		t.Error("expected error without root")
	}
	if _, err := Run(context.Background(), Options{Root: f.root}); err == nil {
		t.Error("expected error without store")
	}
}

func TestRun_CancelledContext(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := Run(ctx, Options{Root: f.root, Store: f.st})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if result.Status != store.RunFailed {
		t.Errorf("Status = %q, want failed", result.Status)
	}
	if result.Err() == nil {
		t.Error("expected joined stage errors")
	}

	run, err := f.st.LastRun("maintain")
	if err != nil || run == nil {
		t.Fatalf("run row missing: %v", err)
	}
	if run.Status != store.RunFailed {
		t.Errorf("run status = %q, want failed", run.Status)
	}
}

func TestRun_SecondRunPrunesToKeep(t *testing.T) {
	f := newFixture(t)
	f.cfg.Backup.Keep = 1

	for i := 0; i < 2; i++ {
		result, err := Run(context.Background(), Options{Root: f.root, Config: f.cfg, Store: f.st})
		if err != nil {
			t.Fatalf("Run %d failed: %v", i, err)
		}
		if result.Status != store.RunOK {
			t.Fatalf("Run %d status = %q (%v)", i, result.Status, result.Err())
		}
		time.Sleep(2 * time.Millisecond)
	}

	list, err := backup.List(f.root.BackupsDir())
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("keep=1 should leave one snapshot, got %d", len(list))
	}
	recorded, err := f.st.Backups(0)
	if err != nil {
		t.Fatalf("Backups failed: %v", err)
	}
	if len(recorded) != 1 || recorded[0].ID != list[0].ID {
		t.Errorf("store records should track pruning, got %+v", recorded)
	}

	runs, err := f.st.RecentRuns(10)
	if err != nil {
		t.Fatalf("RecentRuns failed: %v", err)
	}
	if len(runs) != 2 {
		t.Errorf("expected 2 run rows, got %d", len(runs))
	}
}

func TestRun_SkipBackup(t *testing.T) {
	f := newFixture(t)

	result, err := Run(context.Background(), Options{
		Root: f.root, Config: f.cfg, Store: f.st, SkipBackup: true,
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if result.Status != store.RunOK {
		t.Fatalf("Status = %q (%v)", result.Status, result.Err())
	}

	list, _ := backup.List(f.root.BackupsDir())
	if len(list) != 0 {
		t.Errorf("no snapshot expected with SkipBackup, got %d", len(list))
	}
	for _, s := range result.Stages {
		if s.Name == "backup" && s.Detail != "skipped by flag" {
			t.Errorf("backup detail = %q, want skip notice", s.Detail)
		}
	}
}

func TestRun_IndexPrunesVanishedFiles(t *testing.T) {
	f := newFixture(t)

	if _, err := Run(context.Background(), Options{Root: f.root, Config: f.cfg, Store: f.st}); err != nil {
		t.Fatalf("first run failed: %v", err)
	}

	removed := filepath.Join(f.root.MemoryDir(f.cfg.Memory.Dir), "progress.md")
	if err := os.Remove(removed); err != nil {
		t.Fatalf("remove failed: %v", err)
	}

	if _, err := Run(context.Background(), Options{Root: f.root, Config: f.cfg, Store: f.st}); err != nil {
		t.Fatalf("second run failed: %v", err)
	}

	rows, err := f.st.Files()
	if err != nil {
		t.Fatalf("Files failed: %v", err)
	}
	if len(rows) != 1 || rows[0].Path != "project-brief.md" {
		t.Errorf("index should hold only the surviving file, got %+v", rows)
	}
}

func TestResult_Err(t *testing.T) {
	clean := &Result{Stages: []StageResult{{Name: "scan"}, {Name: "index"}}}
	if clean.Err() != nil {
		t.Errorf("clean run should have nil Err, got %v", clean.Err())
	}

	failed := &Result{Stages: []StageResult{
		{Name: "scan"},
		{Name: "backup", Err: errors.New("disk full")},
	}}
	err := failed.Err()
	if err == nil {
		t.Fatal("expected error")
	}
	if got := err.Error(); got != "backup: disk full" {
		t.Errorf("Err = %q", got)
	}
}
