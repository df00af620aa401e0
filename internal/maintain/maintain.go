// Package maintain runs the full workspace maintenance pipeline: scan the
// memory bank, reconcile the sqlite index, snapshot, prune old snapshots,
// rotate logs, and regenerate dashboards. One run holds the maintenance
// lock for its whole duration; stages after a failed stage still execute
// so a broken backup never blocks log rotation.
package maintain

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"steward/internal/agent"
	"steward/internal/backup"
	"steward/internal/config"
	"steward/internal/logging"
	"steward/internal/memory"
	"steward/internal/report"
	"steward/internal/store"
	"steward/internal/workspace"
)

// Options configures a maintenance run.
type Options struct {
	Root   *workspace.Root
	Config *config.Config
	Store  *store.Store
	Logger *zap.Logger

	// SkipBackup suppresses the snapshot stage. Pruning still runs so a
	// backlog of old snapshots is cleared either way.
	SkipBackup bool
}

// StageResult records one pipeline stage.
type StageResult struct {
	Name     string        `json:"name"`
	Detail   string        `json:"detail,omitempty"`
	Duration time.Duration `json:"duration_ns"`
	Err      error         `json:"-"`
}

// Result summarizes a completed maintenance run.
type Result struct {
	RunID     string        `json:"run_id"`
	StartedAt time.Time     `json:"started_at"`
	Status    string        `json:"status"`
	Stages    []StageResult `json:"stages"`
	Elapsed   time.Duration `json:"elapsed_ns"`
}

// Err joins the stage failures, or returns nil for a clean run.
func (r *Result) Err() error {
	var errs []error
	for _, s := range r.Stages {
		if s.Err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.Name, s.Err))
		}
	}
	return errors.Join(errs...)
}

// pipeline carries state between stages of one run.
type pipeline struct {
	ctx        context.Context
	root       *workspace.Root
	cfg        *config.Config
	store      *store.Store
	logger     *zap.Logger
	skipBackup bool

	files  []memory.File
	reg    *agent.Registry
	stages []StageResult
}

// Run executes the maintenance pipeline under the workspace lock. Stage
// failures are collected in the Result rather than aborting the run; the
// returned error covers setup only (lock held elsewhere, run row not
// recordable).
func Run(ctx context.Context, opts Options) (*Result, error) {
	if opts.Root == nil {
		return nil, fmt.Errorf("maintain: workspace root is required")
	}
	if opts.Store == nil {
		return nil, fmt.Errorf("maintain: store is required")
	}
	if opts.Config == nil {
		opts.Config = config.DefaultConfig()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	if err := os.MkdirAll(opts.Root.StateDir(), 0755); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}
	locker := workspace.NewLocker(opts.Root.LockPath())
	unlock, err := locker.Acquire("maintain")
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := unlock(); err != nil {
			opts.Logger.Warn("failed to release maintenance lock", zap.Error(err))
		}
	}()

	runID, err := opts.Store.StartRun("maintain")
	if err != nil {
		return nil, fmt.Errorf("failed to record run start: %w", err)
	}

	start := time.Now()
	opts.Logger.Info("maintenance run started",
		zap.String("run_id", runID),
		zap.String("workspace", opts.Root.Path))

	p := &pipeline{
		ctx:        ctx,
		root:       opts.Root,
		cfg:        opts.Config,
		store:      opts.Store,
		logger:     opts.Logger,
		skipBackup: opts.SkipBackup,
	}

	p.stage("scan", p.scanMemory)
	p.stage("index", p.reconcileIndex)
	p.stage("agents", p.loadAgents)
	p.stage("backup", p.snapshot)
	p.stage("prune", p.pruneSnapshots)
	p.stage("logs", p.rotateLogs)
	p.stage("report", p.writeReports)

	result := &Result{
		RunID:     runID,
		StartedAt: start.UTC(),
		Status:    store.RunOK,
		Stages:    p.stages,
		Elapsed:   time.Since(start),
	}

	var failed []string
	for _, s := range p.stages {
		if s.Err != nil {
			failed = append(failed, fmt.Sprintf("%s: %v", s.Name, s.Err))
		}
	}
	detail := fmt.Sprintf("%d stages", len(p.stages))
	if len(failed) > 0 {
		result.Status = store.RunFailed
		detail = strings.Join(failed, "; ")
	}
	if err := opts.Store.FinishRun(runID, result.Status, detail); err != nil {
		opts.Logger.Warn("failed to record run finish", zap.Error(err))
	}

	opts.Logger.Info("maintenance run finished",
		zap.String("run_id", runID),
		zap.String("status", result.Status),
		zap.Duration("elapsed", result.Elapsed))
	return result, nil
}

// stage times one pipeline step and records its outcome. A cancelled
// context short-circuits the remaining stages.
func (p *pipeline) stage(name string, fn func() (string, error)) {
	start := time.Now()
	var (
		detail string
		err    error
	)
	if ctxErr := p.ctx.Err(); ctxErr != nil {
		err = ctxErr
	} else {
		detail, err = fn()
	}

	sr := StageResult{Name: name, Detail: detail, Duration: time.Since(start), Err: err}
	if err != nil {
		p.logger.Warn("maintenance stage failed",
			zap.String("stage", name),
			zap.Error(err))
	} else {
		p.logger.Info("maintenance stage complete",
			zap.String("stage", name),
			zap.String("detail", detail),
			zap.Duration("elapsed", sr.Duration))
	}
	p.stages = append(p.stages, sr)
}

func (p *pipeline) rules() memory.Rules {
	return memory.Rules{
		MaxFileBytes:  p.cfg.Memory.MaxFileBytes,
		WarnFileBytes: p.cfg.Memory.WarnFileBytes,
		WarnFileLines: p.cfg.Memory.WarnFileLines,
		StaleAfter:    p.cfg.GetStaleAfter(),
		RequireTitle:  p.cfg.Memory.RequireTitle,
	}
}

func (p *pipeline) scanMemory() (string, error) {
	files, err := memory.Scan(p.ctx, p.root.MemoryDir(p.cfg.Memory.Dir), p.rules())
	if err != nil {
		return "", err
	}
	p.files = files

	issues := 0
	for _, f := range files {
		issues += len(f.Issues)
	}
	return fmt.Sprintf("%d files, %d issues", len(files), issues), nil
}

// reconcileIndex mirrors the scan into the sqlite index: every scanned
// file is upserted and rows for vanished files are dropped.
func (p *pipeline) reconcileIndex() (string, error) {
	memoryDir := p.root.MemoryDir(p.cfg.Memory.Dir)

	current := make(map[string]bool, len(p.files))
	for _, f := range p.files {
		rel, err := filepath.Rel(memoryDir, f.Path)
		if err != nil {
			rel = f.Name
		}
		rel = filepath.ToSlash(rel)
		current[rel] = true

		rec := store.FileRecord{
			Path:     rel,
			Size:     f.Size,
			Lines:    f.Lines,
			Hash:     f.SHA256,
			Modified: f.Modified,
			Health:   string(f.Health),
			Issues:   f.IssueMessages(),
		}
		if err := p.store.UpsertFile(rec); err != nil {
			return "", fmt.Errorf("failed to index %s: %w", rel, err)
		}
	}

	rows, err := p.store.Files()
	if err != nil {
		return "", err
	}
	pruned := 0
	for _, row := range rows {
		if current[row.Path] {
			continue
		}
		if err := p.store.DeleteFile(row.Path); err != nil {
			return "", fmt.Errorf("failed to drop index row %s: %w", row.Path, err)
		}
		pruned++
	}
	return fmt.Sprintf("%d indexed, %d pruned", len(p.files), pruned), nil
}

func (p *pipeline) loadAgents() (string, error) {
	limits := agent.Limits{
		MaxNameLength:        p.cfg.Agents.MaxNameLength,
		MaxDescriptionLength: p.cfg.Agents.MaxDescriptionLength,
	}
	reg, err := agent.LoadRegistry(limits,
		p.root.AgentsDir(p.cfg.Agents.Dir), p.cfg.GetUserAgentsDir())
	if err != nil {
		return "", err
	}
	p.reg = reg

	for _, problem := range reg.Problems() {
		p.logger.Warn("agent definition rejected",
			zap.String("path", problem.Path),
			zap.Error(problem.Err))
	}
	return fmt.Sprintf("%d agents, %d problems, %d shadowed",
		reg.Len(), len(reg.Problems()), len(reg.Shadowed())), nil
}

func (p *pipeline) snapshot() (string, error) {
	if p.skipBackup {
		return "skipped by flag", nil
	}
	if len(p.files) == 0 {
		return "no memory files, skipped", nil
	}

	memoryDir := p.root.MemoryDir(p.cfg.Memory.Dir)
	manifest, err := backup.Create(p.ctx, memoryDir, p.root.BackupsDir())
	if err != nil {
		return "", err
	}

	status := "ok"
	if p.cfg.Backup.VerifyAfterCreate {
		verify, err := backup.Verify(p.root.BackupsDir(), manifest.ID)
		if err != nil {
			return "", fmt.Errorf("failed to verify snapshot %s: %w", manifest.ID, err)
		}
		if !verify.OK {
			status = "corrupt"
		}
	}

	rec := store.BackupRecord{
		ID:        manifest.ID,
		CreatedAt: manifest.CreatedAt,
		Files:     manifest.FileCount,
		Bytes:     manifest.TotalBytes,
		Status:    status,
	}
	if err := p.store.RecordBackup(rec); err != nil {
		p.logger.Warn("failed to record snapshot", zap.Error(err))
	}
	if status != "ok" {
		return "", fmt.Errorf("snapshot %s failed post-create verification", manifest.ID)
	}
	return fmt.Sprintf("%s (%d files, %s)",
		manifest.ID, manifest.FileCount, humanize.Bytes(uint64(manifest.TotalBytes))), nil
}

func (p *pipeline) pruneSnapshots() (string, error) {
	result, err := backup.Prune(p.root.BackupsDir(), p.cfg.Backup.Keep, p.cfg.GetBackupMaxAge())
	if err != nil {
		return "", err
	}
	for _, id := range result.Removed {
		if err := p.store.DeleteBackup(id); err != nil {
			p.logger.Warn("failed to drop snapshot record",
				zap.String("id", id), zap.Error(err))
		}
	}
	if len(result.Removed) == 0 {
		return "nothing to prune", nil
	}
	return fmt.Sprintf("%d removed, freed %s",
		len(result.Removed), humanize.Bytes(uint64(result.FreedBytes))), nil
}

func (p *pipeline) rotateLogs() (string, error) {
	opts := logging.Options{
		Level:    p.cfg.Logging.Level,
		File:     p.cfg.Logging.File,
		MaxBytes: p.cfg.Logging.MaxBytes,
		Keep:     p.cfg.Logging.Keep,
		Compress: p.cfg.Logging.Compress,
	}
	rotated, err := logging.RotateIfLarge(p.root.LogsDir(), opts)
	if err != nil {
		return "", err
	}
	if rotated {
		return "rotated", nil
	}
	return "below threshold", nil
}

func (p *pipeline) writeReports() (string, error) {
	backups, err := backup.List(p.root.BackupsDir())
	if err != nil {
		return "", err
	}
	runs, err := p.store.RecentRuns(10)
	if err != nil {
		p.logger.Warn("failed to load run history for report", zap.Error(err))
	}

	rep := report.Build(report.Input{
		Workspace: p.root.Path,
		Registry:  p.reg,
		Memory:    p.files,
		Backups:   backups,
		Runs:      runs,
	})
	if err := report.Write(p.root.ReportsDir(), rep); err != nil {
		return "", err
	}
	return fmt.Sprintf("dashboard.json, dashboard.md in %s", p.root.ReportsDir()), nil
}
