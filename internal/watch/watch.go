// Package watch keeps the workspace index fresh while files change under
// it. Memory bank edits are re-validated and re-indexed after a settle
// window; agent definition edits are re-parsed and logged.
package watch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"steward/internal/agent"
	"steward/internal/memory"
	"steward/internal/store"
)

// sweepInterval is how often the debounce map is checked for settled events.
const sweepInterval = 100 * time.Millisecond

// Options configure a Watcher.
type Options struct {
	MemoryDir string
	AgentDirs []string
	Rules     memory.Rules
	Limits    agent.Limits

	// Debounce is how long a file must be quiet before revalidation.
	Debounce time.Duration

	// MaxEventsPerSec drops event floods (editors, sync tools) beyond
	// this admission rate. Zero or negative disables the limit.
	MaxEventsPerSec float64
}

// Stats tracks watcher activity.
type Stats struct {
	EventsSeen    int
	Dropped       int
	Validations   int
	IndexUpdates  int
	Removals      int
	Failures      int
	LastEventPath string
	LastEventAt   time.Time
}

// Watcher watches the memory bank and agent directories.
type Watcher struct {
	mu      sync.RWMutex
	watcher *fsnotify.Watcher
	store   *store.Store
	logger  *zap.Logger
	opts    Options

	memoryDir   string // cleaned, for prefix checks
	limiter     *rate.Limiter
	debounceMap map[string]time.Time
	stopCh      chan struct{}
	doneCh      chan struct{}
	running     bool
	stats       Stats
}

// New creates a watcher. The store receives index updates; a nil logger
// disables logging.
func New(st *store.Store, logger *zap.Logger, opts Options) (*Watcher, error) {
	if opts.Debounce <= 0 {
		opts.Debounce = 500 * time.Millisecond
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if opts.MaxEventsPerSec > 0 {
		burst := int(opts.MaxEventsPerSec)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.MaxEventsPerSec), burst)
	}

	return &Watcher{
		watcher:     fsw,
		store:       st,
		logger:      logger,
		opts:        opts,
		memoryDir:   filepath.Clean(opts.MemoryDir),
		limiter:     limiter,
		debounceMap: make(map[string]time.Time),
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}, nil
}

// Start begins watching. Non-blocking; the event loop runs in a goroutine
// until Stop or context cancellation.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	if err := os.MkdirAll(w.memoryDir, 0755); err != nil {
		w.logger.Warn("failed to create memory directory", zap.String("dir", w.memoryDir), zap.Error(err))
	}
	if err := w.watcher.Add(w.memoryDir); err != nil {
		w.logger.Warn("failed to watch memory directory", zap.String("dir", w.memoryDir), zap.Error(err))
	} else {
		w.logger.Info("watching memory bank", zap.String("dir", w.memoryDir))
	}

	for _, dir := range w.opts.AgentDirs {
		if _, err := os.Stat(dir); err != nil {
			continue
		}
		if err := w.watcher.Add(dir); err != nil {
			w.logger.Warn("failed to watch agent directory", zap.String("dir", dir), zap.Error(err))
			continue
		}
		w.logger.Info("watching agents", zap.String("dir", dir))
	}

	go w.run(ctx)
	return nil
}

// Stop shuts the watcher down and waits for the event loop to exit. Safe
// to call whether or not Start ran.
func (w *Watcher) Stop() {
	w.mu.Lock()
	running := w.running
	w.running = false
	w.mu.Unlock()

	if running {
		close(w.stopCh)
		<-w.doneCh
	}
	if err := w.watcher.Close(); err != nil {
		w.logger.Warn("failed to close file watcher", zap.Error(err))
	}
}

// IsWatching reports whether the event loop is running.
func (w *Watcher) IsWatching() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.running
}

// Stats returns a snapshot of watcher activity.
func (w *Watcher) Stats() Stats {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.stats
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.doneCh)

	sweep := time.NewTicker(sweepInterval)
	defer sweep.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watch error", zap.Error(err))
			w.mu.Lock()
			w.stats.Failures++
			w.mu.Unlock()
		case <-sweep.C:
			w.processSettled(ctx)
		}
	}
}

// handleEvent admits one filesystem event into the debounce map.
func (w *Watcher) handleEvent(event fsnotify.Event) {
	if !strings.HasSuffix(event.Name, ".md") {
		return
	}
	if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
		return // chmod and friends
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	w.stats.EventsSeen++
	w.stats.LastEventPath = event.Name
	w.stats.LastEventAt = time.Now()

	if !w.limiter.Allow() {
		w.stats.Dropped++
		return
	}
	w.debounceMap[event.Name] = time.Now()
}

// processSettled handles files whose events are past the settle window.
func (w *Watcher) processSettled(ctx context.Context) {
	w.mu.Lock()
	now := time.Now()
	var settled []string
	for path, at := range w.debounceMap {
		if now.Sub(at) >= w.opts.Debounce {
			settled = append(settled, path)
			delete(w.debounceMap, path)
		}
	}
	w.mu.Unlock()

	for _, path := range settled {
		if ctx.Err() != nil {
			return
		}
		w.process(path)
	}
}

// process revalidates one settled file. A missing file is a removal, not
// an error; the rest depends on which tree it lives in.
func (w *Watcher) process(path string) {
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		if w.inMemoryBank(path) {
			w.removeIndexRow(path)
		} else {
			w.logger.Info("agent removed", zap.String("path", path))
		}
		return
	}

	if w.inMemoryBank(path) {
		w.refreshMemoryFile(path)
		return
	}
	w.revalidateAgent(path)
}

func (w *Watcher) inMemoryBank(path string) bool {
	return strings.HasPrefix(filepath.Clean(path), w.memoryDir+string(os.PathSeparator))
}

func (w *Watcher) refreshMemoryFile(path string) {
	f, err := memory.Inspect(path, w.opts.Rules)
	if err != nil {
		w.logger.Warn("failed to inspect memory file", zap.String("path", path), zap.Error(err))
		w.bumpFailures()
		return
	}

	rel := w.relPath(path)
	if err := w.store.UpsertFile(store.FileRecord{
		Path:     rel,
		Size:     f.Size,
		Lines:    f.Lines,
		Hash:     f.SHA256,
		Modified: f.Modified,
		Health:   string(f.Health),
		Issues:   f.IssueMessages(),
	}); err != nil {
		w.logger.Warn("failed to index memory file", zap.String("path", rel), zap.Error(err))
		w.bumpFailures()
		return
	}

	w.mu.Lock()
	w.stats.Validations++
	w.stats.IndexUpdates++
	w.mu.Unlock()
	w.logger.Debug("memory file indexed",
		zap.String("path", rel),
		zap.String("health", string(f.Health)),
		zap.Int("issues", len(f.Issues)))
}

func (w *Watcher) removeIndexRow(path string) {
	rel := w.relPath(path)
	if err := w.store.DeleteFile(rel); err != nil {
		w.logger.Warn("failed to drop index row", zap.String("path", rel), zap.Error(err))
		w.bumpFailures()
		return
	}
	w.mu.Lock()
	w.stats.Removals++
	w.mu.Unlock()
	w.logger.Info("memory file removed", zap.String("path", rel))
}

func (w *Watcher) revalidateAgent(path string) {
	a, err := agent.ParseFile(path, w.opts.Limits)
	if err != nil {
		w.logger.Warn("agent failed validation", zap.String("path", path), zap.Error(err))
		w.bumpFailures()
		return
	}

	w.mu.Lock()
	w.stats.Validations++
	w.mu.Unlock()

	if notes := a.Lint(); len(notes) > 0 {
		w.logger.Info("agent validated with notes",
			zap.String("agent", a.Name), zap.Strings("notes", notes))
		return
	}
	w.logger.Debug("agent validated", zap.String("agent", a.Name))
}

func (w *Watcher) relPath(path string) string {
	rel, err := filepath.Rel(w.memoryDir, path)
	if err != nil {
		return filepath.Base(path)
	}
	return filepath.ToSlash(rel)
}

func (w *Watcher) bumpFailures() {
	w.mu.Lock()
	w.stats.Failures++
	w.mu.Unlock()
}

// TriggerSync runs one full validation pass: every memory file is
// re-indexed, rows for vanished files are dropped, and agent directories
// are re-checked. Useful at startup and from maintenance.
func (w *Watcher) TriggerSync(ctx context.Context) error {
	files, err := memory.Scan(ctx, w.memoryDir, w.opts.Rules)
	if err != nil {
		return fmt.Errorf("failed to scan memory bank: %w", err)
	}

	current := make(map[string]bool, len(files))
	for _, f := range files {
		rel := w.relPath(f.Path)
		current[rel] = true
		if err := w.store.UpsertFile(store.FileRecord{
			Path:     rel,
			Size:     f.Size,
			Lines:    f.Lines,
			Hash:     f.SHA256,
			Modified: f.Modified,
			Health:   string(f.Health),
			Issues:   f.IssueMessages(),
		}); err != nil {
			return fmt.Errorf("failed to index %s: %w", rel, err)
		}
		w.mu.Lock()
		w.stats.Validations++
		w.stats.IndexUpdates++
		w.mu.Unlock()
	}

	indexed, err := w.store.Files()
	if err != nil {
		return fmt.Errorf("failed to list index: %w", err)
	}
	for _, rec := range indexed {
		if current[rec.Path] {
			continue
		}
		if err := w.store.DeleteFile(rec.Path); err != nil {
			return fmt.Errorf("failed to drop stale index row %s: %w", rec.Path, err)
		}
		w.mu.Lock()
		w.stats.Removals++
		w.mu.Unlock()
	}

	reg, err := agent.LoadRegistry(w.opts.Limits, w.opts.AgentDirs...)
	if err != nil {
		return fmt.Errorf("failed to load agents: %w", err)
	}
	for _, p := range reg.Problems() {
		w.logger.Warn("agent problem", zap.String("path", p.Path), zap.Error(p.Err))
	}

	w.logger.Info("sync complete",
		zap.Int("memory_files", len(files)),
		zap.Int("agents", reg.Len()),
		zap.Int("agent_problems", len(reg.Problems())))
	return nil
}
