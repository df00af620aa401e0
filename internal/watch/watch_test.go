package watch

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"steward/internal/agent"
	"steward/internal/memory"
	"steward/internal/store"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fixture struct {
	watcher   *Watcher
	store     *store.Store
	memoryDir string
	agentsDir string
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	base := t.TempDir()

	st, err := store.New(filepath.Join(base, "index.db"))
	if err != nil {
		t.Fatalf("store.New failed: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	memDir := filepath.Join(base, "memory")
	agentsDir := filepath.Join(base, "agents")
	for _, dir := range []string{memDir, agentsDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			t.Fatalf("mkdir failed: %v", err)
		}
	}

	opts.MemoryDir = memDir
	opts.AgentDirs = []string{agentsDir}
	if opts.Rules.MaxFileBytes == 0 {
		opts.Rules = memory.DefaultRules()
	}
	if opts.Limits == (agent.Limits{}) {
		opts.Limits = agent.DefaultLimits()
	}

	w, err := New(st, zap.NewNop(), opts)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(w.Stop)

	return &fixture{watcher: w, store: st, memoryDir: memDir, agentsDir: agentsDir}
}

// waitFor polls until cond returns true or the deadline passes.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(25 * time.Millisecond)
	}
	return cond()
}

func TestStartStop(t *testing.T) {
	fx := newFixture(t, Options{Debounce: 50 * time.Millisecond})

	if err := fx.watcher.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if !fx.watcher.IsWatching() {
		t.Error("IsWatching should be true after Start")
	}

	// Second Start is a no-op, second Stop must not panic.
	if err := fx.watcher.Start(context.Background()); err != nil {
		t.Fatalf("second Start failed: %v", err)
	}
	fx.watcher.Stop()
	fx.watcher.Stop()
	if fx.watcher.IsWatching() {
		t.Error("IsWatching should be false after Stop")
	}
}

func TestIndexesNewMemoryFile(t *testing.T) {
	fx := newFixture(t, Options{Debounce: 50 * time.Millisecond})
	if err := fx.watcher.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	path := filepath.Join(fx.memoryDir, "note.md")
	if err := os.WriteFile(path, []byte("# Note\n\nfresh content\n"), 0644); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	ok := waitFor(t, 3*time.Second, func() bool {
		rec, err := fx.store.GetFile("note.md")
		return err == nil && rec != nil
	})
	if !ok {
		t.Fatalf("file never indexed; stats: %+v", fx.watcher.Stats())
	}

	stats := fx.watcher.Stats()
	if stats.EventsSeen == 0 || stats.IndexUpdates == 0 {
		t.Errorf("stats not updated: %+v", stats)
	}
}

func TestRemovesDeletedFile(t *testing.T) {
	fx := newFixture(t, Options{Debounce: 50 * time.Millisecond})

	path := filepath.Join(fx.memoryDir, "gone.md")
	if err := os.WriteFile(path, []byte("# Gone\n\ncontent\n"), 0644); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	if err := fx.watcher.TriggerSync(context.Background()); err != nil {
		t.Fatalf("TriggerSync failed: %v", err)
	}
	if rec, _ := fx.store.GetFile("gone.md"); rec == nil {
		t.Fatal("sync should have indexed the file")
	}

	if err := fx.watcher.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := os.Remove(path); err != nil {
		t.Fatalf("remove failed: %v", err)
	}

	ok := waitFor(t, 3*time.Second, func() bool {
		rec, err := fx.store.GetFile("gone.md")
		return err == nil && rec == nil
	})
	if !ok {
		t.Fatalf("index row never dropped; stats: %+v", fx.watcher.Stats())
	}
}

func TestTriggerSync_IndexesAndPrunes(t *testing.T) {
	fx := newFixture(t, Options{})

	for _, name := range []string{"one.md", "two.md"} {
		path := filepath.Join(fx.memoryDir, name)
		if err := os.WriteFile(path, []byte("# "+name+"\n\ncontent\n"), 0644); err != nil {
			t.Fatalf("write failed: %v", err)
		}
	}

	if err := fx.watcher.TriggerSync(context.Background()); err != nil {
		t.Fatalf("TriggerSync failed: %v", err)
	}
	files, err := fx.store.Files()
	if err != nil {
		t.Fatalf("Files failed: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("expected 2 index rows, got %d", len(files))
	}

	if err := os.Remove(filepath.Join(fx.memoryDir, "one.md")); err != nil {
		t.Fatalf("remove failed: %v", err)
	}
	if err := fx.watcher.TriggerSync(context.Background()); err != nil {
		t.Fatalf("second TriggerSync failed: %v", err)
	}
	files, err = fx.store.Files()
	if err != nil {
		t.Fatalf("Files failed: %v", err)
	}
	if len(files) != 1 || files[0].Path != "two.md" {
		t.Errorf("stale row not pruned: %+v", files)
	}

	stats := fx.watcher.Stats()
	if stats.Removals != 1 {
		t.Errorf("Removals = %d, want 1", stats.Removals)
	}
}

func TestHandleEvent_RateLimit(t *testing.T) {
	fx := newFixture(t, Options{MaxEventsPerSec: 1})

	for i := 0; i < 5; i++ {
		fx.watcher.handleEvent(fsnotify.Event{
			Name: filepath.Join(fx.memoryDir, "burst.md"),
			Op:   fsnotify.Write,
		})
	}

	stats := fx.watcher.Stats()
	if stats.EventsSeen != 5 {
		t.Errorf("EventsSeen = %d, want 5", stats.EventsSeen)
	}
	if stats.Dropped != 4 {
		t.Errorf("Dropped = %d, want 4 with a 1/sec limit", stats.Dropped)
	}
}

func TestHandleEvent_IgnoresNonMarkdownAndChmod(t *testing.T) {
	fx := newFixture(t, Options{})

	fx.watcher.handleEvent(fsnotify.Event{Name: "notes.txt", Op: fsnotify.Write})
	fx.watcher.handleEvent(fsnotify.Event{Name: "notes.md", Op: fsnotify.Chmod})

	if stats := fx.watcher.Stats(); stats.EventsSeen != 0 {
		t.Errorf("irrelevant events should not be counted: %+v", stats)
	}
}

func TestAgentRevalidation(t *testing.T) {
	fx := newFixture(t, Options{Debounce: 50 * time.Millisecond})
	if err := fx.watcher.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	doc := `---
name: helper
description: Helps with things
---

You are a helper.
`
	if err := os.WriteFile(filepath.Join(fx.agentsDir, "helper.md"), []byte(doc), 0644); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	ok := waitFor(t, 3*time.Second, func() bool {
		return fx.watcher.Stats().Validations >= 1
	})
	if !ok {
		t.Fatalf("agent never validated; stats: %+v", fx.watcher.Stats())
	}

	// Memory index must not pick up agent files.
	if rec, _ := fx.store.GetFile("helper.md"); rec != nil {
		t.Error("agent file ended up in the memory index")
	}
}

func TestAgentValidationFailure(t *testing.T) {
	fx := newFixture(t, Options{Debounce: 50 * time.Millisecond})
	if err := fx.watcher.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	doc := `---
name: Bad Name Here
description: Invalid agent
---

Body.
`
	if err := os.WriteFile(filepath.Join(fx.agentsDir, "broken.md"), []byte(doc), 0644); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	ok := waitFor(t, 3*time.Second, func() bool {
		return fx.watcher.Stats().Failures >= 1
	})
	if !ok {
		t.Fatalf("validation failure never recorded; stats: %+v", fx.watcher.Stats())
	}
}
