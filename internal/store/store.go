// Package store persists steward's workspace index and run history in a
// SQLite database under .claude/steward/.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// decisionHistoryLimit bounds the routing decision log.
const decisionHistoryLimit = 1000

// fileHistoryLimit bounds the per-file trend history.
const fileHistoryLimit = 50

// Store wraps the index database. Safe for concurrent use.
type Store struct {
	db     *sql.DB
	mu     sync.RWMutex
	dbPath string
}

// New opens (creating if needed) the index database at path.
func New(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &Store{db: db, dbPath: path}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// initialize creates the required tables.
func (s *Store) initialize() error {
	filesTable := `
	CREATE TABLE IF NOT EXISTS memory_files (
		path TEXT PRIMARY KEY,
		size INTEGER NOT NULL,
		lines INTEGER NOT NULL,
		hash TEXT NOT NULL,
		modified DATETIME NOT NULL,
		health TEXT NOT NULL,
		issues TEXT,
		indexed_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_memory_files_health ON memory_files(health);
	`

	historyTable := `
	CREATE TABLE IF NOT EXISTS memory_file_history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		path TEXT NOT NULL,
		size INTEGER NOT NULL,
		lines INTEGER NOT NULL,
		health TEXT NOT NULL,
		indexed_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_file_history_path ON memory_file_history(path);
	`

	runsTable := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		started_at DATETIME NOT NULL,
		finished_at DATETIME,
		status TEXT NOT NULL,
		detail TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_runs_kind ON runs(kind);
	CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);
	`

	backupsTable := `
	CREATE TABLE IF NOT EXISTS backups (
		id TEXT PRIMARY KEY,
		created_at DATETIME NOT NULL,
		files INTEGER NOT NULL,
		bytes INTEGER NOT NULL,
		status TEXT NOT NULL
	);
	`

	decisionsTable := `
	CREATE TABLE IF NOT EXISTS decisions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		at DATETIME DEFAULT CURRENT_TIMESTAMP,
		task TEXT NOT NULL,
		agent TEXT,
		score REAL,
		latency_ns INTEGER
	);
	CREATE INDEX IF NOT EXISTS idx_decisions_at ON decisions(at);
	`

	for _, table := range []string{filesTable, historyTable, runsTable, backupsTable, decisionsTable} {
		if _, err := s.db.Exec(table); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// ========== Memory file index ==========

// FileRecord is one indexed memory file.
type FileRecord struct {
	Path     string
	Size     int64
	Lines    int
	Hash     string
	Modified time.Time
	Health   string
	Issues   []string
}

// UpsertFile refreshes the index row for one memory file. Content changes
// (a new hash) also append a trend history row.
func (s *Store) UpsertFile(rec FileRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var prevHash sql.NullString
	err := s.db.QueryRow("SELECT hash FROM memory_files WHERE path = ?", rec.Path).Scan(&prevHash)
	if err != nil && err != sql.ErrNoRows {
		return fmt.Errorf("failed to read file record: %w", err)
	}

	issuesJSON, _ := json.Marshal(rec.Issues)
	_, err = s.db.Exec(
		`INSERT OR REPLACE INTO memory_files (path, size, lines, hash, modified, health, issues, indexed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.Path, rec.Size, rec.Lines, rec.Hash, rec.Modified.UTC(), rec.Health, string(issuesJSON), time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert file record: %w", err)
	}

	// Idle rescans of an unchanged file do not extend the history.
	if prevHash.Valid && prevHash.String == rec.Hash {
		return nil
	}
	_, err = s.db.Exec(
		"INSERT INTO memory_file_history (path, size, lines, health) VALUES (?, ?, ?, ?)",
		rec.Path, rec.Size, rec.Lines, rec.Health,
	)
	if err != nil {
		return fmt.Errorf("failed to record file history: %w", err)
	}
	_, err = s.db.Exec(
		`DELETE FROM memory_file_history WHERE path = ? AND id NOT IN
		 (SELECT id FROM memory_file_history WHERE path = ? ORDER BY id DESC LIMIT ?)`,
		rec.Path, rec.Path, fileHistoryLimit,
	)
	if err != nil {
		return fmt.Errorf("failed to trim file history: %w", err)
	}
	return nil
}

// DeleteFile drops the index row and trend history for a removed memory file.
func (s *Store) DeleteFile(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.Exec("DELETE FROM memory_files WHERE path = ?", path); err != nil {
		return fmt.Errorf("failed to delete file record: %w", err)
	}
	if _, err := s.db.Exec("DELETE FROM memory_file_history WHERE path = ?", path); err != nil {
		return fmt.Errorf("failed to delete file history: %w", err)
	}
	return nil
}

// Files returns the whole index ordered by path.
func (s *Store) Files() ([]FileRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(
		"SELECT path, size, lines, hash, modified, health, issues FROM memory_files ORDER BY path")
	if err != nil {
		return nil, fmt.Errorf("failed to query files: %w", err)
	}
	defer rows.Close()

	var records []FileRecord
	for rows.Next() {
		var rec FileRecord
		var issuesJSON sql.NullString
		if err := rows.Scan(&rec.Path, &rec.Size, &rec.Lines, &rec.Hash, &rec.Modified, &rec.Health, &issuesJSON); err != nil {
			return nil, fmt.Errorf("failed to scan file record: %w", err)
		}
		if issuesJSON.Valid && issuesJSON.String != "" {
			_ = json.Unmarshal([]byte(issuesJSON.String), &rec.Issues)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// GetFile returns one index row, or nil when the path is not indexed.
func (s *Store) GetFile(path string) (*FileRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var rec FileRecord
	var issuesJSON sql.NullString
	err := s.db.QueryRow(
		"SELECT path, size, lines, hash, modified, health, issues FROM memory_files WHERE path = ?", path,
	).Scan(&rec.Path, &rec.Size, &rec.Lines, &rec.Hash, &rec.Modified, &rec.Health, &issuesJSON)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get file record: %w", err)
	}
	if issuesJSON.Valid && issuesJSON.String != "" {
		_ = json.Unmarshal([]byte(issuesJSON.String), &rec.Issues)
	}
	return &rec, nil
}

// HealthCounts rolls the index up by health class.
func (s *Store) HealthCounts() (map[string]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query("SELECT health, COUNT(*) FROM memory_files GROUP BY health")
	if err != nil {
		return nil, fmt.Errorf("failed to query health counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var health string
		var n int
		if err := rows.Scan(&health, &n); err != nil {
			return nil, fmt.Errorf("failed to scan health count: %w", err)
		}
		counts[health] = n
	}
	return counts, rows.Err()
}

// TrendPoint is one historical index observation of a memory file.
type TrendPoint struct {
	Size      int64
	Lines     int
	Health    string
	IndexedAt time.Time
}

// FileTrend returns recent index observations for one file, newest first.
func (s *Store) FileTrend(path string, limit int) ([]TrendPoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.Query(
		"SELECT size, lines, health, indexed_at FROM memory_file_history WHERE path = ? ORDER BY id DESC LIMIT ?",
		path, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query file trend: %w", err)
	}
	defer rows.Close()

	var points []TrendPoint
	for rows.Next() {
		var p TrendPoint
		if err := rows.Scan(&p.Size, &p.Lines, &p.Health, &p.IndexedAt); err != nil {
			return nil, fmt.Errorf("failed to scan trend point: %w", err)
		}
		points = append(points, p)
	}
	return points, rows.Err()
}

// ========== Run history ==========

// Run is one recorded maintenance, validation, backup, bench, or watch run.
type Run struct {
	ID         string
	Kind       string
	StartedAt  time.Time
	FinishedAt *time.Time
	Status     string
	Detail     string
}

// Run status values.
const (
	RunRunning = "running"
	RunOK      = "ok"
	RunFailed  = "failed"
)

// StartRun opens a run row and returns its id.
func (s *Store) StartRun(kind string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := uuid.NewString()
	_, err := s.db.Exec(
		"INSERT INTO runs (id, kind, started_at, status) VALUES (?, ?, ?, ?)",
		id, kind, time.Now().UTC(), RunRunning,
	)
	if err != nil {
		return "", fmt.Errorf("failed to start run: %w", err)
	}
	return id, nil
}

// FinishRun closes a run row with its outcome.
func (s *Store) FinishRun(id, status, detail string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(
		"UPDATE runs SET finished_at = ?, status = ?, detail = ? WHERE id = ?",
		time.Now().UTC(), status, detail, id,
	)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}
	return nil
}

// RecentRuns returns the latest runs, newest first.
func (s *Store) RecentRuns(limit int) ([]Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.Query(
		"SELECT id, kind, started_at, finished_at, status, detail FROM runs ORDER BY started_at DESC, id LIMIT ?",
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	return scanRuns(rows)
}

// LastRun returns the newest run of one kind, or nil when none exists.
func (s *Store) LastRun(kind string) (*Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(
		"SELECT id, kind, started_at, finished_at, status, detail FROM runs WHERE kind = ? ORDER BY started_at DESC LIMIT 1",
		kind,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query last run: %w", err)
	}
	defer rows.Close()

	runs, err := scanRuns(rows)
	if err != nil || len(runs) == 0 {
		return nil, err
	}
	return &runs[0], nil
}

func scanRuns(rows *sql.Rows) ([]Run, error) {
	var runs []Run
	for rows.Next() {
		var run Run
		var finished sql.NullTime
		var detail sql.NullString
		if err := rows.Scan(&run.ID, &run.Kind, &run.StartedAt, &finished, &run.Status, &detail); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		if finished.Valid {
			t := finished.Time
			run.FinishedAt = &t
		}
		run.Detail = detail.String
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// ========== Backup history ==========

// BackupRecord mirrors a snapshot manifest for trend queries.
type BackupRecord struct {
	ID        string
	CreatedAt time.Time
	Files     int
	Bytes     int64
	Status    string
}

// RecordBackup upserts one snapshot row.
func (s *Store) RecordBackup(rec BackupRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(
		"INSERT OR REPLACE INTO backups (id, created_at, files, bytes, status) VALUES (?, ?, ?, ?, ?)",
		rec.ID, rec.CreatedAt.UTC(), rec.Files, rec.Bytes, rec.Status,
	)
	if err != nil {
		return fmt.Errorf("failed to record backup: %w", err)
	}
	return nil
}

// DeleteBackup drops a pruned snapshot's row.
func (s *Store) DeleteBackup(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.Exec("DELETE FROM backups WHERE id = ?", id); err != nil {
		return fmt.Errorf("failed to delete backup record: %w", err)
	}
	return nil
}

// Backups returns snapshot rows, newest first.
func (s *Store) Backups(limit int) ([]BackupRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.Query(
		"SELECT id, created_at, files, bytes, status FROM backups ORDER BY id DESC LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query backups: %w", err)
	}
	defer rows.Close()

	var records []BackupRecord
	for rows.Next() {
		var rec BackupRecord
		if err := rows.Scan(&rec.ID, &rec.CreatedAt, &rec.Files, &rec.Bytes, &rec.Status); err != nil {
			return nil, fmt.Errorf("failed to scan backup record: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// ========== Routing decisions ==========

// Decision is one recorded routing decision.
type Decision struct {
	ID        int64
	At        time.Time
	Task      string
	Agent     string
	Score     float64
	LatencyNS int64
}

// RecordDecision appends a routing decision and trims the log to the
// retention limit.
func (s *Store) RecordDecision(task, agent string, score float64, latency time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(
		"INSERT INTO decisions (at, task, agent, score, latency_ns) VALUES (?, ?, ?, ?, ?)",
		time.Now().UTC(), task, agent, score, latency.Nanoseconds(),
	)
	if err != nil {
		return fmt.Errorf("failed to record decision: %w", err)
	}

	_, err = s.db.Exec(
		"DELETE FROM decisions WHERE id NOT IN (SELECT id FROM decisions ORDER BY id DESC LIMIT ?)",
		decisionHistoryLimit,
	)
	if err != nil {
		return fmt.Errorf("failed to trim decisions: %w", err)
	}
	return nil
}

// RecentDecisions returns the latest routing decisions, newest first.
func (s *Store) RecentDecisions(limit int) ([]Decision, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.Query(
		"SELECT id, at, task, agent, score, latency_ns FROM decisions ORDER BY id DESC LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query decisions: %w", err)
	}
	defer rows.Close()

	var decisions []Decision
	for rows.Next() {
		var d Decision
		var agent sql.NullString
		if err := rows.Scan(&d.ID, &d.At, &d.Task, &agent, &d.Score, &d.LatencyNS); err != nil {
			return nil, fmt.Errorf("failed to scan decision: %w", err)
		}
		d.Agent = agent.String
		decisions = append(decisions, d)
	}
	return decisions, rows.Err()
}
