package workspace

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"syscall"
	"time"
)

// LockInfo is the metadata written into the maintenance lock file.
type LockInfo struct {
	PID       int       `json:"pid"`
	CreatedAt time.Time `json:"created_at"`
	Cmd       string    `json:"cmd,omitempty"`
}

// ErrLocked indicates a live maintenance lock held by another process.
type ErrLocked struct {
	Path string
	Info *LockInfo // nil if the lock file is unreadable
}

func (e *ErrLocked) Error() string {
	if e.Info != nil {
		return fmt.Sprintf("workspace is locked by pid %d since %s (lock file: %s)",
			e.Info.PID, e.Info.CreatedAt.Format(time.RFC3339), e.Path)
	}
	return fmt.Sprintf("workspace is locked (lock file: %s)", e.Path)
}

// Locker serializes mutating maintenance on a workspace through a lock
// file. Stale locks (dead holder, or older than StaleAfter) are stolen.
type Locker struct {
	Path       string
	StaleAfter time.Duration
	Now        func() time.Time
	PIDAlive   func(pid int) bool
}

// NewLocker returns a Locker with defaults: 2h staleness, real clock,
// platform PID probe.
func NewLocker(path string) Locker {
	return Locker{
		Path:       path,
		StaleAfter: 2 * time.Hour,
		Now:        time.Now,
		PIDAlive:   pidAlive,
	}
}

// Acquire takes the maintenance lock and returns an unlock function.
// cmd is recorded in the lock file so a blocked run can name the holder.
func (l Locker) Acquire(cmd string) (unlock func() error, err error) {
	// One steal per kind of staleness is enough; a third conflict in a
	// row means someone is genuinely working.
	for attempt := 0; attempt < 3; attempt++ {
		f, err := os.OpenFile(l.Path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0600)
		if err == nil {
			info := LockInfo{
				PID:       os.Getpid(),
				CreatedAt: l.Now(),
				Cmd:       cmd,
			}
			data, _ := json.Marshal(info)
			if _, writeErr := f.Write(data); writeErr != nil {
				f.Close()
				os.Remove(l.Path)
				return nil, fmt.Errorf("failed to write lock file: %w", writeErr)
			}
			if closeErr := f.Close(); closeErr != nil {
				os.Remove(l.Path)
				return nil, fmt.Errorf("failed to close lock file: %w", closeErr)
			}

			return func() error {
				if err := os.Remove(l.Path); err != nil && !os.IsNotExist(err) {
					return err
				}
				return nil
			}, nil
		}

		if !os.IsExist(err) {
			return nil, fmt.Errorf("failed to create lock file: %w", err)
		}

		info, readErr := l.Holder()
		if readErr != nil {
			// Unreadable lock: fall back to file age before stealing
			stat, statErr := os.Stat(l.Path)
			if statErr != nil || l.Now().Sub(stat.ModTime()) <= l.StaleAfter {
				return nil, &ErrLocked{Path: l.Path}
			}
			if removeErr := os.Remove(l.Path); removeErr != nil && !os.IsNotExist(removeErr) {
				return nil, &ErrLocked{Path: l.Path}
			}
			continue
		}

		if l.stale(info) {
			if removeErr := os.Remove(l.Path); removeErr != nil && !os.IsNotExist(removeErr) {
				return nil, &ErrLocked{Path: l.Path, Info: info}
			}
			continue
		}

		return nil, &ErrLocked{Path: l.Path, Info: info}
	}

	return nil, &ErrLocked{Path: l.Path}
}

// Holder reads the current lock file. Missing file returns os.ErrNotExist.
func (l Locker) Holder() (*LockInfo, error) {
	data, err := os.ReadFile(l.Path)
	if err != nil {
		return nil, err
	}
	var info LockInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// stale reports whether a held lock may be stolen.
func (l Locker) stale(info *LockInfo) bool {
	if !l.PIDAlive(info.PID) {
		return true
	}
	return l.Now().Sub(info.CreatedAt) > l.StaleAfter
}

// pidAlive probes a process with signal 0. EPERM means the process exists
// but belongs to someone else, so it counts as alive.
func pidAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = process.Signal(syscall.Signal(0))
	if err == nil {
		return true
	}
	if errors.Is(err, syscall.EPERM) {
		return true
	}
	return false
}
