package jobstore

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/sys/unix"
)

// Layout resolves the on-disk paths rooted at a jqs root directory.
type Layout struct {
	Root string
}

func NewLayout(root string) Layout {
	return Layout{Root: root}
}

func (l Layout) QueueDir() string        { return filepath.Join(l.Root, "queue") }
func (l Layout) RunningDir() string      { return filepath.Join(l.Root, "running") }
func (l Layout) FinishedDir() string     { return filepath.Join(l.Root, "finished") }
func (l Layout) LocksDir() string        { return filepath.Join(l.Root, "locks") }
func (l Layout) LimitsFile() string      { return filepath.Join(l.Root, "limits.json") }
func (l Layout) UsageFile() string       { return filepath.Join(l.Root, "usage.json") }
func (l Layout) JobIDCounterFile() string { return filepath.Join(l.Root, "jobid_counter") }
func (l Layout) ResourcesLockFile() string { return filepath.Join(l.LocksDir(), "resources.lock") }
func (l Layout) JobIDLockFile() string     { return filepath.Join(l.LocksDir(), "jobid.lock") }

// EnsureTree creates the root directory tree if absent.
func (l Layout) EnsureTree() error {
	dirs := []string{l.Root, l.QueueDir(), l.RunningDir(), l.FinishedDir(), l.LocksDir()}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", d, err)
		}
	}
	return nil
}

// FileLock is a blocking, whole-file, exclusive advisory lock. It is
// released automatically when the process exits, per the OS flock(2)
// contract, and is also released explicitly by Unlock.
type FileLock struct {
	mu   sync.Mutex
	path string
	f    *os.File
}

// NewFileLock returns a lock bound to path. The parent directory must
// already exist.
func NewFileLock(path string) *FileLock {
	return &FileLock{path: path}
}

// Lock blocks until the exclusive advisory lock is acquired.
func (l *FileLock) Lock() error {
	l.mu.Lock()
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		l.mu.Unlock()
		return fmt.Errorf("open lock file %s: %w", l.path, err)
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX); err != nil {
		f.Close()
		l.mu.Unlock()
		return fmt.Errorf("flock %s: %w", l.path, err)
	}
	l.f = f
	return nil
}

// Unlock releases the lock and lets other callers in this process take
// it again.
func (l *FileLock) Unlock() error {
	defer l.mu.Unlock()
	if l.f == nil {
		return nil
	}
	err := unix.Flock(int(l.f.Fd()), unix.LOCK_UN)
	closeErr := l.f.Close()
	l.f = nil
	if err != nil {
		return fmt.Errorf("unflock %s: %w", l.path, err)
	}
	return closeErr
}

// WithLock acquires the lock, runs fn, and unlocks, in all cases.
func (l *FileLock) WithLock(fn func() error) error {
	if err := l.Lock(); err != nil {
		return err
	}
	defer l.Unlock()
	return fn()
}
