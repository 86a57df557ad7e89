package checkpoint

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// LockFileName marks a scratch directory as owned by a running ingest.
const LockFileName = "ingest.lock"

// ErrLocked is returned by AcquireLock when another ingest holds the lock.
var ErrLocked = errors.New("ingest lock held")

// LockFilePath returns the lock file path.
func (s *Store) LockFilePath() string {
	if s == nil {
		return ""
	}
	return filepath.Join(s.dir, LockFileName)
}

// AcquireLock creates the lock file, failing with ErrLocked if it exists.
// A stale lock left by a crashed process must be removed by hand.
func (s *Store) AcquireLock() error {
	if s == nil {
		return nil
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("checkpoint: create dir: %w", err)
	}
	f, err := os.OpenFile(s.LockFilePath(), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if errors.Is(err, os.ErrExist) {
		return fmt.Errorf("%w: %s", ErrLocked, s.LockFilePath())
	}
	if err != nil {
		return fmt.Errorf("checkpoint: create lock file: %w", err)
	}
	defer f.Close()

	// Write lock file with PID and timestamp
	if _, err := fmt.Fprintf(f, "pid=%d\ntime=%s\n", os.Getpid(), time.Now().Format(time.RFC3339)); err != nil {
		return fmt.Errorf("checkpoint: write lock file: %w", err)
	}
	return nil
}

// ReleaseLock removes the lock file.
func (s *Store) ReleaseLock() error {
	if s == nil {
		return nil
	}
	if err := os.Remove(s.LockFilePath()); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("checkpoint: remove lock file: %w", err)
	}
	return nil
}
