package publish

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"observatory/internal/logging"
)

// ErrLockHeld means another run owns the lock; the caller must exit without
// side effects.
var ErrLockHeld = errors.New("run lock held")

// LockInfo is the lock file's content, inspectable for diagnosing stuck runs.
type LockInfo struct {
	Owner      string    `json:"owner"`
	PID        int       `json:"pid"`
	AcquiredAt time.Time `json:"acquired_at"`
}

// Lock is the host-local exclusive run token. Non-reentrant.
type Lock struct {
	path string
	held bool
}

// AcquireLock takes the run lock with an O_EXCL create, all or nothing. A
// lock already on disk yields ErrLockHeld.
func AcquireLock(path, owner string) (*Lock, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to prepare lock directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if errors.Is(err, fs.ErrExist) {
		logging.PublishWarn("Run lock at %s already held", path)
		return nil, ErrLockHeld
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create lock: %w", err)
	}

	info := LockInfo{Owner: owner, PID: os.Getpid(), AcquiredAt: time.Now().UTC()}
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(info); err != nil {
		f.Close()
		os.Remove(path)
		return nil, fmt.Errorf("failed to write lock: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return nil, err
	}

	logging.Publish("Acquired run lock at %s (owner %s, pid %d)", path, owner, info.PID)
	return &Lock{path: path, held: true}, nil
}

// Release removes the lock file. Safe to call more than once; use with
// defer so every exit path, including panics, releases.
func (l *Lock) Release() error {
	if l == nil || !l.held {
		return nil
	}
	l.held = false
	if err := os.Remove(l.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to release lock: %w", err)
	}
	logging.Publish("Released run lock at %s", l.path)
	return nil
}

// InspectLock reads the lock file without taking it. A missing file returns
// fs.ErrNotExist: no run in progress.
func InspectLock(path string) (*LockInfo, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var info LockInfo
	if err := json.Unmarshal(raw, &info); err != nil {
		return nil, fmt.Errorf("lock file at %s is corrupt: %w", path, err)
	}
	return &info, nil
}
