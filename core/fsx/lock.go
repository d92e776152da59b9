package fsx

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// WithExclusiveLock blocks until an exclusive advisory lock on path is held,
// runs fn, and releases the lock. The lock file is created if absent and left
// in place afterwards; the OS drops the lock if the process dies.
func WithExclusiveLock(path string, fn func() error) error {
	parent := filepath.Dir(path)
	if parent != "." && parent != "" {
		if err := os.MkdirAll(parent, 0o755); err != nil {
			return fmt.Errorf("create lock directory: %w", err)
		}
	}
	lock := flock.New(path)
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("acquire exclusive lock on %s: %w", path, err)
	}
	defer func() {
		_ = lock.Unlock()
	}()
	return fn()
}
