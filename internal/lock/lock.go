// Package lock provides per-source file locks so two processes never crawl
// the same source at once.
package lock

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"github.com/gofrs/flock"
)

// ErrHeld is returned when another process holds the lock.
var ErrHeld = errors.New("lock held by another process")

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// Path returns the lock file used for name under dir.
func Path(dir, name string) string {
	return filepath.Join(dir, unsafeChars.ReplaceAllString(name, "_")+".lock")
}

// Acquire takes the lock for name without waiting. The returned func
// releases it.
func Acquire(dir, name string) (func(), error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create lock dir: %w", err)
	}
	path := Path(dir, name)
	l := flock.New(path)
	locked, err := l.TryLock()
	if err != nil {
		return nil, fmt.Errorf("lock %s: %w", path, err)
	}
	if !locked {
		return nil, fmt.Errorf("%s (%s): %w", name, path, ErrHeld)
	}
	return func() { _ = l.Unlock() }, nil
}
