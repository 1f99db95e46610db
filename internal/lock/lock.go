package lock

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// DefaultName is the lock file used when none is configured.
const DefaultName = "tzw-watch.lock"

type Lock struct {
	file *flock.Flock
}

// Acquire obtains a filesystem lock so only one watcher publishes transitions.
func Acquire(path string) (*Lock, error) {
	if path == "" {
		path = filepath.Join(os.TempDir(), DefaultName)
	}
	lock := flock.New(path)
	ok, err := lock.TryLock()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("another tzw watch is already running (lock: %s)", path)
	}
	return &Lock{file: lock}, nil
}

// Path reports the lock file location.
func (l *Lock) Path() string {
	if l == nil || l.file == nil {
		return ""
	}
	return l.file.Path()
}

// Release frees the lock.
func (l *Lock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}
	return l.file.Unlock()
}
