package workspace

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/gofrs/flock"
)

// Lock acquisition retries with linear backoff before giving up; projection
// passes are short, so a couple of seconds covers the common case of two
// commands racing.
const (
	lockRetryDelay = 50 * time.Millisecond
	lockRetryMax   = 8
)

// LockError reports that another projection held the workspace lock past the
// retry bound.
type LockError struct {
	Path string
}

func (e *LockError) Error() string {
	return fmt.Sprintf("workspace lock %s held by another operation", e.Path)
}

// Lock takes the workspace-wide projection lock, serializing every mutation
// of symlinks, index flags, and metadata across processes. The returned
// release function must be called exactly once. Read-only operations
// (preview, status) do not take the lock.
func (w *Workspace) Lock() (func(), error) {
	fl := flock.New(w.lockPath())
	for attempt := 0; ; attempt++ {
		ok, err := fl.TryLock()
		if err != nil {
			return nil, fmt.Errorf("lock %s: %w", w.lockPath(), err)
		}
		if ok {
			break
		}
		if attempt >= lockRetryMax {
			return nil, &LockError{Path: w.lockPath()}
		}
		slog.Debug("workspace locked, retrying", slog.String("path", w.lockPath()))
		time.Sleep(time.Duration(attempt+1) * lockRetryDelay)
	}
	return func() {
		if err := fl.Unlock(); err != nil {
			slog.Error("unlock workspace", slog.Any("error", err))
		}
	}, nil
}
