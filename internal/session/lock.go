package session

import (
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	sherr "github.com/shebe-search/shebe/internal/errors"
)

// mutationLock is the session-scoped advisory lock taken by mutators.
// It is a cross-process flock on <session dir>/.lock, so two serving
// processes contending on the same session are serialized the same way
// as two goroutines. Readers never take it.
type mutationLock struct {
	name  string
	flock *flock.Flock
}

// acquireLock tries to take the exclusive lock for a session without
// blocking. A held lock fails fast with the session-busy code; there is
// no queuing.
func acquireLock(dir, name string) (*mutationLock, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, sherr.IOFailure("failed to create session directory", err)
	}
	fl := flock.New(filepath.Join(dir, lockFileName))
	acquired, err := fl.TryLock()
	if err != nil {
		return nil, sherr.IOFailure("failed to acquire session lock", err)
	}
	if !acquired {
		return nil, sherr.SessionBusy(name)
	}
	return &mutationLock{name: name, flock: fl}, nil
}

// release drops the lock. Safe to call on an already-released lock.
func (l *mutationLock) release() {
	_ = l.flock.Unlock()
}
