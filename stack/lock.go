package stack

import (
	"errors"
	"io"

	"github.com/refstack/refstack/internal/vfs"
)

// acquireLock creates path exclusively and returns a handle whose Close
// releases it. Contention (including a lock left behind by a crashed
// process) surfaces as LockError — this package never force-breaks a lock
// someone else is holding.
func acquireLock(fs vfs.FS, path string) (io.Closer, error) {
	l, err := fs.Lock(path)
	if err != nil {
		if errors.Is(err, vfs.ErrLocked) {
			return nil, &LockError{Path: path}
		}
		return nil, err
	}
	return l, nil
}

// releaseLock removes the lock file, ignoring the case where it is already
// gone (e.g. a manifest lock whose rename already consumed it).
func releaseLock(fs vfs.FS, l io.Closer) {
	if l == nil {
		return
	}
	_ = l.Close()
}

// tableLocks holds the per-table locks acquired for a compaction range,
// keyed by the index into the reader slice the lock covers.
type tableLocks struct {
	fs    vfs.FS
	dir   string
	locks map[int]io.Closer
}

func newTableLocks(fs vfs.FS, dir string) *tableLocks {
	return &tableLocks{fs: fs, dir: dir, locks: make(map[int]io.Closer)}
}

// acquire locks basename for reader index idx. On failure nothing is
// recorded and the caller decides how to react.
func (t *tableLocks) acquire(idx int, basename string) error {
	l, err := acquireLock(t.fs, tableLockPath(t.dir, basename))
	if err != nil {
		return err
	}
	t.locks[idx] = l
	return nil
}

// releaseAll releases every lock held so far, in no particular order.
func (t *tableLocks) releaseAll() {
	for idx, l := range t.locks {
		releaseLock(t.fs, l)
		delete(t.locks, idx)
	}
}

// release releases the lock for a single index, if held.
func (t *tableLocks) release(idx int) {
	if l, ok := t.locks[idx]; ok {
		releaseLock(t.fs, l)
		delete(t.locks, idx)
	}
}
