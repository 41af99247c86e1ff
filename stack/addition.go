package stack

import (
	"io"

	"github.com/refstack/refstack/internal/logging"
	"github.com/refstack/refstack/internal/table"
)

// Addition is a short-lived handle for staging one new table. It is the
// writer-side API surface the stack hands the caller: AddRef and AddLog
// append records, and Commit rewrites the manifest to publish them.
//
// An Addition must be closed by either Commit or Destroy. Committing twice,
// or writing after Commit/Destroy, is a programmer error.
type Addition struct {
	stack *Stack

	manifestLock io.Closer
	lockPath     string

	baseBasenames  []string
	minUpdateIndex uint64
	sawIndex       bool
	lastIndex      uint64

	writer *table.Writer
	done   bool
}

// newAddition begins a transaction: it acquires the manifest lock and
// snapshots the current manifest. If another process has rewritten the
// manifest since the stack's last reload, it returns OutdatedError and the
// caller must Reload and retry.
func (s *Stack) newAddition() (*Addition, error) {
	lockPath := manifestLockPath(s.dir)
	lock, err := acquireLock(s.fs, lockPath)
	if err != nil {
		return nil, err
	}

	current, err := readManifest(s.fs, s.dir)
	if err != nil {
		releaseLock(s.fs, lock)
		return nil, err
	}
	if !stringSlicesEqual(current, s.rs.basenames) {
		releaseLock(s.fs, lock)
		return nil, &OutdatedError{Path: manifestPath(s.dir)}
	}

	return &Addition{
		stack:          s,
		manifestLock:   lock,
		lockPath:       lockPath,
		baseBasenames:  append([]string(nil), s.rs.basenames...),
		minUpdateIndex: s.rs.nextUpdateIndex,
		writer:         table.NewWriter(s.opts.HashID, s.opts.Compression),
	}, nil
}

// checkIndex enforces that update indices never decrease across the
// lifetime of one Addition: the first record must land at or after
// minUpdateIndex, and every later one must strictly exceed the last.
func (a *Addition) checkIndex(idx uint64) error {
	if !a.sawIndex {
		if idx < a.minUpdateIndex {
			return &ApiError{Msg: "update_index below next_update_index"}
		}
		return nil
	}
	if idx <= a.lastIndex {
		return &ApiError{Msg: "update_index did not increase within addition"}
	}
	return nil
}

// AddRef appends a ref record to the staged table.
func (a *Addition) AddRef(rec table.RefRecord) error {
	if a.done {
		return &ApiError{Msg: "addition already committed or destroyed"}
	}
	if err := a.checkIndex(rec.UpdateIndex); err != nil {
		return err
	}
	if err := a.writer.AddRef(rec); err != nil {
		return &ApiError{Msg: err.Error()}
	}
	a.lastIndex, a.sawIndex = rec.UpdateIndex, true
	return nil
}

// AddLog appends a log record to the staged table, normalizing its message
// per the stack's ExactLogMessage option.
func (a *Addition) AddLog(rec table.LogRecord) error {
	if a.done {
		return &ApiError{Msg: "addition already committed or destroyed"}
	}
	if err := a.checkIndex(rec.UpdateIndex); err != nil {
		return err
	}
	if !rec.Deletion {
		msg, err := normalizeLogMessage(rec.Message, a.stack.opts.ExactLogMessage)
		if err != nil {
			return err
		}
		rec.Message = msg
	}
	if err := a.writer.AddLog(rec); err != nil {
		return &ApiError{Msg: err.Error()}
	}
	a.lastIndex, a.sawIndex = rec.UpdateIndex, true
	return nil
}

// MinUpdateIndex returns the lower bound every record in this addition must
// respect.
func (a *Addition) MinUpdateIndex() uint64 { return a.minUpdateIndex }

// Commit finalizes the staged table (if any records were written) and
// rewrites the manifest to publish it, then reloads the stack and runs
// auto-compaction unless disabled.
func (a *Addition) Commit() error {
	if a.done {
		return &ApiError{Msg: "addition already committed or destroyed"}
	}
	a.done = true
	lock := a.manifestLock
	defer func() { releaseLock(a.stack.fs, lock) }()

	newBasenames := a.baseBasenames
	if a.writer.Count() > 0 {
		basename, err := newTableBasename(a.writer.MinUpdateIndex(), a.writer.MaxUpdateIndex())
		if err != nil {
			return err
		}
		tempPath := tablePath(a.stack.dir, basename+".tmp")
		if err := a.writer.Finish(a.stack.fs, tempPath, a.stack.opts.mode()); err != nil {
			_ = a.stack.fs.Remove(tempPath)
			return err
		}
		finalPath := tablePath(a.stack.dir, basename)
		if err := a.stack.fs.Rename(tempPath, finalPath); err != nil {
			_ = a.stack.fs.Remove(tempPath)
			return err
		}
		newBasenames = append(append([]string(nil), a.baseBasenames...), basename)
	}

	if err := writeManifest(a.stack.fs, a.stack.dir, newBasenames, a.stack.opts.mode()); err != nil {
		return err
	}
	lock = nil // consumed by the rename inside writeManifest

	if err := a.stack.rs.reload(a.stack.fs, a.stack.dir, a.stack.opts.HashID, a.stack.opts.logger()); err != nil {
		return err
	}

	if !a.stack.opts.DisableAutoCompact {
		if err := a.stack.autoCompact(); err != nil {
			a.stack.opts.logger().Warnf(logging.NSCompact+"auto-compaction failed: %v", err)
		}
	}
	return nil
}

// Destroy abandons the addition: the manifest lock is released and nothing
// is published. Safe to call after Commit, as a no-op.
func (a *Addition) Destroy() error {
	if a.done {
		return nil
	}
	a.done = true
	releaseLock(a.stack.fs, a.manifestLock)
	return nil
}

func stringSlicesEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
