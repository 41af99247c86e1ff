// Package stack implements a transactional stack of immutable reference
// tables: an ordered list of append-only table files, unioned by a
// tables.list manifest into one logical sorted view of refs and their
// reflog history. Writers append new tables under an exclusive manifest
// lock; a background compaction policy periodically merges adjacent tables
// to bound the number of files a reader has to consult.
//
// The package owns the manifest, the lock protocol, and the compaction
// planner and executor. It consumes, but does not implement, the on-disk
// table format: see the table package for the Writer, Reader, and
// MergedView types a Stack opens and writes.
package stack

import (
	"fmt"

	"github.com/refstack/refstack/internal/table"
	"github.com/refstack/refstack/internal/vfs"
)

// Stack is a handle on one reference-table directory. A Stack is not safe
// for concurrent use by multiple goroutines; concurrency across processes
// is handled entirely through filesystem locks.
type Stack struct {
	dir  string
	fs   vfs.FS
	opts WriteOptions

	rs    readerSet
	stats Stats

	lastMergeCount int
}

// Open loads (or initializes) the stack rooted at dir. A directory with no
// tables.list yet is treated as an empty stack rather than an error.
func Open(dir string, opts WriteOptions) (*Stack, error) {
	return OpenFS(vfs.Default(), dir, opts)
}

// OpenFS is Open with an explicit filesystem, primarily for tests.
func OpenFS(fs vfs.FS, dir string, opts WriteOptions) (*Stack, error) {
	if err := fs.MkdirAll(dir, fileMode(opts.mode())|0700); err != nil {
		return nil, fmt.Errorf("stack: mkdir %s: %w", dir, err)
	}
	s := &Stack{dir: dir, fs: fs, opts: opts}
	if err := s.rs.reload(fs, dir, opts.HashID, opts.logger()); err != nil {
		return nil, err
	}
	return s, nil
}

// Close releases every open reader. It does not release any lock — a
// Stack never holds a lock outside the lifetime of an addition or a
// compaction call.
func (s *Stack) Close() {
	s.rs.closeAll()
}

// ReadRef returns the live value of name, or ErrNotFound if it has none
// (including the case where the most recent write was a deletion).
func (s *Stack) ReadRef(name string) (table.RefRecord, error) {
	if s.rs.merged == nil {
		return table.RefRecord{}, ErrNotFound
	}
	rec, err := s.rs.merged.ReadRef(name)
	if err != nil {
		return table.RefRecord{}, ErrNotFound
	}
	return rec, nil
}

// ReadLog returns the most recent log entry for name, or ErrNotFound.
func (s *Stack) ReadLog(name string) (table.LogRecord, error) {
	if s.rs.merged == nil {
		return table.LogRecord{}, ErrNotFound
	}
	rec, err := s.rs.merged.ReadLog(name)
	if err != nil {
		return table.LogRecord{}, ErrNotFound
	}
	return rec, nil
}

// NextUpdateIndex returns the update_index the next addition will start
// from.
func (s *Stack) NextUpdateIndex() uint64 {
	return s.rs.nextUpdateIndex
}

// Reload re-aligns the stack's open readers with the manifest currently on
// disk, picking up commits made by other processes.
func (s *Stack) Reload() error {
	return s.rs.reload(s.fs, s.dir, s.opts.HashID, s.opts.logger())
}

// CompactionStats returns a snapshot of the stack's compaction counters.
func (s *Stack) CompactionStats() Stats {
	return s.stats
}

// Add stages one new table via fn and commits it. fn may write zero
// records, in which case the addition is a successful no-op. If another
// process has advanced the manifest since this stack's last reload, Add
// returns OutdatedError; the caller should Reload and retry.
func (s *Stack) Add(fn func(*Addition) error) error {
	a, err := s.newAddition()
	if err != nil {
		return err
	}
	if err := fn(a); err != nil {
		_ = a.Destroy()
		return err
	}
	return a.Commit()
}

// NewAddition begins a transaction without a callback, for callers that
// want Commit/Destroy control over its lifetime directly.
func (s *Stack) NewAddition() (*Addition, error) {
	return s.newAddition()
}
