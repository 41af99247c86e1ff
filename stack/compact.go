package stack

import (
	"sort"

	"github.com/refstack/refstack/internal/logging"
	"github.com/refstack/refstack/internal/table"
)

// CompactAll merges every table in the stack into one, subject to expiry.
// Any table lock contention within the range fails the whole operation.
func (s *Stack) CompactAll(expiry *LogExpiry) error {
	n := len(s.rs.basenames)
	if n == 0 {
		return nil
	}
	return s.compactRange(0, n-1, expiry, true)
}

// AutoCompact runs the geometric planner against the stack's current table
// sizes and, if it suggests a segment, compacts it. Lock contention during
// an auto-compaction is tolerated: the range is narrowed rather than
// failing, and total failure is recorded in Stats but never returned here.
func (s *Stack) AutoCompact() error {
	return s.autoCompact()
}

func (s *Stack) autoCompact() error {
	sizes := make([]int, len(s.rs.readers))
	for i, r := range s.rs.readers {
		sizes[i] = r.Count()
	}
	start, end := suggestCompactionSegment(sizes, s.opts.factor())
	if start == end {
		return nil
	}
	return s.compactRange(start, end-1, nil, false)
}

// compactRange merges tables [first, last] (inclusive). explicit selects
// compact_all's strict lock semantics; when false, auto-compaction's
// shrink-around-contention semantics apply instead.
func (s *Stack) compactRange(first, last int, expiry *LogExpiry, explicit bool) error {
	s.stats.Attempts++
	log := s.opts.logger()

	manifestLock, err := acquireLock(s.fs, manifestLockPath(s.dir))
	if err != nil {
		s.stats.Failures++
		if _, ok := err.(*LockError); ok && !explicit {
			log.Warnf(logging.NSCompact+"auto-compaction skipped: manifest lock held")
			return nil
		}
		return err
	}
	manifestLockHeld := true
	releaseManifest := func() {
		if manifestLockHeld {
			releaseLock(s.fs, manifestLock)
			manifestLockHeld = false
		}
	}
	defer releaseManifest()

	basenames := s.rs.basenames
	locks := newTableLocks(s.fs, s.dir)

	failAt := -1
	for i := first; i <= last; i++ {
		if err := locks.acquire(i, basenames[i]); err != nil {
			failAt = i
			break
		}
	}

	if failAt >= 0 {
		if explicit {
			locks.releaseAll()
			s.stats.Failures++
			return &LockError{Path: tableLockPath(s.dir, basenames[failAt])}
		}

		prefixLen := failAt - first
		suffixLen := last - failAt
		switch {
		case prefixLen >= 2 && prefixLen >= suffixLen:
			last = failAt - 1
		case suffixLen >= 2:
			for i := first; i < failAt; i++ {
				locks.release(i)
			}
			first = failAt + 1
			for i := first; i <= last; i++ {
				if err := locks.acquire(i, basenames[i]); err != nil {
					locks.releaseAll()
					s.stats.Failures++
					log.Warnf(logging.NSCompact+"auto-compaction found no lockable sub-range")
					return nil
				}
			}
		default:
			locks.releaseAll()
			s.stats.Failures++
			log.Warnf(logging.NSCompact+"auto-compaction found no lockable sub-range")
			return nil
		}
	}

	selected := s.rs.readers[first : last+1]
	view := table.NewMergedView(selected)

	newBasename, werr := s.mergeRange(selected, view, first == 0, expiry)
	if werr != nil {
		locks.releaseAll()
		s.stats.Failures++
		return werr
	}

	newBasenames := make([]string, 0, len(basenames)-(last-first+1)+1)
	newBasenames = append(newBasenames, basenames[:first]...)
	if newBasename != "" {
		newBasenames = append(newBasenames, newBasename)
	}
	newBasenames = append(newBasenames, basenames[last+1:]...)

	if err := writeManifest(s.fs, s.dir, newBasenames, s.opts.mode()); err != nil {
		locks.releaseAll()
		s.stats.Failures++
		return err
	}
	manifestLockHeld = false // consumed by the rename inside writeManifest

	for i := first; i <= last; i++ {
		_ = s.fs.Remove(tablePath(s.dir, basenames[i]))
	}
	locks.releaseAll()

	if err := s.rs.reload(s.fs, s.dir, s.opts.HashID, log); err != nil {
		s.stats.Failures++
		return err
	}
	s.stats.EntriesWritten += s.lastMergeCount
	return nil
}

// mergeRange writes every live record from selected into a fresh table,
// returning its final basename (or "" if nothing survived). dropTombstones
// is true when the range includes the oldest table in the stack, since a
// tombstone there shadows nothing older and can be discarded.
func (s *Stack) mergeRange(selected []*table.Reader, view *table.MergedView, dropTombstones bool, expiry *LogExpiry) (string, error) {
	names := make(map[string]struct{})
	for _, r := range selected {
		for _, rec := range r.RefRecords() {
			names[rec.RefName] = struct{}{}
		}
	}
	sortedNames := make([]string, 0, len(names))
	for n := range names {
		sortedNames = append(sortedNames, n)
	}
	sort.Strings(sortedNames)

	w := table.NewWriter(s.opts.HashID, s.opts.Compression)
	written := 0
	for _, name := range sortedNames {
		rec, ok := view.Winner(name)
		if !ok {
			continue
		}
		if rec.IsTombstone() && dropTombstones {
			continue
		}
		if err := w.AddRef(rec); err != nil {
			return "", err
		}
		written++
	}

	var logs []table.LogRecord
	for _, r := range selected {
		logs = append(logs, r.LogRecords()...)
	}
	sort.SliceStable(logs, func(i, j int) bool {
		if logs[i].RefName != logs[j].RefName {
			return logs[i].RefName < logs[j].RefName
		}
		return logs[i].UpdateIndex > logs[j].UpdateIndex
	})
	for _, rec := range logs {
		if expiry != nil && !expiry.isZero() {
			if rec.Time < expiry.Time || rec.UpdateIndex < expiry.MinUpdateIndex {
				continue
			}
		}
		if rec.Deletion && dropTombstones {
			continue
		}
		if err := w.AddLog(rec); err != nil {
			return "", err
		}
		written++
	}

	s.lastMergeCount = written
	if written == 0 {
		return "", nil
	}

	basename, err := newTableBasename(w.MinUpdateIndex(), w.MaxUpdateIndex())
	if err != nil {
		return "", err
	}
	tempPath := tablePath(s.dir, basename+".tmp")
	if err := w.Finish(s.fs, tempPath, s.opts.mode()); err != nil {
		_ = s.fs.Remove(tempPath)
		return "", err
	}
	finalPath := tablePath(s.dir, basename)
	if err := s.fs.Rename(tempPath, finalPath); err != nil {
		_ = s.fs.Remove(tempPath)
		return "", err
	}
	return basename, nil
}
