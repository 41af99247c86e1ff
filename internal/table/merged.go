package table

import "errors"

// ErrNotFound is returned when a name has no live record across the
// readers a MergedView was built from.
var ErrNotFound = errors.New("table: not found")

// MergedView fans a list of table readers into one logical sorted view.
// Readers must be supplied oldest-first, matching their order in
// tables.list. ReadRef scans from the newest (last) reader backward and the
// first record found for a name wins; ReadLog visits every reader and picks
// the entry with the highest update_index.
type MergedView struct {
	readers []*Reader
}

// NewMergedView builds a view over readers, oldest table first.
func NewMergedView(readers []*Reader) *MergedView {
	return &MergedView{readers: readers}
}

// ReadRef returns the live value of name, scanning tables newest-first. A
// tombstone in the newest table that mentions name shadows older values and
// is reported as ErrNotFound.
func (m *MergedView) ReadRef(name string) (RefRecord, error) {
	for i := len(m.readers) - 1; i >= 0; i-- {
		idx, exact := m.readers[i].SeekRef(name)
		if !exact {
			continue
		}
		rec := m.readers[i].refs[idx]
		if rec.IsTombstone() {
			return RefRecord{}, ErrNotFound
		}
		return rec, nil
	}
	return RefRecord{}, ErrNotFound
}

// ReadLog returns the record with the highest update_index across all
// tables for name. Deletion records shadow the name entirely for the
// purposes of this lookup — the caller gets ErrNotFound rather than a tombstoned
// entry, since a deleted log has no further history to walk.
func (m *MergedView) ReadLog(name string) (LogRecord, error) {
	var best LogRecord
	found := false
	for i := len(m.readers) - 1; i >= 0; i-- {
		idx, exact := m.readers[i].SeekLog(name)
		if !exact {
			continue
		}
		rec := m.readers[i].logs[idx]
		if !found || rec.UpdateIndex > best.UpdateIndex {
			best, found = rec, true
		}
	}
	if !found {
		return LogRecord{}, ErrNotFound
	}
	if best.Deletion {
		return LogRecord{}, ErrNotFound
	}
	return best, nil
}

// Winner returns the raw record that wins for name — the one from the
// newest reader that mentions it — without collapsing a tombstone into
// ErrNotFound. Compaction needs the tombstone itself, not just its
// liveness, to decide whether the deletion still shadows older tables
// outside the merge.
func (m *MergedView) Winner(name string) (RefRecord, bool) {
	for i := len(m.readers) - 1; i >= 0; i-- {
		idx, exact := m.readers[i].SeekRef(name)
		if exact {
			return m.readers[i].refs[idx], true
		}
	}
	return RefRecord{}, false
}

// MaxUpdateIndex returns the highest update_index across all readers, or 0
// if the view is empty. The stack uses this to compute the next index a
// new addition may claim.
func (m *MergedView) MaxUpdateIndex() uint64 {
	var max uint64
	for _, r := range m.readers {
		if r.MaxUpdateIndex() > max {
			max = r.MaxUpdateIndex()
		}
	}
	return max
}
