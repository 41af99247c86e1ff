package stack

import "github.com/refstack/refstack/internal/vfs"

// clean removes table-shaped files in dir that are not referenced by the
// current manifest and have no live lock file, reclaiming debris left by a
// compaction that crashed after writing its replacement table but before
// (or instead of) deleting the tables it replaced.
//
// The invariant this preserves: never delete a file some other process
// might still be turning into a manifest entry, which is exactly what a
// live lock file signals.
func (s *Stack) Clean() error {
	return clean(s.fs, s.dir, s.rs.basenames)
}

func clean(fs vfs.FS, dir string, live []string) error {
	entries, err := fs.ListDir(dir)
	if err != nil {
		return err
	}

	liveSet := make(map[string]bool, len(live))
	for _, b := range live {
		liveSet[b] = true
	}

	for _, name := range entries {
		if !isTableBasename(name) {
			continue
		}
		if liveSet[name] {
			continue
		}
		if fs.Exists(tableLockPath(dir, name)) {
			continue
		}
		if err := fs.Remove(tablePath(dir, name)); err != nil {
			return err
		}
	}
	return nil
}
