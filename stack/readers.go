package stack

import (
	"errors"
	"fmt"

	"github.com/refstack/refstack/internal/logging"
	"github.com/refstack/refstack/internal/table"
	"github.com/refstack/refstack/internal/vfs"
)

// readerSet is the ordered list of open table readers backing a Stack,
// kept consistent with the on-disk manifest by reload.
type readerSet struct {
	basenames []string
	readers   []*table.Reader
	merged    *table.MergedView

	nextUpdateIndex uint64
}

// reload re-aligns rs with the manifest currently on disk. It opens readers
// for basenames that are new, transfers ownership of readers that survive
// unchanged, and closes readers for basenames that dropped out — never
// closing a reader that is still referenced by the new manifest, even if
// its slot index moved.
func (rs *readerSet) reload(fs vfs.FS, dir string, hashID byte, log logging.Logger) error {
	basenames, err := readManifest(fs, dir)
	if err != nil {
		return err
	}

	old := make(map[string]*table.Reader, len(rs.readers))
	for i, b := range rs.basenames {
		old[b] = rs.readers[i]
	}

	newReaders := make([]*table.Reader, len(basenames))
	kept := make(map[string]bool, len(basenames))
	for i, b := range basenames {
		if r, ok := old[b]; ok {
			newReaders[i] = r
			kept[b] = true
			continue
		}
		r, err := table.OpenReader(fs, tablePath(dir, b))
		if err != nil {
			for j := 0; j < i; j++ {
				if !kept[basenames[j]] {
					_ = newReaders[j].Close()
				}
			}
			if errors.Is(err, table.ErrFormat) {
				return &FormatError{Msg: fmt.Sprintf("open %s: %v", b, err)}
			}
			return fmt.Errorf("stack: reload: open %s: %w", b, err)
		}
		if r.HashID() != hashID {
			_ = r.Close()
			return &FormatError{Msg: fmt.Sprintf("table %s has hash_id %d, stack expects %d", b, r.HashID(), hashID)}
		}
		newReaders[i] = r
		log.Debugf(logging.NSManifest+"opened reader for %s", b)
	}

	for b, r := range old {
		if !kept[b] {
			_ = r.Close()
			log.Debugf(logging.NSManifest+"closed reader for %s", b)
		}
	}

	rs.basenames = basenames
	rs.readers = newReaders
	rs.merged = table.NewMergedView(newReaders)
	rs.nextUpdateIndex = rs.merged.MaxUpdateIndex()
	if len(newReaders) > 0 {
		rs.nextUpdateIndex++
	}
	return nil
}

// closeAll closes every open reader. Used when the stack itself closes.
func (rs *readerSet) closeAll() {
	for _, r := range rs.readers {
		_ = r.Close()
	}
	rs.readers = nil
	rs.basenames = nil
	rs.merged = nil
}
