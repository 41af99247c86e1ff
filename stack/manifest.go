package stack

import (
	"fmt"
	"os"
	"strings"

	"github.com/refstack/refstack/internal/vfs"
)

// readManifest parses tables.list into an ordered list of basenames,
// oldest first. A missing manifest is treated as an empty stack rather
// than an error, so that opening a fresh directory just works.
func readManifest(fs vfs.FS, dir string) ([]string, error) {
	f, err := fs.Open(manifestPath(dir))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("stack: read manifest: %w", err)
	}
	defer f.Close()

	var sb strings.Builder
	buf := make([]byte, 4096)
	for {
		n, rerr := f.Read(buf)
		if n > 0 {
			sb.Write(buf[:n])
		}
		if rerr != nil {
			break
		}
	}

	body := sb.String()
	body = strings.TrimSuffix(body, "\n")
	if body == "" {
		return nil, nil
	}
	return strings.Split(body, "\n"), nil
}

// writeManifest durably replaces tables.list with basenames, oldest first.
// The caller must already hold the manifest lock; writeManifest writes the
// body to the lock file itself, fsyncs, chmods, and renames it over
// tables.list — the rename both publishes the new manifest and releases the
// lock in one atomic step.
func writeManifest(fs vfs.FS, dir string, basenames []string, mode uint32) error {
	lockPath := manifestLockPath(dir)

	var sb strings.Builder
	for _, b := range basenames {
		sb.WriteString(b)
		sb.WriteByte('\n')
	}

	f, err := fs.Create(lockPath)
	if err != nil {
		return fmt.Errorf("stack: open manifest lock for write: %w", err)
	}
	if _, err := f.Write([]byte(sb.String())); err != nil {
		_ = f.Close()
		return fmt.Errorf("stack: write manifest body: %w", err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return fmt.Errorf("stack: sync manifest: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("stack: close manifest: %w", err)
	}
	if err := fs.Chmod(lockPath, fileMode(mode)); err != nil {
		return fmt.Errorf("stack: chmod manifest: %w", err)
	}
	if err := fs.Rename(lockPath, manifestPath(dir)); err != nil {
		// A failed rename leaves tables.list unchanged and the lock file
		// at its path; writeManifest does not remove it, and the caller's
		// lock release path does.
		return fmt.Errorf("stack: rename manifest into place: %w", err)
	}
	if err := fs.SyncDir(dir); err != nil {
		return fmt.Errorf("stack: sync dir after manifest rename: %w", err)
	}
	return nil
}
