package stack

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
)

// fileMode converts a raw permission value from WriteOptions into an
// os.FileMode suitable for Chmod.
func fileMode(mode uint32) os.FileMode {
	return os.FileMode(mode) & os.ModePerm
}

const (
	manifestName = "tables.list"
	manifestLock = manifestName + ".lock"
	tableSuffix  = ".ref"
)

// manifestPath returns the path to dir's tables.list.
func manifestPath(dir string) string {
	return filepath.Join(dir, manifestName)
}

// manifestLockPath returns the path to dir's manifest lock sentinel.
func manifestLockPath(dir string) string {
	return filepath.Join(dir, manifestLock)
}

// tablePath returns the path to basename inside dir.
func tablePath(dir, basename string) string {
	return filepath.Join(dir, basename)
}

// tableLockPath returns the path to basename's compaction lock sentinel.
func tableLockPath(dir, basename string) string {
	return filepath.Join(dir, basename+".lock")
}

// newTableBasename produces a basename of the shape
// <min_update_index>-<max_update_index>-<random>.ref, hex-encoding both
// indices to a fixed width so that lexical and numeric basename order agree.
func newTableBasename(minIdx, maxIdx uint64) (string, error) {
	var suffix [8]byte
	if _, err := rand.Read(suffix[:]); err != nil {
		return "", fmt.Errorf("stack: random suffix: %w", err)
	}
	return fmt.Sprintf("%016x-%016x-%s%s", minIdx, maxIdx, hex.EncodeToString(suffix[:]), tableSuffix), nil
}

// isTableBasename reports whether name matches the table filename shape, as
// opposed to the manifest, a lock file, or debris left by some other tool.
func isTableBasename(name string) bool {
	if filepath.Ext(name) != tableSuffix {
		return false
	}
	base := name[:len(name)-len(tableSuffix)]
	var minIdx, maxIdx uint64
	var suffix string
	n, err := fmt.Sscanf(base, "%016x-%016x-%16s", &minIdx, &maxIdx, &suffix)
	return err == nil && n == 3
}
