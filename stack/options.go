package stack

import (
	"github.com/refstack/refstack/internal/compression"
	"github.com/refstack/refstack/internal/logging"
)

// WriteOptions configures how a Stack writes tables and manifests.
type WriteOptions struct {
	// DefaultPermissions is the POSIX mode every produced file is chmod'd to
	// after writing. The chmod applies it as given; the process umask only
	// affects the mode a file is created with.
	DefaultPermissions uint32

	// HashID identifies the object-name digest used by every table in the
	// stack. Opening a stack whose on-disk tables carry a different HashID
	// fails with FormatError.
	HashID byte

	// DisableAutoCompact suppresses the best-effort compaction pass that
	// otherwise runs after every successful Add.
	DisableAutoCompact bool

	// ExactLogMessage disables trailing-newline normalization and the
	// embedded-newline rejection on log messages.
	ExactLogMessage bool

	// CompactionFactor is the geometric growth factor the planner uses to
	// decide whether a table is "much bigger" than its younger neighbors.
	// Zero defaults to 2.
	CompactionFactor int

	// Compression selects the codec applied to every table body this stack
	// writes, both for additions and for compaction output. It has no
	// bearing on reading tables written with a different codec — each
	// table carries its own codec in its header.
	Compression compression.Type

	// Logger receives diagnostic messages. Defaults to a discard logger.
	Logger logging.Logger
}

func (o WriteOptions) logger() logging.Logger {
	return logging.OrDefault(o.Logger)
}

func (o WriteOptions) mode() uint32 {
	if o.DefaultPermissions == 0 {
		return 0644
	}
	return o.DefaultPermissions
}

func (o WriteOptions) factor() int {
	if o.CompactionFactor <= 0 {
		return 2
	}
	return o.CompactionFactor
}

// LogExpiry bounds which log entries survive a compaction. An entry is
// dropped if its Time is strictly less than Time, or its UpdateIndex is
// strictly less than MinUpdateIndex. A zero value expires nothing.
type LogExpiry struct {
	Time           int64
	MinUpdateIndex uint64
}

func (e LogExpiry) isZero() bool {
	return e.Time == 0 && e.MinUpdateIndex == 0
}

// Stats carries compaction telemetry for a Stack. It is safe to read
// concurrently with stack operations only because the stack model itself
// is single-threaded per handle; callers sharing a handle across goroutines
// must serialize themselves.
type Stats struct {
	Attempts       int
	Failures       int
	EntriesWritten int
}
