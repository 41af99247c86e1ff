package stack

import "errors"

// OutdatedError is returned by an addition whose manifest snapshot has been
// superseded by another process's commit. The caller must Reload and retry.
type OutdatedError struct {
	// Path is the manifest the addition was begun against.
	Path string
}

func (e *OutdatedError) Error() string {
	return "stack: manifest at " + e.Path + " was rewritten by another process; reload and retry"
}

// LockError is returned when an exclusive-create lock could not be acquired
// because another process (or a crashed one) already holds it.
type LockError struct {
	// Path is the lock file that was contended.
	Path string
}

func (e *LockError) Error() string {
	return "stack: lock held: " + e.Path
}

// ApiError reports a contract violation by the caller: a non-monotonic
// update_index, a record added to a transaction at or below the index of
// the record before it, or an invalid log message.
type ApiError struct {
	Msg string
}

func (e *ApiError) Error() string {
	return "stack: " + e.Msg
}

// FormatError reports that a table or the stack directory does not contain
// well-formed data: a hash_id mismatch, or a corrupt table file.
type FormatError struct {
	Msg string
}

func (e *FormatError) Error() string {
	return "stack: format error: " + e.Msg
}

// ErrNotFound is returned by ReadRef and ReadLog when no live record
// exists for the requested name.
var ErrNotFound = errors.New("stack: not found")
