// Package table implements the on-disk table format consumed by the stack:
// a Writer that serializes sorted ref/log records to an immutable file, a
// Reader that opens one back up, and a MergedView that fans several readers
// into one logical ordered sequence.
//
// The stack manager treats this package as an external collaborator — it
// never reaches past Writer/Reader/MergedView into the encoding itself.
package table

// RefValueType tags which variant a RefRecord holds.
type RefValueType uint8

const (
	// RefValueTombstone marks the ref as deleted, shadowing older values of
	// the same name in earlier tables.
	RefValueTombstone RefValueType = iota
	// RefValueSymref stores a symbolic reference's target name.
	RefValueSymref
	// RefValueVal1 stores a single object id (the common case).
	RefValueVal1
	// RefValueVal2 stores two object ids (old and new, e.g. for annotated
	// updates that must record both).
	RefValueVal2
)

// RefRecord is one entry in a table's ref block.
type RefRecord struct {
	RefName     string
	UpdateIndex uint64
	ValueType   RefValueType
	Target      string // valid when ValueType == RefValueSymref
	Val1        []byte // valid when ValueType == RefValueVal1 or RefValueVal2
	Val2        []byte // valid when ValueType == RefValueVal2
}

// IsTombstone reports whether the record represents a deletion.
func (r RefRecord) IsTombstone() bool {
	return r.ValueType == RefValueTombstone
}

// LogRecord is one entry in a table's log block, keyed by refname and
// update_index.
type LogRecord struct {
	RefName     string
	UpdateIndex uint64
	Deletion    bool // true if this entry deletes the log at UpdateIndex

	Old     []byte
	New     []byte
	Name    string
	Email   string
	Time    int64 // unix seconds
	TZ      int32 // minutes east of UTC
	Message string
}

// compareRefKeys orders ref records by refname alone.
func compareRefKeys(a, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// compareLogKeys orders log records by refname ascending, then by
// update_index descending, so that a forward scan visits the newest entry
// for a given name first.
func compareLogKeys(aName string, aIdx uint64, bName string, bIdx uint64) int {
	if c := compareRefKeys(aName, bName); c != 0 {
		return c
	}
	switch {
	case aIdx > bIdx:
		return -1
	case aIdx < bIdx:
		return 1
	default:
		return 0
	}
}
