package table

import (
	"errors"
	"fmt"

	"github.com/refstack/refstack/internal/checksum"
	"github.com/refstack/refstack/internal/compression"
	"github.com/refstack/refstack/internal/encoding"
	"github.com/refstack/refstack/internal/vfs"
)

// footerSize is fixed: min_update_index (8) + max_update_index (8) + xxh3
// checksum (8).
const footerSize = 24

// ErrFormat indicates the file is not a well-formed table: bad magic,
// unsupported version, truncated body, or a checksum mismatch. Reading
// further from a table returning ErrFormat is not safe.
var ErrFormat = errors.New("table: corrupt or unsupported file")

// Reader opens a single immutable table file and holds its parsed records
// in memory — the tables a stack manages are small enough that holding the
// whole body is simpler than streaming block I/O, unlike the multi-gigabyte
// SSTables this format began life alongside.
type Reader struct {
	path   string
	hashID byte

	minUpdateIndex uint64
	maxUpdateIndex uint64

	refs []RefRecord
	logs []LogRecord
}

// Path returns the file path the reader was opened from.
func (r *Reader) Path() string { return r.path }

// Close releases the reader. OpenReader reads a table fully into memory and
// does not keep a file descriptor open, so Close never fails; it exists so
// that a reader's lifetime is explicit and symmetric with Writer.
func (r *Reader) Close() error { return nil }

// HashID returns the hash identifier stamped in the table header.
func (r *Reader) HashID() byte { return r.hashID }

// MinUpdateIndex returns the smallest update_index recorded in the table.
func (r *Reader) MinUpdateIndex() uint64 { return r.minUpdateIndex }

// MaxUpdateIndex returns the largest update_index recorded in the table.
func (r *Reader) MaxUpdateIndex() uint64 { return r.maxUpdateIndex }

// Count returns the total number of ref and log records in the table.
func (r *Reader) Count() int { return len(r.refs) + len(r.logs) }

// RefRecords returns the table's ref records in sorted order. The slice
// must not be mutated by the caller.
func (r *Reader) RefRecords() []RefRecord { return r.refs }

// LogRecords returns the table's log records in sorted order. The slice
// must not be mutated by the caller.
func (r *Reader) LogRecords() []LogRecord { return r.logs }

// SeekRef returns the index of the first ref record with RefName >= name,
// and whether an exact match was found at that index.
func (r *Reader) SeekRef(name string) (idx int, exact bool) {
	lo, hi := 0, len(r.refs)
	for lo < hi {
		mid := (lo + hi) / 2
		if compareRefKeys(r.refs[mid].RefName, name) < 0 {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo, lo < len(r.refs) && r.refs[lo].RefName == name
}

// SeekLog returns the index of the first log record for name, which by
// construction is also its newest entry (log records within a name sort by
// update_index descending).
func (r *Reader) SeekLog(name string) (idx int, exact bool) {
	lo, hi := 0, len(r.logs)
	for lo < hi {
		mid := (lo + hi) / 2
		if compareRefKeys(r.logs[mid].RefName, name) < 0 {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo, lo < len(r.logs) && r.logs[lo].RefName == name
}

// OpenReader reads and validates the table file at path in full.
func OpenReader(fs vfs.FS, path string) (*Reader, error) {
	raf, err := fs.OpenRandomAccess(path)
	if err != nil {
		return nil, fmt.Errorf("table: open %s: %w", path, err)
	}
	defer raf.Close()

	size := raf.Size()
	if size < int64(len(magic)+3+footerSize) {
		return nil, fmt.Errorf("%w: %s too small (%d bytes)", ErrFormat, path, size)
	}

	data := make([]byte, size)
	if _, err := raf.ReadAt(data, 0); err != nil {
		return nil, fmt.Errorf("table: read %s: %w", path, err)
	}

	return parseReader(path, data)
}

func parseReader(path string, data []byte) (*Reader, error) {
	const headerSize = 7 // magic(4) + version(1) + hashID(1) + codec(1)
	if len(data) < headerSize+footerSize {
		return nil, fmt.Errorf("%w: %s truncated", ErrFormat, path)
	}
	if string(data[:len(magic)]) != magic {
		return nil, fmt.Errorf("%w: %s bad magic", ErrFormat, path)
	}
	gotVersion := data[len(magic)]
	if gotVersion != version {
		return nil, fmt.Errorf("%w: %s unsupported version %d", ErrFormat, path, gotVersion)
	}
	hashID := data[len(magic)+1]
	codec := compression.Type(data[len(magic)+2])
	if !codec.IsSupported() {
		return nil, fmt.Errorf("%w: %s unsupported compression type %d", ErrFormat, path, codec)
	}

	footerOff := len(data) - footerSize
	footer := data[footerOff:]
	body := data[:footerOff]

	minIdx := encoding.DecodeFixed64(footer[0:8])
	maxIdx := encoding.DecodeFixed64(footer[8:16])
	wantSum := encoding.DecodeFixed64(footer[16:24])

	checkedRegion := data[:footerOff+16]
	if !checksum.VerifyFooter(checkedRegion, wantSum) {
		return nil, fmt.Errorf("%w: %s checksum mismatch", ErrFormat, path)
	}

	r := &Reader{
		path:           path,
		hashID:         hashID,
		minUpdateIndex: minIdx,
		maxUpdateIndex: maxIdx,
	}

	headerCur := encoding.NewCursor(body[headerSize:])
	compressedLen, ok := headerCur.GetVarint64()
	if !ok {
		return nil, fmt.Errorf("%w: %s compressed length", ErrFormat, path)
	}
	compressed, ok := headerCur.GetBytes(int(compressedLen))
	if !ok {
		return nil, fmt.Errorf("%w: %s compressed payload", ErrFormat, path)
	}
	payload, err := compression.Decompress(codec, compressed)
	if err != nil {
		return nil, fmt.Errorf("%w: %s decompress: %v", ErrFormat, path, err)
	}

	cur := encoding.NewCursor(payload)

	nRefs, ok := cur.GetVarint64()
	if !ok {
		return nil, fmt.Errorf("%w: %s ref count", ErrFormat, path)
	}
	r.refs = make([]RefRecord, 0, nRefs)
	for i := uint64(0); i < nRefs; i++ {
		rec, err := decodeRef(cur)
		if err != nil {
			return nil, fmt.Errorf("%w: %s ref[%d]: %v", ErrFormat, path, i, err)
		}
		r.refs = append(r.refs, rec)
	}

	nLogs, ok := cur.GetVarint64()
	if !ok {
		return nil, fmt.Errorf("%w: %s log count", ErrFormat, path)
	}
	r.logs = make([]LogRecord, 0, nLogs)
	for i := uint64(0); i < nLogs; i++ {
		rec, err := decodeLog(cur)
		if err != nil {
			return nil, fmt.Errorf("%w: %s log[%d]: %v", ErrFormat, path, i, err)
		}
		r.logs = append(r.logs, rec)
	}

	return r, nil
}

var errTruncated = errors.New("truncated record")

func decodeRef(cur *encoding.Cursor) (RefRecord, error) {
	name, ok := cur.GetLengthPrefixedSlice()
	if !ok {
		return RefRecord{}, errTruncated
	}
	idx, ok := cur.GetVarint64()
	if !ok {
		return RefRecord{}, errTruncated
	}
	typ, ok := cur.GetByte()
	if !ok {
		return RefRecord{}, errTruncated
	}
	rec := RefRecord{RefName: string(name), UpdateIndex: idx, ValueType: RefValueType(typ)}
	switch rec.ValueType {
	case RefValueSymref:
		target, ok := cur.GetLengthPrefixedSlice()
		if !ok {
			return RefRecord{}, errTruncated
		}
		rec.Target = string(target)
	case RefValueVal1:
		v1, ok := cur.GetLengthPrefixedSlice()
		if !ok {
			return RefRecord{}, errTruncated
		}
		rec.Val1 = append([]byte(nil), v1...)
	case RefValueVal2:
		v1, ok := cur.GetLengthPrefixedSlice()
		if !ok {
			return RefRecord{}, errTruncated
		}
		v2, ok2 := cur.GetLengthPrefixedSlice()
		if !ok2 {
			return RefRecord{}, errTruncated
		}
		rec.Val1 = append([]byte(nil), v1...)
		rec.Val2 = append([]byte(nil), v2...)
	case RefValueTombstone:
	default:
		return RefRecord{}, fmt.Errorf("unknown ref value type %d", typ)
	}
	return rec, nil
}

func decodeLog(cur *encoding.Cursor) (LogRecord, error) {
	name, ok := cur.GetLengthPrefixedSlice()
	if !ok {
		return LogRecord{}, errTruncated
	}
	idx, ok := cur.GetVarint64()
	if !ok {
		return LogRecord{}, errTruncated
	}
	del, ok := cur.GetByte()
	if !ok {
		return LogRecord{}, errTruncated
	}
	rec := LogRecord{RefName: string(name), UpdateIndex: idx}
	if del == 1 {
		rec.Deletion = true
		return rec, nil
	}
	old, ok := cur.GetLengthPrefixedSlice()
	if !ok {
		return LogRecord{}, errTruncated
	}
	newv, ok := cur.GetLengthPrefixedSlice()
	if !ok {
		return LogRecord{}, errTruncated
	}
	name2, ok := cur.GetLengthPrefixedSlice()
	if !ok {
		return LogRecord{}, errTruncated
	}
	email, ok := cur.GetLengthPrefixedSlice()
	if !ok {
		return LogRecord{}, errTruncated
	}
	ts, ok := cur.GetVarint64()
	if !ok {
		return LogRecord{}, errTruncated
	}
	tz, ok := cur.GetVarint64()
	if !ok {
		return LogRecord{}, errTruncated
	}
	msg, ok := cur.GetLengthPrefixedSlice()
	if !ok {
		return LogRecord{}, errTruncated
	}
	rec.Old = append([]byte(nil), old...)
	rec.New = append([]byte(nil), newv...)
	rec.Name, rec.Email = string(name2), string(email)
	rec.Time = int64(ts)
	rec.TZ = int32(int64(tz))
	rec.Message = string(msg)
	return rec, nil
}
