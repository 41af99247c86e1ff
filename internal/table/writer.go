package table

import (
	"errors"
	"fmt"
	"os"

	"github.com/refstack/refstack/internal/checksum"
	"github.com/refstack/refstack/internal/compression"
	"github.com/refstack/refstack/internal/encoding"
	"github.com/refstack/refstack/internal/vfs"
)

// magic identifies a table file. version is bumped if the footer or block
// layout ever changes incompatibly.
const (
	magic   = "RFTB"
	version = 1
)

// ErrOutOfOrder is returned when a record is appended out of sorted order.
var ErrOutOfOrder = errors.New("table: record out of order")

// ErrEmptyTable is returned by Finish when the writer received zero
// records; the stack treats this as a successful no-op addition rather than
// an error.
var ErrEmptyTable = errors.New("table: no records written")

// Writer accumulates sorted ref/log records and serializes them to a single
// immutable table file on Finish.
type Writer struct {
	hashID byte
	codec  compression.Type

	refs []RefRecord
	logs []LogRecord

	minUpdateIndex uint64
	maxUpdateIndex uint64
	haveIndex      bool
}

// NewWriter creates a Writer stamping hashID into the table header. codec
// selects the compressor applied to the record stream; NoCompression writes
// it verbatim.
func NewWriter(hashID byte, codec compression.Type) *Writer {
	return &Writer{hashID: hashID, codec: codec}
}

// AddRef appends a ref record. Records must arrive in non-decreasing
// refname order.
func (w *Writer) AddRef(rec RefRecord) error {
	if n := len(w.refs); n > 0 && compareRefKeys(w.refs[n-1].RefName, rec.RefName) > 0 {
		return fmt.Errorf("%w: ref %q after %q", ErrOutOfOrder, rec.RefName, w.refs[n-1].RefName)
	}
	w.refs = append(w.refs, rec)
	w.observeIndex(rec.UpdateIndex)
	return nil
}

// AddLog appends a log record. Records must arrive in refname-ascending,
// update_index-descending order (newest entry for a name first).
func (w *Writer) AddLog(rec LogRecord) error {
	if n := len(w.logs); n > 0 {
		last := w.logs[n-1]
		if compareLogKeys(last.RefName, last.UpdateIndex, rec.RefName, rec.UpdateIndex) > 0 {
			return fmt.Errorf("%w: log %q@%d after %q@%d", ErrOutOfOrder, rec.RefName, rec.UpdateIndex, last.RefName, last.UpdateIndex)
		}
	}
	w.logs = append(w.logs, rec)
	w.observeIndex(rec.UpdateIndex)
	return nil
}

func (w *Writer) observeIndex(idx uint64) {
	if !w.haveIndex {
		w.minUpdateIndex, w.maxUpdateIndex = idx, idx
		w.haveIndex = true
		return
	}
	if idx < w.minUpdateIndex {
		w.minUpdateIndex = idx
	}
	if idx > w.maxUpdateIndex {
		w.maxUpdateIndex = idx
	}
}

// Count returns the number of records staged so far.
func (w *Writer) Count() int {
	return len(w.refs) + len(w.logs)
}

// MinUpdateIndex returns the smallest update_index seen, valid once Count > 0.
func (w *Writer) MinUpdateIndex() uint64 { return w.minUpdateIndex }

// MaxUpdateIndex returns the largest update_index seen, valid once Count > 0.
func (w *Writer) MaxUpdateIndex() uint64 { return w.maxUpdateIndex }

// Finish serializes the staged records to fs and renders them durable:
// write to file, fsync, chmod. It does not rename the file into its final
// basename — that is the caller's job, since the final name embeds the
// update-index interval the caller assigned.
//
// Finish returns ErrEmptyTable if no records were staged; the file is not
// created in that case.
func (w *Writer) Finish(fs vfs.FS, path string, mode uint32) error {
	if w.Count() == 0 {
		return ErrEmptyTable
	}

	body, err := w.encodeBody()
	if err != nil {
		return fmt.Errorf("table: compress body: %w", err)
	}
	footer := w.encodeFooter(body)

	f, err := fs.Create(path)
	if err != nil {
		return fmt.Errorf("table: create %s: %w", path, err)
	}
	if _, err := f.Write(body); err != nil {
		_ = f.Close()
		_ = fs.Remove(path)
		return fmt.Errorf("table: write body: %w", err)
	}
	if _, err := f.Write(footer); err != nil {
		_ = f.Close()
		_ = fs.Remove(path)
		return fmt.Errorf("table: write footer: %w", err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = fs.Remove(path)
		return fmt.Errorf("table: sync: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = fs.Remove(path)
		return fmt.Errorf("table: close: %w", err)
	}
	if mode != 0 {
		if err := fs.Chmod(path, os.FileMode(mode)); err != nil {
			return fmt.Errorf("table: chmod: %w", err)
		}
	}
	return nil
}

func (w *Writer) encodeBody() ([]byte, error) {
	var payload []byte
	payload = encoding.AppendVarint64(payload, uint64(len(w.refs)))
	for _, r := range w.refs {
		payload = encodeRef(payload, r)
	}
	payload = encoding.AppendVarint64(payload, uint64(len(w.logs)))
	for _, l := range w.logs {
		payload = encodeLog(payload, l)
	}

	compressed, err := compression.Compress(w.codec, payload)
	if err != nil {
		return nil, err
	}

	var dst []byte
	dst = append(dst, magic...)
	dst = append(dst, version, w.hashID, byte(w.codec))
	dst = encoding.AppendVarint64(dst, uint64(len(compressed)))
	dst = append(dst, compressed...)
	return dst, nil
}

func (w *Writer) encodeFooter(body []byte) []byte {
	var f []byte
	f = encoding.AppendFixed64(f, w.minUpdateIndex)
	f = encoding.AppendFixed64(f, w.maxUpdateIndex)
	sum := checksum.Footer(append(body, f...))
	f = encoding.AppendFixed64(f, sum)
	return f
}

func encodeRef(dst []byte, r RefRecord) []byte {
	dst = encoding.AppendLengthPrefixedSlice(dst, []byte(r.RefName))
	dst = encoding.AppendVarint64(dst, r.UpdateIndex)
	dst = append(dst, byte(r.ValueType))
	switch r.ValueType {
	case RefValueSymref:
		dst = encoding.AppendLengthPrefixedSlice(dst, []byte(r.Target))
	case RefValueVal1:
		dst = encoding.AppendLengthPrefixedSlice(dst, r.Val1)
	case RefValueVal2:
		dst = encoding.AppendLengthPrefixedSlice(dst, r.Val1)
		dst = encoding.AppendLengthPrefixedSlice(dst, r.Val2)
	}
	return dst
}

func encodeLog(dst []byte, l LogRecord) []byte {
	dst = encoding.AppendLengthPrefixedSlice(dst, []byte(l.RefName))
	dst = encoding.AppendVarint64(dst, l.UpdateIndex)
	if l.Deletion {
		dst = append(dst, 1)
		return dst
	}
	dst = append(dst, 0)
	dst = encoding.AppendLengthPrefixedSlice(dst, l.Old)
	dst = encoding.AppendLengthPrefixedSlice(dst, l.New)
	dst = encoding.AppendLengthPrefixedSlice(dst, []byte(l.Name))
	dst = encoding.AppendLengthPrefixedSlice(dst, []byte(l.Email))
	dst = encoding.AppendVarint64(dst, uint64(l.Time))
	dst = encoding.AppendVarint64(dst, uint64(int64(l.TZ)))
	dst = encoding.AppendLengthPrefixedSlice(dst, []byte(l.Message))
	return dst
}
