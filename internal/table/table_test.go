package table

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/refstack/refstack/internal/compression"
	"github.com/refstack/refstack/internal/vfs"
)

func TestWriterReaderRoundTrip(t *testing.T) {
	fs := vfs.Default()
	dir := t.TempDir()
	path := filepath.Join(dir, "0000000000000001-0000000000000003.ref")

	w := NewWriter(1, compression.SnappyCompression)
	if err := w.AddRef(RefRecord{RefName: "refs/heads/main", UpdateIndex: 1, ValueType: RefValueVal1, Val1: []byte{1, 2, 3}}); err != nil {
		t.Fatalf("AddRef: %v", err)
	}
	if err := w.AddRef(RefRecord{RefName: "refs/heads/topic", UpdateIndex: 3, ValueType: RefValueTombstone}); err != nil {
		t.Fatalf("AddRef: %v", err)
	}
	if err := w.AddLog(LogRecord{RefName: "refs/heads/main", UpdateIndex: 1, Old: []byte{0}, New: []byte{1, 2, 3}, Name: "a", Email: "a@example.com", Time: 100, TZ: 60, Message: "init"}); err != nil {
		t.Fatalf("AddLog: %v", err)
	}

	if err := w.Finish(fs, path, 0644); err != nil {
		t.Fatalf("Finish: %v", err)
	}

	r, err := OpenReader(fs, path)
	if err != nil {
		t.Fatalf("OpenReader: %v", err)
	}

	if r.HashID() != 1 {
		t.Errorf("HashID = %d, want 1", r.HashID())
	}
	if r.MinUpdateIndex() != 1 || r.MaxUpdateIndex() != 3 {
		t.Errorf("update index range = [%d,%d], want [1,3]", r.MinUpdateIndex(), r.MaxUpdateIndex())
	}
	if len(r.RefRecords()) != 2 {
		t.Fatalf("got %d refs, want 2", len(r.RefRecords()))
	}
	if len(r.LogRecords()) != 1 {
		t.Fatalf("got %d logs, want 1", len(r.LogRecords()))
	}

	idx, exact := r.SeekRef("refs/heads/main")
	if !exact {
		t.Fatal("SeekRef(main) not exact")
	}
	got := r.RefRecords()[idx]
	if got.ValueType != RefValueVal1 || !bytes.Equal(got.Val1, []byte{1, 2, 3}) {
		t.Errorf("ref record mismatch: %+v", got)
	}

	idx, exact = r.SeekRef("refs/heads/topic")
	if !exact || !r.RefRecords()[idx].IsTombstone() {
		t.Error("expected tombstone for refs/heads/topic")
	}
}

func TestWriterRejectsOutOfOrderRefs(t *testing.T) {
	w := NewWriter(1, compression.SnappyCompression)
	if err := w.AddRef(RefRecord{RefName: "b", UpdateIndex: 1, ValueType: RefValueTombstone}); err != nil {
		t.Fatalf("AddRef: %v", err)
	}
	if err := w.AddRef(RefRecord{RefName: "a", UpdateIndex: 1, ValueType: RefValueTombstone}); err == nil {
		t.Fatal("expected out-of-order error")
	}
}

func TestWriterRejectsOutOfOrderLogs(t *testing.T) {
	w := NewWriter(1, compression.SnappyCompression)
	if err := w.AddLog(LogRecord{RefName: "a", UpdateIndex: 1}); err != nil {
		t.Fatalf("AddLog: %v", err)
	}
	if err := w.AddLog(LogRecord{RefName: "a", UpdateIndex: 2}); err == nil {
		t.Fatal("expected out-of-order error for higher update_index after lower within same name")
	}
}

func TestFinishEmptyTable(t *testing.T) {
	fs := vfs.Default()
	dir := t.TempDir()
	path := filepath.Join(dir, "empty.ref")

	w := NewWriter(1, compression.SnappyCompression)
	if err := w.Finish(fs, path, 0644); err != ErrEmptyTable {
		t.Fatalf("Finish on empty writer = %v, want ErrEmptyTable", err)
	}
	if fs.Exists(path) {
		t.Error("Finish should not create a file for an empty table")
	}
}

func TestOpenReaderRejectsCorruptFooter(t *testing.T) {
	fs := vfs.Default()
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.ref")

	w := NewWriter(1, compression.SnappyCompression)
	_ = w.AddRef(RefRecord{RefName: "a", UpdateIndex: 1, ValueType: RefValueTombstone})
	if err := w.Finish(fs, path, 0644); err != nil {
		t.Fatalf("Finish: %v", err)
	}

	f, err := fs.OpenRandomAccess(path)
	if err != nil {
		t.Fatalf("OpenRandomAccess: %v", err)
	}
	size := f.Size()
	f.Close()

	data := make([]byte, size)
	raf, _ := fs.OpenRandomAccess(path)
	raf.ReadAt(data, 0)
	raf.Close()
	data[len(data)-1] ^= 0xff // corrupt the stored footer checksum

	wf, err := fs.Create(path)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := wf.Write(data); err != nil {
		t.Fatalf("Write: %v", err)
	}
	wf.Close()

	if _, err := OpenReader(fs, path); err == nil {
		t.Fatal("expected checksum failure on corrupted table")
	}
}

func TestMergedViewNewestWins(t *testing.T) {
	fs := vfs.Default()
	dir := t.TempDir()

	older := NewWriter(1, compression.SnappyCompression)
	_ = older.AddRef(RefRecord{RefName: "refs/heads/main", UpdateIndex: 1, ValueType: RefValueVal1, Val1: []byte{1}})
	pathOld := filepath.Join(dir, "old.ref")
	if err := older.Finish(fs, pathOld, 0644); err != nil {
		t.Fatalf("Finish: %v", err)
	}

	newer := NewWriter(1, compression.SnappyCompression)
	_ = newer.AddRef(RefRecord{RefName: "refs/heads/main", UpdateIndex: 2, ValueType: RefValueVal1, Val1: []byte{2}})
	pathNew := filepath.Join(dir, "new.ref")
	if err := newer.Finish(fs, pathNew, 0644); err != nil {
		t.Fatalf("Finish: %v", err)
	}

	rOld, err := OpenReader(fs, pathOld)
	if err != nil {
		t.Fatalf("OpenReader old: %v", err)
	}
	rNew, err := OpenReader(fs, pathNew)
	if err != nil {
		t.Fatalf("OpenReader new: %v", err)
	}

	view := NewMergedView([]*Reader{rOld, rNew})
	rec, err := view.ReadRef("refs/heads/main")
	if err != nil {
		t.Fatalf("ReadRef: %v", err)
	}
	if !bytes.Equal(rec.Val1, []byte{2}) {
		t.Errorf("ReadRef returned %v, want value from newer table", rec.Val1)
	}
}

func TestMergedViewTombstoneShadowsOlder(t *testing.T) {
	fs := vfs.Default()
	dir := t.TempDir()

	older := NewWriter(1, compression.SnappyCompression)
	_ = older.AddRef(RefRecord{RefName: "refs/heads/main", UpdateIndex: 1, ValueType: RefValueVal1, Val1: []byte{1}})
	pathOld := filepath.Join(dir, "old.ref")
	if err := older.Finish(fs, pathOld, 0644); err != nil {
		t.Fatalf("Finish: %v", err)
	}

	newer := NewWriter(1, compression.SnappyCompression)
	_ = newer.AddRef(RefRecord{RefName: "refs/heads/main", UpdateIndex: 2, ValueType: RefValueTombstone})
	pathNew := filepath.Join(dir, "new.ref")
	if err := newer.Finish(fs, pathNew, 0644); err != nil {
		t.Fatalf("Finish: %v", err)
	}

	rOld, _ := OpenReader(fs, pathOld)
	rNew, _ := OpenReader(fs, pathNew)

	view := NewMergedView([]*Reader{rOld, rNew})
	if _, err := view.ReadRef("refs/heads/main"); err != ErrNotFound {
		t.Fatalf("ReadRef = %v, want ErrNotFound", err)
	}
}

func TestMergedViewReadLogPicksHighestUpdateIndex(t *testing.T) {
	fs := vfs.Default()
	dir := t.TempDir()

	older := NewWriter(1, compression.SnappyCompression)
	_ = older.AddLog(LogRecord{RefName: "refs/heads/main", UpdateIndex: 1, Message: "first"})
	pathOld := filepath.Join(dir, "old.ref")
	if err := older.Finish(fs, pathOld, 0644); err != nil {
		t.Fatalf("Finish: %v", err)
	}

	newer := NewWriter(1, compression.SnappyCompression)
	_ = newer.AddLog(LogRecord{RefName: "refs/heads/main", UpdateIndex: 2, Message: "second"})
	pathNew := filepath.Join(dir, "new.ref")
	if err := newer.Finish(fs, pathNew, 0644); err != nil {
		t.Fatalf("Finish: %v", err)
	}

	rOld, _ := OpenReader(fs, pathOld)
	rNew, _ := OpenReader(fs, pathNew)

	view := NewMergedView([]*Reader{rOld, rNew})
	rec, err := view.ReadLog("refs/heads/main")
	if err != nil {
		t.Fatalf("ReadLog: %v", err)
	}
	if rec.Message != "second" {
		t.Errorf("ReadLog = %q, want %q", rec.Message, "second")
	}
}
