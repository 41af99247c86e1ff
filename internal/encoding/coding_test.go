package encoding

import (
	"bytes"
	"testing"
)

func TestFixed64RoundTrip(t *testing.T) {
	for _, v := range []uint64{0, 1, 255, 1 << 32, ^uint64(0)} {
		buf := AppendFixed64(nil, v)
		if len(buf) != 8 {
			t.Fatalf("AppendFixed64(%d) produced %d bytes, want 8", v, len(buf))
		}
		if got := DecodeFixed64(buf); got != v {
			t.Errorf("DecodeFixed64(AppendFixed64(%d)) = %d", v, got)
		}
	}
}

func TestVarint64RoundTrip(t *testing.T) {
	values := []uint64{0, 1, 127, 128, 300, 1 << 20, 1 << 40, ^uint64(0)}
	for _, v := range values {
		buf := AppendVarint64(nil, v)
		if len(buf) != VarintLength(v) {
			t.Errorf("VarintLength(%d) = %d, encoded length = %d", v, VarintLength(v), len(buf))
		}
		got, n, err := DecodeVarint64(buf)
		if err != nil {
			t.Fatalf("DecodeVarint64(%v): %v", buf, err)
		}
		if got != v || n != len(buf) {
			t.Errorf("DecodeVarint64 round-trip of %d = (%d, %d), want (%d, %d)", v, got, n, v, len(buf))
		}
	}
}

func TestDecodeVarint64Truncated(t *testing.T) {
	buf := AppendVarint64(nil, 1<<40)
	if _, _, err := DecodeVarint64(buf[:len(buf)-1]); err != ErrVarintTermination {
		t.Fatalf("DecodeVarint64 on truncated buffer: got %v, want ErrVarintTermination", err)
	}
}

func TestVarint32Overflow(t *testing.T) {
	buf := AppendVarint64(nil, 1<<40)
	if _, _, err := DecodeVarint32(buf); err != ErrVarintOverflow {
		t.Fatalf("DecodeVarint32 on an out-of-range value: got %v, want ErrVarintOverflow", err)
	}
}

func TestLengthPrefixedSliceRoundTrip(t *testing.T) {
	want := []byte("refs/heads/master")
	buf := AppendLengthPrefixedSlice(nil, want)

	got, n, err := DecodeLengthPrefixedSlice(buf)
	if err != nil {
		t.Fatalf("DecodeLengthPrefixedSlice: %v", err)
	}
	if n != len(buf) || !bytes.Equal(got, want) {
		t.Errorf("DecodeLengthPrefixedSlice = (%q, %d), want (%q, %d)", got, n, want, len(buf))
	}
}

func TestLengthPrefixedSliceTruncated(t *testing.T) {
	buf := AppendLengthPrefixedSlice(nil, []byte("hello"))
	if _, _, err := DecodeLengthPrefixedSlice(buf[:len(buf)-1]); err != ErrBufferTooSmall {
		t.Fatalf("DecodeLengthPrefixedSlice on truncated buffer: got %v, want ErrBufferTooSmall", err)
	}
}

func TestCursorSequentialReads(t *testing.T) {
	var buf []byte
	buf = AppendFixed64(buf, 42)
	buf = AppendVarint64(buf, 1000)
	buf = AppendLengthPrefixedSlice(buf, []byte("HEAD"))

	c := NewCursor(buf)

	fixed, ok := c.GetFixed64()
	if !ok || fixed != 42 {
		t.Fatalf("GetFixed64() = (%d, %v), want (42, true)", fixed, ok)
	}
	v, ok := c.GetVarint64()
	if !ok || v != 1000 {
		t.Fatalf("GetVarint64() = (%d, %v), want (1000, true)", v, ok)
	}
	name, ok := c.GetLengthPrefixedSlice()
	if !ok || string(name) != "HEAD" {
		t.Fatalf("GetLengthPrefixedSlice() = (%q, %v), want (\"HEAD\", true)", name, ok)
	}
	if c.Remaining() != 0 {
		t.Errorf("Remaining() = %d, want 0", c.Remaining())
	}
}
