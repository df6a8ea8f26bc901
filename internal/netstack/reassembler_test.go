package netstack

import (
	"bytes"
	"testing"
)

func TestReassemblerOutOfOrder(t *testing.T) {
	r := NewStreamReassembler(1000)

	r.PushSubstring([]byte("cd"), 2, false)
	if got := r.StreamOut().Read(100); len(got) != 0 {
		t.Fatalf("expected nothing readable yet, got %q", got)
	}

	r.PushSubstring([]byte("ab"), 0, false)
	if got := r.StreamOut().PeekOutput(100); !bytes.Equal(got, []byte("abcd")) {
		t.Fatalf("got %q, want abcd", got)
	}

	r.PushSubstring([]byte("ef"), 4, true)
	if got := r.StreamOut().Read(100); !bytes.Equal(got, []byte("abcdef")) {
		t.Fatalf("got %q, want abcdef", got)
	}
	if !r.StreamOut().InputEnded() {
		t.Fatalf("expected input_ended after contiguous eof reached")
	}
	if r.UnassembledBytes() != 0 {
		t.Fatalf("unassembled_bytes = %d, want 0", r.UnassembledBytes())
	}
}

func TestReassemblerOverlapDedup(t *testing.T) {
	r := NewStreamReassembler(1000)
	r.PushSubstring([]byte("abc"), 0, false)
	r.PushSubstring([]byte("bcd"), 1, false)
	got := r.StreamOut().PeekOutput(100)
	if !bytes.Equal(got, []byte("abcd")) {
		t.Fatalf("got %q, want abcd", got)
	}
}

func TestReassemblerCapacityBound(t *testing.T) {
	r := NewStreamReassembler(4)
	// Push beyond the window; bytes past capacity must be clipped, never
	// exceeding capacity when combined with buffered downstream bytes.
	r.PushSubstring([]byte("abcdefgh"), 0, false)
	if r.StreamOut().BufferSize()+r.UnassembledBytes() > 4 {
		t.Fatalf("capacity invariant violated: buffer=%d unassembled=%d",
			r.StreamOut().BufferSize(), r.UnassembledBytes())
	}
}

func TestReassemblerIdempotentPush(t *testing.T) {
	r := NewStreamReassembler(1000)
	r.PushSubstring([]byte("ab"), 0, false)
	before := r.StreamOut().PeekOutput(100)
	r.PushSubstring([]byte("ab"), 0, false)
	after := r.StreamOut().PeekOutput(100)
	if !bytes.Equal(before, after) {
		t.Fatalf("duplicate push changed output: %q -> %q", before, after)
	}
}

func TestReassemblerEmptyEofMarker(t *testing.T) {
	r := NewStreamReassembler(1000)
	r.PushSubstring(nil, 0, true)
	if !r.StreamOut().InputEnded() {
		t.Fatalf("empty eof push at index 0 on an empty stream should end input")
	}
}

func TestReassemblerStraddlingWindowTruncated(t *testing.T) {
	r := NewStreamReassembler(4)
	r.PushSubstring([]byte("abcdefgh"), 0, true)
	// Only the first 4 bytes fit; eof should not fire until the remaining
	// bytes beyond the window are ever delivered (they never will be here),
	// so input_ended must still be false.
	if r.StreamOut().InputEnded() {
		t.Fatalf("input should not end until the full eof index is reached")
	}
}
