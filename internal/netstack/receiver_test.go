package netstack

import (
	"bytes"
	"testing"
)

func TestTCPReceiverHandshakeAndData(t *testing.T) {
	r := NewTCPReceiver(1000)
	isn := WrappingInt32(100)

	r.SegmentReceived(TCPSegment{Header: TCPHeader{Seqno: isn, Syn: true}})
	if ackno, ok := r.Ackno(); !ok || ackno != isn+1 {
		t.Fatalf("ackno after SYN = %v (ok=%v), want %d", ackno, ok, isn+1)
	}

	r.SegmentReceived(TCPSegment{Header: TCPHeader{Seqno: isn + 1}, Payload: []byte("hello")})
	if got := r.StreamOut().PeekOutput(100); !bytes.Equal(got, []byte("hello")) {
		t.Fatalf("stream = %q, want hello", got)
	}
	if ackno, _ := r.Ackno(); ackno != isn+6 {
		t.Fatalf("ackno after data = %v, want %d", ackno, isn+6)
	}
}

func TestTCPReceiverDropsBeforeSyn(t *testing.T) {
	r := NewTCPReceiver(1000)
	r.SegmentReceived(TCPSegment{Header: TCPHeader{Seqno: 5}, Payload: []byte("x")})
	if _, ok := r.Ackno(); ok {
		t.Fatalf("ackno should be unset before any SYN")
	}
}

func TestTCPReceiverIgnoresSecondSyn(t *testing.T) {
	r := NewTCPReceiver(1000)
	isn := WrappingInt32(42)
	r.SegmentReceived(TCPSegment{Header: TCPHeader{Seqno: isn, Syn: true}})
	r.SegmentReceived(TCPSegment{Header: TCPHeader{Seqno: isn, Syn: true}})
	ackno, _ := r.Ackno()
	if ackno != isn+1 {
		t.Fatalf("a second SYN must not re-latch the ISN, ackno=%v", ackno)
	}
}

func TestTCPReceiverPureSynFin(t *testing.T) {
	r := NewTCPReceiver(1000)
	isn := WrappingInt32(1000)
	r.SegmentReceived(TCPSegment{Header: TCPHeader{Seqno: isn, Syn: true, Fin: true}})
	if !r.StreamOut().InputEnded() {
		t.Fatalf("pure SYN+FIN should immediately end the stream")
	}
	ackno, _ := r.Ackno()
	if ackno != isn+2 {
		t.Fatalf("ackno after SYN+FIN = %v, want %d", ackno, isn+2)
	}
}

func TestTCPReceiverWindowSize(t *testing.T) {
	r := NewTCPReceiver(10)
	isn := WrappingInt32(0)
	r.SegmentReceived(TCPSegment{Header: TCPHeader{Seqno: isn, Syn: true}})
	r.SegmentReceived(TCPSegment{Header: TCPHeader{Seqno: isn + 1}, Payload: []byte("abcd")})
	if got := r.WindowSize(); got != 6 {
		t.Fatalf("window_size = %d, want 6", got)
	}
}
