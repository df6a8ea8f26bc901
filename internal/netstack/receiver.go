package netstack

// TCPReceiver maps inbound segments onto absolute stream indices, feeds
// payload bytes to a StreamReassembler, and reports the cumulative ackno
// and receive window for the local side of a connection.
type TCPReceiver struct {
	reassembler *StreamReassembler
	capacity    uint64

	isn    WrappingInt32
	gotISN bool
}

// NewTCPReceiver returns a receiver whose reassembler drains into a
// freshly created ByteStream of the given capacity.
func NewTCPReceiver(capacity uint64) *TCPReceiver {
	return &TCPReceiver{
		reassembler: NewStreamReassembler(capacity),
		capacity:    capacity,
	}
}

// StreamOut returns the assembled byte stream available to the application.
func (r *TCPReceiver) StreamOut() *ByteStream {
	return r.reassembler.StreamOut()
}

// UnassembledBytes forwards to the underlying reassembler.
func (r *TCPReceiver) UnassembledBytes() uint64 {
	return r.reassembler.UnassembledBytes()
}

// SegmentReceived latches the ISN from the first SYN seen, maps the segment
// onto a stream index, and pushes its payload into the reassembler.
func (r *TCPReceiver) SegmentReceived(seg TCPSegment) {
	if seg.Header.Syn && !r.gotISN {
		r.isn = seg.Header.Seqno
		r.gotISN = true
	}
	if !r.gotISN {
		return
	}

	checkpoint := r.StreamOut().BytesWritten() + 1
	absSeqno := unwrap(seg.Header.Seqno, r.isn, checkpoint)

	var synBit int64
	if seg.Header.Syn {
		synBit = 1
	}
	// A bare SYN (no preceding data) has abs_seqno 0, for which
	// stream_index = 0 - 1 + 1 = 0; anything else yielding a negative
	// index is a malformed segment that precedes the stream's start.
	streamIndex := int64(absSeqno) - 1 + synBit
	if streamIndex < 0 {
		return
	}

	r.reassembler.PushSubstring(seg.Payload, uint64(streamIndex), seg.Header.Fin)
}

// Ackno returns the cumulative next-expected sequence number, or false if
// no SYN has been seen yet.
func (r *TCPReceiver) Ackno() (WrappingInt32, bool) {
	if !r.gotISN {
		return 0, false
	}
	absAck := r.StreamOut().BytesWritten() + 1
	if r.StreamOut().InputEnded() {
		absAck++
	}
	return wrap(absAck, r.isn), true
}

// WindowSize returns the receiver's current advertised window: the
// remaining room in the downstream byte stream. It is not saturated to a
// u16 here; callers do that at the point of serialization.
func (r *TCPReceiver) WindowSize() uint64 {
	return r.capacity - r.StreamOut().BufferSize()
}
