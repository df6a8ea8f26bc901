package netstack

// outstandingSegment is a previously transmitted, not-yet-fully-acked
// segment kept around for retransmission.
type outstandingSegment struct {
	seg     TCPSegment
	absSeq  uint64
}

// TCPSender generates SYN/data/FIN segments under the peer's advertised
// window, and maintains a retransmission queue driven by a single RTO
// timer (not one timer per segment).
type TCPSender struct {
	isn WrappingInt32

	stream *ByteStream

	window uint16 // peer-advertised window; 1 until the first ACK

	nextSeqno   uint64
	lastAckSeqno uint64

	outstanding []outstandingSegment

	timerRunning bool
	elapsedMs    uint64
	initialRTO   uint64
	currentRTO   uint64

	consecutiveRetx uint64
	finSent         bool

	outbox []TCPSegment
}

// NewTCPSender returns a sender with a fresh outbound ByteStream of the
// given capacity and a fixed ISN (the host picks a random ISN; tests pin
// one for determinism).
func NewTCPSender(capacity uint64, initialRTOMillis uint64, isn WrappingInt32) *TCPSender {
	return &TCPSender{
		isn:        isn,
		stream:     NewByteStream(capacity),
		window:     1,
		initialRTO: initialRTOMillis,
		currentRTO: initialRTOMillis,
	}
}

// StreamIn returns the outbound byte stream the application writes into.
func (s *TCPSender) StreamIn() *ByteStream {
	return s.stream
}

// NextSeqno returns the wrapped next sequence number to be sent.
func (s *TCPSender) NextSeqno() WrappingInt32 {
	return wrap(s.nextSeqno, s.isn)
}

// NextSeqnoAbsolute returns the 64-bit absolute next sequence number.
func (s *TCPSender) NextSeqnoAbsolute() uint64 {
	return s.nextSeqno
}

// BytesInFlight returns next_seqno - last_ack_seqno.
func (s *TCPSender) BytesInFlight() uint64 {
	return s.nextSeqno - s.lastAckSeqno
}

// ConsecutiveRetransmissions returns the current retransmission streak.
func (s *TCPSender) ConsecutiveRetransmissions() uint64 {
	return s.consecutiveRetx
}

// SegmentsOut drains and returns all segments queued for transmission.
func (s *TCPSender) SegmentsOut() []TCPSegment {
	out := s.outbox
	s.outbox = nil
	return out
}

// HasSegmentsOut reports whether any segment is queued for transmission,
// without draining the queue.
func (s *TCPSender) HasSegmentsOut() bool {
	return len(s.outbox) > 0
}

func (s *TCPSender) emit(seg TCPSegment) {
	s.outbox = append(s.outbox, seg)
}

// FillWindow produces as many segments as the peer's advertised window
// (treated as at least 1, to allow a zero-window probe) currently admits.
func (s *TCPSender) FillWindow() {
	if s.finSent {
		return
	}

	effectiveWindow := uint64(s.window)
	if effectiveWindow == 0 {
		effectiveWindow = 1
	}

	for effectiveWindow > s.BytesInFlight() {
		var seg TCPSegment
		if s.nextSeqno == 0 {
			seg.Header.Syn = true
		}

		var synCost uint64
		if seg.Header.Syn {
			synCost = 1
		}
		windowRemain := effectiveWindow - s.BytesInFlight()
		spare := windowRemain - synCost
		payloadCap := spare
		if payloadCap > MaxPayloadSize {
			payloadCap = MaxPayloadSize
		}
		seg.Payload = s.stream.Read(payloadCap)

		if s.stream.Eof() && seg.LengthInSequenceSpace() < windowRemain {
			seg.Header.Fin = true
			s.finSent = true
		}

		if seg.LengthInSequenceSpace() == 0 {
			break
		}

		seg.Header.Seqno = wrap(s.nextSeqno, s.isn)
		s.emit(seg)
		s.outstanding = append(s.outstanding, outstandingSegment{seg: seg, absSeq: s.nextSeqno})
		s.nextSeqno += seg.LengthInSequenceSpace()

		if !s.timerRunning {
			s.timerRunning = true
			s.elapsedMs = 0
		}

		if seg.Header.Fin {
			break
		}
	}
}

// AckReceived processes a cumulative ack and the peer's advertised window,
// popping fully-acknowledged segments and re-arming or stopping the timer.
func (s *TCPSender) AckReceived(ackno WrappingInt32, win uint16) {
	absAck := unwrap(ackno, s.isn, s.nextSeqno)
	if absAck > s.nextSeqno {
		return
	}
	s.window = win

	progress := false
	if absAck > s.lastAckSeqno {
		s.lastAckSeqno = absAck
		s.currentRTO = s.initialRTO
		s.consecutiveRetx = 0
		s.elapsedMs = 0
		progress = true
	}

	for len(s.outstanding) > 0 {
		front := s.outstanding[0]
		if front.absSeq+front.seg.LengthInSequenceSpace() <= absAck {
			s.outstanding = s.outstanding[1:]
		} else {
			break
		}
	}

	s.FillWindow()

	if len(s.outstanding) == 0 {
		s.timerRunning = false
		s.elapsedMs = 0
	} else if progress {
		s.timerRunning = true
		s.elapsedMs = 0
	}
}

// Tick advances the retransmission timer by ms and retransmits the oldest
// outstanding segment on expiry. Unless the peer's advertised window was
// zero, it doubles the RTO and counts the retransmission; the zero-window
// probe case neither backs off nor counts.
func (s *TCPSender) Tick(ms uint64) {
	if !s.timerRunning {
		return
	}
	s.elapsedMs += ms
	if s.elapsedMs < s.currentRTO || len(s.outstanding) == 0 {
		return
	}

	s.emit(s.outstanding[0].seg)
	if s.window > 0 {
		s.currentRTO *= 2
		s.consecutiveRetx++
	}
	s.elapsedMs = 0
}

// SendEmptySegment emits a flagless segment at the current next_seqno. It
// is not tracked for retransmission and does not advance next_seqno; it
// exists purely to force a bare ACK out of the connection layer.
func (s *TCPSender) SendEmptySegment() {
	s.emit(TCPSegment{Header: TCPHeader{Seqno: wrap(s.nextSeqno, s.isn)}})
}
