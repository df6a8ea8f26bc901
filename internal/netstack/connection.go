package netstack

// MaxRetxAttempts is the number of retransmissions a connection tolerates
// before giving up and resetting.
const MaxRetxAttempts = 8

// DefaultStreamCapacity is the byte-stream capacity used for both
// directions of a connection unless a Config overrides it.
const DefaultStreamCapacity = 64000

// DefaultInitialRTOMillis is the starting retransmission timeout.
const DefaultInitialRTOMillis = 1000

// TCPConnection wires a TCPSender and TCPReceiver together, stamps
// ACK/window onto outbound segments, and implements the handshake/close/RST
// rules that an explicit TCP state machine would otherwise enumerate.
type TCPConnection struct {
	sender   *TCPSender
	receiver *TCPReceiver

	outbound []TCPSegment

	isActive                bool
	lingerAfterStreamsFinish bool

	msSinceLastSegmentReceived uint64
	initialRTOMillis           uint64
}

// NewTCPConnection returns an active connection with the given stream
// capacity, initial RTO, and ISN (callers pick a random ISN outside of
// tests).
func NewTCPConnection(capacity uint64, initialRTOMillis uint64, isn WrappingInt32) *TCPConnection {
	return &TCPConnection{
		sender:                   NewTCPSender(capacity, initialRTOMillis, isn),
		receiver:                 NewTCPReceiver(capacity),
		isActive:                 true,
		lingerAfterStreamsFinish: true,
		initialRTOMillis:         initialRTOMillis,
	}
}

// Sender exposes the connection's sender half.
func (c *TCPConnection) Sender() *TCPSender { return c.sender }

// Receiver exposes the connection's receiver half.
func (c *TCPConnection) Receiver() *TCPReceiver { return c.receiver }

// Inbound returns the stream of bytes the application reads from.
func (c *TCPConnection) Inbound() *ByteStream { return c.receiver.StreamOut() }

// BytesInFlight forwards to the sender.
func (c *TCPConnection) BytesInFlight() uint64 { return c.sender.BytesInFlight() }

// UnassembledBytes forwards to the receiver.
func (c *TCPConnection) UnassembledBytes() uint64 { return c.receiver.UnassembledBytes() }

// TimeSinceLastSegmentReceived reports milliseconds of ticked time since
// the last inbound segment, for TIME_WAIT-style lingering.
func (c *TCPConnection) TimeSinceLastSegmentReceived() uint64 {
	return c.msSinceLastSegmentReceived
}

// RemainingOutboundCapacity reports how much more the application may
// Write before the sender's stream fills up.
func (c *TCPConnection) RemainingOutboundCapacity() uint64 {
	return c.sender.StreamIn().RemainingCapacity()
}

// Active reports whether the connection is still alive.
func (c *TCPConnection) Active() bool { return c.isActive }

// Connect kicks off the handshake by generating and flushing a SYN.
func (c *TCPConnection) Connect() {
	c.sender.FillWindow()
	c.flush()
}

// Write appends data to the outbound stream and flushes whatever segments
// that admits.
func (c *TCPConnection) Write(data []byte) uint64 {
	n := c.sender.StreamIn().Write(data)
	c.sender.FillWindow()
	c.flush()
	return n
}

// EndInputStream closes the local write side, allowing a FIN to be sent
// once the window admits it.
func (c *TCPConnection) EndInputStream() {
	c.sender.StreamIn().EndInput()
	c.sender.FillWindow()
	c.flush()
}

// SegmentReceived processes one inbound segment: RST teardown, receiver and
// sender bookkeeping, passive-close/keep-alive handling, and the ACK
// obligations that follow.
func (c *TCPConnection) SegmentReceived(seg TCPSegment) {
	if !c.isActive {
		return
	}
	c.msSinceLastSegmentReceived = 0

	if seg.Header.Rst {
		c.errorAndDeactivate()
		return
	}

	c.receiver.SegmentReceived(seg)
	if seg.Header.Ack {
		c.sender.AckReceived(seg.Header.Ackno, seg.Header.Win)
	}

	// Passive-close detection: the peer's FIN has been fully assembled but
	// we haven't closed our own outbound stream yet, so we're the passive
	// closer and need not linger in TIME_WAIT.
	if c.receiver.StreamOut().InputEnded() && !c.sender.StreamIn().Eof() {
		c.lingerAfterStreamsFinish = false
	}

	// Keep-alive: a segment occupying no sequence space whose seqno is one
	// below our ackno is a probe; answer it with a bare ACK.
	if ackno, ok := c.receiver.Ackno(); ok && seg.LengthInSequenceSpace() == 0 {
		if seg.Header.Seqno == WrappingInt32(uint32(ackno)-1) {
			c.sender.SendEmptySegment()
		}
	}

	if seg.LengthInSequenceSpace() > 0 {
		c.sender.FillWindow()
		if !c.sender.HasSegmentsOut() {
			c.sender.SendEmptySegment()
		}
	}

	c.flush()
	c.evaluateCleanShutdown()
}

// Tick advances logical time: the sender's retransmission timer, the
// abusive-retransmission RST check, and the clean-shutdown/linger check.
func (c *TCPConnection) Tick(ms uint64) {
	if !c.isActive {
		return
	}
	c.msSinceLastSegmentReceived += ms
	c.sender.Tick(ms)

	if c.sender.ConsecutiveRetransmissions() > MaxRetxAttempts {
		c.outbound = nil
		rst := TCPSegment{Header: TCPHeader{Seqno: c.sender.NextSeqno(), Rst: true}}
		c.stampAck(&rst)
		c.outbound = append(c.outbound, rst)
		c.receiver.StreamOut().SetError()
		c.sender.StreamIn().SetError()
		c.isActive = false
		return
	}

	c.flush()
	c.evaluateCleanShutdown()
}

// SegmentsOut drains and returns all segments queued for transmission.
func (c *TCPConnection) SegmentsOut() []TCPSegment {
	out := c.outbound
	c.outbound = nil
	return out
}

// Close emits a RST to warn the peer of an unclean shutdown, for use when an
// active connection is being torn down by its owner while still active
// (e.g. program exit before a clean FIN exchange completes).
func (c *TCPConnection) Close() {
	if !c.isActive {
		return
	}
	rst := TCPSegment{Header: TCPHeader{Seqno: c.sender.NextSeqno(), Rst: true}}
	c.stampAck(&rst)
	c.outbound = append(c.outbound, rst)
	c.errorAndDeactivate()
}

func (c *TCPConnection) errorAndDeactivate() {
	c.receiver.StreamOut().SetError()
	c.sender.StreamIn().SetError()
	c.isActive = false
}

// flush moves every segment the sender has queued into the connection's
// outbound queue, stamping ACK/ackno/window along the way.
func (c *TCPConnection) flush() {
	for _, seg := range c.sender.SegmentsOut() {
		c.stampAck(&seg)
		c.outbound = append(c.outbound, seg)
	}
}

func (c *TCPConnection) stampAck(seg *TCPSegment) {
	ackno, ok := c.receiver.Ackno()
	if !ok {
		return
	}
	seg.Header.Ack = true
	seg.Header.Ackno = ackno
	win := c.receiver.WindowSize()
	if win > 0xffff {
		win = 0xffff
	}
	seg.Header.Win = uint16(win)
}

func (c *TCPConnection) evaluateCleanShutdown() {
	if !c.isActive {
		return
	}
	receiverDone := c.receiver.StreamOut().InputEnded()
	senderDone := c.sender.StreamIn().Eof() &&
		c.sender.NextSeqnoAbsolute() == c.sender.StreamIn().BytesWritten()+2 &&
		c.sender.BytesInFlight() == 0

	if !(receiverDone && senderDone) {
		return
	}
	if !c.lingerAfterStreamsFinish {
		c.isActive = false
		return
	}
	if c.msSinceLastSegmentReceived >= 10*c.initialRTOMillis {
		c.isActive = false
	}
}
