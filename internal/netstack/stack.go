package netstack

import (
	"log/slog"
	"math/rand/v2"
	"sync"
)

// FourTuple identifies a TCP connection by its endpoints.
type FourTuple struct {
	SrcIP   IPv4Addr
	SrcPort uint16
	DstIP   IPv4Addr
	DstPort uint16
}

// Stack glues a NetworkInterface and a demultiplexing table of TCPConnections
// together: it logs with slog (the only type in this package that logs),
// dispatches inbound segments to the connection (or listener) they belong
// to, and stamps outbound segments with a correctly checksummed IPv4/TCP
// header pair before handing them to the interface.
type Stack struct {
	log   *slog.Logger
	iface *NetworkInterface
	cfg   Config

	mu        sync.Mutex
	conns     map[FourTuple]*TCPConnection
	listeners map[uint16]chan *TCPConnection
	isnFunc   func() WrappingInt32
}

// New returns a Stack bound to iface, logging through log. isnFunc supplies
// each new connection's ISN; when nil, a random ISN is picked per connection.
func New(log *slog.Logger, iface *NetworkInterface, cfg Config, isnFunc func() WrappingInt32) *Stack {
	if log == nil {
		log = slog.Default()
	}
	if isnFunc == nil {
		isnFunc = func() WrappingInt32 { return WrappingInt32(rand.Uint32()) }
	}
	return &Stack{
		log:       log,
		iface:     iface,
		cfg:       cfg,
		conns:     make(map[FourTuple]*TCPConnection),
		listeners: make(map[uint16]chan *TCPConnection),
		isnFunc:   isnFunc,
	}
}

// Listen registers port as accepting passive connections. The returned
// channel receives one *TCPConnection per inbound SYN, sent as soon as the
// connection is created and before the handshake completes.
func (s *Stack) Listen(port uint16) <-chan *TCPConnection {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch := make(chan *TCPConnection, 16)
	s.listeners[port] = ch
	return ch
}

// Dial opens an active connection from srcPort to dst:dstPort.
func (s *Stack) Dial(srcIP IPv4Addr, srcPort uint16, dstIP IPv4Addr, dstPort uint16) *TCPConnection {
	s.mu.Lock()
	defer s.mu.Unlock()

	tuple := FourTuple{SrcIP: srcIP, SrcPort: srcPort, DstIP: dstIP, DstPort: dstPort}
	conn := NewTCPConnection(s.cfg.StreamCapacity, s.cfg.InitialRTOMillis, s.isnFunc())
	s.conns[tuple] = conn
	conn.Connect()
	s.log.Debug("tcp dial", "src", srcIP, "srcPort", srcPort, "dst", dstIP, "dstPort", dstPort)
	s.flushLocked(tuple, conn)
	return conn
}

// HandleInboundFrame feeds one inbound Ethernet frame through the attached
// interface (answering ARP as a side effect) and, if it carries a TCP
// segment, dispatches it to the matching connection or a listener.
func (s *Stack) HandleInboundFrame(frame EthernetFrame) {
	dgram, ok := s.iface.RecvFrame(frame)
	if !ok || dgram.Protocol != IPProtocolTCP {
		return
	}
	seg, ok := ParseTCPSegment(dgram.Payload)
	if !ok {
		return
	}

	tuple := FourTuple{SrcIP: dgram.Dst, SrcPort: seg.Header.DstPort, DstIP: dgram.Src, DstPort: seg.Header.SrcPort}

	s.mu.Lock()
	defer s.mu.Unlock()

	if conn, ok := s.conns[tuple]; ok {
		conn.SegmentReceived(seg)
		s.flushLocked(tuple, conn)
		if !conn.Active() {
			delete(s.conns, tuple)
		}
		return
	}

	ch, listening := s.listeners[seg.Header.DstPort]
	if !listening || !seg.Header.Syn || seg.Header.Rst {
		return
	}

	conn := NewTCPConnection(s.cfg.StreamCapacity, s.cfg.InitialRTOMillis, s.isnFunc())
	s.conns[tuple] = conn
	conn.SegmentReceived(seg)
	s.flushLocked(tuple, conn)
	s.log.Info("tcp accept", "from", dgram.Src, "port", seg.Header.SrcPort)

	select {
	case ch <- conn:
	default:
		s.log.Warn("accept queue full, dropping connection", "port", seg.Header.DstPort)
	}
}

// Tick advances every live connection's logical clock, flushing whatever
// segments that produces and reaping connections that have gone inactive.
func (s *Stack) Tick(ms uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for tuple, conn := range s.conns {
		conn.Tick(ms)
		s.flushLocked(tuple, conn)
		if !conn.Active() {
			delete(s.conns, tuple)
		}
	}
}

// flushLocked drains conn's outbound segments, checksums and wraps each in
// an IPv4 datagram addressed using tuple, and hands it to the interface.
// Callers must hold s.mu.
func (s *Stack) flushLocked(tuple FourTuple, conn *TCPConnection) {
	for _, seg := range conn.SegmentsOut() {
		seg.Header.SrcPort = tuple.SrcPort
		seg.Header.DstPort = tuple.DstPort
		wire := seg.SerializeChecksummed(tuple.SrcIP, tuple.DstIP)
		dgram := IPv4Datagram{TTL: 64, Protocol: IPProtocolTCP, Src: tuple.SrcIP, Dst: tuple.DstIP, Payload: wire}
		s.iface.SendDatagram(dgram, tuple.DstIP)
	}
}
