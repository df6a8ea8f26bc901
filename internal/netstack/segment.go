package netstack

import "encoding/binary"

// MaxPayloadSize bounds how many bytes of stream data a single outbound TCP
// segment may carry.
const MaxPayloadSize = 1452

// TCPHeader is a standard 20-byte TCP header with no options.
type TCPHeader struct {
	SrcPort uint16
	DstPort uint16
	Seqno   WrappingInt32
	Ackno   WrappingInt32
	Syn     bool
	Ack     bool
	Fin     bool
	Rst     bool
	Win     uint16
}

// TCPHeaderLen is the fixed, option-free TCP header size in bytes.
const TCPHeaderLen = 20

const (
	tcpFlagFin = 1 << 0
	tcpFlagSyn = 1 << 1
	tcpFlagRst = 1 << 2
	tcpFlagAck = 1 << 4
)

// TCPSegment is a TCP header plus payload.
type TCPSegment struct {
	Header  TCPHeader
	Payload []byte
}

// LengthInSequenceSpace returns the number of sequence-space units this
// segment occupies: its payload length plus one each for SYN and FIN.
func (s TCPSegment) LengthInSequenceSpace() uint64 {
	n := uint64(len(s.Payload))
	if s.Header.Syn {
		n++
	}
	if s.Header.Fin {
		n++
	}
	return n
}

// SerializeChecksummed encodes the segment and fills in its TCP checksum
// using the IPv4 pseudo-header formed from src and dst. This is the form
// that belongs on the wire; Serialize alone leaves the checksum zeroed.
func (s TCPSegment) SerializeChecksummed(src, dst IPv4Addr) []byte {
	buf := s.Serialize()
	binary.BigEndian.PutUint16(buf[16:18], tcpChecksum(buf, src, dst))
	return buf
}

// Serialize encodes the segment as a wire-format TCP segment (header +
// payload, checksum zeroed — the caller, which knows the pseudo-header,
// fills it in via SerializeChecksummed).
func (s TCPSegment) Serialize() []byte {
	buf := make([]byte, TCPHeaderLen+len(s.Payload))
	binary.BigEndian.PutUint16(buf[0:2], s.Header.SrcPort)
	binary.BigEndian.PutUint16(buf[2:4], s.Header.DstPort)
	binary.BigEndian.PutUint32(buf[4:8], uint32(s.Header.Seqno))
	binary.BigEndian.PutUint32(buf[8:12], uint32(s.Header.Ackno))
	buf[12] = (TCPHeaderLen / 4) << 4
	var flags byte
	if s.Header.Fin {
		flags |= tcpFlagFin
	}
	if s.Header.Syn {
		flags |= tcpFlagSyn
	}
	if s.Header.Rst {
		flags |= tcpFlagRst
	}
	if s.Header.Ack {
		flags |= tcpFlagAck
	}
	buf[13] = flags
	binary.BigEndian.PutUint16(buf[14:16], s.Header.Win)
	// buf[16:18] checksum filled by caller.
	copy(buf[TCPHeaderLen:], s.Payload)
	return buf
}

// ParseTCPSegment decodes a wire-format TCP segment. Options, if any, are
// skipped over (the stack does not interpret TCP options).
func ParseTCPSegment(data []byte) (TCPSegment, bool) {
	if len(data) < TCPHeaderLen {
		return TCPSegment{}, false
	}
	dataOffset := int(data[12]>>4) * 4
	if dataOffset < TCPHeaderLen || len(data) < dataOffset {
		return TCPSegment{}, false
	}
	flags := data[13]
	h := TCPHeader{
		SrcPort: binary.BigEndian.Uint16(data[0:2]),
		DstPort: binary.BigEndian.Uint16(data[2:4]),
		Seqno:   WrappingInt32(binary.BigEndian.Uint32(data[4:8])),
		Ackno:   WrappingInt32(binary.BigEndian.Uint32(data[8:12])),
		Fin:     flags&tcpFlagFin != 0,
		Syn:     flags&tcpFlagSyn != 0,
		Rst:     flags&tcpFlagRst != 0,
		Ack:     flags&tcpFlagAck != 0,
		Win:     binary.BigEndian.Uint16(data[14:16]),
	}
	payload := append([]byte(nil), data[dataOffset:]...)
	return TCPSegment{Header: h, Payload: payload}, true
}

// tcpChecksum computes the standard one's-complement TCP checksum over an
// IPv4 pseudo-header (src, dst, zero, protocol, length) followed by the
// segment itself. The segment's own checksum field must be zero when this
// is called.
func tcpChecksum(segment []byte, src, dst IPv4Addr) uint16 {
	var pseudo [12]byte
	copy(pseudo[0:4], src[:])
	copy(pseudo[4:8], dst[:])
	pseudo[8] = 0
	pseudo[9] = byte(IPProtocolTCP)
	binary.BigEndian.PutUint16(pseudo[10:12], uint16(len(segment)))

	sum := checksumAccumulate(pseudo[:]) + checksumAccumulate(segment)
	for sum > 0xffff {
		sum = (sum >> 16) + (sum & 0xffff)
	}
	return ^uint16(sum)
}
