package netstack

import "encoding/binary"

// IPv4HeaderLen is the fixed, option-free IPv4 header size.
const IPv4HeaderLen = 20

// IPv4Addr is a 4-byte IPv4 address, big-endian.
type IPv4Addr [4]byte

// IPv4AddrFromUint32 builds an address from its 32-bit numeric form.
func IPv4AddrFromUint32(v uint32) IPv4Addr {
	var a IPv4Addr
	binary.BigEndian.PutUint32(a[:], v)
	return a
}

// Uint32 returns the address's 32-bit numeric form.
func (a IPv4Addr) Uint32() uint32 {
	return binary.BigEndian.Uint32(a[:])
}

// IPProtocol identifies the payload protocol carried by an IPv4 datagram.
type IPProtocol uint8

// Protocol numbers the stack understands.
const (
	IPProtocolTCP IPProtocol = 6
)

// IPv4Datagram is a standard 20-byte-header IPv4 packet with no options.
type IPv4Datagram struct {
	TTL      uint8
	Protocol IPProtocol
	Src      IPv4Addr
	Dst      IPv4Addr
	Payload  []byte
}

// Serialize encodes the datagram, recomputing the header checksum.
func (d IPv4Datagram) Serialize() []byte {
	buf := make([]byte, IPv4HeaderLen+len(d.Payload))
	totalLen := len(buf)
	buf[0] = (4 << 4) | (IPv4HeaderLen / 4)
	buf[1] = 0
	binary.BigEndian.PutUint16(buf[2:4], uint16(totalLen))
	binary.BigEndian.PutUint16(buf[4:6], 0)
	binary.BigEndian.PutUint16(buf[6:8], 0)
	buf[8] = d.TTL
	buf[9] = byte(d.Protocol)
	binary.BigEndian.PutUint16(buf[10:12], 0)
	copy(buf[12:16], d.Src[:])
	copy(buf[16:20], d.Dst[:])
	binary.BigEndian.PutUint16(buf[10:12], ipv4Checksum(buf[:IPv4HeaderLen]))
	copy(buf[IPv4HeaderLen:], d.Payload)
	return buf
}

// ParseIPv4Datagram decodes a wire-format IPv4 datagram. Options, if any,
// are skipped over (the stack does not interpret or emit IPv4 options).
func ParseIPv4Datagram(data []byte) (IPv4Datagram, bool) {
	if len(data) < IPv4HeaderLen {
		return IPv4Datagram{}, false
	}
	verIHL := data[0]
	if verIHL>>4 != 4 {
		return IPv4Datagram{}, false
	}
	headerLen := int(verIHL&0x0f) * 4
	if headerLen < IPv4HeaderLen || len(data) < headerLen {
		return IPv4Datagram{}, false
	}
	d := IPv4Datagram{
		TTL:      data[8],
		Protocol: IPProtocol(data[9]),
	}
	copy(d.Src[:], data[12:16])
	copy(d.Dst[:], data[16:20])
	d.Payload = append([]byte(nil), data[headerLen:]...)
	return d, true
}

func ipv4Checksum(data []byte) uint16 {
	sum := checksumAccumulate(data)
	for sum > 0xffff {
		sum = (sum >> 16) + (sum & 0xffff)
	}
	return ^uint16(sum)
}

// checksumAccumulate sums data as big-endian 16-bit words without folding
// or inverting, so callers can accumulate over several buffers (e.g. a
// pseudo-header followed by a segment) before finishing the computation.
func checksumAccumulate(data []byte) uint32 {
	var sum uint32
	for i := 0; i+1 < len(data); i += 2 {
		sum += uint32(binary.BigEndian.Uint16(data[i : i+2]))
	}
	if len(data)%2 == 1 {
		sum += uint32(data[len(data)-1]) << 8
	}
	return sum
}
