package netstack

import "encoding/binary"

// EthernetHeaderLen is the fixed 14-byte Ethernet II header size.
const EthernetHeaderLen = 14

// EtherType identifies the payload protocol carried by an Ethernet frame.
type EtherType uint16

// EtherTypes understood by the stack.
const (
	EtherTypeIPv4 EtherType = 0x0800
	EtherTypeARP  EtherType = 0x0806
)

// MACAddr is a 6-byte hardware address.
type MACAddr [6]byte

// BroadcastMAC is the Ethernet broadcast address.
var BroadcastMAC = MACAddr{0xff, 0xff, 0xff, 0xff, 0xff, 0xff}

// IsBroadcast reports whether the address is the Ethernet broadcast.
func (m MACAddr) IsBroadcast() bool {
	return m == BroadcastMAC
}

// EthernetFrame is an Ethernet II frame: dst | src | ethertype | payload.
type EthernetFrame struct {
	Dst     MACAddr
	Src     MACAddr
	Type    EtherType
	Payload []byte
}

// Serialize encodes the frame to its wire format.
func (f EthernetFrame) Serialize() []byte {
	buf := make([]byte, EthernetHeaderLen+len(f.Payload))
	copy(buf[0:6], f.Dst[:])
	copy(buf[6:12], f.Src[:])
	binary.BigEndian.PutUint16(buf[12:14], uint16(f.Type))
	copy(buf[EthernetHeaderLen:], f.Payload)
	return buf
}

// ParseEthernetFrame decodes a wire-format Ethernet frame.
func ParseEthernetFrame(data []byte) (EthernetFrame, bool) {
	if len(data) < EthernetHeaderLen {
		return EthernetFrame{}, false
	}
	var f EthernetFrame
	copy(f.Dst[:], data[0:6])
	copy(f.Src[:], data[6:12])
	f.Type = EtherType(binary.BigEndian.Uint16(data[12:14]))
	f.Payload = append([]byte(nil), data[EthernetHeaderLen:]...)
	return f, true
}
