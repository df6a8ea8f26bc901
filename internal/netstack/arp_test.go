package netstack

import "testing"

func TestARPMessageSerializeParseRoundTrip(t *testing.T) {
	m := ARPMessage{
		Opcode:    arpOpRequest,
		SenderMAC: MACAddr{1, 2, 3, 4, 5, 6},
		SenderIP:  IPv4AddrFromUint32(0x0a000001),
		TargetMAC: MACAddr{},
		TargetIP:  IPv4AddrFromUint32(0x0a000002),
	}
	wire := m.Serialize()
	if len(wire) != ARPMessageLen {
		t.Fatalf("wire len = %d, want %d", len(wire), ARPMessageLen)
	}

	got, ok := ParseARPMessage(wire)
	if !ok {
		t.Fatalf("ParseARPMessage failed")
	}
	if got != m {
		t.Fatalf("round-trip mismatch: got %+v, want %+v", got, m)
	}
}

func TestParseARPMessageRejectsNonEthernetIPv4(t *testing.T) {
	buf := make([]byte, ARPMessageLen)
	buf[0], buf[1] = 0, 2 // bogus hardware type
	if _, ok := ParseARPMessage(buf); ok {
		t.Fatalf("expected rejection of a non-Ethernet hardware type")
	}
}

func TestParseARPMessageRejectsShortInput(t *testing.T) {
	if _, ok := ParseARPMessage(make([]byte, 10)); ok {
		t.Fatalf("expected rejection of truncated input")
	}
}
