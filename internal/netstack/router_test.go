package netstack

import "testing"

func newTestIface(t *testing.T, lastOctet byte) *NetworkInterface {
	t.Helper()
	mac := MACAddr{0x02, 0, 0, 0, 0, lastOctet}
	ip := IPv4AddrFromUint32(uint32(0x0a000000) | uint32(lastOctet))
	return NewNetworkInterface(mac, ip)
}

func TestRouterLongestPrefixMatch(t *testing.T) {
	r := NewRouter()
	ifaceDefault := newTestIface(t, 1)
	ifaceSpecific := newTestIface(t, 2)

	ifaceA := r.AddInterface(ifaceDefault)
	ifaceB := r.AddInterface(ifaceSpecific)

	// Default route: 0.0.0.0/0 via a next hop on interface A.
	r.AddRoute(0, 0, IPv4AddrFromUint32(0x0a0000fe), true, ifaceA)
	// More specific: 192.168.1.0/24, directly attached on interface B.
	r.AddRoute(0xc0a80100, 24, IPv4Addr{}, false, ifaceB)

	dgram := IPv4Datagram{TTL: 10, Dst: IPv4AddrFromUint32(0xc0a80155)}
	r.RouteOneDatagram(dgram)

	framesB := ifaceSpecific.FramesOut()
	if len(framesB) != 1 {
		t.Fatalf("expected the more specific route to win, got %d frames on B", len(framesB))
	}
	if len(ifaceDefault.FramesOut()) != 0 {
		t.Fatalf("default route should not have been used")
	}
}

func TestRouterDropsOnTTLExpiry(t *testing.T) {
	r := NewRouter()
	iface := newTestIface(t, 1)
	idx := r.AddInterface(iface)
	r.AddRoute(0, 0, IPv4Addr{}, false, idx)

	r.RouteOneDatagram(IPv4Datagram{TTL: 1, Dst: IPv4AddrFromUint32(0x08080808)})
	if len(iface.FramesOut()) != 0 {
		t.Fatalf("a datagram whose TTL reaches 0 after decrement must be dropped")
	}

	r.RouteOneDatagram(IPv4Datagram{TTL: 0, Dst: IPv4AddrFromUint32(0x08080808)})
	if len(iface.FramesOut()) != 0 {
		t.Fatalf("a datagram arriving with TTL 0 must be dropped, not decremented to underflow")
	}
}

func TestRouterDropsWithNoMatchingRoute(t *testing.T) {
	r := NewRouter()
	iface := newTestIface(t, 1)
	idx := r.AddInterface(iface)
	r.AddRoute(0x0a000000, 24, IPv4Addr{}, false, idx)

	r.RouteOneDatagram(IPv4Datagram{TTL: 10, Dst: IPv4AddrFromUint32(0xc0a80101)})
	if len(iface.FramesOut()) != 0 {
		t.Fatalf("datagram outside any route's prefix must be dropped")
	}
}

func TestRouterDirectlyAttachedUsesDatagramDestAsNextHop(t *testing.T) {
	r := NewRouter()
	iface := newTestIface(t, 1)
	idx := r.AddInterface(iface)
	r.AddRoute(0x0a000000, 24, IPv4Addr{}, false, idx)

	dst := IPv4AddrFromUint32(0x0a000042)
	r.RouteOneDatagram(IPv4Datagram{TTL: 10, Dst: dst})

	frames := iface.FramesOut()
	if len(frames) != 1 || frames[0].Type != EtherTypeARP {
		t.Fatalf("expected one ARP request for the next hop, got %+v", frames)
	}
	req, ok := ParseARPMessage(frames[0].Payload)
	if !ok || req.TargetIP != dst {
		t.Fatalf("ARP request should target the datagram's destination %v, got %+v", dst, req)
	}
}
