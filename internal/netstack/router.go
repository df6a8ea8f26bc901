package netstack

// RouteEntry is one longest-prefix-match routing table row.
type RouteEntry struct {
	Prefix     uint32
	PrefixLen  uint8 // 0..32
	NextHop    IPv4Addr
	HasNextHop bool // false means the destination is directly attached
	IfaceIndex int
}

// Router holds a flat routing table and non-owning references to the
// interfaces it drives, performing longest-prefix-match forwarding with
// TTL decrement.
type Router struct {
	routes     []RouteEntry
	interfaces []*NetworkInterface
}

// NewRouter returns a router with no routes or interfaces attached.
func NewRouter() *Router {
	return &Router{}
}

// AddInterface registers an interface the router may dispatch through,
// returning its index for use in AddRoute.
func (r *Router) AddInterface(iface *NetworkInterface) int {
	r.interfaces = append(r.interfaces, iface)
	return len(r.interfaces) - 1
}

// AddRoute appends a routing table entry.
func (r *Router) AddRoute(prefix uint32, prefixLen uint8, nextHop IPv4Addr, hasNextHop bool, ifaceIndex int) {
	r.routes = append(r.routes, RouteEntry{
		Prefix:     prefix,
		PrefixLen:  prefixLen,
		NextHop:    nextHop,
		HasNextHop: hasNextHop,
		IfaceIndex: ifaceIndex,
	})
}

// RouteOneDatagram forwards dgram via the longest-prefix-matching route,
// decrementing its TTL, or silently drops it if no route matches or the
// TTL expires.
func (r *Router) RouteOneDatagram(dgram IPv4Datagram) {
	dest := dgram.Dst.Uint32()

	var best *RouteEntry
	for i := range r.routes {
		route := &r.routes[i]
		var mask uint32
		if route.PrefixLen > 0 {
			mask = 0xFFFFFFFF << (32 - route.PrefixLen)
		}
		if dest&mask != route.Prefix&mask {
			continue
		}
		if best == nil || route.PrefixLen > best.PrefixLen {
			best = route
		}
	}

	if best == nil || dgram.TTL == 0 {
		return
	}
	dgram.TTL--
	if dgram.TTL == 0 {
		return
	}

	nextHop := dgram.Dst
	if best.HasNextHop {
		nextHop = best.NextHop
	}
	if best.IfaceIndex < 0 || best.IfaceIndex >= len(r.interfaces) {
		return
	}
	r.interfaces[best.IfaceIndex].SendDatagram(dgram, nextHop)
}
