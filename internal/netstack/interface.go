package netstack

// ArpEntryTTLMillis is how long a learned ARP mapping stays valid.
const ArpEntryTTLMillis = 30000

// ArpRequestSuppressMillis is how long an outstanding ARP request for a
// given IP suppresses further requests to that IP.
const ArpRequestSuppressMillis = 5000

type arpEntry struct {
	mac   MACAddr
	ttlMs uint32
}

// NetworkInterface resolves next-hop IPv4 addresses to Ethernet MACs via
// ARP, queuing datagrams while resolution is pending, and demultiplexes
// inbound frames into IPv4 datagrams or ARP protocol handling.
type NetworkInterface struct {
	mac MACAddr
	ip  IPv4Addr

	arpTable map[IPv4Addr]arpEntry
	pending  map[IPv4Addr][]IPv4Datagram
	requestSuppressedMs map[IPv4Addr]uint32

	framesOut []EthernetFrame
}

// NewNetworkInterface returns an interface bound to the given Ethernet and
// IPv4 addresses.
func NewNetworkInterface(mac MACAddr, ip IPv4Addr) *NetworkInterface {
	return &NetworkInterface{
		mac:                 mac,
		ip:                  ip,
		arpTable:            make(map[IPv4Addr]arpEntry),
		pending:             make(map[IPv4Addr][]IPv4Datagram),
		requestSuppressedMs: make(map[IPv4Addr]uint32),
	}
}

// FramesOut drains and returns all frames queued for transmission.
func (n *NetworkInterface) FramesOut() []EthernetFrame {
	out := n.framesOut
	n.framesOut = nil
	return out
}

func (n *NetworkInterface) emit(f EthernetFrame) {
	n.framesOut = append(n.framesOut, f)
}

// SendDatagram transmits dgram to next_hop_ip, resolving its MAC via ARP
// first if necessary. While resolution is pending, the datagram is queued
// and released once the reply arrives.
func (n *NetworkInterface) SendDatagram(dgram IPv4Datagram, nextHop IPv4Addr) {
	if entry, ok := n.arpTable[nextHop]; ok && entry.ttlMs > 0 {
		n.emit(EthernetFrame{Dst: entry.mac, Src: n.mac, Type: EtherTypeIPv4, Payload: dgram.Serialize()})
		return
	}

	n.pending[nextHop] = append(n.pending[nextHop], dgram)
	if n.requestSuppressedMs[nextHop] == 0 {
		n.broadcastARPRequest(nextHop)
		n.requestSuppressedMs[nextHop] = ArpRequestSuppressMillis
	}
}

func (n *NetworkInterface) broadcastARPRequest(target IPv4Addr) {
	msg := ARPMessage{
		Opcode:    arpOpRequest,
		SenderMAC: n.mac,
		SenderIP:  n.ip,
		TargetIP:  target,
	}
	n.emit(EthernetFrame{Dst: BroadcastMAC, Src: n.mac, Type: EtherTypeARP, Payload: msg.Serialize()})
}

// RecvFrame handles an inbound Ethernet frame: frames not addressed to us
// are ignored, IPv4 frames are parsed and returned, and ARP frames update
// our cache, answer requests targeting us, and release any datagrams that
// were pending resolution of the sender's address.
func (n *NetworkInterface) RecvFrame(frame EthernetFrame) (IPv4Datagram, bool) {
	if frame.Dst != n.mac && !frame.Dst.IsBroadcast() {
		return IPv4Datagram{}, false
	}

	switch frame.Type {
	case EtherTypeIPv4:
		dgram, ok := ParseIPv4Datagram(frame.Payload)
		if !ok {
			return IPv4Datagram{}, false
		}
		return dgram, true

	case EtherTypeARP:
		n.handleARP(frame.Payload)
		return IPv4Datagram{}, false

	default:
		return IPv4Datagram{}, false
	}
}

func (n *NetworkInterface) handleARP(payload []byte) {
	msg, ok := ParseARPMessage(payload)
	if !ok {
		return
	}

	n.arpTable[msg.SenderIP] = arpEntry{mac: msg.SenderMAC, ttlMs: ArpEntryTTLMillis}

	if msg.Opcode == arpOpRequest && msg.TargetIP == n.ip {
		reply := ARPMessage{
			Opcode:    arpOpReply,
			SenderMAC: n.mac,
			SenderIP:  n.ip,
			TargetMAC: msg.SenderMAC,
			TargetIP:  msg.SenderIP,
		}
		n.emit(EthernetFrame{Dst: msg.SenderMAC, Src: n.mac, Type: EtherTypeARP, Payload: reply.Serialize()})
	}

	if queued, ok := n.pending[msg.SenderIP]; ok {
		for _, dgram := range queued {
			n.emit(EthernetFrame{Dst: msg.SenderMAC, Src: n.mac, Type: EtherTypeIPv4, Payload: dgram.Serialize()})
		}
		delete(n.pending, msg.SenderIP)
		delete(n.requestSuppressedMs, msg.SenderIP)
	}
}

// Tick ages ARP entries and request-suppression timers, evicting expired
// entries and re-broadcasting ARP requests for IPs with datagrams still
// queued once their suppression window lapses.
func (n *NetworkInterface) Tick(ms uint32) {
	for ip, entry := range n.arpTable {
		if entry.ttlMs <= ms {
			delete(n.arpTable, ip)
			continue
		}
		entry.ttlMs -= ms
		n.arpTable[ip] = entry
	}

	for ip, remaining := range n.requestSuppressedMs {
		if remaining <= ms {
			n.requestSuppressedMs[ip] = 0
		} else {
			n.requestSuppressedMs[ip] = remaining - ms
		}
	}

	for ip, queued := range n.pending {
		if len(queued) == 0 {
			continue
		}
		if n.requestSuppressedMs[ip] == 0 {
			n.broadcastARPRequest(ip)
			n.requestSuppressedMs[ip] = ArpRequestSuppressMillis
		}
	}
}
