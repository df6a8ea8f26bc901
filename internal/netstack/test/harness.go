// Package test drives this module's sponge-style TCP/IP stack against a
// real, independently implemented stack (gVisor's) over a simulated
// Ethernet link, to catch wire-format and protocol-behavior bugs that
// unit tests exercising the stack in isolation cannot.
package test

import (
	"context"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/gosponge/sponge/internal/netstack"

	"golang.org/x/sync/errgroup"

	"gvisor.dev/gvisor/pkg/buffer"
	"gvisor.dev/gvisor/pkg/tcpip"
	"gvisor.dev/gvisor/pkg/tcpip/adapters/gonet"
	"gvisor.dev/gvisor/pkg/tcpip/header"
	"gvisor.dev/gvisor/pkg/tcpip/link/channel"
	"gvisor.dev/gvisor/pkg/tcpip/link/ethernet"
	"gvisor.dev/gvisor/pkg/tcpip/network/arp"
	"gvisor.dev/gvisor/pkg/tcpip/network/ipv4"
	"gvisor.dev/gvisor/pkg/tcpip/stack"
	"gvisor.dev/gvisor/pkg/tcpip/transport/tcp"
)

const gvisorNICID tcpip.NICID = 1

var (
	hostIPv4  = netstack.IPv4AddrFromUint32(0x0a2a0001) // 10.42.0.1
	guestIPv4 = netstack.IPv4AddrFromUint32(0x0a2a0002) // 10.42.0.2
	hostMAC   = netstack.MACAddr{0x02, 0, 0, 0, 0, 0x01}
	guestMAC  = tcpip.LinkAddress("\x02\x00\x00\x00\x00\x02")
)

// harness wires this repository's Stack to a real gVisor network stack
// over an in-memory Ethernet link (gVisor's channel.Endpoint), ticking the
// sponge side on a background goroutine so gVisor's blocking socket API
// can be driven directly from test bodies.
type harness struct {
	t testing.TB

	ctx    context.Context
	cancel context.CancelFunc

	iface *netstack.NetworkInterface
	own   *netstack.Stack

	gs *stack.Stack
	ch *channel.Endpoint

	pumps *errgroup.Group
}

func mustAddrFrom4(ip netstack.IPv4Addr) tcpip.Address {
	return tcpip.AddrFrom4([4]byte(ip))
}

func newHarness(tb testing.TB) *harness {
	tb.Helper()
	ctx, cancel := context.WithCancel(context.Background())

	iface := netstack.NewNetworkInterface(hostMAC, hostIPv4)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	own := netstack.New(logger, iface, netstack.DefaultConfig(), nil)

	h := &harness{t: tb, ctx: ctx, cancel: cancel, iface: iface, own: own}

	h.ch = channel.New(256, 1500+header.EthernetMinimumSize, guestMAC)
	ep := ethernet.New(h.ch)
	h.gs = stack.New(stack.Options{
		NetworkProtocols:   []stack.NetworkProtocolFactory{ipv4.NewProtocol, arp.NewProtocol},
		TransportProtocols: []stack.TransportProtocolFactory{tcp.NewProtocol},
	})
	if err := h.gs.CreateNIC(gvisorNICID, ep); err != nil {
		tb.Fatalf("gvisor CreateNIC: %v", err)
	}
	if err := h.gs.AddProtocolAddress(gvisorNICID, tcpip.ProtocolAddress{
		Protocol: ipv4.ProtocolNumber,
		AddressWithPrefix: tcpip.AddressWithPrefix{
			Address:   mustAddrFrom4(guestIPv4),
			PrefixLen: 24,
		},
	}, stack.AddressProperties{}); err != nil {
		tb.Fatalf("gvisor AddProtocolAddress: %v", err)
	}
	h.gs.SetRouteTable([]tcpip.Route{{
		Destination: header.IPv4EmptySubnet,
		Gateway:     mustAddrFrom4(hostIPv4),
		NIC:         gvisorNICID,
	}})

	g, gctx := errgroup.WithContext(ctx)
	h.ctx = gctx
	h.pumps = g
	g.Go(func() error { h.pumpOwnToGuest(); return nil })
	g.Go(func() error { h.pumpGuestToOwn(); return nil })
	g.Go(func() error { h.tickLoop(); return nil })

	tb.Cleanup(func() {
		h.cancel()
		h.ch.Close()
		if err := h.pumps.Wait(); err != nil {
			tb.Logf("harness pump goroutines: %v", err)
		}
	})
	return h
}

// pumpOwnToGuest forwards frames our interface wants to send into gVisor's
// channel endpoint.
func (h *harness) pumpOwnToGuest() {
	ticker := time.NewTicker(time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-h.ctx.Done():
			return
		case <-ticker.C:
			for _, f := range h.iface.FramesOut() {
				wire := f.Serialize()
				pkt := stack.NewPacketBuffer(stack.PacketBufferOptions{Payload: buffer.MakeWithData(wire)})
				h.ch.InjectInbound(0, pkt)
			}
		}
	}
}

// pumpGuestToOwn forwards frames gVisor emits into our Stack.
func (h *harness) pumpGuestToOwn() {
	for {
		pkt := h.ch.ReadContext(h.ctx)
		if pkt == nil {
			return
		}
		wire := append([]byte(nil), pkt.ToView().AsSlice()...)
		pkt.DecRef()

		frame, ok := netstack.ParseEthernetFrame(wire)
		if !ok {
			continue
		}
		h.own.HandleInboundFrame(frame)
	}
}

// tickLoop drives the sponge stack's logical clock so retransmissions and
// lingering connections behave the way they would under a real scheduler.
func (h *harness) tickLoop() {
	ticker := time.NewTicker(time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-h.ctx.Done():
			return
		case <-ticker.C:
			h.own.Tick(1)
		}
	}
}

func (h *harness) dialFromGuest(dstPort uint16) (net.Conn, error) {
	return gonet.DialTCP(h.gs, tcpip.FullAddress{
		NIC:  gvisorNICID,
		Addr: mustAddrFrom4(hostIPv4),
		Port: dstPort,
	}, ipv4.ProtocolNumber)
}
