package netstack

import (
	"io"
	"net"
	"os"
	"sync"
	"time"
)

// addr is a minimal net.Addr for a TCP/IPv4 endpoint.
type addr struct {
	ip   IPv4Addr
	port uint16
}

func (a addr) Network() string { return "tcp" }
func (a addr) String() string {
	return net.JoinHostPort(net.IP(a.ip[:]).String(), itoa(a.port))
}

func itoa(p uint16) string {
	return string([]byte{'0' + byte(p/10000%10), '0' + byte(p/1000%10), '0' + byte(p/100%10), '0' + byte(p/10%10), '0' + byte(p%10)})
}

// NetConn adapts a *TCPConnection driven by a Stack's event loop to the
// standard net.Conn interface, so host programs can hand a connection to
// code written against that interface (an http.Server, io.Copy, etc) without
// that code knowing the transport underneath is this package rather than the
// kernel's. It bridges the core's synchronous, non-blocking API to net.Conn's
// blocking one with a short polling loop, which is acceptable at this
// boundary the same way Stack's goroutine-facing API is.
type NetConn struct {
	conn         *TCPConnection
	local, remote net.Addr

	mu                          sync.Mutex
	readDeadline, writeDeadline time.Time
}

// NewNetConn wraps conn, reporting local and remote as its Addr()s.
func NewNetConn(conn *TCPConnection, local, remote net.Addr) *NetConn {
	return &NetConn{conn: conn, local: local, remote: remote}
}

const pollInterval = time.Millisecond

func (c *NetConn) Read(p []byte) (int, error) {
	in := c.conn.Inbound()
	for {
		if in.BufferSize() > 0 {
			got := in.Read(uint64(len(p)))
			return copy(p, got), nil
		}
		if in.InputEnded() || in.Error() {
			return 0, io.EOF
		}
		if !c.conn.Active() {
			return 0, net.ErrClosed
		}
		if deadline := c.getDeadline(&c.readDeadline); !deadline.IsZero() && time.Now().After(deadline) {
			return 0, os.ErrDeadlineExceeded
		}
		time.Sleep(pollInterval)
	}
}

func (c *NetConn) Write(p []byte) (int, error) {
	written := 0
	for written < len(p) {
		if !c.conn.Active() {
			return written, net.ErrClosed
		}
		n := c.conn.Write(p[written:])
		written += int(n)
		if written == len(p) {
			break
		}
		if deadline := c.getDeadline(&c.writeDeadline); !deadline.IsZero() && time.Now().After(deadline) {
			return written, os.ErrDeadlineExceeded
		}
		time.Sleep(pollInterval)
	}
	return written, nil
}

// Close ends the local write half and waits briefly for a clean shutdown,
// falling back to an RST if the peer doesn't cooperate in time.
func (c *NetConn) Close() error {
	if !c.conn.Active() {
		return nil
	}
	c.conn.EndInputStream()
	deadline := time.Now().Add(time.Second)
	for c.conn.Active() && time.Now().Before(deadline) {
		time.Sleep(pollInterval)
	}
	if c.conn.Active() {
		c.conn.Close()
	}
	return nil
}

func (c *NetConn) LocalAddr() net.Addr  { return c.local }
func (c *NetConn) RemoteAddr() net.Addr { return c.remote }

func (c *NetConn) SetDeadline(t time.Time) error {
	c.setDeadline(&c.readDeadline, t)
	c.setDeadline(&c.writeDeadline, t)
	return nil
}

func (c *NetConn) SetReadDeadline(t time.Time) error {
	c.setDeadline(&c.readDeadline, t)
	return nil
}

func (c *NetConn) SetWriteDeadline(t time.Time) error {
	c.setDeadline(&c.writeDeadline, t)
	return nil
}

func (c *NetConn) setDeadline(field *time.Time, t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	*field = t
}

func (c *NetConn) getDeadline(field *time.Time) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return *field
}
