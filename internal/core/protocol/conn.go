// Package protocol implements the connection layer of the client: dialing
// cluster nodes over TCP or unix sockets, tracking the current leader, and
// wrapping an established connection into a session.
package protocol

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"os"
	"strings"
)

// Addr is the unified address value reported by a Conn for both transports.
// It implements net.Addr.
type Addr struct {
	// Net is "tcp" or "unix".
	Net string
	// Name is the ip:port for tcp, or the socket path for unix. An
	// unnamed or abstract unix endpoint has an empty or @-prefixed name.
	Name string
}

func (a Addr) Network() string {
	return a.Net
}

func (a Addr) String() string {
	if a.Net == "unix" {
		if a.Name == "" {
			return "unix:<unnamed>"
		}
		return "unix:" + a.Name
	}
	return a.Name
}

func addrFrom(na net.Addr) Addr {
	switch a := na.(type) {
	case *net.TCPAddr:
		return Addr{Net: "tcp", Name: a.String()}
	case *net.UnixAddr:
		return Addr{Net: "unix", Name: a.Name}
	default:
		return Addr{Net: na.Network(), Name: na.String()}
	}
}

// Conn is a transport-agnostic byte stream over either a TCP socket or a
// unix-domain socket.
type Conn struct {
	nc net.Conn
}

// NewConn wraps an established stream connection. Fake dial functions use it
// to hand back in-memory pipes.
func NewConn(nc net.Conn) *Conn {
	return &Conn{nc: nc}
}

func (c *Conn) Read(p []byte) (int, error) {
	return c.nc.Read(p)
}

func (c *Conn) Write(p []byte) (int, error) {
	return c.nc.Write(p)
}

func (c *Conn) Close() error {
	return c.nc.Close()
}

func (c *Conn) LocalAddr() Addr {
	return addrFrom(c.nc.LocalAddr())
}

func (c *Conn) RemoteAddr() Addr {
	return addrFrom(c.nc.RemoteAddr())
}

// File returns a duplicate of the underlying OS descriptor, for handoff
// across the consensus engine boundary. The caller owns the returned file;
// the Conn keeps its own descriptor.
func (c *Conn) File() (*os.File, error) {
	switch nc := c.nc.(type) {
	case *net.TCPConn:
		return nc.File()
	case *net.UnixConn:
		return nc.File()
	default:
		return nil, fmt.Errorf("%w: %T carries no OS descriptor", ErrInvalidConnection, c.nc)
	}
}

// DialFunc establishes a connection with a cluster node. Implementations must
// honor ctx cancellation.
type DialFunc func(ctx context.Context, address string) (*Conn, error)

// ResolveAddress maps an address string onto a network and dial target:
// unix:<path>, /<path> and @<name> go over a unix-domain socket, anything
// else must parse as ip:port and goes over TCP. Malformed addresses are
// rejected before any socket call.
func ResolveAddress(address string) (network string, target string, err error) {
	switch {
	case address == "":
		return "", "", fmt.Errorf("%w: empty address", ErrInvalidAddress)
	case strings.HasPrefix(address, "unix:"):
		target = address[len("unix:"):]
		if target == "" {
			return "", "", fmt.Errorf("%w: empty unix socket path", ErrInvalidAddress)
		}
		return "unix", target, nil
	case strings.HasPrefix(address, "@"), strings.HasPrefix(address, "/"):
		return "unix", address, nil
	}
	if _, err := netip.ParseAddrPort(address); err != nil {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidAddress, address)
	}
	return "tcp", address, nil
}

// Dial is the default DialFunc.
func Dial(ctx context.Context, address string) (*Conn, error) {
	network, target, err := ResolveAddress(address)
	if err != nil {
		return nil, err
	}

	var d net.Dialer
	nc, err := d.DialContext(ctx, network, target)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", address, err)
	}
	return NewConn(nc), nil
}
