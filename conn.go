package netconn

import (
	"context"
	"net"
)

// NetType tags which transport a NetConn wraps.
type NetType int

const (
	NetTypeTCP NetType = iota
	NetTypeWS
	NetTypeKCP
)

func (t NetType) String() string {
	switch t {
	case NetTypeTCP:
		return "tcp"
	case NetTypeWS:
		return "ws"
	case NetTypeKCP:
		return "kcp"
	default:
		return "unknown"
	}
}

// NetConn is the closed, three-way tagged union spec.md §4.7 calls the
// façade: every operation dispatches on which transport it wraps rather
// than going through a trait-object hot path.
type NetConn struct {
	netType NetType
	tcp     *tcpConn
	ws      *wsConn
	kcp     *kcpConn
}

// NetType reports which transport this connection (or listener) uses.
func (c *NetConn) NetType() NetType { return c.netType }

// RunHandler drives this connection with a handler built by factory,
// blocking until the connection (or, for a listener, the accept loop)
// terminates. On a fatal engine error the handler's OnClose is invoked
// with (CloseError, "NetError") before RunHandler returns the error.
func (c *NetConn) RunHandler(ctx context.Context, factory HandlerFactory) error {
	return c.RunWithHandler(ctx, factory)
}

// RunWithHandler is RunHandler's full name, matching the reference
// implementation's distinct run_handler/run_with_handler entry points;
// in this port they're one operation; RunHandler is kept as an alias for
// callers that only know that name.
func (c *NetConn) RunWithHandler(ctx context.Context, factory HandlerFactory) error {
	switch c.netType {
	case NetTypeTCP:
		return c.tcp.runWithHandler(ctx, factory)
	case NetTypeWS:
		return c.ws.runWithHandler(ctx, factory)
	case NetTypeKCP:
		return c.kcp.runWithHandler(ctx, factory)
	default:
		return ErrOnlyTCPErr
	}
}

// RemoteAddr returns the peer address, or the bound listen address for a
// listener.
func (c *NetConn) RemoteAddr() net.Addr {
	switch c.netType {
	case NetTypeTCP:
		return c.tcp.remoteAddr()
	case NetTypeWS:
		return c.ws.remoteAddr()
	case NetTypeKCP:
		return c.kcp.remoteAddr()
	default:
		return nil
	}
}

// GetConnectionID returns the atomically-minted id assigned at accept
// time. It is zero for a dialed connection and for a listener NetConn.
func (c *NetConn) GetConnectionID() uint64 {
	switch c.netType {
	case NetTypeTCP:
		return c.tcp.connID
	case NetTypeWS:
		return c.ws.connID
	case NetTypeKCP:
		return c.kcp.connID
	default:
		return 0
	}
}

// SetSettings replaces this connection's Settings snapshot. It only
// affects behavior not already captured by an in-flight read (e.g. future
// timeouts); it does not retroactively resize buffers already in use.
func (c *NetConn) SetSettings(s Settings) {
	switch c.netType {
	case NetTypeTCP:
		*c.tcp.settings = s
	case NetTypeWS:
		*c.ws.settings = s
	case NetTypeKCP:
		*c.kcp.settings = s
	}
}

// Settings returns a copy of this connection's current Settings.
func (c *NetConn) Settings() Settings {
	switch c.netType {
	case NetTypeTCP:
		return *c.tcp.settings
	case NetTypeWS:
		return *c.ws.settings
	case NetTypeKCP:
		return *c.kcp.settings
	default:
		return Settings{}
	}
}
