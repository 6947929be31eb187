package netconn

import (
	"context"
	"crypto/tls"
	"net"
	"time"

	"netconn/internal/tlsconfig"
)

// tcpConn is the TCP-transport half of NetConn's tagged union. It covers
// every variant spec.md's Connection record lists for TCP: a dialed
// Stream, a Listener, and an accepted-but-not-yet-upgraded child.
type tcpConn struct {
	settings *Settings
	connID   uint64

	// stream is set once the connection is ready to run its engine
	// (either a completed outbound dial, or an accepted socket after its
	// deferred TLS upgrade).
	stream *maybeTLSStream

	// accepted is set instead of stream for a freshly accepted child
	// whose TLS upgrade (if any) hasn't happened yet.
	accepted *maybeAcceptStream
	online   *onlineCountHandle

	listener *listenerCore
	ln       net.Listener
}

// DialTCP connects to addr with Settings.ConnectTimeout as the dial
// deadline. TLS is used automatically when settings.Domain is set.
func DialTCP(ctx context.Context, addr string, settings Settings) (*NetConn, error) {
	return dialTCPTimeout(ctx, addr, settings, settings.ConnectTimeout)
}

// DialTCPTimeout is DialTCP with an explicit override of the connect
// timeout, matching the reference implementation's connect_with_timeout.
func DialTCPTimeout(ctx context.Context, addr string, settings Settings, timeout time.Duration) (*NetConn, error) {
	return dialTCPTimeout(ctx, addr, settings, timeout)
}

func dialTCPTimeout(ctx context.Context, addr string, settings Settings, timeout time.Duration) (*NetConn, error) {
	dctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var cfg *tls.Config
	if settings.hasTLS() || settings.Domain != "" {
		cfg = tlsconfig.LoadClientConfig(settings.Domain)
	}
	stream, err := dialMaybeTLS(dctx, "tcp", addr, cfg)
	if err != nil {
		return nil, err
	}
	s := settings
	return &NetConn{netType: NetTypeTCP, tcp: &tcpConn{settings: &s, stream: stream}}, nil
}

// DialTCPTLSTimeout dials and forces a TLS upgrade regardless of whether
// settings.Domain is set, using domain for SNI validation.
func DialTCPTLSTimeout(ctx context.Context, addr, domain string, settings Settings, timeout time.Duration) (*NetConn, error) {
	dctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	cfg := tlsconfig.LoadClientConfig(domain)
	stream, err := dialMaybeTLS(dctx, "tcp", addr, cfg)
	if err != nil {
		return nil, err
	}
	s := settings
	s.Domain = domain
	return &NetConn{netType: NetTypeTCP, tcp: &tcpConn{settings: &s, stream: stream}}, nil
}

// ListenTCP binds addr and returns a listener-variant NetConn. A TLS
// acceptor is installed automatically when settings.Cert/Key are set.
func ListenTCP(addr string, settings Settings) (*NetConn, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, ioErr(err)
	}
	var tlsCfg *tls.Config
	if settings.hasTLS() {
		tlsCfg, err = tlsconfig.LoadServerConfig([]byte(settings.Cert), []byte(settings.Key))
		if err != nil {
			_ = ln.Close()
			return nil, ioErr(err)
		}
	}
	s := settings
	core := newListenerCore("tcp", func() (net.Conn, error) { return ln.Accept() }, ln.Close, ln.Addr(), &s, tlsCfg)
	return &NetConn{netType: NetTypeTCP, tcp: &tcpConn{settings: &s, listener: core, ln: ln}}, nil
}

func (c *tcpConn) remoteAddr() net.Addr {
	if c.stream != nil {
		return c.stream.RemoteAddr()
	}
	if c.accepted != nil {
		return c.accepted.raw.RemoteAddr()
	}
	if c.ln != nil {
		return c.ln.Addr()
	}
	return nil
}

func (c *tcpConn) runWithHandler(ctx context.Context, factory HandlerFactory) error {
	if c.listener != nil {
		listenerSender, _ := newSender(c.settings.QueueSize, 0)
		handler := factory(listenerSender)
		return c.listener.run(ctx, func(raw net.Conn, connID uint64, handle *onlineCountHandle) {
			child := &tcpConn{
				settings: c.settings,
				connID:   connID,
				accepted: newMaybeAcceptStream(raw, c.listener.tlsCfg),
				online:   handle,
			}
			childConn := &NetConn{netType: NetTypeTCP, tcp: child}
			if err := handler.OnAccept(ctx, childConn); err != nil {
				_ = raw.Close()
				handle.release()
			}
		})
	}

	if c.accepted != nil {
		stream, err := c.accepted.upgrade(ctx)
		if err != nil {
			return err
		}
		c.stream = stream
	}
	if c.online != nil {
		defer c.online.release()
	}

	sender, receiver := newSender(c.settings.QueueSize, c.connID)
	handler := factory(sender)
	eng := newStreamEngine(c.stream, c.settings, handler, sender, receiver, c.connID, ioErr)
	err := eng.run(ctx)
	if err != nil {
		handler.OnClose(ctx, CloseError, "NetError")
		return err
	}
	return nil
}
