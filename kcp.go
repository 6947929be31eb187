package netconn

import (
	"context"
	"crypto/tls"
	"net"
	"time"

	"github.com/xtaci/kcp-go/v5"

	"netconn/internal/tlsconfig"
)

// kcpConn is the KCP-transport half of NetConn's tagged union. It mirrors
// tcpConn closely: kcp-go's Listener/UDPSession both satisfy net.Conn and
// net.Listener, so the only real difference from TCP is the dial/listen
// entry points.
type kcpConn struct {
	settings *Settings
	connID   uint64

	stream   *maybeTLSStream
	accepted *maybeAcceptStream
	online   *onlineCountHandle

	listener *listenerCore
	ln       net.Listener
}

// DialKCP connects to addr over KCP within Settings.ConnectTimeout.
func DialKCP(ctx context.Context, addr string, settings Settings) (*NetConn, error) {
	return dialKCPTimeout(ctx, addr, settings, settings.ConnectTimeout)
}

// DialKCPTimeout is DialKCP with an explicit connect-timeout override.
func DialKCPTimeout(ctx context.Context, addr string, settings Settings, timeout time.Duration) (*NetConn, error) {
	return dialKCPTimeout(ctx, addr, settings, timeout)
}

func dialKCPTimeout(ctx context.Context, addr string, settings Settings, timeout time.Duration) (*NetConn, error) {
	type dialResult struct {
		conn net.Conn
		err  error
	}
	done := make(chan dialResult, 1)
	go func() {
		c, err := kcp.Dial(addr)
		done <- dialResult{c, err}
	}()

	var raw net.Conn
	select {
	case r := <-done:
		if r.err != nil {
			return nil, kcpErr(r.err)
		}
		raw = r.conn
	case <-time.After(timeout):
		return nil, ErrTimeoutErr
	case <-ctx.Done():
		return nil, ioErr(ctx.Err())
	}

	s := settings
	var stream *maybeTLSStream
	if s.hasTLS() || s.Domain != "" {
		cfg := tlsconfig.LoadClientConfig(s.Domain)
		tc := tls.Client(raw, cfg)
		if err := tc.HandshakeContext(ctx); err != nil {
			_ = raw.Close()
			return nil, ioErr(err)
		}
		stream = newClientTLSStream(tc)
	} else {
		stream = newPlainStream(raw)
	}
	return &NetConn{netType: NetTypeKCP, kcp: &kcpConn{settings: &s, stream: stream}}, nil
}

// ListenKCP binds addr over KCP and returns a listener-variant NetConn.
func ListenKCP(addr string, settings Settings) (*NetConn, error) {
	ln, err := kcp.Listen(addr)
	if err != nil {
		return nil, kcpErr(err)
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
	core := newListenerCore("kcp", ln.Accept, ln.Close, ln.Addr(), &s, tlsCfg)
	return &NetConn{netType: NetTypeKCP, kcp: &kcpConn{settings: &s, listener: core, ln: ln}}, nil
}

func (c *kcpConn) remoteAddr() net.Addr {
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

func (c *kcpConn) runWithHandler(ctx context.Context, factory HandlerFactory) error {
	if c.listener != nil {
		listenerSender, _ := newSender(c.settings.QueueSize, 0)
		handler := factory(listenerSender)
		return c.listener.run(ctx, func(raw net.Conn, connID uint64, handle *onlineCountHandle) {
			child := &kcpConn{
				settings: c.settings,
				connID:   connID,
				accepted: newMaybeAcceptStream(raw, c.listener.tlsCfg),
				online:   handle,
			}
			childConn := &NetConn{netType: NetTypeKCP, kcp: child}
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
	eng := newStreamEngine(c.stream, c.settings, handler, sender, receiver, c.connID, kcpErr)
	err := eng.run(ctx)
	if err != nil {
		handler.OnClose(ctx, CloseError, "NetError")
		return err
	}
	return nil
}
