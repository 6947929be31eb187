package netconn

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"netconn/internal/tlsconfig"
)

// wsConn is the WebSocket half of NetConn's tagged union. Unlike TCP/KCP
// it runs the HTTP upgrade handshake before the connection opens; the
// pre-Open phase (spec.md §4.5's Wait/WaitRet) is the blocking handshake
// call in runWithHandler, not a separate state value.
type wsConn struct {
	settings *Settings
	connID   uint64
	isClient bool

	stream   *maybeTLSStream
	accepted *maybeAcceptStream
	online   *onlineCountHandle

	dialHost string
	dialPath string

	listener *listenerCore
	ln       net.Listener
}

// DialWS connects to a ws:// or wss:// URL. The URL must carry an
// explicit port, per spec.md §6.
func DialWS(ctx context.Context, rawURL string, settings Settings) (*NetConn, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, wsErr(err)
	}
	if u.Port() == "" {
		return nil, wsErr(errors.New("websocket url must specify an explicit port"))
	}
	var tlsCfg *tls.Config
	switch u.Scheme {
	case "ws":
	case "wss":
		tlsCfg = tlsconfig.LoadClientConfig(u.Hostname())
	default:
		return nil, wsErr(fmt.Errorf("unsupported websocket scheme %q", u.Scheme))
	}

	dctx, cancel := context.WithTimeout(ctx, settings.ConnectTimeout)
	defer cancel()
	stream, err := dialMaybeTLS(dctx, "tcp", u.Host, tlsCfg)
	if err != nil {
		return nil, err
	}

	s := settings
	path := u.Path
	if path == "" {
		path = "/"
	}
	return &NetConn{netType: NetTypeWS, ws: &wsConn{
		settings: &s, stream: stream, isClient: true,
		dialHost: u.Host, dialPath: path,
	}}, nil
}

// ListenWS binds addr for incoming WebSocket connections.
func ListenWS(addr string, settings Settings) (*NetConn, error) {
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
	core := newListenerCore("ws", func() (net.Conn, error) { return ln.Accept() }, ln.Close, ln.Addr(), &s, tlsCfg)
	return &NetConn{netType: NetTypeWS, ws: &wsConn{settings: &s, listener: core, ln: ln}}, nil
}

func (c *wsConn) remoteAddr() net.Addr {
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

func (c *wsConn) runWithHandler(ctx context.Context, factory HandlerFactory) error {
	if c.listener != nil {
		listenerSender, _ := newSender(c.settings.QueueSize, 0)
		handler := factory(listenerSender)
		return c.listener.run(ctx, func(raw net.Conn, connID uint64, handle *onlineCountHandle) {
			child := &wsConn{
				settings: c.settings,
				connID:   connID,
				accepted: newMaybeAcceptStream(raw, c.listener.tlsCfg),
				online:   handle,
			}
			childConn := &NetConn{netType: NetTypeWS, ws: child}
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

	shakeCtx, cancel := context.WithTimeout(ctx, c.settings.ShakeTimeout)
	err := c.handshake(shakeCtx, handler)
	cancel()
	if err != nil {
		_ = c.stream.Close()
		handler.OnClose(ctx, CloseError, "NetError")
		return err
	}

	eng := newWSEngine(c.stream, c.settings, handler, sender, receiver, c.connID, c.isClient)
	if err := handler.OnOpen(ctx); err != nil {
		handler.OnClose(ctx, CloseError, "NetError")
		return err
	}
	runErr := eng.runAfterOpen(ctx)
	if runErr != nil {
		handler.OnClose(ctx, CloseError, "NetError")
		return runErr
	}
	return nil
}

// handshake performs the HTTP/1.1 upgrade dance per spec.md §4.2, reading
// and writing directly off c.stream. It must complete within the caller's
// shake-timeout context.
func (c *wsConn) handshake(ctx context.Context, handler Handler) error {
	if c.isClient {
		return c.clientHandshake(ctx, handler)
	}
	return c.serverHandshake(ctx, handler)
}

func (c *wsConn) clientHandshake(ctx context.Context, handler Handler) error {
	key, err := newSecWebSocketKey()
	if err != nil {
		return wsErr(err)
	}
	req := buildClientRequest(c.dialHost, c.dialPath, key)
	if err := writeAllCtx(ctx, c.stream, req); err != nil {
		return err
	}

	resp, err := readClientResponseCtx(ctx, c.stream)
	if err != nil {
		return err
	}
	if resp.Status != http.StatusSwitchingProtocols {
		return wsErr(fmt.Errorf("websocket handshake failed with status %d", resp.Status))
	}
	expected := computeAccept(key)
	if resp.Header.Get("Sec-WebSocket-Accept") != expected {
		return wsErr(errors.New("sec-websocket-accept mismatch"))
	}
	return handler.OnResponse(ctx, resp)
}

func (c *wsConn) serverHandshake(ctx context.Context, handler Handler) error {
	req, err := readServerRequestCtx(ctx, c.stream)
	if err != nil {
		return err
	}

	resp, err := handler.OnRequest(ctx, req)
	if err != nil {
		return err
	}
	if err := writeAllCtx(ctx, c.stream, writeHTTPResponse(resp)); err != nil {
		return err
	}
	if resp.Status != http.StatusSwitchingProtocols {
		return wsErr(fmt.Errorf("websocket handshake rejected with status %d", resp.Status))
	}
	return nil
}

// readClientResponseCtx reads off conn, growing a buffer, until
// parseClientResponse reports a complete HTTP response or an error.
func readClientResponseCtx(ctx context.Context, conn net.Conn) (*WSResponse, error) {
	if dl, ok := ctx.Deadline(); ok {
		_ = conn.SetReadDeadline(dl)
		defer conn.SetReadDeadline(time.Time{})
	}
	buf := make([]byte, 0, 512)
	chunk := make([]byte, 512)
	for {
		resp, consumed, err := parseClientResponse(buf)
		if err != nil {
			return nil, err
		}
		if consumed > 0 {
			return resp, nil
		}
		n, err := conn.Read(chunk)
		if n > 0 {
			buf = append(buf, chunk[:n]...)
		}
		if err != nil {
			return nil, ioErr(err)
		}
	}
}

// readServerRequestCtx is readClientResponseCtx's server-side counterpart.
func readServerRequestCtx(ctx context.Context, conn net.Conn) (*WSRequest, error) {
	if dl, ok := ctx.Deadline(); ok {
		_ = conn.SetReadDeadline(dl)
		defer conn.SetReadDeadline(time.Time{})
	}
	buf := make([]byte, 0, 512)
	chunk := make([]byte, 512)
	for {
		req, consumed, err := parseServerRequest(buf)
		if err != nil {
			return nil, err
		}
		if consumed > 0 {
			return req, nil
		}
		n, err := conn.Read(chunk)
		if n > 0 {
			buf = append(buf, chunk[:n]...)
		}
		if err != nil {
			return nil, ioErr(err)
		}
	}
}

// writeAllCtx writes b in full, respecting ctx's deadline.
func writeAllCtx(ctx context.Context, conn net.Conn, b []byte) error {
	if dl, ok := ctx.Deadline(); ok {
		_ = conn.SetWriteDeadline(dl)
		defer conn.SetWriteDeadline(time.Time{})
	}
	_, err := conn.Write(b)
	if err != nil {
		return ioErr(err)
	}
	return nil
}
