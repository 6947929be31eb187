package netconn

import (
	"context"
	"crypto/tls"
	"net"
	"time"
)

// maybeTLSStream is a net.Conn that may be plain, client-side TLS, or
// server-side TLS. The three-way split exists because accepted sockets
// defer their TLS handshake to the connection's first poll rather than
// blocking the listener's accept loop.
type maybeTLSStream struct {
	plain  net.Conn
	tls    *tls.Conn
	server bool
}

func newPlainStream(c net.Conn) *maybeTLSStream {
	return &maybeTLSStream{plain: c}
}

func newClientTLSStream(c *tls.Conn) *maybeTLSStream {
	return &maybeTLSStream{tls: c}
}

func newServerTLSStream(c *tls.Conn) *maybeTLSStream {
	return &maybeTLSStream{tls: c, server: true}
}

func (s *maybeTLSStream) conn() net.Conn {
	if s.tls != nil {
		return s.tls
	}
	return s.plain
}

func (s *maybeTLSStream) Read(b []byte) (int, error)  { return s.conn().Read(b) }
func (s *maybeTLSStream) Write(b []byte) (int, error) { return s.conn().Write(b) }
func (s *maybeTLSStream) Close() error                { return s.conn().Close() }
func (s *maybeTLSStream) LocalAddr() net.Addr         { return s.conn().LocalAddr() }
func (s *maybeTLSStream) RemoteAddr() net.Addr        { return s.conn().RemoteAddr() }
func (s *maybeTLSStream) SetDeadline(t time.Time) error {
	return s.conn().SetDeadline(t)
}
func (s *maybeTLSStream) SetReadDeadline(t time.Time) error {
	return s.conn().SetReadDeadline(t)
}
func (s *maybeTLSStream) SetWriteDeadline(t time.Time) error {
	return s.conn().SetWriteDeadline(t)
}

// dialMaybeTLS dials addr, optionally upgrading to TLS when cfg is non-nil.
func dialMaybeTLS(ctx context.Context, network, addr string, cfg *tls.Config) (*maybeTLSStream, error) {
	d := net.Dialer{}
	c, err := d.DialContext(ctx, network, addr)
	if err != nil {
		return nil, ioErr(err)
	}
	if cfg == nil {
		return newPlainStream(c), nil
	}
	tc := tls.Client(c, cfg)
	if err := tc.HandshakeContext(ctx); err != nil {
		_ = c.Close()
		return nil, ioErr(err)
	}
	return newClientTLSStream(tc), nil
}

// maybeAcceptStream wraps a freshly accepted socket together with an
// optional shared *tls.Config; the upgrade happens lazily on the first
// call to upgrade, not at accept time, so a slow or hostile TLS client
// cannot stall the listener's accept loop.
type maybeAcceptStream struct {
	raw      net.Conn
	tlsCfg   *tls.Config
	upgraded *maybeTLSStream
}

func newMaybeAcceptStream(raw net.Conn, tlsCfg *tls.Config) *maybeAcceptStream {
	return &maybeAcceptStream{raw: raw, tlsCfg: tlsCfg}
}

// upgrade performs the deferred TLS handshake (a no-op if tlsCfg is nil)
// and returns the usable stream. It is idempotent.
func (m *maybeAcceptStream) upgrade(ctx context.Context) (*maybeTLSStream, error) {
	if m.upgraded != nil {
		return m.upgraded, nil
	}
	if m.tlsCfg == nil {
		m.upgraded = newPlainStream(m.raw)
		return m.upgraded, nil
	}
	tc := tls.Server(m.raw, m.tlsCfg)
	if err := tc.HandshakeContext(ctx); err != nil {
		return nil, ioErr(err)
	}
	m.upgraded = newServerTLSStream(tc)
	return m.upgraded, nil
}
