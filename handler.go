package netconn

import "context"

// Handler is the capability set an application implements to react to a
// connection's lifecycle. Embed NoopHandler to inherit the spec-mandated
// defaults and override only the callbacks you need.
type Handler interface {
	// OnAccept fires only on a listener connection when a child connection
	// has been produced by accept. Implementations that never listen may
	// rely on NoopHandler's panic: accepting without handling it is a
	// programming error, not a runtime condition to recover from.
	OnAccept(ctx context.Context, child *NetConn) error

	// OnOpen fires exactly once, before any OnMessage, once the connection
	// becomes usable (immediately for TCP/KCP, after handshake for WS).
	OnOpen(ctx context.Context) error

	// OnClose is the terminal callback; it fires at most once.
	OnClose(ctx context.Context, code CloseCode, reason string)

	// OnPing fires on a received ping. A non-nil returned slice is echoed
	// back as a Pong; returning nil suppresses the automatic Pong.
	OnPing(ctx context.Context, data []byte) ([]byte, error)

	// OnPong fires on a received pong.
	OnPong(ctx context.Context, data []byte) error

	// OnMessage fires for Text/Binary data frames only.
	OnMessage(ctx context.Context, msg Message) error

	// OnRequest is a WS-only server-side hook: it receives the parsed
	// upgrade request and returns the HTTP response to send. The default
	// produces the standard 101 Switching Protocols response.
	OnRequest(ctx context.Context, req *WSRequest) (*WSResponse, error)

	// OnResponse is a WS-only client-side hook, called with the server's
	// handshake response once the HTTP parse succeeds with status 101.
	OnResponse(ctx context.Context, resp *WSResponse) error

	// OnLogic is a cooperative background hook. The engines in this
	// package do not call it; NoopHandler's default blocks forever.
	OnLogic(ctx context.Context) error
}

// NoopHandler implements every Handler method with the spec's defaults.
// Embed it in application handler structs to avoid boilerplate overrides.
type NoopHandler struct{}

func (NoopHandler) OnAccept(ctx context.Context, child *NetConn) error {
	panic("netconn: listener must implement OnAccept")
}

func (NoopHandler) OnOpen(ctx context.Context) error { return nil }

func (NoopHandler) OnClose(ctx context.Context, code CloseCode, reason string) {}

func (NoopHandler) OnPing(ctx context.Context, data []byte) ([]byte, error) { return data, nil }

func (NoopHandler) OnPong(ctx context.Context, data []byte) error { return nil }

func (NoopHandler) OnMessage(ctx context.Context, msg Message) error { return nil }

func (NoopHandler) OnRequest(ctx context.Context, req *WSRequest) (*WSResponse, error) {
	return BuildHandshakeResponse(req)
}

func (NoopHandler) OnResponse(ctx context.Context, resp *WSResponse) error { return nil }

func (NoopHandler) OnLogic(ctx context.Context) error {
	<-context.Background().Done()
	return nil
}

// HandlerFactory builds a Handler from the NetSender the engine hands it.
type HandlerFactory func(sender NetSender) Handler
