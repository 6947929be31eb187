package netconn

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// relayHandler is the listener-side handler used across the integration
// tests: it spawns one goroutine per accepted child running childFactory.
type relayHandler struct {
	NoopHandler
	childFactory HandlerFactory
}

func (h *relayHandler) OnAccept(ctx context.Context, child *NetConn) error {
	go child.RunHandler(ctx, h.childFactory)
	return nil
}

// echoChildHandler replies to every Text/Binary message with itself.
type echoChildHandler struct {
	NoopHandler
	sender NetSender
}

func (h *echoChildHandler) OnMessage(ctx context.Context, msg Message) error {
	return h.sender.SendMessage(msg)
}

func startTCPEchoServer(t *testing.T, settings Settings) (addr string, stop func()) {
	t.Helper()
	ln, err := ListenTCP("127.0.0.1:0", settings)
	require.NoError(t, err)
	addr = ln.RemoteAddr().String()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		_ = ln.RunHandler(ctx, func(sender NetSender) Handler {
			return &relayHandler{childFactory: func(s NetSender) Handler {
				return &echoChildHandler{sender: s}
			}}
		})
	}()
	return addr, cancel
}

func TestTCPEcho(t *testing.T) {
	settings := DefaultSettings()
	addr, stop := startTCPEchoServer(t, settings)
	defer stop()

	conn, err := net.DialTimeout("tcp", addr, time.Second)
	require.NoError(t, err)
	defer conn.Close()

	req := encodeMessage(nil, TextMessage("hello"), false)
	_, err = conn.Write(req)
	require.NoError(t, err)

	buf := make([]byte, 256)
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	n, err := conn.Read(buf)
	require.NoError(t, err)

	msg, consumed, err := decodeMessage(buf[:n], &settings)
	require.NoError(t, err)
	require.Equal(t, n, consumed)
	assert.Equal(t, "hello", msg.Text())

	closeReq := encodeMessage(nil, CloseMessage(CloseNormal, "bye"), false)
	_, err = conn.Write(closeReq)
	require.NoError(t, err)
}

func TestTCPPingPong(t *testing.T) {
	settings := DefaultSettings()
	ln, err := ListenTCP("127.0.0.1:0", settings)
	require.NoError(t, err)
	addr := ln.RemoteAddr().String()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go ln.RunHandler(ctx, func(sender NetSender) Handler {
		return &relayHandler{childFactory: func(s NetSender) Handler {
			return &echoChildHandler{sender: s}
		}}
	})

	conn, err := net.DialTimeout("tcp", addr, time.Second)
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write(encodeMessage(nil, PingMessage([]byte("x")), false))
	require.NoError(t, err)

	buf := make([]byte, 256)
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	n, err := conn.Read(buf)
	require.NoError(t, err)

	msg, _, err := decodeMessage(buf[:n], &settings)
	require.NoError(t, err)
	assert.Equal(t, OpPong, msg.OpCode())
	assert.Equal(t, []byte("x"), msg.Binary())
}

func TestTCPOversizeTerminatesWithNetError(t *testing.T) {
	settings := DefaultSettings()
	settings.OnemsgMaxSize = 16

	var mu sync.Mutex
	var gotCode CloseCode
	var gotReason string
	closed := make(chan struct{})

	ln, err := ListenTCP("127.0.0.1:0", settings)
	require.NoError(t, err)
	addr := ln.RemoteAddr().String()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go ln.RunHandler(ctx, func(sender NetSender) Handler {
		return &relayHandler{childFactory: func(s NetSender) Handler {
			return &oversizeObserverHandler{onClose: func(code CloseCode, reason string) {
				mu.Lock()
				gotCode, gotReason = code, reason
				mu.Unlock()
				close(closed)
			}}
		}}
	})

	conn, err := net.DialTimeout("tcp", addr, time.Second)
	require.NoError(t, err)
	defer conn.Close()

	oversized := make([]byte, 64)
	frame := appendFrame(nil, OpText, oversized)
	_, _ = conn.Write(frame)

	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatal("on_close was never invoked after oversize frame")
	}
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, CloseError, gotCode)
	assert.Equal(t, "NetError", gotReason)
}

type oversizeObserverHandler struct {
	NoopHandler
	onClose func(code CloseCode, reason string)
}

func (h *oversizeObserverHandler) OnClose(ctx context.Context, code CloseCode, reason string) {
	h.onClose(code, reason)
}

func TestTCPMaxConnectionsRejectsThirdConnection(t *testing.T) {
	settings := DefaultSettings()
	settings.MaxConnections = 2

	var acceptCount int32
	var mu sync.Mutex

	ln, err := ListenTCP("127.0.0.1:0", settings)
	require.NoError(t, err)
	addr := ln.RemoteAddr().String()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go ln.RunHandler(ctx, func(sender NetSender) Handler {
		return &countingAcceptHandler{onAccept: func() {
			mu.Lock()
			acceptCount++
			mu.Unlock()
		}}
	})

	c1, err := net.DialTimeout("tcp", addr, time.Second)
	require.NoError(t, err)
	defer c1.Close()
	c2, err := net.DialTimeout("tcp", addr, time.Second)
	require.NoError(t, err)
	defer c2.Close()

	time.Sleep(150 * time.Millisecond)

	c3, err := net.DialTimeout("tcp", addr, time.Second)
	require.NoError(t, err)
	defer c3.Close()

	// The third socket should be closed by the server without its
	// handler's OnAccept ever firing.
	c3.SetReadDeadline(time.Now().Add(time.Second))
	buf := make([]byte, 1)
	_, readErr := c3.Read(buf)
	assert.Error(t, readErr)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, int32(2), acceptCount)
}

type countingAcceptHandler struct {
	NoopHandler
	onAccept func()
}

func (h *countingAcceptHandler) OnAccept(ctx context.Context, child *NetConn) error {
	h.onAccept()
	go child.RunHandler(ctx, func(sender NetSender) Handler { return &NoopHandler{} })
	return nil
}

func TestTCPGracefulCloseDrainsPendingWrites(t *testing.T) {
	settings := DefaultSettings()
	settings.ClosingTime = 2 * time.Second

	ln, err := ListenTCP("127.0.0.1:0", settings)
	require.NoError(t, err)
	addr := ln.RemoteAddr().String()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	childReady := make(chan NetSender, 1)
	go ln.RunHandler(ctx, func(sender NetSender) Handler {
		return &relayHandler{childFactory: func(s NetSender) Handler {
			childReady <- s
			return &NoopHandler{}
		}}
	})

	conn, err := net.DialTimeout("tcp", addr, time.Second)
	require.NoError(t, err)
	defer conn.Close()

	var childSender NetSender
	select {
	case childSender = <-childReady:
	case <-time.After(time.Second):
		t.Fatal("child never connected")
	}

	payload := make([]byte, 1024)
	require.NoError(t, childSender.SendMessage(BinaryMessage(payload)))
	require.NoError(t, childSender.CloseWithReason(CloseNormal, "done"))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	total := 0
	buf := make([]byte, 2048)
	for total < frameHeaderSize+len(payload) {
		n, err := conn.Read(buf[total:])
		require.NoError(t, err)
		total += n
	}
	assert.GreaterOrEqual(t, total, frameHeaderSize+len(payload))
}
