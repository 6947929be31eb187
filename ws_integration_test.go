package netconn

import (
	"bufio"
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// rawWSClient is a minimal hand-rolled WS client used only to exercise
// the server's wire format from outside the package, the way a real
// interoperating peer would.
type rawWSClient struct {
	conn net.Conn
	r    *bufio.Reader
}

func dialRawWS(t *testing.T, addr, path string) *rawWSClient {
	t.Helper()
	conn, err := net.DialTimeout("tcp", addr, time.Second)
	require.NoError(t, err)

	var keyBytes [16]byte
	_, err = rand.Read(keyBytes[:])
	require.NoError(t, err)
	key := base64.StdEncoding.EncodeToString(keyBytes[:])

	req := fmt.Sprintf(
		"GET %s HTTP/1.1\r\nHost: %s\r\nConnection: Upgrade\r\nUpgrade: websocket\r\n"+
			"Sec-WebSocket-Version: 13\r\nSec-WebSocket-Key: %s\r\n\r\n",
		path, addr, key)
	_, err = conn.Write([]byte(req))
	require.NoError(t, err)

	r := bufio.NewReader(conn)
	resp, err := http.ReadResponse(r, nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)
	expected := computeAccept(key)
	require.Equal(t, expected, resp.Header.Get("Sec-WebSocket-Accept"))

	return &rawWSClient{conn: conn, r: r}
}

func (c *rawWSClient) sendText(t *testing.T, text string) {
	t.Helper()
	buf, err := writeWSFrame(nil, true, wsOpText, []byte(text), true)
	require.NoError(t, err)
	_, err = c.conn.Write(buf)
	require.NoError(t, err)
}

func (c *rawWSClient) readText(t *testing.T) string {
	t.Helper()
	c.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 0, 64)
	chunk := make([]byte, 64)
	for {
		frame, consumed, err := readWSFrame(buf)
		require.NoError(t, err)
		if consumed > 0 {
			return string(frame.Payload)
		}
		n, err := c.r.Read(chunk)
		require.NoError(t, err)
		buf = append(buf, chunk[:n]...)
	}
}

func TestWebSocketHandshakeAndEcho(t *testing.T) {
	settings := DefaultSettings()
	ln, err := ListenWS("127.0.0.1:0", settings)
	require.NoError(t, err)
	addr := ln.RemoteAddr().String()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go ln.RunHandler(ctx, func(sender NetSender) Handler {
		return &relayHandler{childFactory: func(s NetSender) Handler {
			return &echoChildHandler{sender: s}
		}}
	})

	client := dialRawWS(t, addr, "/chat")
	defer client.conn.Close()

	client.sendText(t, "ping over websocket")
	got := client.readText(t)
	assert.Equal(t, "ping over websocket", got)
}
