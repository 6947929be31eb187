package netconn

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNoopHandlerOnAcceptPanics(t *testing.T) {
	assert.Panics(t, func() {
		var h NoopHandler
		_ = h.OnAccept(context.Background(), nil)
	})
}

func TestNoopHandlerOnPingEchoes(t *testing.T) {
	var h NoopHandler
	reply, err := h.OnPing(context.Background(), []byte("ping"))
	assert.NoError(t, err)
	assert.Equal(t, []byte("ping"), reply)
}

func TestNoopHandlerOnRequestProducesStandard101(t *testing.T) {
	var h NoopHandler
	req := &WSRequest{Header: map[string][]string{
		"Sec-Websocket-Key":     {"dGhlIHNhbXBsZSBub25jZQ=="},
		"Sec-Websocket-Version": {"13"},
	}}
	resp, err := h.OnRequest(context.Background(), req)
	assert.NoError(t, err)
	assert.Equal(t, 101, resp.Status)
}
