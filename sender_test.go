package netconn

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendMessageSucceedsWithinCapacity(t *testing.T) {
	sender, receiver := newSender(2, 42)
	require.NoError(t, sender.SendMessage(TextMessage("one")))
	require.NoError(t, sender.SendMessage(TextMessage("two")))
	assert.Equal(t, uint64(42), sender.GetConnectionID())
	assert.Len(t, receiver.ch, 2)
}

func TestSendMessageReturnsSendFullAtCapacity(t *testing.T) {
	sender, _ := newSender(1, 1)
	require.NoError(t, sender.SendMessage(TextMessage("one")))
	err := sender.SendMessage(TextMessage("two"))
	require.Error(t, err)
	var ne *NetError
	require.ErrorAs(t, err, &ne)
	assert.Equal(t, ErrSendFull, ne.Kind())
	require.NotNil(t, ne.Command())
	assert.Equal(t, "two", ne.Command().Msg.Text())
}

func TestSendMessageReturnsSendClosedAfterReceiverCloses(t *testing.T) {
	sender, receiver := newSender(4, 1)
	receiver.close()
	assert.True(t, sender.IsClosed())
	err := sender.SendMessage(TextMessage("too late"))
	require.Error(t, err)
	var ne *NetError
	require.ErrorAs(t, err, &ne)
	assert.Equal(t, ErrSendClosed, ne.Kind())
}

func TestClosedChannelUnblocksOnReceiverClose(t *testing.T) {
	sender, receiver := newSender(1, 1)
	select {
	case <-sender.Closed():
		t.Fatal("closed fired before receiver was closed")
	default:
	}
	receiver.close()
	select {
	case <-sender.Closed():
	default:
		t.Fatal("closed did not fire after receiver closed")
	}
}

func TestCloseWithReasonEnqueuesCloseMessage(t *testing.T) {
	sender, receiver := newSender(1, 1)
	require.NoError(t, sender.CloseWithReason(CloseNormal, "done"))
	cmd := <-receiver.ch
	assert.Equal(t, OpClose, cmd.Msg.OpCode())
	assert.Equal(t, CloseNormal, cmd.Msg.CloseCode())
	assert.Equal(t, "done", cmd.Msg.Reason())
}

func TestReceiverCloseIsIdempotent(t *testing.T) {
	_, receiver := newSender(1, 1)
	receiver.close()
	assert.NotPanics(t, func() { receiver.close() })
}
