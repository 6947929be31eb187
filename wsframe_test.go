package netconn

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteReadWSFrameRoundTripUnmasked(t *testing.T) {
	buf, err := writeWSFrame(nil, true, wsOpText, []byte("hello"), false)
	require.NoError(t, err)
	frame, consumed, err := readWSFrame(buf)
	require.NoError(t, err)
	assert.Equal(t, len(buf), consumed)
	assert.True(t, frame.Fin)
	assert.False(t, frame.Masked)
	assert.Equal(t, wsOpText, frame.Opcode)
	assert.Equal(t, []byte("hello"), frame.Payload)
}

func TestWriteReadWSFrameRoundTripMasked(t *testing.T) {
	buf, err := writeWSFrame(nil, true, wsOpBinary, []byte{1, 2, 3, 4, 5}, true)
	require.NoError(t, err)
	// byte 1 bit 0x80 marks masked; readWSFrame must report the frame as
	// masked and unmask the payload back to the plaintext.
	frame, consumed, err := readWSFrame(buf)
	require.NoError(t, err)
	assert.Equal(t, len(buf), consumed)
	assert.True(t, frame.Masked)
	assert.Equal(t, []byte{1, 2, 3, 4, 5}, frame.Payload)
}

func TestWriteReadWSFrameLargePayloadUses16BitLength(t *testing.T) {
	payload := make([]byte, 200)
	buf, err := writeWSFrame(nil, true, wsOpBinary, payload, false)
	require.NoError(t, err)
	assert.Equal(t, byte(126), buf[1]&0x7F)
	frame, consumed, err := readWSFrame(buf)
	require.NoError(t, err)
	assert.Equal(t, len(buf), consumed)
	assert.Len(t, frame.Payload, 200)
}

func TestControlFrameOver125BytesRejected(t *testing.T) {
	_, err := writeControlWSFrame(nil, wsOpPing, make([]byte, 126), false)
	require.Error(t, err)
}

func TestFragmentedControlFrameIsRejected(t *testing.T) {
	// Fin=false on a control opcode violates spec.md's never-fragmented rule.
	buf := []byte{byte(wsOpClose), 0x00}
	_, _, err := readWSFrame(buf)
	require.Error(t, err)
}

func TestReassemblerJoinsContinuationFrames(t *testing.T) {
	var r wsReassembler
	op, payload, complete, err := r.feed(&wsFrame{Fin: false, Opcode: wsOpText, Payload: []byte("hel")})
	require.NoError(t, err)
	assert.False(t, complete)

	op, payload, complete, err = r.feed(&wsFrame{Fin: true, Opcode: wsOpContinuation, Payload: []byte("lo")})
	require.NoError(t, err)
	require.True(t, complete)
	assert.Equal(t, wsOpText, op)
	assert.Equal(t, []byte("hello"), payload)
}

func TestReassemblerPassesControlFramesThroughImmediately(t *testing.T) {
	var r wsReassembler
	op, payload, complete, err := r.feed(&wsFrame{Fin: true, Opcode: wsOpPing, Payload: []byte("x")})
	require.NoError(t, err)
	assert.True(t, complete)
	assert.Equal(t, wsOpPing, op)
	assert.Equal(t, []byte("x"), payload)
}

func TestReassemblerRejectsContinuationWithoutStart(t *testing.T) {
	var r wsReassembler
	_, _, _, err := r.feed(&wsFrame{Fin: true, Opcode: wsOpContinuation, Payload: []byte("x")})
	require.Error(t, err)
}

func TestReassemblerEnforcesMaxMessageSize(t *testing.T) {
	var r wsReassembler
	_, _, _, err := r.feed(&wsFrame{Fin: false, Opcode: wsOpText, Payload: make([]byte, wsMaxMessageSize)})
	require.NoError(t, err)
	_, _, _, err = r.feed(&wsFrame{Fin: true, Opcode: wsOpContinuation, Payload: []byte("overflow")})
	require.Error(t, err)
}
