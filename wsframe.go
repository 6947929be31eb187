package netconn

import (
	"crypto/rand"
	"encoding/binary"
)

// wsOpCode is the RFC 6455 frame opcode, distinct from the package's own
// OpCode used by the length-prefixed TCP/KCP codec.
type wsOpCode byte

const (
	wsOpContinuation wsOpCode = 0x0
	wsOpText         wsOpCode = 0x1
	wsOpBinary       wsOpCode = 0x2
	wsOpClose        wsOpCode = 0x8
	wsOpPing         wsOpCode = 0x9
	wsOpPong         wsOpCode = 0xA
)

// wsMaxMessageSize is the per-message reassembly limit spec.md §4.3 sets,
// independent of Settings.OnemsgMaxSize.
const wsMaxMessageSize = 100000

// wsFrame is one on-the-wire WS frame.
type wsFrame struct {
	Fin     bool
	Opcode  wsOpCode
	Masked  bool
	Payload []byte
}

// readWSFrame attempts to parse one frame off the front of buf. It returns
// (frame, consumed, err); consumed == 0 with a nil frame and nil err means
// not enough data is buffered yet.
func readWSFrame(buf []byte) (*wsFrame, int, error) {
	if len(buf) < 2 {
		return nil, 0, nil
	}
	fin := buf[0]&0x80 != 0
	opcode := wsOpCode(buf[0] & 0x0F)
	masked := buf[1]&0x80 != 0
	payloadLen := int(buf[1] & 0x7F)

	offset := 2
	switch payloadLen {
	case 126:
		if len(buf) < offset+2 {
			return nil, 0, nil
		}
		payloadLen = int(binary.BigEndian.Uint16(buf[offset:]))
		offset += 2
	case 127:
		if len(buf) < offset+8 {
			return nil, 0, nil
		}
		length64 := binary.BigEndian.Uint64(buf[offset:])
		if length64 > wsMaxMessageSize {
			return nil, 0, wsErr(ErrOverMsgSizeErr)
		}
		payloadLen = int(length64)
		offset += 8
	}
	if payloadLen > wsMaxMessageSize {
		return nil, 0, wsErr(ErrOverMsgSizeErr)
	}

	var maskKey [4]byte
	if masked {
		if len(buf) < offset+4 {
			return nil, 0, nil
		}
		copy(maskKey[:], buf[offset:offset+4])
		offset += 4
	}

	if len(buf) < offset+payloadLen {
		return nil, 0, nil
	}
	payload := make([]byte, payloadLen)
	copy(payload, buf[offset:offset+payloadLen])
	if masked {
		for i := range payload {
			payload[i] ^= maskKey[i%4]
		}
	}

	isControl := opcode == wsOpClose || opcode == wsOpPing || opcode == wsOpPong
	if isControl && (!fin || payloadLen > 125) {
		return nil, 0, wsErr(ErrBadCodeErr)
	}

	return &wsFrame{Fin: fin, Opcode: opcode, Masked: masked, Payload: payload}, offset + payloadLen, nil
}

// writeWSFrame serializes a single frame. When masked is true (client role)
// a fresh random 4-byte key is generated per frame and the payload is
// masked in the output; a server (masked == false) never masks, per
// spec.md §4.3.
func writeWSFrame(buf []byte, fin bool, opcode wsOpCode, payload []byte, masked bool) ([]byte, error) {
	first := byte(opcode)
	if fin {
		first |= 0x80
	}
	buf = append(buf, first)

	maskBit := byte(0)
	if masked {
		maskBit = 0x80
	}

	switch {
	case len(payload) < 126:
		buf = append(buf, maskBit|byte(len(payload)))
	case len(payload) <= 0xFFFF:
		buf = append(buf, maskBit|126)
		var lenBuf [2]byte
		binary.BigEndian.PutUint16(lenBuf[:], uint16(len(payload)))
		buf = append(buf, lenBuf[:]...)
	default:
		buf = append(buf, maskBit|127)
		var lenBuf [8]byte
		binary.BigEndian.PutUint64(lenBuf[:], uint64(len(payload)))
		buf = append(buf, lenBuf[:]...)
	}

	if !masked {
		buf = append(buf, payload...)
		return buf, nil
	}

	var maskKey [4]byte
	if _, err := rand.Read(maskKey[:]); err != nil {
		return nil, wsErr(err)
	}
	buf = append(buf, maskKey[:]...)
	start := len(buf)
	buf = append(buf, payload...)
	for i := start; i < len(buf); i++ {
		buf[i] ^= maskKey[(i-start)%4]
	}
	return buf, nil
}

// writeControlWSFrame writes an unfragmented control frame (Close/Ping/Pong).
// payload must be <= 125 bytes, per spec.md §4.3.
func writeControlWSFrame(buf []byte, opcode wsOpCode, payload []byte, masked bool) ([]byte, error) {
	if len(payload) > 125 {
		return nil, wsErr(ErrBadCodeErr)
	}
	return writeWSFrame(buf, true, opcode, payload, masked)
}

// wsReassembler accumulates continuation frames into one logical message.
// A WS connection owns exactly one of these; it is reset after each
// complete message (or aborted fragmented sequence).
type wsReassembler struct {
	active  bool
	opcode  wsOpCode
	payload []byte
}

// feed folds frame into the reassembler. On a complete message it returns
// (opcode, payload, true, nil); otherwise it returns (_, _, false, nil)
// to mean "keep reading frames". Control frames are never fragmented and
// are returned immediately without touching reassembly state.
func (r *wsReassembler) feed(frame *wsFrame) (wsOpCode, []byte, bool, error) {
	if frame.Opcode == wsOpClose || frame.Opcode == wsOpPing || frame.Opcode == wsOpPong {
		return frame.Opcode, frame.Payload, true, nil
	}

	switch frame.Opcode {
	case wsOpText, wsOpBinary:
		if r.active {
			return 0, nil, false, wsErr(ErrBadCodeErr)
		}
		r.active = true
		r.opcode = frame.Opcode
		r.payload = append(r.payload[:0], frame.Payload...)
	case wsOpContinuation:
		if !r.active {
			return 0, nil, false, wsErr(ErrBadCodeErr)
		}
		if len(r.payload)+len(frame.Payload) > wsMaxMessageSize {
			r.active = false
			r.payload = nil
			return 0, nil, false, wsErr(ErrOverMsgSizeErr)
		}
		r.payload = append(r.payload, frame.Payload...)
	default:
		return 0, nil, false, wsErr(ErrBadCodeErr)
	}

	if !frame.Fin {
		return 0, nil, false, nil
	}
	op, payload := r.opcode, r.payload
	r.active = false
	r.opcode = 0
	r.payload = nil
	return op, payload, true, nil
}
