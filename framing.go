package netconn

import (
	"encoding/binary"
	"unicode/utf8"
)

// Wire format for the TCP/KCP framing (big-endian):
//
//	+-----------+-----------+----------+--------+----------+
//	| len[23:16]| len[15:8] | len[7:0] | opcode | payload… |
//	+-----------+-----------+----------+--------+----------+
//
// length counts the whole frame, header included.

const frameHeaderSize = 4

// readU24 reads a 3-byte big-endian unsigned integer.
func readU24(b []byte) uint32 {
	return uint32(b[0])<<16 | uint32(b[1])<<8 | uint32(b[2])
}

// putU24 writes val as a 3-byte big-endian unsigned integer into dst.
func putU24(dst []byte, val uint32) {
	dst[0] = byte(val >> 16)
	dst[1] = byte(val >> 8)
	dst[2] = byte(val)
}

// decodeMessage attempts to pull one complete frame off the front of buf.
// It returns (msg, consumed, err). consumed == 0 with a nil msg and nil err
// means "not enough data buffered yet" — the caller should read more.
func decodeMessage(buf []byte, settings *Settings) (*Message, int, error) {
	if settings.IsRaw {
		if len(buf) == 0 {
			return nil, 0, nil
		}
		cp := make([]byte, len(buf))
		copy(cp, buf)
		m := BinaryMessage(cp)
		return &m, len(buf), nil
	}

	if len(buf) < frameHeaderSize {
		return nil, 0, nil
	}
	length := int(readU24(buf))
	if length < frameHeaderSize {
		return nil, 0, ErrTooShortErr
	}
	if length > settings.OnemsgMaxSize {
		return nil, 0, ErrOverMsgSizeErr
	}
	if len(buf) < length {
		return nil, 0, nil
	}

	op := opCodeFromByte(buf[3])
	payload := buf[frameHeaderSize:length]

	switch op {
	case OpText:
		if !utf8.Valid(payload) {
			return nil, 0, ErrBadTextErr
		}
		m := TextMessage(string(payload))
		return &m, length, nil
	case OpBinary:
		cp := make([]byte, len(payload))
		copy(cp, payload)
		m := BinaryMessage(cp)
		return &m, length, nil
	case OpClose:
		if len(payload) < 2 {
			return nil, 0, ErrTooShortErr
		}
		// The authoritative decoding matches the encoder: code is the
		// big-endian uint16 formed by the first two payload bytes. An
		// older sibling codec in the reference implementation computed
		// (byte0<<4)+byte1 instead; that disagreed with its own encoder
		// and is not replicated here (see SPEC_FULL.md / DESIGN.md).
		code := CloseCode(binary.BigEndian.Uint16(payload[:2]))
		reason := payload[2:]
		if !utf8.Valid(reason) {
			return nil, 0, ErrBadTextErr
		}
		m := CloseMessage(code, string(reason))
		return &m, length, nil
	case OpPing:
		cp := append([]byte(nil), payload...)
		m := PingMessage(cp)
		return &m, length, nil
	case OpPong:
		cp := append([]byte(nil), payload...)
		m := PongMessage(cp)
		return &m, length, nil
	default:
		return nil, 0, ErrBadCodeErr
	}
}

// encodeMessage appends the wire encoding of msg to buf and returns the
// extended slice. In raw mode, Text/Binary are written verbatim with no
// header and Close/Ping/Pong/Shutdown are silently dropped.
func encodeMessage(buf []byte, msg Message, isRaw bool) []byte {
	switch msg.OpCode() {
	case OpText:
		b := []byte(msg.Text())
		if isRaw {
			return append(buf, b...)
		}
		return appendFrame(buf, OpText, b)
	case OpBinary:
		if isRaw {
			return append(buf, msg.Binary()...)
		}
		return appendFrame(buf, OpBinary, msg.Binary())
	case OpClose:
		if isRaw {
			return buf
		}
		reason := []byte(msg.Reason())
		payload := make([]byte, 2+len(reason))
		binary.BigEndian.PutUint16(payload, uint16(msg.CloseCode()))
		copy(payload[2:], reason)
		return appendFrame(buf, OpClose, payload)
	case OpPing:
		if isRaw {
			return buf
		}
		return appendFrame(buf, OpPing, msg.Binary())
	case OpPong:
		if isRaw {
			return buf
		}
		return appendFrame(buf, OpPong, msg.Binary())
	default:
		// Shutdown never crosses the wire.
		return buf
	}
}

func appendFrame(buf []byte, op OpCode, payload []byte) []byte {
	length := uint32(frameHeaderSize + len(payload))
	header := make([]byte, frameHeaderSize)
	putU24(header, length)
	header[3] = byte(op)
	buf = append(buf, header...)
	buf = append(buf, payload...)
	return buf
}
