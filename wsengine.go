package netconn

import (
	"context"
	"errors"
	"io"
	"time"

	"netconn/internal/netmetrics"
)

// wsEngine drives a WebSocket connection's select loop once the HTTP
// handshake has completed. It parallels streamEngine's structure (same
// Open/Closing/Closed machine, same backpressure gates) but speaks WS
// data frames instead of the length-prefixed TCP/KCP codec.
type wsEngine struct {
	*streamEngineBase
	masked       bool // true for the client role: every outbound frame is masked
	reassembler  wsReassembler
}

// streamEngineBase holds wsEngine's connection, state and buffer
// bookkeeping. Only wsEngine embeds it; streamEngine in engine.go declares
// the same fields itself, and the two engines have separate run loops.
type streamEngineBase struct {
	conn     ioConn
	settings *Settings
	handler  Handler
	sender   NetSender
	receiver *netReceiver
	connID   uint64

	state         connState
	readBuf       []byte
	writeBuf      []byte
	closeDeadline time.Time
}

// ioConn is the subset of net.Conn the engines need; satisfied by
// *maybeTLSStream.
type ioConn interface {
	Read([]byte) (int, error)
	Write([]byte) (int, error)
	Close() error
}

func newWSEngine(conn ioConn, settings *Settings, handler Handler, sender NetSender, receiver *netReceiver, connID uint64, isClient bool) *wsEngine {
	return &wsEngine{
		streamEngineBase: &streamEngineBase{
			conn: conn, settings: settings, handler: handler,
			sender: sender, receiver: receiver, connID: connID, state: stateOpen,
		},
		masked: isClient,
	}
}

// runAfterOpen is wsEngine's equivalent of streamEngine.run, entered once
// OnOpen has already fired.
func (e *wsEngine) runAfterOpen(ctx context.Context) error {
	defer e.receiver.close()
	defer e.conn.Close()

	readCh := make(chan readResult, 1)
	go e.readLoop(ctx, readCh)

	readTimeout := time.NewTimer(e.settings.ReadTimeout)
	defer readTimeout.Stop()

	for {
		if e.state == stateClosed {
			return nil
		}

		var closeTimer <-chan time.Time
		if e.state == stateClosing {
			remaining := time.Until(e.closeDeadline)
			if remaining <= 0 {
				e.state = stateClosed
				continue
			}
			t := time.NewTimer(remaining)
			defer t.Stop()
			closeTimer = t.C
		}

		// Per spec.md §4.5, Closing still reads and drops the sender queue
		// (dispatchOutboundMessage silently discards everything, a
		// repeated Close/Shutdown included); only writeBuf backpressure
		// closes this gate.
		var sendCh <-chan Command
		if len(e.writeBuf) < e.settings.OutBufferMax {
			sendCh = e.receiver.ch
		}

		var writeReady <-chan struct{}
		if len(e.writeBuf) > 0 {
			ready := make(chan struct{}, 1)
			ready <- struct{}{}
			writeReady = ready
		}

		select {
		case <-ctx.Done():
			return ioErr(ctx.Err())

		case res := <-readCh:
			if res.err != nil {
				if errors.Is(res.err, io.EOF) {
					if err := e.dispatchInboundMessage(ctx, ShutdownMessage()); err != nil {
						return err
					}
					return nil
				}
				wrapped := wsErr(res.err)
				netmetrics.Errors.WithLabelValues(wrapped.Kind().String()).Inc()
				return wrapped
			}
			readTimeout.Reset(e.settings.ReadTimeout)
			netmetrics.Bytes.WithLabelValues("in").Add(float64(len(res.data)))
			e.readBuf = append(e.readBuf, res.data...)
			if len(e.readBuf) > e.settings.InBufferMax {
				netmetrics.OversizeDrops.WithLabelValues("in_buffer_max").Inc()
				return ErrOverInbufferSizeErr
			}
			if err := e.drainFrames(ctx); err != nil {
				return err
			}
			go e.readLoop(ctx, readCh)

		case cmd, ok := <-sendCh:
			if !ok {
				continue
			}
			if err := e.dispatchOutboundMessage(cmd.Msg); err != nil {
				return err
			}

		case <-writeReady:
			n, err := e.conn.Write(e.writeBuf)
			if err != nil {
				wrapped := wsErr(err)
				netmetrics.Errors.WithLabelValues(wrapped.Kind().String()).Inc()
				return wrapped
			}
			netmetrics.Bytes.WithLabelValues("out").Add(float64(n))
			e.writeBuf = e.writeBuf[n:]
			if e.state == stateClosing && len(e.writeBuf) == 0 {
				e.state = stateClosed
			}

		case <-closeTimer:
			e.state = stateClosed

		case <-readTimeout.C:
			netmetrics.Errors.WithLabelValues(ErrReadTimeout.String()).Inc()
			return ErrReadTimeoutErr
		}
	}
}

func (e *wsEngine) readLoop(ctx context.Context, out chan<- readResult) {
	buf := make([]byte, 65536)
	n, err := e.conn.Read(buf)
	select {
	case out <- readResult{data: buf[:n], err: err}:
	case <-ctx.Done():
	}
}

// drainFrames pulls as many complete WS frames as are buffered, feeds
// them through reassembly, and dispatches whole logical messages.
func (e *wsEngine) drainFrames(ctx context.Context) error {
	for {
		frame, consumed, err := readWSFrame(e.readBuf)
		if err != nil {
			if errors.Is(err, ErrOverMsgSizeErr) {
				netmetrics.OversizeDrops.WithLabelValues("ws_frame_size").Inc()
			}
			return err
		}
		if consumed == 0 {
			return nil
		}
		e.readBuf = e.readBuf[consumed:]

		op, payload, complete, err := e.reassembler.feed(frame)
		if err != nil {
			if errors.Is(err, ErrOverMsgSizeErr) {
				netmetrics.OversizeDrops.WithLabelValues("ws_message_size").Inc()
			}
			return err
		}
		if !complete {
			continue
		}
		msg, err := wsFrameToMessage(op, payload)
		if err != nil {
			return err
		}
		if err := e.dispatchInboundMessage(ctx, msg); err != nil {
			return err
		}
		if e.state == stateClosed {
			return nil
		}
	}
}

// dispatchInboundMessage mirrors streamEngine.dispatchInbound.
func (e *wsEngine) dispatchInboundMessage(ctx context.Context, msg Message) error {
	if !msg.IsShutdown() {
		netmetrics.Messages.WithLabelValues("in", msg.OpCode().String()).Inc()
	}
	switch msg.OpCode() {
	case OpText, OpBinary:
		return e.handler.OnMessage(ctx, msg)
	case OpPing:
		reply, err := e.handler.OnPing(ctx, msg.Binary())
		if err != nil {
			return err
		}
		if reply != nil {
			frame, err := writeControlWSFrame(nil, wsOpPong, reply, e.masked)
			if err != nil {
				return err
			}
			e.writeBuf = append(e.writeBuf, frame...)
			netmetrics.Messages.WithLabelValues("out", OpPong.String()).Inc()
		}
		return nil
	case OpPong:
		return e.handler.OnPong(ctx, msg.Binary())
	case OpClose:
		e.handler.OnClose(ctx, msg.CloseCode(), msg.Reason())
		e.beginClosing()
		return nil
	default:
		if msg.IsShutdown() {
			return nil
		}
		return ErrBadCodeErr
	}
}

// dispatchOutboundMessage mirrors streamEngine.dispatchOutbound: once
// Closing, everything enqueued on the sender is silently dropped.
func (e *wsEngine) dispatchOutboundMessage(msg Message) error {
	if e.state != stateOpen {
		return nil
	}
	switch {
	case msg.OpCode() == OpClose:
		frame, err := e.encodeOutbound(msg)
		if err != nil {
			return err
		}
		netmetrics.Messages.WithLabelValues("out", OpClose.String()).Inc()
		e.writeBuf = append(e.writeBuf, frame...)
		e.beginClosing()
	case msg.IsShutdown():
		closeMsg := CloseMessage(CloseAway, "Shutdown")
		frame, err := e.encodeOutbound(closeMsg)
		if err != nil {
			return err
		}
		netmetrics.Messages.WithLabelValues("out", OpClose.String()).Inc()
		e.writeBuf = append(e.writeBuf, frame...)
		e.beginClosing()
	default:
		frame, err := e.encodeOutbound(msg)
		if err != nil {
			return err
		}
		netmetrics.Messages.WithLabelValues("out", msg.OpCode().String()).Inc()
		e.writeBuf = append(e.writeBuf, frame...)
		if len(e.writeBuf) > e.settings.OutBufferMax {
			netmetrics.OversizeDrops.WithLabelValues("out_buffer_max").Inc()
			return ErrOverOutbufferSizeErr()
		}
	}
	return nil
}

func (e *wsEngine) encodeOutbound(msg Message) ([]byte, error) {
	switch msg.OpCode() {
	case OpText:
		return writeWSFrame(nil, true, wsOpText, []byte(msg.Text()), e.masked)
	case OpBinary:
		return writeWSFrame(nil, true, wsOpBinary, msg.Binary(), e.masked)
	case OpPing:
		return writeControlWSFrame(nil, wsOpPing, msg.Binary(), e.masked)
	case OpPong:
		return writeControlWSFrame(nil, wsOpPong, msg.Binary(), e.masked)
	case OpClose:
		payload := closePayload(msg.CloseCode(), msg.Reason())
		return writeControlWSFrame(nil, wsOpClose, payload, e.masked)
	default:
		return nil, nil
	}
}

func (e *wsEngine) beginClosing() {
	if e.state != stateOpen {
		return
	}
	e.state = stateClosing
	e.closeDeadline = time.Now().Add(e.settings.ClosingTime)
}

// wsFrameToMessage converts a reassembled WS logical frame into the
// package's own Message union.
func wsFrameToMessage(op wsOpCode, payload []byte) (Message, error) {
	switch op {
	case wsOpText:
		return TextMessage(string(payload)), nil
	case wsOpBinary:
		return BinaryMessage(payload), nil
	case wsOpPing:
		return PingMessage(payload), nil
	case wsOpPong:
		return PongMessage(payload), nil
	case wsOpClose:
		code := CloseNoStatus
		reason := ""
		if len(payload) >= 2 {
			code = CloseCode(uint16(payload[0])<<8 | uint16(payload[1]))
			reason = string(payload[2:])
		}
		return CloseMessage(code, reason), nil
	default:
		return Message{}, ErrBadCodeErr
	}
}

func closePayload(code CloseCode, reason string) []byte {
	payload := make([]byte, 2+len(reason))
	payload[0] = byte(code >> 8)
	payload[1] = byte(code)
	copy(payload[2:], reason)
	return payload
}
